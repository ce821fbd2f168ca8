package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/shopspring/decimal"
)

// Gateway is one payment backend. The active one is chosen once at startup
// by Select.
type Gateway interface {
	Name() string
	ProcessCreditCard(ctx context.Context, req CardRequest) (*Result, error)
	ProcessDebitCard(ctx context.Context, req CardRequest) (*Result, error)
	ProcessPIX(ctx context.Context, req PixRequest) (*Result, error)
	ProcessBoleto(ctx context.Context, req BoletoRequest) (*Result, error)
}

type Payer struct {
	Name  string
	Email string
	CPF   string
}

type CardRequest struct {
	OrderID      int64
	Amount       decimal.Decimal
	Number       string
	HolderName   string
	Expiry       string
	CVV          string
	Installments int
	Description  string
	Payer        Payer
}

type PixRequest struct {
	OrderID     int64
	Amount      decimal.Decimal
	Description string
	Payer       Payer
}

type BoletoRequest struct {
	OrderID     int64
	Amount      decimal.Decimal
	DueDays     int
	Description string
	Payer       Payer
}

// ErrNotConfigured marks a method the operator still has to set up. No
// transaction is created for it.
var ErrNotConfigured = errors.New("payment method not configured")

type ConfigurationError struct {
	Method payment.Method
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrNotConfigured
}

type FailureCategory string

const (
	FailureDeclined FailureCategory = "declined"
	FailureGateway  FailureCategory = "gateway_error"
)

// Failure describes an attempt that reached a backend and did not succeed.
// Both categories are persisted as failed transactions.
type Failure struct {
	Category FailureCategory
	Code     string
	Message  string
}

// Details is the per-method part of a result. Exactly one variant applies.
type Details interface {
	method() payment.Method
}

type PixDetails struct {
	PixKey    string
	QRCode    string
	ExpiresAt time.Time
	Recipient string
}

func (*PixDetails) method() payment.Method { return payment.MethodPIX }

type BoletoDetails struct {
	Number  string
	Barcode string
	DueDate time.Time
	Cedente string
	CNPJ    string
}

func (*BoletoDetails) method() payment.Method { return payment.MethodBoleto }

type CardDetails struct {
	Debit             bool
	LastFour          string
	Brand             string
	Installments      int
	AuthorizationCode string
	ProcessingFee     decimal.Decimal
	ProcessorCode     string
	ProcessorMessage  string
}

func (d *CardDetails) method() payment.Method {
	if d.Debit {
		return payment.MethodDebitCard
	}
	return payment.MethodCreditCard
}

type Result struct {
	Success          bool
	TransactionID    string
	Method           payment.Method
	Status           payment.Status
	Message          string
	Details          Details
	GatewayName      string
	GatewayReference string
	GatewayResponse  map[string]any
	Failure          *Failure
}

func (r *Result) Validate() error {
	if r.TransactionID == "" {
		return errors.New("result has no transaction id")
	}
	if !r.Method.Valid() {
		return fmt.Errorf("result has unknown method %q", r.Method)
	}
	if r.Details == nil {
		return fmt.Errorf("result for %s has no details", r.Method)
	}
	if r.Details.method() != r.Method {
		return fmt.Errorf("result for %s carries %s details", r.Method, r.Details.method())
	}
	if r.Success == (r.Status == payment.StatusFailed) {
		return fmt.Errorf("result success=%t does not match status %s", r.Success, r.Status)
	}
	if !r.Success && r.Failure == nil {
		return errors.New("failed result has no failure")
	}
	return nil
}

func (r *Result) Pix() (*PixDetails, bool) {
	d, ok := r.Details.(*PixDetails)
	return d, ok
}

func (r *Result) Boleto() (*BoletoDetails, bool) {
	d, ok := r.Details.(*BoletoDetails)
	return d, ok
}

func (r *Result) Card() (*CardDetails, bool) {
	d, ok := r.Details.(*CardDetails)
	return d, ok
}
