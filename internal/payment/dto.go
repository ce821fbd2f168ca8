package payment

import (
	"time"

	errors "github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/core/common/validation"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/shopspring/decimal"
)

const maxInstallments = 12

type CardInput struct {
	Number     string `json:"number"`
	HolderName string `json:"holder_name"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
}

type PayerInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	CPF   string `json:"cpf"`
}

// ProcessRequest is a checkout attempt for one order.
type ProcessRequest struct {
	OrderID      int64           `json:"order_id"`
	Method       payment.Method  `json:"payment_method"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
	Installments int             `json:"installments,omitempty"`
	DueDays      int             `json:"due_days,omitempty"`
	Card         *CardInput      `json:"card,omitempty"`
	Payer        *PayerInput     `json:"payer,omitempty"`
}

// Validate checks the request before any configuration or gateway lookup.
// Every failing field is reported at once.
func (r *ProcessRequest) Validate(now time.Time) error {
	v := validation.NewValidator()

	v.Field("order_id", r.OrderID).Required().MinInt(1, errors.ErrCodeValidationFailed)
	v.Field("payment_method", string(r.Method)).Required().OneOf(
		string(payment.MethodPIX),
		string(payment.MethodCreditCard),
		string(payment.MethodDebitCard),
		string(payment.MethodBoleto),
	)
	v.Field("amount", r.Amount).Required().Positive()
	v.Field("description", r.Description).MaxLength(255)

	if r.Method.IsCard() {
		card := r.Card
		if card == nil {
			card = &CardInput{}
		}
		v.Field("card.number", card.Number).Required().CardNumber()
		v.Field("card.holder_name", card.HolderName).Required().MaxLength(100)
		v.Field("card.expiry", card.Expiry).Required().Expiry(now)
		v.Field("card.cvv", card.CVV).Required().CVV()
	}
	if r.Method == payment.MethodCreditCard {
		v.Field("installments", int64(r.Installments)).
			MinInt(0, errors.ErrCodeValidationFailed).
			MaxInt(maxInstallments, errors.ErrCodeValidationFailed)
	}
	if r.Method == payment.MethodBoleto {
		v.Field("due_days", int64(r.DueDays)).
			MinInt(0, errors.ErrCodeValidationFailed).
			MaxInt(30, errors.ErrCodeValidationFailed)
	}
	if r.Payer != nil {
		v.Field("payer.name", r.Payer.Name).MaxLength(100)
		v.Field("payer.email", r.Payer.Email).Email()
		v.Field("payer.cpf", r.Payer.CPF).CPF()
	}

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// OverrideRequest is an administrative status change.
type OverrideRequest struct {
	Status payment.Status `json:"status"`
	Reason string         `json:"reason"`
}

func (r *OverrideRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("status", string(r.Status)).Required().OneOf(
		string(payment.StatusApproved),
		string(payment.StatusFailed),
		string(payment.StatusCancelled),
	)
	v.Field("reason", r.Reason).MaxLength(255)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// WebhookRequest is a provider callback. Only the transaction id is trusted;
// the status is re-read from the provider.
type WebhookRequest struct {
	TransactionID    string `json:"transaction_id"`
	Status           string `json:"status"`
	GatewayReference string `json:"gateway_reference,omitempty"`
	Message          string `json:"message,omitempty"`
}

func (r *WebhookRequest) Validate() error {
	v := validation.NewValidator()
	v.Field("transaction_id", r.TransactionID).Required().MaxLength(64)
	v.Field("status", r.Status).Required().MaxLength(32)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
