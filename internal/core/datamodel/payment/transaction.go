package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Method string

const (
	MethodPIX        Method = "pix"
	MethodCreditCard Method = "credit_card"
	MethodDebitCard  Method = "debit_card"
	MethodBoleto     Method = "boleto"
)

var Methods = []Method{MethodPIX, MethodCreditCard, MethodDebitCard, MethodBoleto}

func (m Method) Valid() bool {
	switch m {
	case MethodPIX, MethodCreditCard, MethodDebitCard, MethodBoleto:
		return true
	}
	return false
}

func (m Method) IsCard() bool {
	return m == MethodCreditCard || m == MethodDebitCard
}

// Label is the storefront display name.
func (m Method) Label() string {
	switch m {
	case MethodPIX:
		return "PIX"
	case MethodCreditCard:
		return "Cartão de Crédito"
	case MethodDebitCard:
		return "Cartão de Débito"
	case MethodBoleto:
		return "Boleto Bancário"
	}
	return string(m)
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo holds the whole state machine: only pending moves, and only
// into a terminal state.
func (s Status) CanTransitionTo(to Status) bool {
	return s == StatusPending && to.IsTerminal()
}

type Transaction struct {
	ID               int64           `gorm:"primaryKey"`
	TransactionID    string          `gorm:"column:transaction_id;size:64;not null;uniqueIndex"`
	OrderID          int64           `gorm:"column:order_id;not null;index"`
	PaymentMethod    Method          `gorm:"column:payment_method;size:32;not null"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Status           Status          `gorm:"column:status;size:16;not null;index"`
	GatewayName      string          `gorm:"column:gateway_name;size:32"`
	GatewayReference *string         `gorm:"column:gateway_reference;size:128"`
	GatewayResponse  datatypes.JSON  `gorm:"column:gateway_response"`
	FailureCategory  *string         `gorm:"column:failure_category;size:32"`
	FailureReason    *string         `gorm:"column:failure_reason"`

	PixKey        *string    `gorm:"column:pix_key"`
	PixQRCode     *string    `gorm:"column:pix_qr_code"`
	ExpiresAt     *time.Time `gorm:"column:expires_at"`
	BoletoNumber  *string    `gorm:"column:boleto_number"`
	BoletoBarcode *string    `gorm:"column:boleto_barcode"`
	BoletoDueDate *time.Time `gorm:"column:boleto_due_date"`
	CardLastFour  *string    `gorm:"column:card_last_four;size:4"`
	CardBrand     *string    `gorm:"column:card_brand;size:32"`
	Installments  *int       `gorm:"column:installments"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Transaction) TableName() string {
	return "payment_transactions"
}
