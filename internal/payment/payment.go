package payment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/gateway"
	"github.com/frahmantamala/estore-payments/internal/monitor"
	"github.com/frahmantamala/estore-payments/internal/transaction"
	"github.com/shopspring/decimal"
)

// MethodConfigAPI is the part of the method configuration the checkout reads.
type MethodConfigAPI interface {
	Get(ctx context.Context, method payment.Method) (*payment.MethodConfig, error)
}

// ReconcilerAPI is implemented by monitor.Monitor.
type ReconcilerAPI interface {
	CheckStatus(ctx context.Context, transactionID string) (*monitor.StatusReport, error)
	Reconcile(ctx context.Context, transactionID string) (bool, error)
	Sweep(ctx context.Context) (*monitor.SweepSummary, error)
}

type ServiceAPI interface {
	Process(ctx context.Context, req ProcessRequest) (*Result, error)
	GetTransaction(ctx context.Context, transactionID string) (*TransactionView, error)
	ListByOrder(ctx context.Context, orderID int64) ([]TransactionView, error)
	Notifications(ctx context.Context, transactionID string) ([]NotificationView, error)
	Override(ctx context.Context, transactionID string, req OverrideRequest) (*TransactionView, error)
	Stats(ctx context.Context, since time.Time) (*transaction.Stats, error)
	HandleWebhook(ctx context.Context, req WebhookRequest) (bool, error)
}

type PixView struct {
	Key       string     `json:"pix_key"`
	QRCode    string     `json:"qr_code"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type BoletoView struct {
	Number  string     `json:"boleto_number"`
	Barcode string     `json:"barcode"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

type CardView struct {
	LastFour     string `json:"card_last_four"`
	Brand        string `json:"card_brand"`
	Installments int    `json:"installments"`
}

type FailureView struct {
	Category string `json:"category"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
}

// Result answers a checkout attempt.
type Result struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transaction_id"`
	Method        payment.Method  `json:"payment_method"`
	Status        payment.Status  `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Message       string          `json:"message"`
	Pix           *PixView        `json:"pix,omitempty"`
	Boleto        *BoletoView     `json:"boleto,omitempty"`
	Card          *CardView       `json:"card,omitempty"`
	Error         *FailureView    `json:"error,omitempty"`
}

type TransactionView struct {
	TransactionID   string          `json:"transaction_id"`
	OrderID         int64           `json:"order_id"`
	Method          payment.Method  `json:"payment_method"`
	MethodLabel     string          `json:"payment_method_label"`
	Amount          decimal.Decimal `json:"amount"`
	Status          payment.Status  `json:"status"`
	GatewayName     string          `json:"gateway"`
	FailureCategory string          `json:"failure_category,omitempty"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	Pix             *PixView        `json:"pix,omitempty"`
	Boleto          *BoletoView     `json:"boleto,omitempty"`
	Card            *CardView       `json:"card,omitempty"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type NotificationView struct {
	Type        payment.NotificationType `json:"notification_type"`
	Status      string                   `json:"status"`
	Message     string                   `json:"message"`
	ProcessedAt *time.Time               `json:"processed_at,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func methodViews(tx *payment.Transaction) (*PixView, *BoletoView, *CardView) {
	switch tx.PaymentMethod {
	case payment.MethodPIX:
		return &PixView{Key: deref(tx.PixKey), QRCode: deref(tx.PixQRCode), ExpiresAt: tx.ExpiresAt}, nil, nil
	case payment.MethodBoleto:
		return nil, &BoletoView{Number: deref(tx.BoletoNumber), Barcode: deref(tx.BoletoBarcode), DueDate: tx.BoletoDueDate}, nil
	case payment.MethodCreditCard, payment.MethodDebitCard:
		card := &CardView{LastFour: deref(tx.CardLastFour), Brand: deref(tx.CardBrand), Installments: 1}
		if tx.Installments != nil {
			card.Installments = *tx.Installments
		}
		return nil, nil, card
	}
	return nil, nil, nil
}

// ToTransactionView includes the raw gateway response, so it is meant for
// the owner of the order and for admins.
func ToTransactionView(tx *payment.Transaction) TransactionView {
	pix, boleto, card := methodViews(tx)
	view := TransactionView{
		TransactionID:   tx.TransactionID,
		OrderID:         tx.OrderID,
		Method:          tx.PaymentMethod,
		MethodLabel:     tx.PaymentMethod.Label(),
		Amount:          tx.Amount,
		Status:          tx.Status,
		GatewayName:     tx.GatewayName,
		FailureCategory: deref(tx.FailureCategory),
		FailureReason:   deref(tx.FailureReason),
		Pix:             pix,
		Boleto:          boleto,
		Card:            card,
		CreatedAt:       tx.CreatedAt,
		UpdatedAt:       tx.UpdatedAt,
	}
	if len(tx.GatewayResponse) > 0 {
		view.GatewayResponse = json.RawMessage(tx.GatewayResponse)
	}
	return view
}

func toResult(tx *payment.Transaction, res *gateway.Result) *Result {
	pix, boleto, card := methodViews(tx)
	out := &Result{
		Success:       res.Success,
		TransactionID: tx.TransactionID,
		Method:        tx.PaymentMethod,
		Status:        tx.Status,
		Amount:        tx.Amount,
		Message:       res.Message,
		Pix:           pix,
		Boleto:        boleto,
		Card:          card,
	}
	if f := res.Failure; f != nil {
		out.Error = &FailureView{Category: string(f.Category), Code: f.Code, Message: f.Message}
	}
	return out
}

func toNotificationView(n *payment.Notification) NotificationView {
	return NotificationView{
		Type:        n.NotificationType,
		Status:      n.Status,
		Message:     n.Message,
		ProcessedAt: n.ProcessedAt,
		CreatedAt:   n.CreatedAt,
	}
}
