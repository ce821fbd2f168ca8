package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/gateway"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Transition moves one pending transaction into a terminal status and records
// the notification that goes with it.
type Transition struct {
	TransactionID    string
	To               payment.Status
	NotificationType payment.NotificationType
	Message          string
	FailureCategory  string
	FailureReason    string
	At               time.Time
}

// PendingCursor is a keyset position over (created_at, id). The zero value
// starts at the oldest row.
type PendingCursor struct {
	CreatedAt time.Time
	ID        int64
}

// After positions a cursor just past tx.
func After(tx *payment.Transaction) PendingCursor {
	return PendingCursor{CreatedAt: tx.CreatedAt, ID: tx.ID}
}

func (c PendingCursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == 0
}

type RepositoryAPI interface {
	Create(ctx context.Context, tx *payment.Transaction) error
	GetByTransactionID(ctx context.Context, transactionID string) (*payment.Transaction, error)
	ListByOrder(ctx context.Context, orderID int64) ([]*payment.Transaction, error)
	// ListPending returns up to limit pending transactions strictly after the
	// cursor, oldest first.
	ListPending(ctx context.Context, after PendingCursor, limit int) ([]*payment.Transaction, error)
	// Transition reports false, with no error, when the transaction was no
	// longer pending. Nothing is written in that case.
	Transition(ctx context.Context, t Transition) (bool, error)
	AddNotification(ctx context.Context, n *payment.Notification) error
	ListNotifications(ctx context.Context, transactionID string) ([]*payment.Notification, error)
}

type MethodStats struct {
	Method payment.Method  `json:"method" db:"payment_method"`
	Status payment.Status  `json:"status" db:"status"`
	Count  int64           `json:"count" db:"count"`
	Total  decimal.Decimal `json:"total" db:"total"`
}

type Stats struct {
	Since         *time.Time      `json:"since,omitempty"`
	Transactions  int64           `json:"transactions"`
	Approved      int64           `json:"approved"`
	Pending       int64           `json:"pending"`
	Failed        int64           `json:"failed"`
	Cancelled     int64           `json:"cancelled"`
	ApprovedTotal decimal.Decimal `json:"approved_total"`
	ApprovalRate  float64         `json:"approval_rate"`
	Breakdown     []MethodStats   `json:"breakdown"`
}

type StatsAPI interface {
	Stats(ctx context.Context, since time.Time) (*Stats, error)
}

// Summarize folds the per method and status rows into totals.
func Summarize(since time.Time, rows []MethodStats) *Stats {
	s := &Stats{Breakdown: rows, ApprovedTotal: decimal.Zero}
	if !since.IsZero() {
		s.Since = &since
	}
	for _, r := range rows {
		s.Transactions += r.Count
		switch r.Status {
		case payment.StatusApproved:
			s.Approved += r.Count
			s.ApprovedTotal = s.ApprovedTotal.Add(r.Total)
		case payment.StatusPending:
			s.Pending += r.Count
		case payment.StatusFailed:
			s.Failed += r.Count
		case payment.StatusCancelled:
			s.Cancelled += r.Count
		}
	}
	if decided := s.Approved + s.Failed + s.Cancelled; decided > 0 {
		s.ApprovalRate = float64(s.Approved) / float64(decided)
	}
	if s.Breakdown == nil {
		s.Breakdown = []MethodStats{}
	}
	return s
}

// FromResult builds the row persisted for a gateway attempt. Only the columns
// of the attempted method are filled.
func FromResult(orderID int64, amount decimal.Decimal, res *gateway.Result) (*payment.Transaction, error) {
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway result: %w", err)
	}

	tx := &payment.Transaction{
		TransactionID: res.TransactionID,
		OrderID:       orderID,
		PaymentMethod: res.Method,
		Amount:        amount.Round(2),
		Status:        res.Status,
		GatewayName:   res.GatewayName,
	}
	if res.GatewayResponse != nil {
		raw, err := json.Marshal(res.GatewayResponse)
		if err != nil {
			return nil, fmt.Errorf("encode gateway response: %w", err)
		}
		tx.GatewayResponse = datatypes.JSON(raw)
	}
	tx.GatewayReference = optional(res.GatewayReference)
	if f := res.Failure; f != nil {
		tx.FailureCategory = optional(string(f.Category))
		tx.FailureReason = optional(f.Message)
	}

	switch d := res.Details.(type) {
	case *gateway.PixDetails:
		tx.PixKey = optional(d.PixKey)
		tx.PixQRCode = optional(d.QRCode)
		if !d.ExpiresAt.IsZero() && res.Success {
			exp := d.ExpiresAt
			tx.ExpiresAt = &exp
		}
	case *gateway.BoletoDetails:
		tx.BoletoNumber = optional(d.Number)
		tx.BoletoBarcode = optional(d.Barcode)
		if !d.DueDate.IsZero() && res.Success {
			due := d.DueDate
			tx.BoletoDueDate = &due
		}
	case *gateway.CardDetails:
		tx.CardLastFour = optional(d.LastFour)
		tx.CardBrand = optional(d.Brand)
		installments := d.Installments
		tx.Installments = &installments
	}
	return tx, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
