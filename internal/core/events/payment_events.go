package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCreated  = "payment.created"
	EventTypePaymentApproved = "payment.approved"
	EventTypePaymentFailed   = "payment.failed"
)

// PaymentEvent is published whenever a transaction is created or reaches a
// terminal status.
type PaymentEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	OrderID       int64  `json:"order_id"`
	Method        string `json:"payment_method"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

func newPaymentEvent(eventType, transactionID string, orderID int64, method, amount, status, reason string, at time.Time) *PaymentEvent {
	data := map[string]interface{}{
		"transaction_id": transactionID,
		"order_id":       orderID,
		"payment_method": method,
		"amount":         amount,
		"status":         status,
	}
	if reason != "" {
		data["reason"] = reason
	}
	return &PaymentEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: at,
			Data:      data,
		},
		TransactionID: transactionID,
		OrderID:       orderID,
		Method:        method,
		Amount:        amount,
		Status:        status,
		Reason:        reason,
	}
}

func NewPaymentCreatedEvent(transactionID string, orderID int64, method, amount, status string, at time.Time) *PaymentEvent {
	return newPaymentEvent(EventTypePaymentCreated, transactionID, orderID, method, amount, status, "", at)
}

func NewPaymentApprovedEvent(transactionID string, orderID int64, method, amount string, at time.Time) *PaymentEvent {
	return newPaymentEvent(EventTypePaymentApproved, transactionID, orderID, method, amount, "approved", "", at)
}

func NewPaymentFailedEvent(transactionID string, orderID int64, method, amount, status, reason string, at time.Time) *PaymentEvent {
	return newPaymentEvent(EventTypePaymentFailed, transactionID, orderID, method, amount, status, reason, at)
}
