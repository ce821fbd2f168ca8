package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/estore-payments/internal/core/events"
	"github.com/frahmantamala/estore-payments/internal/orders"
)

// OrdersAPI is implemented by orders.Client.
type OrdersAPI interface {
	UpdatePayment(ctx context.Context, orderID int64, update orders.PaymentUpdate) error
}

// EventHandler hands settled payments over to the storefront orders API.
type EventHandler struct {
	orders OrdersAPI
	logger *slog.Logger
}

func NewEventHandler(ordersAPI OrdersAPI, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		orders: ordersAPI,
		logger: logger,
	}
}

func (h *EventHandler) HandlePaymentApproved(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.PaymentEvent)
	if !ok {
		return fmt.Errorf("expected PaymentEvent, got %T", event)
	}
	return h.update(ctx, ev, orders.PaymentStatusPaid)
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.PaymentEvent)
	if !ok {
		return fmt.Errorf("expected PaymentEvent, got %T", event)
	}
	return h.update(ctx, ev, orders.PaymentStatusFailed)
}

func (h *EventHandler) update(ctx context.Context, ev *events.PaymentEvent, status string) error {
	h.logger.Info("updating order payment status",
		"order_id", ev.OrderID,
		"transaction_id", ev.TransactionID,
		"payment_status", status,
		"event_id", ev.EventID())

	err := h.orders.UpdatePayment(ctx, ev.OrderID, orders.PaymentUpdate{
		PaymentStatus: status,
		TransactionID: ev.TransactionID,
		PaymentMethod: ev.Method,
		Amount:        ev.Amount,
		Reason:        ev.Reason,
	})
	if err != nil {
		return fmt.Errorf("order %d payment %s: %w", ev.OrderID, status, err)
	}
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentApproved, h.HandlePaymentApproved)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)

	h.logger.Info("order hand-off handlers registered",
		"handlers", []string{events.EventTypePaymentApproved, events.EventTypePaymentFailed})
}
