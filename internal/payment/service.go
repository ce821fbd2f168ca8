package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/core/events"
	"github.com/frahmantamala/estore-payments/internal/gateway"
	"github.com/frahmantamala/estore-payments/internal/transaction"
	"github.com/frahmantamala/estore-payments/pkg/logger"
)

const instrumentation = "github.com/frahmantamala/estore-payments/internal/payment"

var tracer = otel.Tracer(instrumentation)

type Dependencies struct {
	Gateway    gateway.Gateway
	Repository transaction.RepositoryAPI
	Stats      transaction.StatsAPI
	Methods    MethodConfigAPI
	Reconciler ReconcilerAPI
	Publisher  events.Publisher
	Logger     *slog.Logger
	Meter      metric.Meter
	Now        func() time.Time
}

type Service struct {
	gateway    gateway.Gateway
	repo       transaction.RepositoryAPI
	stats      transaction.StatsAPI
	methods    MethodConfigAPI
	reconciler ReconcilerAPI
	publisher  events.Publisher
	logger     *slog.Logger
	now        func() time.Time
	processed  metric.Int64Counter
}

func NewService(deps Dependencies) *Service {
	s := &Service{
		gateway:    deps.Gateway,
		repo:       deps.Repository,
		stats:      deps.Stats,
		methods:    deps.Methods,
		reconciler: deps.Reconciler,
		publisher:  deps.Publisher,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(instrumentation)
	}
	counter, err := meter.Int64Counter("payments.processed",
		metric.WithDescription("Checkout attempts that reached a gateway"))
	if err != nil {
		s.logger.Warn("payments.processed counter unavailable", "error", err)
	}
	s.processed = counter
	return s
}

// Process runs one checkout attempt. Validation and configuration problems
// return an error and persist nothing. Every attempt that reached a gateway
// is persisted, declines and gateway errors included, and comes back as a
// Result with Success false.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*Result, error) {
	if err := req.Validate(s.now()); err != nil {
		return nil, err
	}
	req.Amount = req.Amount.Round(2)

	if err := s.checkMethod(ctx, req); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "payment.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.method", string(req.Method)),
		attribute.Int64("payment.order_id", req.OrderID),
		attribute.String("payment.gateway", s.gateway.Name()),
	)

	res, err := dispatch(ctx, s.gateway, req)
	if err != nil {
		span.RecordError(err)
		var cfgErr *gateway.ConfigurationError
		if errors.As(err, &cfgErr) {
			s.logger.Warn("payment method not configured", "method", req.Method, "reason", cfgErr.Reason)
			return nil, internal.NewConfigurationError(cfgErr.Reason, internal.ErrCodeMethodNotConfigured)
		}
		s.logger.Error("gateway call failed", "method", req.Method, "order_id", req.OrderID, "error", err)
		return nil, internal.NewInternalError("Failed to process payment", err)
	}

	tx, err := transaction.FromResult(req.OrderID, req.Amount, res)
	if err != nil {
		s.logger.Error("gateway returned an unusable result", "method", req.Method, "error", err)
		return nil, internal.NewInternalError("Failed to process payment", err)
	}
	tx.CreatedAt = s.now()
	tx.UpdatedAt = tx.CreatedAt
	if err := s.repo.Create(ctx, tx); err != nil {
		span.RecordError(err)
		s.logger.Error("failed to persist transaction",
			"transaction_id", tx.TransactionID,
			"order_id", req.OrderID,
			"error", err)
		return nil, fmt.Errorf("persist transaction %s: %w", tx.TransactionID, err)
	}
	span.SetAttributes(attribute.String("payment.status", string(tx.Status)))

	if s.processed != nil {
		s.processed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", string(tx.PaymentMethod)),
			attribute.String("status", string(tx.Status)),
		))
	}
	s.logger.Info("payment processed",
		"transaction_id", tx.TransactionID,
		"order_id", tx.OrderID,
		"method", tx.PaymentMethod,
		"status", tx.Status,
		"gateway", tx.GatewayName)

	s.publishCreated(ctx, tx, res)
	return toResult(tx, res), nil
}

func (s *Service) checkMethod(ctx context.Context, req ProcessRequest) error {
	cfg, err := s.methods.Get(ctx, req.Method)
	if err != nil {
		if errors.Is(err, internal.ErrMethodNotFound) {
			return internal.NewConfigurationError(
				fmt.Sprintf("%s não está configurado", req.Method.Label()),
				internal.ErrCodeMethodNotConfigured)
		}
		return err
	}
	if !cfg.IsActive {
		return internal.ErrMethodInactive
	}
	if req.Amount.LessThan(cfg.MinAmount) {
		return internal.NewValidationError(
			fmt.Sprintf("Valor mínimo para %s é %s", req.Method.Label(), cfg.MinAmount.StringFixed(2)),
			internal.ErrCodeAmountTooLow)
	}
	if req.Amount.GreaterThan(cfg.MaxAmount) {
		return internal.NewValidationError(
			fmt.Sprintf("Valor máximo para %s é %s", req.Method.Label(), cfg.MaxAmount.StringFixed(2)),
			internal.ErrCodeAmountTooHigh)
	}
	return nil
}

func (s *Service) publishCreated(ctx context.Context, tx *payment.Transaction, res *gateway.Result) {
	if s.publisher == nil {
		return
	}
	amount := tx.Amount.StringFixed(2)
	at := s.now()
	evs := []events.Event{
		events.NewPaymentCreatedEvent(tx.TransactionID, tx.OrderID, string(tx.PaymentMethod), amount, string(tx.Status), at),
	}
	switch tx.Status {
	case payment.StatusApproved:
		evs = append(evs, events.NewPaymentApprovedEvent(tx.TransactionID, tx.OrderID, string(tx.PaymentMethod), amount, at))
	case payment.StatusFailed:
		reason := res.Message
		if res.Failure != nil {
			reason = res.Failure.Message
		}
		evs = append(evs, events.NewPaymentFailedEvent(tx.TransactionID, tx.OrderID, string(tx.PaymentMethod), amount, string(tx.Status), reason, at))
	}
	for _, ev := range evs {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Error("failed to publish payment event", "event_type", ev.EventType(), "error", err)
		}
	}
}

func (s *Service) GetTransaction(ctx context.Context, transactionID string) (*TransactionView, error) {
	tx, err := s.repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	view := ToTransactionView(tx)
	return &view, nil
}

func (s *Service) ListByOrder(ctx context.Context, orderID int64) ([]TransactionView, error) {
	if orderID <= 0 {
		return nil, internal.NewValidationFieldError("order_id", "order_id must be positive", internal.ErrCodeValidationFailed)
	}
	txs, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		s.logger.Error("failed to list order payments", "order_id", orderID, "error", err)
		return nil, err
	}
	views := make([]TransactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, ToTransactionView(tx))
	}
	return views, nil
}

func (s *Service) Notifications(ctx context.Context, transactionID string) ([]NotificationView, error) {
	if _, err := s.repo.GetByTransactionID(ctx, transactionID); err != nil {
		return nil, err
	}
	ns, err := s.repo.ListNotifications(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	views := make([]NotificationView, 0, len(ns))
	for _, n := range ns {
		views = append(views, toNotificationView(n))
	}
	return views, nil
}

// Override lets an admin settle a pending transaction by hand. Terminal
// transactions are refused with ErrInvalidStatusTransition.
func (s *Service) Override(ctx context.Context, transactionID string, req OverrideRequest) (*TransactionView, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tx, err := s.repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !tx.Status.CanTransitionTo(req.Status) {
		return nil, internal.ErrInvalidStatusTransition
	}

	message := req.Reason
	if message == "" {
		message = fmt.Sprintf("Status alterado manualmente para %s", req.Status)
	}
	t := transaction.Transition{
		TransactionID:    transactionID,
		To:               req.Status,
		NotificationType: payment.NotificationStatusOverride,
		Message:          message,
		At:               s.now(),
	}
	if req.Status == payment.StatusFailed {
		t.FailureCategory = "override"
		t.FailureReason = message
	}

	changed, err := s.repo.Transition(ctx, t)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, internal.ErrInvalidStatusTransition
	}
	s.logger.With(logger.Fields(ctx)...).Info("transaction status overridden",
		"transaction_id", transactionID,
		"from", tx.Status,
		"to", req.Status,
		"admin", internal.SubjectFromContext(ctx))

	updated, err := s.repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	s.publishTerminal(ctx, updated, message)
	view := ToTransactionView(updated)
	return &view, nil
}

func (s *Service) publishTerminal(ctx context.Context, tx *payment.Transaction, reason string) {
	if s.publisher == nil {
		return
	}
	amount := tx.Amount.StringFixed(2)
	var ev events.Event
	if tx.Status == payment.StatusApproved {
		ev = events.NewPaymentApprovedEvent(tx.TransactionID, tx.OrderID, string(tx.PaymentMethod), amount, s.now())
	} else {
		ev = events.NewPaymentFailedEvent(tx.TransactionID, tx.OrderID, string(tx.PaymentMethod), amount, string(tx.Status), reason, s.now())
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error("failed to publish payment event", "event_type", ev.EventType(), "error", err)
	}
}

func (s *Service) Stats(ctx context.Context, since time.Time) (*transaction.Stats, error) {
	return s.stats.Stats(ctx, since)
}

// HandleWebhook records the callback and reconciles the transaction against
// its provider. Replays are harmless: a transaction that is already terminal
// is left alone and gets no further audit row.
func (s *Service) HandleWebhook(ctx context.Context, req WebhookRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	tx, err := s.repo.GetByTransactionID(ctx, req.TransactionID)
	if err != nil {
		return false, err
	}

	if tx.Status.IsTerminal() {
		s.logger.Info("webhook for settled transaction ignored",
			"transaction_id", tx.TransactionID,
			"status", tx.Status,
			"provider_status", req.Status)
		return false, nil
	}

	at := s.now()
	message := req.Message
	if message == "" {
		message = fmt.Sprintf("Notificação do provedor: %s", req.Status)
	}
	if err := s.repo.AddNotification(ctx, &payment.Notification{
		TransactionID:    tx.TransactionID,
		NotificationType: payment.NotificationWebhook,
		Status:           req.Status,
		Message:          message,
		ProcessedAt:      &at,
		CreatedAt:        at,
	}); err != nil {
		return false, fmt.Errorf("record webhook for %s: %w", tx.TransactionID, err)
	}

	changed, err := s.reconciler.Reconcile(ctx, tx.TransactionID)
	if err != nil {
		return false, internal.NewGatewayError("Não foi possível confirmar o pagamento com o provedor", err)
	}
	return changed, nil
}
