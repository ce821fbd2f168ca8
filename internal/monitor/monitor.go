package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/core/events"
	"github.com/frahmantamala/estore-payments/internal/gateway"
	"github.com/frahmantamala/estore-payments/internal/transaction"
)

const (
	PixWindow    = 30 * time.Minute
	BoletoWindow = 72 * time.Hour

	ExpiredMessage  = "Pagamento expirado"
	ExpiredCategory = "expired"

	defaultBatchSize = 100
)

// StatusReport is what a status check observed. ConfirmedAt is set once the
// transaction is approved.
type StatusReport struct {
	TransactionID string         `json:"transaction_id"`
	Status        payment.Status `json:"status"`
	Message       string         `json:"message"`
	ConfirmedAt   *time.Time     `json:"confirmed_at,omitempty"`
}

type SweepSummary struct {
	TotalChecked int `json:"total_checked"`
	Approved     int `json:"approved"`
	StillPending int `json:"still_pending"`
	Failed       int `json:"failed"`
}

type Monitor struct {
	repo      transaction.RepositoryAPI
	settler   gateway.Settler
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
	batchSize int

	checked     metric.Int64Counter
	transitions metric.Int64Counter
}

type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

func WithBatchSize(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(m *Monitor) { m.publisher = p }
}

func WithMeter(meter metric.Meter) Option {
	return func(m *Monitor) { m.initMetrics(meter) }
}

func New(repo transaction.RepositoryAPI, settler gateway.Settler, opts ...Option) *Monitor {
	m := &Monitor{
		repo:      repo,
		settler:   settler,
		logger:    slog.Default(),
		now:       time.Now,
		batchSize: defaultBatchSize,
	}
	m.initMetrics(otel.Meter("github.com/frahmantamala/estore-payments/internal/monitor"))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) initMetrics(meter metric.Meter) {
	var err error
	if m.checked, err = meter.Int64Counter("reconcile.checked",
		metric.WithDescription("Pending transactions checked against their provider")); err != nil {
		m.checked, _ = noop.NewMeterProvider().Meter("").Int64Counter("reconcile.checked")
	}
	if m.transitions, err = meter.Int64Counter("reconcile.transitions",
		metric.WithDescription("Status transitions performed by reconciliation")); err != nil {
		m.transitions, _ = noop.NewMeterProvider().Meter("").Int64Counter("reconcile.transitions")
	}
}

// Window is how long a pending transaction of the method may wait for
// payment. Cards resolve synchronously and have none.
func Window(method payment.Method) (time.Duration, bool) {
	switch method {
	case payment.MethodPIX:
		return PixWindow, true
	case payment.MethodBoleto:
		return BoletoWindow, true
	}
	return 0, false
}

// Deadline is when a pending transaction stops being payable. A boleto stays
// payable until its due date when that falls after the default window.
func Deadline(tx *payment.Transaction) (time.Time, bool) {
	window, ok := Window(tx.PaymentMethod)
	if !ok {
		return time.Time{}, false
	}
	deadline := tx.CreatedAt.Add(window)
	if tx.PaymentMethod == payment.MethodBoleto && tx.BoletoDueDate != nil && tx.BoletoDueDate.After(deadline) {
		deadline = *tx.BoletoDueDate
	}
	return deadline, true
}

// Expired reports whether the deadline has strictly passed at now.
func Expired(tx *payment.Transaction, now time.Time) bool {
	deadline, ok := Deadline(tx)
	return ok && now.After(deadline)
}

// CheckStatus asks the provider about a transaction without changing it.
// Terminal transactions are answered from the store.
func (m *Monitor) CheckStatus(ctx context.Context, transactionID string) (*StatusReport, error) {
	tx, err := m.repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status.IsTerminal() {
		return storedReport(tx), nil
	}

	st, err := m.settler.Settle(ctx, tx)
	if err != nil {
		m.logger.Warn("status check failed", "transaction_id", transactionID, "error", err)
		return &StatusReport{
			TransactionID: tx.TransactionID,
			Status:        payment.StatusPending,
			Message:       "Não foi possível consultar o status no momento",
		}, nil
	}
	report := &StatusReport{
		TransactionID: tx.TransactionID,
		Status:        st.Status,
		Message:       st.Message,
	}
	if st.Status == payment.StatusApproved {
		at := m.now()
		report.ConfirmedAt = &at
	}
	return report, nil
}

func storedReport(tx *payment.Transaction) *StatusReport {
	report := &StatusReport{TransactionID: tx.TransactionID, Status: tx.Status}
	switch tx.Status {
	case payment.StatusApproved:
		report.Message = "Pagamento aprovado"
		at := tx.UpdatedAt
		report.ConfirmedAt = &at
	case payment.StatusCancelled:
		report.Message = "Pagamento cancelado"
	default:
		report.Message = "Pagamento não aprovado"
		if tx.FailureReason != nil {
			report.Message = *tx.FailureReason
		}
	}
	return report
}

// Reconcile applies the provider's answer to a pending transaction. It
// reports whether this call changed the status; terminal transactions and
// lost races are no-ops.
func (m *Monitor) Reconcile(ctx context.Context, transactionID string) (bool, error) {
	tx, err := m.repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return false, err
	}
	changed, _, err := m.reconcile(ctx, tx)
	return changed, err
}

func (m *Monitor) reconcile(ctx context.Context, tx *payment.Transaction) (bool, payment.Status, error) {
	if tx.Status.IsTerminal() {
		return false, tx.Status, nil
	}
	m.checked.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(tx.PaymentMethod))))

	st, err := m.settler.Settle(ctx, tx)
	if err != nil {
		return false, payment.StatusPending, fmt.Errorf("settle %s: %w", tx.TransactionID, err)
	}

	switch st.Status {
	case payment.StatusApproved:
		return m.transition(ctx, tx, transaction.Transition{
			TransactionID:    tx.TransactionID,
			To:               payment.StatusApproved,
			NotificationType: payment.NotificationApproved,
			Message:          st.Message,
		})
	case payment.StatusFailed, payment.StatusCancelled:
		return m.transition(ctx, tx, transaction.Transition{
			TransactionID:    tx.TransactionID,
			To:               payment.StatusFailed,
			NotificationType: payment.NotificationFailed,
			Message:          st.Message,
			FailureCategory:  string(gateway.FailureDeclined),
			FailureReason:    st.Message,
		})
	}
	return false, payment.StatusPending, nil
}

// transition performs t and reports the status the transaction ended up in,
// which is someone else's when the race was lost.
func (m *Monitor) transition(ctx context.Context, tx *payment.Transaction, t transaction.Transition) (bool, payment.Status, error) {
	t.At = m.now()
	changed, err := m.repo.Transition(ctx, t)
	if err != nil {
		return false, payment.StatusPending, fmt.Errorf("transition %s: %w", tx.TransactionID, err)
	}
	if !changed {
		current, err := m.repo.GetByTransactionID(ctx, tx.TransactionID)
		if err != nil {
			return false, payment.StatusPending, err
		}
		m.logger.Info("transaction already handled", "transaction_id", tx.TransactionID, "status", current.Status)
		return false, current.Status, nil
	}

	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", string(tx.PaymentMethod)),
		attribute.String("outcome", string(t.NotificationType)),
	))
	m.logger.Info("transaction reconciled",
		"transaction_id", tx.TransactionID,
		"status", t.To,
		"notification", t.NotificationType)
	m.publish(ctx, tx, t)
	return true, t.To, nil
}

func (m *Monitor) publish(ctx context.Context, tx *payment.Transaction, t transaction.Transition) {
	if m.publisher == nil {
		return
	}
	amount := tx.Amount.StringFixed(2)
	var ev events.Event
	if t.To == payment.StatusApproved {
		ev = events.NewPaymentApprovedEvent(tx.TransactionID, tx.OrderID, string(tx.PaymentMethod), amount, t.At)
	} else {
		ev = events.NewPaymentFailedEvent(tx.TransactionID, tx.OrderID, string(tx.PaymentMethod), amount, string(t.To), t.Message, t.At)
	}
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.logger.Error("failed to publish payment event", "transaction_id", tx.TransactionID, "error", err)
	}
}

// Sweep reconciles every pending transaction, oldest first, a page of
// batchSize at a time, and fails the ones past their deadline. A provider
// error on one transaction does not stop the sweep.
func (m *Monitor) Sweep(ctx context.Context) (*SweepSummary, error) {
	summary := &SweepSummary{}
	cursor := transaction.PendingCursor{}
	for {
		page, err := m.repo.ListPending(ctx, cursor, m.batchSize)
		if err != nil {
			return summary, fmt.Errorf("list pending transactions: %w", err)
		}
		for _, tx := range page {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			if err := m.sweepOne(ctx, tx, summary); err != nil {
				return summary, err
			}
		}
		if len(page) < m.batchSize {
			break
		}
		cursor = transaction.After(page[len(page)-1])
	}

	m.logger.Info("reconciliation sweep finished",
		"total_checked", summary.TotalChecked,
		"approved", summary.Approved,
		"still_pending", summary.StillPending,
		"failed", summary.Failed)
	return summary, nil
}

func (m *Monitor) sweepOne(ctx context.Context, tx *payment.Transaction, summary *SweepSummary) error {
	summary.TotalChecked++

	_, status, err := m.reconcile(ctx, tx)
	if err != nil {
		m.logger.Warn("reconcile failed", "transaction_id", tx.TransactionID, "error", err)
		status = payment.StatusPending
	}
	if status == payment.StatusPending && Expired(tx, m.now()) {
		_, status, err = m.transition(ctx, tx, transaction.Transition{
			TransactionID:    tx.TransactionID,
			To:               payment.StatusFailed,
			NotificationType: payment.NotificationExpired,
			Message:          ExpiredMessage,
			FailureCategory:  ExpiredCategory,
			FailureReason:    ExpiredMessage,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			m.logger.Error("failed to expire transaction", "transaction_id", tx.TransactionID, "error", err)
			status = payment.StatusPending
		}
	}

	switch status {
	case payment.StatusApproved:
		summary.Approved++
	case payment.StatusPending:
		summary.StillPending++
	default:
		summary.Failed++
	}
	return nil
}

// Run sweeps every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("reconciliation monitor started", "interval", interval, "batch_size", m.batchSize)
	for {
		if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("reconciliation sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			m.logger.Info("reconciliation monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}
