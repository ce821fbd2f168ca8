package monitor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/core/events"
	"github.com/frahmantamala/estore-payments/internal/gateway"
	"github.com/frahmantamala/estore-payments/internal/monitor"
	"github.com/frahmantamala/estore-payments/internal/transaction"
	"github.com/frahmantamala/estore-payments/internal/transaction/postgres"
)

type stubSettler struct {
	status payment.Status
	err    error
	calls  atomic.Int32
}

func (s *stubSettler) Settle(context.Context, *payment.Transaction) (gateway.Settlement, error) {
	s.calls.Add(1)
	if s.err != nil {
		return gateway.Settlement{}, s.err
	}
	return gateway.Settlement{Status: s.status, Message: "status " + string(s.status)}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

var _ = Describe("Monitor", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		repo    transaction.RepositoryAPI
		settler *stubSettler
		pub     *recordingPublisher
		t0      time.Time
		now     time.Time
		mon     *monitor.Monitor
	)

	create := func(id string, method payment.Method, status payment.Status) {
		tx := &payment.Transaction{
			TransactionID: id,
			OrderID:       42,
			PaymentMethod: method,
			Amount:        decimal.RequireFromString("150.00"),
			Status:        status,
			GatewayName:   "simulator",
			CreatedAt:     t0,
			UpdatedAt:     t0,
		}
		Expect(repo.Create(ctx, tx)).To(Succeed())
	}

	notifications := func(id string) []*payment.Notification {
		ns, err := repo.ListNotifications(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return ns
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&payment.Transaction{}, &payment.Notification{})).To(Succeed())

		repo = postgres.NewTransactionRepository(db)
		settler = &stubSettler{status: payment.StatusPending}
		pub = &recordingPublisher{}
		t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		now = t0

		mon = monitor.New(repo, settler,
			monitor.WithClock(func() time.Time { return now }),
			monitor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			monitor.WithPublisher(pub),
		)
	})

	AfterEach(func() {
		sqlDB, _ := db.DB()
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("CheckStatus", func() {
		It("reports the provider's answer without touching the store", func() {
			create("PIX1", payment.MethodPIX, payment.StatusPending)
			settler.status = payment.StatusApproved

			report, err := mon.CheckStatus(ctx, "PIX1")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Status).To(Equal(payment.StatusApproved))
			Expect(report.ConfirmedAt).NotTo(BeNil())

			stored, err := repo.GetByTransactionID(ctx, "PIX1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(payment.StatusPending))
			Expect(notifications("PIX1")).To(BeEmpty())
		})

		It("answers terminal transactions from the store", func() {
			create("CC1", payment.MethodCreditCard, payment.StatusApproved)

			report, err := mon.CheckStatus(ctx, "CC1")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Status).To(Equal(payment.StatusApproved))
			Expect(settler.calls.Load()).To(BeZero())
		})

		It("stays pending when the provider cannot be reached", func() {
			create("BOL1", payment.MethodBoleto, payment.StatusPending)
			settler.err = errors.New("connection refused")

			report, err := mon.CheckStatus(ctx, "BOL1")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Status).To(Equal(payment.StatusPending))
		})

		It("returns not found for unknown ids", func() {
			_, err := mon.CheckStatus(ctx, "NOPE")
			Expect(err).To(MatchError(internal.ErrTransactionNotFound))
		})
	})

	Describe("Reconcile", func() {
		It("approves once and is a no-op afterwards", func() {
			create("PIX1", payment.MethodPIX, payment.StatusPending)
			settler.status = payment.StatusApproved

			changed, err := mon.Reconcile(ctx, "PIX1")
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())

			changed, err = mon.Reconcile(ctx, "PIX1")
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeFalse())

			stored, err := repo.GetByTransactionID(ctx, "PIX1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(payment.StatusApproved))

			ns := notifications("PIX1")
			Expect(ns).To(HaveLen(1))
			Expect(ns[0].NotificationType).To(Equal(payment.NotificationApproved))
			Expect(ns[0].Status).To(Equal("approved"))
			Expect(settler.calls.Load()).To(Equal(int32(1)))
			Expect(pub.types()).To(Equal([]string{events.EventTypePaymentApproved}))
		})

		It("fails the transaction when the provider rejected it", func() {
			create("BOL1", payment.MethodBoleto, payment.StatusPending)
			settler.status = payment.StatusFailed

			changed, err := mon.Reconcile(ctx, "BOL1")
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())

			ns := notifications("BOL1")
			Expect(ns).To(HaveLen(1))
			Expect(ns[0].NotificationType).To(Equal(payment.NotificationFailed))
			Expect(pub.types()).To(Equal([]string{events.EventTypePaymentFailed}))
		})

		It("leaves pending transactions alone while the provider waits", func() {
			create("PIX1", payment.MethodPIX, payment.StatusPending)

			changed, err := mon.Reconcile(ctx, "PIX1")
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeFalse())
			Expect(notifications("PIX1")).To(BeEmpty())
		})

		It("surfaces provider errors", func() {
			create("PIX1", payment.MethodPIX, payment.StatusPending)
			settler.err = errors.New("timeout")

			_, err := mon.Reconcile(ctx, "PIX1")
			Expect(err).To(MatchError(ContainSubstring("timeout")))
		})

		It("lets exactly one of many concurrent callers win", func() {
			create("PIX1", payment.MethodPIX, payment.StatusPending)
			settler.status = payment.StatusApproved

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					changed, err := mon.Reconcile(ctx, "PIX1")
					Expect(err).NotTo(HaveOccurred())
					if changed {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			Expect(wins.Load()).To(Equal(int32(1)))
			Expect(notifications("PIX1")).To(HaveLen(1))
		})
	})

	Describe("Sweep", func() {
		It("keeps a PIX pending just inside its window and expires it just after", func() {
			create("PIX1", payment.MethodPIX, payment.StatusPending)

			now = t0.Add(29*time.Minute + 59*time.Second)
			summary, err := mon.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(*summary).To(Equal(monitor.SweepSummary{TotalChecked: 1, StillPending: 1}))

			now = t0.Add(30*time.Minute + time.Second)
			summary, err = mon.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(*summary).To(Equal(monitor.SweepSummary{TotalChecked: 1, Failed: 1}))

			stored, err := repo.GetByTransactionID(ctx, "PIX1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(payment.StatusFailed))
			Expect(*stored.FailureCategory).To(Equal(monitor.ExpiredCategory))

			ns := notifications("PIX1")
			Expect(ns).To(HaveLen(1))
			Expect(ns[0].NotificationType).To(Equal(payment.NotificationExpired))
			Expect(ns[0].Message).To(Equal(monitor.ExpiredMessage))
		})

		It("gives boletos three days", func() {
			create("BOL1", payment.MethodBoleto, payment.StatusPending)

			now = t0.Add(71 * time.Hour)
			summary, err := mon.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.StillPending).To(Equal(1))

			now = t0.Add(72*time.Hour + time.Second)
			summary, err = mon.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Failed).To(Equal(1))
		})

		It("holds a boleto until a due date later than three days", func() {
			create("BOL1", payment.MethodBoleto, payment.StatusPending)
			due := t0.Add(10 * 24 * time.Hour)
			Expect(db.Model(&payment.Transaction{}).Where("transaction_id = ?", "BOL1").
				Update("boleto_due_date", due).Error).To(Succeed())

			now = t0.Add(4 * 24 * time.Hour)
			summary, err := mon.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(*summary).To(Equal(monitor.SweepSummary{TotalChecked: 1, StillPending: 1}))

			now = due.Add(time.Second)
			summary, err = mon.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(*summary).To(Equal(monitor.SweepSummary{TotalChecked: 1, Failed: 1}))
		})

		It("reaches every pending row when there are more than one batch", func() {
			mon = monitor.New(repo, settler,
				monitor.WithClock(func() time.Time { return now }),
				monitor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
				monitor.WithBatchSize(2),
			)
			create("BOL1", payment.MethodBoleto, payment.StatusPending)
			create("BOL2", payment.MethodBoleto, payment.StatusPending)
			late := &payment.Transaction{
				TransactionID: "PIX1",
				OrderID:       43,
				PaymentMethod: payment.MethodPIX,
				Amount:        decimal.RequireFromString("30.00"),
				Status:        payment.StatusPending,
				GatewayName:   "simulator",
				CreatedAt:     t0.Add(time.Minute),
				UpdatedAt:     t0.Add(time.Minute),
			}
			Expect(repo.Create(ctx, late)).To(Succeed())

			now = t0.Add(time.Hour)
			summary, err := mon.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(*summary).To(Equal(monitor.SweepSummary{TotalChecked: 3, StillPending: 2, Failed: 1}))

			stored, err := repo.GetByTransactionID(ctx, "PIX1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(payment.StatusFailed))
		})

		It("stops after a page that exactly fills the batch", func() {
			mon = monitor.New(repo, settler,
				monitor.WithClock(func() time.Time { return now }),
				monitor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
				monitor.WithBatchSize(2),
			)
			create("PIX1", payment.MethodPIX, payment.StatusPending)
			create("PIX2", payment.MethodPIX, payment.StatusPending)

			summary, err := mon.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TotalChecked).To(Equal(2))
			Expect(settler.calls.Load()).To(Equal(int32(2)))
		})

		It("approves what the provider confirmed and skips terminal rows", func() {
			create("PIX1", payment.MethodPIX, payment.StatusPending)
			create("BOL1", payment.MethodBoleto, payment.StatusPending)
			create("CC1", payment.MethodCreditCard, payment.StatusApproved)
			settler.status = payment.StatusApproved

			summary, err := mon.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(*summary).To(Equal(monitor.SweepSummary{TotalChecked: 2, Approved: 2}))

			summary, err = mon.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TotalChecked).To(BeZero())
		})

		It("still expires transactions whose provider is unreachable", func() {
			create("PIX1", payment.MethodPIX, payment.StatusPending)
			settler.err = errors.New("connection reset")
			now = t0.Add(time.Hour)

			summary, err := mon.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Failed).To(Equal(1))
		})

		It("counts checks and transitions", func() {
			reader := sdkmetric.NewManualReader()
			provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			mon = monitor.New(repo, settler,
				monitor.WithClock(func() time.Time { return now }),
				monitor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
				monitor.WithMeter(provider.Meter("test")),
			)
			create("PIX1", payment.MethodPIX, payment.StatusPending)
			create("PIX2", payment.MethodPIX, payment.StatusPending)
			settler.status = payment.StatusApproved

			_, err := mon.Sweep(ctx)
			Expect(err).NotTo(HaveOccurred())

			var rm metricdata.ResourceMetrics
			Expect(reader.Collect(ctx, &rm)).To(Succeed())
			totals := map[string]int64{}
			for _, sm := range rm.ScopeMetrics {
				for _, m := range sm.Metrics {
					if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
						for _, dp := range sum.DataPoints {
							totals[m.Name] += dp.Value
						}
					}
				}
			}
			Expect(totals).To(HaveKeyWithValue("reconcile.checked", int64(2)))
			Expect(totals).To(HaveKeyWithValue("reconcile.transitions", int64(2)))
		})
	})

	Describe("Window", func() {
		DescribeTable("per method",
			func(method payment.Method, window time.Duration, expires bool) {
				got, ok := monitor.Window(method)
				Expect(ok).To(Equal(expires))
				Expect(got).To(Equal(window))
			},
			Entry("pix", payment.MethodPIX, 30*time.Minute, true),
			Entry("boleto", payment.MethodBoleto, 72*time.Hour, true),
			Entry("credit card", payment.MethodCreditCard, time.Duration(0), false),
			Entry("debit card", payment.MethodDebitCard, time.Duration(0), false),
		)
	})

	Describe("Run", func() {
		It("sweeps until cancelled", func() {
			create("PIX1", payment.MethodPIX, payment.StatusPending)
			settler.status = payment.StatusApproved

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- mon.Run(runCtx, 10*time.Millisecond) }()

			Eventually(func() payment.Status {
				tx, err := repo.GetByTransactionID(ctx, "PIX1")
				if err != nil {
					return ""
				}
				return tx.Status
			}).Should(Equal(payment.StatusApproved))

			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
