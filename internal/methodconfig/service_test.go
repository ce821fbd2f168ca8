package methodconfig_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/methodconfig"
	"github.com/frahmantamala/estore-payments/internal/methodconfig/postgres"
	"github.com/frahmantamala/estore-payments/internal/transport"
)

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		service *methodconfig.Service
		log     *slog.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&payment.MethodConfig{})).To(Succeed())

		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		service = methodconfig.NewService(postgres.NewMethodConfigRepository(db), log)

		n, err := service.Seed(ctx, methodconfig.DefaultDefinitions(), false)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(4))
	})

	AfterEach(func() {
		sqlDB, _ := db.DB()
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("Seed", func() {
		It("keeps existing methods unless asked to clear", func() {
			n, err := service.Seed(ctx, methodconfig.DefaultDefinitions(), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			n, err = service.Seed(ctx, methodconfig.DefaultDefinitions(), true)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(4))
		})

		It("reads definitions from YAML", func() {
			defs, err := methodconfig.LoadDefinitions(strings.NewReader(`
payment_methods:
  - method: pix
    processing_fee: 0
    min_amount: 0.01
    max_amount: 5000
    config:
      key: loja@example.com
      recipient: Loja Teste
  - method: boleto
    is_active: false
    processing_fee: 1.5
    min_amount: 10
    max_amount: 20000
`))
			Expect(err).NotTo(HaveOccurred())
			Expect(defs).To(HaveLen(2))

			_, err = service.Seed(ctx, defs, true)
			Expect(err).NotTo(HaveOccurred())

			st, err := service.Settings(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Pix.Key).To(Equal("loja@example.com"))
			Expect(st.Pix.Recipient).To(Equal("Loja Teste"))
			Expect(st.Boleto.Bank).To(BeEmpty())

			active, err := service.ListActive(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(HaveLen(1))
		})
	})

	Describe("Settings", func() {
		It("derives gateway settings from the stored configs", func() {
			st, err := service.Settings(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Pix.Key).To(BeEmpty())
			Expect(st.Pix.City).To(Equal("São Paulo"))
			Expect(st.Boleto.Bank).To(Equal("341"))
			Expect(st.Boleto.DueDays).To(Equal(3))
			Expect(st.Card.MerchantID).To(Equal("MERCHANT123"))
			Expect(st.Card.FeePercent.StringFixed(2)).To(Equal("2.99"))
			Expect(st.Card.FixedFee.StringFixed(2)).To(Equal("0.50"))
		})

		It("picks up an admin change immediately", func() {
			_, err := service.Settings(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Update(ctx, payment.MethodPIX, methodconfig.UpdateRequest{
				Config: map[string]any{"key": "12345678900", "recipient": "E-Store"},
			})
			Expect(err).NotTo(HaveOccurred())

			st, err := service.Settings(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Pix.Key).To(Equal("12345678900"))
		})
	})

	Describe("Update", func() {
		It("rejects a minimum above the maximum", func() {
			lo := decimal.NewFromInt(500)
			hi := decimal.NewFromInt(100)
			_, err := service.Update(ctx, payment.MethodCreditCard, methodconfig.UpdateRequest{MinAmount: &lo, MaxAmount: &hi})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidBounds))
		})

		It("returns not found for unknown methods", func() {
			_, err := service.Update(ctx, payment.Method("bitcoin"), methodconfig.UpdateRequest{})
			Expect(err).To(MatchError(internal.ErrMethodNotFound))
		})

		It("deactivates a method", func() {
			off := false
			view, err := service.Update(ctx, payment.MethodBoleto, methodconfig.UpdateRequest{IsActive: &off})
			Expect(err).NotTo(HaveOccurred())
			Expect(view.IsActive).To(BeFalse())

			active, err := service.ListActive(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(HaveLen(3))
		})
	})

	Describe("Handler", func() {
		var router *chi.Mux

		BeforeEach(func() {
			h := methodconfig.NewHandler(&transport.BaseHandler{Logger: log}, service)
			router = chi.NewRouter()
			router.Get("/payment-methods", h.ListMethods)
			router.Put("/admin/payment-methods/{method}", h.UpdateMethod)
		})

		It("lists active methods with labels", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payment-methods", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"label":"Cartão de Crédito"`))
		})

		It("updates a method", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPut, "/admin/payment-methods/debit_card", strings.NewReader(`{"processing_fee":"1.75"}`))
			router.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"processing_fee":"1.75"`))
		})

		It("rejects unknown fields", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPut, "/admin/payment-methods/pix", strings.NewReader(`{"fee":1}`))
			router.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
