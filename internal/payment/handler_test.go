package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/estore-payments/internal/payment"
	"github.com/frahmantamala/estore-payments/internal/transport"
)

const webhookSecret = "s3cret"

type errorBody struct {
	Error struct {
		Type    string          `json:"type"`
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

var _ = Describe("Handler", func() {
	var (
		env    *testEnv
		router *chi.Mux
	)

	do := func(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	build := func(roll float64) {
		env = newTestEnv(roll)
		base := transport.NewBaseHandler(env.logger)
		h := paymentpkg.NewHandler(base, env.service, env.monitor)
		wh := paymentpkg.NewWebhookHandler(base, env.service, webhookSecret)

		router = chi.NewRouter()
		router.Post("/payments", h.ProcessPayment)
		router.Post("/payments/webhook", wh.HandlePaymentCallback)
		router.Get("/payments/{transaction_id}", h.GetPayment)
		router.Get("/payments/{transaction_id}/status", h.CheckStatus)
		router.Get("/payments/{transaction_id}/notifications", h.ListNotifications)
		router.Get("/orders/{order_id}/payments", h.ListOrderPayments)
		router.Post("/admin/payments/{transaction_id}/reconcile", h.Reconcile)
		router.Patch("/admin/payments/{transaction_id}/status", h.OverrideStatus)
		router.Post("/admin/reconciliation/sweep", h.Sweep)
		router.Get("/admin/payments/stats", h.Stats)
	}

	AfterEach(func() {
		env.close()
	})

	Context("with an approving gateway", func() {
		BeforeEach(func() { build(0.1) })

		It("creates a PIX payment", func() {
			rec := do(http.MethodPost, "/payments", map[string]interface{}{
				"order_id":       1,
				"payment_method": "pix",
				"amount":         "150.00",
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var res paymentpkg.Result
			Expect(json.Unmarshal(rec.Body.Bytes(), &res)).To(Succeed())
			Expect(res.Status).To(Equal(payment.StatusPending))
			Expect(res.Pix.QRCode).NotTo(BeEmpty())

			rec = do(http.MethodGet, "/payments/"+res.TransactionID, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"payment_method_label":"PIX"`))

			rec = do(http.MethodGet, "/payments/"+res.TransactionID+"/status", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"status":"pending"`))
		})

		It("answers 400 with the failing field for a short CVV", func() {
			rec := do(http.MethodPost, "/payments", map[string]interface{}{
				"order_id":       2,
				"payment_method": "credit_card",
				"amount":         "200.00",
				"card": map[string]string{
					"number":      "4111111111111111",
					"holder_name": "Maria Silva",
					"expiry":      "12/30",
					"cvv":         "12",
				},
			})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))

			var body errorBody
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Error.Code).To(Equal("VALIDATION_FAILED"))
			Expect(string(body.Error.Details)).To(ContainSubstring(`"field":"card.cvv"`))
			Expect(string(body.Error.Details)).To(ContainSubstring(`"code":"INVALID_CVV"`))
		})

		It("rejects unknown fields", func() {
			rec := do(http.MethodPost, "/payments", map[string]interface{}{"order_id": 1, "coupon": "X"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("lists payments of an order", func() {
			Expect(do(http.MethodPost, "/payments", map[string]interface{}{
				"order_id": 3, "payment_method": "boleto", "amount": "75.00",
			}).Code).To(Equal(http.StatusCreated))

			rec := do(http.MethodGet, "/orders/3/payments", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"boleto_number"`))

			Expect(do(http.MethodGet, "/orders/abc/payments", nil).Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for unknown transactions", func() {
			rec := do(http.MethodGet, "/payments/NOPE", nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))

			var body errorBody
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Error.Code).To(Equal("TRANSACTION_NOT_FOUND"))
		})

		It("reconciles, overrides and sweeps for admins", func() {
			first, err := env.service.Process(context.Background(), pixRequest(4, "20.00"))
			Expect(err).NotTo(HaveOccurred())
			second, err := env.service.Process(context.Background(), pixRequest(4, "25.00"))
			Expect(err).NotTo(HaveOccurred())

			rec := do(http.MethodPost, "/admin/payments/"+first.TransactionID+"/reconcile", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"changed":false`))

			rec = do(http.MethodPatch, "/admin/payments/"+first.TransactionID+"/status", map[string]string{"status": "cancelled"})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"status":"cancelled"`))

			rec = do(http.MethodPatch, "/admin/payments/"+first.TransactionID+"/status", map[string]string{"status": "approved"})
			Expect(rec.Code).To(Equal(http.StatusConflict))

			env.settler.set(payment.StatusApproved)
			rec = do(http.MethodPost, "/admin/reconciliation/sweep", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"total_checked":1,"approved":1,"still_pending":0,"failed":0}`))

			rec = do(http.MethodGet, "/payments/"+second.TransactionID+"/notifications", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"notification_type":"payment_approved"`))

			rec = do(http.MethodGet, "/admin/payments/stats", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"cancelled":1`))

			Expect(do(http.MethodGet, "/admin/payments/stats?since=yesterday", nil).Code).To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodGet, "/admin/payments/stats?days=-1", nil).Code).To(Equal(http.StatusBadRequest))
		})

		Describe("webhook", func() {
			It("requires the shared secret", func() {
				rec := do(http.MethodPost, "/payments/webhook", map[string]string{"transaction_id": "X", "status": "approved"})
				Expect(rec.Code).To(Equal(http.StatusUnauthorized))

				rec = do(http.MethodPost, "/payments/webhook", map[string]string{"transaction_id": "X", "status": "approved"},
					paymentpkg.WebhookSecretHeader, "wrong")
				Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			})

			It("approves a pending payment the provider confirms", func() {
				res, err := env.service.Process(context.Background(), pixRequest(5, "40.00"))
				Expect(err).NotTo(HaveOccurred())
				env.settler.set(payment.StatusApproved)

				rec := do(http.MethodPost, "/payments/webhook",
					map[string]string{"transaction_id": res.TransactionID, "status": "approved"},
					paymentpkg.WebhookSecretHeader, webhookSecret)
				Expect(rec.Code).To(Equal(http.StatusOK))
				Expect(rec.Body.String()).To(ContainSubstring(`"changed":true`))
			})
		})
	})

	Context("with a declining gateway", func() {
		BeforeEach(func() { build(0.99) })

		It("answers 402 and still returns the transaction", func() {
			rec := do(http.MethodPost, "/payments", map[string]interface{}{
				"order_id":       6,
				"payment_method": "debit_card",
				"amount":         "50.00",
				"card": map[string]string{
					"number":      "5555555555554444",
					"holder_name": "João Souza",
					"expiry":      "10/29",
					"cvv":         "321",
				},
			})
			Expect(rec.Code).To(Equal(http.StatusPaymentRequired))

			var body errorBody
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Error.Type).To(Equal("PAYMENT_DECLINED"))

			var details paymentpkg.Result
			Expect(json.Unmarshal(body.Error.Details, &details)).To(Succeed())
			Expect(details.TransactionID).To(HavePrefix("DC"))
			Expect(details.Status).To(Equal(payment.StatusFailed))
			Expect(details.Card.Brand).To(Equal("Mastercard"))
		})
	})
})
