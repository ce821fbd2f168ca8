package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/estore-payments/internal/auth"
	"github.com/frahmantamala/estore-payments/internal/methodconfig"
	"github.com/frahmantamala/estore-payments/internal/payment"
	"github.com/frahmantamala/estore-payments/internal/transport/middleware"
	"github.com/frahmantamala/estore-payments/internal/transport/swagger"
)

// Handlers groups everything the router mounts. Nil handlers are skipped.
type Handlers struct {
	Payment *payment.Handler
	Webhook *payment.WebhookHandler
	Methods *methodconfig.Handler
	Auth    *auth.Handler
	Health  *HealthHandler
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, specPath string, logger *slog.Logger) {
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// OpenAPI document and Swagger UI live outside the API prefix
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, specPath)
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.healthCheckHandler)
			r.Get("/ping", h.Health.pingHandler)
		}

		if h.Methods != nil {
			r.Get("/payment-methods", h.Methods.ListMethods)
		}

		if h.Webhook != nil {
			r.Post("/payments/webhook", h.Webhook.HandlePaymentCallback)
		}

		if h.Payment != nil {
			r.Post("/payments", h.Payment.ProcessPayment)
			r.Route("/payments/{transaction_id}", func(pr chi.Router) {
				pr.Get("/", h.Payment.GetPayment)
				pr.Get("/status", h.Payment.CheckStatus)
				pr.Get("/notifications", h.Payment.ListNotifications)
			})
			r.Get("/orders/{order_id}/payments", h.Payment.ListOrderPayments)
		}

		if h.Auth == nil {
			return
		}
		r.Route("/admin", func(ar chi.Router) {
			ar.Use(h.Auth.RequireAdmin)

			if h.Payment != nil {
				ar.Post("/payments/{transaction_id}/reconcile", h.Payment.Reconcile)
				ar.Patch("/payments/{transaction_id}/status", h.Payment.OverrideStatus)
				ar.Post("/reconciliation/sweep", h.Payment.Sweep)
				ar.Get("/payments/stats", h.Payment.Stats)
			}
			if h.Methods != nil {
				ar.Get("/payment-methods", h.Methods.ListAllMethods)
				ar.Put("/payment-methods/{method}", h.Methods.UpdateMethod)
			}
		})
	})
}

// NewRouter builds a chi router with every route registered.
func NewRouter(h Handlers, specPath string, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()
	RegisterAllRoutes(router, h, specPath, logger)
	return router
}
