package payment

import (
	"crypto/subtle"
	"net/http"

	errors "github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/transport"
)

const WebhookSecretHeader = "X-Webhook-Secret"

type WebhookHandler struct {
	*transport.BaseHandler
	paymentService ServiceAPI
	secret         string
}

// NewWebhookHandler refuses every callback when secret is empty.
func NewWebhookHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, secret string) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
		secret:         secret,
	}
}

type PaymentCallbackResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Changed       bool   `json:"changed"`
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	got := r.Header.Get(WebhookSecretHeader)
	if h.secret == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

// HandlePaymentCallback handles POST /api/v1/payments/webhook.
func (h *WebhookHandler) HandlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.Logger.Warn("payment callback rejected", "remote_addr", r.RemoteAddr)
		h.HandleServiceError(w, errors.ErrInvalidWebhookAuth)
		return
	}

	var req WebhookRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("received payment callback",
		"transaction_id", req.TransactionID,
		"status", req.Status,
		"gateway_reference", req.GatewayReference)

	changed, err := h.paymentService.HandleWebhook(r.Context(), req)
	if err != nil {
		h.Logger.Error("failed to process payment callback",
			"error", err,
			"transaction_id", req.TransactionID,
			"status", req.Status)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, PaymentCallbackResponse{
		Status:        "processed",
		TransactionID: req.TransactionID,
		Changed:       changed,
	})
}
