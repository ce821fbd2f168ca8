package acquirer

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	chimiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/estore-payments/internal/gateway"
	"github.com/frahmantamala/estore-payments/internal/transport"
)

type chargeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Handler struct {
	*transport.BaseHandler
	sandbox *Sandbox
	apiKey  string
}

func NewHandler(base *transport.BaseHandler, sandbox *Sandbox, apiKey string) *Handler {
	return &Handler{BaseHandler: base, sandbox: sandbox, apiKey: apiKey}
}

// Routes mounts the charge API. An empty apiKey leaves it open.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(h.requireKey)

	r.Post("/v1/charges", h.CreateCharge)
	r.Get("/v1/charges/{id}", h.GetCharge)
	return r
}

func (h *Handler) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" {
			token := h.ExtractTokenFromHeader(r)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.apiKey)) != 1 {
				h.WriteJSON(w, http.StatusUnauthorized, chargeError{Code: "unauthorized", Message: "invalid api key"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	var req gateway.ChargeRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteJSON(w, http.StatusBadRequest, chargeError{Code: "invalid_request", Message: "malformed charge request"})
		return
	}

	charge, err := h.sandbox.CreateCharge(r.Context(), req)
	if err != nil {
		h.writeChargeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, charge)
}

func (h *Handler) GetCharge(w http.ResponseWriter, r *http.Request) {
	charge, err := h.sandbox.GetCharge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeChargeError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, charge)
}

func (h *Handler) writeChargeError(w http.ResponseWriter, err error) {
	var invalid *InvalidChargeError
	switch {
	case errors.As(err, &invalid):
		h.WriteJSON(w, http.StatusUnprocessableEntity, chargeError{Code: "invalid_charge", Message: invalid.Reason})
	case errors.Is(err, ErrChargeNotFound):
		h.WriteJSON(w, http.StatusNotFound, chargeError{Code: "not_found", Message: err.Error()})
	case errors.Is(err, ErrQueueFull):
		h.WriteJSON(w, http.StatusServiceUnavailable, chargeError{Code: "busy", Message: err.Error()})
	default:
		h.Logger.Error("charge request failed", "error", err)
		h.WriteJSON(w, http.StatusInternalServerError, chargeError{Code: "internal", Message: "internal error"})
	}
}
