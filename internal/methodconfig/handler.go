package methodconfig

import (
	"context"
	"net/http"

	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	ListActive(ctx context.Context) ([]MethodView, error)
	ListAll(ctx context.Context) ([]AdminMethodView, error)
	Update(ctx context.Context, method payment.Method, req UpdateRequest) (*AdminMethodView, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// ListMethods serves the active methods to the storefront.
func (h *Handler) ListMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.Service.ListActive(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"payment_methods": methods})
}

func (h *Handler) ListAllMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.Service.ListAll(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"payment_methods": methods})
}

func (h *Handler) UpdateMethod(w http.ResponseWriter, r *http.Request) {
	method := payment.Method(chi.URLParam(r, "method"))

	var req UpdateRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	view, err := h.Service.Update(r.Context(), method, req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, view)
}
