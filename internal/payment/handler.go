package payment

import (
	"net/http"
	"strconv"
	"time"

	errors "github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/gateway"
	"github.com/frahmantamala/estore-payments/internal/transport"
	"github.com/go-chi/chi"
)

const declinedMessage = "Pagamento recusado. Tente outra forma de pagamento."

type Handler struct {
	*transport.BaseHandler
	Service    ServiceAPI
	Reconciler ReconcilerAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, reconciler ReconcilerAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Reconciler:  reconciler,
	}
}

// ProcessPayment handles POST /api/v1/payments. Declines answer 402 and
// gateway errors 502; both carry the persisted result in details.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	result, err := h.Service.Process(r.Context(), req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if result.Error != nil {
		switch gateway.FailureCategory(result.Error.Category) {
		case gateway.FailureDeclined:
			h.HandleServiceError(w, errors.NewDeclinedError(declinedMessage).WithDetails(result))
		default:
			h.HandleServiceError(w, errors.NewGatewayError(result.Message, nil).WithDetails(result))
		}
		return
	}
	h.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.GetTransaction(r.Context(), chi.URLParam(r, "transaction_id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, view)
}

// CheckStatus asks the provider without changing the transaction.
func (h *Handler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reconciler.CheckStatus(r.Context(), chi.URLParam(r, "transaction_id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transaction_id")
	ns, err := h.Service.Notifications(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_id": id,
		"notifications":  ns,
	})
}

func (h *Handler) ListOrderPayments(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil {
		h.HandleServiceError(w, errors.NewValidationFieldError("order_id", "order_id must be a number", errors.ErrCodeValidationFailed))
		return
	}
	views, err := h.Service.ListByOrder(r.Context(), orderID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"payments": views,
	})
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transaction_id")
	changed, err := h.Reconciler.Reconcile(r.Context(), id)
	if err != nil {
		if _, ok := errors.IsAppError(err); !ok {
			err = errors.NewGatewayError("Não foi possível consultar o provedor", err)
		}
		h.HandleServiceError(w, err)
		return
	}
	view, err := h.Service.GetTransaction(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"changed":     changed,
		"transaction": view,
	})
}

func (h *Handler) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	view, err := h.Service.Override(r.Context(), chi.URLParam(r, "transaction_id"), req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Reconciler.Sweep(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, summary)
}

// Stats accepts either since (RFC 3339) or days; without both it covers all
// transactions.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	q := r.URL.Query()
	switch {
	case q.Get("since") != "":
		t, err := time.Parse(time.RFC3339, q.Get("since"))
		if err != nil {
			h.HandleServiceError(w, errors.NewValidationFieldError("since", "since must be an RFC 3339 timestamp", errors.ErrCodeValidationFailed))
			return
		}
		since = t
	case q.Get("days") != "":
		days, err := strconv.Atoi(q.Get("days"))
		if err != nil || days <= 0 {
			h.HandleServiceError(w, errors.NewValidationFieldError("days", "days must be a positive number", errors.ErrCodeValidationFailed))
			return
		}
		since = time.Now().AddDate(0, 0, -days)
	}

	stats, err := h.Service.Stats(r.Context(), since)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, stats)
}
