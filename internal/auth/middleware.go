package auth

import (
	"net/http"

	apperrors "github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/transport"
	"github.com/frahmantamala/estore-payments/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Validator TokenValidator
}

func NewHandler(baseHandler *transport.BaseHandler, validator TokenValidator) *Handler {
	return &Handler{BaseHandler: baseHandler, Validator: validator}
}

// RequireAdmin rejects requests without a valid admin bearer token and puts
// the token subject on the context.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.HandleServiceError(w, apperrors.NewUnauthorizedError("Missing authorization token", apperrors.ErrCodeInvalidToken))
			return
		}

		claims, err := h.Validator.ValidateAdminToken(token)
		if err != nil {
			h.Logger.Warn("admin token rejected", "error", err, "path", r.URL.Path)
			h.HandleServiceError(w, err)
			return
		}

		ctx := apperrors.ContextWithSubject(r.Context(), claims.Subject)
		ctx = logger.With(ctx, "admin", claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
