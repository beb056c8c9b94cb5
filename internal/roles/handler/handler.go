// Package handler exposes role classification over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bloodtrace/internal/roles"
	"bloodtrace/pkg/domain"
	"bloodtrace/pkg/platform/httputil"
	"bloodtrace/pkg/requestcontext"
)

// Service defines the classification operation the handler needs.
type Service interface {
	Resolve(ctx context.Context, addr domain.Address) (roles.Classification, error)
}

// Handler wires role endpoints to the resolver.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a roles handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts role endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/roles/{address}", h.HandleResolve)
}

// HandleResolve handles GET /roles/{address}.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	classification, err := h.service.Resolve(ctx, addr)
	if err != nil {
		h.logger.ErrorContext(ctx, "role resolution failed",
			"request_id", requestcontext.RequestID(ctx),
			"address", addr.Short(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, classification)
}
