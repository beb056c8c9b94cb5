// Package handler exposes inventory projections over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bloodtrace/internal/inventory"
	"bloodtrace/pkg/domain"
	"bloodtrace/pkg/platform/httputil"
	"bloodtrace/pkg/requestcontext"
)

// Service defines the projections the handler needs.
type Service interface {
	Portfolio(ctx context.Context, owner domain.Address) (inventory.Portfolio, error)
	DonationsByDonor(ctx context.Context, donor domain.Address) ([]inventory.DonationRecord, error)
	ExtractionsByCenter(ctx context.Context, center domain.Address) ([]inventory.DonationRecord, error)
}

// Handler wires inventory endpoints to the projector.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an inventory handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts inventory endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/inventory/{address}", h.HandlePortfolio)
	r.Get("/inventory/{address}/donations", h.HandleDonations)
	r.Get("/inventory/{address}/extractions", h.HandleExtractions)
}

// HandlePortfolio handles GET /inventory/{address}.
func (h *Handler) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "portfolio", func(ctx context.Context, addr domain.Address) (any, error) {
		return h.service.Portfolio(ctx, addr)
	})
}

// HandleDonations handles GET /inventory/{address}/donations.
func (h *Handler) HandleDonations(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "donations", func(ctx context.Context, addr domain.Address) (any, error) {
		return h.service.DonationsByDonor(ctx, addr)
	})
}

// HandleExtractions handles GET /inventory/{address}/extractions.
func (h *Handler) HandleExtractions(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "extractions", func(ctx context.Context, addr domain.Address) (any, error) {
		return h.service.ExtractionsByCenter(ctx, addr)
	})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, view string, project func(context.Context, domain.Address) (any, error)) {
	ctx := r.Context()

	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := project(ctx, addr)
	if err != nil {
		h.logger.ErrorContext(ctx, "inventory projection failed",
			"request_id", requestcontext.RequestID(ctx),
			"view", view,
			"address", addr.Short(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
