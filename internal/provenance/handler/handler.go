// Package handler exposes provenance traces over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bloodtrace/internal/provenance"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
	"bloodtrace/pkg/platform/httputil"
	"bloodtrace/pkg/requestcontext"
)

// Service defines the trace operations the handler needs.
type Service interface {
	TraceUnit(ctx context.Context, class domain.TokenClass, unit domain.UnitID) (provenance.Trace, error)
	TraceDonationTree(ctx context.Context, donation domain.UnitID) (provenance.DonationTree, error)
}

// Handler wires trace endpoints to the provenance indexer.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a provenance handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts trace endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/trace/donation/{id}/tree", h.HandleTraceTree)
	r.Get("/trace/{class}/{id}", h.HandleTraceUnit)
}

// HandleTraceUnit handles GET /trace/{class}/{id}.
func (h *Handler) HandleTraceUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	class, err := domain.ParseTokenClass(chi.URLParam(r, "class"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	unit, err := domain.ParseUnitID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	trace, err := h.service.TraceUnit(ctx, class, unit)
	if err != nil {
		h.logger.ErrorContext(ctx, "trace failed",
			"request_id", requestcontext.RequestID(ctx),
			"class", class, "unit", unit,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "unit traced",
		"request_id", requestcontext.RequestID(ctx),
		"class", class, "unit", unit,
		"events", len(trace.Events),
		"warnings", len(trace.Warnings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, trace)
}

// HandleTraceTree handles GET /trace/donation/{id}/tree.
func (h *Handler) HandleTraceTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	unit, err := domain.ParseUnitID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "donation id"))
		return
	}

	tree, err := h.service.TraceDonationTree(ctx, unit)
	if err != nil {
		h.logger.ErrorContext(ctx, "donation tree trace failed",
			"request_id", requestcontext.RequestID(ctx),
			"donation", unit,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "donation tree traced",
		"request_id", requestcontext.RequestID(ctx),
		"donation", unit,
		"derivatives", len(tree.Derivatives),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, tree)
}
