// Package handler exposes marketplace operations over HTTP. Mutating
// routes act for the identity the server session was established with;
// the ledger re-checks every authorization authoritatively.
package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bloodtrace/internal/ledger"
	"bloodtrace/internal/market"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
	"bloodtrace/pkg/platform/httputil"
	"bloodtrace/pkg/requestcontext"
)

// Service defines the marketplace operations the handler needs.
type Service interface {
	OnSale(ctx context.Context, class domain.TokenClass) ([]market.Offer, error)
	List(ctx context.Context, seller domain.Address, class domain.TokenClass, unit domain.UnitID, price *big.Int) (ledger.Receipt, error)
	Purchase(ctx context.Context, buyer domain.Address, class domain.TokenClass, unit domain.UnitID, price *big.Int) (ledger.Receipt, error)
	Cancel(ctx context.Context, caller domain.Address, class domain.TokenClass, unit domain.UnitID) (ledger.Receipt, error)
}

// Handler wires marketplace endpoints to the coordinator.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a market handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts marketplace endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/market/{class}/listings", h.HandleOnSale)
	r.Post("/market/{class}/{id}/listing", h.HandleList)
	r.Post("/market/{class}/{id}/purchase", h.HandlePurchase)
	r.Delete("/market/{class}/{id}/listing", h.HandleCancel)
}

// ListRequest is the body for POST /market/{class}/{id}/listing.
type ListRequest struct {
	Price string `json:"price"`
}

// PurchaseRequest is the body for POST /market/{class}/{id}/purchase.
// Price is the listing price the buyer agreed to; a listing that has
// since changed price is refused rather than paid.
type PurchaseRequest struct {
	Price string `json:"price"`
}

// ReceiptResponse reports the transaction that carried out an operation.
type ReceiptResponse struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// HandleOnSale handles GET /market/{class}/listings.
func (h *Handler) HandleOnSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	class, err := domain.ParseTokenClass(chi.URLParam(r, "class"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	offers, err := h.service.OnSale(ctx, class)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing view failed",
			"request_id", requestcontext.RequestID(ctx),
			"class", class,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, offers)
}

// HandleList handles POST /market/{class}/{id}/listing.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	identity, ok := h.identity(w, ctx)
	if !ok {
		return
	}
	class, unit, ok := h.target(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[ListRequest](w, r)
	if !ok {
		return
	}
	price, valid := new(big.Int).SetString(req.Price, 10)
	if !valid {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "malformed price %q", req.Price))
		return
	}

	receipt, err := h.service.List(ctx, identity, class, unit, price)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing failed",
			"request_id", requestcontext.RequestID(ctx),
			"class", class, "unit", unit, "seller", identity.Short(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "unit listed",
		"request_id", requestcontext.RequestID(ctx),
		"class", class, "unit", unit, "seller", identity.Short(),
		"tx_hash", receipt.TxHash,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, ReceiptResponse{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
	})
}

// HandlePurchase handles POST /market/{class}/{id}/purchase.
func (h *Handler) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	identity, ok := h.identity(w, ctx)
	if !ok {
		return
	}
	class, unit, ok := h.target(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[PurchaseRequest](w, r)
	if !ok {
		return
	}
	price, valid := new(big.Int).SetString(req.Price, 10)
	if !valid {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "malformed price %q", req.Price))
		return
	}

	receipt, err := h.service.Purchase(ctx, identity, class, unit, price)
	if err != nil {
		h.logger.ErrorContext(ctx, "purchase failed",
			"request_id", requestcontext.RequestID(ctx),
			"class", class, "unit", unit, "buyer", identity.Short(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "unit purchased",
		"request_id", requestcontext.RequestID(ctx),
		"class", class, "unit", unit, "buyer", identity.Short(),
		"tx_hash", receipt.TxHash,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, ReceiptResponse{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
	})
}

// HandleCancel handles DELETE /market/{class}/{id}/listing.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := h.identity(w, ctx)
	if !ok {
		return
	}
	class, unit, ok := h.target(w, r)
	if !ok {
		return
	}

	receipt, err := h.service.Cancel(ctx, identity, class, unit)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing cancellation failed",
			"request_id", requestcontext.RequestID(ctx),
			"class", class, "unit", unit, "caller", identity.Short(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ReceiptResponse{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
	})
}

func (h *Handler) identity(w http.ResponseWriter, ctx context.Context) (domain.Address, bool) {
	identity := requestcontext.Identity(ctx)
	if identity.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no session identity established"))
		return "", false
	}
	return identity, true
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (domain.TokenClass, domain.UnitID, bool) {
	class, err := domain.ParseTokenClass(chi.URLParam(r, "class"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", 0, false
	}
	unit, err := domain.ParseUnitID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", 0, false
	}
	return class, unit, true
}
