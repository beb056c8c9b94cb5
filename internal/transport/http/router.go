// Package httptransport assembles the HTTP surface. Handlers live with
// their domains; this package only mounts them and the operational
// endpoints.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bloodtrace/internal/platform/middleware"
	"bloodtrace/pkg/domain"
	"bloodtrace/pkg/platform/httputil"
)

// Registrar mounts a domain's routes on the router.
type Registrar interface {
	Register(r chi.Router)
}

// Options carries cross-cutting wiring for the router.
type Options struct {
	Logger *slog.Logger
	// Identity is the server session identity mutating routes act for.
	// Zero leaves mutating routes rejecting with an authorization error.
	Identity domain.Address
	// Health reports readiness of the ledger connection.
	Health func(r *http.Request) error
}

// NewRouter builds the service router and mounts every registrar.
func NewRouter(opts Options, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.Logger != nil {
		r.Use(middleware.Logging(opts.Logger))
	}
	if !opts.Identity.IsZero() {
		r.Use(middleware.SessionIdentity(opts.Identity))
	}

	r.Get("/healthz", healthHandler(opts.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, reg := range registrars {
		reg.Register(r)
	}
	return r
}

func healthHandler(health func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
