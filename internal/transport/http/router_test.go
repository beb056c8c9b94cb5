package httptransport_test

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	httptransport "bloodtrace/internal/transport/http"
	"bloodtrace/pkg/platform/httputil"
	"bloodtrace/pkg/requestcontext"
	"bloodtrace/pkg/testutil"
)

type echoRegistrar struct{}

func (echoRegistrar) Register(r chi.Router) {
	r.Get("/echo", func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"request_id": requestcontext.RequestID(req.Context()),
			"identity":   requestcontext.Identity(req.Context()).String(),
		})
	})
}

func TestRouterStampsRequestIDAndIdentity(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	router := httptransport.NewRouter(httptransport.Options{
		Logger:   logger,
		Identity: "0x0000000000000000000000000000000000001ab0",
	}, echoRegistrar{})

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/echo", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	body := testutil.UnmarshalResponse[map[string]string](t, rr)
	require.NotEmpty(t, (*body)["request_id"])
	require.Equal(t, "0x0000000000000000000000000000000000001ab0", (*body)["identity"])
}

func TestHealthzReflectsLedgerReachability(t *testing.T) {
	healthy := httptransport.NewRouter(httptransport.Options{
		Health: func(r *http.Request) error { return nil },
	})
	rr := testutil.DoRequest(healthy, testutil.NewJSONRequest(t, http.MethodGet, "/healthz", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	degraded := httptransport.NewRouter(httptransport.Options{
		Health: func(r *http.Request) error { return errors.New("node unreachable") },
	})
	rr = testutil.DoRequest(degraded, testutil.NewJSONRequest(t, http.MethodGet, "/healthz", nil))
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
}

func TestMetricsEndpointMounted(t *testing.T) {
	router := httptransport.NewRouter(httptransport.Options{})
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
