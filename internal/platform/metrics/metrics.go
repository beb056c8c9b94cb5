package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ledger interaction and marketplace flow.
// All methods are nil-safe so components can run without metrics in tests.
type Metrics struct {
	// Ledger call latencies by method and outcome.
	LedgerCallDuration *prometheus.HistogramVec

	// Event scan chunks fetched, by contract.
	ScanChunks *prometheus.CounterVec

	// Chunk halvings forced by the remote range ceiling.
	ScanRangeSplits prometheus.Counter

	// Marketplace action outcomes by action and result.
	MarketActions *prometheus.CounterVec

	// Provenance traces whose folded owner disagreed with the live query.
	TraceIntegrityMismatches prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		LedgerCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bloodtrace_ledger_call_duration_seconds",
			Help:    "Duration of remote ledger calls by method and outcome",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "outcome"}),

		ScanChunks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodtrace_scan_chunks_total",
			Help: "Total chunked event-range fetches by contract",
		}, []string{"contract"}),

		ScanRangeSplits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bloodtrace_scan_range_splits_total",
			Help: "Chunk halvings caused by the remote per-call range ceiling",
		}),

		MarketActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodtrace_market_actions_total",
			Help: "Marketplace actions by action and result",
		}, []string{"action", "result"}),

		TraceIntegrityMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bloodtrace_trace_integrity_mismatches_total",
			Help: "Provenance traces whose computed owner diverged from the live ownership query",
		}),
	}
}

// ObserveLedgerCall records the duration of one remote ledger interaction.
func (m *Metrics) ObserveLedgerCall(method, outcome string, d time.Duration) {
	if m != nil {
		m.LedgerCallDuration.WithLabelValues(method, outcome).Observe(d.Seconds())
	}
}

// IncrementScanChunk records one chunked fetch against a contract.
func (m *Metrics) IncrementScanChunk(contract string) {
	if m != nil {
		m.ScanChunks.WithLabelValues(contract).Inc()
	}
}

// IncrementRangeSplit records a chunk halving forced by the remote ceiling.
func (m *Metrics) IncrementRangeSplit() {
	if m != nil {
		m.ScanRangeSplits.Inc()
	}
}

// IncrementMarketAction records a marketplace action outcome.
func (m *Metrics) IncrementMarketAction(action, result string) {
	if m != nil {
		m.MarketActions.WithLabelValues(action, result).Inc()
	}
}

// IncrementIntegrityMismatch records a stale-provenance detection.
func (m *Metrics) IncrementIntegrityMismatch() {
	if m != nil {
		m.TraceIntegrityMismatches.Inc()
	}
}
