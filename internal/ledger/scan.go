package ledger

import (
	"context"
	"log/slog"

	"bloodtrace/internal/platform/metrics"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
)

// Scanner is the single chunked block-range scan used by every component
// that reads the event log. The remote service enforces a hard per-call
// range ceiling, so wide scans must be chunked; duplicating that loop at
// call sites is exactly the copy-paste bug class this type exists to remove.
type Scanner struct {
	gw       Gateway
	chunk    uint64
	lookback uint64
	deployed uint64
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithChunkSize sets the initial block span per fetch.
func WithChunkSize(n uint64) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.chunk = n
		}
	}
}

// WithLookback caps how far behind the head a scan may start. Zero disables
// the cap, which is only safe on small private networks.
func WithLookback(n uint64) ScannerOption {
	return func(s *Scanner) { s.lookback = n }
}

// WithDeploymentBlock floors every scan at the block the contracts were
// deployed in. Nothing of interest can exist earlier, so blocks below it
// are never walked.
func WithDeploymentBlock(n uint64) ScannerOption {
	return func(s *Scanner) { s.deployed = n }
}

// WithScanMetrics attaches scan instrumentation.
func WithScanMetrics(m *metrics.Metrics) ScannerOption {
	return func(s *Scanner) { s.metrics = m }
}

// WithScanLogger attaches a logger for chunk-level diagnostics.
func WithScanLogger(l *slog.Logger) ScannerOption {
	return func(s *Scanner) { s.logger = l }
}

// NewScanner creates a Scanner over the given gateway.
func NewScanner(gw Gateway, opts ...ScannerOption) *Scanner {
	s := &Scanner{gw: gw, chunk: 5000}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan fetches every matching event from fromBlock to the current head, in
// canonical order. The scan respects the configured lookback ceiling:
// requests reaching further back are clamped, bounding worst-case latency.
func (s *Scanner) Scan(ctx context.Context, contract domain.Address, filter EventFilter, fromBlock uint64) ([]RawEvent, error) {
	head, err := s.gw.Height(ctx)
	if err != nil {
		return nil, err
	}

	lo := fromBlock
	if s.lookback > 0 && head >= s.lookback && head-s.lookback+1 > lo {
		lo = head - s.lookback + 1
		if s.logger != nil {
			s.logger.DebugContext(ctx, "scan clamped to lookback ceiling",
				"contract", contract, "from", fromBlock, "clamped_from", lo)
		}
	}

	return s.scanBounded(ctx, contract, filter, lo, head)
}

// ScanRange is Scan with an explicit upper bound, used when a caller only
// needs history up to a known block (e.g. a derivative minted at a known
// processing block).
func (s *Scanner) ScanRange(ctx context.Context, contract domain.Address, filter EventFilter, fromBlock, toBlock uint64) ([]RawEvent, error) {
	head, err := s.gw.Height(ctx)
	if err != nil {
		return nil, err
	}
	if toBlock > head {
		toBlock = head
	}
	return s.scanBounded(ctx, contract, filter, fromBlock, toBlock)
}

// scanBounded walks [lo, hi] in chunks. The remote range ceiling is absorbed
// by halving the chunk and retrying; CodeRangeTooLarge never escapes.
func (s *Scanner) scanBounded(ctx context.Context, contract domain.Address, filter EventFilter, lo, hi uint64) ([]RawEvent, error) {
	if lo < s.deployed {
		lo = s.deployed
	}
	if lo > hi {
		return nil, nil
	}

	var all []RawEvent
	step := s.chunk
	for cursor := lo; cursor <= hi; {
		if err := ctx.Err(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "event scan cancelled")
		}

		upper := cursor + step - 1
		if upper > hi || upper < cursor {
			upper = hi
		}

		batch, err := s.gw.Events(ctx, contract, filter, cursor, upper)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeRangeTooLarge) && step > 1 {
				step /= 2
				s.metrics.IncrementRangeSplit()
				continue
			}
			return nil, err
		}

		s.metrics.IncrementScanChunk(contract.String())
		all = append(all, batch...)
		cursor = upper + 1
	}

	SortEvents(all)
	return all, nil
}
