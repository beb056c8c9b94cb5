package provenance

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"bloodtrace/internal/contracts"
	"bloodtrace/internal/ledger"
	"bloodtrace/internal/platform/metrics"
	"bloodtrace/internal/platform/redis"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
)

// maxConcurrentTraces bounds the fan-out when tracing a donation tree.
const maxConcurrentTraces = 4

// Indexer rebuilds unit histories from the event log on demand. It holds
// no authoritative state: every trace is derived from ledger events and
// live contract queries at request time.
type Indexer struct {
	tracker    *contracts.Tracker
	donation   *contracts.UnitToken
	derivative *contracts.UnitToken
	scanner    *ledger.Scanner

	cache   *traceCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Indexer) { i.logger = l }
}

// WithMetrics attaches trace instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Indexer) { i.metrics = m }
}

// WithCache enables advisory caching of computed traces. A nil client
// leaves caching off.
func WithCache(client *redis.Client, ttl time.Duration) Option {
	return func(i *Indexer) {
		if client != nil {
			i.cache = &traceCache{client: client, ttl: ttl, logger: i.logger}
		}
	}
}

// NewIndexer creates an Indexer over the given contract bindings.
func NewIndexer(tracker *contracts.Tracker, donation, derivative *contracts.UnitToken, scanner *ledger.Scanner, opts ...Option) *Indexer {
	i := &Indexer{
		tracker:    tracker,
		donation:   donation,
		derivative: derivative,
		scanner:    scanner,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.cache != nil {
		i.cache.logger = i.logger
	}
	return i
}

// TraceUnit reconstructs the full history of one unit. The first event of
// every valid trace is a creation (mint); a unit with transfer history but
// no creation event indicates a gap in the scanned log and is reported as
// an integrity error rather than a partial trace.
func (i *Indexer) TraceUnit(ctx context.Context, class domain.TokenClass, unit domain.UnitID) (Trace, error) {
	key := traceKey(class, unit)
	if cached, ok := i.cache.getTrace(ctx, key); ok {
		return cached, nil
	}

	token, err := i.token(class)
	if err != nil {
		return Trace{}, err
	}

	trace, err := i.buildTrace(ctx, token, class, unit)
	if err != nil {
		return Trace{}, err
	}

	i.cache.put(ctx, key, trace)
	return trace, nil
}

// TraceDonationTree reconstructs a donation's history together with every
// derivative produced from it. Derivative traces are built concurrently.
func (i *Indexer) TraceDonationTree(ctx context.Context, donation domain.UnitID) (DonationTree, error) {
	key := treeKey(donation)
	if cached, ok := i.cache.getTree(ctx, key); ok {
		return cached, nil
	}

	root, err := i.TraceUnit(ctx, domain.TokenClassDonation, donation)
	if err != nil {
		return DonationTree{}, err
	}

	tree := DonationTree{
		Donation:    root,
		Derivatives: make([]Trace, len(root.Derivatives)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTraces)
	for idx, id := range root.Derivatives {
		g.Go(func() error {
			t, err := i.TraceUnit(gctx, domain.TokenClassDerivative, id)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeOf(err), fmt.Sprintf("trace derivative %s", id))
			}
			tree.Derivatives[idx] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DonationTree{}, err
	}

	i.cache.put(ctx, key, tree)
	return tree, nil
}

// Invalidate drops cached traces touching the given unit after a mutation.
// For derivatives the origin donation's tree is dropped too, since it
// embeds the derivative's trace.
func (i *Indexer) Invalidate(ctx context.Context, class domain.TokenClass, unit domain.UnitID) {
	if i.cache == nil {
		return
	}
	keys := []string{traceKey(class, unit)}
	switch class {
	case domain.TokenClassDonation:
		keys = append(keys, treeKey(unit))
	case domain.TokenClassDerivative:
		if product, err := i.derivative.Product(ctx, unit); err == nil && product.Origin != 0 {
			keys = append(keys, treeKey(product.Origin))
		}
	}
	i.cache.invalidate(ctx, keys...)
}

func (i *Indexer) token(class domain.TokenClass) (*contracts.UnitToken, error) {
	switch class {
	case domain.TokenClassDonation:
		return i.donation, nil
	case domain.TokenClassDerivative:
		return i.derivative, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown token class %q", class)
	}
}

func (i *Indexer) buildTrace(ctx context.Context, token *contracts.UnitToken, class domain.TokenClass, unit domain.UnitID) (Trace, error) {
	transfers, err := i.scanner.Scan(ctx, token.Address(), ledger.EventFilter{
		Name:   "Transfer",
		Topics: map[string]string{"tokenId": unit.String()},
	}, 0)
	if err != nil {
		return Trace{}, dErrors.Wrap(err, dErrors.CodeOf(err), "trace: transfer history")
	}
	if len(transfers) == 0 {
		return Trace{}, dErrors.Newf(dErrors.CodeNotFound, "%s unit %s has no history", class, unit)
	}
	if origin := domain.Address(transfers[0].Args["from"]); !origin.IsZero() {
		return Trace{}, dErrors.Newf(dErrors.CodeIntegrity,
			"%s unit %s: history starts with a transfer instead of a creation", class, unit)
	}

	soldTx, listings, err := i.marketHistory(ctx, token.Address(), unit)
	if err != nil {
		return Trace{}, err
	}

	trace := Trace{UnitID: unit, Class: class}
	foldedOwner := domain.ZeroAddress

	merged := append(append([]ledger.RawEvent{}, transfers...), listings...)
	ledger.SortEvents(merged)

	for _, ev := range merged {
		step, ok := i.classify(class, ev, soldTx)
		if !ok {
			continue
		}
		trace.Events = append(trace.Events, step)
		if ev.Name == "Transfer" {
			foldedOwner = domain.Address(ev.Args["to"])
		}
	}

	if err := i.enrich(ctx, token, &trace); err != nil {
		return Trace{}, err
	}

	if !foldedOwner.IsZero() && trace.CurrentOwner != foldedOwner {
		i.metrics.IncrementIntegrityMismatch()
		warning := fmt.Sprintf("event history ends at owner %s but the ledger reports %s; provenance may lag the chain head",
			foldedOwner.Short(), trace.CurrentOwner.Short())
		trace.Warnings = append(trace.Warnings, warning)
		i.logger.WarnContext(ctx, "stale provenance detected",
			"class", class, "unit", unit, "folded_owner", foldedOwner.Short(), "live_owner", trace.CurrentOwner.Short())
	}

	return trace, nil
}

// marketHistory returns the set of tx hashes carrying a sale of the unit,
// plus its listing lifecycle events.
func (i *Indexer) marketHistory(ctx context.Context, token domain.Address, unit domain.UnitID) (map[string]*big.Int, []ledger.RawEvent, error) {
	topics := map[string]string{"tokenContract": token.String(), "tokenId": unit.String()}

	var all []ledger.RawEvent
	for _, name := range []string{"ItemListed", "ItemSold", "ListingCancelled"} {
		events, err := i.scanner.Scan(ctx, i.tracker.Address(), ledger.EventFilter{Name: name, Topics: topics}, 0)
		if err != nil {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeOf(err), "trace: marketplace history")
		}
		all = append(all, events...)
	}

	soldTx := make(map[string]*big.Int)
	var listings []ledger.RawEvent
	for _, ev := range all {
		if ev.Name == "ItemSold" {
			price, _ := new(big.Int).SetString(ev.Args["price"], 10)
			soldTx[ev.TxHash] = price
			continue
		}
		listings = append(listings, ev)
	}
	return soldTx, listings, nil
}

// classify maps one raw event to a trace step. A transfer that shares its
// transaction with a sale is the sale's settlement leg and is reported as
// a single sold step.
func (i *Indexer) classify(class domain.TokenClass, ev ledger.RawEvent, soldTx map[string]*big.Int) (TraceEvent, bool) {
	step := TraceEvent{
		TxHash:      ev.TxHash,
		BlockNumber: ev.BlockNumber,
		TxIndex:     ev.TxIndex,
		Timestamp:   ev.Timestamp,
	}

	switch ev.Name {
	case "Transfer":
		from := domain.Address(ev.Args["from"])
		to := domain.Address(ev.Args["to"])
		step.From = from
		step.To = to
		switch {
		case from.IsZero() && class == domain.TokenClassDonation:
			step.Kind = EventDonated
		case from.IsZero():
			step.Kind = EventProcessed
		case to.IsZero():
			step.Kind = EventProcessed
		default:
			if price, sold := soldTx[ev.TxHash]; sold {
				step.Kind = EventSold
				step.Price = price
			} else {
				step.Kind = EventTransferred
			}
		}
		return step, true

	case "ItemListed":
		step.Kind = EventListed
		step.From = domain.Address(ev.Args["seller"])
		step.Price, _ = new(big.Int).SetString(ev.Args["price"], 10)
		return step, true

	case "ListingCancelled":
		step.Kind = EventListingCancelled
		step.From = domain.Address(ev.Args["seller"])
		return step, true

	default:
		return TraceEvent{}, false
	}
}

// enrich attaches live contract state: current owner, lineage links, and
// any clinical administration record.
func (i *Indexer) enrich(ctx context.Context, token *contracts.UnitToken, trace *Trace) error {
	owner, err := token.OwnerOf(ctx, trace.UnitID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeOf(err), "trace: live owner")
	}
	trace.CurrentOwner = owner

	switch trace.Class {
	case domain.TokenClassDonation:
		set, err := token.Derivatives(ctx, trace.UnitID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeOf(err), "trace: derivative set")
		}
		trace.Derivatives = set.IDs()

	case domain.TokenClassDerivative:
		product, err := token.Product(ctx, trace.UnitID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeOf(err), "trace: product lineage")
		}
		trace.Kind = product.Kind
		trace.Origin = product.Origin

		adm, err := token.Administration(ctx, trace.UnitID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeOf(err), "trace: administration record")
		}
		if adm.Administered {
			trace.Administered = &adm
			trace.Events = append(trace.Events, TraceEvent{
				Kind:      EventAdministered,
				From:      trace.CurrentOwner,
				PatientID: adm.PatientID,
				Timestamp: adm.Time,
			})
		}
	}
	return nil
}
