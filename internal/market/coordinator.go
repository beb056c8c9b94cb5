package market

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"bloodtrace/internal/audit"
	"bloodtrace/internal/contracts"
	"bloodtrace/internal/ledger"
	"bloodtrace/internal/platform/metrics"
	"bloodtrace/internal/platform/redis"
	"bloodtrace/internal/provenance"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
)

// maxConcurrentOffers bounds listing enrichment fan-out.
const maxConcurrentOffers = 4

// Coordinator drives marketplace operations. It never holds listing state:
// every operation re-reads the contract immediately before acting, and the
// contract's own checks settle any race that slips between read and write.
type Coordinator struct {
	tracker    *contracts.Tracker
	donation   *contracts.UnitToken
	derivative *contracts.UnitToken

	indexer *provenance.Indexer
	auditor *audit.Publisher
	cache   *offerCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics attaches marketplace instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithAudit attaches the audit publisher.
func WithAudit(p *audit.Publisher) Option {
	return func(c *Coordinator) { c.auditor = p }
}

// WithIndexer lets the coordinator drop cached traces after mutations.
func WithIndexer(i *provenance.Indexer) Option {
	return func(c *Coordinator) { c.indexer = i }
}

// WithCache enables advisory caching of the on-sale view. A nil client
// leaves caching off.
func WithCache(client *redis.Client, ttl time.Duration) Option {
	return func(c *Coordinator) {
		if client != nil {
			c.cache = &offerCache{client: client, ttl: ttl, logger: c.logger}
		}
	}
}

// NewCoordinator creates a Coordinator over the given contract bindings.
func NewCoordinator(tracker *contracts.Tracker, donation, derivative *contracts.UnitToken, opts ...Option) *Coordinator {
	c := &Coordinator{
		tracker:    tracker,
		donation:   donation,
		derivative: derivative,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache != nil {
		c.cache.logger = c.logger
	}
	return c
}

// OnSale returns every unit of the given class currently listed, enriched
// with lineage for derivatives. Offers are ordered by unit id.
func (c *Coordinator) OnSale(ctx context.Context, class domain.TokenClass) ([]Offer, error) {
	token, err := c.token(class)
	if err != nil {
		return nil, err
	}

	if cached, ok := c.cache.get(ctx, offersKey(class)); ok {
		return cached, nil
	}

	ids, err := c.tracker.TokensOnSale(ctx, token.Address())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeOf(err), "list offers")
	}

	offers := make([]Offer, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentOffers)
	for i, id := range ids {
		g.Go(func() error {
			offer, err := c.offer(gctx, token, class, id)
			if err != nil {
				return err
			}
			offers[i] = offer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(offers, func(i, j int) bool { return offers[i].UnitID < offers[j].UnitID })
	c.cache.put(ctx, offersKey(class), offers)
	return offers, nil
}

func (c *Coordinator) offer(ctx context.Context, token *contracts.UnitToken, class domain.TokenClass, id domain.UnitID) (Offer, error) {
	listing, err := c.tracker.Listing(ctx, token.Address(), id)
	if err != nil {
		return Offer{}, dErrors.Wrap(err, dErrors.CodeOf(err), "fetch listing")
	}
	offer := Offer{UnitID: id, Class: class, Seller: listing.Seller, Price: listing.Price}
	if class == domain.TokenClassDerivative {
		product, err := token.Product(ctx, id)
		if err != nil {
			return Offer{}, dErrors.Wrap(err, dErrors.CodeOf(err), "fetch lineage")
		}
		offer.Kind = product.Kind
		offer.Origin = product.Origin
	}
	return offer, nil
}

// List puts a unit on sale. Ownership is re-checked against the ledger
// immediately before listing, and the marketplace is granted transfer
// approval first so the listing call cannot land unapproved.
func (c *Coordinator) List(ctx context.Context, seller domain.Address, class domain.TokenClass, unit domain.UnitID, price *big.Int) (ledger.Receipt, error) {
	token, err := c.token(class)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if price == nil || price.Sign() <= 0 {
		return ledger.Receipt{}, dErrors.New(dErrors.CodeInvalidInput, "listing price must be positive")
	}

	owner, err := token.OwnerOf(ctx, unit)
	if err != nil {
		return ledger.Receipt{}, c.fail(ctx, "list", err)
	}
	if owner != seller {
		return ledger.Receipt{}, c.fail(ctx, "list",
			dErrors.Newf(dErrors.CodeConflict, "unit %s is owned by %s, not the seller", unit, owner.Short()))
	}

	listing, err := c.tracker.Listing(ctx, token.Address(), unit)
	if err != nil {
		return ledger.Receipt{}, c.fail(ctx, "list", err)
	}
	if listing.Active() {
		return ledger.Receipt{}, c.fail(ctx, "list",
			dErrors.Newf(dErrors.CodeConflict, "unit %s is already listed", unit))
	}

	if _, err := token.Approve(ctx, seller, c.tracker.Address(), unit); err != nil {
		return ledger.Receipt{}, c.fail(ctx, "list", dErrors.Wrap(err, dErrors.CodeOf(err), "grant marketplace approval"))
	}

	receipt, err := c.tracker.ListItem(ctx, seller, token.Address(), unit, price)
	if err != nil {
		return ledger.Receipt{}, c.fail(ctx, "list", err)
	}

	c.metrics.IncrementMarketAction("list", "ok")
	c.invalidate(ctx, class, unit)
	c.auditor.Emit(ctx, audit.Event{
		Action: audit.ActionListed, Actor: seller, Class: class, UnitID: unit,
		Price: price, TxHash: receipt.TxHash, Outcome: "ok",
	})
	return receipt, nil
}

// Purchase buys a listed unit at the price the buyer saw. The listing is
// re-fetched first; if its price no longer matches the buyer's, the
// purchase is refused as a conflict instead of paying whatever the
// seller relisted at. A listing gone by execution time surfaces the
// same way.
func (c *Coordinator) Purchase(ctx context.Context, buyer domain.Address, class domain.TokenClass, unit domain.UnitID, price *big.Int) (ledger.Receipt, error) {
	token, err := c.token(class)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if price == nil || price.Sign() <= 0 {
		return ledger.Receipt{}, dErrors.New(dErrors.CodeInvalidInput, "purchase price must be positive")
	}

	listing, err := c.tracker.Listing(ctx, token.Address(), unit)
	if err != nil {
		return ledger.Receipt{}, c.fail(ctx, "purchase", err)
	}
	if !listing.Active() {
		return ledger.Receipt{}, c.fail(ctx, "purchase",
			dErrors.Newf(dErrors.CodeConflict, "unit %s is not for sale", unit))
	}
	if listing.Seller == buyer {
		return ledger.Receipt{}, c.fail(ctx, "purchase",
			dErrors.New(dErrors.CodeConflict, "cannot buy a unit listed by the same identity"))
	}
	if listing.Price.Cmp(price) != 0 {
		c.invalidate(ctx, class, unit)
		return ledger.Receipt{}, c.fail(ctx, "purchase",
			dErrors.Newf(dErrors.CodeConflict, "unit %s is listed at %s, not %s", unit, listing.Price, price))
	}

	receipt, err := c.tracker.BuyItem(ctx, buyer, token.Address(), unit, listing.Price)
	if err != nil {
		// A conflict here means the listing changed under us; drop any
		// cached view of the unit so the next read refetches.
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			c.invalidate(ctx, class, unit)
		}
		return ledger.Receipt{}, c.fail(ctx, "purchase", err)
	}

	c.metrics.IncrementMarketAction("purchase", "ok")
	c.invalidate(ctx, class, unit)
	c.auditor.Emit(ctx, audit.Event{
		Action: audit.ActionPurchased, Actor: buyer, Counterparty: listing.Seller,
		Class: class, UnitID: unit, Price: listing.Price, TxHash: receipt.TxHash, Outcome: "ok",
	})
	return receipt, nil
}

// Cancel withdraws a listing. Only the seller recorded on the ledger may
// cancel; anyone else gets an authorization error, not a conflict.
func (c *Coordinator) Cancel(ctx context.Context, caller domain.Address, class domain.TokenClass, unit domain.UnitID) (ledger.Receipt, error) {
	token, err := c.token(class)
	if err != nil {
		return ledger.Receipt{}, err
	}

	listing, err := c.tracker.Listing(ctx, token.Address(), unit)
	if err != nil {
		return ledger.Receipt{}, c.fail(ctx, "cancel", err)
	}
	if !listing.Active() {
		return ledger.Receipt{}, c.fail(ctx, "cancel",
			dErrors.Newf(dErrors.CodeNotFound, "unit %s is not listed", unit))
	}
	if listing.Seller != caller {
		return ledger.Receipt{}, c.fail(ctx, "cancel",
			dErrors.New(dErrors.CodeUnauthorized, "only the seller may cancel a listing"))
	}

	receipt, err := c.tracker.CancelListing(ctx, caller, token.Address(), unit)
	if err != nil {
		return ledger.Receipt{}, c.fail(ctx, "cancel", err)
	}

	c.metrics.IncrementMarketAction("cancel", "ok")
	c.invalidate(ctx, class, unit)
	c.auditor.Emit(ctx, audit.Event{
		Action: audit.ActionCancelled, Actor: caller, Class: class, UnitID: unit,
		TxHash: receipt.TxHash, Outcome: "ok",
	})
	return receipt, nil
}

func (c *Coordinator) token(class domain.TokenClass) (*contracts.UnitToken, error) {
	switch class {
	case domain.TokenClassDonation:
		return c.donation, nil
	case domain.TokenClassDerivative:
		return c.derivative, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown token class %q", class)
	}
}

func (c *Coordinator) invalidate(ctx context.Context, class domain.TokenClass, unit domain.UnitID) {
	c.cache.invalidate(ctx, offersKey(class))
	if c.indexer != nil {
		c.indexer.Invalidate(ctx, class, unit)
	}
}

func (c *Coordinator) fail(ctx context.Context, action string, err error) error {
	c.metrics.IncrementMarketAction(action, string(dErrors.CodeOf(err)))
	return err
}
