// Package inventory projects an identity's current holdings and donation
// history from ledger state. Projections are computed on demand and never
// stored; two calls may differ when the chain has moved between them.
package inventory

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"bloodtrace/internal/contracts"
	"bloodtrace/internal/ledger"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
)

// maxConcurrentLookups bounds per-unit enrichment fan-out.
const maxConcurrentLookups = 4

// Holding is one unit currently held by an identity.
type Holding struct {
	UnitID domain.UnitID     `json:"unit_id"`
	Class  domain.TokenClass `json:"class"`

	// Kind and Origin are set for derivative units.
	Kind   domain.DerivativeKind `json:"kind,omitempty"`
	Origin domain.UnitID         `json:"origin,omitempty"`

	// Listed marks holdings currently on sale.
	Listed bool     `json:"listed,omitempty"`
	Price  *big.Int `json:"price,omitempty"`
}

// DonationRecord is one donation event projected from the log, enriched
// with the registry's record of the extracting center.
type DonationRecord struct {
	UnitID         domain.UnitID  `json:"unit_id"`
	Center         domain.Address `json:"center"`
	CenterName     string         `json:"center_name,omitempty"`
	CenterLocation string         `json:"center_location,omitempty"`
	Donor          domain.Address `json:"donor"`
	Fee            *big.Int       `json:"fee,omitempty"`
	TxHash         string         `json:"tx_hash"`
	BlockNumber    uint64         `json:"block_number"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Portfolio is an identity's holdings across both unit registries.
type Portfolio struct {
	DonationUnits   []Holding `json:"donation_units"`
	DerivativeUnits []Holding `json:"derivative_units"`
}

// Projector computes holdings and history views.
type Projector struct {
	tracker    *contracts.Tracker
	donation   *contracts.UnitToken
	derivative *contracts.UnitToken
	scanner    *ledger.Scanner
	logger     *slog.Logger
}

// Option configures a Projector.
type Option func(*Projector)

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Projector) { p.logger = l }
}

// NewProjector creates a Projector over the given contract bindings.
func NewProjector(tracker *contracts.Tracker, donation, derivative *contracts.UnitToken, scanner *ledger.Scanner, opts ...Option) *Projector {
	p := &Projector{
		tracker:    tracker,
		donation:   donation,
		derivative: derivative,
		scanner:    scanner,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Portfolio returns owner's holdings across both registries, enumerated
// concurrently.
func (p *Projector) Portfolio(ctx context.Context, owner domain.Address) (Portfolio, error) {
	var portfolio Portfolio
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		holdings, err := p.Holdings(gctx, owner, domain.TokenClassDonation)
		if err != nil {
			return err
		}
		portfolio.DonationUnits = holdings
		return nil
	})
	g.Go(func() error {
		holdings, err := p.Holdings(gctx, owner, domain.TokenClassDerivative)
		if err != nil {
			return err
		}
		portfolio.DerivativeUnits = holdings
		return nil
	})
	if err := g.Wait(); err != nil {
		return Portfolio{}, err
	}
	return portfolio, nil
}

// Holdings returns the units of one class held by owner, enriched with
// lineage and listing state. Units already administered to a patient are
// consumed and excluded. An owner with no units gets an empty view, not
// an error.
func (p *Projector) Holdings(ctx context.Context, owner domain.Address, class domain.TokenClass) ([]Holding, error) {
	token, err := p.token(class)
	if err != nil {
		return nil, err
	}

	count, err := token.BalanceOf(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeOf(err), "holdings: balance")
	}
	if count == 0 {
		return []Holding{}, nil
	}

	holdings := make([]*Holding, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			h, err := p.holding(gctx, token, owner, class, i)
			if err != nil {
				return err
			}
			holdings[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Holding, 0, count)
	for _, h := range holdings {
		if h != nil {
			out = append(out, *h)
		}
	}
	return out, nil
}

// holding enriches one unit, returning nil for consumed units.
func (p *Projector) holding(ctx context.Context, token *contracts.UnitToken, owner domain.Address, class domain.TokenClass, index int) (*Holding, error) {
	id, err := token.TokenOfOwnerByIndex(ctx, owner, index)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeOf(err), "holdings: enumerate")
	}

	h := &Holding{UnitID: id, Class: class}

	if class == domain.TokenClassDerivative {
		adm, err := token.Administration(ctx, id)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeOf(err), "holdings: administration")
		}
		if adm.Administered {
			return nil, nil
		}
		product, err := token.Product(ctx, id)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeOf(err), "holdings: lineage")
		}
		h.Kind = product.Kind
		h.Origin = product.Origin
	}

	listing, err := p.tracker.Listing(ctx, token.Address(), id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeOf(err), "holdings: listing")
	}
	if listing.Active() {
		h.Listed = true
		h.Price = listing.Price
	}
	return h, nil
}

// DonationsByDonor projects a donor's donation history from the log.
func (p *Projector) DonationsByDonor(ctx context.Context, donor domain.Address) ([]DonationRecord, error) {
	return p.donationHistory(ctx, map[string]string{"donor": donor.String()})
}

// ExtractionsByCenter projects the donations a center has performed.
func (p *Projector) ExtractionsByCenter(ctx context.Context, center domain.Address) ([]DonationRecord, error) {
	return p.donationHistory(ctx, map[string]string{"center": center.String()})
}

func (p *Projector) donationHistory(ctx context.Context, topics map[string]string) ([]DonationRecord, error) {
	events, err := p.scanner.Scan(ctx, p.tracker.Address(), ledger.EventFilter{
		Name:   "Donation",
		Topics: topics,
	}, 0)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeOf(err), "donation history")
	}

	// One registry lookup per distinct center, not per donation.
	centers := make(map[domain.Address]domain.Company)

	records := make([]DonationRecord, 0, len(events))
	for _, ev := range events {
		id, err := domain.ParseUnitID(ev.Args["tokenId"])
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "donation history: malformed unit id")
		}
		center := domain.Address(ev.Args["center"])
		company, ok := centers[center]
		if !ok {
			company, err = p.tracker.Company(ctx, center)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeOf(err), "donation history: center lookup")
			}
			centers[center] = company
		}
		fee, _ := new(big.Int).SetString(ev.Args["value"], 10)
		records = append(records, DonationRecord{
			UnitID:         id,
			Center:         center,
			CenterName:     company.Name,
			CenterLocation: company.Location,
			Donor:          domain.Address(ev.Args["donor"]),
			Fee:            fee,
			TxHash:         ev.TxHash,
			BlockNumber:    ev.BlockNumber,
			Timestamp:      ev.Timestamp,
		})
	}
	return records, nil
}

func (p *Projector) token(class domain.TokenClass) (*contracts.UnitToken, error) {
	switch class {
	case domain.TokenClassDonation:
		return p.donation, nil
	case domain.TokenClassDerivative:
		return p.derivative, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown token class %q", class)
	}
}
