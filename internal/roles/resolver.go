// Package roles classifies addresses against the on-chain registry.
package roles

import (
	"context"
	"log/slog"

	"bloodtrace/internal/contracts"
	"bloodtrace/internal/ledger"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
)

// Classification is the resolved standing of an address.
type Classification struct {
	Address domain.Address  `json:"address"`
	Role    domain.Role     `json:"role"`
	Company *domain.Company `json:"company,omitempty"`
}

// Resolver determines an address's role from registry state and donation
// history. Resolution is read-only and deterministic for a fixed ledger
// state.
type Resolver struct {
	tracker *contracts.Tracker
	scanner *ledger.Scanner
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a Resolver over the given registry binding.
func NewResolver(tracker *contracts.Tracker, scanner *ledger.Scanner, opts ...Option) *Resolver {
	r := &Resolver{tracker: tracker, scanner: scanner, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve classifies addr. Checks run in strict precedence order: admin
// flag, then company registration, then donation history; an address
// matching an earlier check never falls through to a later one. Ledger
// errors propagate rather than defaulting to unregistered, so callers
// never act on a classification the ledger did not confirm.
func (r *Resolver) Resolve(ctx context.Context, addr domain.Address) (Classification, error) {
	if addr.IsZero() {
		return Classification{}, dErrors.New(dErrors.CodeInvalidInput, "cannot classify the zero address")
	}

	admin, err := r.tracker.IsAdmin(ctx, addr)
	if err != nil {
		return Classification{}, dErrors.Wrap(err, dErrors.CodeOf(err), "resolve: admin check")
	}
	if admin {
		return Classification{Address: addr, Role: domain.RoleAdmin}, nil
	}

	company, err := r.tracker.Company(ctx, addr)
	if err != nil {
		return Classification{}, dErrors.Wrap(err, dErrors.CodeOf(err), "resolve: company lookup")
	}
	if role, ok := company.Role.Role(); ok {
		return Classification{Address: addr, Role: role, Company: &company}, nil
	}

	donated, err := r.hasDonated(ctx, addr)
	if err != nil {
		return Classification{}, dErrors.Wrap(err, dErrors.CodeOf(err), "resolve: donation history")
	}
	if donated {
		return Classification{Address: addr, Role: domain.RoleDonor}, nil
	}

	return Classification{Address: addr, Role: domain.RoleUnregistered}, nil
}

func (r *Resolver) hasDonated(ctx context.Context, addr domain.Address) (bool, error) {
	events, err := r.scanner.Scan(ctx, r.tracker.Address(), ledger.EventFilter{
		Name:   "Donation",
		Topics: map[string]string{"donor": addr.String()},
	}, 0)
	if err != nil {
		return false, err
	}
	if len(events) > 0 && r.logger != nil {
		r.logger.DebugContext(ctx, "address classified as donor",
			"address", addr.Short(), "donations", len(events))
	}
	return len(events) > 0, nil
}
