// Package contracts provides typed bindings over the raw ledger gateway.
// Callers above this package never touch string-encoded tuples.
package contracts

import (
	"context"
	"math/big"
	"strconv"

	"bloodtrace/internal/ledger"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
)

// Listing is an active marketplace entry for a unit.
type Listing struct {
	Price  *big.Int
	Seller domain.Address
}

// Active reports whether the listing exists on the ledger. The registry
// returns a zeroed tuple for unlisted units instead of an error.
func (l Listing) Active() bool {
	return !l.Seller.IsZero()
}

// Tracker binds the registry and marketplace contract.
type Tracker struct {
	gw   ledger.Gateway
	addr domain.Address
}

// NewTracker creates a binding at the given contract address.
func NewTracker(gw ledger.Gateway, addr domain.Address) *Tracker {
	return &Tracker{gw: gw, addr: addr}
}

// Address returns the bound contract address.
func (t *Tracker) Address() domain.Address { return t.addr }

// IsAdmin reports whether addr is a registry administrator.
func (t *Tracker) IsAdmin(ctx context.Context, addr domain.Address) (bool, error) {
	out, err := t.gw.Query(ctx, t.addr, "isAdmin", addr.String())
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, malformed("isAdmin", out)
	}
	return out[0] == "true", nil
}

// Company returns the registry record for addr. Unregistered addresses
// yield a record with CompanyRoleUnset, not an error.
func (t *Tracker) Company(ctx context.Context, addr domain.Address) (domain.Company, error) {
	out, err := t.gw.Query(ctx, t.addr, "companies", addr.String())
	if err != nil {
		return domain.Company{}, err
	}
	if len(out) != 4 {
		return domain.Company{}, malformed("companies", out)
	}
	role, err := parseUint8(out[0])
	if err != nil {
		return domain.Company{}, dErrors.Wrap(err, dErrors.CodeInternal, "companies: malformed role")
	}
	status, err := parseUint8(out[1])
	if err != nil {
		return domain.Company{}, dErrors.Wrap(err, dErrors.CodeInternal, "companies: malformed status")
	}
	return domain.Company{
		Address:  addr,
		Role:     domain.CompanyRole(role),
		Status:   domain.CompanyStatus(status),
		Name:     out[2],
		Location: out[3],
	}, nil
}

// MinimumDonationFee returns the payable floor for donations.
func (t *Tracker) MinimumDonationFee(ctx context.Context) (*big.Int, error) {
	out, err := t.gw.Query(ctx, t.addr, "getMinimumDonationFee")
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, malformed("getMinimumDonationFee", out)
	}
	fee, ok := new(big.Int).SetString(out[0], 10)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInternal, "getMinimumDonationFee: malformed amount %q", out[0])
	}
	return fee, nil
}

// Listing returns the marketplace entry for a unit. A zero-seller result
// means the unit is not listed.
func (t *Tracker) Listing(ctx context.Context, token domain.Address, unit domain.UnitID) (Listing, error) {
	out, err := t.gw.Query(ctx, t.addr, "getListing", token.String(), unit.String())
	if err != nil {
		return Listing{}, err
	}
	if len(out) != 2 {
		return Listing{}, malformed("getListing", out)
	}
	price, ok := new(big.Int).SetString(out[0], 10)
	if !ok {
		return Listing{}, dErrors.Newf(dErrors.CodeInternal, "getListing: malformed price %q", out[0])
	}
	return Listing{Price: price, Seller: domain.Address(out[1])}, nil
}

// TokensOnSale returns the ids currently listed for the given token contract.
func (t *Tracker) TokensOnSale(ctx context.Context, token domain.Address) ([]domain.UnitID, error) {
	out, err := t.gw.Query(ctx, t.addr, "getTokensOnSale", token.String())
	if err != nil {
		return nil, err
	}
	ids := make([]domain.UnitID, 0, len(out))
	for _, raw := range out {
		id, err := domain.ParseUnitID(raw)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "getTokensOnSale: malformed id")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Donate registers a donation by donor at the calling center, paying fee.
func (t *Tracker) Donate(ctx context.Context, from, donor domain.Address, fee *big.Int) (ledger.Receipt, error) {
	return t.gw.Call(ctx, t.addr, "donate", []string{donor.String()},
		ledger.CallOpts{From: from, Value: fee})
}

// Process splits a donation unit into its derivative units.
func (t *Tracker) Process(ctx context.Context, from domain.Address, unit domain.UnitID) (ledger.Receipt, error) {
	return t.gw.Call(ctx, t.addr, "process", []string{unit.String()},
		ledger.CallOpts{From: from})
}

// ListItem puts a unit on sale at the given price.
func (t *Tracker) ListItem(ctx context.Context, from, token domain.Address, unit domain.UnitID, price *big.Int) (ledger.Receipt, error) {
	return t.gw.Call(ctx, t.addr, "listItem",
		[]string{token.String(), unit.String(), price.String()},
		ledger.CallOpts{From: from})
}

// BuyItem purchases a listed unit, paying exactly price.
func (t *Tracker) BuyItem(ctx context.Context, from, token domain.Address, unit domain.UnitID, price *big.Int) (ledger.Receipt, error) {
	return t.gw.Call(ctx, t.addr, "buyItem",
		[]string{token.String(), unit.String()},
		ledger.CallOpts{From: from, Value: price})
}

// CancelListing withdraws a listing held by the caller.
func (t *Tracker) CancelListing(ctx context.Context, from, token domain.Address, unit domain.UnitID) (ledger.Receipt, error) {
	return t.gw.Call(ctx, t.addr, "cancelListing",
		[]string{token.String(), unit.String()},
		ledger.CallOpts{From: from})
}

func malformed(method string, out []string) error {
	return dErrors.Newf(dErrors.CodeInternal, "%s: malformed response of %d values", method, len(out))
}

func parseUint8(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	return uint8(n), err
}
