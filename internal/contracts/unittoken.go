package contracts

import (
	"context"
	"strconv"
	"time"

	"bloodtrace/internal/ledger"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
)

// DerivativeSet holds the three units minted when a donation is processed.
type DerivativeSet struct {
	Plasma       domain.UnitID
	Erythrocytes domain.UnitID
	Platelets    domain.UnitID
}

// Exists reports whether the donation has been processed at all.
func (d DerivativeSet) Exists() bool {
	return d.Plasma != 0 || d.Erythrocytes != 0 || d.Platelets != 0
}

// IDs returns the set as a slice, omitting zero entries.
func (d DerivativeSet) IDs() []domain.UnitID {
	var ids []domain.UnitID
	for _, id := range []domain.UnitID{d.Plasma, d.Erythrocytes, d.Platelets} {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Product describes a derivative's origin donation and kind.
type Product struct {
	Origin domain.UnitID
	Kind   domain.DerivativeKind
}

// Administration records the terminal clinical use of a unit.
type Administration struct {
	Administered bool
	Time         time.Time
	PatientID    string
}

// UnitToken binds one of the two unit registries (donations or derivatives).
type UnitToken struct {
	gw    ledger.Gateway
	addr  domain.Address
	class domain.TokenClass
}

// NewUnitToken creates a binding for the registry at addr holding units of
// the given class.
func NewUnitToken(gw ledger.Gateway, addr domain.Address, class domain.TokenClass) *UnitToken {
	return &UnitToken{gw: gw, addr: addr, class: class}
}

// Address returns the bound contract address.
func (u *UnitToken) Address() domain.Address { return u.addr }

// Class returns the token class this registry holds.
func (u *UnitToken) Class() domain.TokenClass { return u.class }

// OwnerOf returns the current owner of a unit. Burned units resolve to the
// zero address; units that never existed return CodeNotFound.
func (u *UnitToken) OwnerOf(ctx context.Context, unit domain.UnitID) (domain.Address, error) {
	out, err := u.gw.Query(ctx, u.addr, "ownerOf", unit.String())
	if err != nil {
		return "", err
	}
	if len(out) != 1 {
		return "", malformed("ownerOf", out)
	}
	return domain.Address(out[0]), nil
}

// BalanceOf returns how many units addr holds in this registry.
func (u *UnitToken) BalanceOf(ctx context.Context, addr domain.Address) (int, error) {
	out, err := u.gw.Query(ctx, u.addr, "balanceOf", addr.String())
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, malformed("balanceOf", out)
	}
	n, err := strconv.Atoi(out[0])
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "balanceOf: malformed count")
	}
	return n, nil
}

// TokenOfOwnerByIndex returns the i-th unit held by addr.
func (u *UnitToken) TokenOfOwnerByIndex(ctx context.Context, addr domain.Address, i int) (domain.UnitID, error) {
	out, err := u.gw.Query(ctx, u.addr, "tokenOfOwnerByIndex", addr.String(), strconv.Itoa(i))
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, malformed("tokenOfOwnerByIndex", out)
	}
	id, err := domain.ParseUnitID(out[0])
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "tokenOfOwnerByIndex: malformed id")
	}
	return id, nil
}

// Derivatives returns the derivative units minted from a donation. An
// all-zero set means the donation has not been processed.
func (u *UnitToken) Derivatives(ctx context.Context, donation domain.UnitID) (DerivativeSet, error) {
	out, err := u.gw.Query(ctx, u.addr, "donations", donation.String())
	if err != nil {
		return DerivativeSet{}, err
	}
	if len(out) != 3 {
		return DerivativeSet{}, malformed("donations", out)
	}
	ids := make([]domain.UnitID, 3)
	for i, raw := range out {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return DerivativeSet{}, dErrors.Wrap(err, dErrors.CodeInternal, "donations: malformed id")
		}
		ids[i] = domain.UnitID(n)
	}
	return DerivativeSet{Plasma: ids[0], Erythrocytes: ids[1], Platelets: ids[2]}, nil
}

// Product returns a derivative unit's origin donation and kind.
func (u *UnitToken) Product(ctx context.Context, unit domain.UnitID) (Product, error) {
	out, err := u.gw.Query(ctx, u.addr, "products", unit.String())
	if err != nil {
		return Product{}, err
	}
	if len(out) != 2 {
		return Product{}, malformed("products", out)
	}
	origin, err := strconv.ParseUint(out[0], 10, 64)
	if err != nil {
		return Product{}, dErrors.Wrap(err, dErrors.CodeInternal, "products: malformed origin")
	}
	kind, err := parseUint8(out[1])
	if err != nil {
		return Product{}, dErrors.Wrap(err, dErrors.CodeInternal, "products: malformed kind")
	}
	return Product{Origin: domain.UnitID(origin), Kind: domain.DerivativeKind(kind)}, nil
}

// Administration returns the clinical-use record for a unit, if any.
func (u *UnitToken) Administration(ctx context.Context, unit domain.UnitID) (Administration, error) {
	out, err := u.gw.Query(ctx, u.addr, "administeredToPatients", unit.String())
	if err != nil {
		return Administration{}, err
	}
	if len(out) != 2 {
		return Administration{}, malformed("administeredToPatients", out)
	}
	unix, err := strconv.ParseInt(out[0], 10, 64)
	if err != nil {
		return Administration{}, dErrors.Wrap(err, dErrors.CodeInternal, "administeredToPatients: malformed timestamp")
	}
	if unix == 0 {
		return Administration{}, nil
	}
	return Administration{
		Administered: true,
		Time:         time.Unix(unix, 0).UTC(),
		PatientID:    out[1],
	}, nil
}

// Approve grants the operator transfer rights over a unit. Listing on the
// marketplace requires approving the tracker first.
func (u *UnitToken) Approve(ctx context.Context, from, operator domain.Address, unit domain.UnitID) (ledger.Receipt, error) {
	return u.gw.Call(ctx, u.addr, "approve",
		[]string{operator.String(), unit.String()},
		ledger.CallOpts{From: from})
}

// TransferFrom moves a unit between holders.
func (u *UnitToken) TransferFrom(ctx context.Context, caller, from, to domain.Address, unit domain.UnitID) (ledger.Receipt, error) {
	return u.gw.Call(ctx, u.addr, "safeTransferFrom",
		[]string{from.String(), to.String(), unit.String()},
		ledger.CallOpts{From: caller})
}

// AdministerToPatient records the unit's terminal clinical use.
func (u *UnitToken) AdministerToPatient(ctx context.Context, from domain.Address, unit domain.UnitID, patientID string) (ledger.Receipt, error) {
	return u.gw.Call(ctx, u.addr, "administerToPatient",
		[]string{unit.String(), patientID},
		ledger.CallOpts{From: from})
}
