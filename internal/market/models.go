// Package market coordinates listing, purchase, and cancellation of units
// against the on-chain marketplace. The contract is the arbiter of every
// race; the coordinator's own checks only exist to fail earlier with a
// clearer message.
package market

import (
	"math/big"

	"bloodtrace/pkg/domain"
)

// Offer is one unit currently on sale.
type Offer struct {
	UnitID domain.UnitID     `json:"unit_id"`
	Class  domain.TokenClass `json:"class"`
	Seller domain.Address    `json:"seller"`
	Price  *big.Int          `json:"price"`

	// Kind and Origin are set for derivative units.
	Kind   domain.DerivativeKind `json:"kind,omitempty"`
	Origin domain.UnitID         `json:"origin,omitempty"`
}
