// Package provenance reconstructs a unit's full custody history from the
// event log. Traces are rebuilt from events on every request; a Redis
// cache may serve recent results but is advisory only.
package provenance

import (
	"math/big"
	"time"

	"bloodtrace/internal/contracts"
	"bloodtrace/pkg/domain"
)

// EventKind classifies one step in a unit's history.
type EventKind string

const (
	// EventDonated is the mint of a donation unit at a donation center.
	EventDonated EventKind = "donated"
	// EventProcessed is a donation's burn during processing, or a
	// derivative's mint out of that processing.
	EventProcessed EventKind = "processed"
	// EventTransferred is a direct custody transfer outside the marketplace.
	EventTransferred EventKind = "transferred"
	// EventListed is a marketplace listing.
	EventListed EventKind = "listed"
	// EventSold is a marketplace purchase, covering both the payment and
	// the resulting custody transfer.
	EventSold EventKind = "sold"
	// EventListingCancelled is a listing withdrawn by its seller.
	EventListingCancelled EventKind = "listing_cancelled"
	// EventAdministered is the terminal clinical use of a unit.
	EventAdministered EventKind = "administered"
)

// TraceEvent is one step in a unit's reconstructed history.
type TraceEvent struct {
	Kind        EventKind      `json:"kind"`
	From        domain.Address `json:"from,omitempty"`
	To          domain.Address `json:"to,omitempty"`
	Price       *big.Int       `json:"price,omitempty"`
	PatientID   string         `json:"patient_id,omitempty"`
	TxHash      string         `json:"tx_hash"`
	BlockNumber uint64         `json:"block_number"`
	TxIndex     uint64         `json:"tx_index"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Trace is a unit's complete reconstructed history.
type Trace struct {
	UnitID domain.UnitID     `json:"unit_id"`
	Class  domain.TokenClass `json:"class"`

	// Kind and Origin are set for derivative units only.
	Kind   domain.DerivativeKind `json:"kind,omitempty"`
	Origin domain.UnitID         `json:"origin,omitempty"`

	// Derivatives is set for processed donation units.
	Derivatives []domain.UnitID `json:"derivatives,omitempty"`

	Events       []TraceEvent            `json:"events"`
	CurrentOwner domain.Address          `json:"current_owner"`
	Administered *contracts.Administration `json:"administered,omitempty"`

	// Warnings records non-fatal inconsistencies found while rebuilding
	// the trace, such as the event fold disagreeing with live ownership.
	Warnings []string `json:"warnings,omitempty"`
}

// DonationTree is a donation's trace joined with the traces of every
// derivative produced from it.
type DonationTree struct {
	Donation    Trace   `json:"donation"`
	Derivatives []Trace `json:"derivatives,omitempty"`
}
