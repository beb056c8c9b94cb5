// Package audit captures the trail of supply-chain actions taken through
// this service. The ledger itself is the authoritative record; the audit
// stream adds who asked, when, and with what outcome.
package audit

import (
	"math/big"
	"time"

	"bloodtrace/pkg/domain"
)

// Action identifies the operation an event records.
type Action string

const (
	ActionDonated      Action = "unit_donated"
	ActionProcessed    Action = "unit_processed"
	ActionListed       Action = "unit_listed"
	ActionPurchased    Action = "unit_purchased"
	ActionCancelled    Action = "listing_cancelled"
	ActionAdministered Action = "unit_administered"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       Action            `json:"action"`
	Actor        domain.Address    `json:"actor"`
	Counterparty domain.Address    `json:"counterparty,omitempty"`
	Class        domain.TokenClass `json:"class,omitempty"`
	UnitID       domain.UnitID     `json:"unit_id,omitempty"`
	Price        *big.Int          `json:"price,omitempty"`
	TxHash       string            `json:"tx_hash,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	Outcome      string            `json:"outcome"`
	Reason       string            `json:"reason,omitempty"`
}
