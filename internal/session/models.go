// Package session tracks an identity's journey from connection to
// classification. Session state is ephemeral and lives in memory; the
// ledger remains the only source of truth for roles and holdings.
package session

import (
	"time"

	"bloodtrace/internal/roles"
	"bloodtrace/pkg/domain"
)

// Phase is the session lifecycle state.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnected    Phase = "connected"
	PhaseClassified   Phase = "classified"
)

// Network identifies the chain a session is bound to.
type Network struct {
	ChainID uint64 `json:"chain_id"`
	Name    string `json:"name"`
}

// NetworkName maps well-known chain ids to display names.
func NetworkName(chainID uint64) string {
	switch chainID {
	case 1:
		return "Mainnet"
	case 5:
		return "Goerli"
	case 11155111:
		return "Sepolia"
	case 2018:
		return "Besu"
	case 1337:
		return "Ganache"
	case 31337:
		return "Anvil"
	default:
		return "Unknown"
	}
}

// Session is one identity's live connection state.
type Session struct {
	ID             string                `json:"id"`
	Identity       domain.Address        `json:"identity"`
	Phase          Phase                 `json:"phase"`
	Network        Network               `json:"network"`
	Classification *roles.Classification `json:"classification,omitempty"`
	ConnectedAt    time.Time             `json:"connected_at"`
	ClassifiedAt   time.Time             `json:"classified_at,omitzero"`
}
