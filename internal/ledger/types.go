package ledger

import (
	"math/big"
	"time"

	"bloodtrace/pkg/domain"
)

// Receipt confirms a state-mutating call was executed by the remote ledger.
// Until a receipt is returned the outcome is unknown, not failed: the remote
// state may have changed even if the local caller timed out.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// RawEvent is one entry of the append-only ledger log. Events are unordered
// as delivered; (BlockNumber, TxIndex, LogIndex) is the canonical ordering.
type RawEvent struct {
	Name        string
	Contract    domain.Address
	BlockNumber uint64
	TxIndex     uint64
	LogIndex    uint64
	TxHash      string
	Timestamp   time.Time
	Args        map[string]string
}

// EventFilter selects events by name and optional equality filters on
// indexed arguments.
type EventFilter struct {
	Name   string
	Topics map[string]string
}

// CallOpts carries the caller identity and optional payable value for a
// state-mutating call.
type CallOpts struct {
	From  domain.Address
	Value *big.Int
}

// Before reports whether a precedes b in canonical log order.
func (e RawEvent) Before(other RawEvent) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}
	if e.TxIndex != other.TxIndex {
		return e.TxIndex < other.TxIndex
	}
	return e.LogIndex < other.LogIndex
}
