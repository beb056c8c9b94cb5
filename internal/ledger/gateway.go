// Package ledger is the thin typed-call/typed-event abstraction over the
// remote ledger service. It owns the only chunked block-range scan in the
// codebase; higher components never talk to the remote log directly.
package ledger

import (
	"context"
	"sort"

	"bloodtrace/pkg/domain"
)

// Gateway is the surface every higher component consumes. The production
// implementation is Client; tests use ledgertest.Fake.
//
// Mutating calls may irreversibly change remote state even when the local
// caller gives up waiting: treat "no receipt" as unknown outcome.
type Gateway interface {
	// Call executes a state-mutating contract method and waits for the receipt.
	Call(ctx context.Context, contract domain.Address, method string, args []string, opts CallOpts) (Receipt, error)

	// Query executes a read-only contract method and returns its tuple of
	// string-encoded return values.
	Query(ctx context.Context, contract domain.Address, method string, args ...string) ([]string, error)

	// Events returns log entries for one contract in [fromBlock, toBlock].
	// Fails with CodeRangeTooLarge when the span exceeds the remote per-call
	// ceiling; only the Scanner is expected to handle that.
	Events(ctx context.Context, contract domain.Address, filter EventFilter, fromBlock, toBlock uint64) ([]RawEvent, error)

	// Height returns the current head block number.
	Height(ctx context.Context) (uint64, error)

	// ChainID returns the network identity of the remote ledger.
	ChainID(ctx context.Context) (uint64, error)
}

// SortEvents orders events canonically by (block, txIndex, logIndex).
// Sorting is stable so replays of an unchanged log are byte-identical.
func SortEvents(events []RawEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Before(events[j])
	})
}
