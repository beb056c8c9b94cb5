// Package ledgertest provides a deterministic in-memory ledger fake.
//
// The fake models the remote service's documented guarantees — atomic
// state transitions, an append-only block-ordered log, and a per-call
// event range ceiling — so every component can be tested against real
// behavior instead of mocks.
package ledgertest

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"bloodtrace/internal/ledger"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
)

// Well-known contract addresses used by tests.
const (
	TrackerAddr    domain.Address = "0x00000000000000000000000000000000000000a1"
	DonationAddr   domain.Address = "0x00000000000000000000000000000000000000a2"
	DerivativeAddr domain.Address = "0x00000000000000000000000000000000000000a3"
)

type tokenKey struct {
	contract domain.Address
	unit     domain.UnitID
}

type listingEntry struct {
	price  *big.Int
	seller domain.Address
}

type productEntry struct {
	origin domain.UnitID
	kind   domain.DerivativeKind
}

type administration struct {
	timestamp time.Time
	patientID string
}

// Fake implements ledger.Gateway in memory.
type Fake struct {
	mu sync.Mutex

	chainID uint64
	height  uint64
	genesis time.Time
	txSeq   uint64

	// 0 means unlimited span per Events call.
	rangeLimit uint64

	events []ledger.RawEvent

	admins    map[domain.Address]bool
	companies map[domain.Address]domain.Company
	minFee    *big.Int

	listings     map[tokenKey]listingEntry
	owners       map[tokenKey]domain.Address
	approvals    map[tokenKey]domain.Address
	donations    map[domain.UnitID][3]domain.UnitID
	products     map[domain.UnitID]productEntry
	administered map[tokenKey]administration
	nextUnit     map[domain.Address]uint64

	failNext map[string]error
}

// New creates an empty fake ledger on chain 31337.
func New() *Fake {
	return &Fake{
		chainID:      31337,
		genesis:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		admins:       make(map[domain.Address]bool),
		companies:    make(map[domain.Address]domain.Company),
		minFee:       big.NewInt(0),
		listings:     make(map[tokenKey]listingEntry),
		owners:       make(map[tokenKey]domain.Address),
		approvals:    make(map[tokenKey]domain.Address),
		donations:    make(map[domain.UnitID][3]domain.UnitID),
		products:     make(map[domain.UnitID]productEntry),
		administered: make(map[tokenKey]administration),
		nextUnit:     map[domain.Address]uint64{DonationAddr: 1, DerivativeAddr: 1},
		failNext:     make(map[string]error),
	}
}

// ---------------------------------------------------------------------------
// Test seeding helpers
// ---------------------------------------------------------------------------

// SetAdmin marks an address as a registry admin.
func (f *Fake) SetAdmin(addr domain.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admins[addr] = true
}

// RegisterCompany seeds an approved company and appends the corresponding
// approval event to the log.
func (f *Fake) RegisterCompany(c domain.Company) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.Status == 0 {
		c.Status = domain.CompanyStatusApproved
	}
	f.companies[c.Address] = c
	f.appendEventsLocked(TrackerAddr, []eventSpec{{
		name: "RequestApproved",
		args: map[string]string{
			"applicant": c.Address.String(),
			"role":      strconv.FormatUint(uint64(c.Role), 10),
		},
	}})
}

// SetMinimumDonationFee sets the payable floor for donate calls.
func (f *Fake) SetMinimumDonationFee(fee *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minFee = new(big.Int).Set(fee)
}

// SetRangeLimit caps the block span a single Events call may cover,
// matching the remote service's per-query ceiling.
func (f *Fake) SetRangeLimit(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rangeLimit = n
}

// MineBlocks advances the head without emitting events, spreading history
// for chunked-scan tests.
func (f *Fake) MineBlocks(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.height += n
}

// FailNext forces the next call of the given contract method to fail.
func (f *Fake) FailNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[method] = err
}

// ---------------------------------------------------------------------------
// Gateway implementation
// ---------------------------------------------------------------------------

// ChainID implements ledger.Gateway.
func (f *Fake) ChainID(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chainID, nil
}

// Height implements ledger.Gateway.
func (f *Fake) Height(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, nil
}

// Events implements ledger.Gateway, enforcing the per-call range ceiling.
func (f *Fake) Events(ctx context.Context, contract domain.Address, filter ledger.EventFilter, fromBlock, toBlock uint64) ([]ledger.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if toBlock < fromBlock {
		return nil, dErrors.New(dErrors.CodeBadRequest, "toBlock before fromBlock")
	}
	if f.rangeLimit > 0 && toBlock-fromBlock+1 > f.rangeLimit {
		return nil, dErrors.Newf(dErrors.CodeRangeTooLarge,
			"span %d exceeds per-query ceiling %d", toBlock-fromBlock+1, f.rangeLimit)
	}

	var out []ledger.RawEvent
	for _, ev := range f.events {
		if ev.Contract != contract || ev.Name != filter.Name {
			continue
		}
		if ev.BlockNumber < fromBlock || ev.BlockNumber > toBlock {
			continue
		}
		if !matchTopics(ev, filter.Topics) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func matchTopics(ev ledger.RawEvent, topics map[string]string) bool {
	for k, v := range topics {
		if ev.Args[k] != v {
			return false
		}
	}
	return true
}

// Query implements ledger.Gateway.
func (f *Fake) Query(ctx context.Context, contract domain.Address, method string, args ...string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailureLocked(method); err != nil {
		return nil, err
	}

	switch {
	case contract == TrackerAddr:
		return f.queryTrackerLocked(method, args)
	case contract == DonationAddr || contract == DerivativeAddr:
		return f.queryTokenLocked(contract, method, args)
	default:
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown contract %s", contract)
	}
}

func (f *Fake) queryTrackerLocked(method string, args []string) ([]string, error) {
	switch method {
	case "isAdmin":
		addr := domain.Address(args[0])
		return []string{strconv.FormatBool(f.admins[addr])}, nil

	case "companies":
		c := f.companies[domain.Address(args[0])]
		return []string{
			strconv.FormatUint(uint64(c.Role), 10),
			strconv.FormatUint(uint64(c.Status), 10),
			c.Name,
			c.Location,
		}, nil

	case "getListing":
		key := tokenKey{domain.Address(args[0]), mustUnit(args[1])}
		l, ok := f.listings[key]
		if !ok {
			return []string{"0", domain.ZeroAddress.String()}, nil
		}
		return []string{l.price.String(), l.seller.String()}, nil

	case "getTokensOnSale":
		contract := domain.Address(args[0])
		var ids []string
		for key := range f.listings {
			if key.contract == contract {
				ids = append(ids, key.unit.String())
			}
		}
		sortNumeric(ids)
		return ids, nil

	case "getMinimumDonationFee":
		return []string{f.minFee.String()}, nil

	default:
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown tracker method %s", method)
	}
}

func (f *Fake) queryTokenLocked(contract domain.Address, method string, args []string) ([]string, error) {
	switch method {
	case "balanceOf":
		owner := domain.Address(args[0])
		n := 0
		for key, o := range f.owners {
			if key.contract == contract && o == owner {
				n++
			}
		}
		return []string{strconv.Itoa(n)}, nil

	case "ownerOf":
		key := tokenKey{contract, mustUnit(args[0])}
		owner, ok := f.owners[key]
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "token %s does not exist", args[0])
		}
		return []string{owner.String()}, nil

	case "tokenOfOwnerByIndex":
		owner := domain.Address(args[0])
		idx, _ := strconv.Atoi(args[1])
		var ids []string
		for key, o := range f.owners {
			if key.contract == contract && o == owner {
				ids = append(ids, key.unit.String())
			}
		}
		sortNumeric(ids)
		if idx < 0 || idx >= len(ids) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "owner index %d out of range", idx)
		}
		return []string{ids[idx]}, nil

	case "donations":
		d, ok := f.donations[mustUnit(args[0])]
		if !ok {
			return []string{"0", "0", "0"}, nil
		}
		return []string{d[0].String(), d[1].String(), d[2].String()}, nil

	case "products":
		p, ok := f.products[mustUnit(args[0])]
		if !ok {
			return []string{"0", "0"}, nil
		}
		return []string{p.origin.String(), strconv.FormatUint(uint64(p.kind), 10)}, nil

	case "administeredToPatients":
		a, ok := f.administered[tokenKey{contract, mustUnit(args[0])}]
		if !ok {
			return []string{"0", ""}, nil
		}
		return []string{strconv.FormatInt(a.timestamp.Unix(), 10), a.patientID}, nil

	default:
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown token method %s", method)
	}
}

// Call implements ledger.Gateway. Each successful call lands in its own
// block; all events it emits share the block and transaction.
func (f *Fake) Call(ctx context.Context, contract domain.Address, method string, args []string, opts ledger.CallOpts) (ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailureLocked(method); err != nil {
		return ledger.Receipt{}, err
	}

	var events []eventSpec
	var err error

	switch {
	case contract == TrackerAddr:
		events, err = f.callTrackerLocked(method, args, opts)
	case contract == DonationAddr || contract == DerivativeAddr:
		events, err = f.callTokenLocked(contract, method, args, opts)
	default:
		err = dErrors.Newf(dErrors.CodeNotFound, "unknown contract %s", contract)
	}
	if err != nil {
		return ledger.Receipt{}, err
	}

	txHash := f.appendEventsLocked(contract, events)
	return ledger.Receipt{TxHash: txHash, BlockNumber: f.height}, nil
}

func (f *Fake) callTrackerLocked(method string, args []string, opts ledger.CallOpts) ([]eventSpec, error) {
	switch method {
	case "donate":
		donor := domain.Address(args[0])
		center := opts.From
		if f.companies[center].Role != domain.CompanyRoleDonationCenter {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "not donation center")
		}
		if f.companies[donor].Role != domain.CompanyRoleUnset {
			return nil, dErrors.New(dErrors.CodeConflict, "donor is a registered company")
		}
		if opts.Value == nil || opts.Value.Cmp(f.minFee) < 0 {
			return nil, dErrors.New(dErrors.CodeConflict, "insufficient payment: below minimum donation fee")
		}
		id := f.mintLocked(DonationAddr, center)
		value := "0"
		if opts.Value != nil {
			value = opts.Value.String()
		}
		return []eventSpec{
			{name: "Donation", args: map[string]string{
				"center": center.String(), "donor": donor.String(),
				"tokenId": id.String(), "value": value,
			}},
			{contract: DonationAddr, name: "Transfer", args: map[string]string{
				"from": domain.ZeroAddress.String(), "to": center.String(), "tokenId": id.String(),
			}},
		}, nil

	case "process":
		unit := mustUnit(args[0])
		lab := opts.From
		if f.companies[lab].Role != domain.CompanyRoleLaboratory {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "not laboratory")
		}
		key := tokenKey{DonationAddr, unit}
		owner, ok := f.owners[key]
		if !ok {
			return nil, dErrors.New(dErrors.CodeNotFound, "blood not found")
		}
		if owner == domain.ZeroAddress {
			return nil, dErrors.New(dErrors.CodeConflict, "already processed")
		}
		if owner != lab {
			return nil, dErrors.New(dErrors.CodeConflict, "wrong owner")
		}

		f.owners[key] = domain.ZeroAddress
		events := []eventSpec{{contract: DonationAddr, name: "Transfer", args: map[string]string{
			"from": lab.String(), "to": domain.ZeroAddress.String(), "tokenId": unit.String(),
		}}}

		var minted [3]domain.UnitID
		kinds := []domain.DerivativeKind{
			domain.DerivativePlasma, domain.DerivativeErythrocytes, domain.DerivativePlatelets,
		}
		for i, kind := range kinds {
			id := f.mintLocked(DerivativeAddr, lab)
			f.products[id] = productEntry{origin: unit, kind: kind}
			minted[i] = id
			events = append(events, eventSpec{contract: DerivativeAddr, name: "Transfer", args: map[string]string{
				"from": domain.ZeroAddress.String(), "to": lab.String(), "tokenId": id.String(),
			}})
		}
		f.donations[unit] = minted
		return events, nil

	case "listItem":
		tokenContract := domain.Address(args[0])
		unit := mustUnit(args[1])
		price, ok := new(big.Int).SetString(args[2], 10)
		if !ok || price.Sign() <= 0 {
			return nil, dErrors.New(dErrors.CodeConflict, "invalid value: price must be positive")
		}
		key := tokenKey{tokenContract, unit}
		owner, exists := f.owners[key]
		if !exists || owner != opts.From {
			return nil, dErrors.New(dErrors.CodeConflict, "wrong owner")
		}
		if f.approvals[key] != TrackerAddr {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "not authorized: marketplace approval missing")
		}
		if _, listed := f.listings[key]; listed {
			return nil, dErrors.New(dErrors.CodeConflict, "already listed")
		}
		f.listings[key] = listingEntry{price: price, seller: opts.From}
		return []eventSpec{{name: "ItemListed", args: map[string]string{
			"tokenContract": tokenContract.String(), "tokenId": unit.String(),
			"seller": opts.From.String(), "price": price.String(),
		}}}, nil

	case "buyItem":
		tokenContract := domain.Address(args[0])
		unit := mustUnit(args[1])
		key := tokenKey{tokenContract, unit}
		l, ok := f.listings[key]
		if !ok {
			return nil, dErrors.New(dErrors.CodeConflict, "not for sale")
		}
		if opts.From == l.seller {
			return nil, dErrors.New(dErrors.CodeConflict, "cannot buy own derivative")
		}
		if opts.Value == nil || opts.Value.Cmp(l.price) != 0 {
			return nil, dErrors.New(dErrors.CodeConflict, "insufficient payment")
		}
		// Ownership drift outside the marketplace invalidates the listing.
		if f.owners[key] != l.seller {
			return nil, dErrors.New(dErrors.CodeConflict, "not for sale: seller no longer owns unit")
		}
		delete(f.listings, key)
		delete(f.approvals, key)
		f.owners[key] = opts.From
		return []eventSpec{
			{contract: tokenContract, name: "Transfer", args: map[string]string{
				"from": l.seller.String(), "to": opts.From.String(), "tokenId": unit.String(),
			}},
			{name: "ItemSold", args: map[string]string{
				"tokenContract": tokenContract.String(), "tokenId": unit.String(),
				"seller": l.seller.String(), "buyer": opts.From.String(), "price": l.price.String(),
			}},
		}, nil

	case "cancelListing":
		tokenContract := domain.Address(args[0])
		unit := mustUnit(args[1])
		key := tokenKey{tokenContract, unit}
		l, ok := f.listings[key]
		if !ok {
			return nil, dErrors.New(dErrors.CodeConflict, "not for sale")
		}
		if opts.From != l.seller {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "only owner: caller is not the seller")
		}
		delete(f.listings, key)
		return []eventSpec{{name: "ListingCancelled", args: map[string]string{
			"tokenContract": tokenContract.String(), "tokenId": unit.String(),
			"seller": l.seller.String(),
		}}}, nil

	default:
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown tracker method %s", method)
	}
}

func (f *Fake) callTokenLocked(contract domain.Address, method string, args []string, opts ledger.CallOpts) ([]eventSpec, error) {
	switch method {
	case "approve":
		operator := domain.Address(args[0])
		unit := mustUnit(args[1])
		key := tokenKey{contract, unit}
		owner, ok := f.owners[key]
		if !ok || owner != opts.From {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "only owner")
		}
		f.approvals[key] = operator
		return nil, nil

	case "safeTransferFrom":
		from := domain.Address(args[0])
		to := domain.Address(args[1])
		unit := mustUnit(args[2])
		key := tokenKey{contract, unit}
		owner, ok := f.owners[key]
		if !ok {
			return nil, dErrors.New(dErrors.CodeNotFound, "token does not exist")
		}
		if owner != from {
			return nil, dErrors.New(dErrors.CodeConflict, "wrong owner")
		}
		if opts.From != from && f.approvals[key] != opts.From {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "not authorized")
		}
		f.owners[key] = to
		delete(f.approvals, key)
		return []eventSpec{{name: "Transfer", args: map[string]string{
			"from": from.String(), "to": to.String(), "tokenId": unit.String(),
		}}}, nil

	case "administerToPatient":
		unit := mustUnit(args[0])
		patientID := args[1]
		key := tokenKey{contract, unit}
		owner, ok := f.owners[key]
		if !ok || owner != opts.From {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "only owner")
		}
		if _, done := f.administered[key]; done {
			return nil, dErrors.New(dErrors.CodeConflict, "already administered")
		}
		f.administered[key] = administration{
			timestamp: f.blockTimeLocked(f.height + 1),
			patientID: patientID,
		}
		return []eventSpec{{name: "AdministeredToPatient", args: map[string]string{
			"tokenId": unit.String(), "hospital": opts.From.String(), "patientId": patientID,
		}}}, nil

	default:
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown token method %s", method)
	}
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

type eventSpec struct {
	// contract overrides the emitting contract; empty means the called one.
	contract domain.Address
	name     string
	args     map[string]string
}

func (f *Fake) mintLocked(contract domain.Address, owner domain.Address) domain.UnitID {
	id := domain.UnitID(f.nextUnit[contract])
	f.nextUnit[contract]++
	f.owners[tokenKey{contract, id}] = owner
	return id
}

// appendEventsLocked mines one block containing the given events and
// returns its transaction hash.
func (f *Fake) appendEventsLocked(called domain.Address, events []eventSpec) string {
	f.height++
	f.txSeq++
	txHash := fmt.Sprintf("0x%064x", f.txSeq)
	ts := f.blockTimeLocked(f.height)

	for i, spec := range events {
		contract := spec.contract
		if contract == "" {
			contract = called
		}
		f.events = append(f.events, ledger.RawEvent{
			Name:        spec.name,
			Contract:    contract,
			BlockNumber: f.height,
			TxIndex:     0,
			LogIndex:    uint64(i),
			TxHash:      txHash,
			Timestamp:   ts,
			Args:        spec.args,
		})
	}
	return txHash
}

func (f *Fake) blockTimeLocked(height uint64) time.Time {
	return f.genesis.Add(time.Duration(height) * 12 * time.Second)
}

func (f *Fake) takeFailureLocked(method string) error {
	if err, ok := f.failNext[method]; ok {
		delete(f.failNext, method)
		return err
	}
	return nil
}

func mustUnit(s string) domain.UnitID {
	n, _ := strconv.ParseUint(s, 10, 64)
	return domain.UnitID(n)
}

func sortNumeric(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.ParseUint(ids[i], 10, 64)
		b, _ := strconv.ParseUint(ids[j], 10, 64)
		return a < b
	})
}
