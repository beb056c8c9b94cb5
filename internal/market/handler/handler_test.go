package handler_test

import (
	"bytes"
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"bloodtrace/internal/contracts"
	"bloodtrace/internal/ledger/ledgertest"
	"bloodtrace/internal/market"
	markethandler "bloodtrace/internal/market/handler"
	"bloodtrace/internal/platform/middleware"
	"bloodtrace/pkg/domain"
	"bloodtrace/pkg/testutil"
)

const (
	centerAddr = domain.Address("0x0000000000000000000000000000000000000c01")
	labAddr    = domain.Address("0x0000000000000000000000000000000000001ab0")
	traderAddr = domain.Address("0x000000000000000000000000000000000000aaa1")
	donorAddr  = domain.Address("0x000000000000000000000000000000000000d001")
)

type env struct {
	fake       *ledgertest.Fake
	tracker    *contracts.Tracker
	donation   *contracts.UnitToken
	derivative *contracts.UnitToken
	set        contracts.DerivativeSet
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	fake := ledgertest.New()
	tracker := contracts.NewTracker(fake, ledgertest.TrackerAddr)
	donation := contracts.NewUnitToken(fake, ledgertest.DonationAddr, domain.TokenClassDonation)
	derivative := contracts.NewUnitToken(fake, ledgertest.DerivativeAddr, domain.TokenClassDerivative)

	fake.RegisterCompany(domain.Company{
		Address: centerAddr, Role: domain.CompanyRoleDonationCenter, Status: domain.CompanyStatusApproved,
	})
	fake.RegisterCompany(domain.Company{
		Address: labAddr, Role: domain.CompanyRoleLaboratory, Status: domain.CompanyStatusApproved,
	})
	fake.RegisterCompany(domain.Company{
		Address: traderAddr, Role: domain.CompanyRoleTrader, Status: domain.CompanyStatusApproved,
	})

	_, err := tracker.Donate(ctx, centerAddr, donorAddr, big.NewInt(0))
	require.NoError(t, err)
	id, err := donation.TokenOfOwnerByIndex(ctx, centerAddr, 0)
	require.NoError(t, err)
	_, err = donation.TransferFrom(ctx, centerAddr, centerAddr, labAddr, id)
	require.NoError(t, err)
	_, err = tracker.Process(ctx, labAddr, id)
	require.NoError(t, err)
	set, err := donation.Derivatives(ctx, id)
	require.NoError(t, err)

	return &env{fake: fake, tracker: tracker, donation: donation, derivative: derivative, set: set}
}

func (e *env) router(identity domain.Address) http.Handler {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	coordinator := market.NewCoordinator(e.tracker, e.donation, e.derivative)
	h := markethandler.New(coordinator, logger)

	r := chi.NewRouter()
	if !identity.IsZero() {
		r.Use(middleware.SessionIdentity(identity))
	}
	h.Register(r)
	return r
}

func TestListAndViewListings(t *testing.T) {
	e := newEnv(t)
	router := e.router(labAddr)

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/market/derivative/"+e.set.Plasma.String()+"/listing",
		markethandler.ListRequest{Price: "1000"})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	receipt := testutil.UnmarshalResponse[markethandler.ReceiptResponse](t, rr)
	require.NotEmpty(t, receipt.TxHash)

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/market/derivative/listings", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	offers := testutil.UnmarshalResponse[[]market.Offer](t, rr)
	require.Len(t, *offers, 1)
	require.Equal(t, e.set.Plasma, (*offers)[0].UnitID)
	require.Equal(t, labAddr, (*offers)[0].Seller)
}

func TestListWithoutIdentity(t *testing.T) {
	e := newEnv(t)
	router := e.router("")

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/market/derivative/"+e.set.Plasma.String()+"/listing",
		markethandler.ListRequest{Price: "1000"})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	testutil.AssertErrorCode(t, rr, "unauthorized")
}

func TestListMalformedPrice(t *testing.T) {
	e := newEnv(t)
	router := e.router(labAddr)

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/market/derivative/"+e.set.Plasma.String()+"/listing",
		markethandler.ListRequest{Price: "a lot"})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestListUnknownClass(t *testing.T) {
	e := newEnv(t)
	router := e.router(labAddr)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/market/vials/1/listing",
		markethandler.ListRequest{Price: "10"})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestPurchaseFlow(t *testing.T) {
	e := newEnv(t)
	sellerRouter := e.router(labAddr)
	buyerRouter := e.router(traderAddr)

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/market/derivative/"+e.set.Plasma.String()+"/listing",
		markethandler.ListRequest{Price: "500"})
	testutil.AssertStatus(t, testutil.DoRequest(sellerRouter, req), http.StatusCreated)

	req = testutil.NewJSONRequest(t, http.MethodPost,
		"/market/derivative/"+e.set.Plasma.String()+"/purchase",
		markethandler.PurchaseRequest{Price: "500"})
	rr := testutil.DoRequest(buyerRouter, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	owner, err := e.derivative.OwnerOf(context.Background(), e.set.Plasma)
	require.NoError(t, err)
	require.Equal(t, traderAddr, owner)

	// A second purchase of the same unit conflicts.
	rr = testutil.DoRequest(buyerRouter, testutil.NewJSONRequest(t, http.MethodPost,
		"/market/derivative/"+e.set.Plasma.String()+"/purchase",
		markethandler.PurchaseRequest{Price: "500"}))
	testutil.AssertStatus(t, rr, http.StatusConflict)
	testutil.AssertErrorCode(t, rr, "state_conflict")
}

func TestPurchaseAtStalePrice(t *testing.T) {
	e := newEnv(t)
	sellerRouter := e.router(labAddr)
	buyerRouter := e.router(traderAddr)

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/market/derivative/"+e.set.Plasma.String()+"/listing",
		markethandler.ListRequest{Price: "100"})
	testutil.AssertStatus(t, testutil.DoRequest(sellerRouter, req), http.StatusCreated)

	// Seller cancels and relists at a higher price behind the buyer's back.
	rr := testutil.DoRequest(sellerRouter, testutil.NewJSONRequest(t, http.MethodDelete,
		"/market/derivative/"+e.set.Plasma.String()+"/listing", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	req = testutil.NewJSONRequest(t, http.MethodPost,
		"/market/derivative/"+e.set.Plasma.String()+"/listing",
		markethandler.ListRequest{Price: "10000"})
	testutil.AssertStatus(t, testutil.DoRequest(sellerRouter, req), http.StatusCreated)

	rr = testutil.DoRequest(buyerRouter, testutil.NewJSONRequest(t, http.MethodPost,
		"/market/derivative/"+e.set.Plasma.String()+"/purchase",
		markethandler.PurchaseRequest{Price: "100"}))
	testutil.AssertStatus(t, rr, http.StatusConflict)
	testutil.AssertErrorCode(t, rr, "state_conflict")

	owner, err := e.derivative.OwnerOf(context.Background(), e.set.Plasma)
	require.NoError(t, err)
	require.Equal(t, labAddr, owner)
}

func TestPurchaseMalformedPrice(t *testing.T) {
	e := newEnv(t)
	router := e.router(traderAddr)

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/market/derivative/"+e.set.Plasma.String()+"/purchase",
		markethandler.PurchaseRequest{Price: "whatever it costs"})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestCancelListing(t *testing.T) {
	e := newEnv(t)
	sellerRouter := e.router(labAddr)
	strangerRouter := e.router(traderAddr)

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/market/derivative/"+e.set.Plasma.String()+"/listing",
		markethandler.ListRequest{Price: "500"})
	testutil.AssertStatus(t, testutil.DoRequest(sellerRouter, req), http.StatusCreated)

	rr := testutil.DoRequest(strangerRouter, testutil.NewJSONRequest(t, http.MethodDelete,
		"/market/derivative/"+e.set.Plasma.String()+"/listing", nil))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	rr = testutil.DoRequest(sellerRouter, testutil.NewJSONRequest(t, http.MethodDelete,
		"/market/derivative/"+e.set.Plasma.String()+"/listing", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
}
