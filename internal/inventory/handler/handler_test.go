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
	"bloodtrace/internal/inventory"
	invhandler "bloodtrace/internal/inventory/handler"
	"bloodtrace/internal/ledger"
	"bloodtrace/internal/ledger/ledgertest"
	"bloodtrace/pkg/domain"
	"bloodtrace/pkg/testutil"
)

const (
	centerAddr = domain.Address("0x0000000000000000000000000000000000000c01")
	donorAddr  = domain.Address("0x000000000000000000000000000000000000d001")
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()

	fake := ledgertest.New()
	tracker := contracts.NewTracker(fake, ledgertest.TrackerAddr)
	donation := contracts.NewUnitToken(fake, ledgertest.DonationAddr, domain.TokenClassDonation)
	derivative := contracts.NewUnitToken(fake, ledgertest.DerivativeAddr, domain.TokenClassDerivative)
	scanner := ledger.NewScanner(fake, ledger.WithChunkSize(100))
	projector := inventory.NewProjector(tracker, donation, derivative, scanner)

	fake.RegisterCompany(domain.Company{
		Address: centerAddr, Role: domain.CompanyRoleDonationCenter,
		Status: domain.CompanyStatusApproved, Name: "Central Blood Bank",
	})
	_, err := tracker.Donate(ctx, centerAddr, donorAddr, big.NewInt(0))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	r := chi.NewRouter()
	invhandler.New(projector, logger).Register(r)
	return r
}

func TestPortfolio(t *testing.T) {
	router := newRouter(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet,
		"/inventory/"+centerAddr.String(), nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	portfolio := testutil.UnmarshalResponse[inventory.Portfolio](t, rr)
	require.Len(t, portfolio.DonationUnits, 1)
	require.Empty(t, portfolio.DerivativeUnits)
}

func TestDonationsView(t *testing.T) {
	router := newRouter(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet,
		"/inventory/"+donorAddr.String()+"/donations", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	records := testutil.UnmarshalResponse[[]inventory.DonationRecord](t, rr)
	require.Len(t, *records, 1)
	require.Equal(t, "Central Blood Bank", (*records)[0].CenterName)
}

func TestExtractionsView(t *testing.T) {
	router := newRouter(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet,
		"/inventory/"+centerAddr.String()+"/extractions", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	records := testutil.UnmarshalResponse[[]inventory.DonationRecord](t, rr)
	require.Len(t, *records, 1)
	require.Equal(t, donorAddr, (*records)[0].Donor)
}

func TestMalformedAddress(t *testing.T) {
	router := newRouter(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet,
		"/inventory/bogus", nil))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}
