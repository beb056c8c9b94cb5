package handler_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"bloodtrace/internal/contracts"
	"bloodtrace/internal/ledger"
	"bloodtrace/internal/ledger/ledgertest"
	"bloodtrace/internal/roles"
	roleshandler "bloodtrace/internal/roles/handler"
	"bloodtrace/pkg/domain"
	"bloodtrace/pkg/testutil"
)

func newRouter(fake *ledgertest.Fake) http.Handler {
	tracker := contracts.NewTracker(fake, ledgertest.TrackerAddr)
	scanner := ledger.NewScanner(fake, ledger.WithChunkSize(100))
	resolver := roles.NewResolver(tracker, scanner)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	r := chi.NewRouter()
	roleshandler.New(resolver, logger).Register(r)
	return r
}

func TestResolveCompany(t *testing.T) {
	fake := ledgertest.New()
	lab := domain.Address("0x0000000000000000000000000000000000001ab0")
	fake.RegisterCompany(domain.Company{
		Address: lab, Role: domain.CompanyRoleLaboratory,
		Status: domain.CompanyStatusApproved, Name: "Hemoderivatives Lab",
	})
	router := newRouter(fake)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet,
		"/roles/"+lab.String(), nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	c := testutil.UnmarshalResponse[roles.Classification](t, rr)
	require.Equal(t, domain.RoleLaboratory, c.Role)
	require.NotNil(t, c.Company)
	require.Equal(t, "Hemoderivatives Lab", c.Company.Name)
}

func TestResolveUnregistered(t *testing.T) {
	router := newRouter(ledgertest.New())

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet,
		"/roles/0x000000000000000000000000000000000000beef", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	c := testutil.UnmarshalResponse[roles.Classification](t, rr)
	require.Equal(t, domain.RoleUnregistered, c.Role)
}

func TestResolveMalformedAddress(t *testing.T) {
	router := newRouter(ledgertest.New())

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet,
		"/roles/not-an-address", nil))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}
