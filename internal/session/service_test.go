package session_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bloodtrace/internal/contracts"
	"bloodtrace/internal/ledger"
	"bloodtrace/internal/ledger/ledgertest"
	"bloodtrace/internal/roles"
	"bloodtrace/internal/session"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
)

type SessionSuite struct {
	suite.Suite
	ctx     context.Context
	fake    *ledgertest.Fake
	tracker *contracts.Tracker
	svc     *session.Service
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.ctx = context.Background()
	s.fake = ledgertest.New()
	s.tracker = contracts.NewTracker(s.fake, ledgertest.TrackerAddr)
	scanner := ledger.NewScanner(s.fake, ledger.WithChunkSize(100))
	resolver := roles.NewResolver(s.tracker, scanner)
	s.svc = session.NewService(s.fake, resolver, 31337,
		session.WithClock(func() time.Time {
			return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		}))
}

func (s *SessionSuite) TestConnectBindsIdentityAndNetwork() {
	sess, err := s.svc.Connect(s.ctx, session.StaticSigner{Addr: "0x000000000000000000000000000000000000BEEF", Chain: 31337})
	s.Require().NoError(err)

	s.NotEmpty(sess.ID)
	s.Equal(session.PhaseConnected, sess.Phase)
	// Addresses are normalized to lowercase on the way in.
	s.Equal(domain.Address("0x000000000000000000000000000000000000beef"), sess.Identity)
	s.Equal(uint64(31337), sess.Network.ChainID)
	s.Equal("Anvil", sess.Network.Name)
	s.Nil(sess.Classification)
}

func (s *SessionSuite) TestConnectRejectsChainMismatch() {
	scanner := ledger.NewScanner(s.fake, ledger.WithChunkSize(100))
	resolver := roles.NewResolver(s.tracker, scanner)
	svc := session.NewService(s.fake, resolver, 11155111)

	_, err := svc.Connect(s.ctx, session.StaticSigner{Addr: "0x000000000000000000000000000000000000beef", Chain: 31337})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConnectivity))
	s.Contains(err.Error(), "Sepolia")
}

func (s *SessionSuite) TestConnectRejectsSignerOnDifferentChain() {
	_, err := s.svc.Connect(s.ctx, session.StaticSigner{Addr: "0x000000000000000000000000000000000000beef", Chain: 1})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConnectivity))
	s.Contains(err.Error(), "Mainnet")
}

func (s *SessionSuite) TestIdentityChangeDropsClassification() {
	center := domain.Address("0x0000000000000000000000000000000000000c01")
	s.fake.RegisterCompany(domain.Company{
		Address: center, Role: domain.CompanyRoleDonationCenter, Status: domain.CompanyStatusApproved,
	})

	sess, err := s.svc.Connect(s.ctx, session.StaticSigner{Addr: center, Chain: 31337})
	s.Require().NoError(err)
	_, err = s.svc.Classify(s.ctx, sess.ID)
	s.Require().NoError(err)

	next := domain.Address("0x000000000000000000000000000000000000beef")
	changed, err := s.svc.IdentityChanged(s.ctx, sess.ID, next)
	s.Require().NoError(err)
	s.Equal(session.PhaseConnected, changed.Phase)
	s.Equal(next, changed.Identity)
	s.Nil(changed.Classification)
	s.True(changed.ClassifiedAt.IsZero())

	reclassified, err := s.svc.Classify(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(domain.RoleUnregistered, reclassified.Classification.Role)
}

func (s *SessionSuite) TestIdentityChangeSameAddressIsNoop() {
	center := domain.Address("0x0000000000000000000000000000000000000c01")
	s.fake.RegisterCompany(domain.Company{
		Address: center, Role: domain.CompanyRoleDonationCenter, Status: domain.CompanyStatusApproved,
	})
	sess, err := s.svc.Connect(s.ctx, session.StaticSigner{Addr: center, Chain: 31337})
	s.Require().NoError(err)
	classified, err := s.svc.Classify(s.ctx, sess.ID)
	s.Require().NoError(err)

	same, err := s.svc.IdentityChanged(s.ctx, sess.ID, center)
	s.Require().NoError(err)
	s.Equal(classified.Phase, same.Phase)
	s.NotNil(same.Classification)
}

func (s *SessionSuite) TestConnectRejectsMalformedIdentity() {
	_, err := s.svc.Connect(s.ctx, session.StaticSigner{Addr: "not-an-address", Chain: 31337})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *SessionSuite) TestClassifyResolvesRole() {
	center := domain.Address("0x0000000000000000000000000000000000000c01")
	s.fake.RegisterCompany(domain.Company{
		Address: center, Role: domain.CompanyRoleDonationCenter, Status: domain.CompanyStatusApproved,
	})

	sess, err := s.svc.Connect(s.ctx, session.StaticSigner{Addr: center, Chain: 31337})
	s.Require().NoError(err)

	classified, err := s.svc.Classify(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(session.PhaseClassified, classified.Phase)
	s.Require().NotNil(classified.Classification)
	s.Equal(domain.RoleDonationCenter, classified.Classification.Role)
	s.False(classified.ClassifiedAt.IsZero())
}

// Classification reflects current ledger state, so re-classifying picks up
// role changes made after connect.
func (s *SessionSuite) TestReclassifyRefreshesRole() {
	addr := domain.Address("0x000000000000000000000000000000000000d001")
	center := domain.Address("0x0000000000000000000000000000000000000c01")
	s.fake.RegisterCompany(domain.Company{
		Address: center, Role: domain.CompanyRoleDonationCenter, Status: domain.CompanyStatusApproved,
	})

	sess, err := s.svc.Connect(s.ctx, session.StaticSigner{Addr: addr, Chain: 31337})
	s.Require().NoError(err)

	first, err := s.svc.Classify(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(domain.RoleUnregistered, first.Classification.Role)

	_, err = s.tracker.Donate(s.ctx, center, addr, big.NewInt(0))
	s.Require().NoError(err)

	second, err := s.svc.Classify(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(domain.RoleDonor, second.Classification.Role)
}

func (s *SessionSuite) TestClassifyUnknownSession() {
	_, err := s.svc.Classify(s.ctx, "missing")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *SessionSuite) TestDisconnectDiscardsState() {
	sess, err := s.svc.Connect(s.ctx, session.StaticSigner{Addr: "0x000000000000000000000000000000000000beef", Chain: 31337})
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Disconnect(s.ctx, sess.ID))

	_, err = s.svc.Get(s.ctx, sess.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.svc.Disconnect(s.ctx, sess.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestNetworkName(t *testing.T) {
	cases := map[uint64]string{
		1:        "Mainnet",
		5:        "Goerli",
		11155111: "Sepolia",
		2018:     "Besu",
		1337:     "Ganache",
		31337:    "Anvil",
		424242:   "Unknown",
	}
	for chainID, want := range cases {
		if got := session.NetworkName(chainID); got != want {
			t.Errorf("NetworkName(%d) = %q, want %q", chainID, got, want)
		}
	}
}
