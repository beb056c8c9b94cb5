package market_test

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"bloodtrace/internal/contracts"
	"bloodtrace/internal/ledger/ledgertest"
	"bloodtrace/internal/market"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
)

type CoordinatorSuite struct {
	suite.Suite
	ctx context.Context

	fake        *ledgertest.Fake
	tracker     *contracts.Tracker
	donation    *contracts.UnitToken
	derivative  *contracts.UnitToken
	coordinator *market.Coordinator

	center  domain.Address
	lab     domain.Address
	trader  domain.Address
	trader2 domain.Address
	donor   domain.Address
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.fake = ledgertest.New()
	s.tracker = contracts.NewTracker(s.fake, ledgertest.TrackerAddr)
	s.donation = contracts.NewUnitToken(s.fake, ledgertest.DonationAddr, domain.TokenClassDonation)
	s.derivative = contracts.NewUnitToken(s.fake, ledgertest.DerivativeAddr, domain.TokenClassDerivative)
	s.coordinator = market.NewCoordinator(s.tracker, s.donation, s.derivative)

	s.center = "0x0000000000000000000000000000000000000c01"
	s.lab = "0x0000000000000000000000000000000000001ab0"
	s.trader = "0x000000000000000000000000000000000000aaa1"
	s.trader2 = "0x000000000000000000000000000000000000aaa2"
	s.donor = "0x000000000000000000000000000000000000d001"

	s.fake.RegisterCompany(domain.Company{
		Address: s.center, Role: domain.CompanyRoleDonationCenter, Status: domain.CompanyStatusApproved,
	})
	s.fake.RegisterCompany(domain.Company{
		Address: s.lab, Role: domain.CompanyRoleLaboratory, Status: domain.CompanyStatusApproved,
	})
	s.fake.RegisterCompany(domain.Company{
		Address: s.trader, Role: domain.CompanyRoleTrader, Status: domain.CompanyStatusApproved,
	})
	s.fake.RegisterCompany(domain.Company{
		Address: s.trader2, Role: domain.CompanyRoleTrader, Status: domain.CompanyStatusApproved,
	})
}

func (s *CoordinatorSuite) mintDerivatives() contracts.DerivativeSet {
	_, err := s.tracker.Donate(s.ctx, s.center, s.donor, big.NewInt(0))
	s.Require().NoError(err)
	id, err := s.donation.TokenOfOwnerByIndex(s.ctx, s.center, 0)
	s.Require().NoError(err)
	_, err = s.donation.TransferFrom(s.ctx, s.center, s.center, s.lab, id)
	s.Require().NoError(err)
	_, err = s.tracker.Process(s.ctx, s.lab, id)
	s.Require().NoError(err)
	set, err := s.donation.Derivatives(s.ctx, id)
	s.Require().NoError(err)
	return set
}

func (s *CoordinatorSuite) TestListApprovesThenLists() {
	set := s.mintDerivatives()

	_, err := s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().NoError(err)

	listing, err := s.tracker.Listing(s.ctx, s.derivative.Address(), set.Plasma)
	s.Require().NoError(err)
	s.True(listing.Active())
	s.Equal(s.lab, listing.Seller)
}

func (s *CoordinatorSuite) TestListRejectsNonOwner() {
	set := s.mintDerivatives()

	_, err := s.coordinator.List(s.ctx, s.trader, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *CoordinatorSuite) TestListRejectsNonPositivePrice() {
	set := s.mintDerivatives()

	for _, price := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		_, err := s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, price)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}
}

func (s *CoordinatorSuite) TestListRejectsDoubleListing() {
	set := s.mintDerivatives()

	_, err := s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().NoError(err)

	_, err = s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(200))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *CoordinatorSuite) TestPurchaseTransfersOwnership() {
	set := s.mintDerivatives()
	_, err := s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().NoError(err)

	_, err = s.coordinator.Purchase(s.ctx, s.trader, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().NoError(err)

	owner, err := s.derivative.OwnerOf(s.ctx, set.Plasma)
	s.Require().NoError(err)
	s.Equal(s.trader, owner)
}

func (s *CoordinatorSuite) TestPurchaseOfUnlistedUnit() {
	set := s.mintDerivatives()

	_, err := s.coordinator.Purchase(s.ctx, s.trader, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

// A seller who cancels and relists at a new price between the buyer's
// view and the buy call must not be paid the new price: the purchase
// carries the price the buyer agreed to and is refused on mismatch.
func (s *CoordinatorSuite) TestPurchaseRejectsRepricedListing() {
	set := s.mintDerivatives()
	_, err := s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().NoError(err)

	_, err = s.coordinator.Cancel(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma)
	s.Require().NoError(err)
	_, err = s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(10000))
	s.Require().NoError(err)

	_, err = s.coordinator.Purchase(s.ctx, s.trader, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	owner, err := s.derivative.OwnerOf(s.ctx, set.Plasma)
	s.Require().NoError(err)
	s.Equal(s.lab, owner, "no transfer happens on a price mismatch")

	// Agreeing to the relisted price goes through.
	_, err = s.coordinator.Purchase(s.ctx, s.trader, domain.TokenClassDerivative, set.Plasma, big.NewInt(10000))
	s.Require().NoError(err)
}

func (s *CoordinatorSuite) TestPurchaseRejectsNonPositivePrice() {
	set := s.mintDerivatives()
	_, err := s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().NoError(err)

	for _, price := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		_, err := s.coordinator.Purchase(s.ctx, s.trader, domain.TokenClassDerivative, set.Plasma, price)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}
}

func (s *CoordinatorSuite) TestPurchaseOwnListingRejected() {
	set := s.mintDerivatives()
	_, err := s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().NoError(err)

	_, err = s.coordinator.Purchase(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

// Two buyers race for one listing: exactly one wins, the loser observes a
// conflict, and the unit ends up owned by the winner.
func (s *CoordinatorSuite) TestPurchaseRaceHasOneWinner() {
	set := s.mintDerivatives()
	_, err := s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().NoError(err)

	buyers := []domain.Address{s.trader, s.trader2}
	errs := make([]error, len(buyers))

	var wg sync.WaitGroup
	for i, buyer := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.coordinator.Purchase(s.ctx, buyer, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
		}()
	}
	wg.Wait()

	var winners, losers int
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeConflict), "loser sees a conflict, got %v", err)
			losers++
		}
	}
	s.Equal(1, winners)
	s.Equal(1, losers)

	owner, err := s.derivative.OwnerOf(s.ctx, set.Plasma)
	s.Require().NoError(err)
	s.Contains(buyers, owner)
}

func (s *CoordinatorSuite) TestCancelBySeller() {
	set := s.mintDerivatives()
	_, err := s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().NoError(err)

	_, err = s.coordinator.Cancel(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma)
	s.Require().NoError(err)

	listing, err := s.tracker.Listing(s.ctx, s.derivative.Address(), set.Plasma)
	s.Require().NoError(err)
	s.False(listing.Active())
}

func (s *CoordinatorSuite) TestCancelByNonSeller() {
	set := s.mintDerivatives()
	_, err := s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().NoError(err)

	_, err = s.coordinator.Cancel(s.ctx, s.trader, domain.TokenClassDerivative, set.Plasma)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *CoordinatorSuite) TestCancelUnlisted() {
	set := s.mintDerivatives()

	_, err := s.coordinator.Cancel(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CoordinatorSuite) TestOnSaleEnrichesDerivatives() {
	set := s.mintDerivatives()
	_, err := s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Plasma, big.NewInt(100))
	s.Require().NoError(err)
	_, err = s.coordinator.List(s.ctx, s.lab, domain.TokenClassDerivative, set.Platelets, big.NewInt(300))
	s.Require().NoError(err)

	offers, err := s.coordinator.OnSale(s.ctx, domain.TokenClassDerivative)
	s.Require().NoError(err)
	s.Require().Len(offers, 2)

	s.Equal(set.Plasma, offers[0].UnitID)
	s.Equal(domain.DerivativePlasma, offers[0].Kind)
	s.Equal(s.lab, offers[0].Seller)
	s.Zero(big.NewInt(100).Cmp(offers[0].Price))

	s.Equal(set.Platelets, offers[1].UnitID)
	s.Equal(domain.DerivativePlatelets, offers[1].Kind)
}

func (s *CoordinatorSuite) TestOnSaleEmptyMarket() {
	offers, err := s.coordinator.OnSale(s.ctx, domain.TokenClassDerivative)
	s.Require().NoError(err)
	s.Empty(offers)
}
