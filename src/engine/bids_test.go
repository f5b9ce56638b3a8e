package engine

import (
	"errors"
	"fmt"
	"homejobs/src/apperr"
	"homejobs/src/events"
	"homejobs/src/models"
	"homejobs/src/types"
	"sync"
	"time"
)

// Two bids on a $50-$150 booking, the first is accepted and the second is
// rejected in the same commit.
func (s *EngineTestSuite) TestAcceptBidRejectsSiblings() {
	b := s.createBooking("customer-1")
	first := s.submitBid(b.ID, "contractor-1", 8000)
	second := s.submitBid(b.ID, "contractor-2", 9500)
	s.rec.Reset()

	res, err := s.svc.AcceptBid(s.ctx, first.ID, "customer-1")
	s.Require().NoError(err)
	s.Equal(types.STAGE_ASSIGNED, res.Booking.Stage)
	s.Equal("contractor-1", res.Booking.AssignedContractor())
	s.Equal(int64(8000), res.Booking.AcceptedAmount)
	s.Equal(types.BID_ACCEPTED, res.WinningBid.Status)

	bids, err := s.svc.ListBids(s.ctx, b.ID)
	s.Require().NoError(err)
	status := map[string]types.BidStatus{}
	for _, bid := range bids {
		status[bid.ID] = bid.Status
	}
	s.Equal(types.BID_ACCEPTED, status[first.ID])
	s.Equal(types.BID_REJECTED, status[second.ID])

	s.ElementsMatch([]events.Type{events.BookingStageChanged, events.BidAccepted, events.BidRejected}, s.rec.Types())
	rejected := s.rec.Of(events.BidRejected)
	s.Equal(second.ID, rejected[0].Data["bid_id"])
}

func (s *EngineTestSuite) TestAcceptBidRetryReturnsSameResult() {
	b := s.createBooking("customer-1")
	bid := s.submitBid(b.ID, "contractor-1", 8000)

	first, err := s.svc.AcceptBid(s.ctx, bid.ID, "customer-1")
	s.Require().NoError(err)
	emitted := len(s.rec.Events())

	second, err := s.svc.AcceptBid(s.ctx, bid.ID, "customer-1")
	s.Require().NoError(err)
	s.Equal(first.Booking.Version, second.Booking.Version)
	s.Equal(first.WinningBid.ID, second.WinningBid.ID)
	s.Len(s.rec.Events(), emitted)

	_, err = s.svc.AcceptBid(s.ctx, bid.ID, "customer-2")
	s.requireKind(err, apperr.Forbidden)
}

func (s *EngineTestSuite) TestAcceptRejectedBidFails() {
	b := s.createBooking("customer-1")
	first := s.submitBid(b.ID, "contractor-1", 8000)
	second := s.submitBid(b.ID, "contractor-2", 9500)
	_, err := s.svc.AcceptBid(s.ctx, first.ID, "customer-1")
	s.Require().NoError(err)

	_, err = s.svc.AcceptBid(s.ctx, second.ID, "customer-1")
	s.ErrorIs(err, apperr.ErrBidNoLongerAvailable)
	s.True(apperr.Retryable(err))
	s.Equal("contractor-1", s.reload(b.ID).AssignedContractor())
}

func (s *EngineTestSuite) TestNoAcceptAfterExpiry() {
	b := s.createBooking("customer-1")
	bid, err := s.svc.SubmitBid(s.ctx, types.Contractor("contractor-1"), SubmitBidInput{
		BookingID: b.ID, ContractorID: "contractor-1", Amount: 8000, ETAMinutes: 30, ExpiresInMinutes: 10,
	})
	s.Require().NoError(err)
	s.Equal(epoch.Add(10*time.Minute), bid.ExpiresAt.UTC())

	s.clock.Advance(10 * time.Minute)
	_, err = s.svc.AcceptBid(s.ctx, bid.ID, "customer-1")
	s.requireKind(err, apperr.Conflict)
	s.ErrorIs(err, apperr.ErrBidNoLongerAvailable)

	var stored models.Bid
	s.Require().NoError(s.db.First(&stored, "id = ?", bid.ID).Error)
	s.Equal(types.BID_EXPIRED, stored.Status)

	got := s.reload(b.ID)
	s.Equal(types.STAGE_SEEKING_CONTRACTOR, got.Stage)
	s.Nil(got.AssignedContractorID)
}

func (s *EngineTestSuite) TestAcceptExpiresStaleSiblings() {
	b := s.createBooking("customer-1")
	short, err := s.svc.SubmitBid(s.ctx, types.Contractor("contractor-1"), SubmitBidInput{
		BookingID: b.ID, ContractorID: "contractor-1", Amount: 7000, ETAMinutes: 30, ExpiresInMinutes: 5,
	})
	s.Require().NoError(err)
	long := s.submitBid(b.ID, "contractor-2", 9000)

	s.clock.Advance(6 * time.Minute)
	_, err = s.svc.AcceptBid(s.ctx, long.ID, "customer-1")
	s.Require().NoError(err)

	var stored models.Bid
	s.Require().NoError(s.db.First(&stored, "id = ?", short.ID).Error)
	s.Equal(types.BID_EXPIRED, stored.Status)
}

func (s *EngineTestSuite) TestExpiryWindowIsClamped() {
	b := s.createBooking("customer-1")
	bid, err := s.svc.SubmitBid(s.ctx, types.Contractor("contractor-1"), SubmitBidInput{
		BookingID: b.ID, ContractorID: "contractor-1", Amount: 8000, ETAMinutes: 30, ExpiresInMinutes: 600,
	})
	s.Require().NoError(err)
	s.Equal(epoch.Add(2*time.Hour), bid.ExpiresAt.UTC())

	other := s.submitBid(b.ID, "contractor-2", 8000)
	s.Equal(epoch.Add(30*time.Minute), other.ExpiresAt.UTC())
}

func (s *EngineTestSuite) TestDuplicateBid() {
	b := s.createBooking("customer-1")
	s.submitBid(b.ID, "contractor-1", 8000)

	_, err := s.svc.SubmitBid(s.ctx, types.Contractor("contractor-1"), SubmitBidInput{
		BookingID: b.ID, ContractorID: "contractor-1", Amount: 7500, ETAMinutes: 30,
	})
	s.requireKind(err, apperr.Conflict)
	s.ErrorIs(err, apperr.ErrDuplicateBid)

	// Once the first bid lapses the contractor may bid again.
	s.clock.Advance(31 * time.Minute)
	again := s.submitBid(b.ID, "contractor-1", 7500)
	s.Equal(types.BID_PENDING, again.Status)
}

func (s *EngineTestSuite) TestSubmitBidValidation() {
	b := s.createBooking("customer-1")
	cases := []SubmitBidInput{
		{BookingID: b.ID, ContractorID: "contractor-1", Amount: 0, ETAMinutes: 30},
		{BookingID: b.ID, ContractorID: "contractor-1", Amount: 100, ETAMinutes: 0},
		{BookingID: b.ID, ContractorID: "contractor-1", Amount: 100, ETAMinutes: 10, IncludedItems: types.IncludedItems{{Name: "freon", Cost: -1}}},
	}
	for _, in := range cases {
		_, err := s.svc.SubmitBid(s.ctx, types.Contractor("contractor-1"), in)
		s.requireKind(err, apperr.ValidationError)
	}

	_, err := s.svc.SubmitBid(s.ctx, types.Contractor("contractor-2"), SubmitBidInput{BookingID: b.ID, ContractorID: "contractor-1", Amount: 100, ETAMinutes: 10})
	s.requireKind(err, apperr.Forbidden)

	_, err = s.svc.SubmitBid(s.ctx, types.Contractor("contractor-1"), SubmitBidInput{BookingID: "missing", ContractorID: "contractor-1", Amount: 100, ETAMinutes: 10})
	s.requireKind(err, apperr.NotFound)

	assigned := s.assigned()
	_, err = s.svc.SubmitBid(s.ctx, types.Contractor("contractor-9"), SubmitBidInput{BookingID: assigned.ID, ContractorID: "contractor-9", Amount: 100, ETAMinutes: 10})
	s.requireKind(err, apperr.InvalidState)
}

func (s *EngineTestSuite) TestRejectBid() {
	b := s.createBooking("customer-1")
	first := s.submitBid(b.ID, "contractor-1", 8000)
	second := s.submitBid(b.ID, "contractor-2", 9000)

	_, err := s.svc.RejectBid(s.ctx, first.ID, "customer-2", "")
	s.requireKind(err, apperr.Forbidden)

	rejected, err := s.svc.RejectBid(s.ctx, first.ID, "customer-1", "too slow")
	s.Require().NoError(err)
	s.Equal(types.BID_REJECTED, rejected.Status)
	s.Equal("too slow", rejected.RejectReason)

	again, err := s.svc.RejectBid(s.ctx, first.ID, "customer-1", "too slow")
	s.Require().NoError(err)
	s.Equal(types.BID_REJECTED, again.Status)
	s.Len(s.rec.Of(events.BidRejected), 1)

	_, err = s.svc.AcceptBid(s.ctx, first.ID, "customer-1")
	s.ErrorIs(err, apperr.ErrBidNoLongerAvailable)

	res, err := s.svc.AcceptBid(s.ctx, second.ID, "customer-1")
	s.Require().NoError(err)
	s.Equal("contractor-2", res.Booking.AssignedContractor())

	_, err = s.svc.RejectBid(s.ctx, second.ID, "customer-1", "")
	s.requireKind(err, apperr.InvalidState)
}

func (s *EngineTestSuite) TestSweepAndLazyExpiry() {
	b := s.createBooking("customer-1")
	for i, minutes := range []int{5, 10, 60} {
		_, err := s.svc.SubmitBid(s.ctx, types.Contractor(fmt.Sprintf("contractor-%d", i)), SubmitBidInput{
			BookingID: b.ID, ContractorID: fmt.Sprintf("contractor-%d", i), Amount: 8000, ETAMinutes: 30, ExpiresInMinutes: minutes,
		})
		s.Require().NoError(err)
	}

	s.clock.Advance(7 * time.Minute)
	n, err := s.svc.SweepExpiredBids(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.svc.SweepExpiredBids(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)

	s.clock.Advance(5 * time.Minute)
	bids, err := s.svc.ListBids(s.ctx, b.ID)
	s.Require().NoError(err)
	counts := map[types.BidStatus]int{}
	for _, bid := range bids {
		counts[bid.Status]++
	}
	s.Equal(2, counts[types.BID_EXPIRED])
	s.Equal(1, counts[types.BID_PENDING])
}

// Many customers' clicks racing on different bids of one booking produce
// exactly one winner.
func (s *EngineTestSuite) TestConcurrentAcceptHasOneWinner() {
	b := s.createBooking("customer-1")
	var bids []*models.Bid
	for i := 0; i < 6; i++ {
		bids = append(bids, s.submitBid(b.ID, fmt.Sprintf("contractor-%d", i), int64(8000+i*100)))
	}

	var wg sync.WaitGroup
	results := make([]error, len(bids))
	for i, bid := range bids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, results[i] = s.svc.AcceptBid(s.ctx, id, "customer-1")
		}(i, bid.ID)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		s.True(errors.Is(err, apperr.ErrBidNoLongerAvailable), err.Error())
	}
	s.Equal(1, wins)

	var accepted int64
	s.Require().NoError(s.db.Model(&models.Bid{}).Where("booking_id = ? AND status = ?", b.ID, types.BID_ACCEPTED).Count(&accepted).Error)
	s.Equal(int64(1), accepted)
	s.Equal(types.STAGE_ASSIGNED, s.reload(b.ID).Stage)
}

func (s *EngineTestSuite) TestConcurrentSubmissionsAllLand() {
	b := s.createBooking("customer-1")

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := fmt.Sprintf("contractor-%d", i)
			_, errs[i] = s.svc.SubmitBid(s.ctx, types.Contractor(c), SubmitBidInput{BookingID: b.ID, ContractorID: c, Amount: 9000, ETAMinutes: 20})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		s.NoError(err)
	}

	bids, err := s.svc.ListBids(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Len(bids, 5)
	s.Equal(int64(6), s.reload(b.ID).Version)
}

func (s *EngineTestSuite) TestPreferredContractorMode() {
	b, err := s.svc.CreateBooking(s.ctx, CreateBookingInput{
		CustomerID:            "customer-1",
		Category:              types.CATEGORY_ELECTRICAL,
		BudgetMin:             5000,
		BudgetMax:             12000,
		ASAP:                  true,
		Mode:                  types.MODE_PREFERRED_CONTRACTOR,
		PreferredContractorID: "contractor-7",
	})
	s.Require().NoError(err)
	s.Equal(types.STAGE_ASSIGNED, b.Stage)
	s.Equal("contractor-7", b.AssignedContractor())
	s.Equal(int64(12000), b.AcceptedAmount)

	bids, err := s.svc.ListBids(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Require().Len(bids, 1)
	s.True(bids[0].Synthetic)
	s.Equal(types.BID_ACCEPTED, bids[0].Status)
	s.Equal(*b.AcceptedBidID, bids[0].ID)
	s.Len(s.rec.Of(events.BidAccepted), 1)

	_, err = s.svc.SubmitBid(s.ctx, types.Contractor("contractor-8"), SubmitBidInput{BookingID: b.ID, ContractorID: "contractor-8", Amount: 100, ETAMinutes: 10})
	s.requireKind(err, apperr.InvalidState)

	forfeited, err := s.svc.ForfeitBooking(s.ctx, b.ID, types.Contractor("contractor-7"))
	s.Require().NoError(err)
	s.Equal(types.MODE_OPEN_BIDDING, forfeited.AssignmentMode)
	s.submitBid(b.ID, "contractor-8", 11000)
}
