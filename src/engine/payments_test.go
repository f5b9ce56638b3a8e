package engine

import (
	"errors"
	"homejobs/src/apperr"
	"homejobs/src/events"
	"homejobs/src/models"
	"homejobs/src/types"
)

// A $45 extra part raised mid-job blocks payment until the customer approves
// it; the settlement then charges base + 45.
func (s *EngineTestSuite) TestApprovedExtraPartsAreCharged() {
	b := s.workInProgress()
	id := s.extraParts(b.ID, 4500)

	ok, err := s.svc.CanPay(s.ctx, b.ID)
	s.Require().NoError(err)
	s.False(ok)

	s.complete(b.ID)
	q, err := s.svc.PaymentQuote(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(types.STAGE_AWAITING_PAYMENT, q.Stage)
	s.False(q.CanPay)
	s.Equal(int64(1), q.PendingCount)

	_, err = s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
	s.requireKind(err, apperr.PaymentBlocked)
	s.Empty(s.gateway.authorized)

	_, err = s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{CustomerID: "customer-1", Decision: types.DECISION_APPROVE})
	s.Require().NoError(err)

	ok, err = s.svc.CanPay(s.ctx, b.ID)
	s.Require().NoError(err)
	s.True(ok)

	settled, err := s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
	s.Require().NoError(err)
	s.Equal(types.STAGE_PAID, settled.Booking.Stage)
	s.Require().NotNil(settled.Booking.SettledAmount)
	s.Equal(int64(12500), *settled.Booking.SettledAmount)
	s.NotNil(settled.Booking.ArchivedAt)
	s.Equal(int64(12500), settled.Payment.Amount)
	s.Equal(types.PAYMENT_CAPTURED, settled.Payment.Status)

	s.Require().Len(s.gateway.authorized, 1)
	s.Equal(int64(12500), s.gateway.authorized[0].Amount)
	s.Equal([]string{settled.Payment.GatewayRef}, s.gateway.captured)
	s.Empty(s.gateway.voided)

	paid := s.rec.Of(events.PaymentSettled)
	s.Require().Len(paid, 1)
	s.Equal(int64(12500), paid[0].Data["amount"])

	var stored models.PaymentRecord
	s.Require().NoError(s.db.First(&stored, "booking_id = ?", b.ID).Error)
	s.Equal(types.PAYMENT_CAPTURED, stored.Status)
	s.NotNil(stored.CapturedAt)
}

// Paying and appealing still charges the customer the full amount but holds
// the contractor's share of the disputed part in escrow.
func (s *EngineTestSuite) TestPayAndAppealEscrowsDisputedAmount() {
	b := s.workInProgress()
	id := s.extraParts(b.ID, 4500)

	res, err := s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{
		CustomerID: "customer-1", Decision: types.DECISION_PAY_AND_APPEAL, AppealReason: "part was not replaced",
	})
	s.Require().NoError(err)
	s.Equal(types.EXTRA_PARTS_PAY_AND_APPEAL, res.Request.Status)
	s.Require().NotNil(res.Appeal)
	s.Equal(types.APPEAL_OPEN, res.Appeal.Status)
	s.Equal(int64(4500), res.Appeal.EscrowAmount)

	retry, err := s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{
		CustomerID: "customer-1", Decision: types.DECISION_PAY_AND_APPEAL, AppealReason: "part was not replaced",
	})
	s.Require().NoError(err)
	s.Equal(res.Appeal.ID, retry.Appeal.ID)

	s.complete(b.ID)
	settled, err := s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
	s.Require().NoError(err)
	s.Equal(int64(12500), *settled.Booking.SettledAmount)

	payout, err := s.svc.GetPayout(s.ctx, b.ID)
	s.Require().NoError(err)
	s.True(payout.Settled)
	s.Equal(int64(12500), payout.Charged)
	s.Equal(int64(4500), payout.Escrowed)
	s.Equal(int64(8000), payout.Released)

	_, err = s.svc.ResolveAppeal(s.ctx, res.Appeal.ID, types.Customer("customer-1"), types.APPEAL_UPHELD, "")
	s.requireKind(err, apperr.Forbidden)

	arbitrator := types.Actor{ID: "arb-1", Role: types.ROLE_ARBITRATOR}
	appeal, err := s.svc.ResolveAppeal(s.ctx, res.Appeal.ID, arbitrator, types.APPEAL_DENIED, "part was replaced")
	s.Require().NoError(err)
	s.Equal(types.APPEAL_DENIED, appeal.Status)

	payout, err = s.svc.GetPayout(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Zero(payout.Escrowed)
	s.Equal(int64(12500), payout.Released)

	_, err = s.svc.ResolveAppeal(s.ctx, res.Appeal.ID, arbitrator, types.APPEAL_UPHELD, "")
	s.requireKind(err, apperr.InvalidState)
}

func (s *EngineTestSuite) TestUpheldAppealIsRefunded() {
	b := s.workInProgress()
	id := s.extraParts(b.ID, 4500)
	res, err := s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{
		CustomerID: "customer-1", Decision: types.DECISION_PAY_AND_APPEAL, AppealReason: "overpriced",
	})
	s.Require().NoError(err)

	_, err = s.svc.ResolveAppeal(s.ctx, res.Appeal.ID, types.System, types.APPEAL_UPHELD, "")
	s.Require().NoError(err)

	payout, err := s.svc.GetPayout(s.ctx, b.ID)
	s.Require().NoError(err)
	s.False(payout.Settled)
	s.Equal(int64(12500), payout.Charged)
	s.Equal(int64(4500), payout.Refunded)
	s.Equal(int64(8000), payout.Released)
}

// A change request created while the customer is mid-checkout must stop the
// settlement even though the gate was open when checkout began.
func (s *EngineTestSuite) TestSettlementRechecksGateAtCommit() {
	b := s.workInProgress()
	s.complete(b.ID)

	s.gateway.onAuthorize = func() {
		s.gateway.onAuthorize = nil
		s.extraParts(b.ID, 2000)
	}
	_, err := s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
	s.requireKind(err, apperr.PaymentBlocked)

	s.Len(s.gateway.authorized, 1)
	s.Len(s.gateway.voided, 1)
	s.Empty(s.gateway.captured)
	got := s.reload(b.ID)
	s.Equal(types.STAGE_AWAITING_PAYMENT, got.Stage)
	s.Nil(got.SettledAmount)
	s.Empty(s.rec.Of(events.PaymentSettled))
}

func (s *EngineTestSuite) TestSettlementLosesToConcurrentWrite() {
	b := s.workInProgress()
	s.complete(b.ID)

	s.gateway.onAuthorize = func() {
		s.gateway.onAuthorize = nil
		id := s.extraParts(b.ID, 500)
		_, err := s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{CustomerID: "customer-1", Decision: types.DECISION_APPROVE})
		s.Require().NoError(err)
	}
	_, err := s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
	s.ErrorIs(err, apperr.ErrStaleVersion)
	s.Len(s.gateway.voided, 1)

	settled, err := s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
	s.Require().NoError(err)
	s.Equal(int64(8500), *settled.Booking.SettledAmount)
	s.Equal(int64(8500), s.gateway.authorized[1].Amount)
}

// A double-submitted payment shares one idempotency key, so both calls get
// the same hold. The call that loses the commit must hand back the winner's
// settlement and leave the shared hold alone.
func (s *EngineTestSuite) TestDuplicateSettlementKeepsSharedAuthorization() {
	b := s.workInProgress()
	s.complete(b.ID)

	var winner *Settlement
	s.gateway.onAuthorize = func() {
		s.gateway.onAuthorize = nil
		var err error
		winner, err = s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
		s.Require().NoError(err)
	}
	loser, err := s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
	s.Require().NoError(err)
	s.Require().NotNil(winner)

	s.Equal(winner.Payment.ID, loser.Payment.ID)
	s.Equal(winner.Payment.GatewayRef, loser.Payment.GatewayRef)
	s.Equal(types.PAYMENT_CAPTURED, loser.Payment.Status)
	s.Equal(types.STAGE_PAID, loser.Booking.Stage)

	s.Require().Len(s.gateway.authorized, 2)
	s.Equal(s.gateway.authorized[0].IdempotencyKey, s.gateway.authorized[1].IdempotencyKey)
	s.Empty(s.gateway.voided)
	s.Equal([]string{winner.Payment.GatewayRef}, s.gateway.captured)
	s.Len(s.rec.Of(events.PaymentSettled), 1)

	var count int64
	s.Require().NoError(s.db.Model(&models.PaymentRecord{}).Where("booking_id = ?", b.ID).Count(&count).Error)
	s.Equal(int64(1), count)
}

// Once paid, the charged total never moves: new requests are refused and a
// retried settlement returns the original one.
func (s *EngineTestSuite) TestPaidTotalIsFinal() {
	b := s.workInProgress()
	s.complete(b.ID)
	first, err := s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
	s.Require().NoError(err)
	s.Equal(int64(8000), *first.Booking.SettledAmount)

	_, err = s.svc.CreateExtraPartsRequest(s.ctx, b.ID, types.Contractor("contractor-1"), CreateExtraPartsInput{
		PartName: "late", Quantity: 1, UnitPrice: 999, Justification: "forgot",
	})
	s.requireKind(err, apperr.InvalidState)

	again, err := s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
	s.Require().NoError(err)
	s.Equal(first.Payment.ID, again.Payment.ID)
	s.Equal(int64(8000), *again.Booking.SettledAmount)
	s.Len(s.gateway.authorized, 1)

	q, err := s.svc.PaymentQuote(s.ctx, b.ID)
	s.Require().NoError(err)
	s.False(q.CanPay)
	s.Equal(int64(8000), q.Total)

	_, err = s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-2"})
	s.requireKind(err, apperr.Forbidden)
}

func (s *EngineTestSuite) TestSettlementRequiresAwaitingPayment() {
	b := s.workInProgress()
	_, err := s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
	s.requireKind(err, apperr.InvalidState)
}

func (s *EngineTestSuite) TestAuthorizationFailure() {
	b := s.workInProgress()
	s.complete(b.ID)
	s.gateway.authErr = errors.New("card_declined")

	_, err := s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
	s.requireKind(err, apperr.PaymentBlocked)
	s.ErrorIs(err, apperr.WithCode(apperr.PaymentBlocked, apperr.CodeAuthorizationFailed, ""))
	s.Equal(types.STAGE_AWAITING_PAYMENT, s.reload(b.ID).Stage)
}

func (s *EngineTestSuite) TestCaptureFailureKeepsBookingPaid() {
	b := s.workInProgress()
	s.complete(b.ID)
	s.gateway.captureErr = errors.New("processor timeout")

	settled, err := s.svc.SettlePayment(s.ctx, b.ID, SettleInput{PayerID: "customer-1"})
	s.Require().NoError(err)
	s.Equal(types.PAYMENT_CAPTURE_FAILED, settled.Payment.Status)
	s.Equal(types.STAGE_PAID, s.reload(b.ID).Stage)
}
