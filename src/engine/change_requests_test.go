package engine

import (
	"homejobs/src/apperr"
	"homejobs/src/events"
	"homejobs/src/types"
	"time"
)

func (s *EngineTestSuite) TestCreateExtraPartsRequest() {
	b := s.assigned()
	in := CreateExtraPartsInput{PartName: "copper pipe", Quantity: 3, UnitPrice: 1500, Justification: "corroded"}

	_, err := s.svc.CreateExtraPartsRequest(s.ctx, b.ID, types.Contractor("contractor-1"), in)
	s.requireKind(err, apperr.InvalidState)

	b = s.workInProgress()
	_, err = s.svc.CreateExtraPartsRequest(s.ctx, b.ID, types.Contractor("contractor-2"), in)
	s.requireKind(err, apperr.NotAssignedContractor)

	bad := in
	bad.TotalPrice = 9999
	_, err = s.svc.CreateExtraPartsRequest(s.ctx, b.ID, types.Contractor("contractor-1"), bad)
	s.requireKind(err, apperr.ValidationError)

	req, err := s.svc.CreateExtraPartsRequest(s.ctx, b.ID, types.Contractor("contractor-1"), in)
	s.Require().NoError(err)
	s.Equal(int64(4500), req.TotalPrice)
	s.Equal(types.EXTRA_PARTS_PENDING, req.Status)
	s.Equal(b.Version+1, s.reload(b.ID).Version)
	s.Len(s.rec.Of(events.ExtraPartsRequested), 1)
}

func (s *EngineTestSuite) extraParts(bookingID string, unitPrice int64) string {
	req, err := s.svc.CreateExtraPartsRequest(s.ctx, bookingID, types.Contractor("contractor-1"), CreateExtraPartsInput{
		PartName: "capacitor", Quantity: 1, UnitPrice: unitPrice, Justification: "failed under load",
	})
	s.Require().NoError(err)
	return req.ID
}

func (s *EngineTestSuite) TestResolveExtraPartsRequest() {
	b := s.workInProgress()
	id := s.extraParts(b.ID, 4500)

	_, err := s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{CustomerID: "customer-2", Decision: types.DECISION_APPROVE})
	s.requireKind(err, apperr.Forbidden)

	_, err = s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{CustomerID: "customer-1", Decision: "maybe"})
	s.requireKind(err, apperr.ValidationError)

	res, err := s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{CustomerID: "customer-1", Decision: types.DECISION_REJECT})
	s.Require().NoError(err)
	s.Equal(types.EXTRA_PARTS_REJECTED, res.Request.Status)

	again, err := s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{CustomerID: "customer-1", Decision: types.DECISION_REJECT})
	s.Require().NoError(err)
	s.Equal(types.EXTRA_PARTS_REJECTED, again.Request.Status)
	s.Len(s.rec.Of(events.ExtraPartsResolved), 1)

	_, err = s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{CustomerID: "customer-1", Decision: types.DECISION_APPROVE})
	s.requireKind(err, apperr.InvalidState)
}

func (s *EngineTestSuite) TestDisregardNeedsConfirmation() {
	b := s.workInProgress()
	id := s.extraParts(b.ID, 4500)
	version := s.reload(b.ID).Version

	warn, err := s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{CustomerID: "customer-1", Decision: types.DECISION_DISREGARD})
	s.Require().NoError(err)
	s.True(warn.ConfirmationRequired())
	s.NotEmpty(warn.Warning)
	s.Equal(types.EXTRA_PARTS_PENDING, warn.Request.Status)
	s.Equal(version, s.reload(b.ID).Version)

	done, err := s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{CustomerID: "customer-1", Decision: types.DECISION_DISREGARD, Confirm: true})
	s.Require().NoError(err)
	s.False(done.ConfirmationRequired())
	s.Equal(types.EXTRA_PARTS_DISREGARDED, done.Request.Status)

	s.complete(b.ID)
	q, err := s.svc.PaymentQuote(s.ctx, b.ID)
	s.Require().NoError(err)
	s.True(q.CanPay)
	s.Equal(int64(8000), q.Total)
}

func (s *EngineTestSuite) TestPayAndAppealRequiresReason() {
	b := s.workInProgress()
	id := s.extraParts(b.ID, 4500)

	_, err := s.svc.ResolveExtraPartsRequest(s.ctx, id, ResolveExtraPartsInput{CustomerID: "customer-1", Decision: types.DECISION_PAY_AND_APPEAL})
	s.requireKind(err, apperr.ValidationError)
}

func (s *EngineTestSuite) TestExtraPartsListedPerBooking() {
	b := s.workInProgress()
	s.extraParts(b.ID, 1000)
	s.extraParts(b.ID, 2000)

	reqs, err := s.svc.ListExtraPartsRequests(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Len(reqs, 2)

	_, err = s.svc.ListExtraPartsRequests(s.ctx, "missing")
	s.requireKind(err, apperr.NotFound)
}

func (s *EngineTestSuite) TestReschedule() {
	b := s.assigned()
	proposed := epoch.Add(48 * time.Hour)

	_, err := s.svc.CreateRescheduleRequest(s.ctx, b.ID, types.Contractor("contractor-1"), CreateRescheduleInput{Reason: "stuck"})
	s.requireKind(err, apperr.ValidationError)

	_, err = s.svc.CreateRescheduleRequest(s.ctx, b.ID, types.Contractor("contractor-9"), CreateRescheduleInput{ProposedAt: &proposed, Reason: "stuck"})
	s.requireKind(err, apperr.NotAssignedContractor)

	req, err := s.svc.CreateRescheduleRequest(s.ctx, b.ID, types.Contractor("contractor-1"), CreateRescheduleInput{ProposedAt: &proposed, Reason: "van broke down"})
	s.Require().NoError(err)
	s.Equal(types.ROLE_CONTRACTOR, req.RequesterRole)

	_, err = s.svc.CreateRescheduleRequest(s.ctx, b.ID, types.Customer("customer-1"), CreateRescheduleInput{ASAP: true, Reason: "sooner please"})
	s.requireKind(err, apperr.Conflict)
	s.ErrorIs(err, apperr.WithCode(apperr.Conflict, apperr.CodePendingReschedule, ""))

	_, err = s.svc.ResolveRescheduleRequest(s.ctx, req.ID, types.Contractor("contractor-1"), true)
	s.requireKind(err, apperr.Forbidden)

	resolved, err := s.svc.ResolveRescheduleRequest(s.ctx, req.ID, types.Customer("customer-1"), true)
	s.Require().NoError(err)
	s.Equal(types.RESCHEDULE_APPROVED, resolved.Status)

	got := s.reload(b.ID)
	s.Equal(types.STAGE_ASSIGNED, got.Stage)
	s.Require().NotNil(got.ScheduledAt)
	s.True(proposed.Equal(*got.ScheduledAt))
	s.Len(s.rec.Of(events.RescheduleResolved), 1)

	_, err = s.svc.ResolveRescheduleRequest(s.ctx, req.ID, types.Customer("customer-1"), false)
	s.requireKind(err, apperr.InvalidState)

	second, err := s.svc.CreateRescheduleRequest(s.ctx, b.ID, types.Customer("customer-1"), CreateRescheduleInput{ASAP: true, Reason: "sooner please"})
	s.Require().NoError(err)
	rejected, err := s.svc.ResolveRescheduleRequest(s.ctx, second.ID, types.Contractor("contractor-1"), false)
	s.Require().NoError(err)
	s.Equal(types.RESCHEDULE_REJECTED, rejected.Status)
	s.False(s.reload(b.ID).ASAP)

	all, err := s.svc.ListRescheduleRequests(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *EngineTestSuite) TestRescheduleDoesNotBlockPayment() {
	b := s.workInProgress()
	_, err := s.svc.CreateRescheduleRequest(s.ctx, b.ID, types.Customer("customer-1"), CreateRescheduleInput{ASAP: true, Reason: "earlier"})
	s.Require().NoError(err)
	s.complete(b.ID)

	ok, err := s.svc.CanPay(s.ctx, b.ID)
	s.Require().NoError(err)
	s.True(ok)

	_, err = s.svc.CreateRescheduleRequest(s.ctx, b.ID, types.Customer("customer-1"), CreateRescheduleInput{ASAP: true, Reason: "again"})
	s.requireKind(err, apperr.InvalidState)
}
