// Package lifecycle holds the booking stage machine. Every transition is a
// pure function of the current booking, the actor and the payload; nothing in
// here touches storage or the clock.
package lifecycle

import (
	"homejobs/src/apperr"
	"homejobs/src/models"
	"homejobs/src/types"
	"slices"
	"time"
)

// Patch is the status patch payload.
type Patch struct {
	Stage        types.Stage
	ContractorID string
	Evidence     []string
	ETA          *int
}

// Step is one stage a booking entered.
type Step struct {
	From types.Stage
	To   types.Stage
}

type Result struct {
	Booking models.Booking
	Steps   []Step
	// Noop is set when the booking already reflects the request.
	Noop bool
}

// Final is the stage the booking ends up in.
func (r Result) Final() types.Stage {
	return r.Booking.Stage
}

// advance lists the contractor driven stages and the stage each one may move to.
var advance = map[types.Stage]types.Stage{
	types.STAGE_ASSIGNED:            types.STAGE_CONTRACTOR_EN_ROUTE,
	types.STAGE_CONTRACTOR_EN_ROUTE: types.STAGE_WORK_STARTED,
	types.STAGE_WORK_STARTED:        types.STAGE_WORK_IN_PROGRESS,
	types.STAGE_WORK_IN_PROGRESS:    types.STAGE_WORK_COMPLETED,
}

var forfeitable = []types.Stage{
	types.STAGE_ASSIGNED,
	types.STAGE_CONTRACTOR_EN_ROUTE,
	types.STAGE_WORK_STARTED,
	types.STAGE_WORK_IN_PROGRESS,
}

// ActiveWork lists the stages in which extra parts may be requested.
var ActiveWork = []types.Stage{
	types.STAGE_WORK_STARTED,
	types.STAGE_WORK_IN_PROGRESS,
	types.STAGE_WORK_COMPLETED,
	types.STAGE_AWAITING_PAYMENT,
}

// Reschedulable lists the stages in which the schedule may still be renegotiated.
var Reschedulable = []types.Stage{
	types.STAGE_ASSIGNED,
	types.STAGE_CONTRACTOR_EN_ROUTE,
	types.STAGE_WORK_STARTED,
	types.STAGE_WORK_IN_PROGRESS,
}

func InActiveWork(s types.Stage) bool  { return slices.Contains(ActiveWork, s) }
func CanReschedule(s types.Stage) bool { return slices.Contains(Reschedulable, s) }
func CanForfeit(s types.Stage) bool    { return slices.Contains(forfeitable, s) }

// Apply runs a status patch. Cancellation and forfeiture requests are routed
// to Cancel and Forfeit; assignment and payment are never reachable here.
func Apply(b models.Booking, actor types.Actor, p Patch, now time.Time) (Result, error) {
	if !p.Stage.Valid() {
		return Result{}, apperr.New(apperr.ValidationError, "unknown stage %q", p.Stage)
	}
	switch p.Stage {
	case types.STAGE_CANCELLED:
		return Cancel(b, actor, "", now)
	case types.STAGE_FORFEITED:
		return Forfeit(b, actor, now)
	}

	if b.Stage.Terminal() {
		return Result{}, apperr.New(apperr.InvalidState, "booking is %s", b.Stage)
	}
	if b.Stage == types.STAGE_SEEKING_CONTRACTOR {
		return Result{}, apperr.New(apperr.InvalidState, "booking has no assigned contractor yet")
	}
	if actor.Role != types.ROLE_CONTRACTOR || !b.IsAssignedTo(actor.ID) {
		return Result{}, apperr.New(apperr.NotAssignedContractor, "only the assigned contractor can update this booking")
	}
	if p.ContractorID != "" && p.ContractorID != actor.ID {
		return Result{}, apperr.New(apperr.NotAssignedContractor, "contractor %s is not the caller", p.ContractorID)
	}

	if len(p.Evidence) > 0 && p.Stage != types.STAGE_WORK_STARTED && p.Stage != types.STAGE_WORK_COMPLETED {
		return Result{}, apperr.New(apperr.ValidationError, "evidence is only accepted when work starts or completes")
	}

	if repeat(b.Stage, p.Stage) {
		return reapply(b, p, now)
	}

	switch p.Stage {
	case types.STAGE_SEEKING_CONTRACTOR, types.STAGE_ASSIGNED:
		return Result{}, apperr.New(apperr.InvalidState, "%s is only reached through bid acceptance or forfeiture", p.Stage)
	case types.STAGE_AWAITING_PAYMENT:
		return Result{}, apperr.New(apperr.InvalidState, "awaiting_payment follows work_completed automatically")
	case types.STAGE_PAID:
		return Result{}, apperr.New(apperr.InvalidState, "paid is only reached through payment settlement")
	}
	if advance[b.Stage] != p.Stage {
		return Result{}, apperr.New(apperr.InvalidState, "cannot move from %s to %s", b.Stage, p.Stage)
	}

	next := b.Clone()
	switch p.Stage {
	case types.STAGE_CONTRACTOR_EN_ROUTE:
		if p.ETA == nil || *p.ETA <= 0 {
			return Result{}, apperr.New(apperr.ValidationError, "eta in minutes is required when heading out")
		}
		setETA(&next, *p.ETA, now)
	case types.STAGE_WORK_STARTED:
		next.BeforeEvidence = next.BeforeEvidence.Merge(p.Evidence...)
	case types.STAGE_WORK_COMPLETED:
		next.AfterEvidence = next.AfterEvidence.Merge(p.Evidence...)
		if len(next.AfterEvidence) == 0 {
			return Result{}, apperr.New(apperr.MissingEvidence, "at least one after photo is required to complete the job")
		}
	}

	steps := []Step{{From: b.Stage, To: p.Stage}}
	next.Stage = p.Stage
	if p.Stage == types.STAGE_WORK_COMPLETED {
		steps = append(steps, Step{From: types.STAGE_WORK_COMPLETED, To: types.STAGE_AWAITING_PAYMENT})
		next.Stage = types.STAGE_AWAITING_PAYMENT
	}
	return Result{Booking: next, Steps: steps}, nil
}

// repeat reports whether target was already applied to a booking now at current.
func repeat(current, target types.Stage) bool {
	if current == target {
		return true
	}
	return target == types.STAGE_WORK_COMPLETED && current == types.STAGE_AWAITING_PAYMENT
}

// reapply folds a retried patch into the booking. Evidence merges without
// duplicates, so the same payload twice leaves the booking untouched.
func reapply(b models.Booking, p Patch, now time.Time) (Result, error) {
	next := b.Clone()
	switch p.Stage {
	case types.STAGE_CONTRACTOR_EN_ROUTE:
		if p.ETA != nil && (next.ETAMinutes == nil || *next.ETAMinutes != *p.ETA) {
			setETA(&next, *p.ETA, now)
		}
	case types.STAGE_WORK_STARTED:
		next.BeforeEvidence = next.BeforeEvidence.Merge(p.Evidence...)
	case types.STAGE_WORK_COMPLETED:
		next.AfterEvidence = next.AfterEvidence.Merge(p.Evidence...)
	}
	if sameState(b, next) {
		return Result{Booking: b, Noop: true}, nil
	}
	return Result{Booking: next}, nil
}

func sameState(a, b models.Booking) bool {
	if !slices.Equal(a.BeforeEvidence, b.BeforeEvidence) || !slices.Equal(a.AfterEvidence, b.AfterEvidence) {
		return false
	}
	if (a.ETAMinutes == nil) != (b.ETAMinutes == nil) {
		return false
	}
	return a.ETAMinutes == nil || *a.ETAMinutes == *b.ETAMinutes
}

func setETA(b *models.Booking, minutes int, now time.Time) {
	eta := minutes
	at := now.Add(time.Duration(minutes) * time.Minute)
	b.ETAMinutes = &eta
	b.ETAAt = &at
}

// Cancel is customer initiated and only legal before a contractor is assigned.
func Cancel(b models.Booking, actor types.Actor, reason string, now time.Time) (Result, error) {
	if actor.ID != b.CustomerID {
		return Result{}, apperr.New(apperr.Forbidden, "only the booking's customer can cancel it")
	}
	if b.Stage == types.STAGE_CANCELLED {
		return Result{Booking: b, Noop: true}, nil
	}
	if b.Stage != types.STAGE_SEEKING_CONTRACTOR {
		return Result{}, apperr.New(apperr.InvalidState, "a %s booking can no longer be cancelled", b.Stage)
	}
	next := b.Clone()
	next.Stage = types.STAGE_CANCELLED
	next.CancelReason = reason
	next.ArchivedAt = &now
	return Result{Booking: next, Steps: []Step{{From: b.Stage, To: types.STAGE_CANCELLED}}}, nil
}

// Forfeit hands the job back to open bidding. The forfeiting contractor is
// excluded from the new round and the evidence of the abandoned attempt is
// dropped.
func Forfeit(b models.Booking, actor types.Actor, now time.Time) (Result, error) {
	if b.Stage == types.STAGE_SEEKING_CONTRACTOR && b.ExcludedContractors.Contains(actor.ID) {
		return Result{Booking: b, Noop: true}, nil
	}
	if b.Stage.Terminal() || b.Stage == types.STAGE_SEEKING_CONTRACTOR {
		return Result{}, apperr.New(apperr.InvalidState, "a %s booking cannot be forfeited", b.Stage)
	}
	if actor.Role != types.ROLE_CONTRACTOR || !b.IsAssignedTo(actor.ID) {
		return Result{}, apperr.New(apperr.NotAssignedContractor, "only the assigned contractor can forfeit this booking")
	}
	if !CanForfeit(b.Stage) {
		return Result{}, apperr.New(apperr.InvalidState, "a %s booking cannot be forfeited", b.Stage)
	}

	next := b.Clone()
	next.Stage = types.STAGE_SEEKING_CONTRACTOR
	next.AssignedContractorID = nil
	next.AcceptedBidID = nil
	next.AcceptedAmount = 0
	next.ETAMinutes = nil
	next.ETAAt = nil
	next.BeforeEvidence = nil
	next.AfterEvidence = nil
	next.ExcludedContractors = next.ExcludedContractors.Merge(actor.ID)
	next.BiddingRound++
	if next.AssignmentMode == types.MODE_PREFERRED_CONTRACTOR {
		next.AssignmentMode = types.MODE_OPEN_BIDDING
	}
	return Result{Booking: next, Steps: []Step{
		{From: b.Stage, To: types.STAGE_FORFEITED},
		{From: types.STAGE_FORFEITED, To: types.STAGE_SEEKING_CONTRACTOR},
	}}, nil
}

// Assign moves a seeking booking to assigned with the winning bid.
func Assign(b models.Booking, bid models.Bid) (Result, error) {
	if b.Stage != types.STAGE_SEEKING_CONTRACTOR {
		return Result{}, apperr.New(apperr.InvalidState, "booking is %s, not seeking a contractor", b.Stage)
	}
	if b.ExcludedContractors.Contains(bid.ContractorID) {
		return Result{}, apperr.New(apperr.Forbidden, "contractor %s forfeited this booking", bid.ContractorID)
	}
	next := b.Clone()
	contractor := bid.ContractorID
	bidID := bid.ID
	next.Stage = types.STAGE_ASSIGNED
	next.AssignedContractorID = &contractor
	next.AcceptedBidID = &bidID
	next.AcceptedAmount = bid.Amount
	return Result{Booking: next, Steps: []Step{{From: b.Stage, To: types.STAGE_ASSIGNED}}}, nil
}

// MarkPaid settles an awaiting_payment booking. The settled amount is written
// once and never again.
func MarkPaid(b models.Booking, amount int64, now time.Time) (Result, error) {
	if b.Stage != types.STAGE_AWAITING_PAYMENT {
		return Result{}, apperr.New(apperr.InvalidState, "booking is %s, not awaiting payment", b.Stage)
	}
	if b.SettledAmount != nil {
		return Result{}, apperr.New(apperr.InvalidState, "booking was already settled")
	}
	next := b.Clone()
	settled := amount
	next.Stage = types.STAGE_PAID
	next.SettledAmount = &settled
	next.PaidAt = &now
	next.ArchivedAt = &now
	return Result{Booking: next, Steps: []Step{{From: b.Stage, To: types.STAGE_PAID}}}, nil
}
