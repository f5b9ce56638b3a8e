package engine

import (
	"context"
	"fmt"
	"homejobs/src/apperr"
	"homejobs/src/events"
	"homejobs/src/lifecycle"
	"homejobs/src/models"
	"homejobs/src/models/scopes"
	"homejobs/src/types"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreateRescheduleInput struct {
	ProposedAt *time.Time
	ASAP       bool
	Reason     string
}

// party reports the role actor plays on b, or an error when it plays none.
func party(b *models.Booking, actor types.Actor) (types.Role, error) {
	switch {
	case actor.Role == types.ROLE_CUSTOMER && actor.ID == b.CustomerID:
		return types.ROLE_CUSTOMER, nil
	case actor.Role == types.ROLE_CONTRACTOR && b.IsAssignedTo(actor.ID):
		return types.ROLE_CONTRACTOR, nil
	case actor.Role == types.ROLE_CONTRACTOR:
		return "", apperr.New(apperr.NotAssignedContractor, "contractor %s is not assigned to this booking", actor.ID)
	}
	return "", apperr.New(apperr.Forbidden, "%s %s is not a party to this booking", actor.Role, actor.ID)
}

// CreateRescheduleRequest proposes a new schedule. Either party may propose;
// only one proposal can be open per booking.
func (s *Service) CreateRescheduleRequest(ctx context.Context, bookingID string, actor types.Actor, in CreateRescheduleInput) (*models.RescheduleRequest, error) {
	now := s.now()
	if in.Reason == "" {
		return nil, apperr.New(apperr.ValidationError, "a reason is required")
	}
	if !in.ASAP && in.ProposedAt == nil {
		return nil, apperr.New(apperr.ValidationError, "either a proposed time or asap is required")
	}
	if !in.ASAP && !in.ProposedAt.After(now) {
		return nil, apperr.New(apperr.ValidationError, "proposed time must be in the future")
	}
	var req models.RescheduleRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := loadBooking(tx, bookingID)
		if err != nil {
			return err
		}
		role, err := party(b, actor)
		if err != nil {
			return err
		}
		if !lifecycle.CanReschedule(b.Stage) {
			return apperr.New(apperr.InvalidState, "a %s booking cannot be rescheduled", b.Stage)
		}
		var open int64
		if err := tx.Model(&models.RescheduleRequest{}).
			Scopes(scopes.WithBookingID(b.ID), scopes.WithPendingStatus).
			Count(&open).
			Error; err != nil {
			return fmt.Errorf("count open reschedules: %w", err)
		}
		if open > 0 {
			return apperr.WithCode(apperr.Conflict, apperr.CodePendingReschedule, "a reschedule is already awaiting an answer")
		}
		req = models.RescheduleRequest{
			ID:            uuid.NewString(),
			BookingID:     b.ID,
			RequestedBy:   actor.ID,
			RequesterRole: role,
			ProposedASAP:  in.ASAP,
			Reason:        in.Reason,
			Status:        types.RESCHEDULE_PENDING,
		}
		if !in.ASAP {
			at := in.ProposedAt.UTC()
			req.ProposedAt = &at
		}
		if err := tx.Create(&req).Error; err != nil {
			return fmt.Errorf("create reschedule: %w", err)
		}
		return saveBooking(tx, b)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.RescheduleRequested, req.BookingID, now, map[string]any{
		"request_id":    req.ID,
		"requested_by":  req.RequesterRole,
		"proposed_at":   req.ProposedAt,
		"proposed_asap": req.ProposedASAP,
	}))
	return &req, nil
}

// ResolveRescheduleRequest is answered by the other party. Approval moves the
// schedule and nothing else.
func (s *Service) ResolveRescheduleRequest(ctx context.Context, requestID string, actor types.Actor, approve bool) (*models.RescheduleRequest, error) {
	now := s.now()
	status := types.RESCHEDULE_REJECTED
	if approve {
		status = types.RESCHEDULE_APPROVED
	}
	var out models.RescheduleRequest
	var evts []events.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.RescheduleRequest
		if err := tx.First(&req, "id = ?", requestID).Error; err != nil {
			return notFound(err, "reschedule request", requestID)
		}
		b, err := loadBooking(tx, req.BookingID)
		if err != nil {
			return err
		}
		role, err := party(b, actor)
		if err != nil {
			return err
		}
		if role == req.RequesterRole {
			return apperr.New(apperr.Forbidden, "a reschedule must be answered by the other party")
		}
		out = req
		if req.Status != types.RESCHEDULE_PENDING {
			if req.Status != status {
				return apperr.WithCode(apperr.InvalidState, apperr.CodeAlreadyResolved, "reschedule is already %s", req.Status)
			}
			return nil
		}
		if b.Stage.Terminal() {
			return apperr.New(apperr.InvalidState, "booking is %s", b.Stage)
		}

		res := tx.Model(&models.RescheduleRequest{}).
			Scopes(scopes.WithID(req.ID), scopes.WithPendingStatus).
			Updates(map[string]any{"status": status, "resolved_by": actor.ID, "resolved_at": now})
		if res.Error != nil {
			return fmt.Errorf("resolve reschedule: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperr.ErrStaleVersion
		}
		out.Status = status
		out.ResolvedBy = &actor.ID
		out.ResolvedAt = &now

		if approve {
			b.ASAP = req.ProposedASAP
			b.ScheduledAt = req.ProposedAt
		}
		evts = append(evts, events.New(events.RescheduleResolved, b.ID, now, map[string]any{
			"request_id":   req.ID,
			"approved":     approve,
			"scheduled_at": b.ScheduledAt,
			"asap":         b.ASAP,
		}))
		return saveBooking(tx, b)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evts...)
	return &out, nil
}

func (s *Service) ListRescheduleRequests(ctx context.Context, bookingID string) ([]models.RescheduleRequest, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadBooking(db, bookingID); err != nil {
		return nil, err
	}
	var reqs []models.RescheduleRequest
	if err := db.Scopes(scopes.WithBookingID(bookingID)).Order("created_at ASC").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("list reschedules: %w", err)
	}
	return reqs, nil
}
