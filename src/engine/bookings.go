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
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreateBookingInput struct {
	CustomerID            string
	Category              types.ServiceCategory
	BudgetMin             int64
	BudgetMax             int64
	Currency              string
	ScheduledAt           *time.Time
	ASAP                  bool
	Mode                  types.AssignmentMode
	PreferredContractorID string
}

func (in *CreateBookingInput) validate() error {
	if in.CustomerID == "" {
		return apperr.New(apperr.ValidationError, "customer id is required")
	}
	if !in.Category.Valid() {
		return apperr.New(apperr.ValidationError, "unknown service category %q", in.Category)
	}
	if in.BudgetMin < 0 || in.BudgetMax <= 0 || in.BudgetMax < in.BudgetMin {
		return apperr.New(apperr.ValidationError, "budget range %d-%d is invalid", in.BudgetMin, in.BudgetMax)
	}
	if !in.ASAP && in.ScheduledAt == nil {
		return apperr.New(apperr.ValidationError, "either a scheduled time or asap is required")
	}
	switch in.Mode {
	case "":
		in.Mode = types.MODE_OPEN_BIDDING
	case types.MODE_OPEN_BIDDING:
	case types.MODE_PREFERRED_CONTRACTOR:
		if in.PreferredContractorID == "" {
			return apperr.New(apperr.ValidationError, "preferred contractor id is required in preferred mode")
		}
	default:
		return apperr.New(apperr.ValidationError, "unknown assignment mode %q", in.Mode)
	}
	if in.Currency == "" {
		in.Currency = "usd"
	}
	in.Currency = strings.ToLower(in.Currency)
	return nil
}

// CreateBooking opens a booking for bidding. In preferred contractor mode the
// booking is assigned in the same transaction through a synthetic bid priced
// at the top of the budget.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*models.Booking, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	b := models.Booking{
		ID:             uuid.NewString(),
		CustomerID:     in.CustomerID,
		Category:       in.Category,
		Stage:          types.STAGE_SEEKING_CONTRACTOR,
		AssignmentMode: in.Mode,
		BudgetMin:      in.BudgetMin,
		BudgetMax:      in.BudgetMax,
		Currency:       in.Currency,
		ASAP:           in.ASAP,
		BiddingRound:   1,
		Version:        1,
	}
	if !in.ASAP {
		at := in.ScheduledAt.UTC()
		b.ScheduledAt = &at
	}
	actor := types.Customer(in.CustomerID)
	steps := []lifecycle.Step{{To: types.STAGE_SEEKING_CONTRACTOR}}

	var synthetic *models.Bid
	if in.Mode == types.MODE_PREFERRED_CONTRACTOR {
		preferred := in.PreferredContractorID
		b.PreferredContractorID = &preferred
		synthetic = &models.Bid{
			ID:           uuid.NewString(),
			BookingID:    b.ID,
			ContractorID: preferred,
			Round:        1,
			Amount:       in.BudgetMax,
			ExpiresAt:    now,
			Status:       types.BID_ACCEPTED,
			ResolvedAt:   &now,
			Synthetic:    true,
		}
		res, err := lifecycle.Assign(b, *synthetic)
		if err != nil {
			return nil, err
		}
		b = res.Booking
		steps = append(steps, res.Steps...)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&b).Error; err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		if synthetic != nil {
			if err := tx.Create(synthetic).Error; err != nil {
				return fmt.Errorf("create preferred bid: %w", err)
			}
		}
		for _, step := range steps {
			if err := tx.Create(&models.StageTransition{
				BookingID: b.ID,
				From:      step.From,
				To:        step.To,
				ActorID:   actor.ID,
				ActorRole: actor.Role,
				Round:     1,
			}).Error; err != nil {
				return fmt.Errorf("record transition: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	evts := make([]events.Event, 0, len(steps)+1)
	for _, step := range steps {
		evts = append(evts, stageChanged(b, step, now))
	}
	if synthetic != nil {
		evts = append(evts, events.New(events.BidAccepted, b.ID, now, map[string]any{
			"bid_id":        synthetic.ID,
			"contractor_id": synthetic.ContractorID,
			"amount":        synthetic.Amount,
			"synthetic":     true,
		}))
	}
	s.publish(ctx, evts...)
	return &b, nil
}

// CanView returns an error unless actor may read the booking and the records
// filed under it. Arbitrators read every booking; any contractor not excluded
// from it may read a booking that is still seeking one.
func (s *Service) CanView(ctx context.Context, bookingID string, actor types.Actor) error {
	b, err := loadBooking(s.db.WithContext(ctx), bookingID)
	if err != nil {
		return err
	}
	switch actor.Role {
	case types.ROLE_ARBITRATOR, types.ROLE_SYSTEM:
		return nil
	case types.ROLE_CONTRACTOR:
		if b.Stage == types.STAGE_SEEKING_CONTRACTOR && !slices.Contains(b.ExcludedContractors, actor.ID) {
			return nil
		}
	}
	_, err = party(b, actor)
	return err
}

func (s *Service) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return loadBooking(s.db.WithContext(ctx), id)
}

type BookingFilter struct {
	CustomerID   string
	ContractorID string
	Stage        types.Stage
	Page         int
	PageSize     int
}

func (f BookingFilter) scope(db *gorm.DB) *gorm.DB {
	if f.CustomerID != "" {
		db = db.Where("customer_id = ?", f.CustomerID)
	}
	if f.ContractorID != "" {
		db = db.Where("assigned_contractor_id = ?", f.ContractorID)
	}
	if f.Stage != "" {
		db = db.Where("stage = ?", f.Stage)
	}
	return db
}

func (s *Service) ListBookings(ctx context.Context, f BookingFilter) ([]models.Booking, int64, error) {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.Booking{}).Scopes(f.scope).Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}
	var bookings []models.Booking
	if err := db.Scopes(f.scope, scopes.Paginate(f.Page, f.PageSize)).Order("created_at DESC").Find(&bookings).Error; err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, count, nil
}

// History lists every stage the booking entered, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]models.StageTransition, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadBooking(db, id); err != nil {
		return nil, err
	}
	var trail []models.StageTransition
	if err := db.Scopes(scopes.WithBookingID(id)).Order("id ASC").Find(&trail).Error; err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	return trail, nil
}

// PatchStatus applies a status patch from actor. A retried patch returns the
// booking unchanged without writing anything.
func (s *Service) PatchStatus(ctx context.Context, id string, actor types.Actor, p lifecycle.Patch) (*models.Booking, error) {
	return s.transition(ctx, id, actor, func(b models.Booking, now time.Time) (lifecycle.Result, error) {
		return lifecycle.Apply(b, actor, p, now)
	})
}

func (s *Service) CancelBooking(ctx context.Context, id string, actor types.Actor, reason string) (*models.Booking, error) {
	return s.transition(ctx, id, actor, func(b models.Booking, now time.Time) (lifecycle.Result, error) {
		return lifecycle.Cancel(b, actor, reason, now)
	})
}

// ForfeitBooking returns the booking to open bidding and closes the
// forfeiting contractor's open change requests.
func (s *Service) ForfeitBooking(ctx context.Context, id string, actor types.Actor) (*models.Booking, error) {
	return s.transition(ctx, id, actor, func(b models.Booking, now time.Time) (lifecycle.Result, error) {
		return lifecycle.Forfeit(b, actor, now)
	})
}

type transitionFunc func(b models.Booking, now time.Time) (lifecycle.Result, error)

func (s *Service) transition(ctx context.Context, id string, actor types.Actor, fn transitionFunc) (*models.Booking, error) {
	now := s.now()
	var out models.Booking
	var evts []events.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := loadBooking(tx, id)
		if err != nil {
			return err
		}
		res, err := fn(*b, now)
		if err != nil {
			return err
		}
		if res.Noop {
			out = res.Booking
			return nil
		}
		out, evts, err = commit(tx, res, actor, b.BiddingRound, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evts...)
	return &out, nil
}
