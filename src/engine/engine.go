// Package engine is the authoritative booking store. Every command loads the
// booking, validates against what is persisted and commits in one transaction
// guarded by the booking's version counter. A losing writer gets a Conflict;
// nothing waits on anything else.
package engine

import (
	"context"
	"errors"
	"fmt"
	"homejobs/src/apperr"
	"homejobs/src/events"
	"homejobs/src/lifecycle"
	"homejobs/src/models"
	"homejobs/src/models/scopes"
	"homejobs/src/types"
	"log"
	"time"

	"gorm.io/gorm"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type Policy struct {
	BidDefaultWindow time.Duration
	BidMaxWindow     time.Duration
	// CASRetries bounds how often a commutative command re-runs after losing
	// the version check.
	CASRetries int
}

var DefaultPolicy = Policy{
	BidDefaultWindow: 30 * time.Minute,
	BidMaxWindow:     2 * time.Hour,
	CASRetries:       3,
}

type Service struct {
	db        *gorm.DB
	clock     Clock
	publisher events.Publisher
	gateway   PaymentGateway
	policy    Policy
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithGateway(g PaymentGateway) Option {
	return func(s *Service) { s.gateway = g }
}

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func New(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:        db,
		clock:     systemClock{},
		publisher: events.Noop{},
		gateway:   NoopGateway{},
		policy:    DefaultPolicy,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.CASRetries <= 0 {
		s.policy.CASRetries = 1
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// publish hands committed events to the publisher. Failures are logged only.
func (s *Service) publish(ctx context.Context, evts ...events.Event) {
	for _, e := range evts {
		if err := s.publisher.Publish(ctx, e); err != nil {
			log.Printf("[engine] Error publishing %s for booking %s: %s\n", e.Type, e.BookingID, err.Error())
		}
	}
}

// retry re-runs fn while it loses the version check.
func (s *Service) retry(fn func() error) error {
	var err error
	for i := 0; i < s.policy.CASRetries; i++ {
		if err = fn(); !errors.Is(err, apperr.ErrStaleVersion) {
			return err
		}
	}
	return err
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(apperr.NotFound, "%s %s not found", what, id)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func loadBooking(tx *gorm.DB, id string) (*models.Booking, error) {
	var b models.Booking
	if err := tx.First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "booking", id)
	}
	return &b, nil
}

// saveBooking writes b over the row it was read from. The write only lands if
// nobody committed in between; otherwise it reports ErrStaleVersion.
func saveBooking(tx *gorm.DB, b *models.Booking) error {
	expected := b.Version
	b.Version = expected + 1
	res := tx.Model(b).Where("version = ?", expected).Select("*").Omit("created_at").Updates(b)
	if res.Error != nil {
		b.Version = expected
		return fmt.Errorf("save booking: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		b.Version = expected
		return apperr.ErrStaleVersion
	}
	return nil
}

// commit persists a lifecycle result inside tx: the side effects of every
// stage entered, the audit trail, then the booking under the version check.
func commit(tx *gorm.DB, res lifecycle.Result, actor types.Actor, round int, now time.Time) (models.Booking, []events.Event, error) {
	b := res.Booking
	var evts []events.Event
	for _, step := range res.Steps {
		switch step.To {
		case types.STAGE_FORFEITED:
			if err := withdrawOpenRequests(tx, b.ID, now); err != nil {
				return b, nil, err
			}
		case types.STAGE_CANCELLED:
			if _, err := rejectPendingBids(tx, b.ID, "", "booking cancelled", now); err != nil {
				return b, nil, err
			}
		}
		if err := tx.Create(&models.StageTransition{
			BookingID: b.ID,
			From:      step.From,
			To:        step.To,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Round:     round,
		}).Error; err != nil {
			return b, nil, fmt.Errorf("record transition: %w", err)
		}
		evts = append(evts, stageChanged(b, step, now))
	}
	if err := saveBooking(tx, &b); err != nil {
		return b, nil, err
	}
	return b, evts, nil
}

func stageChanged(b models.Booking, step lifecycle.Step, now time.Time) events.Event {
	data := map[string]any{"from": step.From, "stage": step.To, "version": b.Version + 1}
	switch step.To {
	case types.STAGE_ASSIGNED:
		data["contractor_id"] = b.AssignedContractor()
	case types.STAGE_CONTRACTOR_EN_ROUTE:
		if b.ETAMinutes != nil {
			data["eta_minutes"] = *b.ETAMinutes
		}
	case types.STAGE_SEEKING_CONTRACTOR:
		data["bidding_round"] = b.BiddingRound
	}
	return events.New(events.BookingStageChanged, b.ID, now, data)
}

func withdrawOpenRequests(tx *gorm.DB, bookingID string, now time.Time) error {
	if err := tx.Model(&models.ExtraPartsRequest{}).
		Scopes(scopes.WithBookingID(bookingID), scopes.WithPendingStatus).
		Updates(map[string]any{"status": types.EXTRA_PARTS_WITHDRAWN, "resolved_at": now}).
		Error; err != nil {
		return fmt.Errorf("withdraw extra parts: %w", err)
	}
	if err := tx.Model(&models.RescheduleRequest{}).
		Scopes(scopes.WithBookingID(bookingID), scopes.WithPendingStatus).
		Updates(map[string]any{"status": types.RESCHEDULE_WITHDRAWN, "resolved_at": now}).
		Error; err != nil {
		return fmt.Errorf("withdraw reschedules: %w", err)
	}
	return nil
}
