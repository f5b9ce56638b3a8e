package engine

import (
	"context"
	"fmt"
	"homejobs/src/apperr"
	"homejobs/src/events"
	"homejobs/src/models"
	"homejobs/src/models/scopes"
	"homejobs/src/types"

	"gorm.io/gorm"
)

// Payout splits what the customer is charged into what the contractor can
// be paid now and what is held for open appeals.
type Payout struct {
	BookingID string          `json:"booking_id"`
	Currency  string          `json:"currency"`
	Settled   bool            `json:"settled"`
	Charged   int64           `json:"charged"`
	Escrowed  int64           `json:"escrowed"`
	Refunded  int64           `json:"refunded"`
	Released  int64           `json:"released"`
	Appeals   []models.Appeal `json:"appeals"`
}

// GetPayout reports the contractor's earnings. Before settlement the charged
// amount is the current payable total.
func (s *Service) GetPayout(ctx context.Context, bookingID string) (*Payout, error) {
	db := s.db.WithContext(ctx)
	b, err := loadBooking(db, bookingID)
	if err != nil {
		return nil, err
	}
	q, err := quote(db, b)
	if err != nil {
		return nil, err
	}
	p := &Payout{
		BookingID: b.ID,
		Currency:  b.Currency,
		Settled:   b.SettledAmount != nil,
		Charged:   q.Total,
	}
	if err := db.Scopes(scopes.WithBookingID(b.ID), scopes.WithRound(b.BiddingRound)).Order("created_at ASC").Find(&p.Appeals).Error; err != nil {
		return nil, fmt.Errorf("list appeals: %w", err)
	}
	for _, a := range p.Appeals {
		switch a.Status {
		case types.APPEAL_OPEN:
			p.Escrowed += a.EscrowAmount
		case types.APPEAL_UPHELD:
			p.Refunded += a.EscrowAmount
		}
	}
	p.Released = p.Charged - p.Escrowed - p.Refunded
	return p, nil
}

// ResolveAppeal records the outcome of arbitration. Upheld appeals are
// refunded to the customer; denied ones are released to the contractor.
func (s *Service) ResolveAppeal(ctx context.Context, appealID string, actor types.Actor, outcome types.AppealStatus, note string) (*models.Appeal, error) {
	if actor.Role != types.ROLE_ARBITRATOR && actor.Role != types.ROLE_SYSTEM {
		return nil, apperr.New(apperr.Forbidden, "appeals are resolved by arbitration")
	}
	if outcome != types.APPEAL_UPHELD && outcome != types.APPEAL_DENIED {
		return nil, apperr.New(apperr.ValidationError, "unknown appeal outcome %q", outcome)
	}
	now := s.now()
	var out models.Appeal
	var evts []events.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out, "id = ?", appealID).Error; err != nil {
			return notFound(err, "appeal", appealID)
		}
		if out.Status != types.APPEAL_OPEN {
			if out.Status != outcome {
				return apperr.WithCode(apperr.InvalidState, apperr.CodeAlreadyResolved, "appeal is already %s", out.Status)
			}
			return nil
		}
		b, err := loadBooking(tx, out.BookingID)
		if err != nil {
			return err
		}
		res := tx.Model(&models.Appeal{}).
			Scopes(scopes.WithID(out.ID)).
			Where("status = ?", types.APPEAL_OPEN).
			Updates(map[string]any{"status": outcome, "resolution_note": note, "resolved_at": now})
		if res.Error != nil {
			return fmt.Errorf("resolve appeal: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperr.ErrStaleVersion
		}
		out.Status = outcome
		out.ResolutionNote = note
		out.ResolvedAt = &now
		evts = append(evts, events.New(events.AppealResolved, b.ID, now, map[string]any{
			"appeal_id": out.ID,
			"outcome":   outcome,
			"amount":    out.EscrowAmount,
		}))
		return saveBooking(tx, b)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evts...)
	return &out, nil
}
