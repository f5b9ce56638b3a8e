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
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubmitBidInput struct {
	BookingID        string
	ContractorID     string
	Amount           int64
	IncludedItems    types.IncludedItems
	ETAMinutes       int
	Note             string
	ExpiresInMinutes int
}

func (in SubmitBidInput) validate() error {
	if in.Amount <= 0 {
		return apperr.New(apperr.ValidationError, "bid amount must be positive")
	}
	if in.ETAMinutes <= 0 {
		return apperr.New(apperr.ValidationError, "eta minutes must be positive")
	}
	if in.ExpiresInMinutes < 0 {
		return apperr.New(apperr.ValidationError, "expiry window cannot be negative")
	}
	for _, item := range in.IncludedItems {
		if item.Name == "" || item.Cost < 0 {
			return apperr.New(apperr.ValidationError, "included items need a name and a non-negative cost")
		}
	}
	return nil
}

// window clamps the requested expiry to policy.
func (s *Service) window(minutes int) time.Duration {
	if minutes == 0 {
		return s.policy.BidDefaultWindow
	}
	w := time.Duration(minutes) * time.Minute
	if w < time.Minute {
		w = time.Minute
	}
	if s.policy.BidMaxWindow > 0 && w > s.policy.BidMaxWindow {
		w = s.policy.BidMaxWindow
	}
	return w
}

// SubmitBid records a contractor's offer on a booking that is seeking a
// contractor. A contractor holds at most one pending bid per booking.
func (s *Service) SubmitBid(ctx context.Context, actor types.Actor, in SubmitBidInput) (*models.Bid, error) {
	if actor.Role != types.ROLE_CONTRACTOR || actor.ID != in.ContractorID {
		return nil, apperr.New(apperr.Forbidden, "bids can only be submitted by the bidding contractor")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var bid models.Bid
	var now time.Time
	err := s.retry(func() error {
		now = s.now()
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			b, err := loadBooking(tx, in.BookingID)
			if err != nil {
				return err
			}
			if b.Stage != types.STAGE_SEEKING_CONTRACTOR {
				return apperr.New(apperr.InvalidState, "booking is %s, not seeking a contractor", b.Stage)
			}
			if b.AssignmentMode == types.MODE_PREFERRED_CONTRACTOR {
				return apperr.New(apperr.InvalidState, "booking is reserved for a preferred contractor")
			}
			if b.ExcludedContractors.Contains(in.ContractorID) {
				return apperr.New(apperr.Forbidden, "contractor %s forfeited this booking", in.ContractorID)
			}
			if _, err := expireStale(tx.Scopes(scopes.WithBookingID(b.ID)), now); err != nil {
				return err
			}
			var pending int64
			if err := tx.Model(&models.Bid{}).
				Scopes(scopes.WithBookingID(b.ID), scopes.WithPendingStatus).
				Where("contractor_id = ?", in.ContractorID).
				Count(&pending).
				Error; err != nil {
				return fmt.Errorf("count pending bids: %w", err)
			}
			if pending > 0 {
				return apperr.ErrDuplicateBid
			}

			bid = models.Bid{
				ID:            uuid.NewString(),
				BookingID:     b.ID,
				ContractorID:  in.ContractorID,
				Round:         b.BiddingRound,
				Amount:        in.Amount,
				IncludedItems: in.IncludedItems,
				ETAMinutes:    in.ETAMinutes,
				Note:          in.Note,
				ExpiresAt:     now.Add(s.window(in.ExpiresInMinutes)),
				Status:        types.BID_PENDING,
			}
			if err := tx.Create(&bid).Error; err != nil {
				return fmt.Errorf("create bid: %w", err)
			}
			return saveBooking(tx, b)
		})
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.BidReceived, bid.BookingID, now, map[string]any{
		"bid_id":        bid.ID,
		"contractor_id": bid.ContractorID,
		"amount":        bid.Amount,
		"expires_at":    bid.ExpiresAt,
	}))
	return &bid, nil
}

func loadBid(tx *gorm.DB, id string) (*models.Bid, error) {
	var bid models.Bid
	if err := tx.First(&bid, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "bid", id)
	}
	return &bid, nil
}

type AcceptResult struct {
	Booking    models.Booking `json:"booking"`
	WinningBid models.Bid     `json:"winningBid"`
}

// AcceptBid assigns the booking to the bid's contractor. Every check and write
// happens in one transaction: the bid must be pending and unexpired, the
// booking must still be seeking, every other pending bid is rejected and the
// booking is assigned. If anything fails the caller gets
// ErrBidNoLongerAvailable and nothing is visible. A retry of a successful
// acceptance returns the same result.
func (s *Service) AcceptBid(ctx context.Context, bidID, customerID string) (*AcceptResult, error) {
	now := s.now()
	var out AcceptResult
	var evts []events.Event
	expired := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bid, err := loadBid(tx, bidID)
		if err != nil {
			return err
		}
		b, err := loadBooking(tx, bid.BookingID)
		if err != nil {
			return err
		}
		if b.CustomerID != customerID {
			return apperr.New(apperr.Forbidden, "only the booking's customer can accept bids")
		}
		if bid.Status == types.BID_ACCEPTED && b.AcceptedBidID != nil && *b.AcceptedBidID == bid.ID {
			out = AcceptResult{Booking: *b, WinningBid: *bid}
			return nil
		}
		if bid.Status != types.BID_PENDING {
			return apperr.ErrBidNoLongerAvailable
		}
		if bid.Expired(now) {
			expired = true
			return apperr.ErrBidNoLongerAvailable
		}
		if bid.Round != b.BiddingRound {
			return apperr.ErrBidNoLongerAvailable
		}
		res, err := lifecycle.Assign(*b, *bid)
		if err != nil {
			return apperr.ErrBidNoLongerAvailable
		}

		won := tx.Model(&models.Bid{}).
			Scopes(scopes.WithID(bid.ID), scopes.WithPendingStatus).
			Where("expires_at > ?", now).
			Updates(map[string]any{"status": types.BID_ACCEPTED, "resolved_at": now})
		if won.Error != nil {
			return fmt.Errorf("accept bid: %w", won.Error)
		}
		if won.RowsAffected != 1 {
			return apperr.ErrBidNoLongerAvailable
		}
		if _, err := expireStale(tx.Scopes(scopes.WithBookingID(b.ID)), now); err != nil {
			return err
		}
		rejected, err := rejectPendingBids(tx, b.ID, bid.ID, "another bid was accepted", now)
		if err != nil {
			return err
		}

		booking, stageEvts, err := commit(tx, res, types.Customer(customerID), b.BiddingRound, now)
		if err != nil {
			if errors.Is(err, apperr.ErrStaleVersion) {
				return apperr.ErrBidNoLongerAvailable
			}
			return err
		}
		bid.Status = types.BID_ACCEPTED
		bid.ResolvedAt = &now
		out = AcceptResult{Booking: booking, WinningBid: *bid}

		evts = append(stageEvts, events.New(events.BidAccepted, b.ID, now, map[string]any{
			"bid_id":        bid.ID,
			"contractor_id": bid.ContractorID,
			"amount":        bid.Amount,
		}))
		for _, r := range rejected {
			evts = append(evts, bidRejected(r, now))
		}
		return nil
	})
	if expired {
		if _, xerr := expireStale(s.db.WithContext(ctx).Scopes(scopes.WithID(bidID)), now); xerr != nil {
			return nil, xerr
		}
	}
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evts...)
	return &out, nil
}

// RejectBid turns down a single pending bid. Sibling bids are unaffected.
func (s *Service) RejectBid(ctx context.Context, bidID, customerID, reason string) (*models.Bid, error) {
	now := s.now()
	var out models.Bid
	changed, expired := false, false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bid, err := loadBid(tx, bidID)
		if err != nil {
			return err
		}
		b, err := loadBooking(tx, bid.BookingID)
		if err != nil {
			return err
		}
		if b.CustomerID != customerID {
			return apperr.New(apperr.Forbidden, "only the booking's customer can reject bids")
		}
		out = *bid
		if bid.Status == types.BID_REJECTED {
			return nil
		}
		if bid.Status != types.BID_PENDING {
			return apperr.WithCode(apperr.InvalidState, apperr.CodeAlreadyResolved, "bid is already %s", bid.Status)
		}
		if bid.Expired(now) {
			expired = true
			return apperr.WithCode(apperr.InvalidState, apperr.CodeAlreadyResolved, "bid has expired")
		}
		res := tx.Model(&models.Bid{}).
			Scopes(scopes.WithID(bid.ID), scopes.WithPendingStatus).
			Updates(map[string]any{"status": types.BID_REJECTED, "resolved_at": now, "reject_reason": reason})
		if res.Error != nil {
			return fmt.Errorf("reject bid: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperr.ErrBidNoLongerAvailable
		}
		out.Status = types.BID_REJECTED
		out.ResolvedAt = &now
		out.RejectReason = reason
		changed = true
		return nil
	})
	if expired {
		if _, xerr := expireStale(s.db.WithContext(ctx).Scopes(scopes.WithID(bidID)), now); xerr != nil {
			return nil, xerr
		}
	}
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, bidRejected(out, now))
	}
	return &out, nil
}

// ListBids returns every bid on the booking, expiring overdue ones first.
func (s *Service) ListBids(ctx context.Context, bookingID string) ([]models.Bid, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadBooking(db, bookingID); err != nil {
		return nil, err
	}
	if _, err := expireStale(db.Scopes(scopes.WithBookingID(bookingID)), s.now()); err != nil {
		return nil, err
	}
	var bids []models.Bid
	if err := db.Scopes(scopes.WithBookingID(bookingID)).Order("created_at ASC").Find(&bids).Error; err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	return bids, nil
}

func bidRejected(bid models.Bid, now time.Time) events.Event {
	return events.New(events.BidRejected, bid.BookingID, now, map[string]any{
		"bid_id":        bid.ID,
		"contractor_id": bid.ContractorID,
	})
}

// rejectPendingBids rejects every pending bid on the booking except keep and
// returns the bids it rejected.
func rejectPendingBids(tx *gorm.DB, bookingID, keep, reason string, now time.Time) ([]models.Bid, error) {
	q := func(db *gorm.DB) *gorm.DB {
		db = db.Scopes(scopes.WithBookingID(bookingID), scopes.WithPendingStatus)
		if keep != "" {
			db = db.Where("id <> ?", keep)
		}
		return db
	}
	var bids []models.Bid
	if err := tx.Scopes(q).Find(&bids).Error; err != nil {
		return nil, fmt.Errorf("load pending bids: %w", err)
	}
	if len(bids) == 0 {
		return nil, nil
	}
	if err := tx.Model(&models.Bid{}).
		Scopes(q).
		Updates(map[string]any{"status": types.BID_REJECTED, "resolved_at": now, "reject_reason": reason}).
		Error; err != nil {
		return nil, fmt.Errorf("reject pending bids: %w", err)
	}
	return bids, nil
}

// expireStale moves pending bids matched by db whose window closed at or
// before now to expired. The sweep, the read path and the accept path all
// share this one rule.
func expireStale(db *gorm.DB, now time.Time) (int64, error) {
	res := db.Model(&models.Bid{}).
		Scopes(scopes.WithPendingStatus).
		Where("expires_at <= ?", now).
		Updates(map[string]any{"status": types.BID_EXPIRED, "resolved_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("expire bids: %w", res.Error)
	}
	return res.RowsAffected, nil
}
