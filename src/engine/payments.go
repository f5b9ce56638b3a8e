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

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentGateway is the narrow surface the engine needs from a card
// processor. Authorization holds funds; capture moves them; void releases
// the hold.
type PaymentGateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Capture(ctx context.Context, ref string) error
	Void(ctx context.Context, ref string) error
}

type AuthorizeRequest struct {
	BookingID      string
	PayerID        string
	Amount         int64
	Currency       string
	PaymentMethod  string
	IdempotencyKey string
}

type Authorization struct {
	Ref string
}

// NoopGateway approves everything. It backs local runs without a processor.
type NoopGateway struct{}

func (NoopGateway) Authorize(_ context.Context, req AuthorizeRequest) (*Authorization, error) {
	return &Authorization{Ref: "noop_" + req.IdempotencyKey}, nil
}
func (NoopGateway) Capture(context.Context, string) error { return nil }
func (NoopGateway) Void(context.Context, string) error    { return nil }

type PaymentQuote struct {
	BookingID     string      `json:"booking_id"`
	Stage         types.Stage `json:"stage"`
	CanPay        bool        `json:"can_pay"`
	Base          int64       `json:"base"`
	Extras        int64       `json:"extras"`
	Total         int64       `json:"total"`
	Currency      string      `json:"currency"`
	PendingCount  int64       `json:"pending_requests"`
	SettledAmount *int64      `json:"settled_amount,omitempty"`
	Version       int64       `json:"version"`
}

// quote computes the payment gate for b inside tx. A paid booking reports
// its settled amount, never a recomputed one.
func quote(tx *gorm.DB, b *models.Booking) (*PaymentQuote, error) {
	q := &PaymentQuote{
		BookingID:     b.ID,
		Stage:         b.Stage,
		Base:          b.AcceptedAmount,
		Currency:      b.Currency,
		SettledAmount: b.SettledAmount,
		Version:       b.Version,
	}
	if err := tx.Model(&models.ExtraPartsRequest{}).
		Scopes(scopes.WithBookingID(b.ID), scopes.WithPendingStatus).
		Count(&q.PendingCount).
		Error; err != nil {
		return nil, fmt.Errorf("count pending requests: %w", err)
	}
	if err := tx.Model(&models.ExtraPartsRequest{}).
		Scopes(scopes.WithBookingID(b.ID), scopes.WithRound(b.BiddingRound)).
		Where("status IN ?", types.BILLABLE_EXTRA_PARTS).
		Select("COALESCE(SUM(total_price), 0)").
		Scan(&q.Extras).
		Error; err != nil {
		return nil, fmt.Errorf("sum extra parts: %w", err)
	}
	q.Total = q.Base + q.Extras
	if b.SettledAmount != nil {
		q.Total = *b.SettledAmount
	}
	q.CanPay = b.Stage == types.STAGE_AWAITING_PAYMENT && q.PendingCount == 0
	return q, nil
}

func (s *Service) PaymentQuote(ctx context.Context, bookingID string) (*PaymentQuote, error) {
	db := s.db.WithContext(ctx)
	b, err := loadBooking(db, bookingID)
	if err != nil {
		return nil, err
	}
	return quote(db, b)
}

// CanPay is true iff the booking awaits payment and no extra parts request
// on it is pending.
func (s *Service) CanPay(ctx context.Context, bookingID string) (bool, error) {
	q, err := s.PaymentQuote(ctx, bookingID)
	if err != nil {
		return false, err
	}
	return q.CanPay, nil
}

type Settlement struct {
	Booking models.Booking       `json:"booking"`
	Payment models.PaymentRecord `json:"payment"`
}

func gateError(q *PaymentQuote) error {
	if q.Stage != types.STAGE_AWAITING_PAYMENT {
		return apperr.New(apperr.InvalidState, "booking is %s, not awaiting payment", q.Stage)
	}
	if q.PendingCount > 0 {
		return apperr.WithCode(apperr.PaymentBlocked, apperr.CodeUnresolvedRequest, "%d extra parts request(s) still need an answer", q.PendingCount)
	}
	return nil
}

type SettleInput struct {
	PayerID string
	// PaymentMethod is a processor token collected by the client. Empty means
	// the processor's default for the payer.
	PaymentMethod string
}

// SettlePayment charges the customer and closes the booking. Funds are
// authorized before the transaction; the transaction then re-checks the gate
// against the booking as it is at commit time and voids the hold if anything
// moved. Capture happens after commit and never rolls the booking back.
func (s *Service) SettlePayment(ctx context.Context, bookingID string, in SettleInput) (*Settlement, error) {
	payerID := in.PayerID
	db := s.db.WithContext(ctx)
	b, err := loadBooking(db, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != payerID {
		return nil, apperr.New(apperr.Forbidden, "only the booking's customer can pay for it")
	}
	if b.Stage == types.STAGE_PAID {
		return s.existingSettlement(db, b)
	}
	seen, err := quote(db, b)
	if err != nil {
		return nil, err
	}
	if err := gateError(seen); err != nil {
		return nil, err
	}

	auth, err := s.gateway.Authorize(ctx, AuthorizeRequest{
		BookingID:      b.ID,
		PayerID:        payerID,
		Amount:         seen.Total,
		Currency:       b.Currency,
		PaymentMethod:  in.PaymentMethod,
		IdempotencyKey: fmt.Sprintf("settle:%s:%d", b.ID, b.Version),
	})
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.PaymentBlocked, Code: apperr.CodeAuthorizationFailed, Message: "payment authorization failed", Err: err}
	}

	now := s.now()
	var out Settlement
	var evts []events.Event
	err = db.Transaction(func(tx *gorm.DB) error {
		cur, err := loadBooking(tx, bookingID)
		if err != nil {
			return err
		}
		q, err := quote(tx, cur)
		if err != nil {
			return err
		}
		if err := gateError(q); err != nil {
			return err
		}
		if cur.Version != seen.Version || q.Total != seen.Total {
			return apperr.ErrStaleVersion
		}
		res, err := lifecycle.MarkPaid(*cur, q.Total, now)
		if err != nil {
			return err
		}
		booking, stageEvts, err := commit(tx, res, types.Customer(payerID), cur.BiddingRound, now)
		if err != nil {
			return err
		}
		record := models.PaymentRecord{
			ID:         uuid.NewString(),
			BookingID:  cur.ID,
			PayerID:    payerID,
			Amount:     q.Total,
			Currency:   cur.Currency,
			GatewayRef: auth.Ref,
			Status:     types.PAYMENT_AUTHORIZED,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		out = Settlement{Booking: booking, Payment: record}
		evts = append(stageEvts, events.New(events.PaymentSettled, cur.ID, now, map[string]any{
			"amount":   q.Total,
			"currency": cur.Currency,
		}))
		return nil
	})
	if err != nil {
		// A concurrent call with the same idempotency key may have committed
		// this very authorization; its hold must survive.
		done := s.concurrentSettlement(db, bookingID)
		if done == nil || done.Payment.GatewayRef != auth.Ref {
			if verr := s.gateway.Void(ctx, auth.Ref); verr != nil {
				log.Printf("[payments] Error voiding authorization %s for booking %s: %s\n", auth.Ref, bookingID, verr.Error())
			}
		}
		if done != nil {
			return done, nil
		}
		return nil, err
	}

	s.capture(ctx, &out.Payment)
	s.publish(ctx, evts...)
	return &out, nil
}

func (s *Service) capture(ctx context.Context, p *models.PaymentRecord) {
	update := map[string]any{}
	if err := s.gateway.Capture(ctx, p.GatewayRef); err != nil {
		log.Printf("[payments] Error capturing %s for booking %s: %s\n", p.GatewayRef, p.BookingID, err.Error())
		p.Status = types.PAYMENT_CAPTURE_FAILED
		update["status"] = p.Status
	} else {
		at := s.now()
		p.Status = types.PAYMENT_CAPTURED
		p.CapturedAt = &at
		update["status"] = p.Status
		update["captured_at"] = at
	}
	if err := s.db.WithContext(ctx).Model(&models.PaymentRecord{}).Scopes(scopes.WithID(p.ID)).Updates(update).Error; err != nil {
		log.Printf("[payments] Error updating payment %s: %s\n", p.ID, err.Error())
	}
}

// concurrentSettlement returns the settlement of bookingID if another call
// paid for it, nil otherwise.
func (s *Service) concurrentSettlement(db *gorm.DB, bookingID string) *Settlement {
	b, err := loadBooking(db, bookingID)
	if err != nil || b.Stage != types.STAGE_PAID {
		return nil
	}
	out, err := s.existingSettlement(db, b)
	if err != nil {
		log.Printf("[payments] Error loading settlement for booking %s: %s\n", bookingID, err.Error())
		return nil
	}
	return out
}

func (s *Service) existingSettlement(db *gorm.DB, b *models.Booking) (*Settlement, error) {
	var record models.PaymentRecord
	if err := db.First(&record, "booking_id = ?", b.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.InvalidState, "booking is paid but has no payment record")
		}
		return nil, fmt.Errorf("load payment: %w", err)
	}
	return &Settlement{Booking: *b, Payment: record}, nil
}

// ReconcilePayment applies a processor notification to the payment it refers
// to. A captured payment stays captured.
func (s *Service) ReconcilePayment(ctx context.Context, gatewayRef string, status types.PaymentStatus) (*models.PaymentRecord, error) {
	db := s.db.WithContext(ctx)
	var record models.PaymentRecord
	if err := db.First(&record, "gateway_ref = ?", gatewayRef).Error; err != nil {
		return nil, notFound(err, "payment", gatewayRef)
	}
	if record.Status == status || record.Status == types.PAYMENT_CAPTURED {
		return &record, nil
	}
	update := map[string]any{"status": status}
	if status == types.PAYMENT_CAPTURED {
		at := s.now()
		record.CapturedAt = &at
		update["captured_at"] = at
	}
	if err := db.Model(&models.PaymentRecord{}).
		Scopes(scopes.WithID(record.ID)).
		Where("status <> ?", types.PAYMENT_CAPTURED).
		Updates(update).
		Error; err != nil {
		return nil, fmt.Errorf("reconcile payment: %w", err)
	}
	record.Status = status
	return &record, nil
}
