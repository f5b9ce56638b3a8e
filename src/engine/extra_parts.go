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

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreateExtraPartsInput struct {
	ContractorID  string
	PartName      string
	Quantity      int
	UnitPrice     int64
	TotalPrice    int64
	Justification string
	PhotoRef      string
}

func (in CreateExtraPartsInput) validate() error {
	if in.PartName == "" || in.Justification == "" {
		return apperr.New(apperr.ValidationError, "part name and justification are required")
	}
	if in.Quantity <= 0 || in.UnitPrice <= 0 {
		return apperr.New(apperr.ValidationError, "quantity and unit price must be positive")
	}
	if in.TotalPrice != 0 && in.TotalPrice != int64(in.Quantity)*in.UnitPrice {
		return apperr.New(apperr.ValidationError, "total price %d does not match %d x %d", in.TotalPrice, in.Quantity, in.UnitPrice)
	}
	return nil
}

// CreateExtraPartsRequest asks the customer to approve extra material. Any
// pending request blocks payment until the customer resolves it.
func (s *Service) CreateExtraPartsRequest(ctx context.Context, bookingID string, actor types.Actor, in CreateExtraPartsInput) (*models.ExtraPartsRequest, error) {
	if in.ContractorID == "" {
		in.ContractorID = actor.ID
	}
	if actor.Role != types.ROLE_CONTRACTOR || in.ContractorID != actor.ID {
		return nil, apperr.New(apperr.NotAssignedContractor, "extra parts can only be requested by the assigned contractor")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	var req models.ExtraPartsRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := loadBooking(tx, bookingID)
		if err != nil {
			return err
		}
		if !b.IsAssignedTo(actor.ID) {
			return apperr.New(apperr.NotAssignedContractor, "contractor %s is not assigned to this booking", actor.ID)
		}
		if !lifecycle.InActiveWork(b.Stage) {
			return apperr.New(apperr.InvalidState, "extra parts cannot be requested while %s", b.Stage)
		}
		req = models.ExtraPartsRequest{
			ID:            uuid.NewString(),
			BookingID:     b.ID,
			ContractorID:  actor.ID,
			Round:         b.BiddingRound,
			PartName:      in.PartName,
			Quantity:      in.Quantity,
			UnitPrice:     in.UnitPrice,
			TotalPrice:    int64(in.Quantity) * in.UnitPrice,
			Justification: in.Justification,
			Status:        types.EXTRA_PARTS_PENDING,
		}
		if in.PhotoRef != "" {
			photo := in.PhotoRef
			req.PhotoRef = &photo
		}
		if err := tx.Create(&req).Error; err != nil {
			return fmt.Errorf("create extra parts request: %w", err)
		}
		// Bumping the version makes a settlement that read the booking
		// before this request existed fail its own version check.
		return saveBooking(tx, b)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.ExtraPartsRequested, req.BookingID, now, map[string]any{
		"request_id":  req.ID,
		"part_name":   req.PartName,
		"total_price": req.TotalPrice,
	}))
	return &req, nil
}

type ResolveExtraPartsInput struct {
	CustomerID   string
	Decision     types.Decision
	Confirm      bool
	AppealReason string
}

type ExtraPartsResolution struct {
	Request *models.ExtraPartsRequest `json:"request"`
	Appeal  *models.Appeal            `json:"appeal,omitempty"`
	// Code is set when the decision needs to be re-sent with confirmation.
	Code    string `json:"code,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func (r *ExtraPartsResolution) ConfirmationRequired() bool {
	return r.Code == apperr.CodeConfirmationRequired
}

const disregardWarning = "Proceeding without this part means you will not pay for it. The contractor may be unable to complete the job. Re-send with confirm=true to continue."

// ResolveExtraPartsRequest records the customer's decision. Disregarding a
// part is two-phase: the first call only returns a warning. Resolution is
// final; repeating the same decision returns the stored outcome.
func (s *Service) ResolveExtraPartsRequest(ctx context.Context, requestID string, in ResolveExtraPartsInput) (*ExtraPartsResolution, error) {
	if !in.Decision.Valid() {
		return nil, apperr.New(apperr.ValidationError, "unknown decision %q", in.Decision)
	}
	if in.Decision == types.DECISION_PAY_AND_APPEAL && in.AppealReason == "" {
		return nil, apperr.New(apperr.ValidationError, "an appeal reason is required to pay and appeal")
	}
	now := s.now()
	var out ExtraPartsResolution
	var evts []events.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := loadExtraParts(tx, requestID)
		if err != nil {
			return err
		}
		b, err := loadBooking(tx, req.BookingID)
		if err != nil {
			return err
		}
		if b.CustomerID != in.CustomerID {
			return apperr.New(apperr.Forbidden, "only the booking's customer can resolve this request")
		}
		out.Request = req
		if req.Status != types.EXTRA_PARTS_PENDING {
			if req.Status != in.Decision.Status() {
				return apperr.WithCode(apperr.InvalidState, apperr.CodeAlreadyResolved, "request is already %s", req.Status)
			}
			if req.Status == types.EXTRA_PARTS_PAY_AND_APPEAL {
				var appeal models.Appeal
				if err := tx.First(&appeal, "request_id = ?", req.ID).Error; err != nil {
					return notFound(err, "appeal for request", req.ID)
				}
				out.Appeal = &appeal
			}
			return nil
		}
		if in.Decision == types.DECISION_DISREGARD && !in.Confirm {
			out.Code = apperr.CodeConfirmationRequired
			out.Warning = disregardWarning
			return nil
		}

		res := tx.Model(&models.ExtraPartsRequest{}).
			Scopes(scopes.WithID(req.ID), scopes.WithPendingStatus).
			Updates(map[string]any{"status": in.Decision.Status(), "resolved_by": in.CustomerID, "resolved_at": now})
		if res.Error != nil {
			return fmt.Errorf("resolve extra parts request: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperr.ErrStaleVersion
		}
		req.Status = in.Decision.Status()
		req.ResolvedBy = &in.CustomerID
		req.ResolvedAt = &now
		evts = append(evts, events.New(events.ExtraPartsResolved, b.ID, now, map[string]any{
			"request_id":  req.ID,
			"decision":    in.Decision,
			"total_price": req.TotalPrice,
		}))

		if in.Decision == types.DECISION_PAY_AND_APPEAL {
			appeal := models.Appeal{
				ID:           uuid.NewString(),
				BookingID:    b.ID,
				RequestID:    req.ID,
				Round:        req.Round,
				CustomerID:   in.CustomerID,
				Reason:       in.AppealReason,
				EscrowAmount: req.TotalPrice,
				Status:       types.APPEAL_OPEN,
			}
			if err := tx.Create(&appeal).Error; err != nil {
				return fmt.Errorf("open appeal: %w", err)
			}
			out.Appeal = &appeal
			evts = append(evts, events.New(events.AppealOpened, b.ID, now, map[string]any{
				"appeal_id":     appeal.ID,
				"request_id":    req.ID,
				"escrow_amount": appeal.EscrowAmount,
			}))
		}
		return saveBooking(tx, b)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evts...)
	return &out, nil
}

func (s *Service) ListExtraPartsRequests(ctx context.Context, bookingID string) ([]models.ExtraPartsRequest, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadBooking(db, bookingID); err != nil {
		return nil, err
	}
	var reqs []models.ExtraPartsRequest
	if err := db.Scopes(scopes.WithBookingID(bookingID)).Order("created_at ASC").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("list extra parts requests: %w", err)
	}
	return reqs, nil
}

func loadExtraParts(tx *gorm.DB, id string) (*models.ExtraPartsRequest, error) {
	var req models.ExtraPartsRequest
	if err := tx.First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "extra parts request", id)
	}
	return &req, nil
}
