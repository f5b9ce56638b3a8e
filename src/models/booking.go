package models

import (
	"homejobs/src/types"
	"time"
)

type Booking struct {
	ID                    string                `gorm:"primaryKey;size:36" json:"id"`
	CustomerID            string                `gorm:"index;not null" json:"customer_id"`
	Category              types.ServiceCategory `gorm:"index;not null" json:"category"`
	Stage                 types.Stage           `gorm:"index;not null" json:"stage"`
	AssignmentMode        types.AssignmentMode  `gorm:"not null;default:'open_bidding'" json:"assignment_mode"`
	PreferredContractorID *string               `json:"preferred_contractor_id,omitempty"`
	AssignedContractorID  *string               `gorm:"index" json:"assigned_contractor_id,omitempty"`
	AcceptedBidID         *string               `json:"accepted_bid_id,omitempty"`
	AcceptedAmount        int64                 `json:"accepted_amount,omitempty"`
	BudgetMin             int64                 `json:"budget_min"`
	BudgetMax             int64                 `json:"budget_max"`
	Currency              string                `gorm:"size:3;default:'usd'" json:"currency"`
	ScheduledAt           *time.Time            `json:"scheduled_at,omitempty"`
	ASAP                  bool                  `json:"asap"`
	ETAMinutes            *int                  `json:"eta_minutes,omitempty"`
	ETAAt                 *time.Time            `json:"eta_at,omitempty"`
	BeforeEvidence        types.StringList      `json:"before_evidence"`
	AfterEvidence         types.StringList      `json:"after_evidence"`
	BiddingRound          int                   `gorm:"not null;default:1" json:"bidding_round"`
	ExcludedContractors   types.StringList      `json:"excluded_contractors,omitempty"`
	SettledAmount         *int64                `json:"settled_amount,omitempty"`
	PaidAt                *time.Time            `json:"paid_at,omitempty"`
	ArchivedAt            *time.Time            `gorm:"index" json:"archived_at,omitempty"`
	CancelReason          string                `json:"cancel_reason,omitempty"`
	Version               int64                 `gorm:"not null;default:1" json:"version"`

	types.Timestamps
}

// IsAssignedTo reports whether contractorID currently holds the job.
func (b *Booking) IsAssignedTo(contractorID string) bool {
	return b.AssignedContractorID != nil && *b.AssignedContractorID == contractorID
}

func (b *Booking) AssignedContractor() string {
	if b.AssignedContractorID == nil {
		return ""
	}
	return *b.AssignedContractorID
}

// Clone returns a deep copy so transitions never alias the caller's slices
// or pointers.
func (b Booking) Clone() Booking {
	c := b
	c.PreferredContractorID = cloneString(b.PreferredContractorID)
	c.AssignedContractorID = cloneString(b.AssignedContractorID)
	c.AcceptedBidID = cloneString(b.AcceptedBidID)
	c.ScheduledAt = cloneTime(b.ScheduledAt)
	c.ETAAt = cloneTime(b.ETAAt)
	c.PaidAt = cloneTime(b.PaidAt)
	c.ArchivedAt = cloneTime(b.ArchivedAt)
	if b.ETAMinutes != nil {
		v := *b.ETAMinutes
		c.ETAMinutes = &v
	}
	if b.SettledAmount != nil {
		v := *b.SettledAmount
		c.SettledAmount = &v
	}
	c.BeforeEvidence = append(types.StringList(nil), b.BeforeEvidence...)
	c.AfterEvidence = append(types.StringList(nil), b.AfterEvidence...)
	c.ExcludedContractors = append(types.StringList(nil), b.ExcludedContractors...)
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
