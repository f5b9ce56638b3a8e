package models

import (
	"homejobs/src/types"
	"time"
)

// Appeal holds a disputed extra-parts charge in escrow. The customer is
// charged for it; the contractor's payout for it waits on the outcome.
type Appeal struct {
	ID             string             `gorm:"primaryKey;size:36" json:"id"`
	BookingID      string             `gorm:"index;not null" json:"booking_id"`
	RequestID      string             `gorm:"uniqueIndex;not null" json:"request_id"`
	Round          int                `gorm:"not null;default:1" json:"round"`
	CustomerID     string             `gorm:"not null" json:"customer_id"`
	Reason         string             `json:"reason"`
	EscrowAmount   int64              `json:"escrow_amount"`
	Status         types.AppealStatus `gorm:"index;not null;default:'open'" json:"status"`
	ResolutionNote string             `json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`

	Request *ExtraPartsRequest `gorm:"foreignKey:RequestID" json:"-"`

	types.Timestamps
}
