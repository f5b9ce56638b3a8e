package models

import (
	"homejobs/src/types"
	"time"
)

type RescheduleRequest struct {
	ID            string                 `gorm:"primaryKey;size:36" json:"id"`
	BookingID     string                 `gorm:"index;not null" json:"booking_id"`
	RequestedBy   string                 `gorm:"not null" json:"requested_by"`
	RequesterRole types.Role             `gorm:"not null" json:"requester_role"`
	ProposedAt    *time.Time             `json:"proposed_at,omitempty"`
	ProposedASAP  bool                   `json:"proposed_asap"`
	Reason        string                 `json:"reason"`
	Status        types.RescheduleStatus `gorm:"index;not null;default:'pending'" json:"status"`
	ResolvedBy    *string                `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time             `json:"resolved_at,omitempty"`

	Booking *Booking `gorm:"foreignKey:BookingID" json:"-"`

	types.Timestamps
}
