package models

import (
	"homejobs/src/types"
	"time"
)

type Bid struct {
	ID            string              `gorm:"primaryKey;size:36" json:"id"`
	BookingID     string              `gorm:"index;not null" json:"booking_id"`
	ContractorID  string              `gorm:"index;not null" json:"contractor_id"`
	Round         int                 `gorm:"not null;default:1" json:"round"`
	Amount        int64               `json:"amount"`
	IncludedItems types.IncludedItems `json:"included_items,omitempty"`
	ETAMinutes    int                 `json:"eta_minutes"`
	Note          string              `json:"note,omitempty"`
	ExpiresAt     time.Time           `gorm:"index" json:"expires_at"`
	Status        types.BidStatus     `gorm:"index;not null;default:'pending'" json:"status"`
	ResolvedAt    *time.Time          `json:"resolved_at,omitempty"`
	RejectReason  string              `json:"reject_reason,omitempty"`
	Synthetic     bool                `json:"synthetic,omitempty"`

	Booking *Booking `gorm:"foreignKey:BookingID" json:"-"`

	types.Timestamps
}

// Expired reports whether the bid's window has closed at now. The stored
// status may lag behind until the sweep or a read catches up.
func (b *Bid) Expired(now time.Time) bool {
	return !b.ExpiresAt.After(now)
}
