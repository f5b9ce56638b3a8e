package models

import "homejobs/src/types"

// StageTransition is the audit trail of every stage a booking entered.
type StageTransition struct {
	ID        uint        `gorm:"primarykey" json:"id"`
	BookingID string      `gorm:"index;not null" json:"booking_id"`
	From      types.Stage `json:"from"`
	To        types.Stage `json:"to"`
	ActorID   string      `json:"actor_id"`
	ActorRole types.Role  `json:"actor_role"`
	Round     int         `json:"round"`

	types.Timestamps
}
