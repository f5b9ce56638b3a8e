package models

import (
	"homejobs/src/types"
	"time"
)

type ExtraPartsRequest struct {
	ID            string                 `gorm:"primaryKey;size:36" json:"id"`
	BookingID     string                 `gorm:"index;not null" json:"booking_id"`
	ContractorID  string                 `gorm:"not null" json:"contractor_id"`
	Round         int                    `gorm:"not null;default:1" json:"round"`
	PartName      string                 `json:"part_name"`
	Quantity      int                    `json:"quantity"`
	UnitPrice     int64                  `json:"unit_price"`
	TotalPrice    int64                  `json:"total_price"`
	Justification string                 `json:"justification"`
	PhotoRef      *string                `json:"photo_ref,omitempty"`
	Status        types.ExtraPartsStatus `gorm:"index;not null;default:'pending'" json:"status"`
	ResolvedBy    *string                `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time             `json:"resolved_at,omitempty"`

	Booking *Booking `gorm:"foreignKey:BookingID" json:"-"`

	types.Timestamps
}
