package models

import (
	"homejobs/src/types"
	"time"
)

type PaymentRecord struct {
	ID         string              `gorm:"primaryKey;size:36" json:"id"`
	BookingID  string              `gorm:"uniqueIndex;not null" json:"booking_id"`
	PayerID    string              `gorm:"not null" json:"payer_id"`
	Amount     int64               `json:"amount"`
	Currency   string              `gorm:"size:3" json:"currency"`
	GatewayRef string              `json:"gateway_ref"`
	Status     types.PaymentStatus `gorm:"not null" json:"status"`
	CapturedAt *time.Time          `json:"captured_at,omitempty"`

	Booking *Booking `gorm:"foreignKey:BookingID" json:"-"`

	types.Timestamps
}
