package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentSession tracks a transaction initiated at the gateway for a booking.
// At most one session per booking is active; re-initiating a pending payment
// reuses it unless the caller forces a fresh one.
type PaymentSession struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	BookingID      uint           `gorm:"index" json:"booking_id"`
	UserID         uint           `gorm:"index" json:"user_id"`
	PaymentGateway PaymentGateway `gorm:"type:varchar(50);not null" json:"payment_gateway"`
	OrderID        string         `gorm:"type:varchar(100);index" json:"order_id"`

	// Token is the opaque id used in the public payment-return URL, so the
	// raw booking id never appears in a link.
	Token string `gorm:"type:varchar(64);uniqueIndex" json:"token"`

	IsActive         bool            `gorm:"default:true" json:"is_active"`
	RequestMetadata  json.RawMessage `gorm:"type:jsonb" json:"request_metadata"`
	ResponseMetadata json.RawMessage `gorm:"type:jsonb" json:"response_metadata"`
}
