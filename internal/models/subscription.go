package models

import (
	"time"

	"gorm.io/gorm"
)

// SubscriptionValidityDays is the default expiry window after purchase.
const SubscriptionValidityDays = 30

// SubscriptionSizes are the class packs the studio sells.
var SubscriptionSizes = []int{4, 6, 8}

// Subscription is a prepaid pack of class credits.
// ClassesLeft only goes down when a subscription-paid booking is confirmed
// and only goes up when such a booking is cancelled early; it never drops
// below zero.
type Subscription struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID       uint       `gorm:"index" json:"user_id"`
	ClassesTotal int        `json:"classes_total"`
	ClassesLeft  int        `json:"classes_left"`
	PurchasedAt  time.Time  `json:"purchased_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// ValidSubscriptionSize reports whether total is a pack the studio sells.
func ValidSubscriptionSize(total int) bool {
	for _, n := range SubscriptionSizes {
		if n == total {
			return true
		}
	}
	return false
}

// Expired reports whether the subscription has lapsed. A nil expiry never
// lapses.
func (s Subscription) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}
