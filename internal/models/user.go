package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a studio client, keyed by the auth platform UID. Rows are created
// on first contact; LastActivity is touched on every tracked interaction.
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PlatformID string `gorm:"type:varchar(128);uniqueIndex" json:"platform_id"`
	FullName   string `gorm:"type:varchar(100)" json:"full_name"`
	Phone      string `gorm:"type:varchar(20)" json:"phone"`

	LastActivity         time.Time  `json:"last_activity"`
	LastInactivityNotice *time.Time `json:"last_inactivity_notice,omitempty"`

	// Relationships
	Bookings      []Booking      `gorm:"foreignKey:UserID" json:"bookings,omitempty"`
	Subscriptions []Subscription `gorm:"foreignKey:UserID" json:"subscriptions,omitempty"`
}

// InactivityIdleWindow is how long a user has to be silent before the
// inactivity nudge fires, and also the minimum gap between two nudges.
const InactivityIdleWindow = 14 * 24 * time.Hour

// DueInactivityNotice reports whether the user should receive an inactivity
// nudge at the given instant.
func (u User) DueInactivityNotice(now time.Time) bool {
	if now.Sub(u.LastActivity) < InactivityIdleWindow {
		return false
	}
	if u.LastInactivityNotice == nil {
		return true
	}
	return now.Sub(*u.LastInactivityNotice) >= InactivityIdleWindow
}
