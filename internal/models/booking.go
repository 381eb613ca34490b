package models

import (
	"time"

	"gorm.io/gorm"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusPaid       BookingStatus = "paid"
	BookingStatusDone       BookingStatus = "done"
	BookingStatusCancelled  BookingStatus = "cancelled"
	BookingStatusLateCancel BookingStatus = "late_cancel"
)

// Terminal reports whether the status permits no further user transitions.
// The admin override cancel is the single exception and bypasses this check.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingStatusDone, BookingStatusCancelled, BookingStatusLateCancel:
		return true
	}
	return false
}

// PaymentType distinguishes one-off payments from subscription credits.
type PaymentType string

const (
	PaymentTypeSingle       PaymentType = "single"
	PaymentTypeSubscription PaymentType = "subscription"
)

// LessonType categorises a class. A slot with no lesson type yet is
// polymorphic; the first booking fixes it for everyone after.
type LessonType string

const (
	LessonTypeTrial             LessonType = "trial"
	LessonTypeGroupSingle       LessonType = "group_single"
	LessonTypeGroupSubscription LessonType = "group_subscription"
	LessonTypeIndividual        LessonType = "individual"
)

// ValidLessonType reports whether t is one of the known lesson types.
func ValidLessonType(t LessonType) bool {
	switch t {
	case LessonTypeTrial, LessonTypeGroupSingle, LessonTypeGroupSubscription, LessonTypeIndividual:
		return true
	}
	return false
}

// CancelWindowHours is the single threshold shared by cancellation and
// reschedule. At or above it the client keeps credits and the seat returns
// to the pool; below it the lesson counts as taken.
const CancelWindowHours = 10.0

// Layouts for the stored civil date and time strings.
const (
	LessonDateLayout = "2006-01-02"
	LessonTimeLayout = "15:04"
)

// Booking is a reserved seat on a trainer's slot.
type Booking struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID  uint   `gorm:"index" json:"user_id"`
	Trainer string `gorm:"type:varchar(50)" json:"trainer"`

	// Civil local date and time of the lesson, no UTC offset stored.
	Date string `gorm:"type:varchar(10)" json:"date"` // YYYY-MM-DD
	Time string `gorm:"type:varchar(5)" json:"time"`  // HH:MM

	// SlotID references the row in the external availability source.
	SlotID string `gorm:"type:varchar(64)" json:"slot_id"`

	Price       int           `json:"price"`
	PaymentType PaymentType   `gorm:"type:varchar(20);default:'single'" json:"payment_type"`
	LessonType  LessonType    `gorm:"type:varchar(30)" json:"lesson_type"`
	Status      BookingStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`

	// Reminder flags are set at most once each and never cleared.
	Reminder12Sent bool `gorm:"default:false" json:"reminder_12_sent"`
	Reminder2Sent  bool `gorm:"default:false" json:"reminder_2_sent"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// LessonStart parses the stored civil date/time in the given location.
func (b Booking) LessonStart(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(LessonDateLayout+" "+LessonTimeLayout, b.Date+" "+b.Time, loc)
}

// HoursToLesson returns the signed fractional hours between now and the
// lesson start, parsed in now's location. Malformed stored values yield 0:
// the lesson counts as starting right now, which routes cancellations to the
// stricter late path.
func (b Booking) HoursToLesson(now time.Time) float64 {
	start, err := b.LessonStart(now.Location())
	if err != nil {
		return 0
	}
	return start.Sub(now).Hours()
}
