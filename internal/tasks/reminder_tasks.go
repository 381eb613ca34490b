package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"studio_booking_echo/internal/models"
)

// Messenger delivers outbound texts to a user's chat. Implemented by the
// notifier bridge client; tests swap in a recorder.
type Messenger interface {
	SendText(chatID, text string) error
}

// Reminder offsets before lesson start. Each offset fires at most once per
// booking, tracked by a flag on the booking row.
const (
	ReminderOffset12h = "12h"
	ReminderOffset2h  = "2h"
)

// LessonReminderArgs is the payload of a lesson reminder task.
type LessonReminderArgs struct {
	BookingID uint   `json:"booking_id"`
	Offset    string `json:"offset"`
}

// LessonReminderTaskDef sends the pre-lesson reminder texts. Only paid
// bookings are reminded; a booking that left the paid state between
// scheduling and firing is skipped even if its task was not disabled in time.
type LessonReminderTaskDef struct {
	Messenger Messenger
	Loc       *time.Location
}

// TaskID returns the unique identifier for this task
func (t *LessonReminderTaskDef) TaskID() string {
	return "lesson_reminder"
}

// CreateTask builds a ScheduledTask record for one reminder offset.
func (t *LessonReminderTaskDef) CreateTask(bookingID uint, offset string, due time.Time) (*models.ScheduledTask, error) {
	task, err := BuildScheduledTask(t.TaskID(), LessonReminderArgs{BookingID: bookingID, Offset: offset}, due, nil, models.ScheduledTaskTypeOneTime, 3)
	if err != nil {
		return nil, err
	}
	id := bookingID
	task.BookingID = &id
	return task, nil
}

// HandleExecution sends the reminder and marks the booking's offset flag.
func (t *LessonReminderTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	args, err := parseArgs[LessonReminderArgs](task)
	if err != nil {
		return nil, err
	}

	var booking models.Booking
	if err := db.First(&booking, args.BookingID).Error; err != nil {
		return map[string]interface{}{"status": "skipped", "reason": "booking not found"}, nil
	}
	if booking.Status != models.BookingStatusPaid {
		return map[string]interface{}{"status": "skipped", "reason": fmt.Sprintf("booking is %s", booking.Status)}, nil
	}

	var flagColumn string
	var alreadySent bool
	switch args.Offset {
	case ReminderOffset12h:
		flagColumn, alreadySent = "reminder12_sent", booking.Reminder12Sent
	case ReminderOffset2h:
		flagColumn, alreadySent = "reminder2_sent", booking.Reminder2Sent
	default:
		return nil, fmt.Errorf("unknown reminder offset %q", args.Offset)
	}
	if alreadySent {
		return map[string]interface{}{"status": "skipped", "reason": "already sent"}, nil
	}

	var user models.User
	if err := db.First(&user, booking.UserID).Error; err != nil {
		return nil, fmt.Errorf("load user %d: %w", booking.UserID, err)
	}

	var text string
	if args.Offset == ReminderOffset12h {
		text = fmt.Sprintf("Reminder: your %s lesson with %s is on %s at %s.",
			booking.LessonType, booking.Trainer, booking.Date, booking.Time)
	} else {
		text = fmt.Sprintf("Your lesson with %s starts today at %s. See you soon!",
			booking.Trainer, booking.Time)
	}

	if err := t.Messenger.SendText(user.PlatformID, text); err != nil {
		return nil, fmt.Errorf("send reminder: %w", err)
	}

	if err := db.Model(&booking).UpdateColumn(flagColumn, true).Error; err != nil {
		log.Error().Err(err).Uint("booking_id", booking.ID).Str("flag", flagColumn).Msg("reminder sent but flag update failed")
	}

	return map[string]interface{}{"status": "success", "offset": args.Offset}, nil
}

// LessonReminderTask is the singleton instance of LessonReminderTaskDef
var LessonReminderTask = &LessonReminderTaskDef{}

// Scheduler persists and disables reminder tasks for bookings. It is the
// lifecycle engine's ReminderScheduler.
type Scheduler struct {
	loc *time.Location
}

func NewScheduler(loc *time.Location) *Scheduler {
	return &Scheduler{loc: loc}
}

var reminderOffsets = map[string]time.Duration{
	ReminderOffset12h: 12 * time.Hour,
	ReminderOffset2h:  2 * time.Hour,
}

// ScheduleReminders creates one reminder task per offset that still lies in
// the future. A booking made closer to the lesson than an offset simply
// skips that reminder.
func (s *Scheduler) ScheduleReminders(db *gorm.DB, b *models.Booking) error {
	start, err := b.LessonStart(s.loc)
	if err != nil {
		return fmt.Errorf("lesson start for booking %d: %w", b.ID, err)
	}

	now := time.Now().In(s.loc)
	for offset, d := range reminderOffsets {
		due := start.Add(-d)
		if !due.After(now) {
			continue
		}
		task, err := LessonReminderTask.CreateTask(b.ID, offset, due)
		if err != nil {
			return err
		}
		if err := db.Create(task).Error; err != nil {
			return err
		}
	}
	return nil
}

// CancelReminders disables every active reminder of the booking so none can
// fire after a terminal status change.
func (s *Scheduler) CancelReminders(db *gorm.DB, bookingID uint) error {
	return db.Model(&models.ScheduledTask{}).
		Where("booking_id = ? AND status = ?", bookingID, models.ScheduledTaskStatusActive).
		Update("status", models.ScheduledTaskStatusDisabled).Error
}
