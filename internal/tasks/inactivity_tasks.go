package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"studio_booking_echo/internal/models"
)

// InactivityScanTaskDef is the recurring daily sweep that nudges users who
// have been idle for the full inactivity window. The notice timestamp on the
// user row keeps the nudge from repeating until another full window passes.
type InactivityScanTaskDef struct {
	Messenger Messenger
}

// TaskID returns the unique identifier for this task
func (t *InactivityScanTaskDef) TaskID() string {
	return "inactivity_scan"
}

const inactivityRecurrence = "RRULE:FREQ=DAILY"

// EnsureScheduled creates the recurring scan task unless one is already
// active. Safe to call on every startup.
func (t *InactivityScanTaskDef) EnsureScheduled(db *gorm.DB) error {
	var count int64
	err := db.Model(&models.ScheduledTask{}).
		Where("task_name = ? AND status = ?", t.TaskID(), models.ScheduledTaskStatusActive).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	interval := inactivityRecurrence
	task, err := BuildScheduledTask(t.TaskID(), map[string]interface{}{}, time.Now(), &interval, models.ScheduledTaskTypeRecurring, 1)
	if err != nil {
		return err
	}
	return db.Create(task).Error
}

// HandleExecution nudges every user due an inactivity notice.
func (t *InactivityScanTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	now := time.Now()
	cutoff := now.Add(-models.InactivityIdleWindow)

	var users []models.User
	err := db.
		Where("last_activity <= ?", cutoff).
		Where("last_inactivity_notice IS NULL OR last_inactivity_notice <= ?", cutoff).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("scan idle users: %w", err)
	}

	sent := 0
	failed := 0
	for _, user := range users {
		if ctx.Err() != nil {
			break
		}
		text := "We miss you at the studio! It has been two weeks since your last visit. Book your next lesson anytime."
		if err := t.Messenger.SendText(user.PlatformID, text); err != nil {
			log.Error().Err(err).Uint("user_id", user.ID).Msg("failed to send inactivity nudge")
			failed++
			continue
		}
		if err := db.Model(&user).UpdateColumn("last_inactivity_notice", now).Error; err != nil {
			log.Error().Err(err).Uint("user_id", user.ID).Msg("nudge sent but notice timestamp update failed")
		}
		sent++
	}

	return map[string]interface{}{
		"status": "success",
		"due":    len(users),
		"sent":   sent,
		"failed": failed,
	}, nil
}

// InactivityScanTask is the singleton instance of InactivityScanTaskDef
var InactivityScanTask = &InactivityScanTaskDef{}
