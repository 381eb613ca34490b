package tasks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"studio_booking_echo/internal/models"
)

func newTaskDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Booking{},
		&models.ScheduledTask{},
		&models.ScheduledTaskHistory{},
	))
	return db
}

type fakeMessenger struct {
	sent []string
	err  error
}

func (f *fakeMessenger) SendText(chatID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, chatID+": "+text)
	return nil
}

func seedPaidBooking(t *testing.T, db *gorm.DB, start time.Time) *models.Booking {
	t.Helper()
	user := &models.User{PlatformID: "chat-1", FullName: "Client", LastActivity: time.Now()}
	require.NoError(t, db.Create(user).Error)

	booking := &models.Booking{
		UserID:     user.ID,
		Trainer:    "Anna",
		Date:       start.Format(models.LessonDateLayout),
		Time:       start.Format(models.LessonTimeLayout),
		SlotID:     "2",
		LessonType: models.LessonTypeGroupSingle,
		Status:     models.BookingStatusPaid,
	}
	require.NoError(t, db.Create(booking).Error)
	return booking
}

func TestScheduleRemindersCreatesBothOffsets(t *testing.T) {
	db := newTaskDB(t)
	s := NewScheduler(time.UTC)

	start := time.Now().UTC().Add(26 * time.Hour)
	booking := seedPaidBooking(t, db, start)

	require.NoError(t, s.ScheduleReminders(db, booking))

	var created []models.ScheduledTask
	require.NoError(t, db.Where("booking_id = ?", booking.ID).Order("due ASC").Find(&created).Error)
	require.Len(t, created, 2)
	for _, task := range created {
		require.Equal(t, LessonReminderTask.TaskID(), task.TaskName)
		require.Equal(t, models.ScheduledTaskStatusActive, task.Status)
		require.True(t, task.Due.Before(start), "reminder must fire before the lesson")
	}
}

func TestScheduleRemindersSkipsPastOffsets(t *testing.T) {
	db := newTaskDB(t)
	s := NewScheduler(time.UTC)

	// 5 hours out: the 12h reminder moment already passed.
	start := time.Now().UTC().Add(5 * time.Hour)
	booking := seedPaidBooking(t, db, start)

	require.NoError(t, s.ScheduleReminders(db, booking))

	var created []models.ScheduledTask
	require.NoError(t, db.Where("booking_id = ?", booking.ID).Find(&created).Error)
	require.Len(t, created, 1)
	require.Equal(t, ReminderOffset2h, created[0].Arguments["offset"])
}

func TestCancelRemindersDisablesActiveTasks(t *testing.T) {
	db := newTaskDB(t)
	s := NewScheduler(time.UTC)

	start := time.Now().UTC().Add(26 * time.Hour)
	booking := seedPaidBooking(t, db, start)
	require.NoError(t, s.ScheduleReminders(db, booking))

	require.NoError(t, s.CancelReminders(db, booking.ID))

	var active int64
	require.NoError(t, db.Model(&models.ScheduledTask{}).
		Where("booking_id = ? AND status = ?", booking.ID, models.ScheduledTaskStatusActive).
		Count(&active).Error)
	require.Zero(t, active)
}

func TestReminderHandlerSendsOnceAndFlags(t *testing.T) {
	db := newTaskDB(t)
	messenger := &fakeMessenger{}
	def := &LessonReminderTaskDef{Messenger: messenger, Loc: time.UTC}

	start := time.Now().UTC().Add(13 * time.Hour)
	booking := seedPaidBooking(t, db, start)

	task, err := def.CreateTask(booking.ID, ReminderOffset12h, start.Add(-12*time.Hour))
	require.NoError(t, err)
	require.NoError(t, db.Create(task).Error)

	result, err := def.HandleExecution(context.Background(), db, *task)
	require.NoError(t, err)
	require.Equal(t, "success", result["status"])
	require.Len(t, messenger.sent, 1)
	require.Contains(t, messenger.sent[0], "chat-1")

	var got models.Booking
	require.NoError(t, db.First(&got, booking.ID).Error)
	require.True(t, got.Reminder12Sent)
	require.False(t, got.Reminder2Sent)

	// A duplicate delivery of the same task must not send again.
	result, err = def.HandleExecution(context.Background(), db, *task)
	require.NoError(t, err)
	require.Equal(t, "skipped", result["status"])
	require.Len(t, messenger.sent, 1)
}

func TestReminderHandlerSkipsNonPaidBooking(t *testing.T) {
	db := newTaskDB(t)
	messenger := &fakeMessenger{}
	def := &LessonReminderTaskDef{Messenger: messenger, Loc: time.UTC}

	start := time.Now().UTC().Add(13 * time.Hour)
	booking := seedPaidBooking(t, db, start)
	require.NoError(t, db.Model(booking).Update("status", models.BookingStatusCancelled).Error)

	task, err := def.CreateTask(booking.ID, ReminderOffset2h, start.Add(-2*time.Hour))
	require.NoError(t, err)

	result, err := def.HandleExecution(context.Background(), db, *task)
	require.NoError(t, err)
	require.Equal(t, "skipped", result["status"])
	require.Empty(t, messenger.sent)
}

func TestInactivityScanNudgesIdleUsersOnce(t *testing.T) {
	db := newTaskDB(t)
	messenger := &fakeMessenger{}
	def := &InactivityScanTaskDef{Messenger: messenger}

	now := time.Now()
	idle := models.User{PlatformID: "idle-chat", LastActivity: now.Add(-20 * 24 * time.Hour)}
	active := models.User{PlatformID: "active-chat", LastActivity: now.Add(-2 * 24 * time.Hour)}
	require.NoError(t, db.Create(&idle).Error)
	require.NoError(t, db.Create(&active).Error)

	result, err := def.HandleExecution(context.Background(), db, models.ScheduledTask{})
	require.NoError(t, err)
	require.Equal(t, 1, result["sent"])
	require.Len(t, messenger.sent, 1)
	require.Contains(t, messenger.sent[0], "idle-chat")

	var got models.User
	require.NoError(t, db.First(&got, idle.ID).Error)
	require.NotNil(t, got.LastInactivityNotice)

	// Second scan inside the window stays silent.
	result, err = def.HandleExecution(context.Background(), db, models.ScheduledTask{})
	require.NoError(t, err)
	require.Equal(t, 0, result["sent"])
	require.Len(t, messenger.sent, 1)
}

func TestEnsureScheduledIsIdempotent(t *testing.T) {
	db := newTaskDB(t)
	def := &InactivityScanTaskDef{}

	require.NoError(t, def.EnsureScheduled(db))
	require.NoError(t, def.EnsureScheduled(db))

	var count int64
	require.NoError(t, db.Model(&models.ScheduledTask{}).
		Where("task_name = ? AND status = ?", def.TaskID(), models.ScheduledTaskStatusActive).
		Count(&count).Error)
	require.Equal(t, int64(1), count)
}
