package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"studio_booking_echo/internal/config"
	"studio_booking_echo/internal/logger"
	"studio_booking_echo/internal/models"
	"studio_booking_echo/internal/services"
	"studio_booking_echo/internal/tasks"
)

// retryDelay spaces out attempts of a failed task.
const retryDelay = 5 * time.Minute

var (
	emailService *services.EmailService
	adminEmail   string
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init("worker", cfg.Debug)

	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	notifier := services.NewNotifierService(cfg.NotifierBaseURL, cfg.NotifierAPIKey)
	emailService = services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom)
	adminEmail = cfg.AdminEmail

	tasks.DefineTasks(notifier, cfg.Location())
	if err := tasks.InactivityScanTask.EnsureScheduled(db); err != nil {
		log.Error().Err(err).Msg("failed to ensure inactivity scan task")
	}

	log.Info().Dur("tick", cfg.WorkerTick).Msg("worker started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("shutting down worker")
		cancel()
	}()

	ticker := time.NewTicker(cfg.WorkerTick)
	defer ticker.Stop()

	processScheduledTasks(ctx, db)

	for {
		select {
		case <-ticker.C:
			processScheduledTasks(ctx, db)
		case <-ctx.Done():
			return
		}
	}
}

func processScheduledTasks(ctx context.Context, db *gorm.DB) {
	var pendingTasks []models.ScheduledTask
	now := time.Now()
	if err := db.Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).Find(&pendingTasks).Error; err != nil {
		log.Error().Err(err).Msg("error fetching pending tasks")
		return
	}

	if len(pendingTasks) == 0 {
		return
	}

	log.Info().Int("count", len(pendingTasks)).Msg("processing pending tasks")

	for _, task := range pendingTasks {
		if ctx.Err() != nil {
			return
		}
		executeTask(ctx, db, task)
	}
}

func executeTask(ctx context.Context, db *gorm.DB, task models.ScheduledTask) {
	attempt := task.Attempts + 1
	log.Info().Str("task", task.TaskName).Uint("id", task.ID).Int("attempt", attempt).Msg("processing task")

	handler, found := tasks.GetHandler(task.TaskName)
	if !found {
		log.Error().Str("task", task.TaskName).Msg("task handler not found, marking failure")

		now := time.Now()
		db.Model(&task).Updates(map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		})
		db.Create(&models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           now,
			Status:          "handler_not_found",
			AttemptNumber:   attempt,
			Arguments:       task.Arguments,
			Result:          map[string]interface{}{"error": "handler not found"},
		})
		return
	}

	startTime := time.Now()
	result, err := handler(ctx, db, task)
	runtimeMs := int(time.Since(startTime).Milliseconds())

	status := "success"
	var resultData map[string]interface{}
	if err != nil {
		status = "failure"
		resultData = map[string]interface{}{"error": err.Error()}
		log.Error().Err(err).Str("task", task.TaskName).Msg("task failed")
	} else {
		resultData = result
	}

	db.Create(&models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           startTime,
		Runtime:         runtimeMs,
		Status:          status,
		AttemptNumber:   attempt,
		Arguments:       task.Arguments,
		Result:          resultData,
	})

	taskUpdates := map[string]interface{}{
		"last_run": &startTime,
		"attempts": attempt,
	}

	if status != "success" {
		if attempt < task.MaxAttempt {
			// Stay active, retry after a delay.
			taskUpdates["due"] = startTime.Add(retryDelay)
		} else {
			taskUpdates["status"] = models.ScheduledTaskStatusFailure
			escalate(task, err)
		}
	} else {
		taskUpdates["attempts"] = 0
		switch task.TaskType {
		case models.ScheduledTaskTypeOneTime:
			taskUpdates["status"] = models.ScheduledTaskStatusDone
		case models.ScheduledTaskTypeRecurring:
			nextDue := task.NextDue()
			// next due must move forward, otherwise the task would re-run every tick
			if nextDue.After(task.Due) {
				taskUpdates["status"] = models.ScheduledTaskStatusActive
				taskUpdates["due"] = nextDue
			} else {
				taskUpdates["status"] = models.ScheduledTaskStatusDone
			}
		}
	}

	db.Model(&task).Updates(taskUpdates)
}

// escalate mails the admin when a task exhausts its attempts.
func escalate(task models.ScheduledTask, taskErr error) {
	if adminEmail == "" {
		return
	}
	subject := fmt.Sprintf("Task %s (id %d) failed permanently", task.TaskName, task.ID)
	body := fmt.Sprintf("Task %s exhausted %d attempts.\n\nLast error: %v\nArguments: %v\n",
		task.TaskName, task.MaxAttempt, taskErr, task.Arguments)
	if err := emailService.SendEmail([]string{adminEmail}, subject, body); err != nil {
		log.Error().Err(err).Msg("failed to send escalation email")
	}
}
