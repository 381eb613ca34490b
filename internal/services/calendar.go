package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"studio_booking_echo/internal/models"
)

const lessonDuration = time.Hour

// CalendarService mirrors confirmed bookings into per-trainer Google
// calendars. Strictly best-effort: the booking flow never fails on a
// calendar error, and trainers without a configured calendar are skipped.
type CalendarService struct {
	svc       *calendar.Service
	calendars map[string]string // trainer name -> calendar id
	loc       *time.Location
}

func NewCalendarService(ctx context.Context, credentialsFile string, calendars map[string]string, loc *time.Location) (*CalendarService, error) {
	svc, err := calendar.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(calendar.CalendarEventsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create calendar client: %w", err)
	}
	return &CalendarService{svc: svc, calendars: calendars, loc: loc}, nil
}

// CreateEvent writes the lesson into the trainer's calendar. Returns false
// when the trainer has no calendar or the write fails.
func (s *CalendarService) CreateEvent(ctx context.Context, b *models.Booking) bool {
	calendarID, ok := s.calendars[b.Trainer]
	if !ok || calendarID == "" {
		log.Debug().Str("trainer", b.Trainer).Msg("no calendar configured for trainer")
		return false
	}

	start, err := b.LessonStart(s.loc)
	if err != nil {
		log.Error().Err(err).Uint("booking_id", b.ID).Msg("cannot build calendar event for malformed lesson time")
		return false
	}

	event := &calendar.Event{
		Summary:     fmt.Sprintf("%s lesson (booking %d)", b.LessonType, b.ID),
		Description: fmt.Sprintf("User %d, %s payment", b.UserID, b.PaymentType),
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: s.loc.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: start.Add(lessonDuration).Format(time.RFC3339),
			TimeZone: s.loc.String(),
		},
	}

	if _, err := s.svc.Events.Insert(calendarID, event).Context(ctx).Do(); err != nil {
		log.Error().Err(err).Uint("booking_id", b.ID).Str("trainer", b.Trainer).Msg("failed to create calendar event")
		return false
	}
	return true
}
