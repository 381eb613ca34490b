package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"studio_booking_echo/internal/models"
)

// Slot is one row of the studio schedule in the availability source.
type Slot struct {
	SlotID     string            `json:"slot_id"` // sheet row number
	Trainer    string            `json:"trainer"`
	Date       string            `json:"date"` // YYYY-MM-DD
	Time       string            `json:"time"` // HH:MM
	Free       int               `json:"free"`
	Price      int               `json:"price"`
	LessonType models.LessonType `json:"lesson_type"` // empty until first claimed
}

// SlotSource is the availability-source contract the lifecycle engine and the
// schedule handlers consume. Read failures degrade to empty results and write
// failures to false; the engine always sees a clean contract.
type SlotSource interface {
	ListTrainers(ctx context.Context) []string
	ListDates(ctx context.Context, trainer string, horizonDays int) []string
	ListTimes(ctx context.Context, trainer, date string, lessonType models.LessonType) []Slot
	AdjustCapacity(ctx context.Context, slotID string, delta int) bool
	GetLessonType(ctx context.Context, slotID string) (models.LessonType, bool)
	SetLessonType(ctx context.Context, slotID string, t models.LessonType) bool
	AppendEvent(ctx context.Context, userID uint, action string)
}

const (
	scheduleRange = "Schedule!A2:F"
	eventsRange   = "Events!A:C"

	// Column offsets within the Schedule sheet, 1-based for cell updates.
	freeColumn       = 4 // D
	lessonTypeColumn = 6 // F

	scheduleCacheKey = "schedule:rows"
	scheduleCacheTTL = 30 * time.Second

	// DefaultHorizonDays bounds how far ahead clients may book.
	DefaultHorizonDays = 30
)

// SheetsSlotSource reads the studio schedule from a Google Sheets worksheet
// and logs user actions to the Events worksheet. Reads go through the Redis
// cache with a short TTL; staleness within that window is acceptable.
type SheetsSlotSource struct {
	svc           *sheets.Service
	spreadsheetID string
	cache         *RedisCache
	loc           *time.Location
}

func NewSheetsSlotSource(ctx context.Context, credentialsFile, spreadsheetID string, cache *RedisCache, loc *time.Location) (*SheetsSlotSource, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SheetsSlotSource{svc: svc, spreadsheetID: spreadsheetID, cache: cache, loc: loc}, nil
}

// readAll fetches the whole Schedule worksheet, cached.
func (s *SheetsSlotSource) readAll(ctx context.Context) []Slot {
	slots, err := GetOrSet(s.cache, ctx, scheduleCacheKey, scheduleCacheTTL, func() ([]Slot, error) {
		resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, scheduleRange).Context(ctx).Do()
		if err != nil {
			return nil, err
		}

		var out []Slot
		for i, row := range resp.Values {
			if len(row) < 5 {
				continue
			}
			free, err := strconv.Atoi(cellString(row, 3))
			if err != nil {
				continue
			}
			price, err := strconv.Atoi(cellString(row, 4))
			if err != nil {
				continue
			}
			out = append(out, Slot{
				SlotID:     strconv.Itoa(i + 2), // +2: header row, 1-based rows
				Trainer:    cellString(row, 0),
				Date:       cellString(row, 1),
				Time:       cellString(row, 2),
				Free:       free,
				Price:      price,
				LessonType: models.LessonType(cellString(row, 5)),
			})
		}
		return out, nil
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to read schedule sheet")
		return nil
	}
	return slots
}

// ListTrainers returns trainers with at least one free seat, sorted.
func (s *SheetsSlotSource) ListTrainers(ctx context.Context) []string {
	seen := make(map[string]bool)
	for _, slot := range s.readAll(ctx) {
		if slot.Free > 0 && slot.Trainer != "" {
			seen[slot.Trainer] = true
		}
	}
	trainers := make([]string, 0, len(seen))
	for t := range seen {
		trainers = append(trainers, t)
	}
	sort.Strings(trainers)
	return trainers
}

// ListDates returns dates with a free seat for the trainer within the horizon.
func (s *SheetsSlotSource) ListDates(ctx context.Context, trainer string, horizonDays int) []string {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	now := time.Now().In(s.loc)

	seen := make(map[string]bool)
	for _, slot := range s.readAll(ctx) {
		if slot.Trainer != trainer || slot.Free <= 0 {
			continue
		}
		if !withinBookingWindow(slot.Date, now, horizonDays, s.loc) {
			continue
		}
		seen[slot.Date] = true
	}

	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates) // YYYY-MM-DD sorts chronologically
	return dates
}

// ListTimes returns bookable slots for the trainer and date. When lessonType
// is non-empty, slots already fixed to a different type are filtered out;
// unclaimed slots stay visible because the first booking will fix them.
func (s *SheetsSlotSource) ListTimes(ctx context.Context, trainer, date string, lessonType models.LessonType) []Slot {
	var out []Slot
	for _, slot := range s.readAll(ctx) {
		if slot.Trainer != trainer || slot.Date != date || slot.Free <= 0 {
			continue
		}
		if lessonType != "" && slot.LessonType != "" && slot.LessonType != lessonType {
			continue
		}
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// AdjustCapacity shifts the free-seat counter of a slot by delta, clamped at
// zero. Best-effort: a false return is logged by the caller, not retried.
func (s *SheetsSlotSource) AdjustCapacity(ctx context.Context, slotID string, delta int) bool {
	cell := fmt.Sprintf("Schedule!%s%s", columnLetter(freeColumn), slotID)

	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, cell).Context(ctx).Do()
	if err != nil {
		log.Error().Err(err).Str("slot_id", slotID).Msg("failed to read slot capacity")
		return false
	}
	current := 0
	if len(resp.Values) > 0 {
		current, _ = strconv.Atoi(cellString(resp.Values[0], 0))
	}

	next := current + delta
	if next < 0 {
		next = 0
	}

	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, cell, &sheets.ValueRange{
		Values: [][]interface{}{{next}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		log.Error().Err(err).Str("slot_id", slotID).Int("delta", delta).Msg("failed to update slot capacity")
		return false
	}

	s.invalidate(ctx)
	log.Debug().Str("slot_id", slotID).Int("from", current).Int("to", next).Msg("slot capacity updated")
	return true
}

// GetLessonType reads the slot's current lesson type straight from the sheet,
// bypassing the cache: the first-claim decision must not act on stale data.
func (s *SheetsSlotSource) GetLessonType(ctx context.Context, slotID string) (models.LessonType, bool) {
	cell := fmt.Sprintf("Schedule!%s%s", columnLetter(lessonTypeColumn), slotID)
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, cell).Context(ctx).Do()
	if err != nil {
		log.Error().Err(err).Str("slot_id", slotID).Msg("failed to read slot lesson type")
		return "", false
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return "", true
	}
	return models.LessonType(cellString(resp.Values[0], 0)), true
}

// SetLessonType fixes the slot's lesson type. Called once, by the first
// booking on an unclaimed slot.
func (s *SheetsSlotSource) SetLessonType(ctx context.Context, slotID string, t models.LessonType) bool {
	cell := fmt.Sprintf("Schedule!%s%s", columnLetter(lessonTypeColumn), slotID)
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, cell, &sheets.ValueRange{
		Values: [][]interface{}{{string(t)}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		log.Error().Err(err).Str("slot_id", slotID).Str("lesson_type", string(t)).Msg("failed to set slot lesson type")
		return false
	}
	s.invalidate(ctx)
	return true
}

// AppendEvent logs a user action to the Events worksheet. Fire-and-forget:
// failures never abort the triggering operation.
func (s *SheetsSlotSource) AppendEvent(ctx context.Context, userID uint, action string) {
	row := []interface{}{
		strconv.FormatUint(uint64(userID), 10),
		time.Now().In(s.loc).Format("2006-01-02 15:04:05"),
		action,
	}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, eventsRange, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Str("action", action).Msg("failed to append event row")
	}
}

func (s *SheetsSlotSource) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, scheduleCacheKey)
}

// withinBookingWindow reports whether a slot date is still bookable: not
// before today, not past the horizon. The day boundary is studio-local
// midnight, not the UTC one, so today's slots stay listed for the whole
// studio day. Malformed dates are not bookable.
func withinBookingWindow(date string, now time.Time, horizonDays int, loc *time.Location) bool {
	d, err := time.ParseInLocation(models.LessonDateLayout, date, loc)
	if err != nil {
		return false
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return !d.Before(midnight) && !d.After(local.AddDate(0, 0, horizonDays))
}

func cellString(row []interface{}, idx int) string {
	if idx >= len(row) {
		return ""
	}
	v, _ := row[idx].(string)
	return v
}

func columnLetter(col int) string {
	return string(rune('A' + col - 1))
}
