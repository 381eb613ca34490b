package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"studio_booking_echo/internal/middleware"
	"studio_booking_echo/internal/models"
	"studio_booking_echo/internal/services"
)

// stubSlots is a fixed in-memory SlotSource.
type stubSlots struct {
	slots map[string]*services.Slot
}

func (f *stubSlots) ListTrainers(ctx context.Context) []string {
	return []string{"Anna", "Boris"}
}

func (f *stubSlots) ListDates(ctx context.Context, trainer string, horizonDays int) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range f.slots {
		if s.Trainer == trainer && s.Free > 0 && !seen[s.Date] {
			seen[s.Date] = true
			out = append(out, s.Date)
		}
	}
	return out
}

func (f *stubSlots) ListTimes(ctx context.Context, trainer, date string, lessonType models.LessonType) []services.Slot {
	var out []services.Slot
	for _, s := range f.slots {
		if s.Trainer != trainer || s.Date != date || s.Free <= 0 {
			continue
		}
		if lessonType != "" && s.LessonType != "" && s.LessonType != lessonType {
			continue
		}
		out = append(out, *s)
	}
	return out
}

func (f *stubSlots) AdjustCapacity(ctx context.Context, slotID string, delta int) bool {
	s, ok := f.slots[slotID]
	if !ok {
		return false
	}
	s.Free += delta
	if s.Free < 0 {
		s.Free = 0
	}
	return true
}

func (f *stubSlots) GetLessonType(ctx context.Context, slotID string) (models.LessonType, bool) {
	s, ok := f.slots[slotID]
	if !ok {
		return "", false
	}
	return s.LessonType, true
}

func (f *stubSlots) SetLessonType(ctx context.Context, slotID string, t models.LessonType) bool {
	s, ok := f.slots[slotID]
	if !ok {
		return false
	}
	s.LessonType = t
	return true
}

func (f *stubSlots) AppendEvent(ctx context.Context, userID uint, action string) {}

type noopScheduler struct{}

func (noopScheduler) ScheduleReminders(db *gorm.DB, b *models.Booking) error { return nil }
func (noopScheduler) CancelReminders(db *gorm.DB, bookingID uint) error      { return nil }

var handlerTestNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	e    *echo.Echo
	db   *gorm.DB
	user *models.User
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, services.AutoMigrate(db))

	user := &models.User{PlatformID: "uid-1", FullName: "Client", LastActivity: handlerTestNow}
	require.NoError(t, db.Create(user).Error)

	slots := &stubSlots{slots: map[string]*services.Slot{
		// 26 hours out, outside the cancellation window
		"2": {SlotID: "2", Trainer: "Anna", Date: "2025-03-11", Time: "10:00", Free: 3, Price: 1500, LessonType: models.LessonTypeGroupSingle},
		// 9 hours out, inside the window
		"3": {SlotID: "3", Trainer: "Anna", Date: "2025-03-10", Time: "17:00", Free: 2, Price: 1500, LessonType: models.LessonTypeGroupSingle},
	}}

	ledger := services.NewSubscriptionLedger(db)
	bookingService := services.NewBookingService(db, slots, ledger, noopScheduler{}, nil, time.UTC)
	bookingService.Now = func() time.Time { return handlerTestNow }

	e := echo.New()
	e.HTTPErrorHandler = middleware.CustomErrorHandler

	// Stand-in for RequireAuth+LoadUser: inject the seeded user directly.
	inject := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(middleware.ContextUserUID, user.PlatformID)
			c.Set(middleware.ContextUser, user)
			return next(c)
		}
	}

	scheduleHandler := NewScheduleHandler(slots)
	bookingHandler := NewBookingHandler(db, bookingService)

	api := e.Group("/api", inject)
	api.GET("/trainers", scheduleHandler.ListTrainers)
	api.GET("/trainers/:trainer/dates", scheduleHandler.ListDates)
	api.GET("/trainers/:trainer/dates/:date/times", scheduleHandler.ListTimes)
	api.POST("/bookings", bookingHandler.CreateBooking)
	api.GET("/bookings", bookingHandler.MyBookings)
	api.POST("/bookings/:id/cancel", bookingHandler.CancelBooking)
	api.POST("/bookings/:id/reschedule", bookingHandler.Reschedule)

	return &testEnv{e: e, db: db, user: user}
}

func (env *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	env.e.ServeHTTP(w, req)
	return w
}

func TestListTrainersAndTimes(t *testing.T) {
	env := setupEnv(t)

	w := env.do("GET", "/api/trainers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trainersResp struct {
		Trainers []string `json:"trainers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trainersResp))
	require.Contains(t, trainersResp.Trainers, "Anna")

	w = env.do("GET", "/api/trainers/Anna/dates/2025-03-11/times", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var timesResp struct {
		Slots []services.Slot `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &timesResp))
	require.Len(t, timesResp.Slots, 1)
	require.Equal(t, "10:00", timesResp.Slots[0].Time)

	w = env.do("GET", "/api/trainers/Anna/dates/2025-03-11/times?lesson_type=yoga", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAndCancelBookingOverHTTP(t *testing.T) {
	env := setupEnv(t)

	w := env.do("POST", "/api/bookings", CreateBookingRequest{
		Trainer:     "Anna",
		Date:        "2025-03-11",
		Time:        "10:00",
		SlotID:      "2",
		PaymentType: "single",
		LessonType:  "group_single",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Booking         models.Booking `json:"booking"`
		PaymentRequired bool           `json:"payment_required"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.True(t, created.PaymentRequired)
	require.Equal(t, models.BookingStatusPending, created.Booking.Status)

	w = env.do("GET", "/api/bookings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do("POST", fmt.Sprintf("/api/bookings/%d/cancel", created.Booking.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled struct {
		Early          bool    `json:"early"`
		HoursRemaining float64 `json:"hours_remaining"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancelled))
	require.True(t, cancelled.Early)

	// Cancelling again conflicts.
	w = env.do("POST", fmt.Sprintf("/api/bookings/%d/cancel", created.Booking.ID), nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestBookingErrorMapping(t *testing.T) {
	env := setupEnv(t)

	// Unknown slot.
	w := env.do("POST", "/api/bookings", CreateBookingRequest{
		Trainer:     "Anna",
		Date:        "2025-03-11",
		Time:        "23:00",
		SlotID:      "99",
		PaymentType: "single",
		LessonType:  "group_single",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	// Unknown lesson type.
	w = env.do("POST", "/api/bookings", CreateBookingRequest{
		Trainer:     "Anna",
		Date:        "2025-03-11",
		Time:        "10:00",
		SlotID:      "2",
		PaymentType: "single",
		LessonType:  "yoga",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown booking id.
	w = env.do("POST", "/api/bookings/999/cancel", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRescheduleDeniedInsideWindowOverHTTP(t *testing.T) {
	env := setupEnv(t)

	w := env.do("POST", "/api/bookings", CreateBookingRequest{
		Trainer:     "Anna",
		Date:        "2025-03-10",
		Time:        "17:00",
		SlotID:      "3",
		PaymentType: "single",
		LessonType:  "group_single",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Booking models.Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = env.do("POST", fmt.Sprintf("/api/bookings/%d/reschedule", created.Booking.ID), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	var denied struct {
		Error          string  `json:"error"`
		HoursRemaining float64 `json:"hours_remaining"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &denied))
	require.InDelta(t, 9.0, denied.HoursRemaining, 0.01)
	require.Contains(t, denied.Error, "reschedule")
}
