package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"studio_booking_echo/internal/models"
	"studio_booking_echo/internal/services"
)

// ScheduleHandler serves the trainer/date/time discovery chain clients walk
// before creating a booking.
type ScheduleHandler struct {
	slots services.SlotSource
}

func NewScheduleHandler(slots services.SlotSource) *ScheduleHandler {
	return &ScheduleHandler{slots: slots}
}

// ListTrainers returns trainers with at least one bookable slot.
func (h *ScheduleHandler) ListTrainers(c echo.Context) error {
	trainers := h.slots.ListTrainers(c.Request().Context())
	return c.JSON(http.StatusOK, echo.Map{"trainers": trainers})
}

// ListDates returns bookable dates for a trainer within the horizon.
func (h *ScheduleHandler) ListDates(c echo.Context) error {
	trainer := c.Param("trainer")
	if trainer == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "trainer is required")
	}

	horizon := services.DefaultHorizonDays
	if raw := c.QueryParam("horizon_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > services.DefaultHorizonDays {
			return echo.NewHTTPError(http.StatusBadRequest, "horizon_days must be a positive number within the booking horizon")
		}
		horizon = parsed
	}

	dates := h.slots.ListDates(c.Request().Context(), trainer, horizon)
	return c.JSON(http.StatusOK, echo.Map{"trainer": trainer, "dates": dates})
}

// ListTimes returns bookable slots for a trainer and date, optionally
// filtered to slots compatible with a lesson type.
func (h *ScheduleHandler) ListTimes(c echo.Context) error {
	trainer := c.Param("trainer")
	date := c.Param("date")
	if trainer == "" || date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "trainer and date are required")
	}

	lessonType := models.LessonType(c.QueryParam("lesson_type"))
	if lessonType != "" && !models.ValidLessonType(lessonType) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown lesson_type")
	}

	slots := h.slots.ListTimes(c.Request().Context(), trainer, date, lessonType)
	return c.JSON(http.StatusOK, echo.Map{"trainer": trainer, "date": date, "slots": slots})
}
