package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"studio_booking_echo/internal/middleware"
	"studio_booking_echo/internal/models"
	"studio_booking_echo/internal/services"
)

// BookingHandler exposes the booking lifecycle to authenticated users.
type BookingHandler struct {
	db       *gorm.DB
	bookings *services.BookingService
}

func NewBookingHandler(db *gorm.DB, bookings *services.BookingService) *BookingHandler {
	return &BookingHandler{db: db, bookings: bookings}
}

func bookingID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid booking id")
	}
	return uint(id), nil
}

// CreateBooking reserves a seat for the authenticated user.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
	user := middleware.UserFrom(c)

	var req CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.bookings.CreateBooking(c.Request().Context(), services.CreateBookingInput{
		UserID:      user.ID,
		Trainer:     req.Trainer,
		Date:        req.Date,
		Time:        req.Time,
		SlotID:      req.SlotID,
		PaymentType: models.PaymentType(req.PaymentType),
		LessonType:  models.LessonType(req.LessonType),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"booking":          result.Booking,
		"payment_required": result.PaymentRequired,
	})
}

// MyBookings lists the user's bookings, newest lesson first.
func (h *BookingHandler) MyBookings(c echo.Context) error {
	user := middleware.UserFrom(c)

	query := h.db.Where("user_id = ?", user.ID)
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var bookings []models.Booking
	if err := query.Order("date DESC, time DESC").Find(&bookings).Error; err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bookings})
}

// CancelBooking applies the cancellation window to the user's booking.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
	user := middleware.UserFrom(c)
	id, err := bookingID(c)
	if err != nil {
		return err
	}

	outcome, err := h.bookings.Cancel(c.Request().Context(), id, user.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"booking":         outcome.Booking,
		"early":           outcome.Early,
		"hours_remaining": outcome.HoursRemaining,
		"credit_returned": outcome.CreditReturned,
	})
}

// Reschedule opens a reschedule and returns the carry-forward ticket.
func (h *BookingHandler) Reschedule(c echo.Context) error {
	user := middleware.UserFrom(c)
	id, err := bookingID(c)
	if err != nil {
		return err
	}

	ticket, err := h.bookings.Reschedule(c.Request().Context(), id, user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ticket)
}

// CompleteReschedule moves the booking onto the newly chosen slot.
func (h *BookingHandler) CompleteReschedule(c echo.Context) error {
	user := middleware.UserFrom(c)
	id, err := bookingID(c)
	if err != nil {
		return err
	}

	var req CompleteRescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	booking, err := h.bookings.CompleteReschedule(c.Request().Context(), id, user.ID, services.RescheduleTarget{
		Date:   req.Date,
		Time:   req.Time,
		SlotID: req.SlotID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": booking})
}
