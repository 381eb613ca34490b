package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"studio_booking_echo/internal/middleware"
	"studio_booking_echo/internal/models"
	"studio_booking_echo/internal/services"
)

// AdminHandler exposes the studio-side operations: the daily roster, status
// overrides and manual subscription grants.
type AdminHandler struct {
	db       *gorm.DB
	bookings *services.BookingService
	ledger   *services.SubscriptionLedger
	loc      *time.Location
}

func NewAdminHandler(db *gorm.DB, bookings *services.BookingService, ledger *services.SubscriptionLedger, loc *time.Location) *AdminHandler {
	return &AdminHandler{db: db, bookings: bookings, ledger: ledger, loc: loc}
}

// TodayBookings returns today's roster with owner contact details, excluding
// cancelled bookings.
func (h *AdminHandler) TodayBookings(c echo.Context) error {
	today := time.Now().In(h.loc).Format(models.LessonDateLayout)

	var bookings []models.Booking
	err := h.db.Preload("User").
		Where("date = ? AND status != ?", today, models.BookingStatusCancelled).
		Order("time ASC, id ASC").
		Find(&bookings).Error
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{"date": today, "bookings": bookings})
}

// OverrideCancel cancels a booking without penalty, bypassing the window.
func (h *AdminHandler) OverrideCancel(c echo.Context) error {
	id, err := bookingID(c)
	if err != nil {
		return err
	}
	adminUID, _ := c.Get(middleware.ContextUserUID).(string)

	booking, err := h.bookings.AdminCancelNoPenalty(c.Request().Context(), adminUID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": booking})
}

// CancelBooking cancels on the user's behalf under the normal window rules.
func (h *AdminHandler) CancelBooking(c echo.Context) error {
	id, err := bookingID(c)
	if err != nil {
		return err
	}

	var booking models.Booking
	if err := h.db.First(&booking, id).Error; err != nil {
		return services.ErrBookingNotFound
	}

	outcome, err := h.bookings.Cancel(c.Request().Context(), id, booking.UserID)
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

// MarkDone closes out a booking after the lesson took place.
func (h *AdminHandler) MarkDone(c echo.Context) error {
	id, err := bookingID(c)
	if err != nil {
		return err
	}

	booking, err := h.bookings.MarkDone(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": booking})
}

// GrantSubscription creates a subscription pack for a user. Pack sizes are
// restricted to the studio's price list.
func (h *AdminHandler) GrantSubscription(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	var req GrantSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !models.ValidSubscriptionSize(req.ClassesTotal) {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("classes_total must be one of %v", models.SubscriptionSizes))
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}

	sub, err := h.ledger.Grant(user.ID, req.ClassesTotal)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"subscription": sub})
}
