package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"studio_booking_echo/internal/middleware"
	"studio_booking_echo/internal/services"
)

// UserHandler serves profile and subscription views for the authenticated
// user.
type UserHandler struct {
	db     *gorm.DB
	ledger *services.SubscriptionLedger
}

func NewUserHandler(db *gorm.DB, ledger *services.SubscriptionLedger) *UserHandler {
	return &UserHandler{db: db, ledger: ledger}
}

// Me returns the authenticated user's profile.
func (h *UserHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, middleware.UserFrom(c))
}

// UpdateMe updates the profile fields the user may edit.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	user := middleware.UserFrom(c)

	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if len(updates) == 0 {
		return c.JSON(http.StatusOK, user)
	}

	if err := h.db.Model(user).Updates(updates).Error; err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// MySubscriptions lists the user's subscription packs, soonest-expiring
// first.
func (h *UserHandler) MySubscriptions(c echo.Context) error {
	user := middleware.UserFrom(c)
	subs, err := h.ledger.ListForUser(user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"subscriptions": subs})
}
