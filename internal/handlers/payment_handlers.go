package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"studio_booking_echo/internal/middleware"
	"studio_booking_echo/internal/models"
	"studio_booking_echo/internal/services"
)

const callbackDedupeTTL = 24 * time.Hour

// PaymentHandler drives the single-payment flow: Snap session initiation,
// the gateway's server-to-server callback, and the public return page the
// user lands on after paying.
type PaymentHandler struct {
	db            *gorm.DB
	cache         *services.RedisCache
	payments      *services.PaymentService
	midtrans      *services.MidtransService
	bookings      *services.BookingService
	publicBaseURL string
}

func NewPaymentHandler(db *gorm.DB, cache *services.RedisCache, payments *services.PaymentService, midtrans *services.MidtransService, bookings *services.BookingService, publicBaseURL string) *PaymentHandler {
	return &PaymentHandler{
		db:            db,
		cache:         cache,
		payments:      payments,
		midtrans:      midtrans,
		bookings:      bookings,
		publicBaseURL: publicBaseURL,
	}
}

// InitiatePayment creates or resumes a payment session for a pending booking.
func (h *PaymentHandler) InitiatePayment(c echo.Context) error {
	user := middleware.UserFrom(c)
	id, err := bookingID(c)
	if err != nil {
		return err
	}

	var booking models.Booking
	if err := h.db.Where("id = ? AND user_id = ?", id, user.ID).First(&booking).Error; err != nil {
		return services.ErrBookingNotFound
	}
	if booking.Status != models.BookingStatusPending {
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("booking is %s, nothing to pay", booking.Status))
	}

	forceNew := c.QueryParam("force_new") == "true"
	result, err := h.payments.InitiatePayment(&booking, user, forceNew, h.publicBaseURL)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"token":        result.Token,
		"redirect_url": result.RedirectURL,
		"is_existing":  result.IsExisting,
	})
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}

// MidtransCallback handles the gateway's server-to-server notification.
// Duplicate deliveries are collapsed by a Redis SetNX guard keyed on order
// and status; every notification is archived either way.
func (h *PaymentHandler) MidtransCallback(c echo.Context) error {
	var raw json.RawMessage
	if err := c.Bind(&raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification body")
	}

	var notif midtransNotification
	if err := json.Unmarshal(raw, &notif); err != nil || notif.OrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification body")
	}

	if !h.midtrans.VerifySignature(notif.OrderID, notif.StatusCode, notif.GrossAmount, notif.SignatureKey) {
		return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
	}

	h.db.Create(&models.PaymentCallbackHistory{
		PaymentGateway: models.PaymentGatewayMidtrans,
		OrderID:        notif.OrderID,
		Metadata:       raw,
	})

	if h.cache != nil {
		key := fmt.Sprintf("payment:callback:%s:%s", notif.OrderID, notif.TransactionStatus)
		fresh, err := h.cache.SetNX(c.Request().Context(), key, 1, callbackDedupeTTL)
		if err != nil {
			log.Error().Err(err).Str("order_id", notif.OrderID).Msg("callback dedupe check failed, processing anyway")
		} else if !fresh {
			return c.JSON(http.StatusOK, echo.Map{"status": "already processed"})
		}
	}

	bookingID, err := services.ParseBookingOrderID(notif.OrderID)
	if err != nil {
		log.Warn().Str("order_id", notif.OrderID).Msg("callback for unrecognized order id")
		return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
	}

	switch notif.TransactionStatus {
	case "settlement":
		if _, err := h.bookings.ConfirmPayment(c.Request().Context(), bookingID); err != nil {
			return err
		}
		if err := h.payments.DeactivateSessions(bookingID); err != nil {
			log.Error().Err(err).Uint("booking_id", bookingID).Msg("failed to deactivate payment sessions")
		}
	case "capture":
		if notif.FraudStatus == "challenge" {
			log.Warn().Str("order_id", notif.OrderID).Msg("payment captured but flagged for fraud review")
			break
		}
		if _, err := h.bookings.ConfirmPayment(c.Request().Context(), bookingID); err != nil {
			return err
		}
		if err := h.payments.DeactivateSessions(bookingID); err != nil {
			log.Error().Err(err).Uint("booking_id", bookingID).Msg("failed to deactivate payment sessions")
		}
	case "expire", "cancel", "deny", "failure":
		if err := h.payments.DeactivateSessions(bookingID); err != nil {
			log.Error().Err(err).Uint("booking_id", bookingID).Msg("failed to deactivate payment sessions")
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// PaymentReturn is the public landing endpoint the gateway redirects to.
// It re-checks the order status server-side so a user cannot confirm a
// booking just by visiting the URL.
func (h *PaymentHandler) PaymentReturn(c echo.Context) error {
	token := c.Param("token")
	session, err := h.payments.SessionByToken(token)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown payment session")
	}

	statusResp, err := h.midtrans.CheckTransaction(session.OrderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "could not verify payment status")
	}

	if statusResp.TransactionStatus == "settlement" || statusResp.TransactionStatus == "capture" {
		if _, err := h.bookings.ConfirmPayment(c.Request().Context(), session.BookingID); err != nil {
			return err
		}
		if err := h.payments.DeactivateSessions(session.BookingID); err != nil {
			log.Error().Err(err).Uint("booking_id", session.BookingID).Msg("failed to deactivate payment sessions")
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"booking_id": session.BookingID,
		"status":     statusResp.TransactionStatus,
	})
}
