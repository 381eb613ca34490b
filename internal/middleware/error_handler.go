package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"studio_booking_echo/internal/services"
)

// CustomErrorHandler maps domain errors onto JSON responses. Lifecycle
// sentinels get specific status codes; everything else collapses to a
// generic message so internals never leak.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "something went wrong, please try again later"
	payload := echo.Map{}

	var policyErr *services.PolicyDeniedError
	var httpErr *echo.HTTPError

	switch {
	case errors.Is(err, services.ErrBookingNotFound):
		code = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, services.ErrAlreadyCancelled):
		code = http.StatusConflict
		message = err.Error()
	case errors.Is(err, services.ErrSlotUnavailable),
		errors.Is(err, services.ErrLessonTypeMismatch):
		code = http.StatusConflict
		message = err.Error()
	case errors.Is(err, services.ErrInvalidInput):
		code = http.StatusBadRequest
		message = err.Error()
	case errors.As(err, &policyErr):
		code = http.StatusForbidden
		message = policyErr.Error()
		payload["hours_remaining"] = policyErr.HoursRemaining
	case errors.As(err, &httpErr):
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok && msg != "" {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	default:
		log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
	}

	payload["error"] = message
	if err := c.JSON(code, payload); err != nil {
		log.Error().Err(err).Msg("failed to write error response")
	}
}
