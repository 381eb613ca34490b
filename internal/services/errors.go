package services

import (
	"errors"
	"fmt"

	"studio_booking_echo/internal/models"
)

// Sentinel errors for the booking lifecycle. Handlers map these onto HTTP
// responses; none of them implies a state change happened.
var (
	// ErrBookingNotFound covers both a missing booking and one not owned by
	// the caller; the two are indistinguishable on purpose.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrAlreadyCancelled is the idempotence report: the booking is already
	// in a terminal state and no side effects were re-applied.
	ErrAlreadyCancelled = errors.New("booking is already cancelled")

	// ErrSlotUnavailable means no matching slot with a free seat exists.
	ErrSlotUnavailable = errors.New("no free seat on the requested slot")

	// ErrLessonTypeMismatch means the slot was already claimed for a
	// different lesson type.
	ErrLessonTypeMismatch = errors.New("slot is already fixed to a different lesson type")

	// ErrNoSubscriptionCredits means the ledger debit failed; the caller
	// falls back to the single-payment flow.
	ErrNoSubscriptionCredits = errors.New("no subscription with remaining classes")

	// ErrInvalidInput wraps request-validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// PolicyDeniedError is returned when the cancellation window blocks an
// action. It carries the remaining-hours figure so the user sees a specific
// message instead of a generic refusal.
type PolicyDeniedError struct {
	Action         string
	HoursRemaining float64
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("%s denied: %.1f hours remain before the lesson, at least %.0f are required",
		e.Action, e.HoursRemaining, models.CancelWindowHours)
}
