package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"studio_booking_echo/internal/models"
)

// ReminderScheduler owns the persisted reminder jobs for a booking. The
// engine schedules on transition to paid and cancels on any terminal
// transition, so no reminder can outlive its booking's status.
type ReminderScheduler interface {
	ScheduleReminders(db *gorm.DB, b *models.Booking) error
	CancelReminders(db *gorm.DB, bookingID uint) error
}

// CalendarWriter mirrors a confirmed booking into the trainer's calendar.
// Best-effort; a false return never fails the booking.
type CalendarWriter interface {
	CreateEvent(ctx context.Context, b *models.Booking) bool
}

// BookingService is the booking lifecycle engine. Every mutating operation
// commits the booking status change and its subscription credit change in
// one transaction; slot-capacity adjustment against the external source
// happens after the local commit and is tolerated as a logged, non-fatal
// inconsistency when it fails.
type BookingService struct {
	db        *gorm.DB
	slots     SlotSource
	ledger    *SubscriptionLedger
	reminders ReminderScheduler
	calendar  CalendarWriter // optional
	loc       *time.Location

	// Now is the clock; tests override it. Nil means time.Now.
	Now func() time.Time
}

func NewBookingService(db *gorm.DB, slots SlotSource, ledger *SubscriptionLedger, reminders ReminderScheduler, calendar CalendarWriter, loc *time.Location) *BookingService {
	return &BookingService{
		db:        db,
		slots:     slots,
		ledger:    ledger,
		reminders: reminders,
		calendar:  calendar,
		loc:       loc,
	}
}

func (s *BookingService) now() time.Time {
	if s.Now != nil {
		return s.Now().In(s.loc)
	}
	return time.Now().In(s.loc)
}

// activeStatuses are the statuses a user-driven transition may start from.
var activeStatuses = []models.BookingStatus{models.BookingStatusPending, models.BookingStatusPaid}

// claimStatus performs the status transition inside tx, guarded by the
// statuses it is legal from. Zero affected rows means another writer moved
// the booking first; the caller's transaction rolls back and no side effect
// (credit, seat, reminders) is applied twice.
func claimStatus(tx *gorm.DB, bookingID uint, from []models.BookingStatus, to models.BookingStatus) error {
	res := tx.Model(&models.Booking{}).
		Where("id = ? AND status IN ?", bookingID, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyCancelled
	}
	return nil
}

// CreateBookingInput carries everything needed to reserve a seat.
type CreateBookingInput struct {
	UserID      uint
	Trainer     string
	Date        string // YYYY-MM-DD
	Time        string // HH:MM
	SlotID      string
	PaymentType models.PaymentType
	LessonType  models.LessonType
}

// CreateBookingResult reports the persisted booking and whether an external
// payment still has to be collected.
type CreateBookingResult struct {
	Booking         *models.Booking
	PaymentRequired bool
}

// CreateBooking reserves a seat on a slot. The slot must exist with a free
// seat; the first booking on an unclaimed slot fixes its lesson type. A
// subscription-paid booking with available credits is confirmed immediately,
// anything else stays pending until the gateway confirms.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*CreateBookingResult, error) {
	if in.Trainer == "" || in.SlotID == "" {
		return nil, fmt.Errorf("%w: trainer and slot are required", ErrInvalidInput)
	}
	if !models.ValidLessonType(in.LessonType) {
		return nil, fmt.Errorf("%w: unknown lesson type %q", ErrInvalidInput, in.LessonType)
	}
	if in.PaymentType != models.PaymentTypeSingle && in.PaymentType != models.PaymentTypeSubscription {
		return nil, fmt.Errorf("%w: unknown payment type %q", ErrInvalidInput, in.PaymentType)
	}
	if _, err := time.ParseInLocation(models.LessonDateLayout+" "+models.LessonTimeLayout, in.Date+" "+in.Time, s.loc); err != nil {
		return nil, fmt.Errorf("%w: bad date/time %q %q", ErrInvalidInput, in.Date, in.Time)
	}

	slot, claimsType, err := s.resolveSlot(ctx, in.Trainer, in.Date, in.Time, in.SlotID, in.LessonType)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		UserID:      in.UserID,
		Trainer:     in.Trainer,
		Date:        in.Date,
		Time:        in.Time,
		SlotID:      in.SlotID,
		Price:       slot.Price,
		PaymentType: in.PaymentType,
		LessonType:  in.LessonType,
		Status:      models.BookingStatusPending,
	}

	paymentRequired := true
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(booking).Error; err != nil {
			return err
		}
		if in.PaymentType == models.PaymentTypeSubscription {
			if s.ledger.Debit(tx, in.UserID) {
				booking.Status = models.BookingStatusPaid
				paymentRequired = false
				return tx.Model(booking).Update("status", models.BookingStatusPaid).Error
			}
			// No credits: fall back to the single-payment flow.
			booking.PaymentType = models.PaymentTypeSingle
			return tx.Model(booking).Update("payment_type", models.PaymentTypeSingle).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Remote side effects after the local commit.
	if !s.slots.AdjustCapacity(ctx, in.SlotID, -1) {
		log.Error().Uint("booking_id", booking.ID).Str("slot_id", in.SlotID).
			Msg("capacity decrement failed after booking commit; schedule is out of sync")
	}
	if claimsType {
		if !s.slots.SetLessonType(ctx, in.SlotID, in.LessonType) {
			log.Error().Str("slot_id", in.SlotID).Msg("failed to fix slot lesson type")
		}
	}
	if booking.Status == models.BookingStatusPaid {
		s.afterConfirm(ctx, booking)
	}
	s.slots.AppendEvent(ctx, in.UserID, fmt.Sprintf("booking_created: %s %s %s (%s, %s)",
		in.Trainer, in.Date, in.Time, in.LessonType, booking.PaymentType))

	return &CreateBookingResult{Booking: booking, PaymentRequired: paymentRequired}, nil
}

// ConfirmPayment transitions pending -> paid. Idempotent: confirming an
// already-paid booking is a no-op, not an error.
func (s *BookingService) ConfirmPayment(ctx context.Context, bookingID uint) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.First(&booking, bookingID).Error; err != nil {
		return nil, ErrBookingNotFound
	}

	if booking.Status == models.BookingStatusPaid {
		return &booking, nil
	}
	if booking.Status.Terminal() {
		return nil, ErrAlreadyCancelled
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return claimStatus(tx, booking.ID, []models.BookingStatus{models.BookingStatusPending}, models.BookingStatusPaid)
	})
	if err != nil {
		return nil, err
	}
	booking.Status = models.BookingStatusPaid

	s.afterConfirm(ctx, &booking)
	s.slots.AppendEvent(ctx, booking.UserID, fmt.Sprintf("payment_confirmed: booking %d", booking.ID))
	return &booking, nil
}

// CancelOutcome reports what a cancellation did.
type CancelOutcome struct {
	Booking        *models.Booking
	Early          bool
	HoursRemaining float64
	CreditReturned bool
}

// Cancel applies the cancellation window: at or above CancelWindowHours the
// booking is cancelled without losses (seat returned, group_subscription
// credit restored); below it the booking becomes late_cancel and everything
// stays consumed. A second cancel reports ErrAlreadyCancelled without
// re-applying side effects.
func (s *BookingService) Cancel(ctx context.Context, bookingID, userID uint) (*CancelOutcome, error) {
	var booking models.Booking
	if err := s.db.Where("id = ? AND user_id = ?", bookingID, userID).First(&booking).Error; err != nil {
		return nil, ErrBookingNotFound
	}

	hours := booking.HoursToLesson(s.now())
	outcome := &CancelOutcome{Booking: &booking, HoursRemaining: hours}

	if hours >= models.CancelWindowHours {
		outcome.Early = true
		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := claimStatus(tx, booking.ID, activeStatuses, models.BookingStatusCancelled); err != nil {
				return err
			}
			if booking.LessonType == models.LessonTypeGroupSubscription {
				outcome.CreditReturned = true
				return s.ledger.Credit(tx, userID)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		booking.Status = models.BookingStatusCancelled

		if booking.SlotID != "" && !s.slots.AdjustCapacity(ctx, booking.SlotID, +1) {
			log.Error().Uint("booking_id", booking.ID).Str("slot_id", booking.SlotID).
				Msg("capacity increment failed after cancellation; schedule is out of sync")
		}
		s.cancelReminders(booking.ID)
		s.slots.AppendEvent(ctx, userID, fmt.Sprintf("cancel_early: %s %s %s (%.1f hours)",
			booking.Trainer, booking.Date, booking.Time, hours))
		return outcome, nil
	}

	// Late path: the lesson counts as taken, nothing is returned.
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return claimStatus(tx, booking.ID, activeStatuses, models.BookingStatusLateCancel)
	})
	if err != nil {
		return nil, err
	}
	booking.Status = models.BookingStatusLateCancel

	s.cancelReminders(booking.ID)
	s.slots.AppendEvent(ctx, userID, fmt.Sprintf("late_cancel_%s: %s %s %s (%.1f hours)",
		booking.PaymentType, booking.Trainer, booking.Date, booking.Time, hours))
	return outcome, nil
}

// RescheduleTicket is the carry-forward handed to the date/time reselection
// flow. The old booking and its slot stay untouched until the new slot is
// confirmed, so the seat is never lost in between.
type RescheduleTicket struct {
	BookingID      uint               `json:"booking_id"`
	Trainer        string             `json:"trainer"`
	LessonType     models.LessonType  `json:"lesson_type"`
	PaymentType    models.PaymentType `json:"payment_type"`
	HoursRemaining float64            `json:"hours_remaining"`
}

// Reschedule opens a reschedule, gated by the same window as Cancel. No
// state changes here; CompleteReschedule finishes the move.
func (s *BookingService) Reschedule(ctx context.Context, bookingID, userID uint) (*RescheduleTicket, error) {
	var booking models.Booking
	if err := s.db.Where("id = ? AND user_id = ?", bookingID, userID).First(&booking).Error; err != nil {
		return nil, ErrBookingNotFound
	}
	if booking.Status.Terminal() {
		return nil, ErrAlreadyCancelled
	}

	hours := booking.HoursToLesson(s.now())
	if hours < models.CancelWindowHours {
		return nil, &PolicyDeniedError{Action: "reschedule", HoursRemaining: hours}
	}

	s.slots.AppendEvent(ctx, userID, fmt.Sprintf("reschedule_start: %s %s %s (%.1f hours)",
		booking.Trainer, booking.Date, booking.Time, hours))

	return &RescheduleTicket{
		BookingID:      booking.ID,
		Trainer:        booking.Trainer,
		LessonType:     booking.LessonType,
		PaymentType:    booking.PaymentType,
		HoursRemaining: hours,
	}, nil
}

// RescheduleTarget names the newly chosen slot.
type RescheduleTarget struct {
	Date   string
	Time   string
	SlotID string
}

// CompleteReschedule moves the booking onto the chosen slot: a new booking
// carrying the old trainer, lesson type, payment type and payment state is
// created and the old one is cancelled, with no ledger movement (an already
// debited class follows the new booking). Only now does the old seat return
// to the pool.
func (s *BookingService) CompleteReschedule(ctx context.Context, bookingID, userID uint, target RescheduleTarget) (*models.Booking, error) {
	var old models.Booking
	if err := s.db.Where("id = ? AND user_id = ?", bookingID, userID).First(&old).Error; err != nil {
		return nil, ErrBookingNotFound
	}
	if old.Status.Terminal() {
		return nil, ErrAlreadyCancelled
	}

	hours := old.HoursToLesson(s.now())
	if hours < models.CancelWindowHours {
		return nil, &PolicyDeniedError{Action: "reschedule", HoursRemaining: hours}
	}

	_, claimsType, err := s.resolveSlot(ctx, old.Trainer, target.Date, target.Time, target.SlotID, old.LessonType)
	if err != nil {
		return nil, err
	}

	next := &models.Booking{
		UserID:      old.UserID,
		Trainer:     old.Trainer,
		Date:        target.Date,
		Time:        target.Time,
		SlotID:      target.SlotID,
		Price:       old.Price,
		PaymentType: old.PaymentType,
		LessonType:  old.LessonType,
		Status:      old.Status, // pending stays pending, paid stays paid
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(next).Error; err != nil {
			return err
		}
		return claimStatus(tx, old.ID, activeStatuses, models.BookingStatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	if !s.slots.AdjustCapacity(ctx, target.SlotID, -1) {
		log.Error().Uint("booking_id", next.ID).Str("slot_id", target.SlotID).
			Msg("capacity decrement failed after reschedule commit; schedule is out of sync")
	}
	if old.SlotID != "" && !s.slots.AdjustCapacity(ctx, old.SlotID, +1) {
		log.Error().Uint("booking_id", old.ID).Str("slot_id", old.SlotID).
			Msg("capacity increment failed for rescheduled-away slot")
	}
	if claimsType {
		s.slots.SetLessonType(ctx, target.SlotID, next.LessonType)
	}
	s.cancelReminders(old.ID)
	if next.Status == models.BookingStatusPaid {
		s.afterConfirm(ctx, next)
	}
	s.slots.AppendEvent(ctx, userID, fmt.Sprintf("reschedule_done: %s %s %s -> %s %s",
		old.Trainer, old.Date, old.Time, target.Date, target.Time))

	return next, nil
}

// AdminCancelNoPenalty is the privileged override: the booking becomes
// cancelled regardless of the window and regardless of any terminal state it
// is in, but no subscription class is credited back. The consumed class is
// the courtesy waiver, which is the deliberate asymmetry with the normal
// early-cancel path. The slot seat is not returned either; the admin
// reopens it by hand when appropriate.
func (s *BookingService) AdminCancelNoPenalty(ctx context.Context, adminUID string, bookingID uint) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.First(&booking, bookingID).Error; err != nil {
		return nil, ErrBookingNotFound
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		overridable := []models.BookingStatus{
			models.BookingStatusPending,
			models.BookingStatusPaid,
			models.BookingStatusLateCancel,
			models.BookingStatusDone,
		}
		return claimStatus(tx, booking.ID, overridable, models.BookingStatusCancelled)
	})
	if err != nil {
		return nil, err
	}
	booking.Status = models.BookingStatusCancelled

	s.cancelReminders(booking.ID)
	s.slots.AppendEvent(ctx, booking.UserID, "admin_override: cancelled without penalty")
	log.Info().Str("admin_uid", adminUID).Uint("booking_id", booking.ID).Msg("admin override cancel, no penalty")
	return &booking, nil
}

// MarkDone closes out a booking after the lesson. Works from any
// non-terminal status.
func (s *BookingService) MarkDone(ctx context.Context, bookingID uint) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.First(&booking, bookingID).Error; err != nil {
		return nil, ErrBookingNotFound
	}
	if booking.Status == models.BookingStatusDone {
		return &booking, nil
	}
	if booking.Status.Terminal() {
		return nil, ErrAlreadyCancelled
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return claimStatus(tx, booking.ID, activeStatuses, models.BookingStatusDone)
	})
	if err != nil {
		return nil, err
	}
	booking.Status = models.BookingStatusDone

	s.cancelReminders(booking.ID)
	s.slots.AppendEvent(ctx, booking.UserID, fmt.Sprintf("marked_done: booking %d", booking.ID))
	return &booking, nil
}

// afterConfirm runs the best-effort side effects of a paid booking:
// persisted reminder jobs and the trainer calendar event.
func (s *BookingService) afterConfirm(ctx context.Context, b *models.Booking) {
	if s.reminders != nil {
		if err := s.reminders.ScheduleReminders(s.db, b); err != nil {
			log.Error().Err(err).Uint("booking_id", b.ID).Msg("failed to schedule reminders")
		}
	}
	if s.calendar != nil && !s.calendar.CreateEvent(ctx, b) {
		log.Warn().Uint("booking_id", b.ID).Msg("calendar event not created")
	}
}

func (s *BookingService) cancelReminders(bookingID uint) {
	if s.reminders == nil {
		return
	}
	if err := s.reminders.CancelReminders(s.db, bookingID); err != nil {
		log.Error().Err(err).Uint("booking_id", bookingID).Msg("failed to cancel reminders")
	}
}

// resolveSlot checks the booking precondition: a matching slot with a free
// seat whose lesson type is either unclaimed or equal to the requested one.
// The unfiltered listing is used so a type mismatch is reported as such
// rather than as a missing slot. For an unclaimed slot the type is
// re-checked straight from the source, bypassing the cached listing, since
// the first-claim decision must not act on stale data.
func (s *BookingService) resolveSlot(ctx context.Context, trainer, date, timeOfDay, slotID string, lessonType models.LessonType) (*Slot, bool, error) {
	var slot *Slot
	for _, cand := range s.slots.ListTimes(ctx, trainer, date, "") {
		if cand.SlotID == slotID && cand.Time == timeOfDay {
			c := cand
			slot = &c
			break
		}
	}
	if slot == nil || slot.Free < 1 {
		return nil, false, ErrSlotUnavailable
	}
	if slot.LessonType != "" && slot.LessonType != lessonType {
		return nil, false, ErrLessonTypeMismatch
	}

	claimsType := slot.LessonType == ""
	if claimsType {
		if current, ok := s.slots.GetLessonType(ctx, slotID); ok && current != "" {
			if current != lessonType {
				return nil, false, ErrLessonTypeMismatch
			}
			claimsType = false
		}
	}
	return slot, claimsType, nil
}
