package services

import (
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"studio_booking_echo/internal/models"
)

// SubscriptionLedger tracks prepaid class credits. Debit and Credit take the
// caller's transaction handle so a credit change always commits together with
// the booking status change it belongs to.
//
// When a user holds several subscriptions the soonest-expiring one wins;
// subscriptions without an expiry sort last, ties break by id. This replaces
// the arbitrary ordering of the earlier implementation with a deterministic
// rule.
type SubscriptionLedger struct {
	db *gorm.DB
}

func NewSubscriptionLedger(db *gorm.DB) *SubscriptionLedger {
	return &SubscriptionLedger{db: db}
}

const bySoonestExpiry = "expires_at IS NULL, expires_at ASC, id ASC"

// Debit consumes one class credit. Returns false when the user holds no
// unexpired subscription with classes left; the caller then falls back to
// the single-payment flow.
func (l *SubscriptionLedger) Debit(tx *gorm.DB, userID uint) bool {
	now := time.Now()

	var sub models.Subscription
	err := tx.
		Where("user_id = ? AND classes_left > 0", userID).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order(bySoonestExpiry).
		First(&sub).Error
	if err != nil {
		return false
	}

	// Guarded decrement; a concurrent debit of the last class makes this a
	// zero-row update rather than a negative balance.
	res := tx.Model(&models.Subscription{}).
		Where("id = ? AND classes_left > 0", sub.ID).
		UpdateColumn("classes_left", gorm.Expr("classes_left - 1"))
	if res.Error != nil || res.RowsAffected == 0 {
		return false
	}

	log.Info().Uint("user_id", userID).Uint("subscription_id", sub.ID).Int("classes_left", sub.ClassesLeft-1).Msg("subscription debited")
	return true
}

// Credit returns one class credit after an early cancellation. Not
// idempotent: the lifecycle engine invokes it at most once per cancellation
// event. Prefers the soonest-expiring subscription with room below its
// total; falls back to the newest subscription so the credit is never lost.
func (l *SubscriptionLedger) Credit(tx *gorm.DB, userID uint) error {
	var sub models.Subscription
	err := tx.
		Where("user_id = ? AND classes_left < classes_total", userID).
		Order(bySoonestExpiry).
		First(&sub).Error
	if err == gorm.ErrRecordNotFound {
		err = tx.Where("user_id = ?", userID).Order("id DESC").First(&sub).Error
	}
	if err != nil {
		// No subscription at all; nothing to credit back onto.
		log.Warn().Uint("user_id", userID).Msg("credit requested but user holds no subscription")
		return nil
	}

	if err := tx.Model(&sub).UpdateColumn("classes_left", gorm.Expr("classes_left + 1")).Error; err != nil {
		return err
	}

	log.Info().Uint("user_id", userID).Uint("subscription_id", sub.ID).Msg("subscription credited")
	return nil
}

// Grant creates a new subscription pack for the user, expiring after the
// standard validity window.
func (l *SubscriptionLedger) Grant(userID uint, classesTotal int) (*models.Subscription, error) {
	now := time.Now()
	expires := now.AddDate(0, 0, models.SubscriptionValidityDays)

	sub := models.Subscription{
		UserID:       userID,
		ClassesTotal: classesTotal,
		ClassesLeft:  classesTotal,
		PurchasedAt:  now,
		ExpiresAt:    &expires,
	}
	if err := l.db.Create(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListForUser returns the user's subscriptions, soonest-expiring first.
func (l *SubscriptionLedger) ListForUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := l.db.Where("user_id = ?", userID).Order(bySoonestExpiry).Find(&subs).Error
	return subs, err
}
