package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"studio_booking_echo/internal/models"
)

func TestDebitPicksSoonestExpiring(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSubscriptionLedger(db)

	now := time.Now()
	soon := now.AddDate(0, 0, 5)
	later := now.AddDate(0, 0, 25)

	soonSub := models.Subscription{UserID: 1, ClassesTotal: 4, ClassesLeft: 2, PurchasedAt: now, ExpiresAt: &soon}
	laterSub := models.Subscription{UserID: 1, ClassesTotal: 8, ClassesLeft: 8, PurchasedAt: now, ExpiresAt: &later}
	require.NoError(t, db.Create(&laterSub).Error)
	require.NoError(t, db.Create(&soonSub).Error)

	require.True(t, ledger.Debit(db, 1))

	var got models.Subscription
	require.NoError(t, db.First(&got, soonSub.ID).Error)
	require.Equal(t, 1, got.ClassesLeft, "the soonest-expiring pack is spent first")

	got = models.Subscription{}
	require.NoError(t, db.First(&got, laterSub.ID).Error)
	require.Equal(t, 8, got.ClassesLeft)
}

func TestDebitSkipsExpiredAndEmpty(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSubscriptionLedger(db)

	now := time.Now()
	past := now.AddDate(0, 0, -1)

	expired := models.Subscription{UserID: 1, ClassesTotal: 4, ClassesLeft: 4, PurchasedAt: now.AddDate(0, 0, -31), ExpiresAt: &past}
	empty := models.Subscription{UserID: 1, ClassesTotal: 4, ClassesLeft: 0, PurchasedAt: now}
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&empty).Error)

	require.False(t, ledger.Debit(db, 1))
}

func TestDebitNeverGoesNegative(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSubscriptionLedger(db)

	sub := models.Subscription{UserID: 1, ClassesTotal: 4, ClassesLeft: 1, PurchasedAt: time.Now()}
	require.NoError(t, db.Create(&sub).Error)

	require.True(t, ledger.Debit(db, 1))
	require.False(t, ledger.Debit(db, 1))

	var got models.Subscription
	require.NoError(t, db.First(&got, sub.ID).Error)
	require.Equal(t, 0, got.ClassesLeft)
}

func TestCreditPrefersPackWithRoom(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSubscriptionLedger(db)

	now := time.Now()
	soon := now.AddDate(0, 0, 5)

	spent := models.Subscription{UserID: 1, ClassesTotal: 4, ClassesLeft: 2, PurchasedAt: now, ExpiresAt: &soon}
	full := models.Subscription{UserID: 1, ClassesTotal: 8, ClassesLeft: 8, PurchasedAt: now}
	require.NoError(t, db.Create(&spent).Error)
	require.NoError(t, db.Create(&full).Error)

	require.NoError(t, ledger.Credit(db, 1))

	var got models.Subscription
	require.NoError(t, db.First(&got, spent.ID).Error)
	require.Equal(t, 3, got.ClassesLeft)
}

func TestCreditWithoutSubscriptionIsHarmless(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSubscriptionLedger(db)

	require.NoError(t, ledger.Credit(db, 42))
}

func TestGrant(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSubscriptionLedger(db)

	sub, err := ledger.Grant(7, 6)
	require.NoError(t, err)
	require.Equal(t, 6, sub.ClassesTotal)
	require.Equal(t, 6, sub.ClassesLeft)
	require.NotNil(t, sub.ExpiresAt)

	days := sub.ExpiresAt.Sub(sub.PurchasedAt).Hours() / 24
	require.InDelta(t, models.SubscriptionValidityDays, days, 0.01)
}

func TestListForUserOrdersBySoonestExpiry(t *testing.T) {
	db := newTestDB(t)
	ledger := NewSubscriptionLedger(db)

	now := time.Now()
	soon := now.AddDate(0, 0, 3)
	later := now.AddDate(0, 0, 20)

	require.NoError(t, db.Create(&models.Subscription{UserID: 1, ClassesTotal: 4, ClassesLeft: 4, PurchasedAt: now}).Error)
	require.NoError(t, db.Create(&models.Subscription{UserID: 1, ClassesTotal: 4, ClassesLeft: 4, PurchasedAt: now, ExpiresAt: &later}).Error)
	require.NoError(t, db.Create(&models.Subscription{UserID: 1, ClassesTotal: 4, ClassesLeft: 4, PurchasedAt: now, ExpiresAt: &soon}).Error)

	subs, err := ledger.ListForUser(1)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	require.NotNil(t, subs[0].ExpiresAt)
	require.NotNil(t, subs[1].ExpiresAt)
	require.True(t, subs[0].ExpiresAt.Before(*subs[1].ExpiresAt))
	require.Nil(t, subs[2].ExpiresAt, "packs without expiry sort last")
}
