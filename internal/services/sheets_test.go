package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithinBookingWindow(t *testing.T) {
	moscow, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	// 09:00 studio time. In UTC this is already past the UTC day boundary,
	// which is where a wall-clock truncation would lose today.
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, moscow)

	cases := []struct {
		name string
		date string
		want bool
	}{
		{"today stays bookable", "2025-03-10", true},
		{"tomorrow", "2025-03-11", true},
		{"yesterday", "2025-03-09", false},
		{"horizon edge", "2025-04-09", true},
		{"past horizon", "2025-04-10", false},
		{"malformed date", "soon", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, withinBookingWindow(tc.date, now, 30, moscow))
		})
	}
}

func TestWithinBookingWindowLateEvening(t *testing.T) {
	moscow, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	// 23:30 local: today remains listed until studio-local midnight.
	now := time.Date(2025, 3, 10, 23, 30, 0, 0, moscow)
	require.True(t, withinBookingWindow("2025-03-10", now, 30, moscow))
	require.False(t, withinBookingWindow("2025-03-09", now, 30, moscow))
}
