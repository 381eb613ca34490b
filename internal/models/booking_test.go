package models

import (
	"testing"
	"time"
)

func TestHoursToLesson(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, loc)

	tests := []struct {
		name     string
		date     string
		time     string
		expected float64
	}{
		{
			name:     "exactly at the window boundary",
			date:     "2025-03-10",
			time:     "18:00",
			expected: 10.0,
		},
		{
			name:     "fractional hours",
			date:     "2025-03-10",
			time:     "17:30",
			expected: 9.5,
		},
		{
			name:     "lesson already started",
			date:     "2025-03-10",
			time:     "07:00",
			expected: -1.0,
		},
		{
			name:     "next day",
			date:     "2025-03-11",
			time:     "08:00",
			expected: 24.0,
		},
		{
			name:     "malformed date falls back to zero",
			date:     "tomorrow",
			time:     "18:00",
			expected: 0,
		},
		{
			name:     "malformed time falls back to zero",
			date:     "2025-03-10",
			time:     "6pm",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Booking{Date: tt.date, Time: tt.time}
			got := b.HoursToLesson(now)
			if got != tt.expected {
				t.Errorf("HoursToLesson() = %v; want %v", got, tt.expected)
			}
		})
	}
}

func TestHoursToLessonBoundaryIsEarly(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, loc)
	b := Booking{Date: "2025-03-10", Time: "18:00"}

	if hours := b.HoursToLesson(now); hours < CancelWindowHours {
		t.Errorf("exactly %v hours before the lesson must satisfy the window, got %v", CancelWindowHours, hours)
	}
}

func TestBookingStatusTerminal(t *testing.T) {
	terminal := []BookingStatus{BookingStatusDone, BookingStatusCancelled, BookingStatusLateCancel}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []BookingStatus{BookingStatusPending, BookingStatusPaid} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestDueInactivityNotice(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * 24 * time.Hour)
	idle := now.Add(-20 * 24 * time.Hour)
	oldNotice := now.Add(-15 * 24 * time.Hour)
	freshNotice := now.Add(-1 * 24 * time.Hour)

	tests := []struct {
		name string
		user User
		want bool
	}{
		{"active user", User{LastActivity: recent}, false},
		{"idle, never noticed", User{LastActivity: idle}, true},
		{"idle, notice long ago", User{LastActivity: idle, LastInactivityNotice: &oldNotice}, true},
		{"idle, recently noticed", User{LastActivity: idle, LastInactivityNotice: &freshNotice}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.DueInactivityNotice(now); got != tt.want {
				t.Errorf("DueInactivityNotice() = %v; want %v", got, tt.want)
			}
		})
	}
}
