package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func daysAgo(now time.Time, n int, hour int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d-n, hour, 0, 0, 0, now.Location())
}

func TestCurrentStreak(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		completions []time.Time
		want        int
	}{
		{"no completions", nil, 0},
		{"today only", []time.Time{daysAgo(now, 0, 8)}, 1},
		{"yesterday grace", []time.Time{daysAgo(now, 1, 8), daysAgo(now, 2, 8)}, 2},
		{"two days ago is broken", []time.Time{daysAgo(now, 2, 8), daysAgo(now, 3, 8)}, 0},
		{"stops at first gap", []time.Time{daysAgo(now, 0, 8), daysAgo(now, 1, 8), daysAgo(now, 3, 8)}, 2},
		{"multiple per day count once", []time.Time{daysAgo(now, 0, 8), daysAgo(now, 0, 20), daysAgo(now, 1, 9)}, 2},
		{"unordered input", []time.Time{daysAgo(now, 2, 8), daysAgo(now, 0, 8), daysAgo(now, 1, 8)}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentStreak(tt.completions, now, time.UTC))
		})
	}
}

func TestCurrentStreakUsesLocationCalendarDays(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	// 20:00 UTC on the 9th is already the 10th in UTC+10.
	now := time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)
	completions := []time.Time{
		time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, 2, CurrentStreak(completions, now, loc))
	assert.Equal(t, 1, CurrentStreak(completions, now, time.UTC))
}

func TestCompletedOn(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	completions := []time.Time{daysAgo(now, 1, 23)}

	assert.True(t, CompletedOn(completions, daysAgo(now, 1, 0), time.UTC))
	assert.False(t, CompletedOn(completions, now, time.UTC))
}

func TestMilestoneForExactMatchOnly(t *testing.T) {
	for _, length := range []int{7, 14, 30, 60, 100, 365} {
		got, ok := MilestoneFor(length)
		assert.True(t, ok)
		assert.Equal(t, length, got)
	}
	for _, streak := range []int{0, 1, 6, 8, 15, 366} {
		_, ok := MilestoneFor(streak)
		assert.False(t, ok, "streak %d", streak)
	}
}
