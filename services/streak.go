package services

import (
	"time"

	"habit-wars/models"
)

const dayKeyLayout = "2006-01-02"

// dayKey normalises t to its calendar day in loc.
func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayKeyLayout)
}

// startOfDay returns local midnight of t's calendar day in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func completionDays(completions []time.Time, loc *time.Location) map[string]struct{} {
	days := make(map[string]struct{}, len(completions))
	for _, c := range completions {
		days[dayKey(c, loc)] = struct{}{}
	}
	return days
}

// CurrentStreak counts consecutive calendar days with at least one completion,
// ending today or, as a one-day grace, yesterday. Anything older is no streak.
func CurrentStreak(completions []time.Time, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	days := completionDays(completions, loc)

	cursor := startOfDay(now, loc)
	if _, ok := days[cursor.Format(dayKeyLayout)]; !ok {
		cursor = cursor.AddDate(0, 0, -1)
		if _, ok := days[cursor.Format(dayKeyLayout)]; !ok {
			return 0
		}
	}

	streak := 0
	for {
		if _, ok := days[cursor.Format(dayKeyLayout)]; !ok {
			return streak
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
}

// CompletedOn reports whether any completion falls on day's calendar day.
func CompletedOn(completions []time.Time, day time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	want := dayKey(day, loc)
	for _, c := range completions {
		if dayKey(c, loc) == want {
			return true
		}
	}
	return false
}

// MilestoneFor returns the checkpoint equal to streak. A streak that jumps
// past a checkpoint never earns it.
func MilestoneFor(streak int) (int, bool) {
	for _, length := range models.MilestoneLengths {
		if streak == length {
			return length, true
		}
	}
	return 0, false
}
