package calendar

import (
	"slices"
	"time"
)

// Upcoming returns events with 0 <= OccursAt-now <= horizon, ascending by
// time; equal times keep their input order.
func Upcoming(events []Event, now time.Time, horizon time.Duration) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		d := ev.OccursAt.Sub(now)
		if d >= 0 && d <= horizon {
			out = append(out, ev)
		}
	}
	SortByTime(out)
	return out
}

// SortByTime stable-sorts events by OccursAt.
func SortByTime(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int { return a.OccursAt.Compare(b.OccursAt) })
}

// ClampHours bounds a user-supplied horizon to [1,72].
func ClampHours(h int) int {
	return min(max(h, MinCommandHours), MaxCommandHours)
}

const (
	MinCommandHours     = 1
	MaxCommandHours     = 72
	DefaultCommandHours = 24
)
