package flow

import (
	"math"
	"time"
)

// Window is the closed report interval [From, To].
type Window struct {
	From time.Time
	To   time.Time
}

// Days is the window length in whole days, never less than one.
func (w Window) Days() int {
	d := int(math.Round(w.To.Sub(w.From).Hours() / 24))
	if d < 1 {
		return 1
	}
	return d
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// EachDay visits every calendar day the window touches, passing the UTC day
// start and the last instant of that day.
func (w Window) EachDay(fn func(dayStart, dayEnd time.Time)) {
	day := snapToDayStart(w.From)
	for !day.After(w.To) {
		fn(day, day.Add(24*time.Hour-time.Nanosecond))
		day = day.AddDate(0, 0, 1)
	}
}

func snapToDayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// snapToWeekStart returns the Monday 00:00 UTC beginning t's week.
func snapToWeekStart(t time.Time) time.Time {
	day := snapToDayStart(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
