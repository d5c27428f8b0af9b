package flow

import (
	"time"

	"adoflow/internal/workitem"
)

// WeekBucket counts completions in one Monday-anchored week.
type WeekBucket struct {
	WeekStart time.Time `json:"week_start"`
	Completed int       `json:"completed"`
}

// weeklyThroughput buckets throughput-eligible completions by week across
// the window. Weeks without completions appear with zero so the series has
// no gaps.
func weeklyThroughput(items []workitem.WorkItem, cls classifier, win Window) []WeekBucket {
	counts := map[time.Time]int{}
	for i := range items {
		it := &items[i]
		if !cls.throughputEligible(it) || !win.Contains(*it.ClosedDate) {
			continue
		}
		counts[snapToWeekStart(*it.ClosedDate)]++
	}

	var buckets []WeekBucket
	for week := snapToWeekStart(win.From); !week.After(win.To); week = week.AddDate(0, 0, 7) {
		buckets = append(buckets, WeekBucket{WeekStart: week, Completed: counts[week]})
	}
	return buckets
}
