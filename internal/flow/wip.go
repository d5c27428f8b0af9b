package flow

import (
	"time"

	"adoflow/internal/workitem"
)

// WIPPoint is one day's work-in-progress sample.
type WIPPoint struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// wipMetrics takes the point-in-time WIP picture at instant t. Items sitting
// in a blocked state count toward Blocked, not toward the active breakdown;
// for states in both sets, blocked wins.
func wipMetrics(items []workitem.WorkItem, cls classifier, t time.Time) WIPMetrics {
	m := WIPMetrics{}
	for i := range items {
		it := &items[i]
		if cls.completedAsOf(it, t) {
			continue
		}
		state, ok := stateAt(it, t)
		if !ok {
			continue
		}
		switch cls.classifyState(state) {
		case "active":
			m.Total++
			if m.ByState == nil {
				m.ByState = map[string]int{}
			}
			m.ByState[state]++
		case "blocked":
			m.Blocked++
		}
	}
	return m
}

// wipSeries samples active WIP at the end of every day in the window.
func wipSeries(items []workitem.WorkItem, cls classifier, win Window) []WIPPoint {
	var series []WIPPoint
	win.EachDay(func(dayStart, dayEnd time.Time) {
		count := 0
		for i := range items {
			it := &items[i]
			state, ok := stateAt(it, dayEnd)
			if ok && !cls.completedAsOf(it, dayEnd) && cls.classifyState(state) == "active" {
				count++
				continue
			}
			// Same-day flyby: went active and completed inside this very
			// day, which the end-of-day snapshot alone would miss.
			if it.ClosedDate != nil && !it.ClosedDate.Before(dayStart) && !it.ClosedDate.After(dayEnd) {
				if fa := it.FirstEntered(cls.states.IsActive); fa != nil && !fa.Before(dayStart) {
					count++
				}
			}
		}
		series = append(series, WIPPoint{Date: dayStart, Count: count})
	})
	return series
}
