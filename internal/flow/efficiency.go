package flow

import (
	"time"

	"adoflow/internal/workitem"
)

// flowEfficiency computes active time over elapsed time per item, from the
// first entry into an active state until completion, or until asOf for items
// still open. Items that never went active, or with zero elapsed time, are
// skipped rather than reported as zero.
func flowEfficiency(items []workitem.WorkItem, cls classifier, asOf time.Time) FlowEfficiencyMetrics {
	var entries []EfficiencyEntry
	sum := 0.0
	for i := range items {
		it := &items[i]
		start := it.FirstEntered(cls.states.IsActive)
		if start == nil || start.After(asOf) {
			continue
		}

		end := asOf
		if cls.completedAsOf(it, asOf) && it.ClosedDate != nil {
			end = *it.ClosedDate
		}
		elapsed := end.Sub(*start).Hours()
		if elapsed <= 0 {
			continue
		}

		active := 0.0
		for _, tr := range it.Transitions {
			if !cls.states.IsActive(tr.State) {
				continue
			}
			active += overlapHours(tr, end)
		}

		eff := active / elapsed
		if eff > 1 {
			eff = 1
		}
		entries = append(entries, EfficiencyEntry{ID: it.ID, Efficiency: round2(eff)})
		sum += eff
	}

	m := FlowEfficiencyMetrics{Count: len(entries), PerItem: entries}
	if len(entries) > 0 {
		m.Average = ptr(round2(sum / float64(len(entries))))
	}
	return m
}

// overlapHours measures how much of a transition happened at or before end.
func overlapHours(tr workitem.StateTransition, end time.Time) float64 {
	if tr.EnteredDate.After(end) {
		return 0
	}
	stop := end
	if tr.ExitedDate != nil && tr.ExitedDate.Before(end) {
		stop = *tr.ExitedDate
	}
	return stop.Sub(tr.EnteredDate).Hours()
}
