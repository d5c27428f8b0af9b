package flow

import (
	"sort"

	"adoflow/internal/workitem"
)

// StateResidency summarizes how long items sit in one workflow state.
// Only closed transitions contribute; an open transition has no duration yet.
type StateResidency struct {
	State      string  `json:"state"`
	Count      int     `json:"count"`
	MedianDays float64 `json:"median_days"`
	P85Days    float64 `json:"p85_days"`
}

func stateResidency(items []workitem.WorkItem) []StateResidency {
	byState := map[string][]float64{}
	for i := range items {
		for _, tr := range items[i].Transitions {
			if tr.DurationHours == nil {
				continue
			}
			byState[tr.State] = append(byState[tr.State], *tr.DurationHours/hoursPerDay)
		}
	}

	states := make([]string, 0, len(byState))
	for state := range byState {
		states = append(states, state)
	}
	sort.Strings(states)

	out := make([]StateResidency, 0, len(states))
	for _, state := range states {
		days := byState[state]
		sort.Float64s(days)
		out = append(out, StateResidency{
			State:      state,
			Count:      len(days),
			MedianDays: round1(percentile(days, 50)),
			P85Days:    round1(percentile(days, 85)),
		})
	}
	return out
}
