package flow

import (
	"adoflow/internal/workitem"
)

// teamMetrics breaks the metrics down per assignee. Unassigned items are
// skipped; a non-empty filter keeps only the named assignees and leaves every
// surviving value untouched.
func teamMetrics(items []workitem.WorkItem, cls classifier, win Window, filter []string) map[string]TeamMemberMetrics {
	var allow map[string]bool
	if len(filter) > 0 {
		allow = make(map[string]bool, len(filter))
		for _, name := range filter {
			allow[name] = true
		}
	}

	type acc struct {
		completed int
		active    int
		leads     []float64
		cycles    []float64
		velocity  float64
	}
	members := map[string]*acc{}

	for i := range items {
		it := &items[i]
		name := it.AssignedTo
		if name == "" || (allow != nil && !allow[name]) {
			continue
		}
		a := members[name]
		if a == nil {
			a = &acc{}
			members[name] = a
		}

		if cls.completedAsOf(it, win.To) {
			a.completed++
			if it.ClosedDate != nil {
				a.leads = append(a.leads, leadTimeDays(it))
				if cd := cycleTimeDays(it, cls.states); cd != nil {
					a.cycles = append(a.cycles, *cd)
				}
			}
			if cls.types.Get(it.Type).IncludeInVelocity {
				a.velocity += cls.types.Get(it.Type).ComplexityMultiplier
			}
			continue
		}
		if state, ok := stateAt(it, win.To); ok && cls.classifyState(state) == "active" {
			a.active++
		}
	}

	if len(members) == 0 {
		return nil
	}
	out := make(map[string]TeamMemberMetrics, len(members))
	for name, a := range members {
		m := TeamMemberMetrics{
			Completed: a.completed,
			Active:    a.active,
			Velocity:  round1(a.velocity),
		}
		if len(a.leads) > 0 {
			m.AvgLeadTimeDays = round1Ptr(mean(a.leads))
		}
		if len(a.cycles) > 0 {
			m.AvgCycleTimeDays = round1Ptr(mean(a.cycles))
		}
		if total := a.completed + a.active; total > 0 {
			m.CompletionRate = ptr(round2(float64(a.completed) / float64(total)))
		}
		out[name] = m
	}
	return out
}
