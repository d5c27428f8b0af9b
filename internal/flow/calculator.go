package flow

import (
	"time"

	"github.com/rs/zerolog/log"

	"adoflow/internal/config"
	"adoflow/internal/workitem"
)

const hoursPerDay = 24

// classifier bundles the configured state sets and type policies behind the
// questions the metric passes actually ask.
type classifier struct {
	states config.StateConfiguration
	types  config.TypePolicies
}

// isCompleted: completion is defined by the terminal transition state, not by
// the presence of a closed date.
func (c classifier) isCompleted(it *workitem.WorkItem) bool {
	return c.states.IsCompleted(it.TerminalState())
}

// completedAsOf additionally requires the completion to have happened by t.
func (c classifier) completedAsOf(it *workitem.WorkItem, t time.Time) bool {
	if !c.isCompleted(it) {
		return false
	}
	return it.ClosedDate == nil || !it.ClosedDate.After(t)
}

// throughputEligible: completed with a closed date and an included type.
func (c classifier) throughputEligible(it *workitem.WorkItem) bool {
	return c.isCompleted(it) && it.ClosedDate != nil && c.types.Get(it.Type).IncludeInThroughput
}

// classifyState resolves overlapping sets with completed > blocked > active
// precedence.
func (c classifier) classifyState(state string) string {
	switch {
	case c.states.IsCompleted(state):
		return "completed"
	case c.states.IsBlocked(state):
		return "blocked"
	case c.states.IsActive(state):
		return "active"
	default:
		return ""
	}
}

// stateAt reconstructs the state an item was in at instant t. Walking the
// transitions backward picks the latest entry at or before t, so when two
// entries share a timestamp the later one in history order wins.
func stateAt(it *workitem.WorkItem, t time.Time) (string, bool) {
	if t.Before(it.CreatedDate) {
		return "", false
	}
	for i := len(it.Transitions) - 1; i >= 0; i-- {
		if !it.Transitions[i].EnteredDate.After(t) {
			return it.Transitions[i].State, true
		}
	}
	return "", false
}

// leadTimeDays is closed minus created.
func leadTimeDays(it *workitem.WorkItem) float64 {
	return it.ClosedDate.Sub(it.CreatedDate).Hours() / hoursPerDay
}

// cycleTimeDays runs from the first entry into an active state to the first
// entry into a completion state, nil when the item never went active. A
// reopened item keeps its first delivery; rework never stretches cycle time.
// ClosedDate is the fallback end for items without a completion transition.
func cycleTimeDays(it *workitem.WorkItem, states config.StateConfiguration) *float64 {
	start := it.FirstEntered(states.IsActive)
	if start == nil {
		return nil
	}
	end := *it.ClosedDate
	if first := it.FirstEntered(states.IsCompleted); first != nil {
		end = *first
	}
	return ptr(end.Sub(*start).Hours() / hoursPerDay)
}

// Calculate computes the full flow metrics report over items. It is pure:
// the same items, settings, and options produce an identical report, and a
// fixed opts.Now makes that byte-for-byte.
func Calculate(items []workitem.WorkItem, settings *config.Settings, opts Options) *Report {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	win := resolveWindow(now, opts, settings.Parameters)
	cls := classifier{states: settings.States, types: settings.Types}

	// Items created after the window end postdate the snapshot entirely.
	scoped := make([]workitem.WorkItem, 0, len(items))
	for _, it := range items {
		if it.CreatedDate.After(win.To) {
			continue
		}
		scoped = append(scoped, it)
	}

	var leadDays, cycleDays []float64
	completed, throughput := 0, 0
	for i := range scoped {
		it := &scoped[i]
		if !cls.completedAsOf(it, win.To) {
			continue
		}
		completed++
		if !cls.throughputEligible(it) {
			continue
		}
		if win.Contains(*it.ClosedDate) {
			throughput++
		}
		leadDays = append(leadDays, leadTimeDays(it))
		if cd := cycleTimeDays(it, settings.States); cd != nil {
			cycleDays = append(cycleDays, *cd)
		}
	}

	wip := wipMetrics(scoped, cls, win.To)
	series := wipSeries(scoped, cls, win)

	report := &Report{
		GeneratedAt: now,
		WindowStart: win.From,
		WindowEnd:   win.To,
		WindowDays:  win.Days(),
		Summary: Summary{
			TotalItems:           len(scoped),
			CompletedItems:       completed,
			ActiveItems:          wip.Total,
			Partial:              opts.Partial,
			ValidationErrorCount: len(opts.ValidationErrors),
		},
		LeadTime:         buildStats(leadDays, settings.Parameters.Percentiles),
		CycleTime:        buildStats(cycleDays, settings.Parameters.Percentiles),
		Throughput:       throughputMetrics(throughput, win),
		WIP:              wip,
		FlowEfficiency:   flowEfficiency(scoped, cls, win.To),
		TeamMetrics:      teamMetrics(scoped, cls, win, opts.TeamFilter),
		LittlesLaw:       littlesLaw(throughput, series, cycleDays, win),
		ValidationErrors: opts.ValidationErrors,
		Configuration:    settings.Summarize(),
	}

	log.Info().
		Int("items", report.Summary.TotalItems).
		Int("completed", report.Summary.CompletedItems).
		Int("wip", report.WIP.Total).
		Int("window_days", report.WindowDays).
		Bool("partial", report.Summary.Partial).
		Msg("Flow metrics calculated")
	return report
}

// resolveWindow applies the override precedence: explicit bounds win, then
// the configured throughput period counted back from now.
func resolveWindow(now time.Time, opts Options, params config.CalculationParameters) Window {
	to := now
	if !opts.To.IsZero() {
		to = opts.To.UTC()
	}
	from := to.AddDate(0, 0, -params.ThroughputPeriodDays)
	if !opts.From.IsZero() {
		from = opts.From.UTC()
	}
	if from.After(to) {
		from, to = to, from
	}
	return Window{From: from, To: to}
}

func throughputMetrics(count int, win Window) ThroughputMetrics {
	days := win.Days()
	return ThroughputMetrics{
		Count:      count,
		PerDay:     round2(float64(count) / float64(days)),
		WindowDays: days,
	}
}
