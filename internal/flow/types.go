package flow

import (
	"time"

	"adoflow/internal/config"
	"adoflow/internal/workitem"
)

// Stats summarizes one sample of day-valued durations. Aggregates of an
// empty sample are null, never zero.
type Stats struct {
	Count       int                `json:"count"`
	Mean        *float64           `json:"mean"`
	Median      *float64           `json:"median"`
	Min         *float64           `json:"min"`
	Max         *float64           `json:"max"`
	Percentiles map[string]float64 `json:"percentiles,omitempty"`
}

// ThroughputMetrics counts completions inside the report window.
type ThroughputMetrics struct {
	Count      int     `json:"count"`
	PerDay     float64 `json:"per_day"`
	WindowDays int     `json:"window_days"`
}

// WIPMetrics is the point-in-time work-in-progress picture.
type WIPMetrics struct {
	Total   int            `json:"total"`
	ByState map[string]int `json:"by_state,omitempty"`
	Blocked int            `json:"blocked"`
}

// EfficiencyEntry is one item's active-to-elapsed ratio.
type EfficiencyEntry struct {
	ID         int     `json:"id"`
	Efficiency float64 `json:"efficiency"`
}

// FlowEfficiencyMetrics aggregates the per-item efficiency ratios.
type FlowEfficiencyMetrics struct {
	Average *float64          `json:"average"`
	Count   int               `json:"count"`
	PerItem []EfficiencyEntry `json:"per_item,omitempty"`
}

// TeamMemberMetrics is one assignee's row in the team breakdown.
type TeamMemberMetrics struct {
	Completed        int      `json:"completed"`
	Active           int      `json:"active"`
	AvgLeadTimeDays  *float64 `json:"avg_lead_time_days"`
	AvgCycleTimeDays *float64 `json:"avg_cycle_time_days"`
	CompletionRate   *float64 `json:"completion_rate"`
	Velocity         float64  `json:"velocity"`
}

// LittlesLawMetrics compares the measured cycle time against the one Little's
// Law predicts from average WIP and arrival rate.
type LittlesLawMetrics struct {
	ArrivalRatePerDay      *float64 `json:"arrival_rate_per_day"`
	AvgWIP                 *float64 `json:"avg_wip"`
	AvgCycleTimeDays       *float64 `json:"avg_cycle_time_days"`
	PredictedCycleTimeDays *float64 `json:"predicted_cycle_time_days"`
	DeviationPct           *float64 `json:"deviation_pct"`
}

// Summary is the headline block of a report.
type Summary struct {
	TotalItems           int  `json:"total_items"`
	CompletedItems       int  `json:"completed_items"`
	ActiveItems          int  `json:"active_items"`
	Partial              bool `json:"partial"`
	ValidationErrorCount int  `json:"validation_error_count"`
}

// Report is the full flow metrics document. All durations are days rounded
// to one decimal; rounding happens here at the report boundary, never in the
// math that feeds it.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	WindowDays  int       `json:"window_days"`

	Summary        Summary                      `json:"summary"`
	LeadTime       Stats                        `json:"lead_time_days"`
	CycleTime      Stats                        `json:"cycle_time_days"`
	Throughput     ThroughputMetrics            `json:"throughput"`
	WIP            WIPMetrics                   `json:"wip"`
	FlowEfficiency FlowEfficiencyMetrics        `json:"flow_efficiency"`
	TeamMetrics    map[string]TeamMemberMetrics `json:"team_metrics,omitempty"`
	LittlesLaw     LittlesLawMetrics            `json:"littles_law"`

	ValidationErrors []workitem.ValidationError `json:"validation_errors"`
	Configuration    config.Summary             `json:"configuration_summary"`
}

// Options steers one calculation run. The zero value means: window ends now,
// spans the configured throughput period, no team filter.
type Options struct {
	Now  time.Time // report generation instant; zero means time.Now in UTC
	From time.Time // window start override
	To   time.Time // window end override

	TeamFilter []string // allow-list of assignees for the team breakdown

	Partial          bool // the item set is known to be incomplete
	ValidationErrors []workitem.ValidationError
}
