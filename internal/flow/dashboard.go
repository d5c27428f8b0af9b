package flow

import (
	"fmt"
	"sort"
	"time"

	"adoflow/internal/config"
	"adoflow/internal/visuals"
	"adoflow/internal/workitem"
)

// DashboardOptions extends the report options with the inputs the extra
// dashboard panels need.
type DashboardOptions struct {
	Options

	// Seed drives the forecast simulation; fix it for reproducible output.
	Seed            int64
	Trials          int
	ForecastBacklog int
	Diagram         bool
}

// DashboardData is the report plus the time-series and tables a dashboard
// renders around it.
type DashboardData struct {
	GeneratedAt      time.Time        `json:"generated_at"`
	Report           *Report          `json:"report"`
	WIPRunChart      []WIPPoint       `json:"wip_run_chart"`
	WeeklyThroughput []WeekBucket     `json:"weekly_throughput"`
	StateResidency   []StateResidency `json:"state_residency"`
	AgingWIP         []AgingItem      `json:"aging_wip"`
	Forecast         *Forecast        `json:"forecast,omitempty"`
	StateDiagram     string           `json:"state_diagram,omitempty"`
	WIPChart         string           `json:"wip_chart,omitempty"`
	ThroughputChart  string           `json:"throughput_chart,omitempty"`
	AgingChart       string           `json:"aging_chart,omitempty"`
}

// BuildDashboard computes the report and derives every dashboard panel from
// the same snapshot, so all of them agree on the window and the item set.
func BuildDashboard(items []workitem.WorkItem, settings *config.Settings, opts DashboardOptions) *DashboardData {
	report := Calculate(items, settings, opts.Options)
	win := Window{From: report.WindowStart, To: report.WindowEnd}
	cls := classifier{states: settings.States, types: settings.Types}

	scoped := make([]workitem.WorkItem, 0, len(items))
	for _, it := range items {
		if it.CreatedDate.After(win.To) {
			continue
		}
		scoped = append(scoped, it)
	}

	data := &DashboardData{
		GeneratedAt:      report.GeneratedAt,
		Report:           report,
		WIPRunChart:      wipSeries(scoped, cls, win),
		WeeklyThroughput: weeklyThroughput(scoped, cls, win),
		StateResidency:   stateResidency(scoped),
		AgingWIP:         agingWIP(scoped, cls, win.To, staleThreshold(scoped, cls, win.To)),
	}
	if opts.ForecastBacklog > 0 {
		trials := opts.Trials
		if trials <= 0 {
			trials = 10000
		}
		data.Forecast = forecastBacklog(scoped, cls, win, opts.ForecastBacklog, trials, opts.Seed)
	}
	if opts.Diagram {
		data.StateDiagram = visuals.StateDiagram(scoped, settings.States)
		data.WIPChart = wipChart(data.WIPRunChart)
		data.ThroughputChart = throughputChart(data.WeeklyThroughput)
		data.AgingChart = agingChart(data.AgingWIP)
	}
	return data
}

func wipChart(series []WIPPoint) string {
	dates := make([]time.Time, len(series))
	counts := make([]int, len(series))
	for i, p := range series {
		dates[i] = p.Date
		counts[i] = p.Count
	}
	return visuals.WIPRunChart(dates, counts)
}

func throughputChart(buckets []WeekBucket) string {
	labels := make([]string, len(buckets))
	counts := make([]int, len(buckets))
	for i, b := range buckets {
		labels[i] = b.WeekStart.Format("Jan02")
		counts[i] = b.Completed
	}
	return visuals.ThroughputChart(labels, counts)
}

func agingChart(rows []AgingItem) string {
	labels := make([]string, len(rows))
	ages := make([]float64, len(rows))
	for i, r := range rows {
		labels[i] = fmt.Sprintf("#%d", r.ID)
		ages[i] = r.AgeDays
	}
	return visuals.AgingChart(labels, ages)
}

// staleThreshold is the P85 lead time of the completed population, the bar
// an in-flight item's age is judged against.
func staleThreshold(items []workitem.WorkItem, cls classifier, asOf time.Time) *float64 {
	var leads []float64
	for i := range items {
		it := &items[i]
		if cls.completedAsOf(it, asOf) && cls.throughputEligible(it) {
			leads = append(leads, leadTimeDays(it))
		}
	}
	if len(leads) == 0 {
		return nil
	}
	sort.Float64s(leads)
	return ptr(percentile(leads, 85))
}
