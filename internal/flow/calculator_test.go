package flow

import (
	"encoding/json"
	"testing"
	"time"

	"adoflow/internal/config"
	"adoflow/internal/workitem"
)

var calcNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func testSettings() *config.Settings {
	return &config.Settings{
		States:     config.DefaultStateConfiguration(),
		Types:      config.TypePolicies{},
		Parameters: config.DefaultCalculationParameters(),
	}
}

// completedItem builds an item created daysAgo days before calcNow and
// closed closedDaysAgo days before calcNow, passing through Active on the
// way to Done.
func completedItem(id int, daysAgo, closedDaysAgo float64, assignee string) workitem.WorkItem {
	created := calcNow.Add(-time.Duration(daysAgo * 24 * float64(time.Hour)))
	closed := calcNow.Add(-time.Duration(closedDaysAgo * 24 * float64(time.Hour)))
	activeAt := created.Add(closed.Sub(created) / 4)

	it := workitem.WorkItem{
		ID:           id,
		Title:        "item",
		Type:         "Task",
		CurrentState: "Done",
		AssignedTo:   assignee,
		CreatedDate:  created,
		ClosedDate:   &closed,
		Priority:     3,
	}
	it.Transitions = []workitem.StateTransition{
		closedTransition("New", created, activeAt),
		closedTransition("Active", activeAt, closed),
		closedTransition("Done", closed, closed),
	}
	return it
}

func activeItem(id int, daysAgo float64, state, assignee string) workitem.WorkItem {
	created := calcNow.Add(-time.Duration(daysAgo * 24 * float64(time.Hour)))
	return workitem.WorkItem{
		ID:           id,
		Title:        "item",
		Type:         "Task",
		CurrentState: state,
		AssignedTo:   assignee,
		CreatedDate:  created,
		Priority:     3,
		Transitions: []workitem.StateTransition{
			{State: state, EnteredDate: created},
		},
	}
}

func closedTransition(state string, entered, exited time.Time) workitem.StateTransition {
	hours := exited.Sub(entered).Hours()
	return workitem.StateTransition{
		State:         state,
		EnteredDate:   entered,
		ExitedDate:    &exited,
		DurationHours: &hours,
	}
}

func TestThreeCompletedItems(t *testing.T) {
	// Created at T-10d, T-7d, T-3d; closed at T-5d, T-2d, T-0d.
	items := []workitem.WorkItem{
		completedItem(1, 10, 5, "Alice"),
		completedItem(2, 7, 2, "Bob"),
		completedItem(3, 3, 0, "Alice"),
	}

	report := Calculate(items, testSettings(), Options{Now: calcNow})

	if report.Throughput.Count != 3 {
		t.Errorf("throughput.count = %d, want 3", report.Throughput.Count)
	}
	if report.LeadTime.Count != 3 {
		t.Fatalf("lead time count = %d, want 3", report.LeadTime.Count)
	}
	if got := *report.LeadTime.Mean; got != 4.3 {
		t.Errorf("lead time mean = %v, want 4.3", got)
	}
	if got := *report.LeadTime.Median; got != 5.0 {
		t.Errorf("lead time median = %v, want 5", got)
	}
	if report.Summary.CompletedItems != 3 || report.Summary.TotalItems != 3 {
		t.Errorf("summary = %+v, want 3 completed of 3", report.Summary)
	}
	if report.WIP.Total != 0 {
		t.Errorf("wip = %d, want 0", report.WIP.Total)
	}
}

func TestEmptyInputProducesWellFormedReport(t *testing.T) {
	report := Calculate(nil, testSettings(), Options{Now: calcNow})

	if report.LeadTime.Count != 0 || report.LeadTime.Median != nil || report.LeadTime.Mean != nil {
		t.Errorf("lead time over empty set = %+v, want all-nil aggregates", report.LeadTime)
	}
	if report.Throughput.Count != 0 {
		t.Errorf("throughput = %d, want 0", report.Throughput.Count)
	}
	if report.WIP.Total != 0 || report.WIP.Blocked != 0 {
		t.Errorf("wip = %+v, want zeroes", report.WIP)
	}
	if report.FlowEfficiency.Average != nil {
		t.Errorf("flow efficiency average = %v, want nil", *report.FlowEfficiency.Average)
	}

	if _, err := json.Marshal(report); err != nil {
		t.Fatalf("empty report does not serialize: %v", err)
	}
}

func TestSingleCompletedItemMedianEqualsMean(t *testing.T) {
	report := Calculate([]workitem.WorkItem{completedItem(1, 6, 2, "Alice")}, testSettings(), Options{Now: calcNow})

	if report.LeadTime.Count != 1 {
		t.Fatalf("lead time count = %d, want 1", report.LeadTime.Count)
	}
	if *report.LeadTime.Median != *report.LeadTime.Mean {
		t.Errorf("median %v != mean %v for a single item", *report.LeadTime.Median, *report.LeadTime.Mean)
	}
	if *report.LeadTime.Median != 4.0 {
		t.Errorf("lead time = %v, want 4.0", *report.LeadTime.Median)
	}
}

func TestAllItemsActive(t *testing.T) {
	items := []workitem.WorkItem{
		activeItem(1, 5, "Active", "Alice"),
		activeItem(2, 3, "In Progress", "Bob"),
		activeItem(3, 1, "Active", "Alice"),
	}

	report := Calculate(items, testSettings(), Options{Now: calcNow})

	if report.LeadTime.Count != 0 || report.CycleTime.Count != 0 {
		t.Errorf("lead/cycle counts = %d/%d, want 0/0", report.LeadTime.Count, report.CycleTime.Count)
	}
	if report.WIP.Total != 3 {
		t.Errorf("wip = %d, want 3", report.WIP.Total)
	}

	sum := 0
	for _, n := range report.WIP.ByState {
		sum += n
	}
	if sum != report.WIP.Total {
		t.Errorf("wip by-state sum = %d, total = %d, must match", sum, report.WIP.Total)
	}
}

func TestBlockedItemsCountSeparately(t *testing.T) {
	items := []workitem.WorkItem{
		activeItem(1, 5, "Active", "Alice"),
		activeItem(2, 4, "Blocked", "Bob"),
	}

	report := Calculate(items, testSettings(), Options{Now: calcNow})

	if report.WIP.Total != 1 {
		t.Errorf("wip total = %d, want 1 (blocked item excluded)", report.WIP.Total)
	}
	if report.WIP.Blocked != 1 {
		t.Errorf("blocked = %d, want 1", report.WIP.Blocked)
	}
}

func TestCycleTimeRunsFromFirstActiveEntry(t *testing.T) {
	created := calcNow.AddDate(0, 0, -10)
	activeAt := created.AddDate(0, 0, 2) // 2 days of triage
	closed := created.AddDate(0, 0, 8)

	it := workitem.WorkItem{
		ID: 1, Type: "Task", CurrentState: "Done",
		CreatedDate: created, ClosedDate: &closed, Priority: 3,
		Transitions: []workitem.StateTransition{
			closedTransition("New", created, activeAt),
			closedTransition("Active", activeAt, closed),
			closedTransition("Done", closed, closed),
		},
	}

	report := Calculate([]workitem.WorkItem{it}, testSettings(), Options{Now: calcNow})

	if report.CycleTime.Count != 1 {
		t.Fatalf("cycle time count = %d, want 1", report.CycleTime.Count)
	}
	if *report.CycleTime.Median != 6.0 {
		t.Errorf("cycle time = %v, want 6.0 (8 days lead minus 2 days triage)", *report.CycleTime.Median)
	}
	if *report.LeadTime.Median != 8.0 {
		t.Errorf("lead time = %v, want 8.0", *report.LeadTime.Median)
	}
}

func TestCycleTimeKeepsFirstCompletionOnReopen(t *testing.T) {
	created := calcNow.AddDate(0, 0, -10)
	activeAt := created.AddDate(0, 0, 1)
	doneAt := created.AddDate(0, 0, 4)   // first delivery
	reopenAt := created.AddDate(0, 0, 6) // sent back for rework
	closed := created.AddDate(0, 0, 9)   // terminal close

	it := workitem.WorkItem{
		ID: 1, Type: "Task", CurrentState: "Done", AssignedTo: "Alice",
		CreatedDate: created, ClosedDate: &closed, Priority: 3,
		Transitions: []workitem.StateTransition{
			closedTransition("New", created, activeAt),
			closedTransition("Active", activeAt, doneAt),
			closedTransition("Done", doneAt, reopenAt),
			closedTransition("Active", reopenAt, closed),
			closedTransition("Done", closed, closed),
		},
	}

	report := Calculate([]workitem.WorkItem{it}, testSettings(), Options{Now: calcNow})

	if report.CycleTime.Count != 1 {
		t.Fatalf("cycle time count = %d, want 1", report.CycleTime.Count)
	}
	if *report.CycleTime.Median != 3.0 {
		t.Errorf("cycle time = %v, want 3.0 (first active day 1 to first Done day 4)", *report.CycleTime.Median)
	}
	// Lead time still runs to the terminal close.
	if *report.LeadTime.Median != 9.0 {
		t.Errorf("lead time = %v, want 9.0", *report.LeadTime.Median)
	}
	// The per-assignee average measures the same interval.
	alice := report.TeamMetrics["Alice"]
	if alice.AvgCycleTimeDays == nil || *alice.AvgCycleTimeDays != 3.0 {
		t.Errorf("team cycle time = %v, want 3.0", alice.AvgCycleTimeDays)
	}
}

func TestTypePolicyExcludesFromThroughput(t *testing.T) {
	settings := testSettings()
	settings.Types = config.TypePolicies{
		"Chore": {IncludeInThroughput: false, IncludeInVelocity: false, ComplexityMultiplier: 1.0},
	}

	chore := completedItem(1, 6, 2, "Alice")
	chore.Type = "Chore"
	task := completedItem(2, 6, 2, "Bob")

	report := Calculate([]workitem.WorkItem{chore, task}, settings, Options{Now: calcNow})

	if report.Throughput.Count != 1 {
		t.Errorf("throughput = %d, want 1 (chore excluded by policy)", report.Throughput.Count)
	}
	if report.LeadTime.Count != 1 {
		t.Errorf("lead time count = %d, want 1", report.LeadTime.Count)
	}
	// Completion still counts toward the summary: the policy gates the
	// throughput metrics, not the item's doneness.
	if report.Summary.CompletedItems != 2 {
		t.Errorf("completed = %d, want 2", report.Summary.CompletedItems)
	}
}

func TestThroughputWindowExcludesOldCompletions(t *testing.T) {
	settings := testSettings()
	settings.Parameters.ThroughputPeriodDays = 7

	items := []workitem.WorkItem{
		completedItem(1, 20, 10, "Alice"), // closed before the window
		completedItem(2, 6, 2, "Bob"),     // inside
	}

	report := Calculate(items, settings, Options{Now: calcNow})

	if report.Throughput.Count != 1 {
		t.Errorf("throughput = %d, want 1", report.Throughput.Count)
	}
	if report.Summary.CompletedItems != 2 {
		t.Errorf("completed = %d, want 2 (window gates throughput only)", report.Summary.CompletedItems)
	}
	if report.Throughput.Count > report.Summary.CompletedItems {
		t.Error("throughput exceeds completions, impossible")
	}
}

func TestTeamFilterKeepsValuesUnchanged(t *testing.T) {
	items := []workitem.WorkItem{
		completedItem(1, 10, 5, "Alice"),
		completedItem(2, 7, 2, "Bob"),
		completedItem(3, 9, 4, "Carol"),
		activeItem(4, 3, "Active", "Alice"),
		activeItem(5, 2, "Active", "Dave"),
	}

	full := Calculate(items, testSettings(), Options{Now: calcNow})
	filtered := Calculate(items, testSettings(), Options{Now: calcNow, TeamFilter: []string{"Alice", "Bob"}})

	if len(filtered.TeamMetrics) != 2 {
		t.Fatalf("filtered team size = %d, want 2", len(filtered.TeamMetrics))
	}
	for _, name := range []string{"Alice", "Bob"} {
		got, ok := filtered.TeamMetrics[name]
		if !ok {
			t.Fatalf("missing %s in filtered team metrics", name)
		}
		want := full.TeamMetrics[name]
		if got.Completed != want.Completed || got.Active != want.Active {
			t.Errorf("%s: filtered %+v != unfiltered %+v", name, got, want)
		}
	}
	if _, ok := filtered.TeamMetrics["Carol"]; ok {
		t.Error("Carol leaked through the allow-list")
	}
}

func TestTeamMetricsCompletionRateAndVelocity(t *testing.T) {
	settings := testSettings()
	settings.Types = config.TypePolicies{
		"Feature": {IncludeInThroughput: true, IncludeInVelocity: true, ComplexityMultiplier: 3.0},
	}

	feature := completedItem(1, 10, 5, "Alice")
	feature.Type = "Feature"
	items := []workitem.WorkItem{
		feature,
		completedItem(2, 7, 2, "Alice"),
		activeItem(3, 3, "Active", "Alice"),
	}

	report := Calculate(items, settings, Options{Now: calcNow})

	alice := report.TeamMetrics["Alice"]
	if alice.Completed != 2 || alice.Active != 1 {
		t.Fatalf("alice = %+v, want 2 completed, 1 active", alice)
	}
	if got := *alice.CompletionRate; got != 0.67 {
		t.Errorf("completion rate = %v, want 0.67", got)
	}
	// Feature weighs 3.0, the plain Task weighs the default 1.0.
	if alice.Velocity != 4.0 {
		t.Errorf("velocity = %v, want 4.0", alice.Velocity)
	}
}

func TestFlowEfficiencyOverItemLife(t *testing.T) {
	created := calcNow.AddDate(0, 0, -10)
	activeAt := created.AddDate(0, 0, 1)
	blockedAt := created.AddDate(0, 0, 4) // 3 days active
	resumedAt := created.AddDate(0, 0, 7) // 3 days blocked
	closed := created.AddDate(0, 0, 9)    // 2 more days active

	it := workitem.WorkItem{
		ID: 1, Type: "Task", CurrentState: "Done",
		CreatedDate: created, ClosedDate: &closed, Priority: 3,
		Transitions: []workitem.StateTransition{
			closedTransition("New", created, activeAt),
			closedTransition("Active", activeAt, blockedAt),
			closedTransition("Blocked", blockedAt, resumedAt),
			closedTransition("Active", resumedAt, closed),
			closedTransition("Done", closed, closed),
		},
	}

	report := Calculate([]workitem.WorkItem{it}, testSettings(), Options{Now: calcNow})

	if report.FlowEfficiency.Count != 1 {
		t.Fatalf("efficiency count = %d, want 1", report.FlowEfficiency.Count)
	}
	// 5 active days over 8 elapsed days from first active entry to close.
	if got := *report.FlowEfficiency.Average; got != 0.63 {
		t.Errorf("efficiency = %v, want 0.63", got)
	}
}

func TestFlowEfficiencySkipsNeverActiveItems(t *testing.T) {
	items := []workitem.WorkItem{
		activeItem(1, 5, "New", "Alice"), // never entered an active state
	}
	report := Calculate(items, testSettings(), Options{Now: calcNow})

	if report.FlowEfficiency.Count != 0 || report.FlowEfficiency.Average != nil {
		t.Errorf("efficiency = %+v, want empty (undefined is excluded, not zero)", report.FlowEfficiency)
	}
}

func TestLittlesLawDiagnostics(t *testing.T) {
	items := []workitem.WorkItem{
		completedItem(1, 10, 5, "Alice"),
		completedItem(2, 8, 3, "Bob"),
		activeItem(3, 6, "Active", "Alice"),
	}

	report := Calculate(items, testSettings(), Options{Now: calcNow})

	ll := report.LittlesLaw
	if ll.ArrivalRatePerDay == nil || ll.AvgWIP == nil || ll.PredictedCycleTimeDays == nil {
		t.Fatalf("littles law incomplete: %+v", ll)
	}
	if *ll.ArrivalRatePerDay != 0.07 { // 2 completions / 30 days
		t.Errorf("arrival rate = %v, want 0.07", *ll.ArrivalRatePerDay)
	}
	if ll.AvgCycleTimeDays == nil || ll.DeviationPct == nil {
		t.Errorf("measured cycle time and deviation should be set: %+v", ll)
	}
}

func TestCalculatorIsDeterministic(t *testing.T) {
	items := []workitem.WorkItem{
		completedItem(1, 10, 5, "Alice"),
		completedItem(2, 7, 2, "Bob"),
		activeItem(3, 3, "Active", "Alice"),
		activeItem(4, 2, "Blocked", "Bob"),
	}
	opts := Options{Now: calcNow, TeamFilter: []string{"Alice", "Bob"}}

	a, err := json.Marshal(Calculate(items, testSettings(), opts))
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(Calculate(items, testSettings(), opts))
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("two runs over the same input serialized differently")
	}
}

func TestReportRoundTrip(t *testing.T) {
	items := []workitem.WorkItem{
		completedItem(1, 10, 5, "Alice"),
		activeItem(2, 3, "Active", "Bob"),
	}
	report := Calculate(items, testSettings(), Options{Now: calcNow})

	raw, err := json.Marshal(report)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	again, err := json.Marshal(&decoded)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != string(again) {
		t.Error("report changed across a serialize/deserialize round trip")
	}
}

func TestExplicitWindowOverridesDefaults(t *testing.T) {
	from := calcNow.AddDate(0, 0, -14)
	report := Calculate(nil, testSettings(), Options{Now: calcNow, From: from})

	if !report.WindowStart.Equal(from) {
		t.Errorf("window start = %s, want %s", report.WindowStart, from)
	}
	if !report.WindowEnd.Equal(calcNow) {
		t.Errorf("window end = %s, want %s", report.WindowEnd, calcNow)
	}
	if report.WindowDays != 14 {
		t.Errorf("window days = %d, want 14", report.WindowDays)
	}
}
