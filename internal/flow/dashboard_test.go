package flow

import (
	"encoding/json"
	"testing"
	"time"

	"adoflow/internal/workitem"
)

func dashboardFixture() []workitem.WorkItem {
	items := []workitem.WorkItem{
		completedItem(1, 25, 20, "Alice"),
		completedItem(2, 18, 12, "Bob"),
		completedItem(3, 15, 8, "Alice"),
		completedItem(4, 10, 3, "Carol"),
		activeItem(5, 12, "Active", "Bob"),
		activeItem(6, 4, "In Progress", "Alice"),
		activeItem(7, 2, "Blocked", "Carol"),
	}
	return items
}

func TestBuildDashboardPanelsAgreeOnWindow(t *testing.T) {
	data := BuildDashboard(dashboardFixture(), testSettings(), DashboardOptions{
		Options: Options{Now: calcNow},
	})

	if data.Report == nil {
		t.Fatal("dashboard has no report")
	}
	if !data.GeneratedAt.Equal(data.Report.GeneratedAt) {
		t.Error("dashboard and report disagree on the generation instant")
	}
	// Default 30-day window samples 31 calendar days.
	if len(data.WIPRunChart) != 31 {
		t.Errorf("run chart has %d points, want 31", len(data.WIPRunChart))
	}
	for i := 1; i < len(data.WIPRunChart); i++ {
		if !data.WIPRunChart[i].Date.After(data.WIPRunChart[i-1].Date) {
			t.Fatalf("run chart dates not strictly increasing at %d", i)
		}
	}
}

func TestWeeklyThroughputHasNoGaps(t *testing.T) {
	data := BuildDashboard(dashboardFixture(), testSettings(), DashboardOptions{
		Options: Options{Now: calcNow},
	})

	if len(data.WeeklyThroughput) == 0 {
		t.Fatal("no weekly buckets")
	}
	total := 0
	for i, b := range data.WeeklyThroughput {
		if b.WeekStart.Weekday() != time.Monday {
			t.Errorf("bucket %d starts on %s, want Monday", i, b.WeekStart.Weekday())
		}
		if i > 0 {
			prev := data.WeeklyThroughput[i-1].WeekStart
			if !b.WeekStart.Equal(prev.AddDate(0, 0, 7)) {
				t.Errorf("bucket %d not contiguous: %s after %s", i, b.WeekStart, prev)
			}
		}
		total += b.Completed
	}
	if total != data.Report.Throughput.Count {
		t.Errorf("weekly buckets sum to %d, report throughput is %d", total, data.Report.Throughput.Count)
	}
}

func TestStateResidencyCoversClosedTransitions(t *testing.T) {
	data := BuildDashboard(dashboardFixture(), testSettings(), DashboardOptions{
		Options: Options{Now: calcNow},
	})

	byState := map[string]StateResidency{}
	for _, r := range data.StateResidency {
		byState[r.State] = r
	}
	// Every completed item passed through New and Active with closed stays.
	for _, state := range []string{"New", "Active", "Done"} {
		r, ok := byState[state]
		if !ok {
			t.Fatalf("no residency row for %s", state)
		}
		if r.Count < 4 {
			t.Errorf("%s residency count = %d, want at least 4", state, r.Count)
		}
	}
	// Rows come out sorted by state name.
	for i := 1; i < len(data.StateResidency); i++ {
		if data.StateResidency[i].State < data.StateResidency[i-1].State {
			t.Error("residency rows not sorted by state")
			break
		}
	}
}

func TestAgingWIPOldestFirst(t *testing.T) {
	data := BuildDashboard(dashboardFixture(), testSettings(), DashboardOptions{
		Options: Options{Now: calcNow},
	})

	// Items 5, 6, and 7 are still in flight; the blocked one is listed too.
	if len(data.AgingWIP) != 3 {
		t.Fatalf("aging rows = %d, want 3", len(data.AgingWIP))
	}
	if data.AgingWIP[0].ID != 5 {
		t.Errorf("oldest item first: got id %d", data.AgingWIP[0].ID)
	}
	for i := 1; i < len(data.AgingWIP); i++ {
		if data.AgingWIP[i].AgeDays > data.AgingWIP[i-1].AgeDays {
			t.Error("aging rows not ordered oldest first")
			break
		}
	}
	// Item 5 at 12 days exceeds the completed population's P85 lead time.
	if !data.AgingWIP[0].Stale {
		t.Error("12-day-old item should be flagged stale")
	}
}

func TestForecastIsDeterministicPerSeed(t *testing.T) {
	opts := DashboardOptions{
		Options:         Options{Now: calcNow},
		Seed:            7,
		Trials:          500,
		ForecastBacklog: 20,
	}

	a := BuildDashboard(dashboardFixture(), testSettings(), opts).Forecast
	b := BuildDashboard(dashboardFixture(), testSettings(), opts).Forecast
	if a == nil || b == nil {
		t.Fatal("forecast missing")
	}
	if *a != *b {
		t.Errorf("same seed diverged: %+v vs %+v", *a, *b)
	}

	if a.P50Days > a.P85Days || a.P85Days > a.P95Days {
		t.Errorf("forecast percentiles not monotonic: %+v", *a)
	}
	if a.BacklogSize != 20 || a.Trials != 500 {
		t.Errorf("forecast echoes wrong inputs: %+v", *a)
	}
	if a.P50Days < 1 {
		t.Errorf("draining a non-empty backlog takes at least a day, got %d", a.P50Days)
	}
}

func TestForecastNilWithoutThroughput(t *testing.T) {
	items := []workitem.WorkItem{activeItem(1, 5, "Active", "Alice")}
	data := BuildDashboard(items, testSettings(), DashboardOptions{
		Options:         Options{Now: calcNow},
		ForecastBacklog: 10,
		Trials:          100,
	})
	if data.Forecast != nil {
		t.Errorf("forecast over a window with no completions = %+v, want nil", data.Forecast)
	}
}

func TestBacklogForecastMatchesDashboard(t *testing.T) {
	items := dashboardFixture()
	opts := Options{Now: calcNow}

	direct := BacklogForecast(items, testSettings(), opts, 20, 500, 7)
	viaDashboard := BuildDashboard(items, testSettings(), DashboardOptions{
		Options: opts, Seed: 7, Trials: 500, ForecastBacklog: 20,
	}).Forecast

	if direct == nil || viaDashboard == nil {
		t.Fatal("forecast missing")
	}
	if *direct != *viaDashboard {
		t.Errorf("standalone forecast %+v != dashboard forecast %+v", *direct, *viaDashboard)
	}
}

func TestDashboardIncludesStateDiagramOnRequest(t *testing.T) {
	withDiagram := BuildDashboard(dashboardFixture(), testSettings(), DashboardOptions{
		Options: Options{Now: calcNow},
		Diagram: true,
	})
	if withDiagram.StateDiagram == "" {
		t.Error("diagram requested but absent")
	}
	if withDiagram.WIPChart == "" || withDiagram.ThroughputChart == "" || withDiagram.AgingChart == "" {
		t.Error("chart panels missing when diagrams requested")
	}

	without := BuildDashboard(dashboardFixture(), testSettings(), DashboardOptions{
		Options: Options{Now: calcNow},
	})
	if without.StateDiagram != "" {
		t.Error("diagram present without being requested")
	}
}

func TestDashboardSerializes(t *testing.T) {
	data := BuildDashboard(dashboardFixture(), testSettings(), DashboardOptions{
		Options:         Options{Now: calcNow},
		Seed:            1,
		Trials:          200,
		ForecastBacklog: 5,
		Diagram:         true,
	})
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("dashboard does not serialize: %v", err)
	}
	var decoded DashboardData
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("dashboard does not round-trip: %v", err)
	}
	if decoded.Report == nil || decoded.Forecast == nil {
		t.Error("round trip lost nested documents")
	}
}
