package commands

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"testing"
	"time"

	"adoflow/internal/config"
	"adoflow/internal/flow"
	"adoflow/internal/storage"
	"adoflow/internal/workitem"
)

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitFailure},
		{"exit error", &ExitError{Code: ExitConfigError, Message: "bad flag"}, ExitConfigError},
		{"wrapped exit error", fmt.Errorf("run: %w", &ExitError{Code: ExitConfigError, Message: "bad"}), ExitConfigError},
		{"config error", config.NewConfigError("missing PAT"), ExitConfigError},
		{"cancelled", context.Canceled, ExitCancelled},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), ExitCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCode(tc.err); got != tc.want {
				t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestParseDateFlag(t *testing.T) {
	got, err := parseDateFlag("2025-05-01")
	if err != nil {
		t.Fatalf("Expected valid date, got %v", err)
	}
	if !got.Equal(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("parsed %s", got)
	}

	if got, err := parseDateFlag(""); err != nil || !got.IsZero() {
		t.Errorf("empty flag should parse to zero time, got %s, %v", got, err)
	}

	_, err = parseDateFlag("05/01/2025")
	var ee *ExitError
	if !errors.As(err, &ee) || ee.Code != ExitConfigError {
		t.Errorf("Expected config-error exit for malformed date, got %v", err)
	}
}

func TestMergeByID(t *testing.T) {
	day := 24 * time.Hour
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	item := func(id int, state string, created time.Time) workitem.WorkItem {
		return workitem.WorkItem{ID: id, CurrentState: state, CreatedDate: created}
	}

	cached := []workitem.WorkItem{
		item(1, "Active", base),
		item(2, "New", base.Add(day)),
		item(3, "Active", base.Add(2*day)),
	}
	fresh := []workitem.WorkItem{
		item(2, "Done", base.Add(day)), // re-fetched, state advanced
		item(4, "New", base.Add(3*day)),
	}

	merged := mergeByID(cached, fresh)

	if len(merged) != 4 {
		t.Fatalf("merged %d items, want 4", len(merged))
	}
	wantOrder := []int{1, 2, 3, 4}
	for i, id := range wantOrder {
		if merged[i].ID != id {
			t.Fatalf("position %d has id %d, want %d", i, merged[i].ID, id)
		}
	}
	if merged[1].CurrentState != "Done" {
		t.Errorf("fresh copy must win: item 2 state = %s", merged[1].CurrentState)
	}
}

func TestIncrementalLookback(t *testing.T) {
	if got := incrementalLookback(time.Now().Add(-49 * time.Hour)); got != 4 {
		t.Errorf("49h ago = %d days, want 4 (ceil + slack)", got)
	}
	if got := incrementalLookback(time.Now().Add(time.Hour)); got != 1 {
		t.Errorf("future timestamp = %d days, want floor of 1", got)
	}
}

func TestWriteCSVShape(t *testing.T) {
	closed := time.Date(2025, 4, 28, 12, 0, 0, 0, time.UTC)
	doc := &storage.WorkItemsDocument{
		Items: []workitem.WorkItem{
			{
				ID: 101, Title: "Fix login", Type: "Bug", CurrentState: "Done",
				AssignedTo:  "Alice",
				CreatedDate: time.Date(2025, 4, 22, 12, 0, 0, 0, time.UTC),
				ClosedDate:  &closed,
			},
			{
				ID: 102, Title: "New settings page", Type: "Task", CurrentState: "Active",
				CreatedDate: time.Date(2025, 4, 25, 12, 0, 0, 0, time.UTC),
			},
		},
	}
	data := &flow.DashboardData{
		Report: &flow.Report{
			FlowEfficiency: flow.FlowEfficiencyMetrics{
				PerItem: []flow.EfficiencyEntry{{ID: 101, Efficiency: 0.75}},
			},
		},
	}

	var buf bytes.Buffer
	if err := writeCSV(&buf, doc, data); err != nil {
		t.Fatalf("writeCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	header := []string{"id", "title", "type", "state", "assigned_to", "created", "closed", "lead_days", "flow_efficiency"}
	for i, col := range header {
		if rows[0][i] != col {
			t.Errorf("header column %d = %q, want %q", i, rows[0][i], col)
		}
	}
	want101 := []string{"101", "Fix login", "Bug", "Done", "Alice", "2025-04-22", "2025-04-28", "6.0", "0.75"}
	for i, v := range want101 {
		if rows[1][i] != v {
			t.Errorf("row 1 column %d = %q, want %q", i, rows[1][i], v)
		}
	}
	// Open item: empty closed, lead, and efficiency cells.
	if rows[2][6] != "" || rows[2][7] != "" || rows[2][8] != "" {
		t.Errorf("open item must leave closed/lead/efficiency blank, got %v", rows[2])
	}
}
