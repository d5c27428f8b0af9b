package demo

import (
	"reflect"
	"testing"
	"time"

	"adoflow/internal/config"
	"adoflow/internal/flow"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestGenerateIsDeterministic(t *testing.T) {
	opts := Options{Count: 50, Days: 60, Seed: 7, Now: testNow}

	a := Generate(opts)
	b := Generate(opts)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("two runs with the same seed produced different items")
	}

	c := Generate(Options{Count: 50, Days: 60, Seed: 8, Now: testNow})
	if reflect.DeepEqual(a, c) {
		t.Error("different seeds produced identical items")
	}
}

func TestGeneratedItemsSatisfyModelInvariants(t *testing.T) {
	for _, scenario := range []string{"steady", "chaotic"} {
		t.Run(scenario, func(t *testing.T) {
			items := Generate(Options{Count: 200, Days: 90, Seed: 3, Scenario: scenario, Now: testNow})
			if len(items) != 200 {
				t.Fatalf("len(items) = %d, want 200", len(items))
			}

			completed := 0
			for _, it := range items {
				if len(it.Transitions) == 0 {
					t.Fatalf("item %d has no transitions", it.ID)
				}
				if it.Transitions[0].EnteredDate != it.CreatedDate {
					t.Errorf("item %d: first transition at %s, want created date %s",
						it.ID, it.Transitions[0].EnteredDate, it.CreatedDate)
				}
				for i := 1; i < len(it.Transitions); i++ {
					prev, cur := it.Transitions[i-1], it.Transitions[i]
					if prev.ExitedDate == nil || !prev.ExitedDate.Equal(cur.EnteredDate) {
						t.Errorf("item %d: transitions %d and %d do not tile", it.ID, i-1, i)
					}
				}
				if it.CurrentState != it.Transitions[len(it.Transitions)-1].State {
					t.Errorf("item %d: current state %q != terminal transition %q",
						it.ID, it.CurrentState, it.Transitions[len(it.Transitions)-1].State)
				}
				if it.ClosedDate != nil {
					completed++
					if it.ClosedDate.Before(it.CreatedDate) {
						t.Errorf("item %d: closed before created", it.ID)
					}
					last := it.Transitions[len(it.Transitions)-1]
					if !it.ClosedDate.Equal(last.EnteredDate) {
						t.Errorf("item %d: closed date %s != terminal entry %s",
							it.ID, it.ClosedDate, last.EnteredDate)
					}
				}
			}
			if completed == 0 || completed == len(items) {
				t.Errorf("completed = %d of %d, want a mix of done and open items", completed, len(items))
			}
		})
	}
}

func TestGeneratedItemsFeedTheCalculator(t *testing.T) {
	items := Generate(Options{Count: 150, Days: 90, Seed: 11, Now: testNow})
	settings := &config.Settings{
		States:     config.DefaultStateConfiguration(),
		Types:      config.TypePolicies{},
		Parameters: config.DefaultCalculationParameters(),
	}

	report := flow.Calculate(items, settings, flow.Options{Now: testNow})
	if report.Summary.CompletedItems == 0 {
		t.Error("demo set produced no completed items")
	}
	if report.WIP.Total == 0 {
		t.Error("demo set produced no WIP")
	}
	if report.LeadTime.Median == nil {
		t.Error("lead time median is nil over a populated demo set")
	}
}
