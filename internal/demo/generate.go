package demo

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"adoflow/internal/workitem"
)

// Options tunes the synthetic data set. The same options always produce the
// same items; the seed is part of the contract, not a convenience.
type Options struct {
	Count    int    // items to generate, default 120
	Days     int    // arrival span ending at Now, default 90
	Seed     int64  // RNG seed
	Scenario string // "steady" (default) or "chaotic"
	Now      time.Time
}

func (o Options) withDefaults() Options {
	if o.Count <= 0 {
		o.Count = 120
	}
	if o.Days <= 0 {
		o.Days = 90
	}
	if o.Scenario == "" {
		o.Scenario = "steady"
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	o.Now = o.Now.UTC().Truncate(time.Minute)
	return o
}

var (
	assignees = []string{"Alice", "Bob", "Carol", "Dave", "Erin", "Frank", "Grace", "Heidi"}
	itemTypes = []string{"Task", "Task", "Task", "Bug", "Bug", "User Story", "Feature"}
	tagPool   = []string{"frontend", "backend", "infra", "payments", "search", "tech-debt"}
)

// Generate builds a deterministic synthetic work item set that exercises the
// whole metric surface: completed items, open items, blocked stretches, and
// for the chaotic scenario a fat tail of long-runners.
func Generate(opts Options) []workitem.WorkItem {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewSource(opts.Seed))

	items := make([]workitem.WorkItem, 0, opts.Count)
	spacing := float64(opts.Days) / float64(opts.Count)
	for i := 0; i < opts.Count; i++ {
		created := opts.Now.AddDate(0, 0, -opts.Days).
			Add(time.Duration(float64(i)*spacing*24) * time.Hour).
			Add(time.Duration(rng.Intn(8*60)) * time.Minute)
		items = append(items, buildItem(rng, opts, i+1, created))
	}

	log.Info().
		Int("count", len(items)).
		Str("scenario", opts.Scenario).
		Int64("seed", opts.Seed).
		Msg("Demo data generated")
	return items
}

func buildItem(rng *rand.Rand, opts Options, id int, created time.Time) workitem.WorkItem {
	itemType := itemTypes[rng.Intn(len(itemTypes))]
	assignee := assignees[rng.Intn(len(assignees))]

	totalDays := sampleDuration(rng, opts.Scenario)
	blocked := rng.Float64() < blockChance(opts.Scenario)

	// Lifecycle fractions: triage, work, review. A blocked item parks
	// between the work and review phases.
	type step struct {
		state string
		at    float64
	}
	steps := []step{
		{"New", 0},
		{"Active", 0.10 + rng.Float64()*0.10},
	}
	if blocked {
		steps = append(steps,
			step{"Blocked", 0.35 + rng.Float64()*0.10},
			step{"Active", 0.60 + rng.Float64()*0.10},
		)
	}
	steps = append(steps,
		step{"Resolved", 0.80 + rng.Float64()*0.10},
		step{"Done", 1.0},
	)

	item := workitem.WorkItem{
		ID:          id,
		Title:       fmt.Sprintf("%s %d: %s", itemType, id, titleFor(rng)),
		Type:        itemType,
		AssignedTo:  assignee,
		CreatedDate: created,
		Priority:    1 + rng.Intn(4),
		Sprint:      fmt.Sprintf("Sprint %d", 1+id/10),
		Tags:        []string{tagPool[rng.Intn(len(tagPool))]},
		StoryPoints: storyPoints(rng, itemType),
	}

	for _, st := range steps {
		at := created.Add(time.Duration(st.at * totalDays * 24 * float64(time.Hour)))
		if st.at > 0 && at.After(opts.Now) {
			break
		}
		if n := len(item.Transitions); n > 0 {
			prev := &item.Transitions[n-1]
			exited := at
			prev.ExitedDate = &exited
			hours := exited.Sub(prev.EnteredDate).Hours()
			prev.DurationHours = &hours
		}
		item.Transitions = append(item.Transitions, workitem.StateTransition{
			State:       st.state,
			EnteredDate: at,
			ChangedBy:   assignee,
		})
	}

	last := &item.Transitions[len(item.Transitions)-1]
	item.CurrentState = last.State
	if last.State == "Done" {
		closed := last.EnteredDate
		item.ClosedDate = &closed
		exited := closed
		last.ExitedDate = &exited
		hours := 0.0
		last.DurationHours = &hours
	}
	return item
}

// sampleDuration draws a total lifetime in days. The chaotic profile mixes a
// short body with an occasional long-runner so percentiles and forecasts
// spread out the way a messy real backlog does.
func sampleDuration(rng *rand.Rand, scenario string) float64 {
	if scenario == "chaotic" {
		d := 1 + rng.ExpFloat64()*6
		if rng.Float64() < 0.15 {
			d += 15 + rng.Float64()*25
		}
		return math.Min(d, 60)
	}
	return 3 + rng.Float64()*9
}

func blockChance(scenario string) float64 {
	if scenario == "chaotic" {
		return 0.35
	}
	return 0.12
}

func storyPoints(rng *rand.Rand, itemType string) *float64 {
	if itemType == "Bug" {
		return nil
	}
	pts := []float64{1, 2, 3, 5, 8, 13}[rng.Intn(6)]
	return &pts
}

var titleWords = []string{
	"harden retry path", "tune cache eviction", "migrate settings schema",
	"fix pagination drift", "extract billing client", "profile slow query",
	"add bulk export", "rework onboarding flow", "upgrade build image",
	"trace checkout latency", "dedupe notification fanout", "split monolith route",
}

func titleFor(rng *rand.Rand) string {
	return titleWords[rng.Intn(len(titleWords))]
}
