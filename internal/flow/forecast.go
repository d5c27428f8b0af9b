package flow

import (
	"math/rand"
	"sort"
	"time"

	"adoflow/internal/config"
	"adoflow/internal/workitem"
)

const maxSimulatedDays = 10000

// Forecast holds Monte Carlo completion estimates for a backlog, in days.
type Forecast struct {
	BacklogSize int `json:"backlog_size"`
	Trials      int `json:"trials"`
	WindowDays  int `json:"window_days"`
	P50Days     int `json:"p50_days"`
	P85Days     int `json:"p85_days"`
	P95Days     int `json:"p95_days"`
}

// BacklogForecast runs the Monte Carlo drain simulation over the window the
// options resolve to, for callers outside the dashboard build.
func BacklogForecast(items []workitem.WorkItem, settings *config.Settings, opts Options, backlog, trials int, seed int64) *Forecast {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	win := resolveWindow(now.UTC(), opts, settings.Parameters)
	cls := classifier{states: settings.States, types: settings.Types}
	if trials <= 0 {
		trials = 10000
	}
	return forecastBacklog(items, cls, win, backlog, trials, seed)
}

// forecastBacklog samples historical daily throughput to simulate how many
// days a backlog of the given size takes to drain. Zero-throughput days stay
// in the sample; they are what make the tail honest. Returns nil when the
// window saw no completions at all.
func forecastBacklog(items []workitem.WorkItem, cls classifier, win Window, backlog, trials int, seed int64) *Forecast {
	if backlog <= 0 || trials <= 0 {
		return nil
	}

	counts := dailyCounts(items, cls, win)
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(seed))
	durations := make([]int, trials)
	for i := 0; i < trials; i++ {
		durations[i] = simulateTrial(rng, counts, backlog)
	}
	sort.Ints(durations)

	return &Forecast{
		BacklogSize: backlog,
		Trials:      trials,
		WindowDays:  len(counts),
		P50Days:     durations[int(float64(trials)*0.50)],
		P85Days:     durations[int(float64(trials)*0.85)],
		P95Days:     durations[int(float64(trials)*0.95)],
	}
}

func simulateTrial(rng *rand.Rand, counts []int, backlog int) int {
	days := 0
	remaining := backlog
	for remaining > 0 {
		days++
		remaining -= counts[rng.Intn(len(counts))]
		if days > maxSimulatedDays {
			break
		}
	}
	return days
}

// dailyCounts buckets throughput-eligible completions per window day.
func dailyCounts(items []workitem.WorkItem, cls classifier, win Window) []int {
	counts := make([]int, 0, win.Days())
	win.EachDay(func(dayStart, dayEnd time.Time) {
		n := 0
		for i := range items {
			it := &items[i]
			if !cls.throughputEligible(it) {
				continue
			}
			closed := *it.ClosedDate
			if !closed.Before(dayStart) && !closed.After(dayEnd) {
				n++
			}
		}
		counts = append(counts, n)
	})
	return counts
}
