package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"adoflow/internal/azdo"
	"adoflow/internal/config"
	"adoflow/internal/workitem"
)

// DefaultTimeout bounds a whole ingestion run unless the caller overrides it.
const DefaultTimeout = 10 * time.Minute

// Options tunes one ingestion run. Zero values fall back to defaults: the
// configured lookback, the default worker count, the default run timeout.
type Options struct {
	DaysBack     int
	HistoryLimit int
	Workers      int
	Timeout      time.Duration

	// Now anchors the query window; zero means time.Now. Fixed in tests.
	Now time.Time

	// Progress receives run events when non-nil. Sends never block: a slow
	// subscriber sees fewer intermediate events, not a stalled run.
	Progress chan<- Event
}

// Summary describes how a run went, in enough detail to diagnose a partial
// result without reading logs.
type Summary struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	QueriedIDs      int                 `json:"queried_ids"`
	Details         azdo.FetchSummary   `json:"details"`
	Histories       azdo.HistorySummary `json:"histories"`
	Dropped         int                 `json:"dropped"`
	SyntheticCloses int                 `json:"synthetic_closes"`

	Partial   bool `json:"partial"`
	Cancelled bool `json:"cancelled"`
}

// Result is a run's output. On cancellation it still carries every item
// whose details and history both arrived, so a caller may compute metrics
// over partial data if it chooses.
type Result struct {
	Items            []workitem.WorkItem        `json:"items"`
	ValidationErrors []workitem.ValidationError `json:"validation_errors,omitempty"`
	Summary          Summary                    `json:"summary"`
}

// Engine runs the staged ingestion: query for candidate IDs, fan out detail
// batches, fan out per-item histories, normalize. One engine serves many
// runs; the underlying client is shared and concurrency-safe.
type Engine struct {
	client *azdo.Client
	states config.StateConfiguration
}

// New builds an engine over an Azure DevOps client and the state
// classification the normalizer applies.
func New(client *azdo.Client, states config.StateConfiguration) *Engine {
	return &Engine{client: client, states: states}
}

// Run executes one full ingestion. A failed detail batch or history item
// never aborts the run by itself; the run fails only when fewer than half
// the detail batches succeed, on credential rejection, or when the query
// stage itself errors. Cancellation (or the run timeout) returns the partial
// result alongside the context's error.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	res := &Result{Summary: Summary{
		RunID:   uuid.NewString(),
		Started: now.UTC(),
	}}
	notify := notifier{ch: opts.Progress}

	log.Info().
		Str("run_id", res.Summary.RunID).
		Int("days_back", opts.DaysBack).
		Int("workers", opts.Workers).
		Dur("timeout", timeout).
		Msg("Ingestion starting")

	if err := e.client.VerifyProject(ctx); err != nil {
		return nil, fmt.Errorf("verifying project: %w", err)
	}

	notify.phase(PhaseQuery, 0)
	ids, err := e.client.QueryWorkItemIDs(ctx, opts.DaysBack, now)
	if err != nil {
		return nil, fmt.Errorf("querying work items: %w", err)
	}
	res.Summary.QueriedIDs = len(ids)
	notify.finish(PhaseQuery, 1, 1, len(ids))
	if len(ids) == 0 {
		res.Summary.Finished = time.Now().UTC()
		return res, nil
	}

	notify.phase(PhaseDetails, (len(ids)+199)/200)
	details, detailSummary, detailErr := e.client.FetchWorkItems(ctx, ids, opts.Workers, func(done, total, items int) {
		notify.send(Event{Phase: PhaseDetails, Done: done, Total: total, Items: items})
	})
	res.Summary.Details = detailSummary
	if detailErr != nil && !isCancellation(detailErr) {
		return nil, fmt.Errorf("fetching work item details: %w", detailErr)
	}
	notify.finish(PhaseDetails, detailSummary.Succeeded, detailSummary.TotalBatches, len(details))

	if detailErr == nil && detailSummary.TotalBatches > 0 &&
		detailSummary.Succeeded*2 < detailSummary.TotalBatches {
		return nil, fmt.Errorf("ingestion degraded beyond use: %d of %d detail batches succeeded",
			detailSummary.Succeeded, detailSummary.TotalBatches)
	}

	var histories map[int][]azdo.StateChange
	if detailErr == nil {
		detailIDs := make([]int, len(details))
		for i := range details {
			detailIDs[i] = details[i].ID
		}
		notify.phase(PhaseHistory, len(detailIDs))
		var historyErr error
		histories, res.Summary.Histories, historyErr = e.client.FetchHistories(ctx, detailIDs, opts.HistoryLimit, opts.Workers, func(done, total, items int) {
			notify.send(Event{Phase: PhaseHistory, Done: done, Total: total, Items: items})
		})
		if historyErr != nil && !isCancellation(historyErr) {
			return nil, fmt.Errorf("fetching work item histories: %w", historyErr)
		}
		if historyErr != nil {
			detailErr = historyErr
		}
		notify.finish(PhaseHistory, res.Summary.Histories.Succeeded, res.Summary.Histories.TotalItems, res.Summary.Histories.Succeeded)
	}

	// Only items whose history actually arrived are normalized. Whether the
	// fetch failed, was cancelled mid-flight, or never started, a timeline
	// guessed from current state alone would be fiction.
	kept := details[:0:0]
	for _, d := range details {
		if _, ok := histories[d.ID]; ok {
			kept = append(kept, d)
		}
	}

	notify.phase(PhaseNormalize, len(kept))
	norm := workitem.NormalizeAll(kept, histories, e.states)
	res.Items = norm.Items
	res.ValidationErrors = norm.Errors
	res.Summary.Dropped = len(norm.Errors)
	res.Summary.SyntheticCloses = norm.SyntheticCloses
	notify.finish(PhaseNormalize, len(kept), len(kept), len(norm.Items))

	res.Summary.Partial = len(res.Summary.Details.Failed) > 0 ||
		len(res.Summary.Histories.Failed) > 0 ||
		res.Summary.Details.Cancelled || res.Summary.Histories.Cancelled
	res.Summary.Finished = time.Now().UTC()

	if detailErr != nil {
		res.Summary.Cancelled = true
		res.Summary.Partial = true
		log.Warn().
			Str("run_id", res.Summary.RunID).
			Int("items", len(res.Items)).
			Msg("Ingestion cancelled, returning partial result")
		return res, detailErr
	}

	log.Info().
		Str("run_id", res.Summary.RunID).
		Int("items", len(res.Items)).
		Int("dropped", res.Summary.Dropped).
		Bool("partial", res.Summary.Partial).
		Dur("elapsed", res.Summary.Finished.Sub(res.Summary.Started)).
		Msg("Ingestion complete")
	return res, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
