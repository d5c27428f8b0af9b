package azdo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// updatesPageSize is the page size used when no history limit is set.
const updatesPageSize = 200

// ItemFailure describes one item whose history could not be fetched.
type ItemFailure struct {
	ID      int    `json:"id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// HistorySummary aggregates the outcome of a history fan-out.
type HistorySummary struct {
	TotalItems int           `json:"total_items"`
	Succeeded  int           `json:"succeeded"`
	Retries    int           `json:"retries"`
	Failed     []ItemFailure `json:"failed,omitempty"`
	Cancelled  bool          `json:"cancelled,omitempty"`
}

// FetchHistories retrieves the state-change history for each id through the
// same bounded pool shape as the details stage. historyLimit caps the update
// records requested per item; zero means page through all of them.
//
// The result map holds ascending state changes per item. Items whose history
// failed are absent from the map and listed in the summary.
func (c *Client) FetchHistories(ctx context.Context, ids []int, historyLimit, workers int, onProgress ProgressFunc) (map[int][]StateChange, HistorySummary, error) {
	summary := HistorySummary{TotalItems: len(ids)}
	if len(ids) == 0 {
		return map[int][]StateChange{}, summary, nil
	}

	type slot struct {
		changes []StateChange
		retries int
		err     error
	}
	slots := make([]slot, len(ids))

	var mu sync.Mutex
	completed, collected := 0, 0
	report := func(changes int) {
		mu.Lock()
		defer mu.Unlock()
		completed++
		collected += changes
		if onProgress != nil {
			onProgress(completed, len(ids), collected)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(clampWorkers(workers))
	for i, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				slots[i].err = gctx.Err()
				return nil
			}
			changes, retries, err := c.fetchItemHistory(gctx, id, historyLimit)
			slots[i] = slot{changes: changes, retries: retries, err: err}
			good := 0
			if err == nil {
				good = len(changes)
			}
			report(good)
			var ae *AuthError
			if errors.As(err, &ae) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, summary, err
	}

	histories := make(map[int][]StateChange, len(ids))
	for i, s := range slots {
		summary.Retries += s.retries
		var tr *TransientError
		switch {
		case s.err == nil:
			histories[ids[i]] = s.changes
			summary.Succeeded++
		case errors.As(s.err, &tr):
			summary.Failed = append(summary.Failed, ItemFailure{
				ID:      ids[i],
				Kind:    ErrorKind(s.err),
				Message: s.err.Error(),
			})
		case errors.Is(s.err, context.Canceled) || errors.Is(s.err, context.DeadlineExceeded):
			summary.Cancelled = true
		default:
			summary.Failed = append(summary.Failed, ItemFailure{
				ID:      ids[i],
				Kind:    ErrorKind(s.err),
				Message: s.err.Error(),
			})
		}
	}

	if ctx.Err() != nil {
		summary.Cancelled = true
		log.Warn().
			Int("completed", summary.Succeeded).
			Int("total", summary.TotalItems).
			Msg("History fetch cancelled, keeping completed items")
		return histories, summary, ctx.Err()
	}

	log.Info().
		Int("items", summary.TotalItems).
		Int("failed", len(summary.Failed)).
		Int("retries", summary.Retries).
		Msg("History fetch complete")
	return histories, summary, nil
}

// fetchItemHistory fetches and validates one item's updates. Transport
// retries happen inside doJSON; this loop re-runs only when a response parsed
// fine but violated the ordering invariant, which reads as a replication
// race on the server side.
func (c *Client) fetchItemHistory(ctx context.Context, id, limit int) ([]StateChange, int, error) {
	retries := 0
	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		updates, r, err := c.fetchUpdates(ctx, id, limit)
		retries += r
		if err != nil {
			return nil, retries, err
		}
		changes, err := extractStateChanges(id, updates)
		if err == nil {
			return changes, retries, nil
		}
		lastErr = err
		if attempt == c.cfg.RetryAttempts {
			break
		}
		retries++
		timer := time.NewTimer(retryDelay(attempt, c.cfg.RetryBase, c.cfg.RetryCap))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, retries, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, retries, lastErr
}

// fetchUpdates pulls update records for one item. The updates route is
// organization-scoped: it takes no project segment.
func (c *Client) fetchUpdates(ctx context.Context, id, limit int) ([]updateDTO, int, error) {
	path := fmt.Sprintf("/_apis/wit/workitems/%d/updates", id)

	if limit > 0 {
		query := url.Values{}
		query.Set("$top", strconv.Itoa(limit))
		var resp updatesResponse
		meta, err := c.doJSON(ctx, http.MethodGet, path, query, nil, &resp)
		if err != nil {
			return nil, meta.Retries(), fmt.Errorf("updates for item %d: %w", id, err)
		}
		return resp.Value, meta.Retries(), nil
	}

	var all []updateDTO
	retries := 0
	for skip := 0; ; skip += updatesPageSize {
		query := url.Values{}
		query.Set("$top", strconv.Itoa(updatesPageSize))
		if skip > 0 {
			query.Set("$skip", strconv.Itoa(skip))
		}
		var resp updatesResponse
		meta, err := c.doJSON(ctx, http.MethodGet, path, query, nil, &resp)
		retries += meta.Retries()
		if err != nil {
			return nil, retries, fmt.Errorf("updates for item %d: %w", id, err)
		}
		all = append(all, resp.Value...)
		if len(resp.Value) < updatesPageSize {
			break
		}
	}
	return all, retries, nil
}

// extractStateChanges reduces raw updates to the state entries, keeping
// server order and verifying it ascends.
func extractStateChanges(id int, updates []updateDTO) ([]StateChange, error) {
	var changes []StateChange
	for _, u := range updates {
		fu, ok := u.Fields["System.State"]
		if !ok {
			continue
		}
		state := asString(fu.NewValue)
		if state == "" {
			continue
		}
		date, err := updateTimestamp(u)
		if err != nil {
			return nil, &TransientError{Err: fmt.Errorf("item %d rev %d: %w", id, u.Rev, err)}
		}
		changes = append(changes, StateChange{
			State:     state,
			ChangedBy: u.RevisedBy.DisplayName,
			Date:      date,
		})
	}

	for i := 1; i < len(changes); i++ {
		if changes[i].Date.Before(changes[i-1].Date) {
			return nil, &TransientError{Err: fmt.Errorf(
				"item %d: state changes out of order (%s after %s)",
				id, changes[i].Date.Format(time.RFC3339), changes[i-1].Date.Format(time.RFC3339),
			)}
		}
	}
	return changes, nil
}

// updateTimestamp resolves when an update happened. ChangedDate inside the
// update is authoritative; revisedDate is the fallback, except for the
// 9999-01-01 placeholder the API uses on uncommitted revisions.
func updateTimestamp(u updateDTO) (time.Time, error) {
	if fu, ok := u.Fields["System.ChangedDate"]; ok {
		if s := asString(fu.NewValue); s != "" {
			if t, err := ParseTime(s); err == nil && t.Year() < 9000 {
				return t, nil
			}
		}
	}
	t, err := ParseTime(u.RevisedDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("no usable timestamp: %w", err)
	}
	if t.Year() >= 9000 {
		return time.Time{}, fmt.Errorf("placeholder timestamp %s", u.RevisedDate)
	}
	return t, nil
}
