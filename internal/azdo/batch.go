package azdo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// maxBatchSize is the server-side ceiling on ids per details request.
const maxBatchSize = 200

// DefaultWorkers is the fan-out used when the caller does not choose one.
const DefaultWorkers = 5

const maxWorkers = 20

func clampWorkers(w int) int {
	switch {
	case w <= 0:
		return DefaultWorkers
	case w > maxWorkers:
		return maxWorkers
	default:
		return w
	}
}

// ProgressFunc receives fan-out progress: completed units, total units, and
// items accumulated so far. Calls are serialized.
type ProgressFunc func(completed, total, items int)

// FailedBatch describes one batch that gave up.
type FailedBatch struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// FetchSummary aggregates the outcome of a details fan-out.
type FetchSummary struct {
	TotalBatches int           `json:"total_batches"`
	Succeeded    int           `json:"succeeded"`
	Retries      int           `json:"retries"`
	Failed       []FailedBatch `json:"failed,omitempty"`
	Cancelled    bool          `json:"cancelled,omitempty"`
}

// FetchWorkItems retrieves full records for ids through a bounded worker
// pool. Batches are dispatched in input order and reassembled in input order,
// so the output is ids restricted to the batches that succeeded.
//
// A failed batch never takes its siblings down; failures land in the summary
// and the caller applies its own policy. The two exceptions are credential
// rejection, which aborts the stage, and context cancellation, which returns
// the batches already completed alongside ctx's error.
func (c *Client) FetchWorkItems(ctx context.Context, ids []int, workers int, onProgress ProgressFunc) ([]WorkItemDTO, FetchSummary, error) {
	batches := chunkIDs(ids, maxBatchSize)
	summary := FetchSummary{TotalBatches: len(batches)}
	if len(batches) == 0 {
		return nil, summary, nil
	}

	type slot struct {
		items   []WorkItemDTO
		retries int
		err     error
	}
	slots := make([]slot, len(batches))

	var mu sync.Mutex
	completed, fetched := 0, 0
	report := func(good int) {
		mu.Lock()
		defer mu.Unlock()
		completed++
		fetched += good
		if onProgress != nil {
			onProgress(completed, len(batches), fetched)
		}
	}

	// Worker errors are recorded per slot rather than returned, so one bad
	// batch cannot cancel the group. Auth rejection is the exception: it
	// would fail every remaining batch the same way.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(clampWorkers(workers))
	for i, batch := range batches {
		g.Go(func() error {
			if gctx.Err() != nil {
				slots[i].err = gctx.Err()
				return nil
			}
			items, meta, err := c.fetchBatch(gctx, batch)
			slots[i] = slot{items: items, retries: meta.Retries(), err: err}
			good := 0
			if err == nil {
				good = len(items)
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

	var out []WorkItemDTO
	for i, s := range slots {
		summary.Retries += s.retries
		var tr *TransientError
		switch {
		case s.err == nil:
			out = append(out, s.items...)
			summary.Succeeded++
		case errors.As(s.err, &tr):
			summary.Failed = append(summary.Failed, FailedBatch{
				Index:   i,
				Kind:    ErrorKind(s.err),
				Message: s.err.Error(),
			})
		case errors.Is(s.err, context.Canceled) || errors.Is(s.err, context.DeadlineExceeded):
			// Run-level cancellation, not a batch failure.
			summary.Cancelled = true
		default:
			summary.Failed = append(summary.Failed, FailedBatch{
				Index:   i,
				Kind:    ErrorKind(s.err),
				Message: s.err.Error(),
			})
		}
	}

	if ctx.Err() != nil {
		summary.Cancelled = true
		log.Warn().
			Int("completed", summary.Succeeded).
			Int("total", summary.TotalBatches).
			Msg("Detail fetch cancelled, keeping completed batches")
		return out, summary, ctx.Err()
	}

	log.Info().
		Int("batches", summary.TotalBatches).
		Int("failed", len(summary.Failed)).
		Int("retries", summary.Retries).
		Int("items", len(out)).
		Msg("Detail fetch complete")
	return out, summary, nil
}

// fetchBatch retrieves one id chunk under the per-batch wall clock, which
// covers every retry of that chunk.
func (c *Client) fetchBatch(ctx context.Context, ids []int) ([]WorkItemDTO, callMeta, error) {
	bctx, cancel := context.WithTimeout(ctx, c.cfg.BatchTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("ids", joinIDs(ids))
	query.Set("$expand", "relations")

	var resp batchResponse
	meta, err := c.doJSON(bctx, http.MethodGet, c.projectPath("/_apis/wit/workitems"), query, nil, &resp)
	if err != nil {
		if ctx.Err() == nil && bctx.Err() == context.DeadlineExceeded {
			err = &TransientError{Err: fmt.Errorf("batch exceeded its %s budget: %w", c.cfg.BatchTimeout, err)}
		}
		return nil, meta, err
	}
	return resp.Value, meta, nil
}

func chunkIDs(ids []int, size int) [][]int {
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]int, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func joinIDs(ids []int) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}
