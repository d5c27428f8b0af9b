package commands

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"adoflow/internal/flow"
	"adoflow/internal/ingest"
	"adoflow/internal/storage"
	"adoflow/internal/workitem"
)

var syncFlags struct {
	daysBack     int
	historyLimit int
	workers      int
	timeout      time.Duration
	progress     bool
	full         bool
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch fresh data and recompute the metrics in one pass",
	Long: `Sync runs fetch followed by calculate. When a previous fetch exists the
lookback narrows to the time since that fetch (plus a day of slack) and the
fresh items merge over the cached set by id; --full forces a complete
re-fetch over the configured lookback instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireAzureDevOps(); err != nil {
			return err
		}
		store, err := dataStore()
		if err != nil {
			return err
		}

		previous, err := store.LoadWorkItems()
		if err != nil && !errors.Is(err, storage.ErrNoData) {
			return err
		}

		opts := ingest.Options{
			DaysBack:     lookbackOrDefault(syncFlags.daysBack),
			HistoryLimit: syncFlags.historyLimit,
			Workers:      syncFlags.workers,
			Timeout:      syncFlags.timeout,
		}
		if previous != nil && !syncFlags.full && syncFlags.daysBack == 0 {
			opts.DaysBack = incrementalLookback(previous.FetchedAt)
			log.Info().Int("days_back", opts.DaysBack).Time("last_fetch", previous.FetchedAt).Msg("Incremental sync")
		}

		var renderer *progressRenderer
		if syncFlags.progress {
			renderer = newProgressRenderer()
			opts.Progress = renderer.Channel()
			renderer.Start()
		}

		res, runErr := newEngine().Run(cmd.Context(), opts)
		if renderer != nil {
			renderer.Stop()
		}
		if runErr != nil && !(isCancellation(runErr) && res != nil) {
			return runErr
		}

		doc := &storage.WorkItemsDocument{
			FetchedAt:        res.Summary.Started,
			DaysBack:         opts.DaysBack,
			Partial:          res.Summary.Partial,
			ValidationErrors: res.ValidationErrors,
			Items:            res.Items,
		}
		if previous != nil && !syncFlags.full {
			doc.Items = mergeByID(previous.Items, res.Items)
			doc.ValidationErrors = append(previous.ValidationErrors, res.ValidationErrors...)
		}
		if err := store.SaveWorkItems(doc); err != nil {
			return err
		}
		if runErr != nil {
			return runErr
		}

		report, _, err := calculateAndSave(store, doc, flow.Options{})
		if err != nil {
			return err
		}
		log.Info().
			Int("items", report.Summary.TotalItems).
			Int("fresh", len(res.Items)).
			Int("completed", report.Summary.CompletedItems).
			Msg("Sync complete")
		return nil
	},
}

// incrementalLookback converts the time since the last fetch into a lookback
// window with a day of slack for clock drift and in-flight edits.
func incrementalLookback(lastFetch time.Time) int {
	days := int(math.Ceil(time.Since(lastFetch).Hours()/24)) + 1
	if days < 1 {
		days = 1
	}
	return days
}

// mergeByID overlays fresh items on the cached set. Fresh wins: a re-fetched
// item carries newer state and history. Cached order is kept, fresh-only
// items append in their fetch order.
func mergeByID(cached, fresh []workitem.WorkItem) []workitem.WorkItem {
	freshByID := make(map[int]int, len(fresh))
	for i := range fresh {
		freshByID[fresh[i].ID] = i
	}

	merged := make([]workitem.WorkItem, 0, len(cached)+len(fresh))
	seen := make(map[int]bool, len(cached))
	for i := range cached {
		id := cached[i].ID
		seen[id] = true
		if j, ok := freshByID[id]; ok {
			merged = append(merged, fresh[j])
			continue
		}
		merged = append(merged, cached[i])
	}
	for i := range fresh {
		if !seen[fresh[i].ID] {
			merged = append(merged, fresh[i])
		}
	}
	return merged
}

func init() {
	syncCmd.Flags().IntVar(&syncFlags.daysBack, "days-back", 0, "explicit lookback window in days (disables incremental narrowing)")
	syncCmd.Flags().IntVar(&syncFlags.historyLimit, "history-limit", 0, "cap revision entries fetched per item (0 = all)")
	syncCmd.Flags().IntVar(&syncFlags.workers, "workers", 0, "parallel fetch workers, 1-20 (default 5)")
	syncCmd.Flags().DurationVar(&syncFlags.timeout, "timeout", 0, "whole-ingestion timeout (default 10m)")
	syncCmd.Flags().BoolVar(&syncFlags.progress, "progress", false, "render fetch progress on stderr")
	syncCmd.Flags().BoolVar(&syncFlags.full, "full", false, "ignore the cached fetch and re-ingest the whole lookback")
	rootCmd.AddCommand(syncCmd)
}
