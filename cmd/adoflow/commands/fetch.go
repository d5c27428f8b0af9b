package commands

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"adoflow/internal/ingest"
)

var fetchFlags struct {
	daysBack     int
	historyLimit int
	workers      int
	timeout      time.Duration
	progress     bool
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Ingest work items and histories from Azure DevOps",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireAzureDevOps(); err != nil {
			return err
		}
		store, err := dataStore()
		if err != nil {
			return err
		}

		opts := ingest.Options{
			DaysBack:     lookbackOrDefault(fetchFlags.daysBack),
			HistoryLimit: fetchFlags.historyLimit,
			Workers:      fetchFlags.workers,
			Timeout:      fetchFlags.timeout,
		}

		var renderer *progressRenderer
		if fetchFlags.progress {
			renderer = newProgressRenderer()
			opts.Progress = renderer.Channel()
			renderer.Start()
		}

		res, err := runIngestion(cmd.Context(), store, opts)
		if renderer != nil {
			renderer.Stop()
		}
		if err != nil {
			if isCancellation(err) && res != nil {
				log.Warn().Int("items", len(res.Items)).Msg("Fetch cancelled, partial data saved")
			}
			return err
		}

		log.Info().
			Int("items", len(res.Items)).
			Int("dropped", res.Summary.Dropped).
			Bool("partial", res.Summary.Partial).
			Str("artifact", store.Dir()).
			Msg("Fetch complete")
		return nil
	},
}

func init() {
	fetchCmd.Flags().IntVar(&fetchFlags.daysBack, "days-back", 0, "lookback window in days (default: configured lookback)")
	fetchCmd.Flags().IntVar(&fetchFlags.historyLimit, "history-limit", 0, "cap revision entries fetched per item (0 = all)")
	fetchCmd.Flags().IntVar(&fetchFlags.workers, "workers", 0, "parallel fetch workers, 1-20 (default 5)")
	fetchCmd.Flags().DurationVar(&fetchFlags.timeout, "timeout", 0, "whole-ingestion timeout (default 10m)")
	fetchCmd.Flags().BoolVar(&fetchFlags.progress, "progress", false, "render fetch progress on stderr")
	rootCmd.AddCommand(fetchCmd)
}
