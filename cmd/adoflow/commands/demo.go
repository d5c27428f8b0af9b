package commands

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"adoflow/internal/demo"
	"adoflow/internal/flow"
	"adoflow/internal/storage"
)

var demoFlags struct {
	count    int
	days     int
	seed     int64
	scenario string
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Generate synthetic work items and compute metrics over them",
	Long: `Demo fills the data directory with a deterministic synthetic data set and
runs the full calculate path over it, so the dashboard and API can be
explored without an Azure DevOps connection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := dataStore()
		if err != nil {
			return err
		}

		items := demo.Generate(demo.Options{
			Count:    demoFlags.count,
			Days:     demoFlags.days,
			Seed:     demoFlags.seed,
			Scenario: demoFlags.scenario,
		})
		doc := &storage.WorkItemsDocument{
			FetchedAt: time.Now().UTC(),
			DaysBack:  demoFlags.days,
			Items:     items,
		}
		if err := store.SaveWorkItems(doc); err != nil {
			return err
		}

		report, _, err := calculateAndSave(store, doc, flow.Options{})
		if err != nil {
			return err
		}
		log.Info().
			Int("items", len(items)).
			Int("completed", report.Summary.CompletedItems).
			Str("scenario", demoFlags.scenario).
			Str("artifact", store.Dir()).
			Msg("Demo data ready, try: adoflow serve")
		return nil
	},
}

func init() {
	demoCmd.Flags().IntVar(&demoFlags.count, "count", 120, "items to generate")
	demoCmd.Flags().IntVar(&demoFlags.days, "days", 90, "arrival span in days")
	demoCmd.Flags().Int64Var(&demoFlags.seed, "seed", 42, "RNG seed")
	demoCmd.Flags().StringVar(&demoFlags.scenario, "scenario", "steady", "data profile: steady or chaotic")
	rootCmd.AddCommand(demoCmd)
}
