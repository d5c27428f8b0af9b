package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"adoflow/internal/ingest"
	"adoflow/internal/mcptool"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve flow metrics tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := dataStore()
		if err != nil {
			return err
		}

		deps := mcptool.Deps{
			Store:    store,
			Settings: settings,
			Version:  Version,
		}
		if err := cfg.RequireAzureDevOps(); err == nil {
			deps.Refresh = func(ctx context.Context, daysBack int) (*ingest.Result, error) {
				return runIngestion(ctx, store, ingest.Options{
					DaysBack: lookbackOrDefault(daysBack),
				})
			}
		} else {
			log.Warn().Msg("Azure DevOps connection not configured, refresh_data tool disabled")
		}

		return mcptool.Serve(cmd.Context(), deps)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
