package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"adoflow/internal/config"
	"adoflow/internal/logging"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose  bool
	cfg      *config.AppConfig
	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "adoflow",
	Short: "adoflow computes flow metrics for Azure DevOps work items",
	Long: `adoflow pulls work items and their state-change histories from Azure DevOps,
reconstructs each item's lifecycle, and computes flow metrics: lead time,
cycle time, throughput, WIP, flow efficiency, team metrics, and a Little's
Law cross-check. Results land as JSON artifacts, an HTTP read API, and an
MCP tool surface.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		settings = config.LoadSettings(cfg.ConfigDir)

		log.Debug().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Str("dataDir", cfg.DataDir).
			Msg("adoflow starting")
		return nil
	},
}

// Execute runs the CLI and returns the process exit code. A single signal
// context established here is the cancellation token every stage sees.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	return exitCode(err)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}
