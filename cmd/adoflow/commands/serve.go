package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"adoflow/internal/flow"
	"adoflow/internal/httpapi"
	"adoflow/internal/ingest"
	"adoflow/internal/storage"
)

var serveFlags struct {
	host            string
	port            int
	open            bool
	refreshInterval time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the flow metrics read API",
	Long: `Serve exposes the cached report over HTTP: /api/metrics, /api/work-items,
/api/dashboard, /api/health, and POST /api/refresh. Refresh re-ingests from
Azure DevOps when credentials are configured; without them the API serves
the cached artifacts read-only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := dataStore()
		if err != nil {
			return err
		}

		snapshot := &httpapi.Snapshot{}
		if content, err := loadContent(store); err == nil {
			snapshot.Swap(content)
		} else if !errors.Is(err, storage.ErrNoData) {
			return err
		} else {
			log.Warn().Msg("No cached data yet, API starts empty until a refresh or sync")
		}

		var refresh httpapi.RefreshFunc
		if err := cfg.RequireAzureDevOps(); err == nil {
			refresh = refreshCycle(store)
		} else {
			log.Warn().Msg("Azure DevOps connection not configured, refresh disabled")
		}

		srv := httpapi.NewServer(httpapi.Config{
			Host:            serveFlags.host,
			Port:            serveFlags.port,
			RefreshInterval: serveFlags.refreshInterval,
			Version:         Version,
		}, snapshot, refresh)

		if serveFlags.open {
			url := fmt.Sprintf("http://%s:%d/api/health", hostForURL(serveFlags.host), serveFlags.port)
			go func() {
				time.Sleep(300 * time.Millisecond)
				if err := browser.OpenURL(url); err != nil {
					log.Debug().Err(err).Str("url", url).Msg("Could not open browser")
				}
			}()
		}

		return srv.Start(cmd.Context())
	},
}

// refreshCycle is the full ingestion+calculate pass the API triggers. Each
// cycle writes the artifacts and returns the content for the snapshot swap.
func refreshCycle(store *storage.Store) httpapi.RefreshFunc {
	return func(ctx context.Context) (*httpapi.Content, error) {
		res, err := runIngestion(ctx, store, ingest.Options{
			DaysBack: settings.Parameters.DefaultLookbackDays,
		})
		if err != nil {
			return nil, err
		}

		doc := &storage.WorkItemsDocument{
			FetchedAt:        res.Summary.Started,
			Partial:          res.Summary.Partial,
			ValidationErrors: res.ValidationErrors,
			Items:            res.Items,
		}
		report, data, err := calculateAndSave(store, doc, flow.Options{})
		if err != nil {
			return nil, err
		}
		return &httpapi.Content{
			Report:    report,
			Dashboard: data,
			Items:     res.Items,
			LoadedAt:  time.Now().UTC(),
		}, nil
	}
}

// loadContent assembles the initial snapshot from the artifacts on disk.
func loadContent(store *storage.Store) (*httpapi.Content, error) {
	doc, err := store.LoadWorkItems()
	if err != nil {
		return nil, err
	}
	content := &httpapi.Content{Items: doc.Items, LoadedAt: doc.FetchedAt}

	if report, err := store.LoadReport(); err == nil {
		content.Report = report
	} else if !errors.Is(err, storage.ErrNoData) {
		return nil, err
	}
	if data, err := store.LoadDashboard(); err == nil {
		content.Dashboard = data
	} else if !errors.Is(err, storage.ErrNoData) {
		return nil, err
	}
	return content, nil
}

func hostForURL(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "localhost"
	}
	return host
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.host, "host", "127.0.0.1", "listen host")
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 8747, "listen port")
	serveCmd.Flags().BoolVar(&serveFlags.open, "open", false, "open the API in a browser after start")
	serveCmd.Flags().DurationVar(&serveFlags.refreshInterval, "refresh-interval", 0, "periodic background refresh (0 = manual only)")
	rootCmd.AddCommand(serveCmd)
}
