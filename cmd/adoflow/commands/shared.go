package commands

import (
	"context"
	"errors"
	"time"

	"adoflow/internal/azdo"
	"adoflow/internal/flow"
	"adoflow/internal/ingest"
	"adoflow/internal/storage"
	"adoflow/internal/workitem"
)

func newClient() *azdo.Client {
	return azdo.NewClient(azdo.Config{
		OrgURL:    cfg.AzureDevOps.OrgURL,
		Project:   cfg.AzureDevOps.Project,
		PAT:       cfg.AzureDevOps.PAT,
		RateLimit: cfg.AzureDevOps.RateLimit,
		UserAgent: "adoflow/" + Version,
	})
}

func newEngine() *ingest.Engine {
	return ingest.New(newClient(), settings.States)
}

func dataStore() (*storage.Store, error) {
	return storage.New(cfg.DataDir)
}

// runIngestion executes one engine run and persists its output. On
// cancellation the partial result is saved too, so a follow-up calculate can
// still work with what arrived.
func runIngestion(ctx context.Context, store *storage.Store, opts ingest.Options) (*ingest.Result, error) {
	res, runErr := newEngine().Run(ctx, opts)
	if res == nil {
		return nil, runErr
	}

	doc := &storage.WorkItemsDocument{
		FetchedAt:        res.Summary.Started,
		DaysBack:         opts.DaysBack,
		Partial:          res.Summary.Partial,
		ValidationErrors: res.ValidationErrors,
		Items:            res.Items,
	}
	if err := store.SaveWorkItems(doc); err != nil {
		if runErr != nil {
			return res, runErr
		}
		return res, err
	}
	return res, runErr
}

// calculateAndSave builds the report and dashboard off one document and
// writes both artifacts.
func calculateAndSave(store *storage.Store, doc *storage.WorkItemsDocument, opts flow.Options) (*flow.Report, *flow.DashboardData, error) {
	opts.Partial = opts.Partial || doc.Partial
	if opts.ValidationErrors == nil {
		opts.ValidationErrors = doc.ValidationErrors
	}

	data := flow.BuildDashboard(doc.Items, settings, flow.DashboardOptions{
		Options:         opts,
		ForecastBacklog: countOpen(doc.Items),
		Trials:          10000,
		Diagram:         true,
	})
	if err := store.SaveReport(data.Report); err != nil {
		return nil, nil, err
	}
	if err := store.SaveDashboard(data); err != nil {
		return nil, nil, err
	}
	return data.Report, data, nil
}

func countOpen(items []workitem.WorkItem) int {
	open := 0
	for i := range items {
		if items[i].ClosedDate == nil {
			open++
		}
	}
	return open
}

// lookbackOrDefault resolves a --days-back flag against the configured
// default.
func lookbackOrDefault(daysBack int) int {
	if daysBack > 0 {
		return daysBack
	}
	return settings.Parameters.DefaultLookbackDays
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, &ExitError{Code: ExitConfigError, Message: "date must be YYYY-MM-DD", Err: err}
	}
	return t.UTC(), nil
}
