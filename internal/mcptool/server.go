// Package mcptool exposes the cached flow data as MCP tools over stdio, so
// an agent can query metrics, inspect work items, and trigger refreshes
// without touching the HTTP API.
package mcptool

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"adoflow/internal/config"
	"adoflow/internal/flow"
	"adoflow/internal/ingest"
	"adoflow/internal/storage"
	"adoflow/internal/workitem"
)

// Deps wires the tool surface to the rest of the system. Refresh may be nil
// when no Azure DevOps credentials are configured; refresh_data then reports
// that instead of failing cryptically.
type Deps struct {
	Store    *storage.Store
	Settings *config.Settings
	Refresh  func(ctx context.Context, daysBack int) (*ingest.Result, error)
	Version  string
}

type server struct {
	deps Deps
}

// Serve runs the stdio MCP server until the context ends or the peer
// disconnects. Logging stays on stderr; stdout belongs to the transport.
func Serve(ctx context.Context, deps Deps) error {
	s := &server{deps: deps}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "adoflow",
		Title:   "Azure DevOps flow metrics",
		Version: deps.Version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_flow_metrics",
		Description: "Compute the flow metrics report (lead time, cycle time, throughput, WIP, flow efficiency, team metrics, Little's Law) over the cached work items. Optional window bounds and a team allow-list narrow the report.",
	}, s.getFlowMetrics)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_work_items",
		Description: "List cached work items, optionally filtered by current state, type, or assignee.",
	}, s.listWorkItems)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_work_item",
		Description: "Fetch one cached work item with its full state transition history.",
	}, s.getWorkItem)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "forecast_completion",
		Description: "Monte Carlo forecast of how many days a backlog of the given size takes to complete, sampled from historical daily throughput.",
	}, s.forecastCompletion)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "refresh_data",
		Description: "Run a fresh ingestion from Azure DevOps and update the cached work items.",
	}, s.refreshData)

	log.Info().Str("version", deps.Version).Msg("MCP server starting stdio loop")
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func (s *server) loadItems() (*storage.WorkItemsDocument, error) {
	doc, err := s.deps.Store.LoadWorkItems()
	if err != nil {
		return nil, fmt.Errorf("loading cached work items: %w", err)
	}
	return doc, nil
}

type metricsArgs struct {
	From string   `json:"from,omitempty" jsonschema:"window start date (YYYY-MM-DD), defaults to the configured throughput period"`
	To   string   `json:"to,omitempty" jsonschema:"window end date (YYYY-MM-DD), defaults to now"`
	Team []string `json:"team,omitempty" jsonschema:"assignee allow-list for the team metrics breakdown"`
}

func (s *server) getFlowMetrics(ctx context.Context, req *mcp.CallToolRequest, args metricsArgs) (*mcp.CallToolResult, *flow.Report, error) {
	doc, err := s.loadItems()
	if err != nil {
		return nil, nil, err
	}

	opts := flow.Options{
		TeamFilter:       args.Team,
		Partial:          doc.Partial,
		ValidationErrors: doc.ValidationErrors,
	}
	if opts.From, err = parseDate(args.From); err != nil {
		return nil, nil, err
	}
	if opts.To, err = parseDate(args.To); err != nil {
		return nil, nil, err
	}

	report := flow.Calculate(doc.Items, s.deps.Settings, opts)
	return nil, report, nil
}

type listArgs struct {
	State      string `json:"state,omitempty" jsonschema:"filter by current state"`
	Type       string `json:"type,omitempty" jsonschema:"filter by work item type"`
	AssignedTo string `json:"assigned_to,omitempty" jsonschema:"filter by assignee display name"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum items to return, default 50"`
}

type listResult struct {
	Total int                 `json:"total"`
	Items []workitem.WorkItem `json:"items"`
}

func (s *server) listWorkItems(ctx context.Context, req *mcp.CallToolRequest, args listArgs) (*mcp.CallToolResult, *listResult, error) {
	doc, err := s.loadItems()
	if err != nil {
		return nil, nil, err
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 50
	}

	res := &listResult{}
	for i := range doc.Items {
		it := &doc.Items[i]
		if args.State != "" && it.CurrentState != args.State {
			continue
		}
		if args.Type != "" && it.Type != args.Type {
			continue
		}
		if args.AssignedTo != "" && it.AssignedTo != args.AssignedTo {
			continue
		}
		res.Total++
		if len(res.Items) < limit {
			res.Items = append(res.Items, *it)
		}
	}
	return nil, res, nil
}

type getArgs struct {
	ID int `json:"id" jsonschema:"the work item id"`
}

func (s *server) getWorkItem(ctx context.Context, req *mcp.CallToolRequest, args getArgs) (*mcp.CallToolResult, *workitem.WorkItem, error) {
	doc, err := s.loadItems()
	if err != nil {
		return nil, nil, err
	}
	for i := range doc.Items {
		if doc.Items[i].ID == args.ID {
			return nil, &doc.Items[i], nil
		}
	}
	return nil, nil, fmt.Errorf("work item %d not in the cached set", args.ID)
}

type forecastArgs struct {
	BacklogSize int   `json:"backlog_size" jsonschema:"number of items to drain"`
	WindowDays  int   `json:"window_days,omitempty" jsonschema:"historical sampling window in days, defaults to the configured throughput period"`
	Trials      int   `json:"trials,omitempty" jsonschema:"simulation trials, default 10000"`
	Seed        int64 `json:"seed,omitempty" jsonschema:"RNG seed for reproducible forecasts"`
}

func (s *server) forecastCompletion(ctx context.Context, req *mcp.CallToolRequest, args forecastArgs) (*mcp.CallToolResult, *flow.Forecast, error) {
	if args.BacklogSize <= 0 {
		return nil, nil, fmt.Errorf("backlog_size must be positive")
	}
	doc, err := s.loadItems()
	if err != nil {
		return nil, nil, err
	}

	opts := flow.Options{}
	if args.WindowDays > 0 {
		opts.From = time.Now().UTC().AddDate(0, 0, -args.WindowDays)
	}
	fc := flow.BacklogForecast(doc.Items, s.deps.Settings, opts, args.BacklogSize, args.Trials, args.Seed)
	if fc == nil {
		return nil, nil, fmt.Errorf("no completions in the sampling window, cannot forecast")
	}
	return nil, fc, nil
}

type refreshArgs struct {
	DaysBack int `json:"days_back,omitempty" jsonschema:"lookback window in days, defaults to the configured lookback"`
}

func (s *server) refreshData(ctx context.Context, req *mcp.CallToolRequest, args refreshArgs) (*mcp.CallToolResult, *ingest.Summary, error) {
	if s.deps.Refresh == nil {
		return nil, nil, fmt.Errorf("refresh unavailable: Azure DevOps connection is not configured")
	}
	res, err := s.deps.Refresh(ctx, args.DaysBack)
	if err != nil {
		return nil, nil, fmt.Errorf("refresh failed: %w", err)
	}
	return nil, &res.Summary, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}
