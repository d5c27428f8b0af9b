package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"adoflow/internal/flow"
	"adoflow/internal/workitem"
)

// Artifact filenames under the data directory.
const (
	WorkItemsFile = "work_items.json"
	ReportFile    = "flow_metrics_report.json"
	DashboardFile = "dashboard_data.json"
)

// ErrNoData marks a read against an artifact that has never been written.
var ErrNoData = errors.New("no cached data, run fetch or sync first")

// WorkItemsDocument is the on-disk shape of the ingestion output: the items
// plus the fetch metadata the incremental sync needs.
type WorkItemsDocument struct {
	FetchedAt        time.Time                  `json:"fetched_at"`
	DaysBack         int                        `json:"days_back"`
	Partial          bool                       `json:"partial,omitempty"`
	ValidationErrors []workitem.ValidationError `json:"validation_errors,omitempty"`
	Items            []workitem.WorkItem        `json:"items"`
}

// Store reads and writes the JSON artifacts under one data directory. Writes
// go through a temp file and a rename, so a crashed run never leaves a
// half-written artifact behind. Safe for concurrent use.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory the store writes under.
func (s *Store) Dir() string { return s.dir }

// SaveWorkItems persists the ingestion output.
func (s *Store) SaveWorkItems(doc *WorkItemsDocument) error {
	return s.writeJSON(WorkItemsFile, doc)
}

// LoadWorkItems reads the cached ingestion output. Returns ErrNoData when no
// fetch has run yet.
func (s *Store) LoadWorkItems() (*WorkItemsDocument, error) {
	var doc WorkItemsDocument
	if err := s.readJSON(WorkItemsFile, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SaveReport persists the flow metrics report.
func (s *Store) SaveReport(r *flow.Report) error {
	return s.writeJSON(ReportFile, r)
}

// LoadReport reads the cached report. Returns ErrNoData when none exists.
func (s *Store) LoadReport() (*flow.Report, error) {
	var r flow.Report
	if err := s.readJSON(ReportFile, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveDashboard persists the dashboard payload.
func (s *Store) SaveDashboard(d *flow.DashboardData) error {
	return s.writeJSON(DashboardFile, d)
}

// LoadDashboard reads the cached dashboard payload.
func (s *Store) LoadDashboard() (*flow.DashboardData, error) {
	var d flow.DashboardData
	if err := s.readJSON(DashboardFile, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) writeJSON(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	raw = append(raw, '\n')

	path := filepath.Join(s.dir, name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", name, err)
	}

	log.Debug().Str("artifact", name).Int("bytes", len(raw)).Msg("Artifact written")
	return nil
}

func (s *Store) readJSON(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", name, ErrNoData)
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}
