package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"adoflow/internal/workitem"
)

// errorBody is the JSON shape of every non-2xx response. TraceID is filled
// on server-side failures so an operator can find the matching log lines.
type errorBody struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Writing response failed")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	body := errorBody{Error: msg}
	if status >= 500 {
		body.TraceID = traceID(r.Context())
	}
	writeJSON(w, status, body)
}

func (s *Server) handleMetricsReport(w http.ResponseWriter, r *http.Request) {
	c := s.snapshot.Load()
	if c == nil || c.Report == nil {
		writeError(w, r, http.StatusServiceUnavailable, "no report available yet, trigger a refresh or run sync")
		return
	}
	writeJSON(w, http.StatusOK, c.Report)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	c := s.snapshot.Load()
	if c == nil || c.Dashboard == nil {
		writeError(w, r, http.StatusServiceUnavailable, "no dashboard data available yet")
		return
	}
	writeJSON(w, http.StatusOK, c.Dashboard)
}

// workItemSummary is the list form of a work item: full records stay on the
// item endpoint, the list carries enough to render a table.
type workItemSummary struct {
	ID              int        `json:"id"`
	Title           string     `json:"title"`
	Type            string     `json:"type"`
	CurrentState    string     `json:"current_state"`
	AssignedTo      string     `json:"assigned_to,omitempty"`
	CreatedDate     time.Time  `json:"created_date"`
	ClosedDate      *time.Time `json:"closed_date,omitempty"`
	TransitionCount int        `json:"transition_count"`
	FirstState      string     `json:"first_state,omitempty"`
	LastState       string     `json:"last_state,omitempty"`
}

func summarize(it *workitem.WorkItem) workItemSummary {
	s := workItemSummary{
		ID:              it.ID,
		Title:           it.Title,
		Type:            it.Type,
		CurrentState:    it.CurrentState,
		AssignedTo:      it.AssignedTo,
		CreatedDate:     it.CreatedDate,
		ClosedDate:      it.ClosedDate,
		TransitionCount: len(it.Transitions),
	}
	if len(it.Transitions) > 0 {
		s.FirstState = it.Transitions[0].State
		s.LastState = it.Transitions[len(it.Transitions)-1].State
	}
	return s
}

func (s *Server) handleWorkItems(w http.ResponseWriter, r *http.Request) {
	c := s.snapshot.Load()
	if c == nil {
		writeError(w, r, http.StatusServiceUnavailable, "no work item data available yet")
		return
	}

	state := r.URL.Query().Get("state")
	itemType := r.URL.Query().Get("type")
	assignee := r.URL.Query().Get("assigned_to")

	summaries := make([]workItemSummary, 0, len(c.Items))
	for i := range c.Items {
		it := &c.Items[i]
		if state != "" && it.CurrentState != state {
			continue
		}
		if itemType != "" && it.Type != itemType {
			continue
		}
		if assignee != "" && it.AssignedTo != assignee {
			continue
		}
		summaries = append(summaries, summarize(it))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(summaries),
		"items": summaries,
	})
}

func (s *Server) handleWorkItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "work item id must be an integer")
		return
	}
	c := s.snapshot.Load()
	if c == nil {
		writeError(w, r, http.StatusServiceUnavailable, "no work item data available yet")
		return
	}
	for i := range c.Items {
		if c.Items[i].ID == id {
			writeJSON(w, http.StatusOK, c.Items[i])
			return
		}
	}
	writeError(w, r, http.StatusNotFound, "work item not found")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	c := s.snapshot.Load()
	body := map[string]any{
		"status":         "ok",
		"data_available": c != nil && c.Report != nil,
		"refreshing":     s.snapshot.Refreshing(),
		"version":        s.cfg.Version,
	}
	if c != nil {
		body["loaded_at"] = c.LoadedAt
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, r, http.StatusServiceUnavailable, "refresh is not configured on this server")
		return
	}
	if !s.snapshot.BeginRefresh() {
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "refresh_in_progress"})
		return
	}

	// The cycle runs detached from the request: a closed client connection
	// must not abort an ingestion halfway through.
	go s.runRefresh()

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "refresh_started"})
}

// runRefresh executes one ingestion+calculate cycle and publishes the result.
// Caller must hold the refresh slot.
func (s *Server) runRefresh() {
	defer s.snapshot.EndRefresh()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RefreshTimeout)
	defer cancel()

	content, err := s.refresh(ctx)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.observeRefresh("failure", elapsed)
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("Refresh failed, keeping previous snapshot")
		return
	}

	s.snapshot.Swap(content)
	s.metrics.itemsServed.Set(float64(len(content.Items)))
	s.metrics.observeRefresh("success", elapsed)
	log.Info().Int("items", len(content.Items)).Dur("elapsed", elapsed).Msg("Refresh complete")
}
