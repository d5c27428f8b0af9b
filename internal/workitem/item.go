package workitem

import (
	"time"
)

// StateTransition is one contiguous stay in a workflow state. The last
// transition of an item that is still open has no exit.
type StateTransition struct {
	State         string     `json:"state"`
	EnteredDate   time.Time  `json:"entered_date"`
	ExitedDate    *time.Time `json:"exited_date,omitempty"`
	DurationHours *float64   `json:"duration_hours,omitempty"`
	ChangedBy     string     `json:"changed_by,omitempty"`
}

// WorkItem is the normalized record every downstream consumer reads. The
// transitions tile the item's life: each entry starts where the previous one
// ended, the first starts at CreatedDate, and only the final one may be open.
type WorkItem struct {
	ID             int               `json:"id"`
	Title          string            `json:"title"`
	Type           string            `json:"type"`
	CurrentState   string            `json:"current_state"`
	AssignedTo     string            `json:"assigned_to,omitempty"`
	CreatedDate    time.Time         `json:"created_date"`
	ClosedDate     *time.Time        `json:"closed_date,omitempty"`
	Priority       int               `json:"priority"`
	StoryPoints    *float64          `json:"story_points,omitempty"`
	EffortHours    *float64          `json:"effort_hours,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	Sprint         string            `json:"sprint,omitempty"`
	Transitions    []StateTransition `json:"transitions"`
	SyntheticClose bool              `json:"synthetic_close,omitempty"`
	URL            string            `json:"url,omitempty"`
}

// TerminalState is the state of the item's last transition.
func (w *WorkItem) TerminalState() string {
	if n := len(w.Transitions); n > 0 {
		return w.Transitions[n-1].State
	}
	return w.CurrentState
}

// FirstEntered returns when the item first entered a state matching the
// predicate, or nil if it never did.
func (w *WorkItem) FirstEntered(match func(state string) bool) *time.Time {
	for _, tr := range w.Transitions {
		if match(tr.State) {
			t := tr.EnteredDate
			return &t
		}
	}
	return nil
}

// ValidationError records one item the normalizer dropped and why.
type ValidationError struct {
	ID     int    `json:"id"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// Validation error kinds.
const (
	ValidationTemporal       = "temporal"
	ValidationMissingCreated = "missing_created"
)
