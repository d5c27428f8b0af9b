package workitem

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"adoflow/internal/azdo"
	"adoflow/internal/config"
)

// SyntheticCloseState is appended when an item has a closed date but its
// history never reaches a configured completion state.
const SyntheticCloseState = "Done"

// defaultPriority fills records whose priority field is absent.
const defaultPriority = 3

// Result carries the normalized items plus everything that was dropped.
type Result struct {
	Items           []WorkItem
	Errors          []ValidationError
	SyntheticCloses int
}

// NormalizeAll normalizes each detail record with its history. Input order is
// preserved, invalid items are dropped into Errors, and the whole pass is
// deterministic: the same inputs produce byte-identical output.
func NormalizeAll(details []azdo.WorkItemDTO, histories map[int][]azdo.StateChange, states config.StateConfiguration) Result {
	var res Result
	for _, d := range details {
		item, verr := Normalize(d, histories[d.ID], states)
		if verr != nil {
			log.Debug().Int("id", verr.ID).Str("kind", verr.Kind).Str("detail", verr.Detail).Msg("Dropping work item")
			res.Errors = append(res.Errors, *verr)
			continue
		}
		if item.SyntheticClose {
			res.SyntheticCloses++
		}
		res.Items = append(res.Items, item)
	}
	if res.SyntheticCloses > 0 {
		log.Info().Int("count", res.SyntheticCloses).Msg("Applied synthetic close transitions")
	}
	return res
}

// Normalize builds one WorkItem from a detail record and its state history.
//
// The transition sequence is seeded at the created date with the state the
// history opens in (or the record's current state when there is no history),
// consecutive duplicates are coalesced, and the closed date finishes the
// final transition. An item whose history contradicts its own creation or
// close dates is rejected rather than patched.
func Normalize(detail azdo.WorkItemDTO, history []azdo.StateChange, states config.StateConfiguration) (WorkItem, *ValidationError) {
	created, err := azdo.ParseTime(detail.Fields.CreatedDate)
	if err != nil {
		return WorkItem{}, &ValidationError{
			ID:     detail.ID,
			Kind:   ValidationMissingCreated,
			Detail: "created date missing or unparseable",
		}
	}

	var closed *time.Time
	if detail.Fields.ClosedDate != "" {
		t, err := azdo.ParseTime(detail.Fields.ClosedDate)
		if err != nil {
			log.Debug().Int("id", detail.ID).Str("value", detail.Fields.ClosedDate).Msg("Ignoring unparseable closed date")
		} else {
			closed = &t
		}
	}
	if closed != nil && closed.Before(created) {
		return WorkItem{}, &ValidationError{
			ID:     detail.ID,
			Kind:   ValidationTemporal,
			Detail: fmt.Sprintf("closed date %s precedes created date %s", closed.Format(time.RFC3339), created.Format(time.RFC3339)),
		}
	}

	for i, h := range history {
		if h.Date.Before(created) {
			return WorkItem{}, &ValidationError{
				ID:     detail.ID,
				Kind:   ValidationTemporal,
				Detail: fmt.Sprintf("state change at %s predates creation %s", h.Date.Format(time.RFC3339), created.Format(time.RFC3339)),
			}
		}
		if i > 0 && h.Date.Before(history[i-1].Date) {
			return WorkItem{}, &ValidationError{
				ID:     detail.ID,
				Kind:   ValidationTemporal,
				Detail: "state changes out of order",
			}
		}
	}

	transitions, syntheticClose, verr := buildTransitions(detail, history, states, created, closed)
	if verr != nil {
		return WorkItem{}, verr
	}

	item := WorkItem{
		ID:             detail.ID,
		Title:          detail.Fields.Title,
		Type:           detail.Fields.WorkItemType,
		CurrentState:   transitions[len(transitions)-1].State,
		CreatedDate:    created,
		ClosedDate:     closed,
		Priority:       detail.Fields.Priority,
		StoryPoints:    detail.Fields.StoryPoints,
		EffortHours:    detail.Fields.EffortHours,
		Tags:           splitTags(detail.Fields.Tags),
		Sprint:         detail.Fields.Iteration,
		Transitions:    transitions,
		SyntheticClose: syntheticClose,
		URL:            detail.URL,
	}
	if detail.Fields.AssignedTo != nil {
		item.AssignedTo = detail.Fields.AssignedTo.DisplayName
	}
	if item.Priority == 0 {
		item.Priority = defaultPriority
	}
	return item, nil
}

func buildTransitions(detail azdo.WorkItemDTO, history []azdo.StateChange, states config.StateConfiguration, created time.Time, closed *time.Time) ([]StateTransition, bool, *ValidationError) {
	// Seed at creation with the state the history opens in. The first
	// history entry is normally the creation revision itself, so its state
	// begins at the created date and the entry is consumed here.
	seed := StateTransition{State: detail.Fields.State, EnteredDate: created}
	rest := history
	if len(history) > 0 {
		seed.State = history[0].State
		seed.ChangedBy = history[0].ChangedBy
		rest = history[1:]
	}

	transitions := []StateTransition{seed}
	for _, h := range rest {
		last := &transitions[len(transitions)-1]
		if h.State == last.State {
			continue
		}
		closeTransition(last, h.Date)
		transitions = append(transitions, StateTransition{
			State:       h.State,
			EnteredDate: h.Date,
			ChangedBy:   h.ChangedBy,
		})
	}

	syntheticClose := false
	if closed != nil {
		last := &transitions[len(transitions)-1]
		if closed.Before(last.EnteredDate) {
			return nil, false, &ValidationError{
				ID:     detail.ID,
				Kind:   ValidationTemporal,
				Detail: "closed date precedes the final state entry",
			}
		}
		closeTransition(last, *closed)
		if !states.IsCompleted(last.State) {
			transitions = append(transitions, StateTransition{
				State:       SyntheticCloseState,
				EnteredDate: *closed,
			})
			closeTransition(&transitions[len(transitions)-1], *closed)
			syntheticClose = true
		}
	}

	return transitions, syntheticClose, nil
}

func closeTransition(tr *StateTransition, at time.Time) {
	exited := at
	tr.ExitedDate = &exited
	hours := exited.Sub(tr.EnteredDate).Hours()
	tr.DurationHours = &hours
}

// splitTags turns the "alpha; beta" wire form into a sorted set.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	var tags []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	slices.Sort(tags)
	return slices.Compact(tags)
}
