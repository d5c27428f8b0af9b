package flow

import (
	"sort"
	"time"

	"adoflow/internal/workitem"
)

const maxAgingRows = 50

// AgingItem is one in-progress item on the aging report, oldest first.
type AgingItem struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	State       string  `json:"state"`
	AgeDays     float64 `json:"age_days"`
	DaysInState float64 `json:"days_in_state"`
	Stale       bool    `json:"stale"`
}

// agingWIP lists items still in flight at asOf, with total age and time in
// the current state. An item is stale when its age exceeds the completed
// population's P85 lead time; with no completions nothing is flagged.
func agingWIP(items []workitem.WorkItem, cls classifier, asOf time.Time, leadP85 *float64) []AgingItem {
	var rows []AgingItem
	for i := range items {
		it := &items[i]
		if cls.completedAsOf(it, asOf) {
			continue
		}
		state, ok := stateAt(it, asOf)
		if !ok {
			continue
		}
		switch cls.classifyState(state) {
		case "active", "blocked":
		default:
			continue
		}
		age := asOf.Sub(it.CreatedDate).Hours() / hoursPerDay
		if age < 0 {
			continue
		}
		inState := age
		for j := len(it.Transitions) - 1; j >= 0; j-- {
			tr := &it.Transitions[j]
			if tr.State == state && !tr.EnteredDate.After(asOf) {
				inState = asOf.Sub(tr.EnteredDate).Hours() / hoursPerDay
				break
			}
		}
		rows = append(rows, AgingItem{
			ID:          it.ID,
			Title:       it.Title,
			Type:        it.Type,
			State:       state,
			AgeDays:     round1(age),
			DaysInState: round1(inState),
			Stale:       leadP85 != nil && age > *leadP85,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AgeDays != rows[j].AgeDays {
			return rows[i].AgeDays > rows[j].AgeDays
		}
		return rows[i].ID < rows[j].ID
	})
	if len(rows) > maxAgingRows {
		rows = rows[:maxAgingRows]
	}
	return rows
}
