package azdo

import (
	"fmt"
	"strconv"
	"time"
)

// wiqlRequest is the POST body for the WIQL endpoint.
type wiqlRequest struct {
	Query string `json:"query"`
}

// wiqlResponse carries ID references only; fields come from the batch endpoint.
type wiqlResponse struct {
	QueryType string `json:"queryType"`
	WorkItems []struct {
		ID  int    `json:"id"`
		URL string `json:"url"`
	} `json:"workItems"`
}

// IdentityRef is the common identity shape used in fields and update records.
type IdentityRef struct {
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
}

// WorkItemFields maps the reference-name field keys the pipeline reads.
type WorkItemFields struct {
	Title        string       `json:"System.Title"`
	WorkItemType string       `json:"System.WorkItemType"`
	State        string       `json:"System.State"`
	CreatedDate  string       `json:"System.CreatedDate"`
	ChangedDate  string       `json:"System.ChangedDate"`
	ClosedDate   string       `json:"Microsoft.VSTS.Common.ClosedDate"`
	AssignedTo   *IdentityRef `json:"System.AssignedTo"`
	Priority     int          `json:"Microsoft.VSTS.Common.Priority"`
	StoryPoints  *float64     `json:"Microsoft.VSTS.Scheduling.StoryPoints"`
	EffortHours  *float64     `json:"Microsoft.VSTS.Scheduling.CompletedWork"`
	Tags         string       `json:"System.Tags"`
	Iteration    string       `json:"System.IterationPath"`
}

// WorkItemDTO is one record from the batch details endpoint.
type WorkItemDTO struct {
	ID     int            `json:"id"`
	Rev    int            `json:"rev"`
	Fields WorkItemFields `json:"fields"`
	URL    string         `json:"url"`
}

type batchResponse struct {
	Count int           `json:"count"`
	Value []WorkItemDTO `json:"value"`
}

// fieldUpdate is one old/new pair inside an update record. Values arrive
// untyped because the endpoint mixes strings, numbers, and identity objects.
type fieldUpdate struct {
	OldValue any `json:"oldValue"`
	NewValue any `json:"newValue"`
}

type updateDTO struct {
	ID          int                    `json:"id"`
	Rev         int                    `json:"rev"`
	RevisedBy   IdentityRef            `json:"revisedBy"`
	RevisedDate string                 `json:"revisedDate"`
	Fields      map[string]fieldUpdate `json:"fields"`
}

type updatesResponse struct {
	Count int         `json:"count"`
	Value []updateDTO `json:"value"`
}

type projectDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// errorResponse is the {"message": ...} body Azure DevOps sends with 4xx.
type errorResponse struct {
	Message   string `json:"message"`
	TypeKey   string `json:"typeKey"`
	ErrorCode int    `json:"errorCode"`
}

// StateChange is one state entry extracted from an item's update history,
// ordered ascending by date.
type StateChange struct {
	State     string    `json:"state"`
	ChangedBy string    `json:"changed_by"`
	Date      time.Time `json:"changed_date"`
}

// ParseTime parses the timestamp formats Azure DevOps emits. Fractional
// seconds vary per record and some fields omit the zone.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.999999999", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// asString converts a loosely typed update value to a string.
func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
