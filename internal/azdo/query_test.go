package azdo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func wiqlIDsResponse(ids []int) []byte {
	type ref struct {
		ID  int    `json:"id"`
		URL string `json:"url"`
	}
	refs := make([]ref, len(ids))
	for i, id := range ids {
		refs[i] = ref{ID: id, URL: fmt.Sprintf("https://x/_apis/wit/workItems/%d", id)}
	}
	body, _ := json.Marshal(map[string]any{"queryType": "flat", "workItems": refs})
	return body
}

func TestQueryWorkItemIDs(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if !strings.HasPrefix(r.URL.Path, "/Phoenix/_apis/wit/wiql") {
			t.Errorf("path = %s, want project-scoped wiql route", r.URL.Path)
		}
		if r.URL.Query().Get("timePrecision") != "true" {
			t.Error("timePrecision=true missing from query")
		}
		if r.URL.Query().Get("api-version") != "7.1" {
			t.Errorf("api-version = %s, want 7.1", r.URL.Query().Get("api-version"))
		}
		var req wiqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding wiql body: %v", err)
		}
		gotQuery = req.Query
		w.Write(wiqlIDsResponse([]int{42, 17, 9}))
	}))
	defer srv.Close()

	ids, err := testClient(srv).QueryWorkItemIDs(context.Background(), 30, time.Now())
	if err != nil {
		t.Fatalf("QueryWorkItemIDs() error = %v", err)
	}
	if !slices.Equal(ids, []int{42, 17, 9}) {
		t.Errorf("ids = %v, want server order preserved", ids)
	}
	for _, fragment := range []string{
		"[System.TeamProject] = 'Phoenix'",
		"[System.ChangedDate] >=",
		"ORDER BY [System.ChangedDate] DESC",
	} {
		if !strings.Contains(gotQuery, fragment) {
			t.Errorf("wiql %q missing %q", gotQuery, fragment)
		}
	}
}

func TestQueryWorkItemIDsSplitsSaturatedWindow(t *testing.T) {
	saturated := make([]int, maxQueryIDs)
	for i := range saturated {
		saturated[i] = i + 100000
	}

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			// Full window saturates the cap and must be split.
			w.Write(wiqlIDsResponse(saturated))
		case 2:
			// Recent half, queried first to keep newest-first ordering.
			w.Write(wiqlIDsResponse([]int{1, 2, 3}))
		default:
			// Older half overlaps the recent one at id 3.
			w.Write(wiqlIDsResponse([]int{3, 4}))
		}
	}))
	defer srv.Close()

	ids, err := testClient(srv).QueryWorkItemIDs(context.Background(), 30, time.Now())
	if err != nil {
		t.Fatalf("QueryWorkItemIDs() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("server calls = %d, want 3 (one saturated, two halves)", got)
	}
	if !slices.Equal(ids, []int{1, 2, 3, 4}) {
		t.Errorf("ids = %v, want deduplicated [1 2 3 4]", ids)
	}
}

func TestQueryWorkItemIDsRejectsNonPositiveLookback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server must not be called for an invalid lookback")
	}))
	defer srv.Close()

	if _, err := testClient(srv).QueryWorkItemIDs(context.Background(), 0, time.Now()); err == nil {
		t.Error("QueryWorkItemIDs(0 days) = nil error, want rejection")
	}
}

func TestEscapeWIQL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Phoenix", "Phoenix"},
		{"O'Brien's Project", "O''Brien''s Project"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := escapeWIQL(tt.in); got != tt.want {
			t.Errorf("escapeWIQL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
