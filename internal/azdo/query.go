package azdo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// maxQueryIDs keeps one WIQL response under the server's 20,000-reference
// result limit.
const maxQueryIDs = 19999

// minQueryWindow stops the halving recursion. A window this small that still
// saturates the cap gets truncated with a warning instead of split further.
const minQueryWindow = time.Hour

const wiqlTimeLayout = "2006-01-02T15:04:05Z"

// QueryWorkItemIDs returns the IDs of work items changed inside the lookback
// window, most recently changed first, deduplicated. Windows that saturate
// the server result cap are split in half and re-queried, recent half first,
// so the overall order stays newest-first.
func (c *Client) QueryWorkItemIDs(ctx context.Context, daysBack int, asOf time.Time) ([]int, error) {
	if daysBack <= 0 {
		return nil, fmt.Errorf("daysBack must be positive, got %d", daysBack)
	}
	to := asOf.UTC()
	from := to.AddDate(0, 0, -daysBack)

	var ids []int
	seen := make(map[int]bool)

	var collect func(from, to time.Time) error
	collect = func(from, to time.Time) error {
		refs, err := c.queryWindow(ctx, from, to)
		if err != nil {
			return err
		}
		if len(refs) >= maxQueryIDs && to.Sub(from) > minQueryWindow {
			mid := from.Add(to.Sub(from) / 2)
			log.Debug().
				Time("from", from).
				Time("to", to).
				Int("refs", len(refs)).
				Msg("Query window saturated, splitting")
			if err := collect(mid, to); err != nil {
				return err
			}
			return collect(from, mid)
		}
		if len(refs) >= maxQueryIDs {
			log.Warn().
				Time("from", from).
				Time("to", to).
				Msg("Minimum query window still saturates the result cap, results truncated")
		}
		for _, id := range refs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		return nil
	}

	if err := collect(from, to); err != nil {
		return nil, err
	}
	log.Info().Int("count", len(ids)).Int("days_back", daysBack).Msg("Work item query complete")
	return ids, nil
}

// queryWindow runs one WIQL POST over [from, to).
func (c *Client) queryWindow(ctx context.Context, from, to time.Time) ([]int, error) {
	wiql := fmt.Sprintf(
		"SELECT [System.Id] FROM WorkItems WHERE [System.TeamProject] = '%s'"+
			" AND [System.ChangedDate] >= '%s' AND [System.ChangedDate] < '%s'"+
			" ORDER BY [System.ChangedDate] DESC",
		escapeWIQL(c.cfg.Project),
		from.UTC().Format(wiqlTimeLayout),
		to.UTC().Format(wiqlTimeLayout),
	)

	query := url.Values{}
	query.Set("timePrecision", "true")
	query.Set("$top", strconv.Itoa(maxQueryIDs))

	var resp wiqlResponse
	_, err := c.doJSON(ctx, http.MethodPost, c.projectPath("/_apis/wit/wiql"), query, wiqlRequest{Query: wiql}, &resp)
	if err != nil {
		return nil, fmt.Errorf("wiql query [%s, %s): %w", from.Format(wiqlTimeLayout), to.Format(wiqlTimeLayout), err)
	}

	ids := make([]int, 0, len(resp.WorkItems))
	for _, ref := range resp.WorkItems {
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

// escapeWIQL doubles single quotes inside a WIQL string literal.
func escapeWIQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
