package visuals

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"adoflow/internal/config"
	"adoflow/internal/workitem"
)

// StateDiagram renders the observed workflow as a Mermaid state diagram.
// Edge labels carry transition counts; completion states drain to [*].
func StateDiagram(items []workitem.WorkItem, states config.StateConfiguration) string {
	type edge struct{ from, to string }

	edges := map[edge]int{}
	starts := map[string]int{}
	ends := map[string]int{}
	for i := range items {
		trs := items[i].Transitions
		if len(trs) == 0 {
			continue
		}
		starts[trs[0].State]++
		for j := 0; j+1 < len(trs); j++ {
			edges[edge{trs[j].State, trs[j+1].State}]++
		}
		if last := trs[len(trs)-1].State; states.IsCompleted(last) {
			ends[last]++
		}
	}
	if len(starts) == 0 {
		return ""
	}

	keys := make([]edge, 0, len(edges))
	for e := range edges {
		keys = append(keys, e)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("stateDiagram-v2\n")
	for _, s := range slices.Sorted(maps.Keys(starts)) {
		sb.WriteString(fmt.Sprintf("    [*] --> %s: %d\n", safeState(s), starts[s]))
	}
	for _, e := range keys {
		sb.WriteString(fmt.Sprintf("    %s --> %s: %d\n", safeState(e.from), safeState(e.to), edges[e]))
	}
	for _, s := range slices.Sorted(maps.Keys(ends)) {
		sb.WriteString(fmt.Sprintf("    %s --> [*]: %d\n", safeState(s), ends[s]))
	}
	sb.WriteString("```")
	return sb.String()
}

// WIPRunChart creates a Mermaid xychart-beta line chart of daily WIP counts.
func WIPRunChart(dates []time.Time, counts []int) string {
	if len(dates) == 0 || len(dates) != len(counts) {
		return ""
	}

	// Mermaid xychart starts overflowing/overlapping text around 60 points
	subsampleRate := 1
	if len(dates) > 60 {
		subsampleRate = int(math.Ceil(float64(len(dates)) / 60.0))
	}

	var labels []string
	var values []string
	maxVal := 0
	for i := range dates {
		if i%subsampleRate == 0 || i == len(dates)-1 {
			labels = append(labels, fmt.Sprintf("%q", dates[i].Format("Jan02")))
			values = append(values, fmt.Sprintf("%d", counts[i]))
		}
		if counts[i] > maxVal {
			maxVal = counts[i]
		}
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Work In Progress\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Active Items\" 0 --> %d\n", maxVal+headroom(maxVal)))
	sb.WriteString(fmt.Sprintf("    line [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// ThroughputChart creates a Mermaid bar chart of completions per bucket.
func ThroughputChart(labels []string, counts []int) string {
	if len(labels) == 0 || len(labels) != len(counts) {
		return ""
	}

	var quoted []string
	var values []string
	maxVal := 0
	for i, label := range labels {
		quoted = append(quoted, fmt.Sprintf("%q", label))
		values = append(values, fmt.Sprintf("%d", counts[i]))
		if counts[i] > maxVal {
			maxVal = counts[i]
		}
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"Weekly Throughput\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(quoted, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Items Completed\" 0 --> %d\n", maxVal+headroom(maxVal)))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// AgingChart creates a Mermaid bar chart of in-flight item ages in days.
func AgingChart(labels []string, ages []float64) string {
	if len(labels) == 0 || len(labels) != len(ages) {
		return ""
	}

	// Limit to 20 items to avoid overwhelming the text chart context
	limit := len(labels)
	if limit > 20 {
		limit = 20
	}

	var quoted []string
	var values []string
	maxVal := 0.0
	for i := 0; i < limit; i++ {
		quoted = append(quoted, fmt.Sprintf("%q", labels[i]))
		values = append(values, fmt.Sprintf("%.1f", ages[i]))
		if ages[i] > maxVal {
			maxVal = ages[i]
		}
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString("    title \"WIP Aging (Top 20 Active Items)\"\n")
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(quoted, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis \"Age (Days)\" 0 --> %d\n", int(math.Ceil(maxVal*1.1))+1))
	sb.WriteString(fmt.Sprintf("    bar [%s]\n", strings.Join(values, ", ")))
	sb.WriteString("```")
	return sb.String()
}

// safeState rewrites a state name into a Mermaid-safe identifier.
func safeState(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

func headroom(maxVal int) int {
	return int(math.Max(1, float64(maxVal)*0.2))
}
