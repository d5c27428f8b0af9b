package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog/log"
)

// Store filenames under the config directory.
const (
	WorkflowStatesFile        = "workflow_states.json"
	WorkItemTypesFile         = "work_item_types.json"
	CalculationParametersFile = "calculation_parameters.json"
)

// StateConfiguration classifies workflow states into the three sets the
// calculator needs. Lookups are case-sensitive; states absent from all sets
// count toward none of the metrics.
type StateConfiguration struct {
	ActiveStates     []string `json:"active_states"`
	CompletionStates []string `json:"completion_states"`
	BlockedStates    []string `json:"blocked_states"`

	active    map[string]bool
	completed map[string]bool
	blocked   map[string]bool
}

// NewStateConfiguration builds a configuration with lookup sets ready.
func NewStateConfiguration(active, completion, blocked []string) StateConfiguration {
	sc := StateConfiguration{
		ActiveStates:     dedupe(active),
		CompletionStates: dedupe(completion),
		BlockedStates:    dedupe(blocked),
	}
	sc.buildLookups()
	return sc
}

func (sc *StateConfiguration) buildLookups() {
	sc.active = toSet(sc.ActiveStates)
	sc.completed = toSet(sc.CompletionStates)
	sc.blocked = toSet(sc.BlockedStates)
}

// IsActive reports whether state counts as in-progress.
func (sc *StateConfiguration) IsActive(state string) bool { return sc.active[state] }

// IsCompleted reports whether state counts as done.
func (sc *StateConfiguration) IsCompleted(state string) bool { return sc.completed[state] }

// IsBlocked reports whether state counts as blocked.
func (sc *StateConfiguration) IsBlocked(state string) bool { return sc.blocked[state] }

// Overlaps returns states that appear in more than one set. Overlapping
// states are legal but flagged, and classification applies completed first,
// then blocked, then active.
func (sc *StateConfiguration) Overlaps() []string {
	counts := map[string]int{}
	for _, s := range sc.ActiveStates {
		counts[s]++
	}
	for _, s := range sc.CompletionStates {
		counts[s]++
	}
	for _, s := range sc.BlockedStates {
		counts[s]++
	}
	var out []string
	for s, n := range counts {
		if n > 1 {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}

// DefaultStateConfiguration covers the stock Agile, Scrum, and CMMI process
// templates.
func DefaultStateConfiguration() StateConfiguration {
	return NewStateConfiguration(
		[]string{"Active", "In Progress", "Committed", "Resolved", "Doing"},
		[]string{"Done", "Closed", "Completed", "Removed"},
		[]string{"Blocked", "On Hold", "Waiting"},
	)
}

// TypePolicy controls how one work item type participates in the metrics.
type TypePolicy struct {
	IncludeInThroughput    bool     `json:"include_in_throughput"`
	IncludeInVelocity      bool     `json:"include_in_velocity"`
	ComplexityMultiplier   float64  `json:"complexity_multiplier"`
	LeadTimeThresholdDays  *float64 `json:"lead_time_threshold_days,omitempty"`
	CycleTimeThresholdDays *float64 `json:"cycle_time_threshold_days,omitempty"`
}

// DefaultTypePolicy is the permissive policy applied to unknown types.
func DefaultTypePolicy() TypePolicy {
	return TypePolicy{
		IncludeInThroughput:  true,
		IncludeInVelocity:    true,
		ComplexityMultiplier: 1.0,
	}
}

// TypePolicies maps a work item type name to its policy.
type TypePolicies map[string]TypePolicy

// Get returns the policy for typeName, falling back to the permissive default.
func (tp TypePolicies) Get(typeName string) TypePolicy {
	if p, ok := tp[typeName]; ok {
		return p
	}
	return DefaultTypePolicy()
}

// CalculationParameters tunes the calculator windows and percentile set.
type CalculationParameters struct {
	ThroughputPeriodDays int   `json:"throughput_period_days"`
	DefaultLookbackDays  int   `json:"default_lookback_days"`
	Percentiles          []int `json:"percentiles"`
}

// DefaultCalculationParameters returns the stock calculator tuning.
func DefaultCalculationParameters() CalculationParameters {
	return CalculationParameters{
		ThroughputPeriodDays: 30,
		DefaultLookbackDays:  90,
		Percentiles:          []int{50, 85, 95},
	}
}

// allowedPercentiles is the closed set a percentile request must come from.
var allowedPercentiles = map[int]bool{50: true, 75: true, 85: true, 95: true}

// Settings bundles the three stores plus the summary the report echoes.
type Settings struct {
	States     StateConfiguration
	Types      TypePolicies
	Parameters CalculationParameters

	Degraded  bool
	Fallbacks []string
	Warnings  []string
}

// Summary echoes the classification configuration a report was computed with.
type Summary struct {
	ActiveStates     []string              `json:"active_states"`
	CompletionStates []string              `json:"completion_states"`
	BlockedStates    []string              `json:"blocked_states"`
	TypePolicyCount  int                   `json:"type_policy_count"`
	Parameters       CalculationParameters `json:"parameters"`
	Degraded         bool                  `json:"degraded"`
	Fallbacks        []string              `json:"fallbacks,omitempty"`
	Warnings         []string              `json:"warnings,omitempty"`
}

// Summarize captures the settings for embedding into a report.
func (s *Settings) Summarize() Summary {
	return Summary{
		ActiveStates:     s.States.ActiveStates,
		CompletionStates: s.States.CompletionStates,
		BlockedStates:    s.States.BlockedStates,
		TypePolicyCount:  len(s.Types),
		Parameters:       s.Parameters,
		Degraded:         s.Degraded,
		Fallbacks:        s.Fallbacks,
		Warnings:         s.Warnings,
	}
}

// LoadSettings reads the three stores from configDir. A missing or malformed
// store never fails the run: it falls back to built-in defaults and marks the
// settings degraded so the report can say so.
func LoadSettings(configDir string) *Settings {
	s := &Settings{
		States:     DefaultStateConfiguration(),
		Types:      TypePolicies{},
		Parameters: DefaultCalculationParameters(),
	}

	if raw, ok := s.readStore(configDir, WorkflowStatesFile, workflowStatesSchema); ok {
		s.applyWorkflowStates(raw)
	}
	if raw, ok := s.readStore(configDir, WorkItemTypesFile, workItemTypesSchema); ok {
		s.applyTypePolicies(raw)
	}
	if raw, ok := s.readStore(configDir, CalculationParametersFile, calculationParametersSchema); ok {
		s.applyParameters(raw)
	}

	if overlaps := s.States.Overlaps(); len(overlaps) > 0 {
		s.warnf("states in more than one classification set: %v", overlaps)
	}

	return s
}

// readStore loads and schema-validates one store file. Missing files are
// silent defaults; unreadable, unparseable, or schema-invalid files degrade.
func (s *Settings) readStore(configDir, name string, schema *storeSchema) ([]byte, bool) {
	path := filepath.Join(configDir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("store", name).Msg("Store file absent, using defaults")
			return nil, false
		}
		s.fallback(name, fmt.Sprintf("unreadable: %v", err))
		return nil, false
	}
	if err := schema.validate(raw); err != nil {
		s.fallback(name, fmt.Sprintf("schema validation failed: %v", err))
		return nil, false
	}
	for _, key := range schema.unknownKeys(raw) {
		s.warnf("%s: unknown key %q ignored", name, key)
	}
	return raw, true
}

func (s *Settings) fallback(store, reason string) {
	s.Degraded = true
	s.Fallbacks = append(s.Fallbacks, store)
	s.warnf("%s: %s, using built-in defaults", store, reason)
}

func (s *Settings) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.Warnings = append(s.Warnings, msg)
	log.Warn().Msg("Configuration: " + msg)
}

// workflowStatesDoc accepts both store shapes: explicit lists under
// stateMappings and per-state boolean flags under stateCategories.
type workflowStatesDoc struct {
	StateMappings *struct {
		ActiveStates     []string `json:"activeStates"`
		CompletionStates []string `json:"completionStates"`
		BlockedStates    []string `json:"blockedStates"`
	} `json:"stateMappings"`
	StateCategories map[string]struct {
		IsActive         bool `json:"isActive"`
		IsCompletedState bool `json:"isCompletedState"`
		IsBlockedState   bool `json:"isBlockedState"`
	} `json:"stateCategories"`
}

func (s *Settings) applyWorkflowStates(raw []byte) {
	var doc workflowStatesDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.fallback(WorkflowStatesFile, fmt.Sprintf("malformed: %v", err))
		return
	}

	var active, completion, blocked []string
	if doc.StateMappings != nil {
		active = append(active, doc.StateMappings.ActiveStates...)
		completion = append(completion, doc.StateMappings.CompletionStates...)
		blocked = append(blocked, doc.StateMappings.BlockedStates...)
	}
	// Category flags merge with the explicit lists when both shapes appear.
	categories := slices.Sorted(maps.Keys(doc.StateCategories))
	for _, state := range categories {
		flags := doc.StateCategories[state]
		if flags.IsActive {
			active = append(active, state)
		}
		if flags.IsCompletedState {
			completion = append(completion, state)
		}
		if flags.IsBlockedState {
			blocked = append(blocked, state)
		}
	}

	if len(active) == 0 && len(completion) == 0 && len(blocked) == 0 {
		s.fallback(WorkflowStatesFile, "no states classified")
		return
	}
	s.States = NewStateConfiguration(active, completion, blocked)
}

func (s *Settings) applyTypePolicies(raw []byte) {
	var doc map[string]TypePolicy
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.fallback(WorkItemTypesFile, fmt.Sprintf("malformed: %v", err))
		return
	}
	for name, p := range doc {
		if p.ComplexityMultiplier == 0 {
			p.ComplexityMultiplier = 1.0
		}
		if p.ComplexityMultiplier < 0.1 || p.ComplexityMultiplier > 10.0 {
			s.warnf("%s: complexity_multiplier %v for %q out of [0.1, 10.0], clamped",
				WorkItemTypesFile, p.ComplexityMultiplier, name)
			p.ComplexityMultiplier = min(max(p.ComplexityMultiplier, 0.1), 10.0)
		}
		doc[name] = p
	}
	s.Types = doc
}

func (s *Settings) applyParameters(raw []byte) {
	params := DefaultCalculationParameters()
	if err := json.Unmarshal(raw, &params); err != nil {
		s.fallback(CalculationParametersFile, fmt.Sprintf("malformed: %v", err))
		return
	}
	if params.ThroughputPeriodDays <= 0 {
		s.warnf("%s: throughput_period_days must be positive, using default", CalculationParametersFile)
		params.ThroughputPeriodDays = DefaultCalculationParameters().ThroughputPeriodDays
	}
	if params.DefaultLookbackDays <= 0 {
		s.warnf("%s: default_lookback_days must be positive, using default", CalculationParametersFile)
		params.DefaultLookbackDays = DefaultCalculationParameters().DefaultLookbackDays
	}
	var kept []int
	for _, p := range params.Percentiles {
		if allowedPercentiles[p] {
			kept = append(kept, p)
		} else {
			s.warnf("%s: percentile %d not in {50, 75, 85, 95}, dropped", CalculationParametersFile, p)
		}
	}
	if len(kept) == 0 {
		kept = DefaultCalculationParameters().Percentiles
	}
	slices.Sort(kept)
	params.Percentiles = slices.Compact(kept)
	s.Parameters = params
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

func dedupe(items []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range items {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
