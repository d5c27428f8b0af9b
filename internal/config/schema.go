package config

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// storeSchema pairs a JSON Schema with the store's known top-level keys so a
// load can flag typos without rejecting forward-compatible files. Schemas stay
// structural; value ranges are checked in Go where a bad value can be clamped
// instead of discarding the whole store.
type storeSchema struct {
	schema *jsonschema.Schema
	keys   map[string]bool

	once       sync.Once
	resolved   *jsonschema.Resolved
	resolveErr error
}

func (ss *storeSchema) validate(raw []byte) error {
	ss.once.Do(func() {
		ss.resolved, ss.resolveErr = ss.schema.Resolve(nil)
	})
	if ss.resolveErr != nil {
		return ss.resolveErr
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return ss.resolved.Validate(doc)
}

// unknownKeys lists top-level keys outside the store's documented set.
func (ss *storeSchema) unknownKeys(raw []byte) []string {
	if len(ss.keys) == 0 {
		return nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	var out []string
	for k := range doc {
		if !ss.keys[k] {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func stringArray() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}}
}

var workflowStatesSchema = &storeSchema{
	keys: map[string]bool{"stateMappings": true, "stateCategories": true},
	schema: &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"stateMappings": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"activeStates":     stringArray(),
					"completionStates": stringArray(),
					"blockedStates":    stringArray(),
				},
			},
			"stateCategories": {
				Type: "object",
				AdditionalProperties: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"isActive":         {Type: "boolean"},
						"isCompletedState": {Type: "boolean"},
						"isBlockedState":   {Type: "boolean"},
					},
				},
			},
		},
	},
}

var workItemTypesSchema = &storeSchema{
	// Top level is a free-form type-name map, so no known-key check applies.
	schema: &jsonschema.Schema{
		Type: "object",
		AdditionalProperties: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"include_in_throughput":     {Type: "boolean"},
				"include_in_velocity":       {Type: "boolean"},
				"complexity_multiplier":     {Type: "number"},
				"lead_time_threshold_days":  {Type: "number"},
				"cycle_time_threshold_days": {Type: "number"},
			},
		},
	},
}

var calculationParametersSchema = &storeSchema{
	keys: map[string]bool{
		"throughput_period_days": true,
		"default_lookback_days":  true,
		"percentiles":            true,
	},
	schema: &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"throughput_period_days": {Type: "integer"},
			"default_lookback_days":  {Type: "integer"},
			"percentiles":            {Type: "array", Items: &jsonschema.Schema{Type: "integer"}},
		},
	},
}
