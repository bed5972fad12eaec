package driftmap

import (
	"encoding/json"
	"fmt"
)

// rawRule mirrors the on-disk JSON shape: {"rules": [{"id", "description",
// "triggers": {"prefixes", "globs"}, "actions": {...}}]}.
type rawRule struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Triggers    struct {
		Prefixes []string `json:"prefixes"`
		Globs    []string `json:"globs"`
	} `json:"triggers"`
	Actions struct {
		FixtureRefreshCommands []string `json:"fixture_refresh_commands"`
		MinimalTests           []string `json:"minimal_tests"`
		MinimalGates           []string `json:"minimal_gates"`
	} `json:"actions"`
}

type rawDocument struct {
	Rules []rawRule `json:"rules"`
}

// LoadRules parses a drift map document, rejecting a rule with neither
// prefixes nor globs the same way the original config loader does: a
// trigger-less rule would match everything silently, standing in for the
// "_load_drift_map raises on empty triggers" check.
func LoadRules(data []byte) ([]Rule, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("driftmap: parsing config: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("driftmap: config has no rules")
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for i, raw := range doc.Rules {
		if raw.ID == "" {
			return nil, fmt.Errorf("driftmap: rules[%d].id is required", i)
		}
		if len(raw.Triggers.Prefixes) == 0 && len(raw.Triggers.Globs) == 0 {
			return nil, fmt.Errorf("driftmap: rules[%d] (%s) triggers must not be empty", i, raw.ID)
		}
		rules = append(rules, Rule{
			ID:          raw.ID,
			Description: raw.Description,
			Triggers:    Triggers{Prefixes: raw.Triggers.Prefixes, Globs: raw.Triggers.Globs},
			Actions: Actions{
				FixtureRefreshCommands: raw.Actions.FixtureRefreshCommands,
				MinimalTests:           raw.Actions.MinimalTests,
				MinimalGates:           raw.Actions.MinimalGates,
			},
		})
	}
	return rules, nil
}
