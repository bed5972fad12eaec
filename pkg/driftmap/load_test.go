package driftmap

import "testing"

func TestLoadRulesParsesValidDocument(t *testing.T) {
	doc := []byte(`{
		"rules": [
			{
				"id": "sync-jobs",
				"description": "queue schema changes",
				"triggers": {"prefixes": ["internal/db/"]},
				"actions": {"minimal_tests": ["go test ./internal/db/..."]}
			}
		]
	}`)
	rules, err := LoadRules(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "sync-jobs" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
}

func TestLoadRulesRejectsEmptyRules(t *testing.T) {
	if _, err := LoadRules([]byte(`{"rules": []}`)); err == nil {
		t.Fatal("expected an error for an empty rule set")
	}
}

func TestLoadRulesRejectsMissingID(t *testing.T) {
	doc := []byte(`{"rules": [{"triggers": {"prefixes": ["a/"]}}]}`)
	if _, err := LoadRules(doc); err == nil {
		t.Fatal("expected an error for a rule with no id")
	}
}

func TestLoadRulesRejectsEmptyTriggers(t *testing.T) {
	doc := []byte(`{"rules": [{"id": "x", "triggers": {}}]}`)
	if _, err := LoadRules(doc); err == nil {
		t.Fatal("expected an error for a rule with no triggers")
	}
}

func TestLoadRulesRejectsInvalidJSON(t *testing.T) {
	if _, err := LoadRules([]byte(`not json`)); err == nil {
		t.Fatal("expected a JSON parse error")
	}
}
