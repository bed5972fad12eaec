package driftmap

import "testing"

func sampleRules() []Rule {
	return []Rule{
		{
			ID: "sync-jobs",
			Triggers: Triggers{
				Prefixes: []string{"internal/db/"},
			},
			Actions: Actions{
				MinimalTests: []string{"go test ./internal/db/..."},
				MinimalGates: []string{"lint"},
			},
		},
		{
			ID: "fixtures",
			Triggers: Triggers{
				Globs: []string{"testdata/*.json"},
			},
			Actions: Actions{
				FixtureRefreshCommands: []string{"make fixtures"},
				MinimalTests:           []string{"go test ./internal/db/..."},
			},
		},
	}
}

func TestAdvisePrefixMatch(t *testing.T) {
	advice := Advise([]string{"internal/db/status.go"}, sampleRules())
	if len(advice.MinimalTests) != 1 || advice.MinimalTests[0] != "go test ./internal/db/..." {
		t.Fatalf("unexpected advice: %+v", advice)
	}
	if len(advice.MinimalGates) != 1 {
		t.Fatalf("expected minimal_gates from the matched rule, got %+v", advice)
	}
}

func TestAdviseGlobMatch(t *testing.T) {
	advice := Advise([]string{"testdata/repo.json"}, sampleRules())
	if len(advice.FixtureRefreshCommands) != 1 {
		t.Fatalf("expected a fixture refresh command, got %+v", advice)
	}
}

func TestAdviseDedupesAcrossRules(t *testing.T) {
	advice := Advise([]string{"internal/db/status.go", "testdata/repo.json"}, sampleRules())
	if len(advice.MinimalTests) != 1 {
		t.Fatalf("expected minimal_tests deduped to 1 entry, got %+v", advice.MinimalTests)
	}
}

func TestAdviseNoMatchIsEmpty(t *testing.T) {
	advice := Advise([]string{"README.md"}, sampleRules())
	if !advice.IsEmpty() {
		t.Fatalf("expected empty advice, got %+v", advice)
	}
}

func TestAdviseNormalizesBackslashesAndDotSlash(t *testing.T) {
	advice := Advise([]string{"./internal/db/status.go"}, sampleRules())
	if len(advice.MinimalTests) != 1 {
		t.Fatalf("expected ./-prefixed path to still match, got %+v", advice)
	}
	advice = Advise([]string{"internal\\db\\status.go"}, sampleRules())
	if len(advice.MinimalTests) != 1 {
		t.Fatalf("expected backslash-separated path to still match, got %+v", advice)
	}
}

func TestPrefixMatchExactFile(t *testing.T) {
	rules := []Rule{{ID: "exact", Triggers: Triggers{Prefixes: []string{"Makefile"}}, Actions: Actions{MinimalGates: []string{"make lint"}}}}
	advice := Advise([]string{"Makefile"}, rules)
	if len(advice.MinimalGates) != 1 {
		t.Fatalf("expected exact-path prefix match, got %+v", advice)
	}
}

func TestFormatMarkdownListsNonEmptySections(t *testing.T) {
	advice := Advice{MinimalTests: []string{"go test ./..."}}
	out := FormatMarkdown(advice)
	if out == "" {
		t.Fatal("expected non-empty markdown")
	}
	if !contains(out, "minimal_tests") {
		t.Fatalf("expected minimal_tests section, got %q", out)
	}
	if contains(out, "fixture_refresh_commands") {
		t.Fatalf("expected no fixture_refresh_commands section, got %q", out)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
