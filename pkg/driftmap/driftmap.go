// Package driftmap maps a set of changed file paths to the minimal set of
// fixture refreshes, tests, and gates a rerun needs, via a declarative
// table of prefix/glob triggers. It has no queue, breaker, or limiter
// ties: this is a supplemented feature carried over from the iteration
// tooling the sync platform ships alongside, not part of the sync
// control plane itself.
package driftmap

import (
	"path"
	"strings"
)

// Triggers is the match condition for one rule: a path matches if it
// falls under any prefix or matches any glob.
type Triggers struct {
	Prefixes []string
	Globs    []string
}

// Actions is what a matched rule contributes to the final advice.
type Actions struct {
	FixtureRefreshCommands []string
	MinimalTests           []string
	MinimalGates           []string
}

// Rule is one entry of the drift map table.
type Rule struct {
	ID          string
	Description string
	Triggers    Triggers
	Actions     Actions
}

// Advice is the deduplicated union of every matched rule's actions, in
// first-matched order.
type Advice struct {
	FixtureRefreshCommands []string
	MinimalTests           []string
	MinimalGates           []string
}

// IsEmpty reports whether no rule matched at all.
func (a Advice) IsEmpty() bool {
	return len(a.FixtureRefreshCommands) == 0 && len(a.MinimalTests) == 0 && len(a.MinimalGates) == 0
}

// normalizePath converts backslashes to forward slashes and strips a
// leading "./", matching every rule author's intent regardless of which
// OS produced the changed-path list.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "./")
}

func prefixMatch(p, prefix string) bool {
	prefix = normalizePath(prefix)
	if prefix == "" {
		return false
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(p, prefix)
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func matchesTriggers(p string, t Triggers) bool {
	for _, prefix := range t.Prefixes {
		if prefixMatch(p, prefix) {
			return true
		}
	}
	for _, pattern := range t.Globs {
		if ok, err := path.Match(normalizePath(pattern), p); err == nil && ok {
			return true
		}
	}
	return false
}

// mergeUnique appends each item from additions not already present in
// seen, preserving first-seen order across multiple rules.
func mergeUnique(target []string, additions []string, seen map[string]bool) []string {
	for _, item := range additions {
		if seen[item] {
			continue
		}
		seen[item] = true
		target = append(target, item)
	}
	return target
}

// Advise reduces changedPaths against rules into the union of every
// matched rule's actions. A rule matches if any changed path matches any
// of its triggers; paths are normalized before matching so callers can
// pass raw git diff output directly.
func Advise(changedPaths []string, rules []Rule) Advice {
	normalized := make([]string, 0, len(changedPaths))
	for _, p := range changedPaths {
		if p == "" {
			continue
		}
		normalized = append(normalized, normalizePath(p))
	}

	var advice Advice
	seenRefresh := map[string]bool{}
	seenTests := map[string]bool{}
	seenGates := map[string]bool{}

	for _, rule := range rules {
		matched := false
		for _, p := range normalized {
			if matchesTriggers(p, rule.Triggers) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		advice.FixtureRefreshCommands = mergeUnique(advice.FixtureRefreshCommands, rule.Actions.FixtureRefreshCommands, seenRefresh)
		advice.MinimalTests = mergeUnique(advice.MinimalTests, rule.Actions.MinimalTests, seenTests)
		advice.MinimalGates = mergeUnique(advice.MinimalGates, rule.Actions.MinimalGates, seenGates)
	}

	return advice
}

// FormatMarkdown renders advice the way a PR comment or CLI summary
// would, one bulleted sub-list per non-empty action kind.
func FormatMarkdown(advice Advice) string {
	var b strings.Builder
	b.WriteString("Suggested rerun commands:\n")

	writeSection := func(label string, values []string) {
		if len(values) == 0 {
			return
		}
		b.WriteString("- " + label + ":\n")
		for _, v := range values {
			b.WriteString("  - " + v + "\n")
		}
	}

	writeSection("fixture_refresh_commands", advice.FixtureRefreshCommands)
	writeSection("minimal_tests", advice.MinimalTests)
	writeSection("minimal_gates", advice.MinimalGates)

	return strings.TrimRight(b.String(), "\n")
}
