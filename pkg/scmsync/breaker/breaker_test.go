package breaker

import (
	"testing"
	"time"
)

func TestOpenDurationDoublesPerStreak(t *testing.T) {
	b := &Breaker{cfg: Config{OpenDuration: time.Minute}}

	if got := b.openDuration(1); got != time.Minute {
		t.Fatalf("streak 1: got %v, want 1m", got)
	}
	if got := b.openDuration(2); got != 2*time.Minute {
		t.Fatalf("streak 2: got %v, want 2m", got)
	}
	if got := b.openDuration(3); got != 4*time.Minute {
		t.Fatalf("streak 3: got %v, want 4m", got)
	}
}

func TestOpenDurationCapped(t *testing.T) {
	b := &Breaker{cfg: Config{OpenDuration: time.Hour}}
	if got := b.openDuration(10); got != 30*time.Minute {
		t.Fatalf("got %v, want capped at 30m", got)
	}
}

func TestDegradationForOpenSuggestsNoneDiffMode(t *testing.T) {
	d := degradationFor(Open)
	if d.SuggestedDiffMode != "none" {
		t.Fatalf("got %q, want none", d.SuggestedDiffMode)
	}
}

func TestDegradationForHalfOpenSuggestsSmallBatch(t *testing.T) {
	d := degradationFor(HalfOpen)
	if d.SuggestedBatchSize != 50 || d.SuggestedDiffMode != "best_effort" {
		t.Fatalf("unexpected degradation: %+v", d)
	}
}

func TestDegradationForClosedIsEmpty(t *testing.T) {
	d := degradationFor(Closed)
	if d != (Degradation{}) {
		t.Fatalf("expected empty degradation for closed, got %+v", d)
	}
}

func TestScopeBuilders(t *testing.T) {
	if ScopeGlobal() != "global" {
		t.Fatal("ScopeGlobal mismatch")
	}
	if ScopeInstance("gitlab.example.com") != "instance:gitlab.example.com" {
		t.Fatal("ScopeInstance mismatch")
	}
	if ScopeTenant("acme") != "tenant:acme" {
		t.Fatal("ScopeTenant mismatch")
	}
	if ScopePool("p1") != "pool:p1" {
		t.Fatal("ScopePool mismatch")
	}
}
