package queue

import (
	"testing"
	"time"
)

func TestNextBackoffGrowsWithAttempt(t *testing.T) {
	first := nextBackoff(1, time.Second, time.Minute)
	fifth := nextBackoff(5, time.Second, time.Minute)

	if first <= 0 {
		t.Fatal("expected positive backoff")
	}
	if fifth <= first {
		t.Fatalf("expected later attempts to back off further: attempt1=%v attempt5=%v", first, fifth)
	}
}

func TestNextBackoffCapped(t *testing.T) {
	d := nextBackoff(50, time.Second, 10*time.Second)
	if d > 10*time.Second {
		t.Fatalf("expected backoff capped at max_interval, got %v", d)
	}
}

func TestNextBackoffClampsAttemptBelowOne(t *testing.T) {
	// Each call draws fresh jitter, so attempts 0 and 1 are both checked
	// against attempt 1's window (initial ± 30%) rather than against each
	// other; an unclamped attempt 0 would run no iterations and return 0.
	lo, hi := 700*time.Millisecond, 1300*time.Millisecond
	for _, attempt := range []int{0, 1} {
		d := nextBackoff(attempt, time.Second, time.Minute)
		if d < lo || d > hi {
			t.Fatalf("expected attempt %d to clamp to attempt 1's window [%v, %v], got %v", attempt, lo, hi, d)
		}
	}
}
