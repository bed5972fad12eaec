package limiter

import (
	"testing"
	"time"

	"github.com/engramscm/engram-scm/internal/db"
)

func TestRefillCapsAtBurst(t *testing.T) {
	updated := time.Now().Add(-1 * time.Hour)
	row := &db.RateLimitBucket{Tokens: 5, Rate: 10, Burst: 10, UpdatedAt: updated}

	got := refill(row, time.Now())
	if got != 10 {
		t.Fatalf("got %v, want 10 (capped at burst)", got)
	}
}

func TestRefillAccumulatesProportionally(t *testing.T) {
	updated := time.Now().Add(-2 * time.Second)
	row := &db.RateLimitBucket{Tokens: 0, Rate: 1, Burst: 10, UpdatedAt: updated}

	got := refill(row, time.Now())
	if got < 1.9 || got > 2.1 {
		t.Fatalf("got %v, want ~2", got)
	}
}

func TestRefillNoElapsedTimeReturnsCurrentTokens(t *testing.T) {
	now := time.Now()
	row := &db.RateLimitBucket{Tokens: 3, Rate: 5, Burst: 10, UpdatedAt: now}

	got := refill(row, now)
	if got != 3 {
		t.Fatalf("got %v, want 3", got)
	}
}
