package audit

import (
	"testing"

	"github.com/google/uuid"
)

func TestFallbackOutboxIDIsStableAndPrefixed(t *testing.T) {
	id := uuid.New()
	a := FallbackOutboxID(id)
	b := FallbackOutboxID(id)
	if a != b {
		t.Fatalf("expected a stable fallback id, got %q and %q", a, b)
	}
	if a != "sync_job:"+id.String() {
		t.Fatalf("unexpected fallback id shape: %q", a)
	}
}

func TestOutboxIDOrFallbackPrefersRealOutboxID(t *testing.T) {
	id := uuid.New()
	if got := OutboxIDOrFallback("outbox-123", id); got != "outbox-123" {
		t.Fatalf("got %q, want outbox-123", got)
	}
}

func TestOutboxIDOrFallbackFallsBackOnEmpty(t *testing.T) {
	id := uuid.New()
	if got := OutboxIDOrFallback("", id); got != FallbackOutboxID(id) {
		t.Fatalf("got %q, want fallback", got)
	}
}
