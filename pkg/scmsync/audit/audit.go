// Package audit implements the "Reconcile audit" rule of spec §4.4/§4.6:
// every complete transition, every fail transition that leaves a job dead,
// and every outbox state change gets a
// governance.write_audit row naming one of outbox_flush_success,
// outbox_flush_dedup_hit, outbox_flush_dead, outbox_stale. It is the one
// place that builds evidence_refs_json and picks the idempotency key, so
// the queue and the reaper can't drift into two different shapes for the
// same event type.
package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/engramscm/engram-scm/internal/db"
	"github.com/engramscm/engram-scm/internal/redact"
)

// Event types named in spec §4.4.
const (
	EventFlushSuccess  = "outbox_flush_success"
	EventFlushDedupHit = "outbox_flush_dedup_hit"
	EventFlushDead     = "outbox_flush_dead"
	EventStale         = "outbox_stale"
)

// FallbackOutboxID is the synthetic (outbox_id, event_type) key used for
// job types that never write to logbook.outbox_memory. Without it, every
// such job's audit row would carry an empty outbox_id and collide on the
// (outbox_id, event_type) unique constraint with every other job of the
// same event type, breaking idempotency instead of providing it.
func FallbackOutboxID(jobID uuid.UUID) string {
	return "sync_job:" + jobID.String()
}

// OutboxIDOrFallback returns outboxID unchanged when the job actually
// fronts an outbox write, else FallbackOutboxID(jobID).
func OutboxIDOrFallback(outboxID string, jobID uuid.UUID) string {
	if outboxID != "" {
		return outboxID
	}
	return FallbackOutboxID(jobID)
}

// RecordOutboxEvent inserts one write_audit row, wrapping extra under
// evidence_refs_json.extra the way spec §4.6 describes for the
// outbox_stale case ("{outbox_id, last_error} in evidence_refs_json.extra")
// and reusing the same envelope for every other event type. This is the
// boundary spec §7 names for evidence_refs and last_error: every caller's
// raw error text is scrubbed here before it is marshaled, so neither the
// queue nor the reaper needs to remember to redact at its own call site.
func RecordOutboxEvent(ctx context.Context, q *db.Queries, outboxID, eventType string, lastError *string, extra map[string]any) error {
	if lastError != nil {
		scrubbed := redact.String(*lastError)
		lastError = &scrubbed
	}
	evidence, err := json.Marshal(map[string]any{"extra": redact.Map(extra)})
	if err != nil {
		return err
	}
	return q.InsertWriteAudit(ctx, db.InsertWriteAuditParams{
		AuditID:          uuid.New(),
		OutboxID:         outboxID,
		EventType:        eventType,
		LastError:        lastError,
		EvidenceRefsJSON: evidence,
	})
}

// RecordJobTransition records the complete|fail half of the Reconcile
// audit rule for one sync_jobs row. dead reports whether the job reached
// a terminal dead status (fail, no more retries) as opposed to a bare
// retry-pending requeue, which gets no audit row of its own — only the
// run's eventual dead or success terminal state does.
func RecordJobTransition(ctx context.Context, q *db.Queries, jobID uuid.UUID, repoID int64, jobType string, dead bool, lastError *string) error {
	eventType := EventFlushSuccess
	if dead {
		eventType = EventFlushDead
	}
	return RecordOutboxEvent(ctx, q, FallbackOutboxID(jobID), eventType, lastError, map[string]any{
		"repo_id":  repoID,
		"job_type": jobType,
	})
}
