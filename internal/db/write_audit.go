package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WriteAudit is a governance.write_audit row: one record of an outbox
// state change, keyed so the reaper can detect gaps per spec §4.4/§4.6.
type WriteAudit struct {
	AuditID          uuid.UUID
	OutboxID         string
	EventType        string // outbox_flush_success|outbox_flush_dedup_hit|outbox_flush_dead|outbox_stale
	LastError        *string
	EvidenceRefsJSON []byte
	CreatedAt        time.Time
}

type InsertWriteAuditParams struct {
	AuditID          uuid.UUID
	OutboxID         string
	EventType        string
	LastError        *string
	EvidenceRefsJSON []byte
}

// InsertWriteAudit records an audit row, idempotent on (outbox_id,
// event_type) so reaper backfill passes can run repeatedly without
// duplicating entries.
func (q *Queries) InsertWriteAudit(ctx context.Context, arg InsertWriteAuditParams) error {
	const sql = `
INSERT INTO write_audit (audit_id, outbox_id, event_type, last_error, evidence_refs_json, created_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (outbox_id, event_type) DO NOTHING`

	_, err := q.db.Exec(ctx, sql, arg.AuditID, arg.OutboxID, arg.EventType, arg.LastError, arg.EvidenceRefsJSON)
	return err
}

// HasWriteAudit reports whether an audit row already exists for this
// (outbox_id, event_type) pair, letting the reaper skip already-covered
// outbox entries.
func (q *Queries) HasWriteAudit(ctx context.Context, outboxID, eventType string) (bool, error) {
	const sql = `SELECT EXISTS(SELECT 1 FROM write_audit WHERE outbox_id = $1 AND event_type = $2)`

	var exists bool
	err := q.db.QueryRow(ctx, sql, outboxID, eventType).Scan(&exists)
	return exists, err
}

// OutboxGap is one outbox_memory row missing its matching write_audit
// event, as surfaced by FindOutboxAuditGaps.
type OutboxGap struct {
	OutboxID        string
	Status          string // sent|dead
	LastError       *string
	ExpectedEvent   string
}

// FindOutboxAuditGaps scans logbook.outbox_memory for status='sent' entries
// missing outbox_flush_success/outbox_flush_dedup_hit and status='dead'
// entries missing outbox_flush_dead, per spec §4.6.
func (q *Queries) FindOutboxAuditGaps(ctx context.Context, limit int32) ([]OutboxGap, error) {
	const sql = `
SELECT o.outbox_id, o.status, o.last_error
FROM outbox_memory o
WHERE (
    o.status = 'sent' AND NOT EXISTS (
      SELECT 1 FROM write_audit a
      WHERE a.outbox_id = o.outbox_id
        AND a.event_type IN ('outbox_flush_success', 'outbox_flush_dedup_hit')
    )
  ) OR (
    o.status = 'dead' AND NOT EXISTS (
      SELECT 1 FROM write_audit a
      WHERE a.outbox_id = o.outbox_id AND a.event_type = 'outbox_flush_dead'
    )
  )
ORDER BY o.outbox_id ASC
LIMIT $1`

	rows, err := q.db.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutboxGap
	for rows.Next() {
		var g OutboxGap
		if err := rows.Scan(&g.OutboxID, &g.Status, &g.LastError); err != nil {
			return nil, err
		}
		switch g.Status {
		case "sent":
			g.ExpectedEvent = "outbox_flush_success"
		case "dead":
			g.ExpectedEvent = "outbox_flush_dead"
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
