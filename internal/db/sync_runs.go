package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncRun is a sync_runs row: one record of a single sync attempt.
type SyncRun struct {
	RunID             uuid.UUID
	RepoID            int64
	JobType           string
	Mode              string
	Status            string
	StartedAt         time.Time
	FinishedAt        *time.Time
	CursorBefore      []byte // jsonb
	CursorAfter       []byte // jsonb
	Counts            []byte // jsonb
	ErrorSummaryJSON  []byte
	DegradationJSON   []byte
	LogbookItemID     *int64
	EvidenceRefsJSON  []byte
}

type InsertSyncRunStartParams struct {
	RunID        uuid.UUID
	RepoID       int64
	JobType      string
	Mode         string
	CursorBefore []byte
}

// InsertSyncRunStart records the start of a sync attempt, status='running'.
func (q *Queries) InsertSyncRunStart(ctx context.Context, arg InsertSyncRunStartParams) error {
	const sql = `
INSERT INTO sync_runs (run_id, repo_id, job_type, mode, status, started_at, cursor_before)
VALUES ($1, $2, $3, $4, 'running', now(), $5)`

	_, err := q.db.Exec(ctx, sql, arg.RunID, arg.RepoID, arg.JobType, arg.Mode, arg.CursorBefore)
	return err
}

type InsertSyncRunFinishParams struct {
	RunID            uuid.UUID
	Status           string // completed|failed
	Counts           []byte
	CursorAfter      []byte
	ErrorSummaryJSON []byte
	DegradationJSON  []byte
}

// InsertSyncRunFinish transitions a run running->completed|failed exactly
// once; the WHERE clause enforces the monotonic status transition named in
// spec §3 ("transitions running -> completed|failed exactly once").
func (q *Queries) InsertSyncRunFinish(ctx context.Context, arg InsertSyncRunFinishParams) error {
	const sql = `
UPDATE sync_runs
SET status = $2, finished_at = now(), counts = $3, cursor_after = $4,
    error_summary_json = $5, degradation_json = $6
WHERE run_id = $1 AND status = 'running'`

	tag, err := q.db.Exec(ctx, sql, arg.RunID, arg.Status, arg.Counts, arg.CursorAfter, arg.ErrorSummaryJSON, arg.DegradationJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

type ListSyncRunsParams struct {
	RepoID int64 // 0 means all repos
	Limit  int32
}

func (q *Queries) ListSyncRuns(ctx context.Context, arg ListSyncRunsParams) ([]SyncRun, error) {
	const sql = `
SELECT run_id, repo_id, job_type, mode, status, started_at, finished_at,
       cursor_before, cursor_after, counts, error_summary_json, degradation_json
FROM sync_runs
WHERE ($1 = 0 OR repo_id = $1)
ORDER BY started_at DESC
LIMIT $2`

	rows, err := q.db.Query(ctx, sql, arg.RepoID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(&r.RunID, &r.RepoID, &r.JobType, &r.Mode, &r.Status, &r.StartedAt, &r.FinishedAt,
			&r.CursorBefore, &r.CursorAfter, &r.Counts, &r.ErrorSummaryJSON, &r.DegradationJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
