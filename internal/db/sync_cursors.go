package db

import (
	"context"
	"time"
)

// SyncCursor is a sync_cursors row: the last advanced (timestamp, sha|rev)
// watermark for one repo, keyed by kind ("gitlab_cursor" or "svn_cursor").
type SyncCursor struct {
	RepoID       int64
	Kind         string
	CursorTS     *time.Time
	CursorSHA    string // sha for gitlab_cursor, decimal rev string for svn_cursor
	RunningCount int64
	UpdatedAt    time.Time
}

func (q *Queries) GetSyncCursorForUpdate(ctx context.Context, repoID int64, kind string) (*SyncCursor, error) {
	const sql = `
SELECT repo_id, kind, cursor_ts, cursor_sha, running_count, updated_at
FROM sync_cursors WHERE repo_id = $1 AND kind = $2
FOR UPDATE`

	var c SyncCursor
	err := q.db.QueryRow(ctx, sql, repoID, kind).Scan(&c.RepoID, &c.Kind, &c.CursorTS, &c.CursorSHA, &c.RunningCount, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (q *Queries) GetSyncCursor(ctx context.Context, repoID int64, kind string) (*SyncCursor, error) {
	const sql = `
SELECT repo_id, kind, cursor_ts, cursor_sha, running_count, updated_at
FROM sync_cursors WHERE repo_id = $1 AND kind = $2`

	var c SyncCursor
	err := q.db.QueryRow(ctx, sql, repoID, kind).Scan(&c.RepoID, &c.Kind, &c.CursorTS, &c.CursorSHA, &c.RunningCount, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type PutSyncCursorParams struct {
	RepoID       int64
	Kind         string
	CursorTS     *time.Time
	CursorSHA    string
	RunningCount int64
}

// PutSyncCursor unconditionally overwrites the stored watermark. Callers
// (pkg/scmsync/cursor) are responsible for the monotonic tie-break check
// before calling this — the DAO layer does not re-derive it so the
// comparison logic lives in exactly one place.
func (q *Queries) PutSyncCursor(ctx context.Context, arg PutSyncCursorParams) error {
	const sql = `
INSERT INTO sync_cursors (repo_id, kind, cursor_ts, cursor_sha, running_count, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (repo_id, kind) DO UPDATE SET
  cursor_ts = EXCLUDED.cursor_ts,
  cursor_sha = EXCLUDED.cursor_sha,
  running_count = EXCLUDED.running_count,
  updated_at = now()`

	_, err := q.db.Exec(ctx, sql, arg.RepoID, arg.Kind, arg.CursorTS, arg.CursorSHA, arg.RunningCount)
	return err
}

// ListCursorsOlderThan returns every cursor whose updated_at predates cutoff,
// used by the scheduler's cursor-age-driven enqueue decisions.
func (q *Queries) ListCursorsOlderThan(ctx context.Context, cutoff time.Time) ([]SyncCursor, error) {
	const sql = `
SELECT repo_id, kind, cursor_ts, cursor_sha, running_count, updated_at
FROM sync_cursors WHERE updated_at < $1
ORDER BY updated_at ASC`

	rows, err := q.db.Query(ctx, sql, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncCursor
	for rows.Next() {
		var c SyncCursor
		if err := rows.Scan(&c.RepoID, &c.Kind, &c.CursorTS, &c.CursorSHA, &c.RunningCount, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) ListAllCursors(ctx context.Context) ([]SyncCursor, error) {
	const sql = `
SELECT repo_id, kind, cursor_ts, cursor_sha, running_count, updated_at
FROM sync_cursors ORDER BY repo_id ASC`

	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncCursor
	for rows.Next() {
		var c SyncCursor
		if err := rows.Scan(&c.RepoID, &c.Kind, &c.CursorTS, &c.CursorSHA, &c.RunningCount, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
