package db

import (
	"context"
	"time"
)

// SyncLock is a per-(repo_id, job_type) advisory row used for mutual
// exclusion between concurrently runnable jobs on the same repo+type.
type SyncLock struct {
	LockID       int64
	RepoID       int64
	JobType      string
	LockedBy     string
	LockedAt     time.Time
	LeaseSeconds int32
}

// TryAcquireSyncLock inserts or steals a (repo_id, job_type) lock row if it
// is unheld or expired, returning true on success. A held, unexpired lock
// returns false with nil error (the "lock-held short-circuit" per spec §4.4).
func (q *Queries) TryAcquireSyncLock(ctx context.Context, repoID int64, jobType, lockedBy string, leaseSeconds int32) (bool, error) {
	const sql = `
INSERT INTO sync_locks (repo_id, job_type, locked_by, locked_at, lease_seconds)
VALUES ($1, $2, $3, now(), $4)
ON CONFLICT (repo_id, job_type) DO UPDATE
SET locked_by = EXCLUDED.locked_by, locked_at = now(), lease_seconds = EXCLUDED.lease_seconds
WHERE sync_locks.locked_at + (sync_locks.lease_seconds || ' seconds')::interval < now()`

	tag, err := q.db.Exec(ctx, sql, repoID, jobType, lockedBy, leaseSeconds)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseSyncLock clears a lock this worker still owns.
func (q *Queries) ReleaseSyncLock(ctx context.Context, repoID int64, jobType, lockedBy string) error {
	const sql = `DELETE FROM sync_locks WHERE repo_id = $1 AND job_type = $2 AND locked_by = $3`
	_, err := q.db.Exec(ctx, sql, repoID, jobType, lockedBy)
	return err
}

func (q *Queries) ListSyncLocks(ctx context.Context, limit int32) ([]SyncLock, error) {
	const sql = `
SELECT lock_id, repo_id, job_type, locked_by, locked_at, lease_seconds
FROM sync_locks
ORDER BY locked_at DESC
LIMIT $1`

	rows, err := q.db.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncLock
	for rows.Next() {
		var l SyncLock
		if err := rows.Scan(&l.LockID, &l.RepoID, &l.JobType, &l.LockedBy, &l.LockedAt, &l.LeaseSeconds); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ReapExpiredSyncLocks deletes advisory locks whose lease has expired,
// mirroring ReclaimStaleLeases for sync_jobs. Used by the reaper.
func (q *Queries) ReapExpiredSyncLocks(ctx context.Context) (int64, error) {
	const sql = `
DELETE FROM sync_locks
WHERE locked_at + (lease_seconds || ' seconds')::interval < now()`

	tag, err := q.db.Exec(ctx, sql)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
