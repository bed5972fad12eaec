package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncJob is a sync_jobs row: the durable queue entry.
type SyncJob struct {
	JobID        uuid.UUID
	RepoID       int64
	JobType      string
	Mode         string
	Priority     int32
	Status       string
	Attempts     int32
	MaxAttempts  int32
	NotBefore    time.Time
	LockedBy     *string
	LockedAt     *time.Time
	LeaseSeconds int32
	LastError    *string
	LastRunID    *uuid.UUID
	PayloadJSON  []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type EnqueueSyncJobParams struct {
	JobID       uuid.UUID
	RepoID      int64
	JobType     string
	Mode        string
	Priority    int32
	NotBefore   time.Time
	MaxAttempts int32
	PayloadJSON []byte
}

// EnqueueSyncJob inserts one pending job row.
func (q *Queries) EnqueueSyncJob(ctx context.Context, arg EnqueueSyncJobParams) error {
	const sql = `
INSERT INTO sync_jobs (job_id, repo_id, job_type, mode, priority, status,
                        attempts, max_attempts, not_before, lease_seconds,
                        payload_json, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $7, 0, $8, now(), now())`

	_, err := q.db.Exec(ctx, sql, arg.JobID, arg.RepoID, arg.JobType, arg.Mode, arg.Priority, arg.MaxAttempts, arg.NotBefore, arg.PayloadJSON)
	return err
}

// ClaimOneParams filters the claim candidate set. JobTypes/InstanceAllowlist
// are applied in SQL against a pre-normalized instance_key the scheduler
// wrote into payload_json at enqueue time; nil/empty means "no filter".
type ClaimOneParams struct {
	WorkerID          string
	JobTypes          []string
	InstanceAllowlist []string
	LeaseSeconds      int32
}

// ClaimOne runs the lease-claim query and, on a hit, marks the row running
// and bumps attempts. Callers must run this inside a transaction (see
// BeginFunc) so the FOR UPDATE SKIP LOCKED row lock is held for the
// lifetime of the claim decision.
func (q *Queries) ClaimOne(ctx context.Context, arg ClaimOneParams) (*SyncJob, error) {
	const selectSQL = `
SELECT job_id, repo_id, job_type, mode, priority, status, attempts,
       max_attempts, not_before, locked_by, locked_at, lease_seconds,
       last_error, last_run_id, payload_json, created_at, updated_at
FROM sync_jobs
WHERE status = 'pending'
  AND not_before <= now()
  AND (cardinality($1::text[]) = 0 OR job_type = ANY($1::text[]))
  AND (cardinality($2::text[]) = 0 OR payload_json->>'gitlab_instance' = ANY($2::text[]) OR payload_json->>'gitlab_instance' IS NULL)
ORDER BY priority ASC, created_at ASC
FOR UPDATE SKIP LOCKED
LIMIT 1`

	var j SyncJob
	row := q.db.QueryRow(ctx, selectSQL, arg.JobTypes, arg.InstanceAllowlist)
	err := row.Scan(&j.JobID, &j.RepoID, &j.JobType, &j.Mode, &j.Priority, &j.Status, &j.Attempts,
		&j.MaxAttempts, &j.NotBefore, &j.LockedBy, &j.LockedAt, &j.LeaseSeconds,
		&j.LastError, &j.LastRunID, &j.PayloadJSON, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	const updateSQL = `
UPDATE sync_jobs
SET status = 'running', locked_by = $2, locked_at = now(),
    lease_seconds = $3, attempts = attempts + 1, updated_at = now()
WHERE job_id = $1`

	if _, err := q.db.Exec(ctx, updateSQL, j.JobID, arg.WorkerID, arg.LeaseSeconds); err != nil {
		return nil, err
	}
	j.Status = "running"
	j.LockedBy = &arg.WorkerID
	j.Attempts++

	return &j, nil
}

// Heartbeat refreshes locked_at for a job still owned by workerID. It
// returns false (with nil error) when the lease no longer belongs to this
// worker, per spec §4.4: "the caller has lost its lease and must abort".
func (q *Queries) Heartbeat(ctx context.Context, jobID uuid.UUID, workerID string) (bool, error) {
	const sql = `
UPDATE sync_jobs SET locked_at = now(), updated_at = now()
WHERE job_id = $1 AND status = 'running' AND locked_by = $2`

	tag, err := q.db.Exec(ctx, sql, jobID, workerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteJob marks a running job completed, clears its lock, and links
// last_run_id. Returns false if workerID no longer holds the lease.
func (q *Queries) CompleteJob(ctx context.Context, jobID uuid.UUID, workerID string, runID uuid.UUID) (bool, error) {
	const sql = `
UPDATE sync_jobs
SET status = 'completed', locked_by = NULL, locked_at = NULL,
    last_run_id = $3, updated_at = now()
WHERE job_id = $1 AND status = 'running' AND locked_by = $2`

	tag, err := q.db.Exec(ctx, sql, jobID, workerID, runID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FailJobParams carries the already-decided outcome (dead vs. retry); the
// backoff/non-retryable policy itself lives in pkg/scmsync/queue, which
// calls this with NextStatus already resolved so the DAO stays pure SQL.
type FailJobParams struct {
	JobID       uuid.UUID
	WorkerID    string
	NextStatus  string // "pending" or "dead"
	LastError   string
	NotBefore   time.Time
}

// FailJob records an error and transitions the job to pending (with a new
// not_before) or dead. Returns false if workerID no longer holds the lease.
func (q *Queries) FailJob(ctx context.Context, arg FailJobParams) (bool, error) {
	const sql = `
UPDATE sync_jobs
SET status = $3, locked_by = NULL, locked_at = NULL,
    last_error = $4, not_before = $5, updated_at = now()
WHERE job_id = $1 AND status = 'running' AND locked_by = $2`

	tag, err := q.db.Exec(ctx, sql, arg.JobID, arg.WorkerID, arg.NextStatus, arg.LastError, arg.NotBefore)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SoftRequeue implements the lock-held short-circuit: no attempt-counter
// increment, just a not_before bump, per spec §4.4 "Lock-held short-circuit".
func (q *Queries) SoftRequeue(ctx context.Context, jobID uuid.UUID, workerID string, notBefore time.Time) (bool, error) {
	const sql = `
UPDATE sync_jobs
SET status = 'pending', locked_by = NULL, locked_at = NULL, not_before = $3, updated_at = now()
WHERE job_id = $1 AND status = 'running' AND locked_by = $2`

	tag, err := q.db.Exec(ctx, sql, jobID, workerID, notBefore)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReclaimedLease is one sync_jobs row the reaper moved back to pending,
// carrying enough context for the caller to emit an outbox_stale audit.
type ReclaimedLease struct {
	JobID     uuid.UUID
	RepoID    int64
	JobType   string
	LastError *string
}

// ReclaimStaleLeases flips any running job whose lease has expired back to
// pending, clearing the stale lock. A row is stale once
// locked_at + lease_seconds + max(30, lease_seconds/2) < now(), tolerating
// one missed heartbeat cycle before reclaiming (spec §9 Open Question (b)).
// This is the single call site for that threshold. Used by the reaper (C6).
func (q *Queries) ReclaimStaleLeases(ctx context.Context) ([]ReclaimedLease, error) {
	const sql = `
UPDATE sync_jobs
SET status = 'pending', locked_by = NULL, locked_at = NULL, updated_at = now()
WHERE status = 'running'
  AND locked_at + ((lease_seconds + GREATEST(30, lease_seconds / 2)) || ' seconds')::interval < now()
RETURNING job_id, repo_id, job_type, last_error`

	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReclaimedLease
	for rows.Next() {
		var l ReclaimedLease
		if err := rows.Scan(&l.JobID, &l.RepoID, &l.JobType, &l.LastError); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type ListSyncJobsParams struct {
	Status string // "" means all
	RepoID int64  // 0 means all
	Limit  int32
}

func (q *Queries) ListSyncJobs(ctx context.Context, arg ListSyncJobsParams) ([]SyncJob, error) {
	const sql = `
SELECT job_id, repo_id, job_type, mode, priority, status, attempts,
       max_attempts, not_before, locked_by, locked_at, lease_seconds,
       last_error, last_run_id, payload_json, created_at, updated_at
FROM sync_jobs
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR repo_id = $2)
ORDER BY priority ASC, created_at ASC
LIMIT $3`

	rows, err := q.db.Query(ctx, sql, arg.Status, arg.RepoID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncJob
	for rows.Next() {
		var j SyncJob
		if err := rows.Scan(&j.JobID, &j.RepoID, &j.JobType, &j.Mode, &j.Priority, &j.Status, &j.Attempts,
			&j.MaxAttempts, &j.NotBefore, &j.LockedBy, &j.LockedAt, &j.LeaseSeconds,
			&j.LastError, &j.LastRunID, &j.PayloadJSON, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// CountJobsByStatus drives the scm_jobs_by_status gauge.
func (q *Queries) CountJobsByStatus(ctx context.Context) (map[string]int64, error) {
	const sql = `SELECT status, count(*) FROM sync_jobs GROUP BY status`

	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
