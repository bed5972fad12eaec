package db

import (
	"context"
	"time"
)

// StatusSummary is the row set behind get_sync_status_summary: one row per
// (repo_id, job_type) pair showing queue depth and the most recent run.
type StatusSummary struct {
	RepoID        int64
	JobType       string
	PendingCount  int64
	RunningCount  int64
	DeadCount     int64
	LastRunStatus *string
}

// GetSyncStatusSummary aggregates sync_jobs by (repo_id, job_type) and
// joins the most recent sync_runs.status, driving the status/metrics
// surface named in spec §4.1.
func (q *Queries) GetSyncStatusSummary(ctx context.Context) ([]StatusSummary, error) {
	const sql = `
SELECT
  j.repo_id,
  j.job_type,
  count(*) FILTER (WHERE j.status = 'pending')  AS pending_count,
  count(*) FILTER (WHERE j.status = 'running')  AS running_count,
  count(*) FILTER (WHERE j.status = 'dead')     AS dead_count,
  (
    SELECT r.status FROM sync_runs r
    WHERE r.repo_id = j.repo_id AND r.job_type = j.job_type
    ORDER BY r.started_at DESC LIMIT 1
  ) AS last_run_status
FROM sync_jobs j
GROUP BY j.repo_id, j.job_type
ORDER BY j.repo_id ASC, j.job_type ASC`

	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusSummary
	for rows.Next() {
		var s StatusSummary
		if err := rows.Scan(&s.RepoID, &s.JobType, &s.PendingCount, &s.RunningCount, &s.DeadCount, &s.LastRunStatus); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RunOutcome is the minimal sync_runs projection the error budget needs:
// a finished run's terminal status and its error_summary_json (nil for
// completed runs), carrying enough to classify into failure/429/timeout.
type RunOutcome struct {
	Status           string
	ErrorSummaryJSON []byte
}

// ListRunOutcomesSince returns every sync_runs row that finished at or
// after since, feeding the error budget's count/rate windows.
func (q *Queries) ListRunOutcomesSince(ctx context.Context, since time.Time) ([]RunOutcome, error) {
	const sql = `
SELECT status, error_summary_json
FROM sync_runs
WHERE finished_at IS NOT NULL AND finished_at >= $1`

	rows, err := q.db.Query(ctx, sql, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunOutcome
	for rows.Next() {
		var o RunOutcome
		if err := rows.Scan(&o.Status, &o.ErrorSummaryJSON); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// PendingBackoffJob is a pending sync_jobs row whose not_before is still
// in the future, i.e. it is sitting out a retry backoff. ProjectKey and
// URL come along so the caller can resolve instance_key/tenant_id the
// same way the queue and breaker do.
type PendingBackoffJob struct {
	JobType     string
	PayloadJSON []byte
	NotBefore   time.Time
	ProjectKey  string
	URL         string
}

// ListPendingBackoffJobs returns every pending job still waiting out a
// retry delay, driving scm_retry_backoff_seconds.
func (q *Queries) ListPendingBackoffJobs(ctx context.Context) ([]PendingBackoffJob, error) {
	const sql = `
SELECT j.job_type, j.payload_json, j.not_before, r.project_key, r.url
FROM sync_jobs j
JOIN repos r ON r.repo_id = j.repo_id
WHERE j.status = 'pending' AND j.not_before > now() AND j.attempts > 0`

	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingBackoffJob
	for rows.Next() {
		var p PendingBackoffJob
		if err := rows.Scan(&p.JobType, &p.PayloadJSON, &p.NotBefore, &p.ProjectKey, &p.URL); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
