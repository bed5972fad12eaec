// Package queue implements C4: the Postgres-backed job queue. It owns the
// policy the DAO (internal/db) deliberately does not: payload validation,
// the dead-vs-retry decision on failure, backoff computation, the
// lock-held soft-requeue short-circuit, and the claim/allowlist
// normalization contract (pkg/scmsync/keys) so enqueue-time and
// claim-time instance keys always match byte-for-byte.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engramscm/engram-scm/internal/db"
	"github.com/engramscm/engram-scm/internal/redact"
	"github.com/engramscm/engram-scm/internal/scmerrors"
	"github.com/engramscm/engram-scm/pkg/scmsync/audit"
	"github.com/engramscm/engram-scm/pkg/scmsync/keys"
	"github.com/engramscm/engram-scm/pkg/scmsync/wakeup"
)

// uniqueViolation is Postgres's SQLSTATE for a unique constraint breach.
const uniqueViolation = "23505"

// IsDuplicatePending reports whether err is the unique-constraint breach
// from the partial index on sync_jobs (status='pending'), i.e. the
// scheduler's debounce rule (spec §4.6 "never enqueue a second pending
// job for the same (repo_id, job_type)") rejected this insert. Callers
// should treat this as a successful no-op, not a failure.
func IsDuplicatePending(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Defaults carries the backoff/soft-requeue/lease settings that would
// otherwise need threading through every call.
type Defaults struct {
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	SoftRequeueDelay  time.Duration
	DefaultMaxAttempts int32
}

// Queue wraps one Postgres pool.
type Queue struct {
	pool     *pgxpool.Pool
	cfg      Defaults
	notifier *wakeup.Publisher
	logger   *slog.Logger
}

func New(pool *pgxpool.Pool, cfg Defaults) *Queue {
	return &Queue{pool: pool, cfg: cfg}
}

// WithWakeup attaches the Redis pub/sub fast path: every successful
// Enqueue publishes a scm:job:enqueued:<job_type> notification after its
// Postgres insert commits. Returns q so it can be chained onto New.
func (q *Queue) WithWakeup(notifier *wakeup.Publisher, logger *slog.Logger) *Queue {
	q.notifier = notifier
	q.logger = logger
	return q
}

// EnqueueParams mirrors spec §4.4's enqueue_sync_job signature.
type EnqueueParams struct {
	RepoID      int64
	JobType     string
	Mode        string
	Priority    int32
	NotBefore   time.Time
	MaxAttempts int32
	Payload     map[string]any
}

// Enqueue validates the v2 payload schema, normalizes any gitlab_instance
// field it carries (so claim-time allowlist comparisons match byte-for-
// byte), and inserts the job.
func (q *Queue) Enqueue(ctx context.Context, p EnqueueParams) (uuid.UUID, error) {
	if err := ValidatePayload(p.Payload); err != nil {
		return uuid.UUID{}, err
	}

	if instance, ok := p.Payload["gitlab_instance"].(string); ok && instance != "" {
		p.Payload["gitlab_instance"] = keys.NormalizeInstanceKey(instance)
	}

	body, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.UUID{}, err
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = q.cfg.DefaultMaxAttempts
	}
	notBefore := p.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now().UTC()
	}

	jobID := uuid.New()
	err = db.New(q.pool).EnqueueSyncJob(ctx, db.EnqueueSyncJobParams{
		JobID:       jobID,
		RepoID:      p.RepoID,
		JobType:     p.JobType,
		Mode:        p.Mode,
		Priority:    p.Priority,
		NotBefore:   notBefore,
		MaxAttempts: maxAttempts,
		PayloadJSON: body,
	})
	if err != nil {
		return uuid.UUID{}, err
	}
	q.notifier.Publish(ctx, q.logger, p.JobType)
	return jobID, nil
}

// Job is the claimed-job view handed to a worker.
type Job struct {
	JobID       uuid.UUID
	RepoID      int64
	JobType     string
	Mode        string
	Attempts    int32
	MaxAttempts int32
	Payload     map[string]any
}

// ClaimOne claims the next eligible job, normalizing the caller's
// allowlist through the same function used at enqueue time, and touches
// the advisory sync_lock for (repo_id, job_type) with the same lease.
func (q *Queue) ClaimOne(ctx context.Context, workerID string, jobTypes []string, instanceAllowlist []string, leaseSeconds int32) (*Job, error) {
	normalizedAllowlist := keys.NormalizeAllowlist(instanceAllowlist)

	var job *Job
	err := db.BeginFunc(ctx, q.pool, func(qx *db.Queries) error {
		row, err := qx.ClaimOne(ctx, db.ClaimOneParams{
			WorkerID:          workerID,
			JobTypes:          jobTypes,
			InstanceAllowlist: normalizedAllowlist,
			LeaseSeconds:      leaseSeconds,
		})
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil
			}
			return err
		}

		var payload map[string]any
		if err := json.Unmarshal(row.PayloadJSON, &payload); err != nil {
			return fmt.Errorf("claim: decode payload_json: %w", err)
		}

		if _, err := qx.TryAcquireSyncLock(ctx, row.RepoID, row.JobType, workerID, leaseSeconds); err != nil {
			return err
		}

		job = &Job{
			JobID:       row.JobID,
			RepoID:      row.RepoID,
			JobType:     row.JobType,
			Mode:        row.Mode,
			Attempts:    row.Attempts,
			MaxAttempts: row.MaxAttempts,
			Payload:     payload,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Heartbeat refreshes a claimed job's lease. false means the caller has
// lost the lease and must abort without committing any work.
func (q *Queue) Heartbeat(ctx context.Context, jobID uuid.UUID, workerID string) (bool, error) {
	return db.New(q.pool).Heartbeat(ctx, jobID, workerID)
}

// Complete marks a job completed, releases its advisory lock, and records
// the outbox_flush_success half of the Reconcile audit rule (spec §4.4)
// under the job's fallback outbox_id, since none of the built-in job
// types write to logbook.outbox_memory directly.
func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID, workerID string, repoID int64, jobType string, runID uuid.UUID) (bool, error) {
	var ok bool
	err := db.BeginFunc(ctx, q.pool, func(qx *db.Queries) error {
		var err error
		ok, err = qx.CompleteJob(ctx, jobID, workerID, runID)
		if err != nil {
			return err
		}
		if err := qx.ReleaseSyncLock(ctx, repoID, jobType, workerID); err != nil {
			return err
		}
		return audit.RecordJobTransition(ctx, qx, jobID, repoID, jobType, false, nil)
	})
	return ok, err
}

// Fail applies the dead-vs-retry decision named in spec §4.4: a terminal
// category, or attempts at/above maxAttempts, sends the job straight to
// dead; otherwise it is requeued pending with not_before bumped by an
// exponential, jittered, capped backoff. Only the dead transition is
// terminal enough to warrant a Reconcile audit row (outbox_flush_dead); a
// requeued-pending job will still get its own audit row whenever it
// finally completes or exhausts its retries.
func (q *Queue) Fail(ctx context.Context, jobID uuid.UUID, workerID string, repoID int64, jobType string, attempts, maxAttempts int32, errMsg string, category scmerrors.Category) (bool, error) {
	nextStatus := "pending"
	if category.Terminal() || attempts >= maxAttempts {
		nextStatus = "dead"
	}

	notBefore := time.Now().UTC()
	if nextStatus == "pending" {
		notBefore = notBefore.Add(nextBackoff(int(attempts), q.cfg.InitialBackoff, q.cfg.MaxBackoff))
	}

	lastError := redact.String(errMsg)

	var ok bool
	err := db.BeginFunc(ctx, q.pool, func(qx *db.Queries) error {
		var err error
		ok, err = qx.FailJob(ctx, db.FailJobParams{
			JobID:      jobID,
			WorkerID:   workerID,
			NextStatus: nextStatus,
			LastError:  lastError,
			NotBefore:  notBefore,
		})
		if err != nil {
			return err
		}
		if err := qx.ReleaseSyncLock(ctx, repoID, jobType, workerID); err != nil {
			return err
		}
		if nextStatus != "dead" {
			return nil
		}
		return audit.RecordJobTransition(ctx, qx, jobID, repoID, jobType, true, &lastError)
	})
	return ok, err
}

// SoftRequeue implements the lock-held short-circuit (spec §4.4): no
// attempt-counter increment, just a fixed delay before the job is eligible
// again.
func (q *Queue) SoftRequeue(ctx context.Context, jobID uuid.UUID, workerID string, repoID int64, jobType string) (bool, error) {
	notBefore := time.Now().UTC().Add(q.cfg.SoftRequeueDelay)

	var ok bool
	err := db.BeginFunc(ctx, q.pool, func(qx *db.Queries) error {
		var err error
		ok, err = qx.SoftRequeue(ctx, jobID, workerID, notBefore)
		if err != nil {
			return err
		}
		return qx.ReleaseSyncLock(ctx, repoID, jobType, workerID)
	})
	return ok, err
}
