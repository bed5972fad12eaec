// Package worker implements the claim-execute driving loop named in spec
// §2's control flow: "a Worker claims a job, acquires a limiter permit
// (C3), checks the breaker (C3), dispatches to C5, receives a C2
// envelope, advances the cursor and writes a sync_run, updates
// breaker/limiter state." It is the one place that wires C3/C4/C5
// together; none of those packages know about each other directly.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engramscm/engram-scm/internal/db"
	"github.com/engramscm/engram-scm/internal/redact"
	"github.com/engramscm/engram-scm/internal/scmerrors"
	"github.com/engramscm/engram-scm/pkg/scmsync/breaker"
	"github.com/engramscm/engram-scm/pkg/scmsync/executor"
	"github.com/engramscm/engram-scm/pkg/scmsync/keys"
	"github.com/engramscm/engram-scm/pkg/scmsync/limiter"
	"github.com/engramscm/engram-scm/pkg/scmsync/queue"
	"github.com/engramscm/engram-scm/pkg/scmsync/result"
	"github.com/engramscm/engram-scm/pkg/scmsync/wakeup"
)

// Config tunes one worker's claim loop.
type Config struct {
	WorkerID          string
	JobTypes          []string
	InstanceAllowlist []string
	LeaseSeconds      int32
	PollInterval      time.Duration
	LimiterWaitMax    time.Duration
}

// Worker drives one claim-execute-complete cycle at a time; run several
// concurrently (one goroutine each) to parallelize across instances.
type Worker struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	cfg      Config
	queue    *queue.Queue
	limiter  *limiter.Limiter
	breaker  *breaker.Breaker
	executor *executor.Executor
	wake     *wakeup.Subscriber
}

func New(pool *pgxpool.Pool, logger *slog.Logger, cfg Config, q *queue.Queue, l *limiter.Limiter, br *breaker.Breaker, ex *executor.Executor) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.LeaseSeconds <= 0 {
		cfg.LeaseSeconds = 300
	}
	if cfg.LimiterWaitMax <= 0 {
		cfg.LimiterWaitMax = 2 * time.Second
	}
	return &Worker{pool: pool, logger: logger, cfg: cfg, queue: q, limiter: l, breaker: br, executor: ex}
}

// WithWakeup attaches the Redis pub/sub fast path: Run selects on this
// subscriber's channel alongside its poll ticker, so a claimable-work
// notification wakes it before the next tick. A nil subscriber (no Redis
// configured) leaves Run on pure poll-interval cadence.
func (w *Worker) WithWakeup(sub *wakeup.Subscriber) *Worker {
	w.wake = sub
	return w
}

// Run blocks, polling for claimable work every cfg.PollInterval until ctx
// is cancelled, waking early on a wakeup notification if one is attached.
// A claimed job is always handled to completion (complete, fail, or
// soft-requeue) before the next claim attempt.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "worker_id", w.cfg.WorkerID, "job_types", w.cfg.JobTypes)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	defer w.wake.Close()

	for {
		job, err := w.queue.ClaimOne(ctx, w.cfg.WorkerID, w.cfg.JobTypes, w.cfg.InstanceAllowlist, w.cfg.LeaseSeconds)
		if err != nil {
			w.logger.Error("claim", "error", redact.String(err.Error()))
		} else if job != nil {
			w.handle(ctx, job)
			continue // try to claim again immediately; don't wait out the ticker
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", "worker_id", w.cfg.WorkerID)
			return nil
		case <-ticker.C:
		case <-w.wake.C():
		}
	}
}

// handle runs one claimed job through limiter -> breaker -> executor and
// resolves it to complete/fail/soft-requeue.
func (w *Worker) handle(ctx context.Context, job *queue.Job) {
	repo, err := db.New(w.pool).GetRepoByID(ctx, job.RepoID)
	if err != nil {
		w.logger.Error("loading repo for claimed job", "job_id", job.JobID, "repo_id", job.RepoID, "error", redact.String(err.Error()))
		w.fail(ctx, job, "loading repo: "+err.Error(), scmerrors.CategoryException)
		return
	}

	instanceKey, tenantID := keys.ExtractInstanceAndTenant(job.Payload, repo.URL, repo.ProjectKey)
	breakerKey := keys.BuildCircuitBreakerKey(repo.ProjectKey, breaker.ScopeInstance(instanceKey))
	_ = tenantID // kept for parity with the scheduler/status label set; not yet used for a tenant-scoped breaker scope here

	status, err := w.breaker.Check(ctx, breakerKey)
	if err != nil {
		w.logger.Error("breaker check", "job_id", job.JobID, "error", redact.String(err.Error()))
		w.fail(ctx, job, "breaker check: "+err.Error(), scmerrors.CategoryException)
		return
	}
	if status.State == breaker.Open {
		w.fail(ctx, job, "circuit breaker open", scmerrors.CategoryCircuitOpen)
		return
	}
	if breakerBlocksDispatch(status.State, job.Mode) {
		w.softRequeue(ctx, job)
		return
	}

	if _, err := w.limiter.Acquire(ctx, instanceKey, w.cfg.LimiterWaitMax); err != nil {
		if errors.Is(err, limiter.ErrWouldBlock) {
			w.softRequeue(ctx, job)
			return
		}
		w.logger.Error("limiter acquire", "job_id", job.JobID, "error", redact.String(err.Error()))
		w.fail(ctx, job, "limiter acquire: "+err.Error(), scmerrors.CategoryException)
		return
	}

	runID := uuid.New()
	if err := db.New(w.pool).InsertSyncRunStart(ctx, db.InsertSyncRunStartParams{
		RunID:   runID,
		RepoID:  job.RepoID,
		JobType: job.JobType,
		Mode:    job.Mode,
	}); err != nil {
		w.logger.Error("recording sync run start", "job_id", job.JobID, "error", redact.String(err.Error()))
		w.fail(ctx, job, "recording sync run start: "+err.Error(), scmerrors.CategoryException)
		return
	}

	execCtx, stopHeartbeat := w.withHeartbeat(ctx, job)
	res := w.executor.Execute(execCtx, job.JobType, job.RepoID, job.Mode, job.Payload)
	stopHeartbeat()

	if err := w.finishRun(ctx, runID, res); err != nil {
		w.logger.Error("recording sync run finish", "job_id", job.JobID, "run_id", runID, "error", redact.String(err.Error()))
	}

	if res.Locked && res.Skipped {
		w.softRequeue(ctx, job)
		return
	}

	if !res.Success {
		w.updateHealthOnFailure(ctx, breakerKey, instanceKey, res.ErrorCategory)
		w.fail(ctx, job, res.Error, res.ErrorCategory)
		return
	}

	w.updateHealthOnSuccess(ctx, breakerKey, instanceKey)
	if _, err := w.queue.Complete(ctx, job.JobID, w.cfg.WorkerID, job.RepoID, job.JobType, runID); err != nil {
		w.logger.Error("completing job", "job_id", job.JobID, "error", redact.String(err.Error()))
	}
}

// withHeartbeat refreshes a claimed job's lease at 1/3 of the lease
// duration while the returned cancel func has not been called, so a
// handler running longer than LeaseSeconds is not silently reclaimed by
// the reaper out from under it. If Heartbeat reports the lease is gone
// (lost to a reclaim or another worker), it cancels the execution context
// so the handler observes ctx.Done() and can abort; this is the
// "observable via heartbeat returning false" cancellation path named in
// spec §5. Exactly-once into fact tables does not depend on this: it
// still holds via idempotent upserts and the locked_by guard on
// CompleteJob even if a handler ignores cancellation.
func (w *Worker) withHeartbeat(ctx context.Context, job *queue.Job) (context.Context, func()) {
	execCtx, cancel := context.WithCancel(ctx)

	interval := w.cfg.LeaseSeconds / 3
	if interval < 1 {
		interval = 1
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(interval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-execCtx.Done():
				return
			case <-ticker.C:
				ok, err := w.queue.Heartbeat(ctx, job.JobID, w.cfg.WorkerID)
				if err != nil {
					w.logger.Error("heartbeat", "job_id", job.JobID, "error", redact.String(err.Error()))
					continue
				}
				if !ok {
					w.logger.Warn("heartbeat: lease lost, cancelling handler", "job_id", job.JobID)
					cancel()
					return
				}
			}
		}
	}()

	return execCtx, func() {
		close(done)
		cancel()
	}
}

// finishRun persists result.BuildCounts' curated counter subset as
// sync_runs.counts and transitions the run to completed or failed per
// spec §3's monotonic status rule.
func (w *Worker) finishRun(ctx context.Context, runID uuid.UUID, res result.SyncResult) error {
	status := "completed"
	if !res.Success {
		status = "failed"
	}

	countsMap, err := result.BuildCounts(res)
	if err != nil {
		return err
	}
	counts, err := json.Marshal(countsMap)
	if err != nil {
		return err
	}

	var cursorAfter []byte
	if res.CursorAfter != nil {
		cursorAfter, err = json.Marshal(res.CursorAfter)
		if err != nil {
			return err
		}
	}

	var errorSummary []byte
	if !res.Success {
		errorSummary, err = json.Marshal(map[string]string{
			"error":    redact.String(res.Error),
			"category": string(res.ErrorCategory),
		})
		if err != nil {
			return err
		}
	}

	return db.New(w.pool).InsertSyncRunFinish(ctx, db.InsertSyncRunFinishParams{
		RunID:       runID,
		Status:      status,
		Counts:      counts,
		CursorAfter: cursorAfter,
		ErrorSummaryJSON: errorSummary,
	})
}

// updateHealthOnFailure routes a failure to the breaker and, for the two
// categories the limiter specifically backs off on, the limiter too.
func (w *Worker) updateHealthOnFailure(ctx context.Context, breakerKey, instanceKey string, category scmerrors.Category) {
	if _, err := w.breaker.RecordFailure(ctx, breakerKey); err != nil {
		w.logger.Error("breaker record failure", "key", breakerKey, "error", redact.String(err.Error()))
	}
	switch category {
	case scmerrors.CategoryRateLimit:
		if err := w.limiter.Record429(ctx, instanceKey, 30*time.Second); err != nil {
			w.logger.Error("limiter record 429", "key", instanceKey, "error", redact.String(err.Error()))
		}
	case scmerrors.CategoryTimeout:
		if err := w.limiter.RecordTimeout(ctx, instanceKey, 15*time.Second); err != nil {
			w.logger.Error("limiter record timeout", "key", instanceKey, "error", redact.String(err.Error()))
		}
	}
}

func (w *Worker) updateHealthOnSuccess(ctx context.Context, breakerKey, instanceKey string) {
	if _, err := w.breaker.RecordSuccess(ctx, breakerKey); err != nil {
		w.logger.Error("breaker record success", "key", breakerKey, "error", redact.String(err.Error()))
	}
	if err := w.limiter.RecordSuccess(ctx, instanceKey); err != nil {
		w.logger.Error("limiter record success", "key", instanceKey, "error", redact.String(err.Error()))
	}
}

func (w *Worker) fail(ctx context.Context, job *queue.Job, errMsg string, category scmerrors.Category) {
	if !category.Valid() {
		category = scmerrors.CategoryUnknown
	}
	if _, err := w.queue.Fail(ctx, job.JobID, w.cfg.WorkerID, job.RepoID, job.JobType, job.Attempts, job.MaxAttempts, errMsg, category); err != nil {
		w.logger.Error("failing job", "job_id", job.JobID, "error", redact.String(err.Error()))
	}
}

func (w *Worker) softRequeue(ctx context.Context, job *queue.Job) {
	if _, err := w.queue.SoftRequeue(ctx, job.JobID, w.cfg.WorkerID, job.RepoID, job.JobType); err != nil {
		w.logger.Error("soft requeueing job", "job_id", job.JobID, "error", redact.String(err.Error()))
	}
}

// breakerBlocksDispatch reports whether a half_open breaker should defer a
// job rather than dispatch it: only the scheduler's dedicated probe jobs
// are allowed through while the breaker is testing recovery.
func breakerBlocksDispatch(state breaker.State, mode string) bool {
	return state == breaker.HalfOpen && mode != "probe"
}
