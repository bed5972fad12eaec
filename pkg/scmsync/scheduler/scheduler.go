// Package scheduler implements C6's enqueue loop: for every active repo
// and supported job_type, it reads the cursor age and breaker state and
// decides whether to enqueue incremental work, probe work, or nothing,
// per spec §4.6.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engramscm/engram-scm/internal/db"
	"github.com/engramscm/engram-scm/pkg/scmsync/breaker"
	"github.com/engramscm/engram-scm/pkg/scmsync/cursor"
	"github.com/engramscm/engram-scm/pkg/scmsync/keys"
	"github.com/engramscm/engram-scm/pkg/scmsync/queue"
)

// JobTypeConfig pairs one job_type with the cursor kind it advances and
// the staleness threshold that triggers a new incremental job.
type JobTypeConfig struct {
	JobType     string
	CursorKind  string
	WindowType  string // "time" or "rev", must match queue.ValidatePayload's enum
	StaleAfter  time.Duration
	Priority    int32
	MaxAttempts int32
}

// repoTypeJobs maps a repos.repo_type to the job types the scheduler
// drives for it, in spec §4.5's "gitlab_commits, gitlab_mrs, svn" set.
var repoTypeJobs = map[string][]string{
	"gitlab": {"gitlab_commits", "gitlab_mrs"},
	"svn":    {"svn"},
}

// Config tunes the scheduler's loop cadence and per-job-type thresholds.
type Config struct {
	Interval      time.Duration
	RepoBatchSize int32
	JobTypes      map[string]JobTypeConfig // keyed by job_type
	ProbeBudget   int
}

// DefaultJobTypeConfigs is the spec's baseline per-type staleness and
// priority configuration; callers may override individual entries.
func DefaultJobTypeConfigs() map[string]JobTypeConfig {
	return map[string]JobTypeConfig{
		"gitlab_commits": {
			JobType: "gitlab_commits", CursorKind: cursor.KindGitLabCommit,
			WindowType: "time", StaleAfter: 10 * time.Minute, Priority: 5, MaxAttempts: 5,
		},
		"gitlab_mrs": {
			JobType: "gitlab_mrs", CursorKind: cursor.KindGitLabMR,
			WindowType: "time", StaleAfter: 15 * time.Minute, Priority: 5, MaxAttempts: 5,
		},
		"svn": {
			JobType: "svn", CursorKind: cursor.KindSVNRevision,
			WindowType: "rev", StaleAfter: 10 * time.Minute, Priority: 5, MaxAttempts: 5,
		},
	}
}

// Scheduler is a background worker that enqueues incremental and probe
// sync jobs driven by cursor age and breaker health.
type Scheduler struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	cfg     Config
	breaker *breaker.Breaker
	queue   *queue.Queue
}

func New(pool *pgxpool.Pool, logger *slog.Logger, cfg Config, br *breaker.Breaker, q *queue.Queue) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.RepoBatchSize <= 0 {
		cfg.RepoBatchSize = 500
	}
	if cfg.JobTypes == nil {
		cfg.JobTypes = DefaultJobTypeConfigs()
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 10
	}
	return &Scheduler{pool: pool, logger: logger, cfg: cfg, breaker: br, queue: q}
}

// Run blocks, ticking every cfg.Interval until ctx is cancelled. It runs
// once immediately at start, mirroring a cold-start top-up.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.cfg.Interval)

	if err := s.tick(ctx); err != nil {
		s.logger.Error("initial scheduler tick", "error", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Error("scheduler tick", "error", err)
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	repos, err := db.New(s.pool).ListRepos(ctx, db.ListReposParams{Limit: s.cfg.RepoBatchSize})
	if err != nil {
		return fmt.Errorf("listing repos: %w", err)
	}

	cursors, err := db.New(s.pool).ListAllCursors(ctx)
	if err != nil {
		return fmt.Errorf("listing cursors: %w", err)
	}
	byRepoAndKind := make(map[repoKindKey]db.SyncCursor, len(cursors))
	for _, c := range cursors {
		byRepoAndKind[repoKindKey{c.RepoID, c.Kind}] = c
	}

	now := time.Now()
	for _, repo := range repos {
		for _, jobType := range repoTypeJobs[repo.RepoType] {
			jtc, ok := s.cfg.JobTypes[jobType]
			if !ok {
				continue
			}
			c, hasCursor := byRepoAndKind[repoKindKey{repo.RepoID, jtc.CursorKind}]
			if err := s.evaluateOne(ctx, repo, jtc, c, hasCursor, now); err != nil {
				s.logger.Error("scheduling repo job", "repo_id", repo.RepoID, "job_type", jobType, "error", err)
			}
		}
	}
	return nil
}

type repoKindKey struct {
	repoID int64
	kind   string
}

// evaluateOne applies spec §4.6's decision tree for one (repo, job_type)
// pair: skip on open, probe on half_open, incremental on closed+stale.
func (s *Scheduler) evaluateOne(ctx context.Context, repo db.Repo, jtc JobTypeConfig, c db.SyncCursor, hasCursor bool, now time.Time) error {
	instanceKey := keys.ExtractInstanceKey(nil, repo.URL)
	breakerKey := keys.BuildCircuitBreakerKey(repo.ProjectKey, breaker.ScopeInstance(instanceKey))

	status, err := s.breaker.Check(ctx, breakerKey)
	if err != nil {
		return fmt.Errorf("checking breaker: %w", err)
	}

	switch status.State {
	case breaker.Open:
		return nil
	case breaker.HalfOpen:
		return s.enqueueProbe(ctx, repo, jtc, status)
	}

	if !isStale(c, hasCursor, jtc.StaleAfter, now) {
		return nil
	}

	return s.enqueueIncremental(ctx, repo, jtc, status)
}

// isStale reports whether a cursor has never advanced (hasCursor false),
// or its last advance predates the job type's staleness threshold.
func isStale(c db.SyncCursor, hasCursor bool, staleAfter time.Duration, now time.Time) bool {
	if !hasCursor {
		return true
	}
	return now.Sub(c.UpdatedAt) > staleAfter
}

func (s *Scheduler) enqueueProbe(ctx context.Context, repo db.Repo, jtc JobTypeConfig, status breaker.Status) error {
	payload := s.basePayload(jtc, status, "probe")
	payload["probe_budget"] = s.cfg.ProbeBudget

	_, err := s.queue.Enqueue(ctx, queue.EnqueueParams{
		RepoID:      repo.RepoID,
		JobType:     jtc.JobType,
		Mode:        "probe",
		Priority:    jtc.Priority,
		MaxAttempts: jtc.MaxAttempts,
		Payload:     payload,
	})
	if err != nil && queue.IsDuplicatePending(err) {
		return nil
	}
	return err
}

func (s *Scheduler) enqueueIncremental(ctx context.Context, repo db.Repo, jtc JobTypeConfig, status breaker.Status) error {
	payload := s.basePayload(jtc, status, "incremental")

	_, err := s.queue.Enqueue(ctx, queue.EnqueueParams{
		RepoID:      repo.RepoID,
		JobType:     jtc.JobType,
		Mode:        "incremental",
		Priority:    jtc.Priority,
		MaxAttempts: jtc.MaxAttempts,
		Payload:     payload,
	})
	if err != nil && queue.IsDuplicatePending(err) {
		return nil
	}
	return err
}

// basePayload builds the v2 job payload shared by probe and incremental
// dispatches, folding in any breaker-suggested degradation.
func (s *Scheduler) basePayload(jtc JobTypeConfig, status breaker.Status, mode string) map[string]any {
	payload := map[string]any{
		"version":     "v2",
		"window_type": jtc.WindowType,
		"mode":        mode,
	}
	switch jtc.WindowType {
	case "time":
		payload["since"] = time.Now().UTC().Add(-jtc.StaleAfter * 2).Format(time.RFC3339)
	case "rev":
		payload["start_rev"] = 0
	}

	if status.Degradation.SuggestedDiffMode != "" {
		payload["diff_mode"] = status.Degradation.SuggestedDiffMode
	}
	if status.Degradation.SuggestedBatchSize > 0 {
		payload["probe_budget"] = status.Degradation.SuggestedBatchSize
	}

	return payload
}
