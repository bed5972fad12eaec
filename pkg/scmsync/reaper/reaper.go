// Package reaper implements C6's lease-reclaim and audit-backfill loops:
// a single-leader sweep that moves stale "running" jobs back to pending and
// back-fills missing governance.write_audit rows for outbox state changes
// per spec §4.6. Both passes are idempotent; running either twice against
// unchanged data produces zero further writes.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engramscm/engram-scm/internal/db"
	"github.com/engramscm/engram-scm/internal/redact"
	"github.com/engramscm/engram-scm/pkg/scmsync/audit"
)

// Config tunes the reaper's loop cadence and backfill batch size.
type Config struct {
	Interval     time.Duration
	BackfillSize int32
	// AutoFix selects active mode (actually writes) vs. report mode (only
	// counts, per spec §4.6 "Report mode (auto_fix=false) only counts and
	// prints; active mode actually writes").
	AutoFix bool
}

// Reaper is a background worker that reclaims expired sync_jobs leases and
// back-fills missing outbox audit rows.
type Reaper struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	cfg    Config
}

func New(pool *pgxpool.Pool, logger *slog.Logger, cfg Config) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BackfillSize <= 0 {
		cfg.BackfillSize = 100
	}
	return &Reaper{pool: pool, logger: logger, cfg: cfg}
}

// Run blocks, sweeping every cfg.Interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("reaper started", "interval", r.cfg.Interval, "auto_fix", r.cfg.AutoFix)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return nil
		case <-ticker.C:
			if err := r.tick(ctx); err != nil {
				r.logger.Error("reaper tick", "error", redact.String(err.Error()))
			}
		}
	}
}

// Report summarizes one sweep, whether run in report or active mode.
type Report struct {
	LeasesReclaimed int
	AuditGapsFound  int
	AuditGapsFixed  int
}

func (r *Reaper) tick(ctx context.Context) error {
	report, err := r.Sweep(ctx)
	if err != nil {
		return err
	}
	if report.LeasesReclaimed > 0 || report.AuditGapsFound > 0 {
		r.logger.Info("reaper sweep",
			"leases_reclaimed", report.LeasesReclaimed,
			"audit_gaps_found", report.AuditGapsFound,
			"audit_gaps_fixed", report.AuditGapsFixed,
		)
	}
	return nil
}

// Sweep runs one reclaim-leases pass and one audit-backfill pass. In report
// mode (AutoFix=false) the reclaim pass still runs (leases must always be
// reclaimed so a new worker can pick the job up) but the audit-backfill
// pass only counts gaps and writes nothing.
func (r *Reaper) Sweep(ctx context.Context) (Report, error) {
	var report Report

	reclaimed, err := r.reclaimLeases(ctx)
	if err != nil {
		return report, fmt.Errorf("reclaiming leases: %w", err)
	}
	report.LeasesReclaimed = len(reclaimed)

	gaps, err := db.New(r.pool).FindOutboxAuditGaps(ctx, r.cfg.BackfillSize)
	if err != nil {
		return report, fmt.Errorf("scanning outbox audit gaps: %w", err)
	}
	report.AuditGapsFound = len(gaps)

	if !r.cfg.AutoFix {
		return report, nil
	}

	q := db.New(r.pool)
	for _, gap := range gaps {
		if gap.ExpectedEvent == "" {
			continue
		}
		err := audit.RecordOutboxEvent(ctx, q, gap.OutboxID, gap.ExpectedEvent, gap.LastError, map[string]any{
			"outbox_id": gap.OutboxID,
		})
		if err != nil {
			r.logger.Error("backfilling outbox audit", "error", redact.String(err.Error()), "outbox_id", gap.OutboxID, "event_type", gap.ExpectedEvent)
			continue
		}
		report.AuditGapsFixed++
	}

	return report, nil
}

// reclaimLeases moves stale "running" sync_jobs rows back to pending and
// emits an outbox_stale audit per reclaimed job. sync_jobs carries no
// direct outbox linkage for the built-in gitlab_commits/gitlab_mrs/svn job
// types (those never write to logbook.outbox_memory), so outbox_id is
// empty for them; the "(if any)" qualifier in spec §4.6 covers exactly
// this case. A job_type that does front an outbox write can populate
// outbox_id via payload in a future handler without changing this shape.
func (r *Reaper) reclaimLeases(ctx context.Context) ([]db.ReclaimedLease, error) {
	reclaimed, err := db.New(r.pool).ReclaimStaleLeases(ctx)
	if err != nil {
		return nil, err
	}

	q := db.New(r.pool)
	for _, lease := range reclaimed {
		if !r.cfg.AutoFix {
			continue
		}
		outboxID := outboxIDForJob(lease)
		err := audit.RecordOutboxEvent(ctx, q, audit.OutboxIDOrFallback(outboxID, lease.JobID), audit.EventStale, lease.LastError, map[string]any{
			"outbox_id":  outboxID,
			"last_error": lease.LastError,
			"repo_id":    lease.RepoID,
			"job_type":   lease.JobType,
		})
		if err != nil {
			r.logger.Error("recording outbox_stale audit", "error", redact.String(err.Error()), "job_id", lease.JobID)
		}
	}

	if _, err := db.New(r.pool).ReapExpiredSyncLocks(ctx); err != nil {
		r.logger.Error("reaping expired sync locks", "error", redact.String(err.Error()))
	}

	return reclaimed, nil
}

// outboxIDForJob returns the outbox row this job's work feeds, or "" when
// the job type never writes to the outbox.
func outboxIDForJob(lease db.ReclaimedLease) string {
	return ""
}
