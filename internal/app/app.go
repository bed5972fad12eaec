package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/engramscm/engram-scm/internal/config"
	"github.com/engramscm/engram-scm/internal/httpserver"
	"github.com/engramscm/engram-scm/internal/platform"
	"github.com/engramscm/engram-scm/internal/telemetry"
	"github.com/engramscm/engram-scm/pkg/scmsync/breaker"
	"github.com/engramscm/engram-scm/pkg/scmsync/executor"
	"github.com/engramscm/engram-scm/pkg/scmsync/limiter"
	"github.com/engramscm/engram-scm/pkg/scmsync/queue"
	"github.com/engramscm/engram-scm/pkg/scmsync/reaper"
	"github.com/engramscm/engram-scm/pkg/scmsync/scheduler"
	"github.com/engramscm/engram-scm/pkg/scmsync/wakeup"
	"github.com/engramscm/engram-scm/pkg/scmsync/worker"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the mode named by cfg.Mode: serve, worker,
// scheduler, or reaper.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting engram-scm",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsGlobalDir); err != nil {
		return fmt.Errorf("running global migrations: %w", err)
	}
	logger.Info("global migrations applied")

	if err := platform.RunSchemaMigrations(cfg.DatabaseURL, cfg.MigrationsSchemaDir); err != nil {
		return fmt.Errorf("running schema migrations: %w", err)
	}
	logger.Info("schema migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "serve":
		return runServe(ctx, cfg, logger, pool, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, pool)
	case "scheduler":
		return runScheduler(ctx, cfg, logger, pool)
	case "reaper":
		return runReaper(ctx, cfg, logger, pool)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// runServe starts the read-only health/metrics/status HTTP surface named
// in spec §6; there is no authenticated write API, so this mode has no
// dependency on the queue, limiter, breaker, or executor.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, metricsReg *prometheus.Registry) error {
	srv := httpserver.NewServer(cfg, logger, pool, metricsReg)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serve listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down serve")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newExecutor builds the C5 dispatch registry. The concrete GitLab/SVN
// wire clients (pkg/scmsync/handlers' GitLabCommitsClient, GitLabMRClient,
// SVNClient) have no implementation anywhere in this repo — only the
// dispatch/translate/cursor-advance logic around them is in scope, per
// that package's doc comment. A deployment that wants gitlab_commits,
// gitlab_mrs, or svn jobs actually executed supplies those clients and
// registers the handlers itself; out of the box this binary runs the
// full C1-C4/C6 control plane against an empty C5 registry, so any
// claimed job resolves to the executor's unknown_job_type contract error
// rather than panicking on a nil client.
func newExecutor() *executor.Executor {
	return executor.New(map[string]executor.Handler{})
}

// connectWakeup dials Redis for the pub/sub wake-up fast path. Redis is
// purely a latency optimization over the poll loop (spec §5 keeps
// Postgres the sole source of truth), so a connection failure here is
// logged and swallowed rather than propagated: every caller degrades to
// pure poll-interval cadence instead of failing to start.
func connectWakeup(ctx context.Context, cfg *config.Config, logger *slog.Logger) *redis.Client {
	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("wakeup: redis unavailable, falling back to poll-only", "error", err)
		return nil
	}
	return rdb
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool) error {
	q := queue.New(pool, queue.Defaults{
		InitialBackoff:     time.Second,
		MaxBackoff:         5 * time.Minute,
		SoftRequeueDelay:   time.Duration(cfg.SoftRequeueSeconds) * time.Second,
		DefaultMaxAttempts: int32(cfg.MaxAttempts),
	})
	lim := limiter.New(pool, limiter.Defaults{
		Rate:  cfg.LimiterDefaultRate,
		Burst: cfg.LimiterDefaultBurst,
	})
	br := breaker.New(pool, breaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		OpenDuration:     time.Duration(cfg.BreakerOpenSeconds) * time.Second,
		HalfOpenProbes:   cfg.BreakerHalfOpenProbes,
	})
	ex := newExecutor()

	w := worker.New(pool, logger, worker.Config{
		WorkerID:       cfg.WorkerID,
		LeaseSeconds:   int32(cfg.LeaseSeconds),
		PollInterval:   time.Duration(cfg.ClaimPollSeconds) * time.Second,
		LimiterWaitMax: time.Duration(cfg.LimiterWaitMaxMS) * time.Millisecond,
	}, q, lim, br, ex)

	if rdb := connectWakeup(ctx, cfg, logger); rdb != nil {
		defer rdb.Close()
		w.WithWakeup(wakeup.NewSubscriber(ctx, rdb))
	}

	return w.Run(ctx)
}

func runScheduler(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool) error {
	q := queue.New(pool, queue.Defaults{
		InitialBackoff:     time.Second,
		MaxBackoff:         5 * time.Minute,
		SoftRequeueDelay:   time.Duration(cfg.SoftRequeueSeconds) * time.Second,
		DefaultMaxAttempts: int32(cfg.MaxAttempts),
	})
	if rdb := connectWakeup(ctx, cfg, logger); rdb != nil {
		defer rdb.Close()
		q.WithWakeup(wakeup.NewPublisher(rdb), logger)
	}
	br := breaker.New(pool, breaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		OpenDuration:     time.Duration(cfg.BreakerOpenSeconds) * time.Second,
		HalfOpenProbes:   cfg.BreakerHalfOpenProbes,
	})

	s := scheduler.New(pool, logger, scheduler.Config{
		Interval: time.Duration(cfg.SchedulerIntervalSeconds) * time.Second,
		JobTypes: scheduler.DefaultJobTypeConfigs(),
	}, br, q)

	return s.Run(ctx)
}

func runReaper(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool) error {
	r := reaper.New(pool, logger, reaper.Config{
		Interval:     time.Duration(cfg.ReaperIntervalSeconds) * time.Second,
		BackfillSize: int32(cfg.ReaperAuditBackfillLimit),
		AutoFix:      true,
	})

	return r.Run(ctx)
}
