// Package status builds the read-only status summary and Prometheus
// surface named in spec §4.1 and §6: one pass over sync_jobs, sync_runs,
// health_kv, and rate_limit_buckets, reduced into the gauges the operator
// dashboard and the health-check CLI consume.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engramscm/engram-scm/internal/db"
	"github.com/engramscm/engram-scm/pkg/scmsync/keys"
)

const breakerNamespace = "scm.sync_health"

// errorBudgetWindow is how far back ListRunOutcomesSince looks when
// computing the failure/429/timeout rates.
const errorBudgetWindow = 1 * time.Hour

// RepoJobStatus is one row of the per-(repo, job_type) summary.
type RepoJobStatus struct {
	RepoID        int64
	JobType       string
	PendingCount  int64
	RunningCount  int64
	DeadCount     int64
	LastRunStatus string
}

// ErrorBudget holds the raw count and per-minute rate for one error kind
// over errorBudgetWindow.
type ErrorBudget struct {
	FailureCount int
	FailureRate  float64
	Count429     int
	Rate429      float64
	TimeoutCount int
	TimeoutRate  float64
}

// BreakerState is one scm.sync_health row, reduced to the 0/1/2 encoding
// telemetry.CircuitBreakerState documents.
type BreakerState struct {
	Key   string
	State string
	Value float64
}

// RateLimitBucket is the status view of one rate_limit_buckets row.
type RateLimitBucket struct {
	InstanceKey  string
	Tokens       float64
	Paused       bool
	PauseSeconds float64
	PauseReason  string
}

// RetryBackoff is one pending job currently sitting out a backoff delay.
type RetryBackoff struct {
	InstanceKey    string
	TenantID       string
	JobType        string
	RemainingSeconds float64
}

// Summary is the full aggregation consumed by both the JSON status
// endpoint and UpdateMetrics.
type Summary struct {
	GeneratedAt    time.Time
	ReposTotal     int64
	ReposByType    map[string]int64
	JobsByStatus   map[string]int64
	ByRepoJob      []RepoJobStatus
	ErrorBudget    ErrorBudget
	Breakers       []BreakerState
	RateBuckets    []RateLimitBucket
	RetryBackoffs  []RetryBackoff
	PausedByReason map[string]int64
}

// breakerRecord mirrors the JSON shape pkg/scmsync/breaker persists; kept
// as an independent, minimal decode target rather than importing the
// breaker package's unexported record type.
type breakerRecord struct {
	State string `json:"state"`
}

// bucketMeta mirrors the meta_json shape pkg/scmsync/limiter persists
// alongside a pause.
type bucketMeta struct {
	PauseSource string `json:"pause_source"`
}

// GetSyncSummary runs the full aggregation in a handful of read-only
// queries, one per table; it takes no lock and is safe to call from the
// metrics HTTP handler on every scrape.
func GetSyncSummary(ctx context.Context, pool *pgxpool.Pool) (Summary, error) {
	q := db.New(pool)
	now := time.Now().UTC()

	sum := Summary{
		GeneratedAt:    now,
		ReposByType:    map[string]int64{},
		JobsByStatus:   map[string]int64{},
		PausedByReason: map[string]int64{},
	}

	repos, err := q.ListRepos(ctx, db.ListReposParams{Limit: 100000})
	if err != nil {
		return Summary{}, fmt.Errorf("listing repos: %w", err)
	}
	sum.ReposTotal = int64(len(repos))
	for _, r := range repos {
		sum.ReposByType[r.RepoType]++
	}

	byRepoJob, err := q.GetSyncStatusSummary(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("loading status summary: %w", err)
	}
	sum.ByRepoJob = make([]RepoJobStatus, 0, len(byRepoJob))
	for _, row := range byRepoJob {
		sum.JobsByStatus["pending"] += row.PendingCount
		sum.JobsByStatus["running"] += row.RunningCount
		sum.JobsByStatus["dead"] += row.DeadCount

		last := ""
		if row.LastRunStatus != nil {
			last = *row.LastRunStatus
		}
		sum.ByRepoJob = append(sum.ByRepoJob, RepoJobStatus{
			RepoID:        row.RepoID,
			JobType:       row.JobType,
			PendingCount:  row.PendingCount,
			RunningCount:  row.RunningCount,
			DeadCount:     row.DeadCount,
			LastRunStatus: last,
		})
	}

	outcomes, err := q.ListRunOutcomesSince(ctx, now.Add(-errorBudgetWindow))
	if err != nil {
		return Summary{}, fmt.Errorf("loading run outcomes: %w", err)
	}
	sum.ErrorBudget = aggregateErrorBudget(outcomes, errorBudgetWindow)

	breakerRows, err := q.ListHealthKV(ctx, breakerNamespace)
	if err != nil {
		return Summary{}, fmt.Errorf("loading breaker states: %w", err)
	}
	sum.Breakers = aggregateBreakers(breakerRows)

	buckets, err := q.ListRateLimitBuckets(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("loading rate limit buckets: %w", err)
	}
	sum.RateBuckets, sum.PausedByReason = aggregateRateBuckets(buckets, now)

	pending, err := q.ListPendingBackoffJobs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("loading pending backoffs: %w", err)
	}
	sum.RetryBackoffs = aggregateRetryBackoffs(pending, now)

	return sum, nil
}

// aggregateErrorBudget classifies each finished run into at most one of
// failure/429/timeout by error_summary_json.category, falling back to a
// bare status='failed' counting toward failure when no category parses.
func aggregateErrorBudget(outcomes []db.RunOutcome, window time.Duration) ErrorBudget {
	var budget ErrorBudget
	minutes := window.Minutes()
	if minutes <= 0 {
		minutes = 1
	}

	for _, o := range outcomes {
		if o.Status != "failed" {
			continue
		}
		category := ""
		if len(o.ErrorSummaryJSON) > 0 {
			var summary struct {
				Category string `json:"category"`
			}
			if err := json.Unmarshal(o.ErrorSummaryJSON, &summary); err == nil {
				category = summary.Category
			}
		}

		switch category {
		case "rate_limit":
			budget.Count429++
		case "timeout":
			budget.TimeoutCount++
		default:
			budget.FailureCount++
		}
	}

	budget.FailureRate = float64(budget.FailureCount) / minutes
	budget.Rate429 = float64(budget.Count429) / minutes
	budget.TimeoutRate = float64(budget.TimeoutCount) / minutes
	return budget
}

// aggregateBreakers decodes every scm.sync_health row into the 0/1/2
// encoding telemetry.CircuitBreakerState expects. Undecodable rows are
// skipped rather than reported as closed, since a bad row is itself
// diagnostic information the caller should not silently erase.
func aggregateBreakers(rows []db.HealthKV) []BreakerState {
	out := make([]BreakerState, 0, len(rows))
	for _, row := range rows {
		var rec breakerRecord
		if err := json.Unmarshal(row.ValueJSON, &rec); err != nil {
			continue
		}
		out = append(out, BreakerState{Key: row.Key, State: rec.State, Value: breakerStateValue(rec.State)})
	}
	return out
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// aggregateRateBuckets reduces every rate_limit_buckets row to its status
// view and tallies pause reasons off bucket meta_json.pause_source, the
// only place a pause reason is currently recorded (spec's scm.sync_pauses
// health_kv namespace has no writer in this build; see DESIGN.md).
func aggregateRateBuckets(buckets []db.RateLimitBucket, now time.Time) ([]RateLimitBucket, map[string]int64) {
	out := make([]RateLimitBucket, 0, len(buckets))
	byReason := map[string]int64{}

	for _, b := range buckets {
		paused := b.PausedUntil != nil && b.PausedUntil.After(now)
		pauseSeconds := 0.0
		reason := ""
		if paused {
			pauseSeconds = b.PausedUntil.Sub(now).Seconds()
			var m bucketMeta
			if len(b.MetaJSON) > 0 {
				if err := json.Unmarshal(b.MetaJSON, &m); err == nil {
					reason = m.PauseSource
				}
			}
			if reason == "" {
				reason = "unknown"
			}
			byReason[reason]++
		}
		out = append(out, RateLimitBucket{
			InstanceKey:  b.InstanceKey,
			Tokens:       b.Tokens,
			Paused:       paused,
			PauseSeconds: pauseSeconds,
			PauseReason:  reason,
		})
	}
	return out, byReason
}

// aggregateRetryBackoffs resolves instance_key/tenant_id for each pending
// job the same way the queue and breaker do, so labels line up across
// metrics.
func aggregateRetryBackoffs(pending []db.PendingBackoffJob, now time.Time) []RetryBackoff {
	out := make([]RetryBackoff, 0, len(pending))
	for _, p := range pending {
		var payload map[string]any
		if len(p.PayloadJSON) > 0 {
			_ = json.Unmarshal(p.PayloadJSON, &payload)
		}
		instanceKey, tenantID := keys.ExtractInstanceAndTenant(payload, p.URL, p.ProjectKey)
		remaining := p.NotBefore.Sub(now).Seconds()
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, RetryBackoff{
			InstanceKey:      instanceKey,
			TenantID:         tenantID,
			JobType:          p.JobType,
			RemainingSeconds: remaining,
		})
	}
	return out
}
