package status

import "github.com/engramscm/engram-scm/internal/telemetry"

// UpdateMetrics pushes a freshly computed Summary into the package-level
// gauges telemetry.NewMetricsRegistry exposes, ready for the next /metrics
// scrape. It resets every labeled vec first so a value that dropped to
// zero (a repo_type with no more repos, a bucket no longer paused) is not
// left stale at its last-seen reading.
func UpdateMetrics(sum Summary) {
	telemetry.ReposTotal.Set(float64(sum.ReposTotal))

	telemetry.ReposByType.Reset()
	for repoType, count := range sum.ReposByType {
		telemetry.ReposByType.WithLabelValues(repoType).Set(float64(count))
	}

	telemetry.JobsByStatus.Reset()
	for status, count := range sum.JobsByStatus {
		telemetry.JobsByStatus.WithLabelValues(status).Set(float64(count))
	}

	telemetry.ErrorBudgetCount.Reset()
	telemetry.ErrorBudgetRate.Reset()
	telemetry.ErrorBudgetCount.WithLabelValues("failure").Set(float64(sum.ErrorBudget.FailureCount))
	telemetry.ErrorBudgetCount.WithLabelValues("429").Set(float64(sum.ErrorBudget.Count429))
	telemetry.ErrorBudgetCount.WithLabelValues("timeout").Set(float64(sum.ErrorBudget.TimeoutCount))
	telemetry.ErrorBudgetRate.WithLabelValues("failure").Set(sum.ErrorBudget.FailureRate)
	telemetry.ErrorBudgetRate.WithLabelValues("429").Set(sum.ErrorBudget.Rate429)
	telemetry.ErrorBudgetRate.WithLabelValues("timeout").Set(sum.ErrorBudget.TimeoutRate)

	telemetry.CircuitBreakerState.Reset()
	for _, b := range sum.Breakers {
		telemetry.CircuitBreakerState.WithLabelValues(b.Key).Set(b.Value)
	}

	telemetry.RateLimitBucketTokens.Reset()
	telemetry.RateLimitBucketPaused.Reset()
	telemetry.RateLimitBucketPauseSeconds.Reset()
	for _, b := range sum.RateBuckets {
		telemetry.RateLimitBucketTokens.WithLabelValues(b.InstanceKey).Set(b.Tokens)
		paused := 0.0
		if b.Paused {
			paused = 1
		}
		telemetry.RateLimitBucketPaused.WithLabelValues(b.InstanceKey).Set(paused)
		telemetry.RateLimitBucketPauseSeconds.WithLabelValues(b.InstanceKey).Set(b.PauseSeconds)
	}

	telemetry.RetryBackoffSeconds.Reset()
	for _, rb := range sum.RetryBackoffs {
		telemetry.RetryBackoffSeconds.WithLabelValues(rb.InstanceKey, rb.TenantID, rb.JobType).Set(rb.RemainingSeconds)
	}

	telemetry.PausedByReason.Reset()
	for reason, count := range sum.PausedByReason {
		telemetry.PausedByReason.WithLabelValues(reason).Set(float64(count))
	}
}
