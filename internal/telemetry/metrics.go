package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency for the health/metrics surface.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "scm",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// ReposTotal is the total number of repos known to the fact store.
var ReposTotal = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "scm",
		Name:      "repos_total",
		Help:      "Total number of repos registered with the fact store.",
	},
)

// ReposByType breaks ReposTotal down by repo_type.
var ReposByType = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "scm",
		Name:      "repos_by_type",
		Help:      "Number of repos by repo_type.",
	},
	[]string{"repo_type"},
)

// JobsByStatus reports the current count of sync_jobs rows per status.
var JobsByStatus = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "scm",
		Name:      "jobs_by_status",
		Help:      "Number of sync_jobs rows by status.",
	},
	[]string{"status"},
)

// ErrorBudgetCount tracks raw counts behind the error budget (failure/429/timeout).
var ErrorBudgetCount = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "scm",
		Subsystem: "error_budget",
		Name:      "count",
		Help:      "Count of error-budget events by kind (failure, 429, timeout).",
	},
	[]string{"kind"},
)

// ErrorBudgetRate tracks the same events as a rate over the observation window.
var ErrorBudgetRate = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "scm",
		Subsystem: "error_budget",
		Name:      "rate",
		Help:      "Rate of error-budget events by kind (failure, 429, timeout).",
	},
	[]string{"kind"},
)

// CircuitBreakerState reports the breaker's current state as 0=closed, 1=half_open, 2=open.
var CircuitBreakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "scm",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per key: 0=closed, 1=half_open, 2=open.",
	},
	[]string{"key"},
)

// RateLimitBucketTokens reports available tokens per instance key.
var RateLimitBucketTokens = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "scm",
		Subsystem: "rate_limit_bucket",
		Name:      "tokens",
		Help:      "Tokens currently available in the rate limit bucket.",
	},
	[]string{"instance_key"},
)

// RateLimitBucketPaused reports 1 if the bucket is currently paused, else 0.
var RateLimitBucketPaused = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "scm",
		Subsystem: "rate_limit_bucket",
		Name:      "paused",
		Help:      "Whether the rate limit bucket is currently paused (1) or not (0).",
	},
	[]string{"instance_key"},
)

// RateLimitBucketPauseSeconds reports remaining pause duration in seconds.
var RateLimitBucketPauseSeconds = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "scm",
		Subsystem: "rate_limit_bucket",
		Name:      "pause_seconds",
		Help:      "Remaining pause duration in seconds, 0 if not paused.",
	},
	[]string{"instance_key"},
)

// RetryBackoffSeconds reports how many seconds remain until a pending job's
// not_before, 0 once it has passed.
var RetryBackoffSeconds = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "scm",
		Name:      "retry_backoff_seconds",
		Help:      "Seconds remaining until a pending job's not_before, 0 once it has passed.",
	},
	[]string{"instance_key", "tenant_id", "job_type"},
)

// PausedByReason counts active pauses grouped by reason_code.
var PausedByReason = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "scm",
		Name:      "paused_by_reason",
		Help:      "Number of active pauses grouped by reason_code.",
	},
	[]string{"reason_code"},
)

// All returns every SCM-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		ReposTotal,
		ReposByType,
		JobsByStatus,
		ErrorBudgetCount,
		ErrorBudgetRate,
		CircuitBreakerState,
		RateLimitBucketTokens,
		RateLimitBucketPaused,
		RateLimitBucketPauseSeconds,
		RetryBackoffSeconds,
		PausedByReason,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTP request duration metric, and any additional collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
