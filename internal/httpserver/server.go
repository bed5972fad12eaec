package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/engramscm/engram-scm/internal/config"
	"github.com/engramscm/engram-scm/internal/schemas"
	"github.com/engramscm/engram-scm/pkg/scmsync/status"
)

// Server holds the HTTP server dependencies for the "serve" mode named in
// spec §6: a read-only health/metrics/status surface over the fact store.
// There is no authenticated, tenant-scoped API here; the control plane's
// write surface is the queue and CLI verbs, not HTTP.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer creates an HTTP server with middleware and the health/metrics/
// status endpoints.
func NewServer(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET"},
		AllowedHeaders:   []string{"Accept", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Get(cfg.MetricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}).ServeHTTP)
	s.Router.Get("/status", s.HandleStatus)
	s.Router.Get("/schemas/{name}", s.handleSchema)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz only pings Postgres: it is the single source of truth for
// every queue/limiter/breaker decision in this control plane, and the only
// dependency readiness needs to reflect.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleSchema serves one of the shipped JSON Schema contract files named
// in spec §6, by its bare name (e.g. "scm_sync_job_payload_v2"). The
// schemas package embeds these at build time, so this endpoint exists
// purely to let an operator or a collaborating service fetch the
// authoritative contract without a source checkout.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, ok := schemas.ByName(name)
	if !ok {
		RespondError(w, http.StatusNotFound, "not_found", "unknown schema: "+name)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// statusResponse is the JSON shape returned by HandleStatus: the same
// aggregation that feeds the Prometheus gauges, rendered for a human or a
// health-check CLI that would rather read JSON than scrape metrics.
type statusResponse struct {
	Status        string           `json:"status"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	ReposTotal    int64            `json:"repos_total"`
	ReposByType   map[string]int64 `json:"repos_by_type"`
	JobsByStatus  map[string]int64 `json:"jobs_by_status"`
	ErrorBudget   status.ErrorBudget `json:"error_budget"`
	Breakers      []status.BreakerState      `json:"breakers"`
	RateBuckets   []status.RateLimitBucket   `json:"rate_limit_buckets"`
	RetryBackoffs []status.RetryBackoff      `json:"retry_backoffs"`
	PausedByReason map[string]int64          `json:"paused_by_reason"`
}

// HandleStatus runs the full status.GetSyncSummary aggregation, pushes it
// into the Prometheus gauges for the next scrape, and returns it as JSON.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sum, err := status.GetSyncSummary(ctx, s.DB)
	if err != nil {
		s.Logger.Error("status check: computing sync summary failed", "error", err)
		RespondError(w, http.StatusInternalServerError, "internal", "computing sync summary failed")
		return
	}
	status.UpdateMetrics(sum)

	resp := statusResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		ReposTotal:     sum.ReposTotal,
		ReposByType:    sum.ReposByType,
		JobsByStatus:   sum.JobsByStatus,
		ErrorBudget:    sum.ErrorBudget,
		Breakers:       sum.Breakers,
		RateBuckets:    sum.RateBuckets,
		RetryBackoffs:  sum.RetryBackoffs,
		PausedByReason: sum.PausedByReason,
	}
	if err := s.DB.Ping(ctx); err != nil {
		resp.Status = "degraded"
	}

	Respond(w, http.StatusOK, resp)
}
