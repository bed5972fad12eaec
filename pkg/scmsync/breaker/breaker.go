// Package breaker implements the per-(project, scope) three-state circuit
// breaker (C3): closed/open/half_open transitions, stored as JSON under
// the "scm.sync_health" health_kv namespace so it shares the Fact Store
// with every other component.
package breaker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engramscm/engram-scm/internal/db"
)

// State is one of the three breaker states named in spec §4.3.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

const namespace = "scm.sync_health"

// Scope builders mirror spec §4.3's three scope shapes.
func ScopeGlobal() string               { return "global" }
func ScopeInstance(instanceKey string) string { return "instance:" + instanceKey }
func ScopeTenant(tenantID string) string      { return "tenant:" + tenantID }
func ScopePool(pool string) string            { return "pool:" + pool }

// Config holds the thresholds spec §9 leaves to configuration.
type Config struct {
	FailureThreshold int           // consecutive failures before closed -> open
	OpenDuration     time.Duration // base open_until window, doubled on repeat trips
	HalfOpenProbes   int           // consecutive half_open successes that close the breaker; concurrent probes are not capped
}

// Degradation is the suggestion published on every transition, embedded by
// the scheduler into the next job payload.
type Degradation struct {
	SuggestedBatchSize            int    `json:"suggested_batch_size,omitempty"`
	SuggestedForwardWindowSeconds int    `json:"suggested_forward_window_seconds,omitempty"`
	SuggestedDiffMode             string `json:"suggested_diff_mode,omitempty"`
}

// record is the JSON shape persisted in health_kv.
type record struct {
	State         State       `json:"state"`
	FailureCount  int         `json:"failure_count"`
	SuccessCount  int         `json:"success_count"` // consecutive successes while half_open
	OpenUntil     *time.Time  `json:"open_until,omitempty"`
	OpenStreak    int         `json:"open_streak"` // number of times tripped in a row, drives exponential open duration
	Degradation   Degradation `json:"degradation"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Breaker wraps one Postgres pool; every transition acquires its own
// row-locked transaction against health_kv.
type Breaker struct {
	pool *pgxpool.Pool
	cfg  Config
}

func New(pool *pgxpool.Pool, cfg Config) *Breaker {
	return &Breaker{pool: pool, cfg: cfg}
}

// Status is the read-only view returned to callers deciding whether to
// dispatch, probe, or skip a job.
type Status struct {
	State       State
	OpenUntil   *time.Time
	Degradation Degradation
}

func loadRecord(ctx context.Context, q *db.Queries, key string, forUpdate bool) (*record, error) {
	var kv *db.HealthKV
	var err error
	if forUpdate {
		kv, err = q.GetHealthKVForUpdate(ctx, namespace, key)
	} else {
		kv, err = q.GetHealthKV(ctx, namespace, key)
	}
	if err != nil {
		return &record{State: Closed}, nil
	}
	var rec record
	if jsonErr := json.Unmarshal(kv.ValueJSON, &rec); jsonErr != nil {
		return &record{State: Closed}, nil
	}
	return &rec, nil
}

func saveRecord(ctx context.Context, q *db.Queries, key string, rec *record) error {
	rec.UpdatedAt = time.Now().UTC()
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return q.PutHealthKV(ctx, namespace, key, body)
}

// Check reports the current status without mutating state, except for the
// open -> half_open timer expiry transition, which is itself a state
// change and so is persisted.
func (b *Breaker) Check(ctx context.Context, key string) (Status, error) {
	var out Status
	err := db.BeginFunc(ctx, b.pool, func(q *db.Queries) error {
		rec, err := loadRecord(ctx, q, key, true)
		if err != nil {
			return err
		}

		if rec.State == Open && rec.OpenUntil != nil && !time.Now().Before(*rec.OpenUntil) {
			rec.State = HalfOpen
			rec.SuccessCount = 0
			if err := saveRecord(ctx, q, key, rec); err != nil {
				return err
			}
		}

		out = Status{State: rec.State, OpenUntil: rec.OpenUntil, Degradation: rec.Degradation}
		return nil
	})
	return out, err
}

// openDuration returns the exponential open-until window for the given
// streak of consecutive trips (1-indexed), capped to avoid unbounded growth.
func (b *Breaker) openDuration(streak int) time.Duration {
	d := b.cfg.OpenDuration
	for i := 1; i < streak; i++ {
		d *= 2
	}
	const maxOpenDuration = 30 * time.Minute
	if d > maxOpenDuration {
		d = maxOpenDuration
	}
	return d
}

func degradationFor(state State) Degradation {
	switch state {
	case Open:
		return Degradation{SuggestedDiffMode: "none"}
	case HalfOpen:
		return Degradation{SuggestedBatchSize: 50, SuggestedForwardWindowSeconds: 3600, SuggestedDiffMode: "best_effort"}
	default:
		return Degradation{}
	}
}

// RecordFailure applies a failure to key's breaker. closed -> open once
// failure_count reaches the configured threshold; half_open -> open
// immediately on any failure, with the open duration doubled from the
// previous trip.
func (b *Breaker) RecordFailure(ctx context.Context, key string) (Status, error) {
	var out Status
	err := db.BeginFunc(ctx, b.pool, func(q *db.Queries) error {
		rec, err := loadRecord(ctx, q, key, true)
		if err != nil {
			return err
		}

		switch rec.State {
		case HalfOpen:
			rec.OpenStreak++
			until := time.Now().UTC().Add(b.openDuration(rec.OpenStreak))
			rec.State = Open
			rec.OpenUntil = &until
			rec.FailureCount = 0
			rec.SuccessCount = 0
		default: // closed, or already open
			rec.FailureCount++
			if rec.State == Closed && rec.FailureCount >= b.cfg.FailureThreshold {
				rec.OpenStreak = 1
				until := time.Now().UTC().Add(b.openDuration(rec.OpenStreak))
				rec.State = Open
				rec.OpenUntil = &until
				rec.FailureCount = 0
			}
		}
		rec.Degradation = degradationFor(rec.State)

		if err := saveRecord(ctx, q, key, rec); err != nil {
			return err
		}
		out = Status{State: rec.State, OpenUntil: rec.OpenUntil, Degradation: rec.Degradation}
		return nil
	})
	return out, err
}

// RecordSuccess applies a success to key's breaker. closed resets the
// failure counter; half_open accumulates toward HalfOpenProbes consecutive
// successes before closing.
func (b *Breaker) RecordSuccess(ctx context.Context, key string) (Status, error) {
	var out Status
	err := db.BeginFunc(ctx, b.pool, func(q *db.Queries) error {
		rec, err := loadRecord(ctx, q, key, true)
		if err != nil {
			return err
		}

		switch rec.State {
		case Closed:
			rec.FailureCount = 0
		case HalfOpen:
			rec.SuccessCount++
			if rec.SuccessCount >= b.cfg.HalfOpenProbes {
				rec.State = Closed
				rec.FailureCount = 0
				rec.SuccessCount = 0
				rec.OpenStreak = 0
				rec.OpenUntil = nil
			}
		}
		rec.Degradation = degradationFor(rec.State)

		if err := saveRecord(ctx, q, key, rec); err != nil {
			return err
		}
		out = Status{State: rec.State, OpenUntil: rec.OpenUntil, Degradation: rec.Degradation}
		return nil
	})
	return out, err
}
