// Package limiter implements the per-instance token-bucket rate limiter
// (C3): lazy refill, pause-on-429/timeout, and a pause-shortening
// record_success, all backed by a row-locked rate_limit_buckets row so
// concurrent workers against the same instance serialize on it.
package limiter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engramscm/engram-scm/internal/db"
)

// ErrWouldBlock is returned by Acquire when wait_max has elapsed without a
// token becoming available.
var ErrWouldBlock = errors.New("limiter: no token available within wait_max")

// Defaults seed a never-seen instance_key's bucket row on first use.
type Defaults struct {
	Rate  float64
	Burst float64
}

// Limiter wraps one Postgres pool; every call acquires its own short
// transaction so it can be driven by many concurrent workers.
type Limiter struct {
	pool     *pgxpool.Pool
	defaults Defaults
}

func New(pool *pgxpool.Pool, defaults Defaults) *Limiter {
	return &Limiter{pool: pool, defaults: defaults}
}

type meta struct {
	PauseSource string `json:"pause_source,omitempty"`
}

func loadBucket(ctx context.Context, q *db.Queries, instanceKey string, d Defaults) (*db.RateLimitBucket, error) {
	row, err := q.GetRateLimitBucketForUpdate(ctx, instanceKey)
	if err == nil {
		return row, nil
	}
	// Not found: seed it at configured defaults, full bucket.
	now := time.Now().UTC()
	row = &db.RateLimitBucket{
		InstanceKey: instanceKey,
		Tokens:      d.Burst,
		Rate:        d.Rate,
		Burst:       d.Burst,
		UpdatedAt:   now,
	}
	if upsertErr := q.UpsertRateLimitBucket(ctx, db.UpsertRateLimitBucketParams{
		InstanceKey: instanceKey,
		Tokens:      row.Tokens,
		Rate:        row.Rate,
		Burst:       row.Burst,
		PausedUntil: nil,
		MetaJSON:    nil,
	}); upsertErr != nil {
		return nil, upsertErr
	}
	return row, nil
}

// refill computes the lazily-updated token count as of now, capped at burst.
func refill(row *db.RateLimitBucket, now time.Time) float64 {
	elapsed := now.Sub(row.UpdatedAt).Seconds()
	if elapsed <= 0 {
		return row.Tokens
	}
	tokens := row.Tokens + elapsed*row.Rate
	if tokens > row.Burst {
		tokens = row.Burst
	}
	return tokens
}

// Acquire tries to consume one token for key. If the bucket is paused or
// empty, it waits in short polling increments up to waitMax before
// returning ErrWouldBlock with the time already spent waiting.
func (l *Limiter) Acquire(ctx context.Context, key string, waitMax time.Duration) (waited time.Duration, err error) {
	deadline := time.Now().Add(waitMax)

	for {
		ok, retryAfter, acquireErr := l.tryAcquireOnce(ctx, key)
		if acquireErr != nil {
			return waited, acquireErr
		}
		if ok {
			return waited, nil
		}

		now := time.Now()
		if !now.Before(deadline) {
			return waited, ErrWouldBlock
		}

		sleep := retryAfter
		if remaining := deadline.Sub(now); sleep > remaining {
			sleep = remaining
		}
		if sleep <= 0 {
			sleep = 50 * time.Millisecond
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return waited, ctx.Err()
		case <-timer.C:
		}
		waited += sleep
	}
}

// tryAcquireOnce attempts a single non-blocking consume inside one
// transaction, returning the suggested retry-after duration on failure.
func (l *Limiter) tryAcquireOnce(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error) {
	txErr := db.BeginFunc(ctx, l.pool, func(q *db.Queries) error {
		row, loadErr := loadBucket(ctx, q, key, l.defaults)
		if loadErr != nil {
			return loadErr
		}

		now := time.Now().UTC()
		if row.PausedUntil != nil && now.Before(*row.PausedUntil) {
			retryAfter = row.PausedUntil.Sub(now)
			ok = false
			return nil
		}

		tokens := refill(row, now)
		if tokens < 1 {
			missing := 1 - tokens
			retryAfter = time.Duration(missing/row.Rate*float64(time.Second)) + time.Millisecond
			ok = false
			return q.UpsertRateLimitBucket(ctx, db.UpsertRateLimitBucketParams{
				InstanceKey: row.InstanceKey,
				Tokens:      tokens,
				Rate:        row.Rate,
				Burst:       row.Burst,
				PausedUntil: row.PausedUntil,
				MetaJSON:    row.MetaJSON,
			})
		}

		tokens--
		ok = true
		return q.UpsertRateLimitBucket(ctx, db.UpsertRateLimitBucketParams{
			InstanceKey: row.InstanceKey,
			Tokens:      tokens,
			Rate:        row.Rate,
			Burst:       row.Burst,
			PausedUntil: row.PausedUntil,
			MetaJSON:    row.MetaJSON,
		})
	})
	if txErr != nil {
		return false, 0, txErr
	}
	return ok, retryAfter, nil
}

// pause sets paused_until := now + backoff and tags meta_json.pause_source,
// the shared body of RecordTimeout/Record429.
func (l *Limiter) pause(ctx context.Context, key string, backoff time.Duration, source string) error {
	return db.BeginFunc(ctx, l.pool, func(q *db.Queries) error {
		row, err := loadBucket(ctx, q, key, l.defaults)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		until := now.Add(backoff)
		metaJSON, err := json.Marshal(meta{PauseSource: source})
		if err != nil {
			return err
		}
		return q.UpsertRateLimitBucket(ctx, db.UpsertRateLimitBucketParams{
			InstanceKey: row.InstanceKey,
			Tokens:      refill(row, now),
			Rate:        row.Rate,
			Burst:       row.Burst,
			PausedUntil: &until,
			MetaJSON:    metaJSON,
		})
	})
}

// Record429 pauses the bucket after an upstream 429.
func (l *Limiter) Record429(ctx context.Context, key string, backoff time.Duration) error {
	return l.pause(ctx, key, backoff, "rate_limit")
}

// RecordTimeout pauses the bucket after a handler timeout.
func (l *Limiter) RecordTimeout(ctx context.Context, key string, backoff time.Duration) error {
	return l.pause(ctx, key, backoff, "timeout")
}

// RecordSuccess brings a live pause forward by half its remaining
// duration rather than clearing it outright, so one lucky request right
// after a 429 storm cannot fully reopen the floodgates. pause_source is
// left untouched until the pause actually elapses.
func (l *Limiter) RecordSuccess(ctx context.Context, key string) error {
	return db.BeginFunc(ctx, l.pool, func(q *db.Queries) error {
		row, err := loadBucket(ctx, q, key, l.defaults)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		pausedUntil := row.PausedUntil
		if pausedUntil != nil && pausedUntil.After(now) {
			remaining := pausedUntil.Sub(now)
			shortened := now.Add(remaining / 2)
			if shortened.Before(*pausedUntil) {
				pausedUntil = &shortened
			}
		}
		return q.UpsertRateLimitBucket(ctx, db.UpsertRateLimitBucketParams{
			InstanceKey: row.InstanceKey,
			Tokens:      refill(row, now),
			Rate:        row.Rate,
			Burst:       row.Burst,
			PausedUntil: pausedUntil,
			MetaJSON:    row.MetaJSON,
		})
	})
}
