package db

import (
	"context"
	"time"
)

// RateLimitBucket is a rate_limit_buckets row keyed by instance_key.
// Tokens are refilled lazily at read time by the caller (pkg/scmsync/limiter),
// not by the database.
type RateLimitBucket struct {
	InstanceKey string
	Tokens      float64
	Rate        float64
	Burst       float64
	PausedUntil *time.Time
	MetaJSON    []byte
	UpdatedAt   time.Time
}

// GetRateLimitBucketForUpdate locks the bucket row for the duration of the
// caller's transaction so acquire/record_429/record_timeout/record_success
// serialize per instance_key.
func (q *Queries) GetRateLimitBucketForUpdate(ctx context.Context, instanceKey string) (*RateLimitBucket, error) {
	const sql = `
SELECT instance_key, tokens, rate, burst, paused_until, meta_json, updated_at
FROM rate_limit_buckets
WHERE instance_key = $1
FOR UPDATE`

	var b RateLimitBucket
	err := q.db.QueryRow(ctx, sql, instanceKey).Scan(&b.InstanceKey, &b.Tokens, &b.Rate, &b.Burst, &b.PausedUntil, &b.MetaJSON, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

type UpsertRateLimitBucketParams struct {
	InstanceKey string
	Tokens      float64
	Rate        float64
	Burst       float64
	PausedUntil *time.Time
	MetaJSON    []byte
}

// UpsertRateLimitBucket creates a bucket at its configured defaults on
// first use, or overwrites the full row state after a read-modify-write.
func (q *Queries) UpsertRateLimitBucket(ctx context.Context, arg UpsertRateLimitBucketParams) error {
	const sql = `
INSERT INTO rate_limit_buckets (instance_key, tokens, rate, burst, paused_until, meta_json, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (instance_key) DO UPDATE SET
  tokens = EXCLUDED.tokens,
  rate = EXCLUDED.rate,
  burst = EXCLUDED.burst,
  paused_until = EXCLUDED.paused_until,
  meta_json = EXCLUDED.meta_json,
  updated_at = now()`

	_, err := q.db.Exec(ctx, sql, arg.InstanceKey, arg.Tokens, arg.Rate, arg.Burst, arg.PausedUntil, arg.MetaJSON)
	return err
}

// ListRateLimitBuckets returns every bucket row, unlocked, for the status
// and metrics surface; it must never be called from inside a transaction
// that also needs a row lock on one of these rows.
func (q *Queries) ListRateLimitBuckets(ctx context.Context) ([]RateLimitBucket, error) {
	const sql = `
SELECT instance_key, tokens, rate, burst, paused_until, meta_json, updated_at
FROM rate_limit_buckets
ORDER BY instance_key ASC`

	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateLimitBucket
	for rows.Next() {
		var b RateLimitBucket
		if err := rows.Scan(&b.InstanceKey, &b.Tokens, &b.Rate, &b.Burst, &b.PausedUntil, &b.MetaJSON, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
