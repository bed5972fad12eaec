package db

import (
	"context"
	"time"
)

// HealthKV is a single keyed JSON store row. The core uses two namespaces:
// "scm.sync_health" for circuit-breaker state keyed "<project_key>:<scope>"
// and "scm.sync_pauses" for per-repo pause records.
type HealthKV struct {
	Namespace string
	Key       string
	ValueJSON []byte
	UpdatedAt time.Time
}

func (q *Queries) GetHealthKV(ctx context.Context, namespace, key string) (*HealthKV, error) {
	const sql = `
SELECT namespace, key, value_json, updated_at
FROM health_kv WHERE namespace = $1 AND key = $2`

	var kv HealthKV
	err := q.db.QueryRow(ctx, sql, namespace, key).Scan(&kv.Namespace, &kv.Key, &kv.ValueJSON, &kv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &kv, nil
}

// GetHealthKVForUpdate row-locks a key for a read-modify-write cycle, used
// by the breaker's state transitions so concurrent workers serialize.
func (q *Queries) GetHealthKVForUpdate(ctx context.Context, namespace, key string) (*HealthKV, error) {
	const sql = `
SELECT namespace, key, value_json, updated_at
FROM health_kv WHERE namespace = $1 AND key = $2
FOR UPDATE`

	var kv HealthKV
	err := q.db.QueryRow(ctx, sql, namespace, key).Scan(&kv.Namespace, &kv.Key, &kv.ValueJSON, &kv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &kv, nil
}

func (q *Queries) PutHealthKV(ctx context.Context, namespace, key string, valueJSON []byte) error {
	const sql = `
INSERT INTO health_kv (namespace, key, value_json, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key) DO UPDATE SET value_json = EXCLUDED.value_json, updated_at = now()`

	_, err := q.db.Exec(ctx, sql, namespace, key, valueJSON)
	return err
}

// ListHealthKV lists every key in a namespace, used by the status summary.
func (q *Queries) ListHealthKV(ctx context.Context, namespace string) ([]HealthKV, error) {
	const sql = `
SELECT namespace, key, value_json, updated_at
FROM health_kv WHERE namespace = $1
ORDER BY key ASC`

	rows, err := q.db.Query(ctx, sql, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HealthKV
	for rows.Next() {
		var kv HealthKV
		if err := rows.Scan(&kv.Namespace, &kv.Key, &kv.ValueJSON, &kv.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteHealthKV(ctx context.Context, namespace, key string) error {
	const sql = `DELETE FROM health_kv WHERE namespace = $1 AND key = $2`
	_, err := q.db.Exec(ctx, sql, namespace, key)
	return err
}
