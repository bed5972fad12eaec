// Package db is the hand-written data-access layer for C1 Fact Store: a
// thin, typed wrapper over raw SQL against the schema-prefixed Postgres
// tables (repos, commits, revisions, patch_blobs, sync_runs, sync_jobs,
// sync_locks, rate_limit_buckets, health_kv, sync_cursors, write_audit).
//
// It follows the same shape sqlc generates (a Queries struct bound to a
// DBTX, *Params input structs, row structs for multi-column results) so
// callers can pass either a *pgxpool.Pool or a pgx.Tx interchangeably.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx, letting
// every Queries method run either directly against the pool or inside a
// caller-managed transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries is the DAO. It holds no state beyond the connection it was built
// with, so it is cheap to construct per-request or per-job.
type Queries struct {
	db DBTX
}

// New builds a Queries bound to any DBTX (pool, conn, or transaction).
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx rebinds these Queries onto an open transaction, so a caller can
// run several DAO calls atomically (e.g. claim-job + insert-sync-run).
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// BeginFunc runs fn inside a transaction acquired from pool, committing on
// nil error and rolling back otherwise. Used by C4 Queue's claim-with-lease
// (FOR UPDATE SKIP LOCKED) and by the C3 limiter and breaker, which lock and
// rewrite their rows inside one transaction.
func BeginFunc(ctx context.Context, pool *pgxpool.Pool, fn func(q *Queries) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(New(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
