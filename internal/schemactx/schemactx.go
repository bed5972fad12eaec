// Package schemactx builds the Postgres search_path used by every C1 Fact
// Store connection, so that a single database can host multiple tenant
// prefixes (<prefix>_logbook, <prefix>_scm, <prefix>_identity,
// <prefix>_analysis, <prefix>_governance) with public as a fallback sink.
package schemactx

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// orderedSuffixes is the fixed schema ordering named in spec §3: a caller's
// search_path always resolves logbook facts before scm facts, scm before
// identity, and so on, with public as the final fallback.
var orderedSuffixes = []string{"logbook", "scm", "identity", "analysis", "governance"}

var prefixRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Context carries the active schema prefix for a request/job/worker.
// The zero value (empty Prefix) resolves to the "public" fallback sink.
type Context struct {
	Prefix string
}

// Global is the process-wide default SchemaContext used when a caller does
// not pass one explicitly, per spec §4.1 ("If the caller does not pass a
// path, the current global context is used"). It intentionally has no
// package-level mutex: callers that need per-goroutine isolation should
// pass an explicit Context instead of mutating Global concurrently.
var Global = Context{}

// SearchPath renders the Postgres search_path string for this context:
// "<prefix>_logbook, <prefix>_scm, ..., public" or just "public" when no
// prefix is set.
func (c Context) SearchPath() string {
	if c.Prefix == "" {
		return "public"
	}
	schemas := make([]string, 0, len(orderedSuffixes)+1)
	for _, suffix := range orderedSuffixes {
		schemas = append(schemas, fmt.Sprintf("%s_%s", c.Prefix, suffix))
	}
	schemas = append(schemas, "public")
	return strings.Join(schemas, ", ")
}

// SchemaName returns the fully-qualified name of a single schema suffix
// under this context's prefix, e.g. SchemaName("scm") -> "acme_scm".
func (c Context) SchemaName(suffix string) string {
	if c.Prefix == "" {
		return "public"
	}
	return fmt.Sprintf("%s_%s", c.Prefix, suffix)
}

// Valid reports whether the prefix is safe to interpolate into SQL
// identifiers (it never comes from user-controlled SQL parameters, but it
// is built from config/CLI input, so it is still validated defensively).
func (c Context) Valid() bool {
	return c.Prefix == "" || prefixRegex.MatchString(c.Prefix)
}

// Acquire gets a pooled connection and sets its search_path to this
// context's schema list. The caller must Release() the returned connection.
func (c Context) Acquire(ctx context.Context, pool *pgxpool.Pool) (*pgxpool.Conn, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("schemactx: invalid prefix %q", c.Prefix)
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "SELECT set_config('search_path', $1, false)", c.SearchPath()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("setting search_path: %w", err)
	}
	return conn, nil
}
