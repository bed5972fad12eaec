package cursor

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/engramscm/engram-scm/internal/db"
)

// Kind identifies which comparison rule a cursor's key column follows.
// gitlab_cursor keys are git shas, compared lexicographically; svn_cursor
// keys are decimal revision numbers, compared numerically (a 2-digit
// revision like "10" must sort after "9", which plain string comparison
// gets wrong).
// gitlab_mr_cursor keys are decimal merge-request IIDs, numeric like
// svn_cursor: GitLab allocates IIDs in creation order per project, but
// merge requests have no sha-equivalent content tiebreak the way commits
// do, so the cursor advances on IID alone.
const (
	KindGitLabCommit = "gitlab_cursor"
	KindSVNRevision  = "svn_cursor"
	KindGitLabMR     = "gitlab_mr_cursor"
)

// numericKinds compare their key column as an integer rather than a
// string, since decimal width varies ("9" must sort before "10").
var numericKinds = map[string]bool{
	KindSVNRevision: true,
	KindGitLabMR:    true,
}

// KeyLess reports whether key a sorts before key b for the given cursor
// kind. Numeric kinds that fail to parse as integers fall back to string
// comparison rather than panicking.
func KeyLess(kind, a, b string) bool {
	if numericKinds[kind] {
		an, aerr := strconv.ParseInt(a, 10, 64)
		bn, berr := strconv.ParseInt(b, 10, 64)
		if aerr == nil && berr == nil {
			return an < bn
		}
	}
	return a < b
}

// Store wraps the sync_cursors DAO with the monotonic advance check, so
// every caller advances a watermark through the same gate.
type Store struct {
	q *db.Queries
}

func NewStore(q *db.Queries) *Store {
	return &Store{q: q}
}

// Watermark is the in-memory view of a stored cursor.
type Watermark struct {
	TS  time.Time
	Key string
}

// Load reads the current watermark for (repoID, kind), row-locked so a
// concurrent advance from another worker blocks until this transaction
// commits. A never-seen cursor returns a zero Watermark, no error.
func (s *Store) Load(ctx context.Context, repoID int64, kind string) (Watermark, error) {
	row, err := s.q.GetSyncCursorForUpdate(ctx, repoID, kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return Watermark{}, nil
	}
	if err != nil {
		return Watermark{}, err
	}
	w := Watermark{Key: row.CursorSHA}
	if row.CursorTS != nil {
		w.TS = *row.CursorTS
	}
	return w, nil
}

// Advance applies the monotonic (ts, key) check for kind and, if the
// candidate is newer, persists it and returns true. A non-advancing
// candidate is a no-op and returns false, nil.
func (s *Store) Advance(ctx context.Context, repoID int64, kind string, runningCount int64, candidate Watermark) (bool, error) {
	current, err := s.Load(ctx, repoID, kind)
	if err != nil {
		return false, err
	}

	if !shouldAdvanceForKind(kind, candidate.TS, candidate.Key, current.TS, current.Key) {
		return false, nil
	}

	ts := candidate.TS
	err = s.q.PutSyncCursor(ctx, db.PutSyncCursorParams{
		RepoID:       repoID,
		Kind:         kind,
		CursorTS:     &ts,
		CursorSHA:    candidate.Key,
		RunningCount: runningCount,
	})
	return err == nil, err
}

// shouldAdvanceForKind is ShouldAdvance generalized with kind-aware key
// comparison. svn_cursor revisions and gitlab_mr_cursor IIDs carry no
// meaningful timestamp in this flow (svn log timestamps are not a
// reliable total order the way commit author dates are, and MR
// UpdatedAt can tie or move backward on unrelated edits), so those kinds
// advance on key alone; gitlab_cursor keeps the full (ts, sha) tie-break
// with numeric-vs-lexicographic key comparison delegated to KeyLess.
func shouldAdvanceForKind(kind string, newTS time.Time, newKey string, lastTS time.Time, lastKey string) bool {
	if numericKinds[kind] {
		if lastKey == "" {
			return true
		}
		return KeyLess(kind, lastKey, newKey)
	}

	if lastTS.IsZero() {
		return true
	}
	if newTS.After(lastTS) {
		return true
	}
	if newTS.Before(lastTS) {
		return false
	}
	return KeyLess(kind, lastKey, newKey)
}
