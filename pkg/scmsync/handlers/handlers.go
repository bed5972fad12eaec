// Package handlers implements the three built-in C5 handlers named in
// spec §4.5 (gitlab_commits, gitlab_mrs, svn): each wraps an injectable
// protocol-client interface and translates protocol errors into canonical
// error_category values. gitlab_commits and svn honor payload.probe_budget
// for probe-mode dispatches; gitlab_mrs does not read it. No handler fills
// request_stats, which stays at its zero value. The concrete GitLab/SVN
// wire clients are out of scope; only the dispatch/translate/cursor-
// advance logic around them lives here, exercised against deterministic
// in-memory fakes in tests.
package handlers

import (
	"context"
	"time"

	"github.com/engramscm/engram-scm/internal/scmerrors"
	"github.com/engramscm/engram-scm/pkg/scmsync/cursor"
	"github.com/engramscm/engram-scm/pkg/scmsync/result"
)

// Commit is one GitLab commit as the protocol client returns it.
type Commit struct {
	SHA       string
	Timestamp time.Time
	Message   string
}

// ProtocolError is what a protocol client returns on a non-2xx response or
// a transport failure; Category classifies it into the canonical set so a
// handler never has to inspect HTTP status codes itself.
type ProtocolError struct {
	Category scmerrors.Category
	Message  string
}

func (e *ProtocolError) Error() string { return e.Message }

// GitLabCommitsClient is the injectable seam for the real GitLab API.
type GitLabCommitsClient interface {
	// ListCommits returns commits in [since, now), newest-window-first is
	// not assumed; the handler sorts and filters via pkg/scmsync/cursor.
	ListCommits(ctx context.Context, projectID string, since time.Time, limit int) ([]Commit, *ProtocolError)
	// FetchDiff returns a unified diff for sha, or a degraded reason if it
	// could not be retrieved (e.g. too large, binary, timed out).
	FetchDiff(ctx context.Context, projectID, sha string) (diff string, degradedReason string, err *ProtocolError)
}

// CommitStore persists commits and patch blobs; a thin seam over C1's
// internal/db so handlers stay unit-testable without a live database.
type CommitStore interface {
	UpsertCommit(ctx context.Context, repoID int64, c Commit) error
	UpsertPatchBlob(ctx context.Context, repoID int64, sha, diff string) error
}

// GitLabCommitsHandlerConfig carries per-call tuning pulled from the job
// payload and config defaults.
type GitLabCommitsHandlerConfig struct {
	ProjectID string
	RepoID    int64
	DiffMode  string // always|best_effort|minimal|none
}

// CursorStore is the load/advance seam every handler needs from
// pkg/scmsync/cursor, kept as an interface here (rather than the concrete
// *cursor.Store) so handlers stay unit-testable without a live database.
// *cursor.Store satisfies it directly.
type CursorStore interface {
	Load(ctx context.Context, repoID int64, kind string) (cursor.Watermark, error)
	Advance(ctx context.Context, repoID int64, kind string, runningCount int64, candidate cursor.Watermark) (bool, error)
}

// GitLabCommitsHandler adapts a GitLabCommitsClient + CommitStore pair to
// the executor.Handler signature.
type GitLabCommitsHandler struct {
	Client GitLabCommitsClient
	Store  CommitStore
	Cursor CursorStore
}

// Handle implements the gitlab_commits sync: fetch since the stored
// cursor, dedup/sort by (ts, sha), persist each commit and (per diff_mode)
// its diff, then advance the cursor to the highest (ts, sha) seen.
func (h *GitLabCommitsHandler) Handle(ctx context.Context, repoID int64, mode string, payload map[string]any) result.SyncResult {
	cfg := configFromPayload(repoID, payload)

	probeBudget, isProbe := probeBudget(mode, payload)

	watermark, err := h.Cursor.Load(ctx, repoID, cursor.KindGitLabCommit)
	if err != nil {
		return result.Failed("load cursor: "+err.Error(), scmerrors.CategoryException)
	}

	since := watermark.TS
	if since.IsZero() {
		since = time.Now().Add(-24 * time.Hour)
	}

	limit := 0
	if isProbe {
		limit = probeBudget
	}

	commits, protoErr := h.Client.ListCommits(ctx, cfg.ProjectID, since, limit)
	if protoErr != nil {
		return result.Failed(protoErr.Message, protoErr.Category)
	}

	entries := make([]cursor.Entry, 0, len(commits))
	bySHA := make(map[string]Commit, len(commits))
	for _, c := range commits {
		entries = append(entries, cursor.Entry{TS: c.Timestamp, Key: c.SHA})
		bySHA[c.SHA] = c
	}

	fresh := cursor.FilterAfterCursor(entries, watermark.TS, watermark.Key)

	r := result.New()
	r.Mode = mode

	var lastEntry cursor.Entry
	for i, e := range fresh {
		c := bySHA[e.Key]

		if err := h.Store.UpsertCommit(ctx, cfg.RepoID, c); err != nil {
			return result.Failed("persist commit: "+err.Error(), scmerrors.CategoryException)
		}
		r.SyncedCount++

		switch cfg.DiffMode {
		case "none":
			r.RecordDiffNone()
		default:
			diff, degradedReason, diffErr := h.Client.FetchDiff(ctx, cfg.ProjectID, c.SHA)
			if diffErr != nil {
				r.RecordDiffDegraded(diffErr.Message)
			} else if degradedReason != "" {
				r.RecordDiffDegraded(degradedReason)
			} else {
				if err := h.Store.UpsertPatchBlob(ctx, cfg.RepoID, c.SHA, diff); err != nil {
					r.PatchFailed++
				} else {
					r.PatchSuccess++
				}
				r.RecordDiffSuccess()
			}
		}

		lastEntry = e
		if isProbe && i+1 >= probeBudget {
			r.HasMore = true
			break
		}
	}

	skipped := len(entries) - len(fresh)
	if skipped < 0 {
		skipped = 0
	}
	r.SkippedCount = skipped

	if lastEntry.Key != "" {
		advanced, err := h.Cursor.Advance(ctx, repoID, cursor.KindGitLabCommit, 0, lastEntry)
		if err != nil {
			return result.Failed("advance cursor: "+err.Error(), scmerrors.CategoryException)
		}
		r.WatermarkUpdated = advanced
		r.LastCommitSHA = lastEntry.Key
		r.LastCommitTS = lastEntry.TS.Format(time.RFC3339)
		r.CursorAfter = map[string]any{"ts": r.LastCommitTS, "sha": r.LastCommitSHA}
		r.CursorPersisted = advanced
	}

	return r
}

func configFromPayload(repoID int64, payload map[string]any) GitLabCommitsHandlerConfig {
	cfg := GitLabCommitsHandlerConfig{RepoID: repoID, DiffMode: "best_effort"}
	if v, ok := payload["gitlab_project_id"].(string); ok {
		cfg.ProjectID = v
	}
	if v, ok := payload["diff_mode"].(string); ok && v != "" {
		cfg.DiffMode = v
	}
	return cfg
}

// probeBudget returns the capped item count for a probe-mode dispatch and
// whether this call is a probe at all.
func probeBudget(mode string, payload map[string]any) (int, bool) {
	if mode != "probe" {
		return 0, false
	}
	budget := 10
	if v, ok := payload["probe_budget"].(float64); ok && v > 0 {
		budget = int(v)
	}
	if v, ok := payload["probe_budget"].(int); ok && v > 0 {
		budget = v
	}
	return budget, true
}
