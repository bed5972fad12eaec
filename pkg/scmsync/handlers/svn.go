package handlers

import (
	"context"
	"strconv"

	"github.com/engramscm/engram-scm/internal/scmerrors"
	"github.com/engramscm/engram-scm/pkg/scmsync/cursor"
	"github.com/engramscm/engram-scm/pkg/scmsync/result"
)

// Revision is one SVN revision as the protocol client returns it.
type Revision struct {
	Rev       int64
	Timestamp string // RFC3339; svn log emits it as text
	Author    string
	Message   string
}

// SVNClient is the injectable seam for the real SVN client.
type SVNClient interface {
	ListRevisions(ctx context.Context, repoURL string, startRev int64, limit int) ([]Revision, *ProtocolError)
}

// RevisionStore persists revision rows.
type RevisionStore interface {
	UpsertRevision(ctx context.Context, repoID int64, rev Revision) error
}

// SVNHandler adapts an SVNClient + RevisionStore pair to the
// executor.Handler signature.
type SVNHandler struct {
	Client SVNClient
	Store  RevisionStore
	Cursor CursorStore
}

func (h *SVNHandler) Handle(ctx context.Context, repoID int64, mode string, payload map[string]any) result.SyncResult {
	repoURL, _ := payload["repo_url"].(string)

	watermark, err := h.Cursor.Load(ctx, repoID, cursor.KindSVNRevision)
	if err != nil {
		return result.Failed("load cursor: "+err.Error(), scmerrors.CategoryException)
	}

	startRev := int64(0)
	if watermark.Key != "" {
		if n, parseErr := strconv.ParseInt(watermark.Key, 10, 64); parseErr == nil {
			startRev = n + 1
		}
	}

	limit := 0
	if budget, isProbe := probeBudget(mode, payload); isProbe {
		limit = budget
	}

	revisions, protoErr := h.Client.ListRevisions(ctx, repoURL, startRev, limit)
	if protoErr != nil {
		return result.Failed(protoErr.Message, protoErr.Category)
	}

	r := result.New()
	r.Mode = mode

	var lastRev int64
	for _, rev := range revisions {
		if h.Store != nil {
			if storeErr := h.Store.UpsertRevision(ctx, repoID, rev); storeErr != nil {
				return result.Failed("persist revision: "+storeErr.Error(), scmerrors.CategoryException)
			}
		}
		r.SyncedCount++
		if rev.Rev > lastRev {
			lastRev = rev.Rev
		}
	}
	r.SkippedCount = 0

	if lastRev > 0 {
		key := strconv.FormatInt(lastRev, 10)
		advanced, advErr := h.Cursor.Advance(ctx, repoID, cursor.KindSVNRevision, 0, cursor.Watermark{Key: key})
		if advErr != nil {
			return result.Failed("advance cursor: "+advErr.Error(), scmerrors.CategoryException)
		}
		r.WatermarkUpdated = advanced
		r.LastRev = key
		r.CursorAfter = map[string]any{"rev": key}
		r.CursorPersisted = advanced
	}

	return r
}
