package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/engramscm/engram-scm/internal/scmerrors"
	"github.com/engramscm/engram-scm/pkg/scmsync/cursor"
	"github.com/engramscm/engram-scm/pkg/scmsync/result"
)

// MergeRequest is one GitLab merge request as the protocol client returns
// it.
type MergeRequest struct {
	IID       int64
	State     string
	UpdatedAt time.Time
}

// GitLabMRClient is the injectable seam for the real GitLab API.
type GitLabMRClient interface {
	ListMergeRequests(ctx context.Context, projectID string, since time.Time) ([]MergeRequest, *ProtocolError)
}

// MRStore persists merge request rows.
type MRStore interface {
	UpsertMergeRequest(ctx context.Context, repoID int64, mr MergeRequest) error
}

// GitLabMRHandler adapts a GitLabMRClient + MRStore pair to the
// executor.Handler signature. Merge requests are de-duplicated on
// IID alone (no sha-equivalent tiebreak exists for MR state), so it
// reuses pkg/scmsync/cursor with IID's decimal string as the key, which
// is monotonic because GitLab allocates IIDs in creation order.
type GitLabMRHandler struct {
	Client GitLabMRClient
	Store  MRStore
	Cursor CursorStore
}

func (h *GitLabMRHandler) Handle(ctx context.Context, repoID int64, mode string, payload map[string]any) result.SyncResult {
	projectID, _ := payload["gitlab_project_id"].(string)

	watermark, err := h.Cursor.Load(ctx, repoID, cursor.KindGitLabMR)
	if err != nil {
		return result.Failed("load cursor: "+err.Error(), scmerrors.CategoryException)
	}
	lastIID := int64(0)
	if watermark.Key != "" {
		if n, parseErr := strconv.ParseInt(watermark.Key, 10, 64); parseErr == nil {
			lastIID = n
		}
	}

	since := time.Now().Add(-24 * time.Hour)
	if v, ok := payload["since"].(string); ok {
		if ts, parseErr := time.Parse(time.RFC3339, v); parseErr == nil {
			since = ts
		}
	}

	mrs, protoErr := h.Client.ListMergeRequests(ctx, projectID, since)
	if protoErr != nil {
		return result.Failed(protoErr.Message, protoErr.Category)
	}

	r := result.New()
	r.Mode = mode

	var lastSeenIID int64
	for _, mr := range mrs {
		if mr.IID <= lastIID {
			r.SkippedCount++
			continue
		}
		if err := h.Store.UpsertMergeRequest(ctx, repoID, mr); err != nil {
			return result.Failed("persist merge request: "+err.Error(), scmerrors.CategoryException)
		}
		r.SyncedMRCount++
		if mr.IID > lastSeenIID {
			lastSeenIID = mr.IID
		}
	}

	if lastSeenIID > 0 {
		key := strconv.FormatInt(lastSeenIID, 10)
		advanced, advErr := h.Cursor.Advance(ctx, repoID, cursor.KindGitLabMR, 0, cursor.Watermark{Key: key})
		if advErr != nil {
			return result.Failed("advance cursor: "+advErr.Error(), scmerrors.CategoryException)
		}
		r.WatermarkUpdated = advanced
		r.CursorAfter = map[string]any{"iid": key}
		r.CursorPersisted = advanced
	}

	return r
}
