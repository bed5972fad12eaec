package handlers

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/engramscm/engram-scm/internal/scmerrors"
	"github.com/engramscm/engram-scm/pkg/scmsync/cursor"
)

// fakeGitLabCommitsClient is a deterministic in-memory stand-in for the
// real GitLab API, used since the concrete wire client is out of scope.
type fakeGitLabCommitsClient struct {
	commits []Commit
	diffs   map[string]string
	err     *ProtocolError
}

func (f *fakeGitLabCommitsClient) ListCommits(ctx context.Context, projectID string, since time.Time, limit int) ([]Commit, *ProtocolError) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Commit
	for _, c := range f.commits {
		if c.Timestamp.After(since) || c.Timestamp.Equal(since) {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeGitLabCommitsClient) FetchDiff(ctx context.Context, projectID, sha string) (string, string, *ProtocolError) {
	if d, ok := f.diffs[sha]; ok {
		return d, "", nil
	}
	return "", "too_large", nil
}

type fakeCommitStore struct {
	commits    []Commit
	patchBlobs map[string]string
}

func (f *fakeCommitStore) UpsertCommit(ctx context.Context, repoID int64, c Commit) error {
	f.commits = append(f.commits, c)
	return nil
}

func (f *fakeCommitStore) UpsertPatchBlob(ctx context.Context, repoID int64, sha, diff string) error {
	if f.patchBlobs == nil {
		f.patchBlobs = map[string]string{}
	}
	f.patchBlobs[sha] = diff
	return nil
}

func TestGitLabMRHandlerPersistsAndCounts(t *testing.T) {
	client := &fakeGitLabMRClient{
		mrs: []MergeRequest{
			{IID: 1, State: "opened", UpdatedAt: time.Now()},
			{IID: 2, State: "merged", UpdatedAt: time.Now()},
		},
	}
	store := &fakeMRStore{}
	h := &GitLabMRHandler{Client: client, Store: store, Cursor: newTestCursorStore()}

	r := h.Handle(context.Background(), 7, "incremental", map[string]any{"gitlab_project_id": "7"})
	if !r.Success {
		t.Fatalf("expected success, got %+v", r)
	}
	if r.SyncedMRCount != 2 {
		t.Fatalf("SyncedMRCount = %d, want 2", r.SyncedMRCount)
	}
	if len(store.mrs) != 2 {
		t.Fatalf("expected 2 persisted MRs, got %d", len(store.mrs))
	}
	if !r.WatermarkUpdated {
		t.Fatal("expected cursor to advance past a never-seen watermark")
	}
}

func TestGitLabMRHandlerRerunAfterCursorSkipsAlreadySeenIIDs(t *testing.T) {
	client := &fakeGitLabMRClient{
		mrs: []MergeRequest{
			{IID: 1, State: "opened", UpdatedAt: time.Now()},
			{IID: 2, State: "merged", UpdatedAt: time.Now()},
		},
	}
	store := &fakeMRStore{}
	cur := newTestCursorStore()
	h := &GitLabMRHandler{Client: client, Store: store, Cursor: cur}

	first := h.Handle(context.Background(), 7, "incremental", map[string]any{"gitlab_project_id": "7"})
	if first.SyncedMRCount != 2 {
		t.Fatalf("first run SyncedMRCount = %d, want 2", first.SyncedMRCount)
	}

	second := h.Handle(context.Background(), 7, "incremental", map[string]any{"gitlab_project_id": "7"})
	if second.SyncedMRCount != 0 {
		t.Fatalf("rerun SyncedMRCount = %d, want 0", second.SyncedMRCount)
	}
	if second.SkippedCount != 2 {
		t.Fatalf("rerun SkippedCount = %d, want 2", second.SkippedCount)
	}
}

func TestGitLabMRHandlerTranslatesProtocolError(t *testing.T) {
	client := &fakeGitLabMRClient{err: &ProtocolError{Category: scmerrors.CategoryRateLimit, Message: "429"}}
	h := &GitLabMRHandler{Client: client, Store: &fakeMRStore{}, Cursor: newTestCursorStore()}

	r := h.Handle(context.Background(), 7, "incremental", nil)
	if r.Success {
		t.Fatal("expected failure")
	}
	if r.ErrorCategory != scmerrors.CategoryRateLimit {
		t.Fatalf("got %q, want rate_limit", r.ErrorCategory)
	}
}

type fakeGitLabMRClient struct {
	mrs []MergeRequest
	err *ProtocolError
}

func (f *fakeGitLabMRClient) ListMergeRequests(ctx context.Context, projectID string, since time.Time) ([]MergeRequest, *ProtocolError) {
	if f.err != nil {
		return nil, f.err
	}
	return f.mrs, nil
}

type fakeMRStore struct {
	mrs []MergeRequest
}

func (f *fakeMRStore) UpsertMergeRequest(ctx context.Context, repoID int64, mr MergeRequest) error {
	f.mrs = append(f.mrs, mr)
	return nil
}

type fakeSVNClient struct {
	revisions []Revision
	err       *ProtocolError
}

func (f *fakeSVNClient) ListRevisions(ctx context.Context, repoURL string, startRev int64, limit int) ([]Revision, *ProtocolError) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Revision
	for _, rev := range f.revisions {
		if rev.Rev >= startRev {
			out = append(out, rev)
		}
	}
	return out, nil
}

type fakeRevisionStore struct {
	revisions []Revision
}

func (f *fakeRevisionStore) UpsertRevision(ctx context.Context, repoID int64, rev Revision) error {
	f.revisions = append(f.revisions, rev)
	return nil
}

// fakeCursorStore is an in-memory stand-in for *cursor.Store, keyed by
// (repoID, kind), so handler tests don't need a live database.
type fakeCursorStore struct {
	watermarks map[string]cursor.Watermark
}

func newTestCursorStore() *fakeCursorStore {
	return &fakeCursorStore{watermarks: map[string]cursor.Watermark{}}
}

func (f *fakeCursorStore) key(repoID int64, kind string) string {
	return strconv.FormatInt(repoID, 10) + ":" + kind
}

func (f *fakeCursorStore) Load(ctx context.Context, repoID int64, kind string) (cursor.Watermark, error) {
	return f.watermarks[f.key(repoID, kind)], nil
}

func (f *fakeCursorStore) Advance(ctx context.Context, repoID int64, kind string, runningCount int64, candidate cursor.Watermark) (bool, error) {
	current := f.watermarks[f.key(repoID, kind)]
	advanced := advanceForTest(kind, current, candidate)
	if advanced {
		f.watermarks[f.key(repoID, kind)] = candidate
	}
	return advanced, nil
}

// advanceForTest mirrors cursor's unexported shouldAdvanceForKind closely
// enough for these handler-level tests: svn revisions compare by key only.
func advanceForTest(kind string, current, candidate cursor.Watermark) bool {
	if kind == cursor.KindSVNRevision || kind == cursor.KindGitLabMR {
		if current.Key == "" {
			return true
		}
		return cursor.KeyLess(kind, current.Key, candidate.Key)
	}
	return cursor.ShouldAdvance(candidate.TS, candidate.Key, current.TS, current.Key)
}

func TestSVNHandlerTranslatesProtocolError(t *testing.T) {
	client := &fakeSVNClient{err: &ProtocolError{Category: scmerrors.CategoryNetwork, Message: "connection reset"}}
	h := &SVNHandler{Client: client, Store: &fakeRevisionStore{}, Cursor: newTestCursorStore()}

	r := h.Handle(context.Background(), 7, "incremental", map[string]any{"repo_url": "svn://example/repo"})
	if r.Success {
		t.Fatal("expected failure")
	}
	if r.ErrorCategory != scmerrors.CategoryNetwork {
		t.Fatalf("got %q, want network", r.ErrorCategory)
	}
}

func TestSVNHandlerPersistsRevisionsAndAdvancesCursor(t *testing.T) {
	client := &fakeSVNClient{revisions: []Revision{
		{Rev: 10, Author: "alice"},
		{Rev: 11, Author: "bob"},
	}}
	store := &fakeRevisionStore{}
	h := &SVNHandler{Client: client, Store: store, Cursor: newTestCursorStore()}

	r := h.Handle(context.Background(), 7, "incremental", map[string]any{"repo_url": "svn://example/repo"})
	if !r.Success {
		t.Fatalf("expected success, got %+v", r)
	}
	if r.SyncedCount != 2 {
		t.Fatalf("SyncedCount = %d, want 2", r.SyncedCount)
	}
	if r.LastRev != "11" {
		t.Fatalf("LastRev = %q, want 11", r.LastRev)
	}
	if !r.WatermarkUpdated {
		t.Fatal("expected watermark to advance past a never-seen cursor")
	}
}

func TestGitLabCommitsHandlerPersistsAndAdvancesCursor(t *testing.T) {
	now := time.Now().UTC()
	client := &fakeGitLabCommitsClient{
		commits: []Commit{
			{SHA: "bbb", Timestamp: now, Message: "second"},
			{SHA: "aaa", Timestamp: now.Add(-time.Hour), Message: "first"},
		},
		diffs: map[string]string{"aaa": "diff a", "bbb": "diff b"},
	}
	store := &fakeCommitStore{}
	h := &GitLabCommitsHandler{Client: client, Store: store, Cursor: newTestCursorStore()}

	r := h.Handle(context.Background(), 7, "incremental", map[string]any{"gitlab_project_id": "7"})
	if !r.Success {
		t.Fatalf("expected success, got %+v", r)
	}
	if r.SyncedCount != 2 {
		t.Fatalf("SyncedCount = %d, want 2", r.SyncedCount)
	}
	if r.LastCommitSHA != "bbb" {
		t.Fatalf("LastCommitSHA = %q, want bbb (the later (ts, sha))", r.LastCommitSHA)
	}
	if r.PatchSuccess != 2 {
		t.Fatalf("PatchSuccess = %d, want 2", r.PatchSuccess)
	}
}

func TestGitLabCommitsHandlerRerunAfterCursorYieldsZeroSynced(t *testing.T) {
	now := time.Now().UTC()
	commits := []Commit{
		{SHA: "bbb", Timestamp: now, Message: "second"},
		{SHA: "aaa", Timestamp: now, Message: "first"},
	}
	client := &fakeGitLabCommitsClient{commits: commits, diffs: map[string]string{"aaa": "da", "bbb": "db"}}
	store := &fakeCommitStore{}
	cur := newTestCursorStore()
	h := &GitLabCommitsHandler{Client: client, Store: store, Cursor: cur}

	first := h.Handle(context.Background(), 7, "incremental", map[string]any{"gitlab_project_id": "7"})
	if first.SyncedCount != 2 {
		t.Fatalf("first run SyncedCount = %d, want 2", first.SyncedCount)
	}

	// A second client call against the same cursor returns the exact same
	// two commits (simulating a naive re-poll); the handler must skip both.
	second := h.Handle(context.Background(), 7, "incremental", map[string]any{"gitlab_project_id": "7"})
	if second.SyncedCount != 0 {
		t.Fatalf("rerun SyncedCount = %d, want 0", second.SyncedCount)
	}
	if second.SkippedCount != 2 {
		t.Fatalf("rerun SkippedCount = %d, want 2", second.SkippedCount)
	}
}

func TestGitLabCommitsHandlerDiffModeNoneSkipsFetch(t *testing.T) {
	now := time.Now().UTC()
	client := &fakeGitLabCommitsClient{commits: []Commit{{SHA: "aaa", Timestamp: now}}}
	store := &fakeCommitStore{}
	h := &GitLabCommitsHandler{Client: client, Store: store, Cursor: newTestCursorStore()}

	r := h.Handle(context.Background(), 7, "incremental", map[string]any{"gitlab_project_id": "7", "diff_mode": "none"})
	if r.DiffNoneCount != 1 {
		t.Fatalf("DiffNoneCount = %d, want 1", r.DiffNoneCount)
	}
	if r.PatchSuccess != 0 {
		t.Fatalf("expected no patch fetch under diff_mode=none, got PatchSuccess=%d", r.PatchSuccess)
	}
}

func TestGitLabCommitsHandlerTranslatesProtocolError(t *testing.T) {
	client := &fakeGitLabCommitsClient{err: &ProtocolError{Category: scmerrors.CategoryTimeout, Message: "deadline exceeded"}}
	h := &GitLabCommitsHandler{Client: client, Store: &fakeCommitStore{}, Cursor: newTestCursorStore()}

	r := h.Handle(context.Background(), 7, "incremental", nil)
	if r.Success {
		t.Fatal("expected failure")
	}
	if r.ErrorCategory != scmerrors.CategoryTimeout {
		t.Fatalf("got %q, want timeout", r.ErrorCategory)
	}
}
