// Package store adapts C1's internal/db DAO to the narrow persistence
// interfaces pkg/scmsync/handlers declares (CommitStore, MRStore,
// RevisionStore), so a worker can wire a live Postgres pool into a
// handler without handlers importing internal/db directly.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/engramscm/engram-scm/internal/db"
	"github.com/engramscm/engram-scm/pkg/scmsync/handlers"
)

// FactStore wraps a DBTX and implements handlers.CommitStore,
// handlers.MRStore, and handlers.RevisionStore in one type, since all
// three are thin single-table writers over the same pool.
type FactStore struct {
	q *db.Queries
}

func New(dbtx db.DBTX) *FactStore {
	return &FactStore{q: db.New(dbtx)}
}

func (s *FactStore) UpsertCommit(ctx context.Context, repoID int64, c handlers.Commit) error {
	return s.q.UpsertCommit(ctx, db.UpsertCommitParams{
		RepoID:   repoID,
		SHA:      c.SHA,
		Message:  c.Message,
		AuthedAt: c.Timestamp,
	})
}

// UpsertPatchBlob persists a diff as a content-addressed patch_blobs row.
// The out-of-scope Artifact Store collaborator (spec's Open Question (c))
// is where a real content_uri would point; until that exists, the diff's
// own sha256 under an "inline:" scheme is the content_uri, so the row is
// still addressable and idempotent on re-sync without depending on
// external object storage this core doesn't own.
func (s *FactStore) UpsertPatchBlob(ctx context.Context, repoID int64, sha, diff string) error {
	sum := sha256.Sum256([]byte(diff))
	digest := hex.EncodeToString(sum[:])
	return s.q.UpsertPatchBlob(ctx, db.UpsertPatchBlobParams{
		SourceType:      "commit_diff",
		SourceID:        sha,
		SHA256:          digest,
		ContentURI:      "inline:" + digest,
		Ext:             "diff",
		ChunkingVersion: 1,
	})
}

func (s *FactStore) UpsertMergeRequest(ctx context.Context, repoID int64, mr handlers.MergeRequest) error {
	return s.q.UpsertMergeRequest(ctx, db.UpsertMergeRequestParams{
		RepoID:    repoID,
		IID:       mr.IID,
		State:     mr.State,
		UpdatedAt: mr.UpdatedAt,
	})
}

func (s *FactStore) UpsertRevision(ctx context.Context, repoID int64, rev handlers.Revision) error {
	authedAt, err := parseRevisionTimestamp(rev.Timestamp)
	if err != nil {
		return err
	}
	return s.q.UpsertRevision(ctx, db.UpsertRevisionParams{
		RepoID:   repoID,
		Rev:      rev.Rev,
		Author:   rev.Author,
		Message:  rev.Message,
		AuthedAt: authedAt,
	})
}
