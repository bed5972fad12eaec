package db

import (
	"context"
	"time"
)

// Repo is the repos row: (repo_id, repo_type, url, project_key,
// default_branch, created_at), unique on (repo_type, url).
type Repo struct {
	RepoID        int64
	RepoType      string
	URL           string
	ProjectKey    string
	DefaultBranch string
	CreatedAt     time.Time
}

type UpsertRepoParams struct {
	RepoType      string
	URL           string
	ProjectKey    string
	DefaultBranch string
}

// UpsertRepo inserts a repo row, returning the existing repo_id on a
// (repo_type, url) conflict instead of erroring. Repos are never deleted
// by the core, so this is the only write path for the table.
func (q *Queries) UpsertRepo(ctx context.Context, arg UpsertRepoParams) (int64, error) {
	const sql = `
INSERT INTO repos (repo_type, url, project_key, default_branch)
VALUES ($1, $2, $3, $4)
ON CONFLICT (repo_type, url) DO UPDATE SET repo_type = EXCLUDED.repo_type
RETURNING repo_id`

	var id int64
	err := q.db.QueryRow(ctx, sql, arg.RepoType, arg.URL, arg.ProjectKey, arg.DefaultBranch).Scan(&id)
	return id, err
}

func (q *Queries) GetRepoByID(ctx context.Context, repoID int64) (Repo, error) {
	const sql = `
SELECT repo_id, repo_type, url, project_key, default_branch, created_at
FROM repos WHERE repo_id = $1`

	var r Repo
	err := q.db.QueryRow(ctx, sql, repoID).Scan(&r.RepoID, &r.RepoType, &r.URL, &r.ProjectKey, &r.DefaultBranch, &r.CreatedAt)
	return r, err
}

func (q *Queries) GetRepoByURL(ctx context.Context, repoType, url string) (Repo, error) {
	const sql = `
SELECT repo_id, repo_type, url, project_key, default_branch, created_at
FROM repos WHERE repo_type = $1 AND url = $2`

	var r Repo
	err := q.db.QueryRow(ctx, sql, repoType, url).Scan(&r.RepoID, &r.RepoType, &r.URL, &r.ProjectKey, &r.DefaultBranch, &r.CreatedAt)
	return r, err
}

type ListReposParams struct {
	RepoType string // optional filter; empty means all types
	Limit    int32
}

func (q *Queries) ListRepos(ctx context.Context, arg ListReposParams) ([]Repo, error) {
	const sql = `
SELECT repo_id, repo_type, url, project_key, default_branch, created_at
FROM repos
WHERE ($1 = '' OR repo_type = $1)
ORDER BY repo_id ASC
LIMIT $2`

	rows, err := q.db.Query(ctx, sql, arg.RepoType, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Repo
	for rows.Next() {
		var r Repo
		if err := rows.Scan(&r.RepoID, &r.RepoType, &r.URL, &r.ProjectKey, &r.DefaultBranch, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Commit is a commits row keyed by (repo_id, sha).
type Commit struct {
	RepoID   int64
	SHA      string
	Author   string
	Message  string
	AuthedAt time.Time
}

type UpsertCommitParams struct {
	RepoID   int64
	SHA      string
	Author   string
	Message  string
	AuthedAt time.Time
}

func (q *Queries) UpsertCommit(ctx context.Context, arg UpsertCommitParams) error {
	const sql = `
INSERT INTO commits (repo_id, sha, author, message, authed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (repo_id, sha) DO NOTHING`

	_, err := q.db.Exec(ctx, sql, arg.RepoID, arg.SHA, arg.Author, arg.Message, arg.AuthedAt)
	return err
}

// Revision is an svn revisions row keyed by (repo_id, rev).
type Revision struct {
	RepoID   int64
	Rev      int64
	Author   string
	Message  string
	AuthedAt time.Time
}

type UpsertRevisionParams struct {
	RepoID   int64
	Rev      int64
	Author   string
	Message  string
	AuthedAt time.Time
}

func (q *Queries) UpsertRevision(ctx context.Context, arg UpsertRevisionParams) error {
	const sql = `
INSERT INTO revisions (repo_id, rev, author, message, authed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (repo_id, rev) DO NOTHING`

	_, err := q.db.Exec(ctx, sql, arg.RepoID, arg.Rev, arg.Author, arg.Message, arg.AuthedAt)
	return err
}

// PatchBlob is a content-addressed patch_blobs row keyed by
// (source_type, source_id, sha256).
type PatchBlob struct {
	SourceType      string
	SourceID        string
	SHA256          string
	ContentURI      string
	Ext             string
	ChunkingVersion int32
	CreatedAt       time.Time
}

type UpsertPatchBlobParams struct {
	SourceType      string
	SourceID        string
	SHA256          string
	ContentURI      string
	Ext             string
	ChunkingVersion int32
}

func (q *Queries) UpsertPatchBlob(ctx context.Context, arg UpsertPatchBlobParams) error {
	const sql = `
INSERT INTO patch_blobs (source_type, source_id, sha256, content_uri, ext, chunking_version)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (source_type, source_id, sha256) DO NOTHING`

	_, err := q.db.Exec(ctx, sql, arg.SourceType, arg.SourceID, arg.SHA256, arg.ContentURI, arg.Ext, arg.ChunkingVersion)
	return err
}

// MergeRequest is a merge_requests row keyed by (repo_id, iid).
type MergeRequest struct {
	RepoID    int64
	IID       int64
	State     string
	UpdatedAt time.Time
}

type UpsertMergeRequestParams struct {
	RepoID    int64
	IID       int64
	State     string
	UpdatedAt time.Time
}

// UpsertMergeRequest updates state/updated_at on conflict rather than
// no-op, since a merge request's state (opened/merged/closed) changes in
// place over its lifetime unlike an immutable commit or SVN revision.
func (q *Queries) UpsertMergeRequest(ctx context.Context, arg UpsertMergeRequestParams) error {
	const sql = `
INSERT INTO merge_requests (repo_id, iid, state, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (repo_id, iid) DO UPDATE SET state = $3, updated_at = $4`

	_, err := q.db.Exec(ctx, sql, arg.RepoID, arg.IID, arg.State, arg.UpdatedAt)
	return err
}

// BackfillChunkingVersion updates chunking_version for rows still at the
// sentinel value, per spec §3 ("it may be back-filled").
func (q *Queries) BackfillChunkingVersion(ctx context.Context, sourceType string, newVersion int32) (int64, error) {
	const sql = `
UPDATE patch_blobs SET chunking_version = $2
WHERE source_type = $1 AND chunking_version = 0`

	tag, err := q.db.Exec(ctx, sql, sourceType, newVersion)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
