package executor

import (
	"context"
	"testing"

	"github.com/engramscm/engram-scm/internal/scmerrors"
	"github.com/engramscm/engram-scm/pkg/scmsync/result"
)

func TestExecuteDispatchesToRegisteredHandler(t *testing.T) {
	e := New(map[string]Handler{
		"gitlab_commits": func(ctx context.Context, repoID int64, mode string, payload map[string]any) result.SyncResult {
			r := result.New()
			r.SyncedCount = 3
			return r
		},
	})

	r := e.Execute(context.Background(), "gitlab_commits", 1, "incremental", nil)
	if !r.Success || r.SyncedCount != 3 {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestExecuteUnknownJobTypeReturnsFailedContractResult(t *testing.T) {
	e := New(nil)
	r := e.Execute(context.Background(), "nonexistent", 1, "incremental", nil)

	if r.Success {
		t.Fatal("expected failure")
	}
	if r.ErrorCategory != scmerrors.CategoryUnknownJobType {
		t.Fatalf("got category %q, want unknown_job_type", r.ErrorCategory)
	}
}

func TestExecuteRewritesContractViolationToContractError(t *testing.T) {
	e := New(map[string]Handler{
		"broken": func(ctx context.Context, repoID int64, mode string, payload map[string]any) result.SyncResult {
			// Violates the contract: success=false without an error/category.
			r := result.New()
			r.Success = false
			return r
		},
	})

	r := e.Execute(context.Background(), "broken", 1, "incremental", nil)
	if r.Success {
		t.Fatal("expected failure")
	}
	if r.ErrorCategory != scmerrors.CategoryContract {
		t.Fatalf("got category %q, want contract_error", r.ErrorCategory)
	}
}

func TestRegisterAddsHandlerAfterConstruction(t *testing.T) {
	e := New(nil)
	e.Register("svn", func(ctx context.Context, repoID int64, mode string, payload map[string]any) result.SyncResult {
		return result.New()
	})

	r := e.Execute(context.Background(), "svn", 1, "incremental", nil)
	if !r.Success {
		t.Fatalf("expected success, got %+v", r)
	}
}

func TestExecuteFromJobDictDestructuresFields(t *testing.T) {
	e := New(map[string]Handler{
		"gitlab_commits": func(ctx context.Context, repoID int64, mode string, payload map[string]any) result.SyncResult {
			r := result.New()
			if repoID == 42 && mode == "probe" && payload["foo"] == "bar" {
				r.SyncedCount = 1
			}
			return r
		},
	})

	job := map[string]any{
		"repo_id": int64(42),
		"mode":    "probe",
		"payload": map[string]any{"foo": "bar"},
	}
	r := e.ExecuteFromJobDict(context.Background(), "gitlab_commits", job)
	if r.SyncedCount != 1 {
		t.Fatalf("expected destructured fields to reach handler, got %+v", r)
	}
}
