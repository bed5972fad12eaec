package reaper

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/engramscm/engram-scm/internal/db"
)

func nilLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOutboxIDForJobIsAlwaysEmptyForBuiltinJobTypes(t *testing.T) {
	lease := db.ReclaimedLease{JobID: uuid.New(), RepoID: 1, JobType: "gitlab_commits"}
	if got := outboxIDForJob(lease); got != "" {
		t.Fatalf("outboxIDForJob = %q, want empty string", got)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	r := New(nil, nilLogger(), Config{})
	if r.cfg.Interval <= 0 {
		t.Fatal("expected a default interval")
	}
	if r.cfg.BackfillSize <= 0 {
		t.Fatal("expected a default backfill size")
	}
}
