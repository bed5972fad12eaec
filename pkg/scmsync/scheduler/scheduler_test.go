package scheduler

import (
	"testing"
	"time"

	"github.com/engramscm/engram-scm/internal/db"
	"github.com/engramscm/engram-scm/pkg/scmsync/breaker"
)

func TestIsStaleNeverSyncedIsStale(t *testing.T) {
	if !isStale(db.SyncCursor{}, false, 10*time.Minute, time.Now()) {
		t.Fatal("expected a repo with no cursor row to be stale")
	}
}

func TestIsStaleFreshCursorIsNotStale(t *testing.T) {
	now := time.Now()
	c := db.SyncCursor{UpdatedAt: now.Add(-1 * time.Minute)}
	if isStale(c, true, 10*time.Minute, now) {
		t.Fatal("expected a recently-updated cursor not to be stale")
	}
}

func TestIsStaleOldCursorIsStale(t *testing.T) {
	now := time.Now()
	c := db.SyncCursor{UpdatedAt: now.Add(-20 * time.Minute)}
	if !isStale(c, true, 10*time.Minute, now) {
		t.Fatal("expected a cursor older than the threshold to be stale")
	}
}

func TestDefaultJobTypeConfigsCoversAllBuiltinHandlers(t *testing.T) {
	cfgs := DefaultJobTypeConfigs()
	for _, jobType := range []string{"gitlab_commits", "gitlab_mrs", "svn"} {
		if _, ok := cfgs[jobType]; !ok {
			t.Fatalf("expected a default config for %q", jobType)
		}
	}
}

func TestRepoTypeJobsCoversGitlabAndSVN(t *testing.T) {
	if len(repoTypeJobs["gitlab"]) != 2 {
		t.Fatalf("expected 2 job types for gitlab repos, got %d", len(repoTypeJobs["gitlab"]))
	}
	if len(repoTypeJobs["svn"]) != 1 {
		t.Fatalf("expected 1 job type for svn repos, got %d", len(repoTypeJobs["svn"]))
	}
}

func TestBasePayloadCarriesWindowTypeAndMode(t *testing.T) {
	s := &Scheduler{}
	jtc := JobTypeConfig{WindowType: "rev", StaleAfter: 10 * time.Minute}
	payload := s.basePayload(jtc, breaker.Status{}, "incremental")

	if payload["version"] != "v2" {
		t.Fatalf("version = %v, want v2", payload["version"])
	}
	if payload["window_type"] != "rev" {
		t.Fatalf("window_type = %v, want rev", payload["window_type"])
	}
	if payload["mode"] != "incremental" {
		t.Fatalf("mode = %v, want incremental", payload["mode"])
	}
	if _, ok := payload["start_rev"]; !ok {
		t.Fatal("expected start_rev to be set for window_type=rev")
	}
}

func TestBasePayloadAppliesBreakerDegradation(t *testing.T) {
	s := &Scheduler{}
	jtc := JobTypeConfig{WindowType: "time", StaleAfter: 10 * time.Minute}
	status := breaker.Status{
		Degradation: breaker.Degradation{SuggestedDiffMode: "none", SuggestedBatchSize: 3},
	}
	payload := s.basePayload(jtc, status, "probe")

	if payload["diff_mode"] != "none" {
		t.Fatalf("diff_mode = %v, want none", payload["diff_mode"])
	}
	if payload["probe_budget"] != 3 {
		t.Fatalf("probe_budget = %v, want 3", payload["probe_budget"])
	}
}
