package result

import (
	"testing"

	"github.com/engramscm/engram-scm/internal/scmerrors"
)

func TestNewDefaults(t *testing.T) {
	r := New()
	if !r.Success {
		t.Fatal("expected success=true by default")
	}
	if r.SyncedCount != 0 || r.DiffCount != 0 || r.DegradedCount != 0 {
		t.Fatal("expected zero counters by default")
	}
}

func TestAddOperatorSumsCounters(t *testing.T) {
	a := SyncResult{Success: true, SyncedCount: 5, DiffCount: 3, DegradedCount: 1}
	b := SyncResult{Success: true, SyncedCount: 3, DiffCount: 2, DegradedCount: 0}
	combined := a.Add(b)

	if combined.SyncedCount != 8 {
		t.Errorf("synced_count = %d, want 8", combined.SyncedCount)
	}
	if combined.DiffCount != 5 {
		t.Errorf("diff_count = %d, want 5", combined.DiffCount)
	}
	if combined.DegradedCount != 1 {
		t.Errorf("degraded_count = %d, want 1", combined.DegradedCount)
	}
}

func TestAddOperatorANDsSuccess(t *testing.T) {
	a := SyncResult{Success: true}
	b := SyncResult{Success: false, Error: "boom", ErrorCategory: scmerrors.CategoryNetwork}
	combined := a.Add(b)

	if combined.Success {
		t.Fatal("expected combined success=false")
	}
	if combined.Error != "boom" || combined.ErrorCategory != scmerrors.CategoryNetwork {
		t.Fatalf("expected failing side's error to win: %+v", combined)
	}
}

func TestAddOperatorORsLockedSkipped(t *testing.T) {
	a := SyncResult{Success: true, Locked: false, Skipped: false}
	b := SyncResult{Success: true, Locked: true, Skipped: true}
	combined := a.Add(b)

	if !combined.Locked || !combined.Skipped {
		t.Fatal("expected locked/skipped to OR together")
	}
}

func TestAddOperatorMergesDegradedReasons(t *testing.T) {
	a := SyncResult{DegradedReasons: map[string]int{"timeout": 1}}
	b := SyncResult{DegradedReasons: map[string]int{"timeout": 1, "http_error": 1}}
	combined := a.Add(b)

	if combined.DegradedReasons["timeout"] != 2 {
		t.Errorf("timeout = %d, want 2", combined.DegradedReasons["timeout"])
	}
	if combined.DegradedReasons["http_error"] != 1 {
		t.Errorf("http_error = %d, want 1", combined.DegradedReasons["http_error"])
	}
}

func TestRecordDiffSuccess(t *testing.T) {
	r := New()
	r.SyncedCount = 1
	r.RecordDiffSuccess()

	if r.DiffCount != 1 || r.DegradedCount != 0 || r.DiffNoneCount != 0 {
		t.Fatalf("unexpected counters after RecordDiffSuccess: %+v", r)
	}
}

func TestRecordDiffDegraded(t *testing.T) {
	r := New()
	r.SyncedCount = 1
	r.RecordDiffDegraded("timeout")

	if r.DiffCount != 1 {
		t.Errorf("diff_count = %d, want 1 (ministat still counts as written)", r.DiffCount)
	}
	if r.DegradedCount != 1 {
		t.Errorf("degraded_count = %d, want 1", r.DegradedCount)
	}
	if r.DegradedReasons["timeout"] != 1 {
		t.Errorf("degraded_reasons[timeout] = %d, want 1", r.DegradedReasons["timeout"])
	}
}

func TestRecordDiffNoneLeavesDiffCountZero(t *testing.T) {
	r := New()
	r.SyncedCount = 10
	for i := 0; i < 10; i++ {
		r.RecordDiffNone()
	}

	if r.DiffCount != 0 {
		t.Errorf("diff_count = %d, want 0", r.DiffCount)
	}
	if r.DiffNoneCount != 10 {
		t.Errorf("diff_none_count = %d, want 10", r.DiffNoneCount)
	}
}

func TestDiffModeComparisonSameInput(t *testing.T) {
	always := New()
	always.SyncedCount = 10
	for i := 0; i < 8; i++ {
		always.RecordDiffSuccess()
	}

	bestEffort := New()
	bestEffort.SyncedCount = 10
	for i := 0; i < 8; i++ {
		bestEffort.RecordDiffSuccess()
	}
	bestEffort.RecordDiffDegraded("timeout")
	bestEffort.RecordDiffDegraded("timeout")

	none := New()
	none.SyncedCount = 10
	for i := 0; i < 10; i++ {
		none.RecordDiffNone()
	}

	if always.DiffCount != 8 {
		t.Errorf("always diff_count = %d, want 8", always.DiffCount)
	}
	if bestEffort.DiffCount != 10 {
		t.Errorf("best_effort diff_count = %d, want 10", bestEffort.DiffCount)
	}
	if none.DiffCount != 0 {
		t.Errorf("none diff_count = %d, want 0", none.DiffCount)
	}
	if bestEffort.DegradedReasons["timeout"] != 2 {
		t.Errorf("best_effort degraded_reasons[timeout] = %d, want 2", bestEffort.DegradedReasons["timeout"])
	}
}

func TestRecordDedupAccumulates(t *testing.T) {
	r := New()
	r.RecordDedup(3)
	r.RecordDedup(2)
	if r.SkippedCount != 5 {
		t.Errorf("skipped_count = %d, want 5", r.SkippedCount)
	}
}

func TestNoDataCarriesCursor(t *testing.T) {
	r := NoData(map[string]any{"sha": "abc123"})
	if !r.Success {
		t.Fatal("expected success=true")
	}
	if r.CursorAfter["sha"] != "abc123" {
		t.Fatalf("cursor not carried through: %+v", r.CursorAfter)
	}
}

func TestFailedRequiresCategory(t *testing.T) {
	r := Failed("connection timeout", scmerrors.CategoryTimeout)
	if r.Success {
		t.Fatal("expected success=false")
	}
	if r.Error != "connection timeout" || r.ErrorCategory != scmerrors.CategoryTimeout {
		t.Fatalf("unexpected failed result: %+v", r)
	}
}

func TestLockHeldScenario(t *testing.T) {
	r := LockHeld("watermark lock held by another worker")
	if !r.Success {
		t.Fatal("lock_held is not a failure")
	}
	if !r.Locked || !r.Skipped {
		t.Fatal("expected locked and skipped both true")
	}
	if r.ErrorCategory != scmerrors.CategoryLockHeld {
		t.Fatalf("expected lock_held category, got %s", r.ErrorCategory)
	}
}
