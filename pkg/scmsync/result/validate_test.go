package result

import (
	"testing"

	"github.com/engramscm/engram-scm/internal/scmerrors"
)

func TestValidateRejectsNegativeCounter(t *testing.T) {
	r := New()
	r.SyncedCount = -1
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation error for negative synced_count")
	}
}

func TestValidateRejectsMissingErrorOnFailure(t *testing.T) {
	r := SyncResult{Success: false, ErrorCategory: scmerrors.CategoryTimeout}
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation error for missing error on failure")
	}
}

func TestValidateRejectsMissingCategoryOnFailure(t *testing.T) {
	r := SyncResult{Success: false, Error: "boom"}
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation error for missing error_category on failure")
	}
}

func TestValidateRejectsUnknownCategory(t *testing.T) {
	r := SyncResult{Success: false, Error: "boom", ErrorCategory: scmerrors.Category("not_a_real_category")}
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation error for unknown error_category")
	}
}

func TestValidateContractViolationSyntheticExample(t *testing.T) {
	// Mirrors spec S4: handler returns success:true, synced_count:-1.
	r := SyncResult{Success: true, SyncedCount: -1}
	if err := r.Validate(); err == nil {
		t.Fatal("expected contract violation for negative synced_count on a success result")
	}
}

func TestValidateRejectsLockedWithoutSkipped(t *testing.T) {
	r := SyncResult{Success: true, Locked: true, Skipped: false}
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation error when locked and skipped disagree")
	}
}

func TestValidateAcceptsWellFormedSuccess(t *testing.T) {
	r := New()
	r.SyncedCount = 10
	r.DiffCount = 10
	r.DegradedCount = 2
	r.DegradedReasons = map[string]int{"timeout": 2}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateAcceptsWellFormedFailure(t *testing.T) {
	r := Failed("connection reset", scmerrors.CategoryConnection)
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
