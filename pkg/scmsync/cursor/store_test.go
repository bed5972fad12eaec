package cursor

import (
	"testing"
	"time"
)

func TestKeyLessSVNNumericComparison(t *testing.T) {
	if !KeyLess(KindSVNRevision, "9", "10") {
		t.Fatal("expected revision 9 to sort before revision 10 numerically")
	}
	if KeyLess(KindSVNRevision, "10", "9") {
		t.Fatal("expected revision 10 not to sort before revision 9")
	}
}

func TestKeyLessGitLabLexicographicComparison(t *testing.T) {
	if !KeyLess(KindGitLabCommit, "1a2b3c", "abc123") {
		t.Fatal("expected sha comparison to stay lexicographic for gitlab_cursor")
	}
}

func TestKeyLessSVNFallsBackToStringOnParseFailure(t *testing.T) {
	// Malformed revision keys should not panic; fall back to string order.
	if !KeyLess(KindSVNRevision, "abc", "abd") {
		t.Fatal("expected lexicographic fallback for unparsable svn keys")
	}
}

func TestShouldAdvanceForKindSVNCrossesDigitBoundary(t *testing.T) {
	var zero time.Time
	if !shouldAdvanceForKind(KindSVNRevision, zero, "10", zero, "9") {
		t.Fatal("expected revision 10 to advance past revision 9")
	}
	if shouldAdvanceForKind(KindSVNRevision, zero, "9", zero, "10") {
		t.Fatal("expected revision 9 not to advance past already-seen revision 10")
	}
}

func TestShouldAdvanceForKindSVNIgnoresTimestamp(t *testing.T) {
	// SVN revisions carry no meaningful timestamp in this flow; only the
	// revision number should gate advancement.
	earlier := mustParse(t, "2024-01-15T10:00:00Z")
	later := mustParse(t, "2024-01-15T12:00:00Z")
	if !shouldAdvanceForKind(KindSVNRevision, earlier, "11", later, "10") {
		t.Fatal("expected higher revision to advance even with an earlier timestamp")
	}
}

func TestShouldAdvanceForKindSVNFirstSyncAdvances(t *testing.T) {
	var zero time.Time
	if !shouldAdvanceForKind(KindSVNRevision, zero, "1", zero, "") {
		t.Fatal("expected first svn revision to advance")
	}
}

func TestKeyLessGitLabMRNumericComparison(t *testing.T) {
	if !KeyLess(KindGitLabMR, "9", "10") {
		t.Fatal("expected IID 9 to sort before IID 10 numerically")
	}
}

func TestShouldAdvanceForKindGitLabMRIgnoresTimestamp(t *testing.T) {
	earlier := mustParse(t, "2024-01-15T10:00:00Z")
	later := mustParse(t, "2024-01-15T12:00:00Z")
	if !shouldAdvanceForKind(KindGitLabMR, earlier, "11", later, "10") {
		t.Fatal("expected higher IID to advance even with an earlier timestamp")
	}
	if shouldAdvanceForKind(KindGitLabMR, earlier, "5", later, "10") {
		t.Fatal("expected lower IID not to advance past already-seen IID")
	}
}
