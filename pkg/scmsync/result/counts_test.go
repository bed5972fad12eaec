package result

import "testing"

func TestBuildCountsIncludesRequiredFields(t *testing.T) {
	r := New()
	r.SyncedCount = 10
	r.SkippedCount = 2
	r.DiffCount = 8

	counts, err := BuildCounts(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["synced_count"] != 10 {
		t.Errorf("synced_count = %v, want 10", counts["synced_count"])
	}
	if counts["skipped_count"] != 2 {
		t.Errorf("skipped_count = %v, want 2", counts["skipped_count"])
	}
	if counts["diff_count"] != 8 {
		t.Errorf("diff_count = %v, want 8", counts["diff_count"])
	}
}

func TestBuildCountsIncludesLimiterFields(t *testing.T) {
	r := New()
	r.RequestStats = RequestStats{TotalRequests: 20, Total429Hits: 3, TimeoutCount: 1}

	counts, err := BuildCounts(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["total_requests"] != 20 {
		t.Errorf("total_requests = %v, want 20", counts["total_requests"])
	}
	if counts["total_429_hits"] != 3 {
		t.Errorf("total_429_hits = %v, want 3", counts["total_429_hits"])
	}
}

func TestValidateCountsSchemaRequiresSyncedCount(t *testing.T) {
	counts := map[string]any{"skipped_count": 0}
	if err := ValidateCountsSchema(counts); err == nil {
		t.Fatal("expected error for missing synced_count")
	}
}

func TestValidateCountsSchemaAllowsUnknownFields(t *testing.T) {
	counts := map[string]any{
		"synced_count":  5,
		"skipped_count": 0,
		"future_field":  42,
	}
	if err := ValidateCountsSchema(counts); err != nil {
		t.Fatalf("unknown counts fields should be warned-but-allowed, got error: %v", err)
	}
}
