package result

import "fmt"

// requiredCountFields must always be present in a built counts map — an
// absent required field fails BuildCounts.
var requiredCountFields = []string{"synced_count", "skipped_count"}

// optionalCountFields are copied through when present but never required.
var optionalCountFields = []string{
	"diff_count", "degraded_count", "bulk_count", "diff_none_count",
	"scanned_count", "inserted_count", "synced_mr_count", "synced_event_count",
	"skipped_event_count", "patch_success", "patch_failed", "skipped_by_controller",
}

// limiterCountFields are copied from request_stats into the flattened
// counts map sync_runs.counts stores alongside the sync-specific counters.
var limiterCountFields = []string{"total_requests", "total_429_hits", "timeout_count"}

// BuildCounts copies the curated subset of a validated SyncResult into the
// map persisted as sync_runs.counts, per spec §4.2
// ("SyncRun.counts is built by build_counts_from_result(result)").
func BuildCounts(r SyncResult) (map[string]any, error) {
	all := r.counterFields()
	out := make(map[string]any, len(requiredCountFields)+len(optionalCountFields)+len(limiterCountFields))

	for _, f := range requiredCountFields {
		v, ok := all[f]
		if !ok {
			return nil, fmt.Errorf("build counts: required field %q absent", f)
		}
		out[f] = v
	}
	for _, f := range optionalCountFields {
		if v, ok := all[f]; ok {
			out[f] = v
		}
	}

	stats := map[string]int{
		"total_requests":  r.RequestStats.TotalRequests,
		"total_429_hits":  r.RequestStats.Total429Hits,
		"timeout_count":   r.RequestStats.TimeoutCount,
	}
	for _, f := range limiterCountFields {
		out[f] = stats[f]
	}

	return out, nil
}

// ValidateCountsSchema checks an already-built counts map against the
// required/optional field contract — used when counts arrive from outside
// this package (e.g. a reaper backfill reading an older row).
func ValidateCountsSchema(counts map[string]any) error {
	known := make(map[string]struct{}, len(requiredCountFields)+len(optionalCountFields)+len(limiterCountFields))
	for _, f := range requiredCountFields {
		known[f] = struct{}{}
		if _, ok := counts[f]; !ok {
			return fmt.Errorf("counts schema: required field %q absent", f)
		}
	}
	for _, f := range optionalCountFields {
		known[f] = struct{}{}
	}
	for _, f := range limiterCountFields {
		known[f] = struct{}{}
	}
	for k := range counts {
		if _, ok := known[k]; !ok {
			// unknown counts are warned-but-allowed per spec §4.2, not a
			// validation failure.
			continue
		}
	}
	return nil
}
