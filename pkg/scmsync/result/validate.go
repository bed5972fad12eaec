package result

import "fmt"

// ValidationError reports one contract violation. The executor treats any
// non-nil validation error as error_category=contract_error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sync result contract violation: field %q: %s", e.Field, e.Reason)
}

// counterFields lists every field the validator checks is non-negative.
func (r SyncResult) counterFields() map[string]int {
	return map[string]int{
		"synced_count":          r.SyncedCount,
		"skipped_count":         r.SkippedCount,
		"diff_count":            r.DiffCount,
		"degraded_count":        r.DegradedCount,
		"bulk_count":            r.BulkCount,
		"diff_none_count":       r.DiffNoneCount,
		"scanned_count":         r.ScannedCount,
		"inserted_count":        r.InsertedCount,
		"synced_mr_count":       r.SyncedMRCount,
		"synced_event_count":    r.SyncedEventCount,
		"skipped_event_count":   r.SkippedEventCount,
		"patch_success":         r.PatchSuccess,
		"patch_failed":          r.PatchFailed,
		"skipped_by_controller": r.SkippedByController,
	}
}

// Validate runs the contract validator named in spec §4.2: it rejects
// missing/typed/negative/unknown-category fields. "success" is the only
// required field in the struct sense (the Go type always populates it);
// the checks that matter here are the ones a handler could still get
// wrong: negative counters, a missing error/error_category pair on
// failure, and an error_category outside the closed enum.
func (r SyncResult) Validate() error {
	for field, v := range r.counterFields() {
		if v < 0 {
			return &ValidationError{Field: field, Reason: "counters must be non-negative"}
		}
	}

	if !r.Success {
		if r.Error == "" {
			return &ValidationError{Field: "error", Reason: "required when success=false"}
		}
		if r.ErrorCategory == "" {
			return &ValidationError{Field: "error_category", Reason: "required when success=false"}
		}
	}

	if r.ErrorCategory != "" && !r.ErrorCategory.Valid() {
		return &ValidationError{Field: "error_category", Reason: fmt.Sprintf("unknown category %q", r.ErrorCategory)}
	}

	if r.Locked != r.Skipped {
		return &ValidationError{Field: "locked", Reason: "locked and skipped must be set together"}
	}

	return nil
}
