// Package result implements C2: the single envelope shape every sync
// handler returns, its merge operator, its contract validator, and the
// legacy-field normalization that keeps older payloads accepted.
package result

import (
	"encoding/json"

	"github.com/engramscm/engram-scm/internal/scmerrors"
)

// RequestStats summarizes the HTTP traffic one handler invocation made
// against its upstream protocol client.
type RequestStats struct {
	TotalRequests  int `json:"total_requests"`
	Total429Hits   int `json:"total_429_hits"`
	TimeoutCount   int `json:"timeout_count"`
	AvgWaitTimeMS  int `json:"avg_wait_time_ms"`
}

// Add sums two RequestStats and recomputes the weighted average wait time.
func (s RequestStats) Add(o RequestStats) RequestStats {
	total := s.TotalRequests + o.TotalRequests
	out := RequestStats{
		TotalRequests: total,
		Total429Hits:  s.Total429Hits + o.Total429Hits,
		TimeoutCount:  s.TimeoutCount + o.TimeoutCount,
	}
	if total > 0 {
		out.AvgWaitTimeMS = (s.AvgWaitTimeMS*s.TotalRequests + o.AvgWaitTimeMS*o.TotalRequests) / total
	}
	return out
}

// SyncResult is the only shape a handler may return, per spec §4.2.
// All counters default to zero and are non-negative.
type SyncResult struct {
	Success bool `json:"success"`
	HasMore bool `json:"has_more,omitempty"`

	SyncedCount    int `json:"synced_count,omitempty"`
	SkippedCount   int `json:"skipped_count,omitempty"`
	DiffCount      int `json:"diff_count,omitempty"`
	DegradedCount  int `json:"degraded_count,omitempty"`
	BulkCount      int `json:"bulk_count,omitempty"`
	DiffNoneCount  int `json:"diff_none_count,omitempty"`

	ScannedCount  int `json:"scanned_count,omitempty"`
	InsertedCount int `json:"inserted_count,omitempty"`

	SyncedMRCount    int `json:"synced_mr_count,omitempty"`
	SyncedEventCount int `json:"synced_event_count,omitempty"`
	SkippedEventCount int `json:"skipped_event_count,omitempty"`

	PatchSuccess        int `json:"patch_success,omitempty"`
	PatchFailed         int `json:"patch_failed,omitempty"`
	SkippedByController int `json:"skipped_by_controller,omitempty"`

	RequestStats     RequestStats   `json:"request_stats,omitempty"`
	DegradedReasons  map[string]int `json:"degraded_reasons,omitempty"`
	UnrecoverableErrors []string    `json:"unrecoverable_errors,omitempty"`

	CursorAfter      map[string]any `json:"cursor_after,omitempty"`
	CursorPersisted  bool           `json:"cursor_persisted,omitempty"`
	WatermarkUpdated bool           `json:"watermark_updated,omitempty"`

	Locked  bool `json:"locked,omitempty"`
	Skipped bool `json:"skipped,omitempty"`

	Mode          string `json:"mode,omitempty"`
	DryRun        bool   `json:"dry_run,omitempty"`
	LastRev       string `json:"last_rev,omitempty"`
	LastCommitSHA string `json:"last_commit_sha,omitempty"`
	LastCommitTS  string `json:"last_commit_ts,omitempty"`
	Message       string `json:"message,omitempty"`

	Error         string             `json:"error,omitempty"`
	ErrorCategory scmerrors.Category `json:"error_category,omitempty"`
}

// New returns a zero-valued, successful result (the dataclass default).
func New() SyncResult {
	return SyncResult{Success: true}
}

// NoData builds the "nothing to do this cycle" result, carrying forward
// whatever cursor the caller already had.
func NoData(cursorAfter map[string]any) SyncResult {
	r := New()
	r.CursorAfter = cursorAfter
	return r
}

// Failed builds a failure envelope. Per spec §4.2, success=false must
// always carry both error and error_category.
func Failed(message string, category scmerrors.Category) SyncResult {
	return SyncResult{
		Success:       false,
		Error:         message,
		ErrorCategory: category,
	}
}

// LockHeld builds the locked/skipped short-circuit result used when an
// external resource lock (e.g. the watermark) prevented execution; the
// job is not a failure and may safely re-queue.
func LockHeld(message string) SyncResult {
	return SyncResult{
		Success:       true,
		Locked:        true,
		Skipped:       true,
		ErrorCategory: scmerrors.CategoryLockHeld,
		Message:       message,
	}
}

// RecordDiffSuccess marks one record's diff as fully fetched and stored.
func (r *SyncResult) RecordDiffSuccess() {
	r.DiffCount++
}

// RecordDiffDegraded marks one record whose full diff fetch failed but
// whose ministat/diffstat was stored instead (diff_mode=best_effort).
func (r *SyncResult) RecordDiffDegraded(reason string) {
	r.DiffCount++
	r.DegradedCount++
	if r.DegradedReasons == nil {
		r.DegradedReasons = map[string]int{}
	}
	r.DegradedReasons[reason]++
}

// RecordDiffNone marks one record skipped entirely under diff_mode=none.
// diff_count is left unchanged since nothing was written.
func (r *SyncResult) RecordDiffNone() {
	r.DiffNoneCount++
}

// RecordDedup adds n records filtered by dedup/watermark/idempotency.
func (r *SyncResult) RecordDedup(n int) {
	r.SkippedCount += n
}

// RecordBulk marks one commit that bypassed diff fetch because its file
// count exceeded the configured limit.
func (r *SyncResult) RecordBulk() {
	r.BulkCount++
}

// Add merges two results: field-wise sum for counters, union for maps,
// the newer (right-hand) cursor_after/has_more, logical-AND on success,
// OR on locked/skipped.
func (a SyncResult) Add(b SyncResult) SyncResult {
	out := SyncResult{
		Success: a.Success && b.Success,
		HasMore: b.HasMore,

		SyncedCount:   a.SyncedCount + b.SyncedCount,
		SkippedCount:  a.SkippedCount + b.SkippedCount,
		DiffCount:     a.DiffCount + b.DiffCount,
		DegradedCount: a.DegradedCount + b.DegradedCount,
		BulkCount:     a.BulkCount + b.BulkCount,
		DiffNoneCount: a.DiffNoneCount + b.DiffNoneCount,

		ScannedCount:  a.ScannedCount + b.ScannedCount,
		InsertedCount: a.InsertedCount + b.InsertedCount,

		SyncedMRCount:     a.SyncedMRCount + b.SyncedMRCount,
		SyncedEventCount:  a.SyncedEventCount + b.SyncedEventCount,
		SkippedEventCount: a.SkippedEventCount + b.SkippedEventCount,

		PatchSuccess:         a.PatchSuccess + b.PatchSuccess,
		PatchFailed:          a.PatchFailed + b.PatchFailed,
		SkippedByController:  a.SkippedByController + b.SkippedByController,

		RequestStats: a.RequestStats.Add(b.RequestStats),

		CursorPersisted:  b.CursorPersisted,
		WatermarkUpdated: a.WatermarkUpdated || b.WatermarkUpdated,

		Locked:  a.Locked || b.Locked,
		Skipped: a.Skipped || b.Skipped,

		Mode:          orString(b.Mode, a.Mode),
		DryRun:        a.DryRun || b.DryRun,
		LastRev:       orString(b.LastRev, a.LastRev),
		LastCommitSHA: orString(b.LastCommitSHA, a.LastCommitSHA),
		LastCommitTS:  orString(b.LastCommitTS, a.LastCommitTS),
		Message:       orString(b.Message, a.Message),
	}

	if b.CursorAfter != nil {
		out.CursorAfter = b.CursorAfter
	} else {
		out.CursorAfter = a.CursorAfter
	}

	out.DegradedReasons = mergeCounts(a.DegradedReasons, b.DegradedReasons)
	out.UnrecoverableErrors = append(append([]string{}, a.UnrecoverableErrors...), b.UnrecoverableErrors...)

	if !b.Success {
		out.Error = b.Error
		out.ErrorCategory = b.ErrorCategory
	} else if !a.Success {
		out.Error = a.Error
		out.ErrorCategory = a.ErrorCategory
	}

	return out
}

func orString(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}

func mergeCounts(a, b map[string]int) map[string]int {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]int, len(a)+len(b))
	for k, v := range a {
		out[k] += v
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}

// ToJSON serializes the result for storage in sync_runs.counts-adjacent
// columns or for logging.
func (r SyncResult) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
