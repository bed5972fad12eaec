package result

import "github.com/engramscm/engram-scm/internal/scmerrors"

func categoryFromString(s string) scmerrors.Category {
	return scmerrors.Category(s)
}

// legacyFieldMapping maps old handler field names to their current
// equivalents. Both spellings are accepted on input; presence of a legacy
// key emits a warning but never fails validation.
var legacyFieldMapping = map[string]string{
	"ok":    "success",
	"count": "synced_count",
}

// NormalizeLegacyFields rewrites a raw handler-returned map in place,
// renaming legacy keys onto their current names when the current name is
// absent, and returns the list of legacy keys it found (for a caller to
// log as warnings).
func NormalizeLegacyFields(raw map[string]any) []string {
	var found []string
	for legacy, current := range legacyFieldMapping {
		v, ok := raw[legacy]
		if !ok {
			continue
		}
		found = append(found, legacy)
		if _, exists := raw[current]; !exists {
			raw[current] = v
		}
		delete(raw, legacy)
	}
	return found
}

// FromRawMap builds a SyncResult from a raw (possibly legacy-shaped) map,
// such as one decoded from a handler's JSON-over-subprocess response, or a
// Python-era result persisted before this normalization existed.
func FromRawMap(raw map[string]any) (SyncResult, []string) {
	warnings := NormalizeLegacyFields(raw)

	r := New()
	if v, ok := raw["success"].(bool); ok {
		r.Success = v
	}
	if v, ok := raw["synced_count"].(float64); ok {
		r.SyncedCount = int(v)
	}
	if v, ok := raw["skipped_count"].(float64); ok {
		r.SkippedCount = int(v)
	}
	if v, ok := raw["diff_count"].(float64); ok {
		r.DiffCount = int(v)
	}
	if v, ok := raw["degraded_count"].(float64); ok {
		r.DegradedCount = int(v)
	}
	if v, ok := raw["error"].(string); ok {
		r.Error = v
	}
	if v, ok := raw["error_category"].(string); ok {
		r.ErrorCategory = categoryFromString(v)
	}
	return r, warnings
}
