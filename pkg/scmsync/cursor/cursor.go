// Package cursor implements the (timestamp, sha|rev) watermark tie-break
// rules shared by every incremental source: sort order, dedup-against-
// cursor filtering, and the monotonic advancement check, per spec §9
// ("Cursor advancement is strictly monotonic ... ties on timestamp break
// on sha ascending").
package cursor

import (
	"sort"
	"time"
)

// Entry is anything with a timestamp and a sha/rev identifier that can be
// ordered and deduplicated against a cursor.
type Entry struct {
	TS  time.Time
	Key string // sha for git/gitlab, decimal rev string for svn
}

// Less orders entries by (ts, key) ascending, ties broken on key.
func Less(a, b Entry) bool {
	if !a.TS.Equal(b.TS) {
		return a.TS.Before(b.TS)
	}
	return a.Key < b.Key
}

// SortEntries sorts a slice of Entry by (ts, key) ascending, in place, and
// is stable so equal-key inputs never reorder relative to each other.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// FilterAfterCursor returns the subset of entries strictly after
// (cursorTS, cursorKey) in (ts, key) lexicographic order, sorted
// ascending. A zero cursorTS means "no cursor yet" (first sync): every
// entry passes. When only cursorKey is set (zero cursorTS), only an exact
// key match is filtered — matching the "no_cursor_ts_only_sha_match"
// behavior.
func FilterAfterCursor(entries []Entry, cursorTS time.Time, cursorKey string) []Entry {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	SortEntries(sorted)

	out := sorted[:0:0]
	for _, e := range sorted {
		if cursorTS.IsZero() {
			if cursorKey != "" && e.Key == cursorKey {
				continue
			}
			out = append(out, e)
			continue
		}

		switch {
		case e.TS.After(cursorTS):
			out = append(out, e)
		case e.TS.Equal(cursorTS):
			if e.Key > cursorKey {
				out = append(out, e)
			}
		default:
			// e.TS before cursorTS: skip.
		}
	}
	return out
}

// ShouldAdvance reports whether (newTS, newKey) is strictly greater than
// (lastTS, lastKey) in (ts, key) lexicographic order. A zero lastTS (first
// sync, or a stored cursor with no previous key) always advances.
func ShouldAdvance(newTS time.Time, newKey string, lastTS time.Time, lastKey string) bool {
	if lastTS.IsZero() {
		return true
	}
	if newTS.After(lastTS) {
		return true
	}
	if newTS.Before(lastTS) {
		return false
	}
	return newKey > lastKey
}

// ParseTimestamp parses an RFC3339 timestamp, treating "Z" and "+00:00"
// suffixes as equivalent (both parse to the same UTC instant via the
// standard library's RFC3339 parser, so no special-casing is needed beyond
// using time.Parse consistently everywhere a cursor timestamp is read).
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// ShouldAdvanceStrings is the string-timestamp convenience form used by
// handlers that only have RFC3339 text on hand (e.g. straight off a
// protocol client response), mirroring should_advance_gitlab_commit_cursor.
// Unparsable/empty timestamps are treated as "no watermark yet".
func ShouldAdvanceStrings(newTS, newKey, lastTS, lastKey string) bool {
	var newT, lastT time.Time
	if newTS != "" {
		if t, err := ParseTimestamp(newTS); err == nil {
			newT = t
		}
	}
	if lastTS != "" {
		if t, err := ParseTimestamp(lastTS); err == nil {
			lastT = t
		}
	}
	return ShouldAdvance(newT, newKey, lastT, lastKey)
}
