package store

import "time"

// parseRevisionTimestamp parses the RFC3339 timestamp svn log emits as
// text; a parse failure is itself a persistence error, not something to
// silently coerce to the zero time.
func parseRevisionTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
