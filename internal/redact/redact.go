// Package redact scrubs credentials out of strings before they reach an
// error field, a last_error column, a meta_json blob, or a log line, per
// spec §7: "A shared redaction function rewrites GitLab PATs (glpat-*,
// glptt-*), Bearer …, Authorization/PRIVATE-TOKEN header values,
// password=…/token=… URL params, and user:password@host URLs."
package redact

import "regexp"

var (
	gitlabTokenRe = regexp.MustCompile(`\b(glpat|glptt)-[A-Za-z0-9_-]+\b`)
	bearerRe      = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+/=-]+`)
	authHeaderRe  = regexp.MustCompile(`(?i)\b(Authorization|PRIVATE-TOKEN):\s*(?:Bearer\s+)?\S+`)
	queryCredRe   = regexp.MustCompile(`(?i)\b(password|token)=[^&\s]+`)
	urlUserinfoRe = regexp.MustCompile(`://([^/@:\s]+):([^/@\s]+)@`)
)

// String redacts every recognized credential pattern in s. A nil/empty
// input returns "". The function is idempotent: String(String(s)) == String(s).
func String(s string) string {
	if s == "" {
		return ""
	}

	out := gitlabTokenRe.ReplaceAllString(s, "[GITLAB_TOKEN]")
	out = authHeaderRe.ReplaceAllStringFunc(out, func(m string) string {
		parts := authHeaderRe.FindStringSubmatch(m)
		return parts[1] + ": [REDACTED]"
	})
	out = bearerRe.ReplaceAllString(out, "Bearer [TOKEN]")
	out = queryCredRe.ReplaceAllStringFunc(out, func(m string) string {
		parts := queryCredRe.FindStringSubmatch(m)
		return parts[1] + "=[REDACTED]"
	})
	out = urlUserinfoRe.ReplaceAllString(out, "://[REDACTED]@")

	return out
}

// Map redacts every string value in a shallow map, used for meta_json blobs
// (e.g. RateLimitBucket.meta_json, SyncJob.payload_json) before persistence.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = String(s)
		} else {
			out[k] = v
		}
	}
	return out
}

// Headers redacts sensitive HTTP header values by name, returning a new map.
func Headers(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		switch {
		case equalFold(k, "Authorization"), equalFold(k, "PRIVATE-TOKEN"), equalFold(k, "Cookie"):
			out[k] = "[REDACTED]"
		default:
			out[k] = String(v)
		}
	}
	return out
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
