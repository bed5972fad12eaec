package queue

import (
	"fmt"
)

// validWindowTypes, validModes, and validDiffModes are the closed enums the
// v2 job payload schema constrains when the field is present, per spec
// §4.4. None of these fields are required: an empty payload, a
// version-only payload, and the canonical incremental payload (which
// carries no window_type at all) are all valid v2 payloads.
var (
	validWindowTypes = map[string]struct{}{"time": {}, "rev": {}, "revision": {}}
	validModes       = map[string]struct{}{"incremental": {}, "backfill": {}, "probe": {}}
	validDiffModes   = map[string]struct{}{"always": {}, "best_effort": {}, "minimal": {}, "none": {}}
)

// ValidatePayload checks a v2 job payload against the closed enums named in
// spec §4.4. Every field is optional and is only enum-checked when present;
// additionalProperties is true, so unknown fields are always allowed. The
// since/start_rev requirements only fire when window_type is explicitly set
// to the window type they support.
func ValidatePayload(payload map[string]any) error {
	if v, present := payload["version"]; present {
		if s, ok := v.(string); !ok || s != "v2" {
			return fmt.Errorf("payload: version must be \"v2\", got %v", v)
		}
	}

	windowType, _ := payload["window_type"].(string)
	if windowType != "" {
		if _, ok := validWindowTypes[windowType]; !ok {
			return fmt.Errorf("payload: window_type must be one of time|rev|revision, got %q", windowType)
		}
	}

	switch windowType {
	case "time":
		if _, ok := payload["since"]; !ok {
			return fmt.Errorf("payload: window_type=time requires since")
		}
	case "rev", "revision":
		if _, ok := payload["start_rev"]; !ok {
			return fmt.Errorf("payload: window_type=%s requires start_rev", windowType)
		}
	}

	if m, present := payload["mode"]; present {
		s, ok := m.(string)
		if !ok {
			return fmt.Errorf("payload: mode must be a string")
		}
		if _, ok := validModes[s]; !ok {
			return fmt.Errorf("payload: mode must be one of incremental|backfill|probe, got %q", s)
		}
	}

	if diffMode, present := payload["diff_mode"]; present {
		dm, ok := diffMode.(string)
		if !ok {
			return fmt.Errorf("payload: diff_mode must be a string")
		}
		if _, ok := validDiffModes[dm]; !ok {
			return fmt.Errorf("payload: diff_mode must be one of always|best_effort|minimal|none, got %q", dm)
		}
	}

	return nil
}
