package queue

import "testing"

func TestValidatePayloadEmptyPasses(t *testing.T) {
	if err := ValidatePayload(map[string]any{}); err != nil {
		t.Fatalf("unexpected error for empty payload: %v", err)
	}
}

func TestValidatePayloadMinimalVersionOnlyPasses(t *testing.T) {
	if err := ValidatePayload(map[string]any{"version": "v2"}); err != nil {
		t.Fatalf("unexpected error for version-only payload: %v", err)
	}
}

func TestValidatePayloadValidIncrementalWithoutWindowTypePasses(t *testing.T) {
	payload := map[string]any{
		"version":          "v2",
		"gitlab_instance":  "gitlab.example.com",
		"mode":             "incremental",
		"diff_mode":        "best_effort",
		"strict":           false,
		"update_watermark": true,
	}
	if err := ValidatePayload(payload); err != nil {
		t.Fatalf("unexpected error for canonical incremental payload: %v", err)
	}
}

func TestValidatePayloadRejectsWrongVersion(t *testing.T) {
	err := ValidatePayload(map[string]any{"version": "v1"})
	if err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestValidatePayloadAcceptsRevisionWindowType(t *testing.T) {
	payload := map[string]any{"version": "v2", "window_type": "revision", "start_rev": 100}
	if err := ValidatePayload(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePayloadRejectsUnknownWindowType(t *testing.T) {
	err := ValidatePayload(map[string]any{"window_type": "invalid_type"})
	if err == nil {
		t.Fatal("expected error for invalid window_type")
	}
}

func TestValidatePayloadTimeWindowRequiresSince(t *testing.T) {
	payload := map[string]any{"version": "v2", "window_type": "time", "mode": "incremental"}
	if err := ValidatePayload(payload); err == nil {
		t.Fatal("expected error for missing since")
	}
}

func TestValidatePayloadRevWindowRequiresStartRev(t *testing.T) {
	payload := map[string]any{"version": "v2", "window_type": "rev", "mode": "incremental"}
	if err := ValidatePayload(payload); err == nil {
		t.Fatal("expected error for missing start_rev")
	}
}

func TestValidatePayloadRejectsUnknownMode(t *testing.T) {
	err := ValidatePayload(map[string]any{"mode": "invalid_mode"})
	if err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestValidatePayloadRejectsUnknownDiffMode(t *testing.T) {
	payload := map[string]any{
		"version": "v2", "window_type": "time", "since": "2024-01-01T00:00:00Z",
		"mode": "incremental", "diff_mode": "sometimes",
	}
	if err := ValidatePayload(payload); err == nil {
		t.Fatal("expected error for invalid diff_mode")
	}
}

func TestValidatePayloadAllowsUnknownFields(t *testing.T) {
	payload := map[string]any{
		"version": "v2", "window_type": "time", "since": "2024-01-01T00:00:00Z",
		"mode": "incremental", "gitlab_instance": "gitlab.example.com", "tenant_id": "acme",
		"future_field": 42,
	}
	if err := ValidatePayload(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePayloadValidRevWindow(t *testing.T) {
	payload := map[string]any{
		"version": "v2", "window_type": "rev", "start_rev": 100, "mode": "incremental",
		"diff_mode": "best_effort",
	}
	if err := ValidatePayload(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
