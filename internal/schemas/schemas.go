// Package schemas embeds the JSON Schema contract files spec §6 requires
// to ship with the binary: scm_sync_result_v2, scm_sync_job_payload_v2,
// audit_event_v1, and object_store_audit_event_v1. Validation itself
// stays hand-rolled in Go (pkg/scmsync/queue.ValidatePayload,
// pkg/scmsync/result.SyncResult.Validate) rather than driven off these
// documents at runtime; they exist so an operator or a collaborating
// service can diff the wire contract without reading Go source.
package schemas

import _ "embed"

//go:embed scm_sync_result_v2.schema.json
var SyncResultV2 []byte

//go:embed scm_sync_job_payload_v2.schema.json
var SyncJobPayloadV2 []byte

//go:embed audit_event_v1.schema.json
var AuditEventV1 []byte

//go:embed object_store_audit_event_v1.schema.json
var ObjectStoreAuditEventV1 []byte

// ByName returns the named schema's raw JSON bytes, or ok=false if no
// such schema is shipped.
func ByName(name string) (data []byte, ok bool) {
	switch name {
	case "scm_sync_result_v2":
		return SyncResultV2, true
	case "scm_sync_job_payload_v2":
		return SyncJobPayloadV2, true
	case "audit_event_v1":
		return AuditEventV1, true
	case "object_store_audit_event_v1":
		return ObjectStoreAuditEventV1, true
	default:
		return nil, false
	}
}
