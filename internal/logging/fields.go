package logging

// Standardized attribute keys. Components must use these constants so
// log consumers can filter on stable field names.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
	FieldSessionID = "session_id"
	FieldDevice    = "device"
	FieldFacing    = "facing"
	FieldStatus    = "status"
	FieldScanID    = "scan_id"
	FieldErrorKind = "error_kind"
)
