package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	FieldRequestID  = "request_id"
	FieldRunID      = "run_id"
	FieldSubjectID  = "subject_id"
	FieldArtifactID = "artifact_id"
	FieldStep       = "step"
	FieldQaRunID    = "qa_run_id"
	FieldCheckCode  = "check_code"
	FieldComponent  = "component"
)

// Metric fields, used for aggregation and alerting.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldScore      = "score"
	FieldSize       = "size"
)
