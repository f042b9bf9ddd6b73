package logger

import "go.uber.org/zap"

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings.
const (
	// Identity
	FieldTaskID     = "task_id"
	FieldJobID      = "job_id"
	FieldParentID   = "parent_id"
	FieldInstanceID = "instance_id"
	FieldScript     = "script"

	// Components
	FieldComponent = "component"

	// Scheduling
	FieldStatus         = "status"
	FieldSlots          = "slots"
	FieldSlotsAvailable = "slots_available"
	FieldSlotsTotal     = "slots_total"
	FieldExitCode       = "exit_code"
	FieldTick           = "tick"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldElapsedMS  = "elapsed_ms"
	FieldStartAt    = "start_at"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount = "count"

	// Files and paths
	FieldPath = "path"

	FieldSymbol = "symbol" // segment symbol (꩜, ✿, ❀, ⊔)
)

// TaskLogger returns a child logger carrying task and job identity.
func TaskLogger(parent *zap.SugaredLogger, taskID, jobID string) *zap.SugaredLogger {
	return parent.With(FieldTaskID, taskID, FieldJobID, jobID)
}
