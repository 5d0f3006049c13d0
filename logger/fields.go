package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings.
const (
	// Identity
	FieldJobID   = "job_id"
	FieldRunID   = "run_id"
	FieldJobName = "job_name"

	// Components
	FieldComponent = "component"
	FieldSymbol    = "symbol" // ꩜, ✿, ❀, ⊔ ...

	// Scheduling
	FieldSchedule  = "schedule"
	FieldNextFire  = "next_fire"
	FieldCondition = "condition"
	FieldReason    = "reason"

	// Execution
	FieldInterpreter = "interpreter"
	FieldExitCode    = "exit_code"
	FieldDuration    = "duration"
	FieldDurationMS  = "duration_ms"
	FieldPID         = "pid"

	// Counts
	FieldCount = "count"

	// Files and network
	FieldPath    = "path"
	FieldAddress = "address"

	FieldError = "error"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
//	core := schedule.New(cfg, store, logger.ComponentLogger("pulse.schedule"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// JobLogger returns a child logger carrying job and run identity.
func JobLogger(parent *zap.SugaredLogger, jobID, runID string) *zap.SugaredLogger {
	if runID == "" {
		return parent.With(FieldJobID, jobID)
	}
	return parent.With(FieldJobID, jobID, FieldRunID, runID)
}
