package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts.
const (
	VerbosityDefault = 0 // No flags: info and above
	VerbosityDebug   = 1 // -v: + debug (tick details, skipped migrations)
	VerbosityTrace   = 2 // -vv: + captured job output in logs
)

// VerbosityToLevel maps verbosity flags (-v, -vv) to zap log levels.
//
// The daemon is meant to be read by operators, so the default already shows
// info-level lifecycle events (job started, job finished, condition skipped).
func VerbosityToLevel(verbosity int) zapcore.Level {
	if verbosity <= VerbosityDefault {
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

// ShouldLogTrace returns true for verbosity >= 2 (-vv)
func ShouldLogTrace(verbosity int) bool {
	return verbosity >= VerbosityTrace
}
