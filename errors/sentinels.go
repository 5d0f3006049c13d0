package errors

import "fmt"

// Sentinels for the scheduler. Wrap them to add context; check with Is.
var (
	// ErrConfig is the root of every configuration problem.
	ErrConfig = New("configuration error")

	// ErrInvalidSchedule indicates a cron expression or interval that cannot be compiled
	ErrInvalidSchedule = Wrap(ErrConfig, "invalid schedule")

	// ErrInterpreterNotConfigured indicates a job type with no entry in the interpreters table
	ErrInterpreterNotConfigured = Wrap(ErrConfig, "interpreter not configured")

	// ErrInvalidCondition indicates a condition expression the evaluator cannot parse
	ErrInvalidCondition = New("invalid condition")

	ErrJobNotFound      = New("job not found")
	ErrJobRunning       = New("job is already running")
	ErrConditionNotMet  = New("condition not met")
	ErrSchedulerStopped = New("scheduler stopped")

	// ErrLogStore indicates the execution log store could not be read or written
	ErrLogStore = New("execution log store error")
)

// ConfigError reports a job that was rejected while building the registry.
// The rest of the registry is unaffected.
type ConfigError struct {
	JobID string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("job %q: %v", e.JobID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err as a rejection of jobID.
func NewConfigError(jobID string, err error) *ConfigError {
	return &ConfigError{JobID: jobID, Err: err}
}

// IsConfigError reports whether err is or wraps a ConfigError or ErrConfig.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConfigError
	return As(err, &ce) || Is(err, ErrConfig)
}

// IsNotFoundError checks if an error is or wraps ErrJobNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrJobNotFound)
}

// NewJobNotFoundError creates a job-not-found error naming jobID
func NewJobNotFoundError(jobID string) error {
	return Wrapf(ErrJobNotFound, "%q", jobID)
}
