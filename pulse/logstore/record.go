package logstore

import (
	"time"
)

// ExitCodeNotStarted marks an attempt whose process never started
// (missing interpreter binary, permission denied, unreadable env file).
const ExitCodeNotStarted = -1

// TimestampLayout is the on-disk form of Record.Timestamp. It is fixed-width
// UTC so that lexical order in SQLite equals chronological order.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Record is one completed execution attempt. Records are immutable once stored.
type Record struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	ExitCode  int       `json:"exit_code"`
	Duration  float64   `json:"execution_time"` // seconds, >= 0
	Timestamp time.Time `json:"timestamp"`      // execution start, UTC
}

// Succeeded reports whether the run exited 0.
func (r Record) Succeeded() bool {
	return r.ExitCode == 0
}

// DurationValue returns Duration as a time.Duration.
func (r Record) DurationValue() time.Duration {
	return time.Duration(r.Duration * float64(time.Second))
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}
