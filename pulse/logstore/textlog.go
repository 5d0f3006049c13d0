package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/teranos/avscheduler/errors"
)

// TextLog mirrors each execution as a human-readable block in an append-only file:
//
//	[2024-03-01 13:04:35.120000] Job backup: Exit Code=0, Execution Time=1.204s
//	STDOUT:
//	...
//	STDERR:
//	...
//
// The database stays the source of truth; the text log is for tail -f.
type TextLog struct {
	path string
	mu   sync.Mutex
}

// NewTextLog returns a mirror that appends to path, creating parent dirs lazily.
// A nil *TextLog is valid and discards everything.
func NewTextLog(path string) *TextLog {
	if path == "" {
		return nil
	}
	return &TextLog{path: path}
}

// Path returns the file the mirror appends to.
func (l *TextLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Write appends one execution block. stdout and stderr sections are omitted when empty.
func (l *TextLog) Write(rec Record, stdout, stderr []byte) error {
	if l == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Job %s: Exit Code=%d, Execution Time=%.3fs\n",
		formatTimestamp(rec.Timestamp), rec.JobID, rec.ExitCode, rec.Duration)
	if len(stdout) > 0 {
		fmt.Fprintf(&b, "STDOUT:\n%s\n", strings.TrimRight(string(stdout), "\n"))
	}
	if len(stderr) > 0 {
		fmt.Fprintf(&b, "STDERR:\n%s\n", strings.TrimRight(string(stderr), "\n"))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create log directory for %s", l.path)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open text log %s", l.path)
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		return errors.Wrapf(err, "failed to write text log %s", l.path)
	}
	return nil
}
