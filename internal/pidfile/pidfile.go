// Package pidfile tracks the running scheduler daemon through a PID file.
package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/teranos/avscheduler/errors"
)

// ErrNotRunning indicates no live process owns the PID file
var ErrNotRunning = errors.New("scheduler is not running")

// Write records pid in path. It refuses when the file names a live process.
func Write(path string, pid int) error {
	if existing, err := Read(path); err == nil && IsRunning(existing) {
		return errors.WithHintf(
			errors.Newf("scheduler already running with pid %d", existing),
			"stop it with 'avsched stop' or remove %s if it is stale", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create pid file directory for %s", path)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return errors.Wrapf(err, "failed to write pid file %s", path)
	}
	return nil
}

// Read returns the pid stored in path
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Wrapf(ErrNotRunning, "no pid file at %s", path)
		}
		return 0, errors.Wrapf(err, "failed to read pid file %s", path)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, errors.Newf("pid file %s is corrupt: %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Remove deletes path if it still names pid. A missing file is not an error.
func Remove(path string, pid int) error {
	current, err := Read(path)
	if err != nil {
		if errors.Is(err, ErrNotRunning) {
			return nil
		}
		return err
	}
	if current != pid {
		// Another daemon took over the file
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove pid file %s", path)
	}
	return nil
}

// IsRunning reports whether pid names a live process
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

// Running reads path and returns the pid when its process is alive.
func Running(path string) (int, error) {
	pid, err := Read(path)
	if err != nil {
		return 0, err
	}
	if !IsRunning(pid) {
		return pid, errors.Wrapf(ErrNotRunning, "pid %d from %s is not alive", pid, path)
	}
	return pid, nil
}

// Signal sends sig to the daemon named by path
func Signal(path string, sig syscall.Signal) (int, error) {
	pid, err := Running(path)
	if err != nil {
		return 0, err
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return pid, errors.Wrapf(err, "failed to find process %d", pid)
	}
	if err := proc.SendSignal(sig); err != nil {
		return pid, errors.Wrapf(err, "failed to signal process %d", pid)
	}
	return pid, nil
}

// WaitExit polls until pid is gone or timeout elapses
func WaitExit(pid int, timeout, poll time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsRunning(pid) {
			return true
		}
		time.Sleep(poll)
	}
	return !IsRunning(pid)
}
