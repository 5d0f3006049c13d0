package pidfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/avscheduler/errors"
)

// deadPID is far above any default pid_max
const deadPID = 1 << 30

func TestWriteReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "avscheduler.pid")

	require.NoError(t, Write(path, deadPID))
	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, deadPID, pid)

	// Stale file: the process is gone, so Write may take over
	require.NoError(t, Write(path, os.Getpid()))

	// Live process: refuse
	err = Write(path, 12345)
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))

	got, err := Running(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), got)

	// Remove only when the file still names us
	require.NoError(t, Remove(path, 999))
	assert.FileExists(t, path)
	require.NoError(t, Remove(path, os.Getpid()))
	assert.NoFileExists(t, path)

	assert.NoError(t, Remove(path, os.Getpid()), "missing file is fine")
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Read(filepath.Join(dir, "missing.pid"))
	assert.True(t, errors.Is(err, ErrNotRunning))

	corrupt := filepath.Join(dir, "corrupt.pid")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a pid"), 0644))
	_, err = Read(corrupt)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotRunning))
}

func TestRunning_StalePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avscheduler.pid")
	require.NoError(t, os.WriteFile(path, []byte("1073741824\n"), 0644))

	pid, err := Running(path)
	assert.Equal(t, deadPID, pid)
	assert.True(t, errors.Is(err, ErrNotRunning))
}

func TestIsRunning(t *testing.T) {
	assert.True(t, IsRunning(os.Getpid()))
	assert.False(t, IsRunning(0))
	assert.False(t, IsRunning(-1))
	assert.False(t, IsRunning(deadPID))
}

func TestStats_Self(t *testing.T) {
	stats, err := Stats(os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), stats.PID)
	assert.Positive(t, stats.RSSMB)
	assert.False(t, stats.StartedAt.IsZero())
}
