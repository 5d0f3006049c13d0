package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(New("original"), "wrapped: %d", 42)
	assert.Contains(t, wrapped.Error(), "wrapped: 42")
}

func TestWithHint(t *testing.T) {
	err := WithHint(New("spawn failed"), "is the interpreter on PATH?")
	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "is the interpreter on PATH?", hints[0])
}

func TestStackTrace(t *testing.T) {
	err := Wrap(New("disk gone"), "failed to append")
	assert.NotNil(t, GetStack(err))
}

func TestScheduleErrorsAreConfigErrors(t *testing.T) {
	assert.True(t, Is(ErrInvalidSchedule, ErrConfig))
	assert.True(t, Is(ErrInterpreterNotConfigured, ErrConfig))
	assert.False(t, Is(ErrInvalidCondition, ErrConfig))
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("backup", Wrap(ErrInvalidSchedule, "minute 61 out of range"))

	assert.Contains(t, err.Error(), `job "backup"`)
	assert.Contains(t, err.Error(), "minute 61 out of range")
	assert.True(t, Is(err, ErrInvalidSchedule))
	assert.True(t, IsConfigError(err))

	wrapped := Wrap(err, "reload")
	var ce *ConfigError
	require.True(t, As(wrapped, &ce))
	assert.Equal(t, "backup", ce.JobID)
}

func TestIsConfigError(t *testing.T) {
	assert.False(t, IsConfigError(nil))
	assert.False(t, IsConfigError(New("other")))
	assert.True(t, IsConfigError(Wrap(ErrInterpreterNotConfigured, "ruby")))
}

func TestNotFound(t *testing.T) {
	err := NewJobNotFoundError("nightly")
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), `"nightly"`)
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(ErrJobRunning))
}

func TestMark(t *testing.T) {
	err := Wrap(Mark(New("disk I/O error"), ErrLogStore), "failed to append")
	assert.True(t, Is(err, ErrLogStore))
	assert.Contains(t, err.Error(), "disk I/O error")
}
