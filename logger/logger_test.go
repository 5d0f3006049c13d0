package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		verbosity  int
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
		{name: "Console debug", jsonOutput: false, verbosity: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			err := Initialize(tt.jsonOutput, tt.verbosity)
			require.NoError(t, err)
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Cleanup()
			Logger = zap.NewNop().Sugar()
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(5))
	assert.False(t, ShouldLogTrace(1))
	assert.True(t, ShouldLogTrace(2))
}

func TestNilLoggerIsSafe(t *testing.T) {
	saved := Logger
	defer func() { Logger = saved }()

	Logger = nil
	assert.NotPanics(t, func() {
		Infow("hello", FieldJobID, "backup")
		Warnw("hello")
		Errorw("hello")
		Debugw("hello")
		PulseInfow("tick")
		PulseCloseInfow("bye")
		Cleanup()
	})
}

func TestJobLogger(t *testing.T) {
	base := zaptest.NewLogger(t).Sugar()
	assert.NotNil(t, JobLogger(base, "backup", ""))
	assert.NotNil(t, JobLogger(base, "backup", "run-1"))
	assert.NotNil(t, AddPulseSymbol(base))
	assert.NotNil(t, AddDBSymbol(base))
}

func TestMinimalEncoder(t *testing.T) {
	enc := newMinimalEncoder()
	enc.color = false

	withCtx := enc.Clone().(*minimalEncoder)
	zap.String(FieldSymbol, "꩜").AddTo(withCtx)
	zap.String(FieldJobID, "backup").AddTo(withCtx)

	ent := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Date(2024, 3, 1, 13, 4, 35, 0, time.UTC),
		LoggerName: "pulse.schedule",
		Message:    "Job finished",
	}
	buf, err := withCtx.EncodeEntry(ent, []zapcore.Field{
		zap.Int(FieldExitCode, 0),
		zap.String(FieldReason, "two words"),
	})
	require.NoError(t, err)

	assert.Equal(t,
		"13:04:35  ꩜ pulse.schedule  Job finished  job_id=backup exit_code=0 reason=\"two words\"\n",
		buf.String())
}

func TestMinimalEncoderLevels(t *testing.T) {
	enc := newMinimalEncoder()
	enc.color = false

	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:   zapcore.WarnLevel,
		Time:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Message: "Condition invalid",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "00:00:00  WARN  Condition invalid\n", buf.String())
}
