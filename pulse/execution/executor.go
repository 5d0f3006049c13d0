// Package execution runs a job's command as a child process and reports the outcome.
package execution

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/logger"
	"github.com/teranos/avscheduler/pulse/logstore"
)

// Job is everything needed to run one attempt.
type Job struct {
	ID          string
	Interpreter string // executable, optionally with leading args ("/usr/bin/env python3")
	Command     string // passed to the interpreter as: -c <Command>
	EnvFile     string // optional KEY=VALUE overlay
	Dir         string // working directory; empty inherits the daemon's
}

// Result is the outcome of one attempt. Record is always populated, even
// when the process never started.
type Result struct {
	RunID  string
	Record logstore.Record
	Stdout []byte
	Stderr []byte
	Err    error // spawn or env-file failure; nil for any exit code
}

// Runner executes jobs. The scheduler depends on this interface so tests can
// substitute a fake.
type Runner interface {
	Run(ctx context.Context, job Job) Result
}

// Executor runs jobs as subprocesses.
type Executor struct {
	log     *zap.SugaredLogger
	now     func() time.Time
	environ func() []string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock overrides the source of record timestamps.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// WithEnviron overrides the base environment (os.Environ by default).
func WithEnviron(environ func() []string) ExecutorOption {
	return func(e *Executor) { e.environ = environ }
}

// NewExecutor creates an executor.
func NewExecutor(log *zap.SugaredLogger, opts ...ExecutorOption) *Executor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	e := &Executor{
		log:     logger.AddPulseSymbol(log),
		now:     time.Now,
		environ: os.Environ,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes job and blocks until the child exits.
//
// The child is deliberately detached from ctx cancellation: stopping the
// scheduler must not kill in-flight jobs. Failures to start are reported
// in Result.Err with Record.ExitCode set to logstore.ExitCodeNotStarted.
func (e *Executor) Run(ctx context.Context, job Job) Result {
	res := Result{
		RunID: uuid.New().String(),
		Record: logstore.Record{
			JobID:    job.ID,
			ExitCode: logstore.ExitCodeNotStarted,
		},
	}
	log := logger.JobLogger(e.log, job.ID, res.RunID)

	argv, err := interpreterArgv(job.Interpreter)
	if err != nil {
		res.Record.Timestamp = e.now().UTC()
		res.Err = err
		log.Warnw("Job not started", logger.FieldInterpreter, job.Interpreter, logger.FieldError, err)
		return res
	}

	env := e.environ()
	if job.EnvFile != "" {
		extra, err := LoadEnvFile(job.EnvFile)
		if err != nil {
			res.Record.Timestamp = e.now().UTC()
			res.Err = err
			log.Warnw("Job not started", logger.FieldPath, job.EnvFile, logger.FieldError, err)
			return res
		}
		if extra == nil {
			log.Debugw("Env file not found, using daemon environment", logger.FieldPath, job.EnvFile)
		}
		env = mergeEnv(env, extra)
	}

	args := append(argv[1:], "-c", job.Command)
	cmd := exec.CommandContext(context.WithoutCancel(ctx), argv[0], args...)
	cmd.Env = env
	cmd.Dir = job.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res.Record.Timestamp = e.now().UTC()
	started := time.Now()
	runErr := cmd.Run()
	res.Record.Duration = time.Since(started).Seconds()
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()

	res.Record.ExitCode, res.Err = exitCode(cmd, runErr)
	if res.Err != nil {
		res.Record.Duration = 0
		log.Warnw("Job not started",
			logger.FieldInterpreter, argv[0],
			logger.FieldError, res.Err,
		)
	}
	return res
}

func interpreterArgv(interpreter string) ([]string, error) {
	argv, err := shellquote.Split(interpreter)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInterpreterNotConfigured, "cannot parse interpreter %q: %v", interpreter, err)
	}
	if len(argv) == 0 {
		return nil, errors.Wrap(errors.ErrInterpreterNotConfigured, "empty interpreter")
	}
	return argv, nil
}

// exitCode maps the result of cmd.Run to a record exit code. A process killed
// by a signal reports 128+signal, as a shell would.
func exitCode(cmd *exec.Cmd, runErr error) (int, error) {
	if runErr == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	}

	// Never started: missing binary, permission denied, bad working dir
	return logstore.ExitCodeNotStarted, errors.WithHint(
		errors.Wrapf(runErr, "failed to start %s", cmd.Path),
		"check the interpreters table and that the binary is executable")
}
