package schedule

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teranos/avscheduler/db"
	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/logger"
	"github.com/teranos/avscheduler/pulse/execution"
	"github.com/teranos/avscheduler/pulse/logstore"
)

// dispatch runs one due job in the background if its condition holds and it
// is not already running. A skipped run is not retried before its next fire.
func (c *Core) dispatch(d dueRun) {
	id := d.entry.id

	if c.isRunning(id) {
		c.log.Infow("Job still running, skipping this fire", logger.FieldJobID, id)
		return
	}

	ok, err := c.evaluator.EvaluateExpression(c.ctx, id, d.entry.cond)
	if err != nil {
		c.log.Warnw("Condition could not be evaluated, skipping",
			logger.FieldJobID, id,
			logger.FieldCondition, d.entry.cond.Source,
			logger.FieldError, err,
		)
		return
	}
	if !ok {
		c.log.Infow("Condition not met, skipping",
			logger.FieldJobID, id,
			logger.FieldCondition, d.entry.cond.Source,
		)
		return
	}

	flag := c.runningFlag(id)
	if !flag.CompareAndSwap(false, true) {
		c.log.Infow("Job still running, skipping this fire", logger.FieldJobID, id)
		return
	}

	if !c.beginRun() {
		flag.Store(false)
		c.log.Debugw("Scheduler stopping, not starting run", logger.FieldJobID, id)
		return
	}
	go func() {
		defer c.runs.Done()
		// Runs outlive the loop context; only Shutdown's grace period bounds them
		c.execute(context.WithoutCancel(c.ctx), d.entry, flag)
	}()
}

// RunNow runs jobID immediately and waits for it. The condition and the
// overlap guard still apply.
func (c *Core) RunNow(ctx context.Context, jobID string) (logstore.Record, error) {
	if c.stopped.Load() {
		return logstore.Record{}, errors.ErrSchedulerStopped
	}

	entry, err := c.lookup(jobID)
	if err != nil {
		return logstore.Record{}, err
	}

	ok, err := c.evaluator.EvaluateExpression(ctx, jobID, entry.cond)
	if err != nil {
		return logstore.Record{}, err
	}
	if !ok {
		return logstore.Record{}, errors.WithHintf(
			errors.Wrapf(errors.ErrConditionNotMet, "%s: %s", jobID, entry.cond.Source),
			"check the history of %v with view-logs", entry.cond.Jobs())
	}

	flag := c.runningFlag(jobID)
	if !flag.CompareAndSwap(false, true) {
		return logstore.Record{}, errors.Wrapf(errors.ErrJobRunning, "%q", jobID)
	}

	if !c.beginRun() {
		flag.Store(false)
		return logstore.Record{}, errors.ErrSchedulerStopped
	}
	defer c.runs.Done()

	c.log.Infow("Running job on demand", logger.FieldJobID, jobID)
	return c.execute(ctx, entry, flag)
}

// execute runs the job, stores the record and then clears the running flag.
func (c *Core) execute(ctx context.Context, entry jobEntry, flag *atomic.Bool) (logstore.Record, error) {
	defer flag.Store(false)

	res := c.runner.Run(ctx, execution.Job{
		ID:          entry.id,
		Interpreter: entry.interpreter,
		Command:     entry.def.Command,
		EnvFile:     entry.def.EnvFile,
	})
	log := logger.JobLogger(c.log, entry.id, res.RunID)

	rec, err := c.store.Append(ctx, res.Record)
	if err != nil {
		logAppendFailure(log, res.Record, err)
		return res.Record, err
	}

	if err := c.textLog.Write(rec, res.Stdout, res.Stderr); err != nil {
		log.Warnw("Failed to write text log", logger.FieldPath, c.textLog.Path(), logger.FieldError, err)
	}

	fields := []interface{}{
		logger.FieldExitCode, rec.ExitCode,
		logger.FieldDurationMS, rec.DurationValue().Milliseconds(),
	}
	switch {
	case res.Err != nil:
		log.Warnw("Job failed to start", append(fields, logger.FieldError, res.Err)...)
	case rec.Succeeded():
		log.Infow("Job finished", fields...)
	default:
		log.Warnw("Job finished with non-zero exit", fields...)
	}

	if res.Err != nil {
		return rec, res.Err
	}
	return rec, nil
}

// logAppendFailure reports a run whose record was lost. The run is not
// repeated; the job runs again at its next fire.
func logAppendFailure(log *zap.SugaredLogger, rec logstore.Record, err error) {
	fields := []interface{}{
		logger.FieldExitCode, rec.ExitCode,
		logger.FieldError, err,
	}
	switch {
	case db.IsDatabaseClosed(err):
		log.Warnw("Execution log closed, record dropped; job runs again at its next fire", fields...)
	case db.IsBusy(err):
		log.Warnw("Execution log busy, record dropped; job runs again at its next fire", fields...)
	default:
		log.Errorw("Failed to record execution, job runs again at its next fire", fields...)
	}
}
