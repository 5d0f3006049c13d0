package condition

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/logger"
	"github.com/teranos/avscheduler/pulse/logstore"
)

// HistoryReader is the slice of the execution log store the evaluator needs.
type HistoryReader interface {
	Latest(ctx context.Context, jobID string) (*logstore.Record, error)
}

// Evaluator answers "may this job run now?" from execution history.
// It is read-only and safe for concurrent use.
type Evaluator struct {
	history HistoryReader
	now     func() time.Time
	log     *zap.SugaredLogger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source used by finished_within.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithLogger sets the logger used for fail-closed warnings.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Evaluator) { e.log = l }
}

// NewEvaluator creates an evaluator over history.
func NewEvaluator(history HistoryReader, opts ...Option) *Evaluator {
	e := &Evaluator{
		history: history,
		now:     time.Now,
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate parses and evaluates expr on behalf of subject (the gated job).
// Malformed expressions fail closed: false plus an ErrInvalidCondition error.
func (e *Evaluator) Evaluate(ctx context.Context, subject, expr string) (bool, error) {
	parsed, err := Parse(expr)
	if err != nil {
		e.log.Warnw("Condition invalid, job will not run",
			logger.FieldJobID, subject,
			logger.FieldCondition, expr,
			logger.FieldError, err,
		)
		return false, err
	}
	return e.EvaluateExpression(ctx, subject, parsed)
}

// EvaluateExpression evaluates an already parsed expression.
func (e *Evaluator) EvaluateExpression(ctx context.Context, subject string, expr Expression) (bool, error) {
	if expr.Empty() {
		return true, nil
	}

	now := e.now()
	latest := make(map[string]*logstore.Record, len(expr.Terms))

	for _, term := range expr.Terms {
		rec, ok := latest[term.JobID]
		if !ok {
			var err error
			rec, err = e.history.Latest(ctx, term.JobID)
			if err != nil {
				return false, errors.Wrapf(err, "failed to evaluate condition for job %s", subject)
			}
			latest[term.JobID] = rec
		}

		if rec == nil {
			e.log.Debugw("Condition unmet: no history",
				logger.FieldJobID, subject,
				logger.FieldCondition, term.String(),
			)
			return false, nil
		}

		if !termHolds(term, rec, now) {
			e.log.Debugw("Condition unmet",
				logger.FieldJobID, subject,
				logger.FieldCondition, term.String(),
				"latest_exit_code", rec.ExitCode,
				"latest_timestamp", rec.Timestamp,
			)
			return false, nil
		}
	}

	return true, nil
}

func termHolds(term Term, rec *logstore.Record, now time.Time) bool {
	switch term.Predicate {
	case LastRunSuccessful:
		return rec.Succeeded()
	case FinishedWithin:
		return !rec.Timestamp.Before(now.Add(-term.Within))
	default:
		return false
	}
}
