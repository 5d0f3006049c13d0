// Package trigger computes next-fire times for job schedules.
//
// A schedule is either a 5-field cron expression or a fixed interval. Both
// compile to a Schedule whose Next is pure: the same input time always gives
// the same answer, and the answer is always strictly after the input.
package trigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/teranos/avscheduler/errors"
)

// Kind describes which variant a Spec holds.
type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

// Schedule type names as written in job definitions
const (
	TypeCron     = "cron"
	TypeInterval = "interval"
)

// Spec is the tagged union Cron(expression) | Interval(seconds).
type Spec struct {
	Kind     Kind
	Expr     string        // KindCron
	Interval time.Duration // KindInterval
}

// Cron returns a cron Spec.
func Cron(expr string) Spec {
	return Spec{Kind: KindCron, Expr: strings.TrimSpace(expr)}
}

// Every returns an interval Spec of the given number of seconds.
func Every(seconds int) Spec {
	return Spec{Kind: KindInterval, Interval: time.Duration(seconds) * time.Second}
}

func (s Spec) String() string {
	if s.Kind == KindInterval {
		return fmt.Sprintf("every %s", s.Interval)
	}
	return s.Expr
}

// ParseSpec builds a Spec from the fields of a job definition.
// scheduleType defaults to "cron" when empty.
func ParseSpec(scheduleType, schedule string, intervalSeconds int) (Spec, error) {
	switch strings.ToLower(strings.TrimSpace(scheduleType)) {
	case "", TypeCron:
		if strings.TrimSpace(schedule) == "" {
			return Spec{}, errors.Wrap(errors.ErrInvalidSchedule, "cron schedule requires a schedule expression")
		}
		return Cron(schedule), nil
	case TypeInterval:
		if intervalSeconds <= 0 {
			return Spec{}, errors.Wrapf(errors.ErrInvalidSchedule,
				"interval schedule requires interval_seconds > 0, got %d", intervalSeconds)
		}
		return Every(intervalSeconds), nil
	default:
		return Spec{}, errors.Wrapf(errors.ErrInvalidSchedule,
			"unknown schedule_type %q (use %q or %q)", scheduleType, TypeCron, TypeInterval)
	}
}

// Schedule computes fire times. Next returns the earliest fire time strictly after `after`.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Compile validates spec and returns its Schedule.
// Errors wrap errors.ErrInvalidSchedule.
func Compile(spec Spec) (Schedule, error) {
	switch spec.Kind {
	case KindCron:
		return ParseCron(spec.Expr)
	case KindInterval:
		if spec.Interval <= 0 {
			return nil, errors.Wrapf(errors.ErrInvalidSchedule, "interval must be positive, got %s", spec.Interval)
		}
		return IntervalSchedule{Every: spec.Interval}, nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidSchedule, "unknown schedule kind %d", spec.Kind)
	}
}

// Next compiles spec and returns its next fire time after `after`.
func Next(spec Spec, after time.Time) (time.Time, error) {
	s, err := Compile(spec)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(after), nil
}

// IntervalSchedule fires every Every, relative to the reference it is given.
type IntervalSchedule struct {
	Every time.Duration
}

// Next returns after + Every.
func (s IntervalSchedule) Next(after time.Time) time.Time {
	return after.Add(s.Every)
}
