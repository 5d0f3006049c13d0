// Package condition evaluates the gating expressions attached to jobs.
//
// An expression is one or more terms joined by "and":
//
//	backup.last_run_successful
//	backup.finished_within(2h) and backup.last_run_successful
//	ingest.v2.finished_within(30m) and backup.last_run_successful
//
// Each term names a job and a predicate over that job's most recent
// execution record. Any term that is false, or whose job has never run,
// makes the whole expression false. Expressions that cannot be parsed fail
// closed: Evaluate returns false together with an ErrInvalidCondition error.
package condition

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/avscheduler/errors"
)

// Predicate is a test over a job's latest execution record.
type Predicate int

const (
	LastRunSuccessful Predicate = iota
	FinishedWithin
)

const (
	keywordLastRunSuccessful = "last_run_successful"
	keywordFinishedWithin    = "finished_within"
)

func (p Predicate) String() string {
	switch p {
	case LastRunSuccessful:
		return keywordLastRunSuccessful
	case FinishedWithin:
		return keywordFinishedWithin
	default:
		return "unknown"
	}
}

// Term is one "<job_id>.<predicate>" clause.
type Term struct {
	JobID     string
	Predicate Predicate
	Within    time.Duration // FinishedWithin only
}

func (t Term) String() string {
	if t.Predicate == FinishedWithin {
		return t.JobID + "." + keywordFinishedWithin + "(" + formatWindow(t.Within) + ")"
	}
	return t.JobID + "." + t.Predicate.String()
}

// Expression is a parsed conjunction of terms. The zero Expression has no
// terms and always allows the job to run.
type Expression struct {
	Source string
	Terms  []Term
}

// Empty reports whether the expression places no constraint.
func (e Expression) Empty() bool {
	return len(e.Terms) == 0
}

// Jobs returns the distinct job IDs referenced, in order of first mention.
func (e Expression) Jobs() []string {
	seen := make(map[string]bool, len(e.Terms))
	var ids []string
	for _, t := range e.Terms {
		if !seen[t.JobID] {
			seen[t.JobID] = true
			ids = append(ids, t.JobID)
		}
	}
	return ids
}

var (
	andSplit    = regexp.MustCompile(`(?i)\s+and\s+`)
	windowRegex = regexp.MustCompile(`^(\d+)([hms])$`)
)

// Parse compiles an expression. Errors wrap errors.ErrInvalidCondition.
func Parse(expr string) (Expression, error) {
	src := strings.TrimSpace(expr)
	if src == "" {
		return Expression{}, nil
	}

	out := Expression{Source: src}
	for _, raw := range andSplit.Split(src, -1) {
		term, err := parseTerm(strings.TrimSpace(raw))
		if err != nil {
			return Expression{}, errors.Wrapf(err, "in condition %q", src)
		}
		out.Terms = append(out.Terms, term)
	}
	return out, nil
}

func parseTerm(raw string) (Term, error) {
	if raw == "" {
		return Term{}, errors.Wrap(errors.ErrInvalidCondition, "empty term")
	}
	if strings.ContainsAny(raw, " \t") {
		return Term{}, errors.Wrapf(errors.ErrInvalidCondition, "unexpected whitespace in term %q", raw)
	}

	// The job ID may itself contain dots; the predicate follows the last dot
	// before any argument list.
	head := raw
	if i := strings.IndexByte(raw, '('); i >= 0 {
		head = raw[:i]
	}
	dot := strings.LastIndexByte(head, '.')
	if dot <= 0 || dot == len(raw)-1 {
		return Term{}, errors.Wrapf(errors.ErrInvalidCondition,
			"term %q must look like <job_id>.<predicate>", raw)
	}

	jobID, pred := raw[:dot], raw[dot+1:]

	switch {
	case pred == keywordLastRunSuccessful:
		return Term{JobID: jobID, Predicate: LastRunSuccessful}, nil

	case strings.HasPrefix(pred, keywordFinishedWithin+"(") && strings.HasSuffix(pred, ")"):
		arg := pred[len(keywordFinishedWithin)+1 : len(pred)-1]
		d, err := ParseWindow(arg)
		if err != nil {
			return Term{}, err
		}
		return Term{JobID: jobID, Predicate: FinishedWithin, Within: d}, nil

	default:
		return Term{}, errors.Wrapf(errors.ErrInvalidCondition, "unknown predicate %q", pred)
	}
}

// ParseWindow parses the finished_within argument: an integer followed by
// h, m or s. Any other suffix is an error.
func ParseWindow(s string) (time.Duration, error) {
	m := windowRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, errors.Wrapf(errors.ErrInvalidCondition,
			"invalid duration %q (use an integer followed by h, m or s, e.g. 2h)", s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrInvalidCondition, "invalid duration %q", s)
	}

	unit := map[string]time.Duration{"h": time.Hour, "m": time.Minute, "s": time.Second}[m[2]]
	if n > math.MaxInt64/int64(unit) {
		return 0, errors.Wrapf(errors.ErrInvalidCondition, "duration %q is out of range", s)
	}
	return time.Duration(n) * unit, nil
}

func formatWindow(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	case d%time.Minute == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	default:
		return strconv.FormatInt(int64(d/time.Second), 10) + "s"
	}
}
