package trigger

import (
	"strconv"
	"strings"
	"time"

	"github.com/teranos/avscheduler/errors"
)

// CronSchedule is a compiled 5-field cron expression:
//
//	minute hour day-of-month month day-of-week
//
// Each field accepts *, a value, a range a-b, a list a,b,c and a step */n,
// a-b/n or a/n. Months and weekdays also accept three-letter names. Weekday
// 7 is Sunday, same as 0.
//
// Day matching follows Vixie cron: when both day-of-month and day-of-week are
// restricted (neither field starts with '*'), a day matches if EITHER does.
// Otherwise both must match, which makes the starred field irrelevant.
type CronSchedule struct {
	expr string

	minute, hour, dom, month, dow uint64

	domRestricted, dowRestricted bool
}

type bounds struct {
	name     string
	min, max int
	names    map[string]int
}

var (
	minuteBounds = bounds{name: "minute", min: 0, max: 59}
	hourBounds   = bounds{name: "hour", min: 0, max: 23}
	domBounds    = bounds{name: "day-of-month", min: 1, max: 31}
	monthBounds  = bounds{name: "month", min: 1, max: 12, names: map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}}
	dowBounds = bounds{name: "day-of-week", min: 0, max: 7, names: map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}}
)

var macros = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

// searchHorizon bounds Next. Eight years covers every leap-year pattern,
// so an expression that matches nothing within it never matches.
const searchHorizon = 8 * 366 * 24 * time.Hour

// ParseCron compiles a 5-field cron expression.
// Errors wrap errors.ErrInvalidSchedule.
func ParseCron(expr string) (*CronSchedule, error) {
	src := strings.TrimSpace(expr)
	if m, ok := macros[strings.ToLower(src)]; ok {
		src = m
	}

	fields := strings.Fields(src)
	if len(fields) != 5 {
		return nil, errors.Wrapf(errors.ErrInvalidSchedule,
			"cron expression %q has %d fields, want 5 (minute hour day-of-month month day-of-week)",
			expr, len(fields))
	}

	s := &CronSchedule{expr: expr}
	var err error
	if s.minute, err = parseField(fields[0], minuteBounds); err != nil {
		return nil, err
	}
	if s.hour, err = parseField(fields[1], hourBounds); err != nil {
		return nil, err
	}
	if s.dom, err = parseField(fields[2], domBounds); err != nil {
		return nil, err
	}
	if s.month, err = parseField(fields[3], monthBounds); err != nil {
		return nil, err
	}
	if s.dow, err = parseField(fields[4], dowBounds); err != nil {
		return nil, err
	}
	// 7 and 0 are both Sunday
	if s.dow&(1<<7) != 0 {
		s.dow = (s.dow | 1) &^ (1 << 7)
	}

	s.domRestricted = !isStar(fields[2])
	s.dowRestricted = !isStar(fields[4])

	// Catch expressions like "0 0 30 2 *" that can never fire
	ref := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	if s.Next(ref).IsZero() {
		return nil, errors.Wrapf(errors.ErrInvalidSchedule, "cron expression %q never fires", expr)
	}

	return s, nil
}

func isStar(field string) bool {
	return strings.HasPrefix(field, "*") || strings.HasPrefix(field, "?")
}

// String returns the expression as written.
func (s *CronSchedule) String() string {
	return s.expr
}

// Next returns the first minute boundary strictly after `after` that matches
// every field, in after's location. Returns the zero time if nothing matches
// within the search horizon.
func (s *CronSchedule) Next(after time.Time) time.Time {
	loc := after.Location()
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(searchHorizon)

	for t.Before(limit) {
		if s.month&(1<<uint(t.Month())) == 0 {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if s.hour&(1<<uint(t.Hour())) == 0 {
			next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			if !next.After(t) {
				// DST fall-back can map hour+1 onto an earlier instant
				next = t.Truncate(time.Hour).Add(time.Hour)
			}
			t = next
			continue
		}
		if s.minute&(1<<uint(t.Minute())) == 0 {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}

	return time.Time{}
}

func (s *CronSchedule) dayMatches(t time.Time) bool {
	domMatch := s.dom&(1<<uint(t.Day())) != 0
	dowMatch := s.dow&(1<<uint(t.Weekday())) != 0
	if s.domRestricted && s.dowRestricted {
		return domMatch || dowMatch
	}
	return domMatch && dowMatch
}

// parseField turns one comma-separated field into a bitset of allowed values.
func parseField(field string, b bounds) (uint64, error) {
	var bits uint64
	for _, part := range strings.Split(field, ",") {
		partBits, err := parsePart(part, b)
		if err != nil {
			return 0, err
		}
		bits |= partBits
	}
	return bits, nil
}

func parsePart(part string, b bounds) (uint64, error) {
	if part == "" {
		return 0, errors.Wrapf(errors.ErrInvalidSchedule, "empty %s entry", b.name)
	}

	rangePart, stepPart, hasStep := strings.Cut(part, "/")

	var lo, hi int
	switch {
	case rangePart == "*" || rangePart == "?":
		lo, hi = b.min, b.max
		if b.name == dowBounds.name {
			hi = 6
		}
	default:
		loStr, hiStr, isRange := strings.Cut(rangePart, "-")
		var err error
		if lo, err = parseValue(loStr, b); err != nil {
			return 0, err
		}
		switch {
		case isRange:
			if hi, err = parseValue(hiStr, b); err != nil {
				return 0, err
			}
		case hasStep:
			// "a/n" runs from a to the end of the field
			hi = b.max
		default:
			hi = lo
		}
	}

	if lo > hi {
		return 0, errors.Wrapf(errors.ErrInvalidSchedule, "%s range %q runs backwards", b.name, part)
	}

	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepPart)
		if err != nil || n <= 0 {
			return 0, errors.Wrapf(errors.ErrInvalidSchedule, "invalid %s step %q", b.name, stepPart)
		}
		step = n
	}

	var bits uint64
	for v := lo; v <= hi; v += step {
		bits |= 1 << uint(v)
	}
	return bits, nil
}

func parseValue(s string, b bounds) (int, error) {
	if v, ok := b.names[strings.ToLower(s)]; ok {
		return v, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrInvalidSchedule, "invalid %s value %q", b.name, s)
	}
	if v < b.min || v > b.max {
		return 0, errors.Wrapf(errors.ErrInvalidSchedule,
			"%s value %d out of range [%d-%d]", b.name, v, b.min, b.max)
	}
	return v, nil
}
