package schedule

import (
	"sort"
	"strings"
	"time"

	"github.com/teranos/avscheduler/am"
	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/logger"
	"github.com/teranos/avscheduler/pulse/condition"
	"github.com/teranos/avscheduler/pulse/trigger"
)

// jobEntry is the runtime state of one registered job
type jobEntry struct {
	id          string
	def         am.JobConfig
	interpreter string
	spec        trigger.Spec
	schedule    trigger.Schedule
	cond        condition.Expression
	nextFire    time.Time
}

// dueRun is a snapshot of an entry taken when it came due
type dueRun struct {
	entry   jobEntry
	firedAt time.Time
}

// buildEntry compiles one job definition. Errors are ConfigError causes.
func buildEntry(cfg *am.Config, id string) (*jobEntry, error) {
	def := cfg.Jobs[id]
	if strings.TrimSpace(def.Command) == "" {
		return nil, errors.Wrap(errors.ErrConfig, "command is empty")
	}

	interpreter, err := cfg.Interpreter(def.Type)
	if err != nil {
		return nil, err
	}

	spec, err := def.Spec()
	if err != nil {
		return nil, err
	}
	sched, err := trigger.Compile(spec)
	if err != nil {
		return nil, err
	}

	cond, err := condition.Parse(def.Condition)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrConfig)
	}

	return &jobEntry{
		id:          id,
		def:         def,
		interpreter: interpreter,
		spec:        spec,
		schedule:    sched,
		cond:        cond,
	}, nil
}

// Reload atomically replaces the registry with the jobs in cfg.
//
//   - removed jobs stop being scheduled; in-flight runs finish and are recorded
//   - added jobs are scheduled from now
//   - jobs whose schedule changed are recomputed from now
//   - jobs whose schedule is unchanged keep their next fire time
//
// Invalid jobs are rejected and returned; the rest are applied.
func (c *Core) Reload(cfg *am.Config) []*errors.ConfigError {
	now := c.now()

	next := make(map[string]*jobEntry, len(cfg.Jobs))
	rejected := make(map[string]*errors.ConfigError)
	var problems []*errors.ConfigError

	for _, id := range cfg.JobIDs() {
		entry, err := buildEntry(cfg, id)
		if err != nil {
			ce := errors.NewConfigError(id, err)
			problems = append(problems, ce)
			rejected[id] = ce
			c.log.Warnw("Job rejected", logger.FieldJobID, id, logger.FieldError, err)
			continue
		}
		next[id] = entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var added, changed, kept, removed int
	for id, entry := range next {
		old, ok := c.jobs[id]
		switch {
		case !ok:
			added++
			entry.nextFire = entry.schedule.Next(now)
		case old.spec != entry.spec:
			changed++
			entry.nextFire = entry.schedule.Next(now)
		default:
			kept++
			entry.nextFire = old.nextFire
		}
	}
	for id := range c.jobs {
		if _, ok := next[id]; !ok {
			removed++
		}
	}

	c.jobs = next
	c.rejected = rejected

	c.log.Infow("Job registry loaded",
		"added", added,
		"changed", changed,
		"kept", kept,
		"removed", removed,
		"rejected", len(problems),
	)
	return problems
}

// lookup returns a copy of the entry for jobID.
// Jobs rejected at the last reload report their ConfigError.
func (c *Core) lookup(jobID string) (jobEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.jobs[jobID]; ok {
		return *e, nil
	}
	if ce, ok := c.rejected[jobID]; ok {
		return jobEntry{}, ce
	}
	return jobEntry{}, errors.NewJobNotFoundError(jobID)
}

func sortedIDs(jobs map[string]*jobEntry) []string {
	ids := make([]string, 0, len(jobs))
	for id := range jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
