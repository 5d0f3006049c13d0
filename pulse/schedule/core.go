// Package schedule owns the job registry and the dispatch loop: it decides
// when each configured job is due, gates it on its condition and the overlap
// guard, hands it to the executor and records the outcome.
package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/avscheduler/am"
	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/logger"
	"github.com/teranos/avscheduler/pulse/condition"
	"github.com/teranos/avscheduler/pulse/execution"
	"github.com/teranos/avscheduler/pulse/logstore"
)

// Core is the scheduler. Construct with New, load jobs with Reload or Start.
type Core struct {
	store     *logstore.Store
	textLog   *logstore.TextLog
	runner    execution.Runner
	evaluator *condition.Evaluator
	now       func() time.Time
	interval  time.Duration
	grace     time.Duration
	log       *zap.SugaredLogger

	mu       sync.RWMutex
	jobs     map[string]*jobEntry
	rejected map[string]*errors.ConfigError

	// running flags outlive registry rebuilds
	runningMu sync.Mutex
	running   map[string]*atomic.Bool

	ctx     context.Context
	cancel  context.CancelFunc
	loop    sync.WaitGroup
	started atomic.Bool

	// runsMu orders runs.Add against the stopped transition
	runsMu  sync.Mutex
	runs    sync.WaitGroup
	stopped atomic.Bool
}

// Option configures a Core
type Option func(*Core)

// WithClock overrides the wall clock used for due checks, conditions and records
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// WithTickInterval sets how often the dispatch loop wakes
func WithTickInterval(d time.Duration) Option {
	return func(c *Core) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithShutdownGrace sets how long Shutdown waits for in-flight runs
func WithShutdownGrace(d time.Duration) Option {
	return func(c *Core) {
		if d > 0 {
			c.grace = d
		}
	}
}

// WithRunner substitutes the job runner (tests)
func WithRunner(r execution.Runner) Option {
	return func(c *Core) { c.runner = r }
}

// WithTextLog mirrors every stored record to a plain-text log
func WithTextLog(l *logstore.TextLog) Option {
	return func(c *Core) { c.textLog = l }
}

// WithConfigTimings applies the tick interval and shutdown grace from cfg
func WithConfigTimings(cfg *am.Config) Option {
	return func(c *Core) {
		c.interval = cfg.TickInterval()
		c.grace = cfg.ShutdownGrace()
	}
}

// New creates a scheduler over store. No jobs are loaded until Reload or Start.
func New(store *logstore.Store, log *zap.SugaredLogger, opts ...Option) *Core {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Core{
		store:    store,
		now:      time.Now,
		interval: am.DefaultTickIntervalMS * time.Millisecond,
		grace:    am.DefaultShutdownGraceSeconds * time.Second,
		log:      logger.AddPulseSymbol(log),
		jobs:     make(map[string]*jobEntry),
		rejected: make(map[string]*errors.ConfigError),
		running:  make(map[string]*atomic.Bool),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.runner == nil {
		c.runner = execution.NewExecutor(log, execution.WithClock(c.now))
	}
	c.evaluator = condition.NewEvaluator(store,
		condition.WithClock(c.now),
		condition.WithLogger(c.log),
	)
	return c
}

// Start loads cfg and begins dispatching. Rejected jobs are returned and
// logged; the rest are scheduled. Cancelling ctx stops the loop but, unlike
// Shutdown, does not wait for in-flight runs.
func (c *Core) Start(ctx context.Context, cfg *am.Config) ([]*errors.ConfigError, error) {
	if c.stopped.Load() {
		return nil, errors.ErrSchedulerStopped
	}
	if !c.started.CompareAndSwap(false, true) {
		return nil, errors.New("scheduler already started")
	}

	problems := c.Reload(cfg)

	context.AfterFunc(ctx, c.cancel)
	c.loop.Add(1)
	go c.run()

	c.log.Infow("Scheduler started",
		"tick_interval", c.interval,
		logger.FieldCount, c.jobCount(),
		"rejected", len(problems),
	)
	return problems, nil
}

// Shutdown stops the dispatch loop immediately, then waits for in-flight runs
// until they finish, the grace period elapses or ctx is done. Subprocesses
// are never killed; runs still going when Shutdown returns are abandoned.
func (c *Core) Shutdown(ctx context.Context) error {
	c.runsMu.Lock()
	first := c.stopped.CompareAndSwap(false, true)
	c.runsMu.Unlock()
	if !first {
		return nil
	}

	c.cancel()
	c.loop.Wait()

	done := make(chan struct{})
	go func() {
		c.runs.Wait()
		close(done)
	}()

	grace := time.NewTimer(c.grace)
	defer grace.Stop()

	select {
	case <-done:
		logger.AddPulseCloseSymbol(c.log).Infow("Scheduler stopped, all runs finished")
		return nil
	case <-grace.C:
		c.log.Warnw("Shutdown grace period elapsed with runs in flight",
			"grace", c.grace,
			"running", c.runningJobs())
		return errors.Newf("shutdown grace period %s elapsed with runs in flight", c.grace)
	case <-ctx.Done():
		c.log.Warnw("Shutdown interrupted with runs in flight", "running", c.runningJobs())
		return errors.Wrap(ctx.Err(), "shutdown interrupted with runs in flight")
	}
}

// beginRun counts a run towards Shutdown's wait. It returns false once
// Shutdown has begun; the caller must not start the run.
func (c *Core) beginRun() bool {
	c.runsMu.Lock()
	defer c.runsMu.Unlock()
	if c.stopped.Load() {
		return false
	}
	c.runs.Add(1)
	return true
}

// runningFlag returns the flag for jobID, creating it on first use.
func (c *Core) runningFlag(jobID string) *atomic.Bool {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()

	flag, ok := c.running[jobID]
	if !ok {
		flag = new(atomic.Bool)
		c.running[jobID] = flag
	}
	return flag
}

func (c *Core) isRunning(jobID string) bool {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()
	flag, ok := c.running[jobID]
	return ok && flag.Load()
}

func (c *Core) runningJobs() []string {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()

	var ids []string
	for id, flag := range c.running {
		if flag.Load() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *Core) jobCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.jobs)
}
