package schedule

import (
	"time"

	"github.com/teranos/avscheduler/logger"
)

// run is the dispatch loop. One goroutine; each run gets its own.
func (c *Core) run() {
	defer c.loop.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.log.Debugw("Dispatch loop exiting")
			return
		case <-ticker.C:
			c.tick(c.now())
		}
	}
}

// tick dispatches every job due at now.
func (c *Core) tick(now time.Time) {
	for _, d := range c.collectDue(now) {
		// Stop handing out work as soon as shutdown begins
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		c.dispatch(d)
	}
}

// collectDue snapshots the due entries and advances their next fire time
// under the registry lock. Conditions and spawning happen outside it.
//
// The next fire is computed from the consumed fire time so an interval job
// keeps its cadence; if the daemon fell behind (suspend, long tick) it is
// recomputed from now instead of firing a backlog.
func (c *Core) collectDue(now time.Time) []dueRun {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due []dueRun
	for _, id := range sortedIDs(c.jobs) {
		e := c.jobs[id]
		if now.Before(e.nextFire) {
			continue
		}

		fired := e.nextFire
		next := e.schedule.Next(fired)
		if !next.After(now) {
			next = e.schedule.Next(now)
		}
		e.nextFire = next

		due = append(due, dueRun{entry: *e, firedAt: fired})
		c.log.Debugw("Job due",
			logger.FieldJobID, id,
			"fired_at", fired,
			logger.FieldNextFire, next,
		)
	}
	return due
}
