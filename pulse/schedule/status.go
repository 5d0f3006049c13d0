package schedule

import (
	"context"
	"sort"
	"time"

	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/logger"
	"github.com/teranos/avscheduler/pulse/logstore"
)

// JobStatus is the read-only view of one job for list-jobs and /api/jobs
type JobStatus struct {
	ID        string           `json:"job_id"`
	Name      string           `json:"name"`
	Type      string           `json:"type"`
	Schedule  string           `json:"schedule"`
	Condition string           `json:"condition,omitempty"`
	NextFire  *time.Time       `json:"next_fire,omitempty"`
	Running   bool             `json:"running"`
	LastRun   *logstore.Record `json:"last_run,omitempty"`
	Error     string           `json:"error,omitempty"` // set when the job was rejected
}

// ListJobs returns every configured job, including rejected ones, sorted by ID.
func (c *Core) ListJobs(ctx context.Context) ([]JobStatus, error) {
	now := c.now()
	c.mu.RLock()
	statuses := make([]JobStatus, 0, len(c.jobs)+len(c.rejected))
	for _, id := range sortedIDs(c.jobs) {
		e := c.jobs[id]
		next := e.nextFire
		// A core without a dispatch loop (status server, CLI) never advances
		// nextFire, so project it forward from now.
		if !c.started.Load() && !next.After(now) {
			next = e.schedule.Next(now)
		}
		statuses = append(statuses, JobStatus{
			ID:        id,
			Name:      e.def.DisplayName(id),
			Type:      e.def.Type,
			Schedule:  e.spec.String(),
			Condition: e.cond.Source,
			NextFire:  &next,
		})
	}
	for id, ce := range c.rejected {
		statuses = append(statuses, JobStatus{
			ID:    id,
			Name:  id,
			Error: ce.Err.Error(),
		})
	}
	c.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })

	for i := range statuses {
		statuses[i].Running = c.isRunning(statuses[i].ID)

		last, err := c.store.Latest(ctx, statuses[i].ID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read last run")
		}
		statuses[i].LastRun = last
	}
	return statuses, nil
}

// GetLogs returns stored records, newest first
func (c *Core) GetLogs(ctx context.Context, f logstore.Filter) ([]logstore.Record, error) {
	return c.store.List(ctx, f)
}

// CleanupLogs deletes records for jobID older than before, or all of them.
// An empty jobID applies to every job.
func (c *Core) CleanupLogs(ctx context.Context, jobID string, before time.Time, all bool) (int64, error) {
	n, err := c.store.Delete(ctx, jobID, before, all)
	if err != nil {
		return 0, err
	}
	c.log.Infow("Execution logs cleaned up",
		logger.FieldJobID, jobID,
		"before", before,
		"all", all,
		"deleted", n,
	)
	return n, nil
}
