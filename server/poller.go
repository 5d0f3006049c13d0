package server

// The scheduler daemon runs in another process, so new executions are found
// by polling the shared log store for ids above the last one pushed.

import (
	"time"

	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/pulse/logstore"
)

const (
	MessageTypeHello     = "hello"
	MessageTypeExecution = "execution"
)

// HelloMessage is the first frame on every /ws/executions connection
type HelloMessage struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ExecutionMessage announces one newly stored execution record
type ExecutionMessage struct {
	Type      string          `json:"type"`
	Record    logstore.Record `json:"record"`
	Succeeded bool            `json:"succeeded"`
}

// startExecutionPoller pushes records appended after this call. Existing
// history is not replayed; clients use /api/logs for that.
func (s *Server) startExecutionPoller() error {
	lastID, err := s.store.MaxID(s.ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read execution log position")
	}

	started := s.spawn(func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.checkNewExecutions(&lastID)
			}
		}
	})
	if !started {
		return errors.New("server is stopping")
	}

	s.logger.Debugw("Execution poller started", "interval", s.pollInterval, "after_id", lastID)
	return nil
}

// checkNewExecutions broadcasts records with id > *lastID and advances it
func (s *Server) checkNewExecutions(lastID *int64) {
	for {
		recs, err := s.store.ListSince(s.ctx, *lastID, pollBatch)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Debugw("Failed to poll executions", "after_id", *lastID, "error", err)
			}
			return
		}

		for _, rec := range recs {
			msg := ExecutionMessage{
				Type:      MessageTypeExecution,
				Record:    rec,
				Succeeded: rec.Succeeded(),
			}
			select {
			case s.broadcast <- msg:
			case <-s.ctx.Done():
				return
			}
			*lastID = rec.ID
		}

		if len(recs) < pollBatch {
			return
		}
	}
}
