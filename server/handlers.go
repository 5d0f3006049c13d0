package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/avscheduler/pulse/logstore"
	"github.com/teranos/avscheduler/pulse/schedule"
	"github.com/teranos/avscheduler/version"
)

const (
	// DefaultLogLimit applies when /api/logs has no limit parameter
	DefaultLogLimit = 100

	// MaxLogLimit caps the limit parameter
	MaxLogLimit = 1000
)

// JobsResponse is the body of GET /api/jobs
type JobsResponse struct {
	Jobs        []schedule.JobStatus `json:"jobs"`
	Count       int                  `json:"count"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// LogsResponse is the body of GET /api/logs
type LogsResponse struct {
	Logs  []logstore.Record `json:"logs"`
	Count int               `json:"count"`
}

// HandleHealth reports liveness and build information
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	versionInfo := version.Get()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"version":    versionInfo.Version,
		"commit":     versionInfo.CommitHash,
		"build_time": versionInfo.BuildTime,
		"clients":    s.clientCount(),
	})
}

// HandleJobs lists configured jobs with their next fire and last run
func (s *Server) HandleJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	jobs, err := s.core.ListJobs(r.Context())
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, JobsResponse{
		Jobs:        jobs,
		Count:       len(jobs),
		GeneratedAt: time.Now().UTC(),
	})
}

// HandleLogs returns execution records, newest first.
// Query parameters: job_id (optional), limit (default 100, max 1000).
func (s *Server) HandleLogs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	limit := DefaultLogLimit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, MaxLogLimit)
	}

	logs, err := s.core.GetLogs(r.Context(), logstore.Filter{
		JobID: query.Get("job_id"),
		Limit: limit,
	})
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to read execution logs")
		return
	}
	if logs == nil {
		logs = []logstore.Record{}
	}
	writeJSON(w, http.StatusOK, LogsResponse{Logs: logs, Count: len(logs)})
}

// HandleExecutionsWebSocket upgrades to a websocket that receives an
// ExecutionMessage for every record appended after the client connects.
func (s *Server) HandleExecutionsWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := newUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.logger.Warnw("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &Client{
		server: s,
		conn:   conn,
		send:   make(chan interface{}, sendBuffer),
		id:     uuid.NewString()[:8],
	}

	// Sent before writePump starts so there is a single writer
	versionInfo := version.Get()
	if err := conn.WriteJSON(HelloMessage{
		Type:    MessageTypeHello,
		Version: versionInfo.Version,
		Commit:  versionInfo.Short(),
	}); err != nil {
		s.logger.Debugw("Failed to send hello", "client_id", client.id, "error", err)
		conn.Close()
		return
	}

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	if !s.spawn(client.writePump, client.readPump) {
		// Stop has begun; the hub closes the registered client
		conn.Close()
	}
}
