// Package server is the read-only status surface for avscheduler: job
// listings, execution logs and a websocket stream of new executions.
// It runs in its own process next to the scheduler daemon and shares
// nothing with it but the configuration file and the SQLite log.
package server

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/avscheduler/am"
	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/logger"
	"github.com/teranos/avscheduler/pulse/logstore"
	"github.com/teranos/avscheduler/pulse/schedule"
)

const (
	// DefaultPollInterval is how often the store is checked for new executions
	DefaultPollInterval = 3 * time.Second

	// MaxClients caps concurrent websocket subscribers
	MaxClients = 100

	// ShutdownTimeout bounds how long Stop waits for goroutines
	ShutdownTimeout = 5 * time.Second

	// pollBatch is the most records pushed per poll
	pollBatch = 100
)

// Server serves /health, /api/jobs, /api/logs and /ws/executions
type Server struct {
	store        *logstore.Store
	core         *schedule.Core
	logger       *zap.SugaredLogger
	limiter      *rate.Limiter // nil disables rate limiting
	addr         string
	pollInterval time.Duration

	httpServer *http.Server
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan interface{}
	stopping   bool
	mu         sync.RWMutex

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures a Server
type Option func(*Server)

// WithPollInterval overrides DefaultPollInterval
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithClock sets the clock used to project next fire times
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.core = schedule.New(s.store, s.logger, schedule.WithClock(now))
	}
}

// New creates a status server for cfg over store. Jobs rejected by
// validation are logged and still listed with their error.
func New(cfg *am.Config, store *logstore.Store, log *zap.SugaredLogger, opts ...Option) *Server {
	log = logger.AddServerSymbol(log)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		store:        store,
		core:         schedule.New(store, log),
		logger:       log,
		limiter:      newLimiter(cfg.WebServer),
		addr:         net.JoinHostPort(cfg.WebServer.Host, strconv.Itoa(cfg.WebServer.Port)),
		pollInterval: DefaultPollInterval,
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan interface{}, 64),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Reload(cfg)
	return s
}

func newLimiter(cfg am.WebServerConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = int(math.Ceil(cfg.RateLimit))
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
}

// Reload replaces the job set shown by /api/jobs
func (s *Server) Reload(cfg *am.Config) {
	for _, problem := range s.core.Reload(cfg) {
		s.logger.Warnw("Job rejected", "job_id", problem.JobID, "error", problem.Err)
	}
}

// Addr is the configured listen address
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the rate-limited route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/api/jobs", s.HandleJobs)
	mux.HandleFunc("/api/logs", s.HandleLogs)
	mux.HandleFunc("/ws/executions", s.HandleExecutionsWebSocket)
	return s.rateLimit(mux)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the websocket hub and the execution poller. It does not listen;
// use ListenAndServe for that.
func (s *Server) Start() error {
	var err error
	s.startOnce.Do(func() {
		if !s.spawn(s.run) {
			err = errors.New("server is stopping")
			return
		}
		err = s.startExecutionPoller()
	})
	return err
}

// ListenAndServe starts background services and serves HTTP until Stop.
func (s *Server) ListenAndServe() error {
	if err := s.Start(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WithHintf(
			errors.Wrapf(err, "failed to listen on %s", s.addr),
			"change web_server.port or stop whatever is using %s", s.addr)
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Infow("Server ready", "url", "http://"+ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "status server failed")
	}
	return nil
}

// run is the hub: it owns the client set and every send on client channels.
func (s *Server) run() {
	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				client.close()
			}
			s.mu.Unlock()
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		case msg := <-s.broadcast:
			s.handleBroadcast(msg)
		}
	}
}

func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected", "client_id", client.id, "total_clients", total)
}

func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, client)
	total := len(s.clients)
	s.mu.Unlock()

	client.close()
	s.logger.Infow("Client disconnected", "client_id", client.id, "total_clients", total)
}

func (s *Server) handleBroadcast(msg interface{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- msg:
		default:
			// Slow client: drop rather than stall the hub
			s.logger.Debugw("Client send buffer full, dropping message", "client_id", client.id)
		}
	}
}

// spawn runs each fn on its own goroutine counted by Stop. Once Stop has
// begun it starts nothing and returns false.
func (s *Server) spawn(fns ...func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.wg.Add(len(fns))
	for _, fn := range fns {
		go func(fn func()) {
			defer s.wg.Done()
			fn()
		}(fn)
	}
	return true
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Stop shuts down HTTP, closes websocket clients and waits for goroutines.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Infow("Initiating server shutdown")

		s.mu.Lock()
		s.stopping = true
		srv := s.httpServer
		s.mu.Unlock()
		if srv != nil {
			if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
				err = errors.Wrap(shutdownErr, "failed to shut down http server")
			}
		}

		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			s.logger.Infow("Server shutdown complete")
		case <-time.After(ShutdownTimeout):
			s.logger.Warnw("Goroutine shutdown timed out", "timeout", ShutdownTimeout)
		}
	})
	return err
}
