package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

type ComponentHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

type HealthChecker interface {
	Name() string
	Check(ctx context.Context) (Status, string)
}

type mount struct {
	pattern string
	handler http.Handler
}

// Server serves health probes, Prometheus metrics and any mounted API.
type Server struct {
	log      *slog.Logger
	address  string
	server   *http.Server
	gatherer prometheus.Gatherer
	ready    func() bool
	checkers []HealthChecker
	mounts   []mount
	mu       sync.RWMutex
}

func NewServer(log *slog.Logger, address string, gatherer prometheus.Gatherer, ready func() bool) *Server {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Server{
		log:      log.With(slog.String("component", "http")),
		address:  address,
		gatherer: gatherer,
		ready:    ready,
		checkers: make([]HealthChecker, 0),
	}
}

func (s *Server) AddChecker(checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = append(s.checkers, checker)
}

// Mount attaches h under pattern. It must be called before Start.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mounts = append(s.mounts, mount{pattern: pattern, handler: h})
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)

	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	for _, m := range s.mounts {
		r.Mount(m.pattern, m.handler)
	}

	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.address,
		Handler:     s.Handler(),
		ReadTimeout: 5 * time.Second,
		// no WriteTimeout: the stream endpoint holds connections open and
		// manages its own write deadlines.
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info("starting http server", slog.String("address", s.address))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server error", sl.Err(err))
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checkers := make([]HealthChecker, len(s.checkers))
	copy(checkers, s.checkers)
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:     StatusHealthy,
		Components: make([]ComponentHealth, 0, len(checkers)),
		Timestamp:  time.Now().UTC(),
	}

	for _, checker := range checkers {
		status, message := checker.Check(ctx)
		response.Components = append(response.Components, ComponentHealth{
			Name:    checker.Name(),
			Status:  status,
			Message: message,
		})

		if status == StatusUnhealthy {
			response.Status = StatusUnhealthy
		} else if status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// handleReady reports whether both sockets are bound.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT READY"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type ChannelHealthChecker struct {
	ready func() bool
}

func NewChannelHealthChecker(ready func() bool) *ChannelHealthChecker {
	return &ChannelHealthChecker{ready: ready}
}

func (c *ChannelHealthChecker) Name() string {
	return "channel"
}

func (c *ChannelHealthChecker) Check(ctx context.Context) (Status, string) {
	if !c.ready() {
		return StatusUnhealthy, "sockets not bound"
	}
	return StatusHealthy, ""
}

type HistoryHealthChecker struct {
	pingFunc func(ctx context.Context) error
}

func NewHistoryHealthChecker(pingFunc func(ctx context.Context) error) *HistoryHealthChecker {
	return &HistoryHealthChecker{pingFunc: pingFunc}
}

func (c *HistoryHealthChecker) Name() string {
	return "history"
}

func (c *HistoryHealthChecker) Check(ctx context.Context) (Status, string) {
	if err := c.pingFunc(ctx); err != nil {
		return StatusDegraded, err.Error()
	}
	return StatusHealthy, ""
}

// PushHealthChecker degrades when recent pushes failed.
type PushHealthChecker struct {
	window    time.Duration
	countFunc func(ctx context.Context, since time.Time) (int64, error)
}

func NewPushHealthChecker(window time.Duration, countFunc func(ctx context.Context, since time.Time) (int64, error)) *PushHealthChecker {
	return &PushHealthChecker{window: window, countFunc: countFunc}
}

func (c *PushHealthChecker) Name() string {
	return "push"
}

func (c *PushHealthChecker) Check(ctx context.Context) (Status, string) {
	count, err := c.countFunc(ctx, time.Now().Add(-c.window))
	if err != nil {
		return StatusDegraded, err.Error()
	}

	if count > 0 {
		return StatusDegraded, fmt.Sprintf("%d failed pushes in the last %s", count, c.window)
	}

	return StatusHealthy, ""
}
