// ABOUTME: HTTP status server exposing health, runtime state, and Prometheus metrics
// ABOUTME: Read-only; nothing here changes coordinator state

package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/vito-gateway/internal/admission"
	"github.com/2389/vito-gateway/internal/task"
)

// DefaultMetricsPath is where metrics are served when Config.MetricsPath is empty.
const DefaultMetricsPath = "/metrics"

// Tasks lists in-flight units of work.
type Tasks interface {
	Snapshot() []task.Info
}

// Gate reports admission state.
type Gate interface {
	Holders() []admission.Holder
	Waiting() int
}

// Config configures a Server.
type Config struct {
	Addr        string
	MetricsPath string
	Gatherer    prometheus.Gatherer // nil disables the metrics endpoint
	Tasks       Tasks
	Gate        Gate
	// Ready reports whether the chat frontend is connected. Nil means always ready.
	Ready  func() error
	Logger *slog.Logger
}

// Server serves the status endpoints.
type Server struct {
	cfg     Config
	started time.Time
	http    *http.Server
	logger  *slog.Logger
}

// New creates a Server. Call Run to start listening.
func New(cfg Config) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = DefaultMetricsPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		started: time.Now(),
		logger:  logger.With("component", "status"),
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)
	r.Get("/status", s.handleStatus)
	if s.cfg.Gatherer != nil {
		r.Handle(s.cfg.MetricsPath, promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down with a fresh timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on status address: %w", err)
	}
	s.logger.Info("status server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ready != nil {
		if err := s.cfg.Ready(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "not ready: %v", err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type taskView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Rank      string    `json:"rank"`
	StartedAt time.Time `json:"started_at"`
}

type holderView struct {
	UserID     string    `json:"user_id"`
	Rank       string    `json:"rank"`
	AdmittedAt time.Time `json:"admitted_at"`
}

type statusResponse struct {
	Uptime  string       `json:"uptime"`
	Tasks   []taskView   `json:"tasks"`
	Holders []holderView `json:"holders"`
	Waiting int          `json:"waiting"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Tasks:   []taskView{},
		Holders: []holderView{},
	}
	if s.cfg.Tasks != nil {
		for _, t := range s.cfg.Tasks.Snapshot() {
			resp.Tasks = append(resp.Tasks, taskView{ID: t.ID, UserID: t.UserID, Rank: t.Rank.String(), StartedAt: t.StartedAt})
		}
	}
	if s.cfg.Gate != nil {
		for _, h := range s.cfg.Gate.Holders() {
			resp.Holders = append(resp.Holders, holderView{UserID: h.UserID, Rank: h.Rank.String(), AdmittedAt: h.AdmittedAt})
		}
		resp.Waiting = s.cfg.Gate.Waiting()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("encoding status", "error", err)
	}
}
