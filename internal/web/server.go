// Package web serves the monitor state over HTTP: a small dashboard page,
// a JSON API and Prometheus metrics.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/metrics"
	"github.com/user/pingwatch/internal/monitor"
	"github.com/user/pingwatch/internal/storage"
)

// Options wires the server to the running monitor.
type Options struct {
	Port    int
	Network string
	Tracker *monitor.Tracker
	// DB enables the history endpoints and the report download; may be nil.
	DB      *storage.DB
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Server is the web server.
type Server struct {
	opts Options
	mux  *http.ServeMux
	srv  *http.Server
}

// NewServer creates a new web server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracker == nil {
		opts.Tracker = monitor.NewTracker()
	}

	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.registerRoutes()

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	h := NewHandlers(s.opts)

	s.route("GET /{$}", h.Dashboard)
	s.route("GET /healthz", h.Healthz)
	s.route("GET /api/devices", h.APIGetDevices)
	s.route("GET /api/devices/{ip}", h.APIGetDevice)
	s.route("GET /api/offline-events", h.APIGetOfflineEvents)
	s.route("GET /api/stats", h.APIGetStats)
	s.route("GET /report", h.DownloadReport)
	s.mux.Handle("GET /metrics", s.opts.Metrics.Handler())
}

// route registers fn under pattern, logging each request and recording it
// in the metrics under the pattern rather than the raw path.
func (s *Server) route(pattern string, fn http.HandlerFunc) {
	logger := s.opts.Logger
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		fn(sw, r)

		d := time.Since(start)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", d),
			zap.String("remote", r.RemoteAddr),
		)
		s.opts.Metrics.ObserveHTTP(r.Method, pattern, sw.status, d)
	})
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("web server starting", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop stops the web server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
