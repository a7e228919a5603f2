// Package server exposes metrics, health and the MJPEG stream over HTTP.
//
// Routes:
//
//	GET /metrics       Prometheus exposition (no rate limiting)
//	GET /health        run health as JSON (no rate limiting)
//	GET /stream.mjpg   multipart MJPEG stream of the composited view
//	GET /snapshot.jpg  latest composited frame
package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/e7canasta/sensorview/internal/metrics"
)

// Config holds server configuration
type Config struct {
	Addr string

	// Rate limiting configuration
	RateLimit      rate.Limit // requests per second
	RateLimitBurst int        // burst size

	// Timeouts. There is no write timeout: the MJPEG stream is long-lived.
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		RateLimit:         20,
		RateLimitBurst:    40,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// HealthFunc reports the current run health.
type HealthFunc func() Health

// Stream provides the MJPEG handlers.
type Stream interface {
	StreamHandler() http.Handler
	SnapshotHandler() http.Handler
}

// Server represents the HTTP server
type Server struct {
	config      Config
	metrics     *metrics.Metrics
	health      HealthFunc
	stream      Stream
	rateLimiter *rate.Limiter
	httpServer  *http.Server

	// baseCancel ends every request context on shutdown so MJPEG viewers
	// disconnect instead of holding Shutdown until its timeout.
	baseCancel context.CancelFunc

	mu    sync.RWMutex
	ready bool
	addr  net.Addr
}

// New creates a server. stream may be nil when the MJPEG sink is disabled.
func New(cfg Config, m *metrics.Metrics, health HealthFunc, stream Stream) *Server {
	s := &Server{
		config:      cfg,
		metrics:     m,
		health:      health,
		stream:      stream,
		rateLimiter: rate.NewLimiter(cfg.RateLimit, cfg.RateLimitBurst),
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	s.baseCancel = cancel
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	return s
}

// Handler returns the routed handler (exported for tests).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// System endpoints (no rate limiting)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.stream != nil {
		mux.HandleFunc("GET /stream.mjpg", s.withMiddleware(s.stream.StreamHandler().ServeHTTP))
		mux.HandleFunc("GET /snapshot.jpg", s.withMiddleware(s.stream.SnapshotHandler().ServeHTTP))
	}
	return mux
}

// SetReady marks the server as ready to serve traffic
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Start listens and serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.Addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.SetReady(true)

	slog.Info("server: listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)
	s.baseCancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	slog.Info("server: shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		_ = s.httpServer.Close()
		if !stderrors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return nil
}

// respondJSON buffers the JSON encoding before writing headers to prevent
// partial responses.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("json encoding failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(statusCode)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Warn("response write failed", "error", err)
	}
}
