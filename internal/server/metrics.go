package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teemow/inboxpilot/internal/instrumentation"
)

const (
	DefaultMetricsAddr = ":9091"

	// DefaultShutdownTimeout bounds the graceful shutdown of every listener.
	DefaultShutdownTimeout = 30 * time.Second

	metricsReadTimeout  = 10 * time.Second
	metricsWriteTimeout = 10 * time.Second
	metricsIdleTimeout  = 60 * time.Second
)

// MetricsServerConfig configures a MetricsServer. InstrumentationProvider
// must be enabled with the Prometheus exporter.
type MetricsServerConfig struct {
	Addr                    string
	InstrumentationProvider *instrumentation.Provider
	Logger                  *slog.Logger
}

// MetricsServer exposes the Prometheus registry on its own listener so the
// scrape endpoint is never reachable through the public address.
type MetricsServer struct {
	addr   string
	logger *slog.Logger
	srv    *http.Server

	mu sync.Mutex
	ln net.Listener
}

// NewMetricsServer serves /metrics and /healthz. It fails unless the
// provider exports to Prometheus.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	switch provider := config.InstrumentationProvider; {
	case provider == nil:
		return nil, fmt.Errorf("instrumentation provider is required for metrics server")
	case !provider.Enabled():
		return nil, fmt.Errorf("instrumentation provider is not enabled")
	case !provider.PrometheusEnabled():
		return nil, fmt.Errorf("metrics exporter is not prometheus")
	}

	s := &MetricsServer{addr: config.Addr, logger: config.Logger}
	if s.addr == "" {
		s.addr = DefaultMetricsAddr
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	s.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: metricsReadTimeout,
		WriteTimeout:      metricsWriteTimeout,
		IdleTimeout:       metricsIdleTimeout,
	}
	return s, nil
}

// Listen binds the address so a ":0" port is known before Serve.
func (s *MetricsServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Serve blocks until Shutdown. Listen must have succeeded first.
func (s *MetricsServer) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("metrics server is not listening")
	}

	s.logger.Info("starting metrics server", slog.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.srv.Shutdown(ctx)
}

// Addr is the bound address once listening, else the configured one.
func (s *MetricsServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}
