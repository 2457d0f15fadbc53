package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giantswarm/mcp-oauth/storage/memory"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxpilot/internal/api"
	"github.com/teemow/inboxpilot/internal/assistant"
	"github.com/teemow/inboxpilot/internal/google"
	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
	"github.com/teemow/inboxpilot/internal/relay"
	"github.com/teemow/inboxpilot/internal/server"
)

func newServeCmd() *cobra.Command {
	cfg := defaultServeConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API used by the inboxpilot web UI.

Endpoints:
  POST /generate, /api/generate   Stream a generation from the local model
  /auth/login, /auth/callback     Google sign-in (needs a Google OAuth client)
  /api/emails, /api/conversation  Inbox and assistant, for signed-in users
  /healthz, /readyz               Liveness and readiness

Configuration is read from flags, then environment variables, then the .env
file. Without --google-client-id only the generation endpoints are usable.

Metrics are served on a dedicated port (--metrics-addr) when the
instrumentation uses the Prometheus exporter.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.loadEnv(cmd); err != nil {
				return err
			}
			if err := cfg.validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg, slog.Default())
		},
	}

	cfg.bindFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, cfg serveConfig, logger *slog.Logger) error {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation config: %w", err)
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	rl := relay.New(relay.Config{
		Endpoint: cfg.UpstreamURL,
		Model:    cfg.Model,
		Timeout:  cfg.UpstreamTimeout,
		Metrics:  metrics,
		Logger:   logger,
	})

	scConfig := server.Config{
		Dispatcher: assistant.NewDispatcher(rl, assistant.WithLogger(logger), assistant.WithMetrics(metrics)),
		Metrics:    metrics,
		Audit:      instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging),
		Logger:     logger,
	}
	routerConfig := api.Config{
		Relay:          rl,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		SecureCookies:  cfg.SecureCookies,
		UIURL:          cfg.UIURL,
	}

	if cfg.GoogleClientID != "" {
		auth, err := google.NewAuthenticator(google.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.callbackURL(),
			Store:        memory.New(),
			Metrics:      metrics,
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create Google authenticator: %w", err)
		}
		scConfig.Auth = auth
		routerConfig.Auth = auth
	} else {
		logger.Warn("no Google OAuth client configured, mailbox endpoints will answer 401")
	}

	serverContext, err := server.NewServerContext(ctx, scConfig)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("server context shutdown failed", logging.Err(err))
		}
	}()

	health := server.NewHealthChecker(serverContext)
	health.AddCheck("upstream", rl.Ping)
	routerConfig.Server = serverContext
	routerConfig.Health = health

	handler, err := api.NewRouter(routerConfig)
	if err != nil {
		return err
	}

	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled && provider.PrometheusEnabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		if err := metricsServer.Listen(); err != nil {
			return fmt.Errorf("metrics server failed to start: %w", err)
		}
		go func() {
			if err := metricsServer.Serve(); err != nil {
				logger.Error("metrics server stopped", logging.Err(err))
			}
		}()
		logger.Info("metrics server started", "addr", metricsServer.Addr())
	}

	httpServer, cancelRequests := newHTTPServer(ctx, cfg.HTTPAddr, handler)
	defer cancelRequests()

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()
	health.SetReady(true)
	logger.Info("inboxpilot listening",
		"addr", cfg.HTTPAddr,
		"upstream", rl.Endpoint(),
		"model", rl.Model(),
		"google_auth", cfg.GoogleClientID != "")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
	case err := <-serverDone:
		if err != nil {
			serveErr = fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}
	health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", logging.Err(err))
		}
	}
	if err := drainHTTPServer(shutdownCtx, httpServer, cancelRequests); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("error shutting down HTTP server: %w", err)
	}
	if serveErr == nil {
		logger.Info("HTTP server gracefully stopped")
	}
	return serveErr
}

// newHTTPServer builds the public listener. Request contexts keep the values
// of parent but not its cancellation; they end when the returned cancel is
// called, so a shutdown signal lets running generations finish.
func newHTTPServer(parent context.Context, addr string, handler http.Handler) (*http.Server, context.CancelFunc) {
	base, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: generations stream for minutes.
		BaseContext: func(net.Listener) context.Context { return base },
	}, cancel
}

// drainHTTPServer waits for in-flight requests until ctx is done. Requests
// still running then are cancelled and their connections closed.
func drainHTTPServer(ctx context.Context, srv *http.Server, cancelRequests context.CancelFunc) error {
	err := srv.Shutdown(ctx)
	if err != nil {
		cancelRequests()
		if closeErr := srv.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	return err
}
