package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/giantswarm/mcp-oauth/storage/memory"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxpilot/internal/assistant"
	"github.com/teemow/inboxpilot/internal/google"
	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
	"github.com/teemow/inboxpilot/internal/relay"
	"github.com/teemow/inboxpilot/internal/server"
	"github.com/teemow/inboxpilot/internal/tools/assistant_tools"
	"github.com/teemow/inboxpilot/internal/tools/common"
)

func newMCPCmd() *cobra.Command {
	cfg := defaultServeConfig()
	var yolo bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the mailbox and assistant tools over MCP stdio",
		Long: `Start a Model Context Protocol (MCP) server on standard input/output.

The tools list, read and triage the Gmail inbox and run the assistant
(summaries, reply drafts, meeting suggestions, questions) against the local model.

Safety Mode:
  By default, the server operates in read-only mode.
  Use --yolo to enable archive and delete tools.

Google account:
  The "default" account is signed in with GOOGLE_REFRESH_TOKEN, using the
  client from --google-client-id/--google-client-secret or GOOGLE_CLIENT_ID
  and GOOGLE_CLIENT_SECRET. Without them only the assistant's general
  questions work.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.loadEnv(cmd); err != nil {
				return err
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return runMCP(cmd.Context(), cfg, !yolo, slog.Default())
		},
	}

	cfg.bindUpstreamFlags(cmd.Flags())
	cfg.bindGoogleFlags(cmd.Flags())
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (archive and delete). Default is read-only mode.")
	return cmd
}

func runMCP(ctx context.Context, cfg serveConfig, readOnly bool, logger *slog.Logger) error {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()
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

	if cfg.GoogleClientID != "" {
		auth, err := google.NewAuthenticator(google.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Store:        memory.New(),
			Metrics:      metrics,
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create Google authenticator: %w", err)
		}
		if err := seedDefaultAccount(ctx, auth, os.Getenv("GOOGLE_REFRESH_TOKEN")); err != nil {
			return err
		}
		scConfig.Auth = auth
	}

	serverContext, err := server.NewServerContext(ctx, scConfig)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() { _ = serverContext.Shutdown() }()

	mcpSrv := mcpserver.NewMCPServer("inboxpilot", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := assistant_tools.RegisterTools(mcpSrv, serverContext, readOnly); err != nil {
		return err
	}

	logger.Info("starting MCP server on stdio", slog.Bool("read_only", readOnly))
	return runStdioServer(mcpSrv)
}

// seedDefaultAccount stores a refresh token for the default account. The
// first Gmail call exchanges it for an access token.
func seedDefaultAccount(ctx context.Context, auth *google.Authenticator, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	session := google.Session{ID: common.DefaultAccount}
	if err := auth.SaveToken(ctx, session, &oauth2.Token{RefreshToken: refreshToken}); err != nil {
		return fmt.Errorf("failed to store the default account token: %w", err)
	}
	slog.Debug("default account seeded", logging.Session(session.ID))
	return nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	if err := <-serverDone; err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
