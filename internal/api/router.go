package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/teemow/inboxpilot/internal/api/middleware"
	"github.com/teemow/inboxpilot/internal/google"
	"github.com/teemow/inboxpilot/internal/relay"
	"github.com/teemow/inboxpilot/internal/server"
)

// DefaultMaxBodyBytes bounds request bodies; attachments travel inline as base64.
const DefaultMaxBodyBytes = 32 << 20

// Authenticator is the sign-in side of *google.Authenticator.
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (google.Session, error)
	HasSession(ctx context.Context, sessionID string) bool
	Email(sessionID string) string
	Logout(ctx context.Context, sessionID string) error
}

// Config configures the router.
type Config struct {
	Relay  *relay.Relay
	Auth   Authenticator
	Server *server.ServerContext
	Health *server.HealthChecker
	Logger *slog.Logger

	// AllowedOrigins lists the web UI origins allowed to call the API with
	// credentials.
	AllowedOrigins []string
	// MaxBodyBytes defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// SecureCookies marks cookies Secure; enable it behind HTTPS.
	SecureCookies bool
	// UIURL is where the browser lands after sign-in.
	UIURL string
}

// Handler holds the dependencies of the API handlers.
type Handler struct {
	auth   Authenticator
	sc     *server.ServerContext
	logger *slog.Logger
	secure bool
	uiURL  string
}

// NewRouter builds the HTTP handler of the service.
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Relay == nil {
		return nil, fmt.Errorf("relay is required")
	}
	if cfg.Server == nil {
		return nil, fmt.Errorf("server context is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UIURL == "" {
		cfg.UIURL = "/"
	}

	h := &Handler{
		auth:   cfg.Auth,
		sc:     cfg.Server,
		logger: cfg.Logger,
		secure: cfg.SecureCookies,
		uiURL:  cfg.UIURL,
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Metrics(cfg.Server.Metrics()))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Health != nil {
		cfg.Health.RegisterHealthEndpoints(r)
	}

	relayHandler := relay.NewHandler(cfg.Relay, cfg.Logger)
	r.Method(http.MethodPost, "/generate", relayHandler)

	if cfg.Auth != nil {
		r.Get("/auth/login", h.Login)
		r.Get("/auth/callback", h.Callback)
		r.Post("/auth/logout", h.Logout)
	}

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/generate", relayHandler)
		r.Method(http.MethodPost, "/ai/process", relayHandler)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession)

			r.Get("/session", h.Session)

			r.Get("/emails", h.ListEmails)
			r.Delete("/emails", h.DeleteEmails)
			r.Post("/emails/archive", h.ArchiveEmails)
			r.Get("/emails/{id}", h.GetEmail)

			r.Get("/conversation", h.GetConversation)
			r.Put("/conversation", h.SwitchConversation)
			r.Get("/conversations/{key}", h.GetConversationByKey)

			r.Post("/assistant/actions", h.RunAction)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r, nil
}
