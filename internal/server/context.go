package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/inboxpilot/internal/assistant"
	"github.com/teemow/inboxpilot/internal/conversation"
	"github.com/teemow/inboxpilot/internal/gmail"
	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
)

const (
	// DefaultSessionTimeout is how long an idle session is kept.
	DefaultSessionTimeout = 24 * time.Hour

	sessionCleanupInterval = 10 * time.Minute
)

// ErrShutdown is returned once the server context has been shut down.
var ErrShutdown = errors.New("server is shutting down")

// ClientProvider returns an HTTP client authenticated as a session.
// *google.Authenticator implements it.
type ClientProvider interface {
	HTTPClient(ctx context.Context, sessionID string) *http.Client
}

// Config configures a ServerContext.
type Config struct {
	Auth       ClientProvider
	Dispatcher *assistant.Dispatcher
	Metrics    *instrumentation.Metrics
	Audit      *instrumentation.AuditLogger
	Logger     *slog.Logger

	// GmailOptions are passed to every Gmail client.
	GmailOptions []gmail.Option
	// SessionTimeout defaults to DefaultSessionTimeout.
	SessionTimeout time.Duration
}

type session struct {
	gmail      *gmail.Client
	store      *conversation.Store
	lastAccess time.Time
}

// ServerContext holds the per-session state and shared services.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	auth         ClientProvider
	dispatcher   *assistant.Dispatcher
	metrics      *instrumentation.Metrics
	audit        *instrumentation.AuditLogger
	logger       *slog.Logger
	gmailOptions []gmail.Option

	mu             sync.Mutex
	sessions       map[string]*session
	sessionTimeout time.Duration
	shutdown       bool
	cleanupDone    chan struct{}
}

// NewServerContext creates a server context and starts the idle session cleanup.
func NewServerContext(ctx context.Context, cfg Config) (*ServerContext, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("assistant dispatcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:            shutdownCtx,
		cancel:         cancel,
		auth:           cfg.Auth,
		dispatcher:     cfg.Dispatcher,
		metrics:        cfg.Metrics,
		audit:          cfg.Audit,
		logger:         cfg.Logger,
		gmailOptions:   cfg.GmailOptions,
		sessions:       make(map[string]*session),
		sessionTimeout: cfg.SessionTimeout,
		cleanupDone:    make(chan struct{}),
	}

	go sc.cleanupExpiredSessions(sessionCleanupInterval)

	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Dispatcher returns the shared assistant dispatcher.
func (sc *ServerContext) Dispatcher() *assistant.Dispatcher {
	return sc.dispatcher
}

// Metrics returns the metrics recorder. It may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// Audit returns the audit logger. It may be nil.
func (sc *ServerContext) Audit() *instrumentation.AuditLogger {
	return sc.audit
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// sessionLocked returns the session, creating it if needed. sc.mu must be held.
func (sc *ServerContext) sessionLocked(sessionID string) *session {
	s, ok := sc.sessions[sessionID]
	if !ok {
		s = &session{store: conversation.NewStore()}
		sc.sessions[sessionID] = s
		sc.metrics.IncrementActiveSessions(sc.ctx)
		sc.logger.Debug("session started", logging.Session(sessionID))
	}
	s.lastAccess = time.Now()
	return s
}

// Store returns the conversation store of the session, creating it on first use.
func (sc *ServerContext) Store(sessionID string) (*conversation.Store, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil, ErrShutdown
	}
	return sc.sessionLocked(sessionID).store, nil
}

// GmailClient returns the Gmail client of the session, creating and caching
// it on first use.
func (sc *ServerContext) GmailClient(sessionID string) (*gmail.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil, ErrShutdown
	}
	s := sc.sessionLocked(sessionID)
	if s.gmail != nil {
		return s.gmail, nil
	}
	if sc.auth == nil {
		return nil, fmt.Errorf("no Google authentication configured")
	}

	opts := append([]gmail.Option{
		gmail.WithMetrics(sc.metrics),
		gmail.WithLogger(sc.logger),
	}, sc.gmailOptions...)
	client, err := gmail.NewClient(sc.ctx, sc.auth.HTTPClient(sc.ctx, sessionID), opts...)
	if err != nil {
		return nil, err
	}
	s.gmail = client
	return client, nil
}

// SetGmailClient sets the Gmail client of a session.
func (sc *ServerContext) SetGmailClient(sessionID string, client *gmail.Client) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.sessionLocked(sessionID).gmail = client
}

// EndSession drops the Gmail client and the conversation store of a session.
func (sc *ServerContext) EndSession(sessionID string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.endSessionLocked(sessionID)
}

func (sc *ServerContext) endSessionLocked(sessionID string) {
	if _, ok := sc.sessions[sessionID]; !ok {
		return
	}
	delete(sc.sessions, sessionID)
	sc.metrics.DecrementActiveSessions(sc.ctx)
	sc.logger.Debug("session ended", logging.Session(sessionID))
}

// SessionCount returns the number of live sessions.
func (sc *ServerContext) SessionCount() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.sessions)
}

// expireIdle ends every session idle since before now minus the timeout.
func (sc *ServerContext) expireIdle(now time.Time) int {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	expired := 0
	for id, s := range sc.sessions {
		if now.Sub(s.lastAccess) > sc.sessionTimeout {
			sc.endSessionLocked(id)
			expired++
		}
	}
	return expired
}

func (sc *ServerContext) cleanupExpiredSessions(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := sc.expireIdle(now); n > 0 {
				sc.logger.Info("cleaned up expired sessions", slog.Int("count", n))
			}
		case <-sc.cleanupDone:
			return
		}
	}
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.shutdown
}

// Shutdown cancels the server context and drops every session.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	close(sc.cleanupDone)
	for id := range sc.sessions {
		sc.endSessionLocked(id)
	}
	sc.cancel()
	return nil
}
