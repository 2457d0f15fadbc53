package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
)

// ErrUnauthenticated means the session has no usable token and the user has
// to sign in again.
var ErrUnauthenticated = errors.New("not authenticated")

const (
	// RefreshThreshold is how long before expiry a token is refreshed.
	RefreshThreshold = 5 * time.Minute

	// defaultTokenLifetime applies when the token endpoint omits expires_in.
	defaultTokenLifetime = time.Hour
)

// Config configures an Authenticator.
type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is the absolute URL of the OAuth callback.
	RedirectURL string
	// Scopes defaults to DefaultOAuthScopes.
	Scopes []string
	// Endpoint defaults to Google's OAuth2 endpoint.
	Endpoint oauth2.Endpoint

	Store TokenStore

	// HTTPClient is used for calls to the token endpoint.
	HTTPClient *http.Client
	Metrics    *instrumentation.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// Session is a signed-in user.
type Session struct {
	ID    string
	Email string
}

// Authenticator runs the Google sign-in flow and serves valid tokens.
type Authenticator struct {
	conf       *oauth2.Config
	store      TokenStore
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	now        func() time.Time

	refreshes singleflight.Group

	mu     sync.RWMutex
	emails map[string]string
}

// NewAuthenticator validates cfg and creates an Authenticator.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("google client id is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultOAuthScopes
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Authenticator{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		store:      cfg.Store,
		httpClient: cfg.HTTPClient,
		metrics:    cfg.Metrics,
		logger:     logging.WithService(cfg.Logger, instrumentation.ServiceOAuth),
		now:        cfg.Now,
		emails:     make(map[string]string),
	}, nil
}

// AuthCodeURL returns the Google consent URL. Offline access and a forced
// consent prompt make Google return a refresh token every time.
func (a *Authenticator) AuthCodeURL(state string) string {
	return a.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a token and stores it under a
// new session.
func (a *Authenticator) Exchange(ctx context.Context, code string) (Session, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange)
	defer span.End()
	start := a.now()

	tok, err := a.conf.Exchange(a.clientContext(ctx), code)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		a.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, instrumentation.StatusError, a.now().Sub(start))
		return Session{}, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = a.now().Add(defaultTokenLifetime)
	}

	session := Session{ID: uuid.NewString(), Email: emailFromIDToken(tok)}
	if err := a.SaveToken(ctx, session, tok); err != nil {
		instrumentation.SetSpanError(span, err)
		return Session{}, err
	}

	instrumentation.SetSpanSuccess(span)
	a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	a.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, instrumentation.StatusSuccess, a.now().Sub(start))
	a.logger.Info("user signed in", logging.Session(session.ID), logging.UserHash(session.Email))
	return session, nil
}

// SaveToken stores tok for the session.
func (a *Authenticator) SaveToken(ctx context.Context, session Session, tok *oauth2.Token) error {
	if err := a.store.SaveToken(ctx, session.ID, tok); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	if session.Email != "" {
		a.mu.Lock()
		a.emails[session.ID] = session.Email
		a.mu.Unlock()
	}
	return nil
}

// Email returns the address of the signed-in user, if the ID token carried one.
func (a *Authenticator) Email(sessionID string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.emails[sessionID]
}

// HasSession reports whether a token is stored for the session.
func (a *Authenticator) HasSession(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}
	tok, err := a.store.GetToken(ctx, sessionID)
	return err == nil && tok != nil
}

// GetValidAccessToken returns a token for the session that is valid for at
// least RefreshThreshold, refreshing it when needed. When the refresh fails
// the stored token is returned as is, unless it has no access token at all.
func (a *Authenticator) GetValidAccessToken(ctx context.Context, sessionID string) (*oauth2.Token, error) {
	if sessionID == "" {
		return nil, ErrUnauthenticated
	}
	tok, err := a.store.GetToken(ctx, sessionID)
	if err != nil || tok == nil {
		return nil, ErrUnauthenticated
	}
	if !a.needsRefresh(tok) {
		return tok, nil
	}

	v, err, _ := a.refreshes.Do(sessionID, func() (any, error) {
		return a.refresh(ctx, sessionID, tok)
	})
	if err != nil {
		if tok.AccessToken == "" {
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		a.logger.Warn("token refresh failed, using stored token",
			logging.Session(sessionID), logging.Err(err))
		return tok, nil
	}
	return v.(*oauth2.Token), nil
}

func (a *Authenticator) needsRefresh(tok *oauth2.Token) bool {
	if tok.AccessToken == "" {
		return true
	}
	if tok.Expiry.IsZero() {
		return false
	}
	return !tok.Expiry.After(a.now().Add(RefreshThreshold))
}

func (a *Authenticator) refresh(ctx context.Context, sessionID string, old *oauth2.Token) (*oauth2.Token, error) {
	if old.RefreshToken == "" {
		a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultExpired)
		return nil, fmt.Errorf("token expired and no refresh token is available")
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh)
	defer span.End()
	start := a.now()

	src := a.conf.TokenSource(a.clientContext(ctx), &oauth2.Token{RefreshToken: old.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		a.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh, instrumentation.StatusError, a.now().Sub(start))
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = old.RefreshToken
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = a.now().Add(defaultTokenLifetime)
	}
	if err := a.store.SaveToken(ctx, sessionID, tok); err != nil {
		a.logger.Warn("failed to store refreshed token", logging.Session(sessionID), logging.Err(err))
	}

	instrumentation.SetSpanSuccess(span)
	a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	a.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh, instrumentation.StatusSuccess, a.now().Sub(start))
	a.logger.Debug("token refreshed", logging.Session(sessionID))
	return tok, nil
}

// TokenSource serves GetValidAccessToken for the session.
func (a *Authenticator) TokenSource(ctx context.Context, sessionID string) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, auth: a, session: sessionID}
}

// HTTPClient returns a client that authenticates its requests as the session.
func (a *Authenticator) HTTPClient(ctx context.Context, sessionID string) *http.Client {
	return oauth2.NewClient(a.clientContext(ctx), a.TokenSource(ctx, sessionID))
}

// Logout forgets the session's token when the store supports deletion.
func (a *Authenticator) Logout(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	delete(a.emails, sessionID)
	a.mu.Unlock()

	if d, ok := a.store.(tokenDeleter); ok {
		if err := d.DeleteToken(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete token: %w", err)
		}
	}
	a.logger.Info("user signed out", logging.Session(sessionID))
	return nil
}

func (a *Authenticator) clientContext(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

type sessionTokenSource struct {
	ctx     context.Context
	auth    *Authenticator
	session string
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	return s.auth.GetValidAccessToken(s.ctx, s.session)
}

// emailFromIDToken reads the email claim of the ID token returned with the
// token. The token comes straight from Google's token endpoint, so the
// signature is not checked.
func emailFromIDToken(tok *oauth2.Token) string {
	raw, _ := tok.Extra("id_token").(string)
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return ""
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	return claims.Email
}
