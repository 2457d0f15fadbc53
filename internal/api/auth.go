package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/inboxpilot/internal/logging"
)

const (
	// SessionCookie carries the session id of a signed-in browser.
	SessionCookie = "inboxpilot_session"
	stateCookie   = "inboxpilot_oauth_state"

	sessionMaxAge = 30 * 24 * time.Hour
	stateMaxAge   = 10 * time.Minute
)

type sessionKey struct{}

// SessionFromContext returns the session id stored by RequireSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)
	return id, ok && id != ""
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireSession rejects requests without a valid session cookie.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value == "" || h.auth == nil || !h.auth.HasSession(r.Context(), cookie.Value) {
			writeErrorMessage(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, cookie.Value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Login redirects to the Google consent screen.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	h.setCookie(w, stateCookie, state, stateMaxAge)
	http.Redirect(w, r, h.auth.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the sign-in started by Login.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), h.logger)
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		writeErrorMessage(w, http.StatusBadRequest, "Google sign-in failed: "+e)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	state := q.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		writeErrorMessage(w, http.StatusBadRequest, "invalid OAuth state")
		return
	}
	h.clearCookie(w, stateCookie)

	code := q.Get("code")
	if code == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	session, err := h.auth.Exchange(r.Context(), code)
	if err != nil {
		logger.Warn("google sign-in failed", logging.Err(err))
		writeErrorMessage(w, http.StatusBadGateway, "failed to exchange authorization code")
		return
	}

	logger.Info("user signed in", logging.Session(session.ID), logging.UserHash(session.Email))
	h.setCookie(w, SessionCookie, session.ID, sessionMaxAge)
	http.Redirect(w, r, h.uiURL, http.StatusFound)
}

// Logout forgets the session and its token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			logging.FromContext(r.Context(), h.logger).Warn("logout failed", logging.Err(err))
		}
		h.sc.EndSession(cookie.Value)
	}
	h.clearCookie(w, SessionCookie)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Session returns the signed-in user.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	id, _ := SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"email":         h.auth.Email(id),
	})
}
