package server

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"

	// DefaultCheckTimeout bounds each named readiness check.
	DefaultCheckTimeout = 2 * time.Second
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// Router is the subset of a mux the health endpoints are registered on.
// Both *http.ServeMux and chi.Router satisfy it.
type Router interface {
	Handle(pattern string, handler http.Handler)
}

// HealthChecker provides health check endpoints for Kubernetes probes.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewHealthChecker creates a new HealthChecker. sc may be nil.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
		checks:        make(map[string]CheckFunc),
	}
	h.ready.Store(true)
	return h
}

// AddCheck registers a named readiness check.
func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Sessions int    `json:"sessions"`
}

func (h *HealthChecker) shuttingDown() bool {
	return h.serverContext != nil && h.serverContext.IsShutdown()
}

// state reports "not ready" ahead of "shutting down".
func (h *HealthChecker) state() string {
	switch {
	case !h.ready.Load():
		return healthStatusNotReady
	case h.shuttingDown():
		return healthStatusShuttingDown
	}
	return healthStatusOK
}

// LivenessHandler always answers 200 while the process serves requests.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// runChecks runs every named check concurrently, each under
// DefaultCheckTimeout, and maps the name to "ok" or the error text.
func (h *HealthChecker) runChecks(ctx context.Context) map[string]string {
	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make(map[string]string, len(checks)+2)
	)
	for name, check := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, DefaultCheckTimeout)
			defer cancel()

			result := healthStatusOK
			if err := check(checkCtx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ReadinessHandler answers 503 unless the checker is ready, the server is
// not shutting down and every named check passes.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks := h.runChecks(r.Context())
		checks["ready"], checks["shutdown"] = healthStatusOK, healthStatusOK
		if !h.ready.Load() {
			checks["ready"] = healthStatusNotReady
		}
		if h.shuttingDown() {
			checks["shutdown"] = healthStatusShuttingDown
		}

		resp, code := HealthResponse{Status: healthStatusOK, Checks: checks}, http.StatusOK
		for _, result := range checks {
			if result != healthStatusOK {
				resp.Status, code = healthStatusNotReady, http.StatusServiceUnavailable
				break
			}
		}
		writeHealth(w, code, resp)
	})
}

// DetailedHealthHandler reports uptime and the number of live sessions.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := DetailedHealthResponse{
			Status: h.state(),
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}
		if h.serverContext != nil {
			resp.Sessions = h.serverContext.SessionCount()
		}
		code := http.StatusOK
		if resp.Status != healthStatusOK {
			code = http.StatusServiceUnavailable
		}
		writeHealth(w, code, resp)
	})
}

// RegisterHealthEndpoints mounts /healthz, /readyz and /healthz/detailed.
func (h *HealthChecker) RegisterHealthEndpoints(r Router) {
	r.Handle("/healthz", h.LivenessHandler())
	r.Handle("/readyz", h.ReadinessHandler())
	r.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func writeHealth(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
