// Package server holds the state shared by the HTTP and MCP surfaces of
// inboxpilot and the small HTTP servers around them.
//
// # Key Components
//
// ServerContext owns one session per signed-in user: a lazily created Gmail
// client and the user's conversation store. It also carries the shared
// assistant dispatcher, the metrics and the audit logger. Sessions idle for
// longer than the session timeout are dropped, as are sessions ended with
// EndSession.
//
// HealthChecker serves /healthz and /readyz. Readiness includes the named
// checks registered with AddCheck, such as the reachability of the inference
// upstream.
//
// MetricsServer serves Prometheus metrics on a dedicated port, away from the
// user-facing listener.
package server
