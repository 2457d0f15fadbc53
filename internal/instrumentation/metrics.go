package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	requestBuckets    = []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 120.0}
	callBuckets       = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}
	generationBuckets = []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0}
)

// timed pairs a counter with a duration histogram sharing its attributes.
type timed struct {
	total   metric.Int64Counter
	seconds metric.Float64Histogram
}

func (t timed) record(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if t.total == nil || t.seconds == nil {
		return
	}
	opt := metric.WithAttributes(attrs...)
	t.total.Add(ctx, 1, opt)
	t.seconds.Record(ctx, d.Seconds(), opt)
}

// Metrics records the service's OpenTelemetry instruments. The zero value and
// a nil *Metrics record nothing.
type Metrics struct {
	httpRequests   timed
	activeSessions metric.Int64UpDownCounter

	googleAPI    timed
	oauthAuth    metric.Int64Counter
	oauthRefresh metric.Int64Counter

	generations       timed
	streamFragments   metric.Int64Counter
	upstreamErrors    metric.Int64Counter
	assistantDispatch metric.Int64Counter

	tools timed

	detailedLabels bool
}

// instruments creates instruments on a meter and keeps every creation error.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) counter(name, description, unit string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("%s: %w", name, err))
	}
	return c
}

func (in *instruments) timed(counterName, histogramName, description, unit string, buckets []float64) timed {
	h, err := in.meter.Float64Histogram(histogramName,
		metric.WithDescription("Duration of "+description+" in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("%s: %w", histogramName, err))
	}
	return timed{
		total:   in.counter(counterName, "Total number of "+description, unit),
		seconds: h,
	}
}

// NewMetrics creates all instruments on meter. detailedLabels adds the model
// name to generation metrics and the account domain to tool metrics.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	in := &instruments{meter: meter}

	sessions, err := meter.Int64UpDownCounter("active_sessions",
		metric.WithDescription("Number of signed-in browser sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("active_sessions: %w", err))
	}

	m := &Metrics{
		httpRequests:   in.timed("http_requests_total", "http_request_duration_seconds", "HTTP requests", "{request}", requestBuckets),
		activeSessions: sessions,

		googleAPI:    in.timed("google_api_operations_total", "google_api_operation_duration_seconds", "Google API operations", "{operation}", callBuckets),
		oauthAuth:    in.counter("oauth_auth_total", "Total number of Google sign-in attempts", "{attempt}"),
		oauthRefresh: in.counter("oauth_token_refresh_total", "Total number of Google token refresh attempts", "{attempt}"),

		generations:       in.timed("generations_total", "generation_duration_seconds", "relayed generations", "{generation}", generationBuckets),
		streamFragments:   in.counter("stream_fragments_total", "Decoded stream fragments by kind", "{fragment}"),
		upstreamErrors:    in.counter("upstream_errors_total", "Rejected or unreachable upstream requests", "{error}"),
		assistantDispatch: in.counter("assistant_dispatch_total", "Assistant actions dispatched", "{action}"),

		tools: in.timed("mcp_tool_invocations_total", "mcp_tool_duration_seconds", "MCP tool invocations", "{invocation}", callBuckets),

		detailedLabels: detailedLabels,
	}
	if len(in.errs) > 0 {
		return nil, fmt.Errorf("create instruments: %w", errors.Join(in.errs...))
	}
	return m, nil
}

// RecordHTTPRequest records a request by method, route pattern and status.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.record(ctx, duration,
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", strconv.Itoa(statusCode)),
	)
}

// RecordGoogleAPIOperation records a Gmail or OAuth call. Operation is one of
// the Operation* constants.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.googleAPI.record(ctx, duration,
		attribute.String("service", service),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil {
		return
	}
	add(ctx, m.oauthAuth, attribute.String("result", result))
}

// RecordOAuthTokenRefresh counts a refresh with an OAuthResult* value.
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil {
		return
	}
	add(ctx, m.oauthRefresh, attribute.String("result", result))
}

// RecordGeneration records a relayed generation. A stream that ended with the
// failure marker counts as an error.
func (m *Metrics) RecordGeneration(ctx context.Context, model, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("status", status)}
	if m.detailedLabels && model != "" {
		attrs = append(attrs, attribute.String("model", model))
	}
	m.generations.record(ctx, duration, attrs...)
}

// RecordStreamFragment counts one decoded fragment with a Fragment* kind.
func (m *Metrics) RecordStreamFragment(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	add(ctx, m.streamFragments, attribute.String("kind", kind))
}

// RecordUpstreamError counts a failed upstream request. Status 0 means the
// upstream could not be reached.
func (m *Metrics) RecordUpstreamError(ctx context.Context, statusCode int) {
	if m == nil {
		return
	}
	add(ctx, m.upstreamErrors, attribute.String("status", strconv.Itoa(statusCode)))
}

func (m *Metrics) RecordAssistantDispatch(ctx context.Context, intent, status string) {
	if m == nil {
		return
	}
	add(ctx, m.assistantDispatch,
		attribute.String("intent", intent),
		attribute.String("status", status),
	)
}

func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	m.RecordToolInvocationWithAccount(ctx, toolName, status, "", duration)
}

// RecordToolInvocationWithAccount records an MCP tool call. The account is
// reduced to its domain and only attached with detailed labels.
func (m *Metrics) RecordToolInvocationWithAccount(ctx context.Context, toolName, status, account string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tool", toolName),
		attribute.String("status", status),
	}
	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String("account", ExtractUserDomain(account)))
	}
	m.tools.record(ctx, duration, attrs...)
}

func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	m.addSessions(ctx, 1)
}

func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	m.addSessions(ctx, -1)
}

func (m *Metrics) addSessions(ctx context.Context, delta int64) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, delta)
}

func add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
