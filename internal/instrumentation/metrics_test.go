package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T, detailed bool) (*Metrics, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
		DetailedLabels:  detailed,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	require.NotNil(t, provider.Metrics())
	return provider.Metrics(), ctx
}

func TestMetrics_RecordAll(t *testing.T) {
	for _, detailed := range []bool{false, true} {
		metrics, ctx := newTestMetrics(t, detailed)

		// None of these should panic.
		metrics.RecordHTTPRequest(ctx, "POST", "/generate", 200, 3*time.Second)
		metrics.RecordHTTPRequest(ctx, "GET", "/api/emails", 401, 5*time.Millisecond)
		metrics.RecordGoogleAPIOperation(ctx, ServiceGmail, OperationList, StatusSuccess, 200*time.Millisecond)
		metrics.RecordGoogleAPIOperation(ctx, ServiceOAuth, OperationRefresh, StatusError, 80*time.Millisecond)
		metrics.RecordOAuthAuth(ctx, OAuthResultSuccess)
		metrics.RecordOAuthTokenRefresh(ctx, OAuthResultFailure)
		metrics.RecordGeneration(ctx, "llama3.2-vision:latest", StatusSuccess, 12*time.Second)
		metrics.RecordStreamFragment(ctx, FragmentRecognized)
		metrics.RecordStreamFragment(ctx, FragmentFailure)
		metrics.RecordUpstreamError(ctx, 0)
		metrics.RecordUpstreamError(ctx, 503)
		metrics.RecordAssistantDispatch(ctx, "summary", StatusSuccess)
		metrics.RecordToolInvocation(ctx, "assistant_run", StatusSuccess, time.Second)
		metrics.RecordToolInvocationWithAccount(ctx, "mailbox_list_messages", StatusError, "user@example.com", time.Second)
		metrics.IncrementActiveSessions(ctx)
		metrics.DecrementActiveSessions(ctx)
	}
}

func TestMetrics_ZeroValueIsNoop(t *testing.T) {
	ctx := context.Background()
	metrics := &Metrics{}

	metrics.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
	metrics.RecordGoogleAPIOperation(ctx, ServiceGmail, OperationGet, StatusSuccess, time.Millisecond)
	metrics.RecordOAuthAuth(ctx, OAuthResultSuccess)
	metrics.RecordOAuthTokenRefresh(ctx, OAuthResultExpired)
	metrics.RecordGeneration(ctx, "m", StatusError, time.Millisecond)
	metrics.RecordStreamFragment(ctx, FragmentUnrecognized)
	metrics.RecordUpstreamError(ctx, 500)
	metrics.RecordAssistantDispatch(ctx, "ask", StatusError)
	metrics.RecordToolInvocation(ctx, "t", StatusSuccess, time.Millisecond)
	metrics.IncrementActiveSessions(ctx)
	metrics.DecrementActiveSessions(ctx)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var metrics *Metrics
	ctx := context.Background()

	metrics.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
	metrics.RecordAssistantDispatch(ctx, "summary", StatusSuccess)
	metrics.RecordToolInvocationWithAccount(ctx, "t", StatusSuccess, "a@b.c", time.Millisecond)
	metrics.DecrementActiveSessions(ctx)
}
