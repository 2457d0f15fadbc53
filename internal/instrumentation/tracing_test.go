package instrumentation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestStartSpans(t *testing.T) {
	recorder := recordSpans(t)
	ctx := context.Background()

	_, span := StartToolSpan(ctx, "assistant_run", "summary")
	SetSpanSuccess(span)
	span.End()

	_, span = StartGoogleAPISpan(ctx, ServiceGmail, OperationGet)
	SetSpanError(span, errors.New("boom"))
	span.End()

	_, span = StartGenerationSpan(ctx, "llama3.2-vision:latest")
	SetSpanError(span, nil)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 3)

	tests := []struct {
		name   string
		kind   trace.SpanKind
		status codes.Code
		attrs  map[string]string
	}{
		{
			name:   "tool.assistant_run",
			kind:   trace.SpanKindServer,
			status: codes.Ok,
			attrs:  map[string]string{SpanAttrTool: "assistant_run", SpanAttrIntent: "summary"},
		},
		{
			name:   "google.gmail.get",
			kind:   trace.SpanKindClient,
			status: codes.Error,
			attrs:  map[string]string{SpanAttrService: ServiceGmail, SpanAttrOperation: OperationGet},
		},
		{
			name:   "llm.generate",
			kind:   trace.SpanKindClient,
			status: codes.Unset,
			attrs:  map[string]string{SpanAttrModel: "llama3.2-vision:latest"},
		},
	}

	for i, tt := range tests {
		got := ended[i]
		assert.Equal(t, tt.name, got.Name())
		assert.Equal(t, tt.kind, got.SpanKind(), tt.name)
		assert.Equal(t, tt.status, got.Status().Code, tt.name)

		attrs := make(map[string]string)
		for _, kv := range got.Attributes() {
			attrs[string(kv.Key)] = kv.Value.AsString()
		}
		assert.Equal(t, tt.attrs, attrs, tt.name)
	}
}

func TestStartToolSpan_NoIntent(t *testing.T) {
	recorder := recordSpans(t)

	_, span := StartToolSpan(context.Background(), "mailbox_list_messages", "")
	span.End()

	require.Len(t, recorder.Ended(), 1)
	assert.Len(t, recorder.Ended()[0].Attributes(), 1)
}
