package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer name used by every span this service starts.
const TracerName = "github.com/teemow/inboxpilot"

// Span attribute keys.
const (
	SpanAttrTool         = "mcp.tool"
	SpanAttrService      = "google.service"
	SpanAttrOperation    = "google.operation"
	SpanAttrIntent       = "assistant.intent"
	SpanAttrModel        = "llm.model"
	SpanAttrFragments    = "llm.fragments"
	SpanAttrUpstreamCode = "llm.upstream_status"
)

func start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

// StartToolSpan starts a server span named tool.<toolName>. An intent, when
// the tool takes one, is attached as assistant.intent.
func StartToolSpan(ctx context.Context, toolName, intent string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String(SpanAttrTool, toolName)}
	if intent != "" {
		attrs = append(attrs, attribute.String(SpanAttrIntent, intent))
	}
	return start(ctx, "tool."+toolName, trace.SpanKindServer, attrs...)
}

// StartGoogleAPISpan starts a client span named google.<service>.<operation>.
func StartGoogleAPISpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return start(ctx, "google."+service+"."+operation, trace.SpanKindClient,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
}

// StartGenerationSpan starts a client span around one upstream generation.
func StartGenerationSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return start(ctx, "llm.generate", trace.SpanKindClient, attribute.String(SpanAttrModel, model))
}

// SetSpanError marks the span failed. A nil err is ignored.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
