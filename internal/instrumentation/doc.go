// Package instrumentation wires OpenTelemetry metrics and tracing for inboxpilot.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds by method, route and status
//   - active_sessions: signed-in browser sessions
//
// Google:
//   - google_api_operations_total, google_api_operation_duration_seconds
//   - oauth_auth_total, oauth_token_refresh_total
//
// Inference relay and assistant:
//   - generations_total, generation_duration_seconds by status
//   - stream_fragments_total by kind (recognized, unrecognized, transport_failure)
//   - upstream_errors_total by upstream status (0 = unreachable)
//   - assistant_dispatch_total by intent and status
//
// MCP:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are started for Google API calls (google.<service>.<operation>),
// upstream generations (llm.generate) and MCP tools (tool.<name>).
//
// # Configuration
//
// DefaultConfig reads INSTRUMENTATION_ENABLED, METRICS_EXPORTER (prometheus,
// otlp, stdout), TRACING_EXPORTER (otlp, stdout, none),
// OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_TRACES_SAMPLER_ARG and OTEL_SERVICE_NAME.
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordGeneration(ctx, model, instrumentation.StatusSuccess, time.Since(start))
package instrumentation
