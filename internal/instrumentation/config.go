package instrumentation

import (
	"fmt"
	"os"
	"slices"
	"strconv"
)

// Exporter names accepted by METRICS_EXPORTER and TRACING_EXPORTER.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

var (
	metricsExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	tracingExporters = []string{ExporterOTLP, ExporterStdout, ExporterNone}
)

// Config selects exporters and labelling for a Provider.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Enabled false yields a Provider whose Metrics record nothing.
	Enabled bool

	MetricsExporter string
	TracingExporter string

	// OTLPEndpoint is host:port without a scheme. Required by either OTLP
	// exporter.
	OTLPEndpoint string
	// OTLPInsecure sends OTLP over plain HTTP. Local collectors only.
	OTLPInsecure bool

	// TraceSamplingRate is the ratio of root spans kept, in [0, 1].
	TraceSamplingRate float64

	// DetailedLabels adds the model name and account domain to metrics.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig controls the audit trail of MCP tool calls.
type AuditLoggingConfig struct {
	Enabled bool
	// IncludePII logs the full account address instead of its domain.
	IncludePII bool
}

// DefaultConfig reads the instrumentation settings from the environment.
func DefaultConfig() Config {
	return Config{
		ServiceName:       envString("OTEL_SERVICE_NAME", "inboxpilot"),
		ServiceVersion:    "unknown",
		Enabled:           envBool("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:   envString("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:   envString("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:      envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:      envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate: envFloat("OTEL_TRACES_SAMPLER_ARG", 0.1),
		DetailedLabels:    envBool("METRICS_DETAILED_LABELS", false),
		AuditLogging: AuditLoggingConfig{
			Enabled:    envBool("AUDIT_LOGGING_ENABLED", true),
			IncludePII: envBool("AUDIT_LOGGING_INCLUDE_PII", false),
		},
	}
}

// Validate reports the first inconsistent setting. Empty exporter names are
// accepted and rejected later by NewProvider if instrumentation is enabled.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}
	if c.MetricsExporter != "" && !slices.Contains(metricsExporters, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: %v", c.MetricsExporter, metricsExporters)
	}
	if c.TracingExporter != "" && !slices.Contains(tracingExporters, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: %v", c.TracingExporter, tracingExporters)
	}
	if c.OTLPEndpoint != "" {
		return nil
	}
	if c.TracingExporter == ExporterOTLP {
		return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
	}
	if c.MetricsExporter == ExporterOTLP {
		return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
	}
	return nil
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// envBool and envFloat fall back on unparsable values as well as unset ones.
func envBool(key string, fallback bool) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return parsed
}
