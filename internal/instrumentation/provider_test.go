package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name           string
		config         Config
		wantErr        string
		wantEnabled    bool
		wantPrometheus bool
	}{
		{
			name:   "disabled",
			config: Config{},
		},
		{
			name:           "prometheus",
			config:         Config{Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone},
			wantEnabled:    true,
			wantPrometheus: true,
		},
		{
			name:        "stdout",
			config:      Config{Enabled: true, MetricsExporter: ExporterStdout, TracingExporter: ExporterStdout, TraceSamplingRate: 1},
			wantEnabled: true,
		},
		{
			name:    "unknown metrics exporter",
			config:  Config{Enabled: true, MetricsExporter: "invalid", TracingExporter: ExporterNone},
			wantErr: "unsupported metrics exporter",
		},
		{
			name:    "unknown tracing exporter",
			config:  Config{Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: "invalid"},
			wantErr: "unsupported tracing exporter",
		},
		{
			name:    "otlp tracing without endpoint",
			config:  Config{Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: ExporterOTLP},
			wantErr: "OTLP endpoint is required",
		},
		{
			name:    "otlp metrics without endpoint",
			config:  Config{Enabled: true, MetricsExporter: ExporterOTLP, TracingExporter: ExporterNone},
			wantErr: "OTLP endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tt.config.ServiceName = "test-service"
			tt.config.ServiceVersion = "1.0.0"

			provider, err := NewProvider(ctx, tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.wantEnabled, provider.Enabled())
			assert.Equal(t, tt.wantPrometheus, provider.PrometheusEnabled())
			assert.NotNil(t, provider.Metrics())
			assert.NotNil(t, provider.Tracer("test"))
			assert.NoError(t, provider.Shutdown(ctx))
		})
	}
}

func TestProvider_DisabledTracerIsNoop(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "test-service"})
	require.NoError(t, err)

	_, span := provider.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.False(t, span.IsRecording())
}
