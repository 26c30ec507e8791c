package instrumentation

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearInstrumentationEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OTEL_SERVICE_NAME", "INSTRUMENTATION_ENABLED", "METRICS_EXPORTER", "TRACING_EXPORTER",
		"OTEL_TRACES_SAMPLER_ARG", "AUDIT_LOGGING_ENABLED", "AUDIT_LOGGING_INCLUDE_PII",
		"AUDIT_LOGGING_LEVEL", "PROMETHEUS_ENDPOINT", "METRICS_DETAILED_LABELS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaultConfig(t *testing.T) {
	clearInstrumentationEnv(t)

	c := DefaultConfig()
	assert.Equal(t, "voicecal", c.ServiceName)
	assert.Equal(t, "unknown", c.ServiceVersion)
	assert.True(t, c.Enabled)
	assert.Equal(t, ExporterPrometheus, c.MetricsExporter)
	assert.Equal(t, ExporterNone, c.TracingExporter)
	assert.InDelta(t, 0.1, c.TraceSamplingRate, 1e-9)
	assert.Equal(t, "/metrics", c.PrometheusEndpoint)
	assert.False(t, c.DetailedLabels)
	assert.Equal(t, AuditLoggingConfig{Enabled: true, LogLevel: "info"}, c.AuditLogging)
}

func TestDefaultConfig_FromEnv(t *testing.T) {
	clearInstrumentationEnv(t)
	t.Setenv("OTEL_SERVICE_NAME", "voicecal-staging")
	t.Setenv("INSTRUMENTATION_ENABLED", "false")
	t.Setenv("METRICS_EXPORTER", ExporterStdout)
	t.Setenv("TRACING_EXPORTER", ExporterOTLP)
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
	t.Setenv("PROMETHEUS_ENDPOINT", "/internal/metrics")
	t.Setenv("AUDIT_LOGGING_INCLUDE_PII", "true")
	t.Setenv("AUDIT_LOGGING_LEVEL", "debug")

	c := DefaultConfig()
	assert.Equal(t, "voicecal-staging", c.ServiceName)
	assert.False(t, c.Enabled)
	assert.Equal(t, ExporterStdout, c.MetricsExporter)
	assert.Equal(t, ExporterOTLP, c.TracingExporter)
	assert.InDelta(t, 0.5, c.TraceSamplingRate, 1e-9)
	assert.Equal(t, "/internal/metrics", c.PrometheusEndpoint)
	assert.True(t, c.AuditLogging.IncludePII)
	assert.Equal(t, "debug", c.AuditLogging.LogLevel)
}

func TestDefaultConfig_InvalidValueFallsBack(t *testing.T) {
	clearInstrumentationEnv(t)
	t.Setenv("INSTRUMENTATION_ENABLED", "not_a_bool")

	c := DefaultConfig()
	assert.True(t, c.Enabled)
	assert.Equal(t, "voicecal", c.ServiceName)
}

func TestConfig_Validate(t *testing.T) {
	base := func(mutate func(*Config)) Config {
		c := Config{
			ServiceName:     "voicecal",
			Enabled:         true,
			MetricsExporter: ExporterPrometheus,
			TracingExporter: ExporterNone,
		}
		mutate(&c)
		return c
	}

	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "prometheus only", config: base(func(*Config) {})},
		{name: "empty exporters", config: base(func(c *Config) { c.MetricsExporter, c.TracingExporter = "", "" })},
		{name: "otlp with endpoint", config: base(func(c *Config) {
			c.MetricsExporter, c.TracingExporter = ExporterOTLP, ExporterOTLP
			c.OTLPEndpoint = "collector:4318"
		})},
		{name: "full sampling", config: base(func(c *Config) { c.TraceSamplingRate = 1 })},
		{name: "negative sampling", config: base(func(c *Config) { c.TraceSamplingRate = -0.1 }), wantErr: "sampling rate"},
		{name: "sampling above one", config: base(func(c *Config) { c.TraceSamplingRate = 1.01 }), wantErr: "sampling rate"},
		{name: "unknown metrics exporter", config: base(func(c *Config) { c.MetricsExporter = "graphite" }), wantErr: "invalid metrics exporter"},
		{name: "tracing exporter none is not a metrics exporter", config: base(func(c *Config) { c.MetricsExporter = ExporterNone }), wantErr: "invalid metrics exporter"},
		{name: "unknown tracing exporter", config: base(func(c *Config) { c.TracingExporter = "jaeger" }), wantErr: "invalid tracing exporter"},
		{name: "otlp traces without endpoint", config: base(func(c *Config) { c.TracingExporter = ExporterOTLP }), wantErr: "OTLP endpoint is required"},
		{name: "otlp metrics without endpoint", config: base(func(c *Config) { c.MetricsExporter = ExporterOTLP }), wantErr: "OTLP endpoint is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
