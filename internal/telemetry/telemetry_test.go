package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		cfg             *Config
		wantNoOpMeter   bool
		wantNoOpTracer  bool
		wantErrContains string
	}{
		{name: "no config", wantNoOpMeter: true, wantNoOpTracer: true},
		{name: "disabled", cfg: &Config{}, wantNoOpMeter: true, wantNoOpTracer: true},
		{
			name:           "sections disabled",
			cfg:            &Config{Enabled: true, Tracing: &TracingConfig{}, Metrics: &MetricsConfig{}},
			wantNoOpMeter:  true,
			wantNoOpTracer: true,
		},
		{
			name:           "prometheus metrics only",
			cfg:            &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Exporter: ExporterPrometheus}},
			wantNoOpTracer: true,
		},
		{
			name:            "invalid config",
			cfg:             &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 2}},
			wantErrContains: "invalid telemetry configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Enabled providers install themselves globally
			ctx := context.Background()
			tel, err := New(ctx, WithTelemetryConfig(tt.cfg))
			if tt.wantErrContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrContains)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = tel.Shutdown(ctx) })

			_, noopTracer := tel.TracerProvider().(tracenoop.TracerProvider)
			assert.Equal(t, tt.wantNoOpTracer, noopTracer)
			_, noopMeter := tel.MeterProvider().(noop.MeterProvider)
			assert.Equal(t, tt.wantNoOpMeter, noopMeter)
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	ctx := context.Background()

	tel, err := New(ctx)
	require.NoError(t, err)
	_, _, ok := tel.MetricsHandler()
	assert.False(t, ok, "no handler without the prometheus exporter")

	tel, err = New(ctx, WithTelemetryConfig(&Config{
		Enabled: true,
		Metrics: &MetricsConfig{Enabled: true, Exporter: ExporterPrometheus, Path: "/internal/metrics"},
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(ctx) })

	_, isSDK := tel.MeterProvider().(*sdkmetric.MeterProvider)
	require.True(t, isSDK)

	m, err := NewSyncMetrics(tel.MeterProvider())
	require.NoError(t, err)
	m.RecordStore(ctx, "rp", "", 0, 7)

	path, handler, ok := tel.MetricsHandler()
	require.True(t, ok)
	assert.Equal(t, "/internal/metrics", path)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "catalog_sync_products_written_total")
}
