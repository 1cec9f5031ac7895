package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestInitMeterProvider(t *testing.T) {
	cfg := Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
	}

	mp, err := InitMeterProvider(cfg)
	require.NoError(t, err, "Should initialize meter provider without error")
	require.NotNil(t, mp, "Meter provider should not be nil")
	require.NotNil(t, mp.provider, "Provider should not be nil")
	require.NotNil(t, mp.exporter, "Exporter should not be nil")

	// Clean up
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	err = mp.Shutdown(context.Background(), logger)
	assert.NoError(t, err, "Should shutdown without error")
}

func TestInitAPIMetrics(t *testing.T) {
	mp, err := InitMeterProvider(Config{ServiceName: "test-service", ServiceVersion: "1.0.0", Environment: "test"})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	defer func() { _ = mp.Shutdown(context.Background(), logger) }()

	metrics, err := InitAPIMetrics(logger)
	require.NoError(t, err)
	require.NotNil(t, metrics.requestDuration)
	require.NotNil(t, metrics.requestCounter)
	require.NotNil(t, metrics.errorCounter)
	require.NotNil(t, metrics.activeRequests)
	require.NotNil(t, metrics.lookupCounter)

	ctx := ContextWithAPIMetrics(context.Background(), metrics)
	assert.Same(t, metrics, APIMetricsFromContext(ctx))
	assert.Nil(t, APIMetricsFromContext(context.Background()))

	// Recording on a nil receiver is a no-op.
	var none *APIMetrics
	none.RecordRequest(ctx, time.Millisecond, "/api/collections", 200)
	none.RecordLookup(ctx, "rest", true)
}

func TestCatalogRefreshMetrics_LastSuccess(t *testing.T) {
	mp, err := InitMeterProvider(Config{ServiceName: "test-service"})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	defer func() { _ = mp.Shutdown(context.Background(), logger) }()

	metrics, err := InitCatalogRefreshMetrics(logger)
	require.NoError(t, err)
	assert.True(t, metrics.LastSuccess().IsZero())

	metrics.RecordRefresh(context.Background(), 5*time.Millisecond, false, "poll")
	assert.True(t, metrics.LastSuccess().IsZero())

	metrics.RecordRefresh(context.Background(), 5*time.Millisecond, true, "manual")
	assert.WithinDuration(t, time.Now(), metrics.LastSuccess(), 2*time.Second)
}

func TestParseOTLPProtocol(t *testing.T) {
	tests := []struct {
		input    string
		expected otlpProtocol
		wantErr  bool
	}{
		{"", otlpProtocolGRPC, false},
		{"GRPC", otlpProtocolGRPC, false},
		{"http", otlpProtocolHTTP, false},
		{"http/protobuf", otlpProtocolHTTP, false},
		{"thrift", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseOTLPProtocol(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBuildTLSConfig_FileNotFound(t *testing.T) {
	// Missing CA file should surface a clear error.
	_, err := buildTLSConfig(OTLPExporterConfig{
		TLSCertFile: "/nonexistent/ca.pem",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read OTLP TLS CA file")
}

func TestBuildTLSConfig_InvalidCertFormat(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ca.pem"

	// Write a non-PEM payload to trigger parse failure.
	require.NoError(t, os.WriteFile(path, []byte("not-a-cert"), 0600))

	_, err := buildTLSConfig(OTLPExporterConfig{
		TLSCertFile: path,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse OTLP TLS CA file")
}

func TestBuildTLSConfig_MissingClientKeyPair(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/client.crt"

	// Only set the cert path to ensure missing key is rejected.
	require.NoError(t, os.WriteFile(path, []byte("not-a-cert"), 0600))

	_, err := buildTLSConfig(OTLPExporterConfig{
		TLSClientCertFile: path,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTLP TLS client cert and key must both be set")
}

func TestResolveExporterSettings(t *testing.T) {
	s, err := resolveExporterSettings(OTLPExporterConfig{
		Endpoint:         "collector:4317",
		Insecure:         true,
		TLSCertFile:      "/ignored/when/insecure.pem",
		Compression:      "GZIP",
		RetryEnabled:     true,
		RetryMaxAttempts: 0,
	})
	require.NoError(t, err)
	assert.Nil(t, s.tls)
	assert.True(t, s.gzip)
	assert.False(t, s.retry, "retry needs at least one attempt")
	assert.False(t, s.endpointIsURL())

	s, err = resolveExporterSettings(OTLPExporterConfig{
		Endpoint:         "https://collector.test:4318",
		RetryEnabled:     true,
		RetryMaxAttempts: 3,
	})
	require.NoError(t, err)
	require.NotNil(t, s.tls)
	assert.True(t, s.retry)
	assert.True(t, s.endpointIsURL())

	_, err = resolveExporterSettings(OTLPExporterConfig{TLSCertFile: "/nonexistent/ca.pem"})
	require.Error(t, err)
}

func TestTraceSamplerForRatio_Boundaries(t *testing.T) {
	never := traceSamplerForRatio(0)
	always := traceSamplerForRatio(1)

	decisionNever := never.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{1},
		Name:          "test",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decisionNever)

	decisionAlways := always.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{2},
		Name:          "test",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decisionAlways)
}

func TestTraceSamplerForRatio_ParentAwareMidRange(t *testing.T) {
	sampler := traceSamplerForRatio(0.5)

	parentSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{3},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	decisionSampledParent := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentSampled,
		TraceID:       trace.TraceID{4},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decisionSampledParent)

	parentNotSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{5},
		SpanID:  trace.SpanID{2},
		Remote:  true,
	}))
	decisionUnsampledParent := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentNotSampled,
		TraceID:       trace.TraceID{6},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decisionUnsampledParent)
}
