package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// APIMetrics holds the request metrics of the HTTP and GraphQL surfaces.
type APIMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	lookupCounter   metric.Int64Counter
	resolveCounter  metric.Int64Counter
}

// InitAPIMetrics creates the API instruments on the global meter provider.
func InitAPIMetrics(logger *slog.Logger) (*APIMetrics, error) {
	meter := otel.Meter(MeterName)

	requestDuration, err := meter.Float64Histogram(
		"api.request.duration",
		metric.WithDescription("Duration of API requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"api.requests.total",
		metric.WithDescription("Total number of API requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"api.errors.total",
		metric.WithDescription("Total number of API requests answered with a 4xx or 5xx status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"api.requests.active",
		metric.WithDescription("Number of in-flight API requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	lookupCounter, err := meter.Int64Counter(
		"catalog.lookups.total",
		metric.WithDescription("Collection name lookups by schema identifier"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup counter: %w", err)
	}

	resolveCounter, err := meter.Int64Counter(
		"catalog.resolves.total",
		metric.WithDescription("Reverse lookups from collection to schema"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolve counter: %w", err)
	}

	if logger != nil {
		logger.Info("api metrics initialized")
	}
	return &APIMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
		lookupCounter:   lookupCounter,
		resolveCounter:  resolveCounter,
	}, nil
}

// RecordRequest records a finished request. route is the matched pattern,
// never the raw path, to keep cardinality bounded.
func (m *APIMetrics) RecordRequest(ctx context.Context, duration time.Duration, route string, status int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
	if status >= 400 {
		m.errorCounter.Add(ctx, 1, attrs)
	}
}

// RecordLookup counts a schema -> collection lookup.
func (m *APIMetrics) RecordLookup(ctx context.Context, surface string, registered bool) {
	if m == nil {
		return
	}
	m.lookupCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("surface", surface),
		attribute.Bool("registered", registered),
	))
}

// RecordResolve counts a collection -> schema lookup.
func (m *APIMetrics) RecordResolve(ctx context.Context, surface string, found bool) {
	if m == nil {
		return
	}
	m.resolveCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("surface", surface),
		attribute.Bool("found", found),
	))
}

// IncrementActiveRequests increments the in-flight gauge.
func (m *APIMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the in-flight gauge.
func (m *APIMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

type apiMetricsContextKey struct{}

// ContextWithAPIMetrics stores metrics in ctx for handlers further down the chain.
func ContextWithAPIMetrics(ctx context.Context, metrics *APIMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, apiMetricsContextKey{}, metrics)
}

// APIMetricsFromContext returns the metrics stored in ctx, or nil. All
// recording methods accept a nil receiver.
func APIMetricsFromContext(ctx context.Context) *APIMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(apiMetricsContextKey{}).(*APIMetrics)
	return metrics
}
