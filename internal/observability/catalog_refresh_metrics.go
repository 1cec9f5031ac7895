package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CatalogRefreshMetrics tracks storage refreshes of the collection catalog.
type CatalogRefreshMetrics struct {
	refreshCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	durationHist    metric.Float64Histogram
	lastSuccessUnix atomic.Int64
}

// InitCatalogRefreshMetrics initializes catalog refresh metrics.
func InitCatalogRefreshMetrics(logger *slog.Logger) (*CatalogRefreshMetrics, error) {
	meter := otel.Meter(MeterName)

	refreshCounter, err := meter.Int64Counter(
		"catalog.refresh.total",
		metric.WithDescription("Total number of catalog refresh attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog refresh counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"catalog.refresh.errors.total",
		metric.WithDescription("Total number of failed catalog refresh attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog refresh error counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"catalog.refresh.duration",
		metric.WithDescription("Duration of catalog refresh attempts in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog refresh duration histogram: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"catalog.refresh.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful catalog refresh"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog refresh last success gauge: %w", err)
	}

	metrics := &CatalogRefreshMetrics{
		refreshCounter: refreshCounter,
		errorCounter:   errorCounter,
		durationHist:   durationHist,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if value := metrics.lastSuccessUnix.Load(); value > 0 {
				observer.ObserveInt64(lastSuccessGauge, value)
			}
			return nil
		},
		lastSuccessGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register catalog refresh gauge callback: %w", err)
	}

	logger.Info("catalog refresh metrics initialized")
	return metrics, nil
}

// RecordRefresh records one refresh attempt. trigger is startup, manual, poll
// or poll_no_change.
func (m *CatalogRefreshMetrics) RecordRefresh(ctx context.Context, duration time.Duration, success bool, trigger string) {
	attrs := []attribute.KeyValue{
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	}

	m.refreshCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if !success {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
		return
	}
	m.lastSuccessUnix.Store(time.Now().Unix())
}

// LastSuccess returns the time of the last successful refresh, or the zero time.
func (m *CatalogRefreshMetrics) LastSuccess() time.Time {
	value := m.lastSuccessUnix.Load()
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0)
}
