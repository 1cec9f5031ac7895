package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics counts authentication outcomes, admin endpoint access and
// rejected requests.
type SecurityMetrics struct {
	authAttempts         metric.Int64Counter
	adminAccess          metric.Int64Counter
	unauthorizedAttempts metric.Int64Counter
	rateLimited          metric.Int64Counter
}

// InitSecurityMetrics initializes security metrics.
func InitSecurityMetrics() (*SecurityMetrics, error) {
	meter := otel.Meter(MeterName + "/security")

	authAttempts, err := meter.Int64Counter(
		"security.auth.attempts.total",
		metric.WithDescription("Total number of bearer token checks by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth attempts counter: %w", err)
	}

	adminAccess, err := meter.Int64Counter(
		"security.admin.access.total",
		metric.WithDescription("Total number of admin endpoint access attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin endpoint access counter: %w", err)
	}

	unauthorizedAttempts, err := meter.Int64Counter(
		"security.unauthorized.attempts.total",
		metric.WithDescription("Total number of unauthorized access attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create unauthorized attempts counter: %w", err)
	}

	rateLimited, err := meter.Int64Counter(
		"security.rate_limited.total",
		metric.WithDescription("Total number of requests rejected by the rate limiter"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limited counter: %w", err)
	}

	return &SecurityMetrics{
		authAttempts:         authAttempts,
		adminAccess:          adminAccess,
		unauthorizedAttempts: unauthorizedAttempts,
		rateLimited:          rateLimited,
	}, nil
}

// RecordAuthResult records one bearer token check. Result is "success" or a
// failure reason such as "missing_token".
func (m *SecurityMetrics) RecordAuthResult(ctx context.Context, endpoint, result string) {
	if m == nil {
		return
	}
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("result", result),
	))
}

// RecordAdminEndpointAccess records an admin request and its outcome.
func (m *SecurityMetrics) RecordAdminEndpointAccess(ctx context.Context, operation string, authenticated bool, success bool) {
	if m == nil {
		return
	}
	m.adminAccess.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("authenticated", authenticated),
		attribute.Bool("success", success),
	))
}

// RecordUnauthorizedAttempt records a request rejected for missing or bad credentials.
func (m *SecurityMetrics) RecordUnauthorizedAttempt(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.unauthorizedAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}

// RecordRateLimited records a request rejected by the rate limiter.
func (m *SecurityMetrics) RecordRateLimited(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}
