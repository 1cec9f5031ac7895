package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"workspace-collections/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestAdminTokenAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		headerName string
		header     string
		value      string
		wantStatus int
		wantReason string
	}{
		{name: "missing token", wantStatus: http.StatusUnauthorized, wantReason: "missing_token"},
		{name: "wrong token", header: DefaultAdminTokenHeader, value: "guess", wantStatus: http.StatusUnauthorized, wantReason: "invalid_token"},
		{name: "token prefix", header: DefaultAdminTokenHeader, value: "refresh", wantStatus: http.StatusUnauthorized, wantReason: "invalid_token"},
		{name: "valid token", header: DefaultAdminTokenHeader, value: "refresh-secret", wantStatus: http.StatusAccepted},
		{name: "surrounding spaces", header: DefaultAdminTokenHeader, value: "  refresh-secret ", wantStatus: http.StatusAccepted},
		{name: "custom header ignores default", headerName: "X-Ops-Token", header: DefaultAdminTokenHeader, value: "refresh-secret", wantStatus: http.StatusUnauthorized, wantReason: "missing_token"},
		{name: "custom header", headerName: "X-Ops-Token", header: "X-Ops-Token", value: "refresh-secret", wantStatus: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, metrics := setupSecurityMetrics(t)
			mw, err := AdminTokenAuthMiddleware(AdminTokenAuthConfig{
				Token:      "refresh-secret",
				HeaderName: tt.headerName,
				Operation:  "refresh_catalog",
				Metrics:    metrics,
			})
			require.NoError(t, err)

			var reached bool
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusAccepted)
			}))

			req := httptest.NewRequest(http.MethodPost, "/admin/refresh-catalog", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantReason == "", reached)

			rm := collectMetrics(t, reader)
			if tt.wantReason != "" {
				assert.JSONEq(t, `{"data":null,"code":401,"message":"unauthorized"}`, rec.Body.String())
				assert.EqualValues(t, 1, counterTotal(rm, "security.unauthorized.attempts.total",
					attribute.String("reason", tt.wantReason)))
				assert.EqualValues(t, 1, counterTotal(rm, "security.admin.access.total",
					attribute.String("operation", "refresh_catalog"), attribute.Bool("authenticated", false)))
				return
			}
			assert.EqualValues(t, 1, counterTotal(rm, "security.admin.access.total",
				attribute.Bool("authenticated", true), attribute.Bool("success", true)))
		})
	}
}

func TestAdminTokenAuthMiddleware_FailedHandlerIsNotSuccess(t *testing.T) {
	reader, metrics := setupSecurityMetrics(t)
	mw, err := AdminTokenAuthMiddleware(AdminTokenAuthConfig{Token: "refresh-secret", Metrics: metrics})
	require.NoError(t, err)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	req := httptest.NewRequest(http.MethodPost, "/admin/refresh-catalog", nil)
	req.Header.Set(DefaultAdminTokenHeader, "refresh-secret")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rm := collectMetrics(t, reader)
	assert.EqualValues(t, 1, counterTotal(rm, "security.admin.access.total",
		attribute.String("operation", "admin"), attribute.Bool("success", false)))
}

func TestAdminTokenAuthMiddleware_RequiresToken(t *testing.T) {
	_, err := AdminTokenAuthMiddleware(AdminTokenAuthConfig{Token: "   "})
	assert.Error(t, err)
}

func TestConstantTimeTokenMatch(t *testing.T) {
	assert.True(t, constantTimeTokenMatch("refresh-secret", "refresh-secret"))
	assert.False(t, constantTimeTokenMatch("refresh-secret", "refresh-secret2"))
	assert.False(t, constantTimeTokenMatch("", "refresh-secret"))
}

func setupSecurityMetrics(t *testing.T) (*sdkmetric.ManualReader, *observability.SecurityMetrics) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	oldProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetMeterProvider(oldProvider)
	})

	metrics, err := observability.InitSecurityMetrics()
	require.NoError(t, err)
	return reader, metrics
}

// counterTotal sums the points of an int64 counter whose attributes include all of want.
func counterTotal(rm metricdata.ResourceMetrics, name string, want ...attribute.KeyValue) int64 {
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if m.Name != name || !ok {
				continue
			}
		points:
			for _, point := range sum.DataPoints {
				for _, kv := range want {
					if !matchAttr(point.Attributes, string(kv.Key), kv.Value) {
						continue points
					}
				}
				total += point.Value
			}
		}
	}
	return total
}
