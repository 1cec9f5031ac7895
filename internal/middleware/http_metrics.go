package middleware

import (
	"net/http"
	"time"

	"workspace-collections/internal/observability"
)

// HTTPMetricsMiddleware records duration, status and in-flight count for each
// request under a fixed route label, and exposes the metrics to handlers
// through the request context.
func HTTPMetricsMiddleware(metrics *observability.APIMetrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := observability.ContextWithAPIMetrics(r.Context(), metrics)

			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			start := time.Now()
			recorder := newStatusRecorder(w)
			next.ServeHTTP(recorder, r.WithContext(ctx))

			metrics.RecordRequest(ctx, time.Since(start), route, recorder.status)
		})
	}
}
