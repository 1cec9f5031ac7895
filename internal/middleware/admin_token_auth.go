package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"workspace-collections/internal/logging"
	"workspace-collections/internal/observability"
)

// DefaultAdminTokenHeader carries the shared admin token unless configured otherwise.
const DefaultAdminTokenHeader = "X-Admin-Token"

// AdminTokenAuthConfig controls shared-token authentication for admin endpoints.
type AdminTokenAuthConfig struct {
	Token      string
	HeaderName string
	// Operation labels the admin metrics, e.g. "refresh_catalog".
	Operation string
	Metrics   *observability.SecurityMetrics
}

// AdminTokenAuthMiddleware rejects requests that do not present the admin token.
func AdminTokenAuthMiddleware(cfg AdminTokenAuthConfig) (func(http.Handler) http.Handler, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("admin auth token is required")
	}
	headerName := strings.TrimSpace(cfg.HeaderName)
	if headerName == "" {
		headerName = DefaultAdminTokenHeader
	}
	operation := cfg.Operation
	if operation == "" {
		operation = "admin"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(headerName))
			if !constantTimeTokenMatch(provided, token) {
				reason := "invalid_token"
				if provided == "" {
					reason = "missing_token"
				}
				logging.FromContext(r.Context()).Warn("admin request rejected", "reason", reason)
				cfg.Metrics.RecordUnauthorizedAttempt(r.Context(), r.URL.Path, reason)
				cfg.Metrics.RecordAdminEndpointAccess(r.Context(), operation, false, false)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			recorder := newStatusRecorder(w)
			next.ServeHTTP(recorder, r)
			cfg.Metrics.RecordAdminEndpointAccess(r.Context(), operation, true, recorder.status < 400)
		})
	}, nil
}

// Digests first so the comparison is constant time regardless of token length.
func constantTimeTokenMatch(provided string, expected string) bool {
	providedDigest := sha256.Sum256([]byte(provided))
	expectedDigest := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(providedDigest[:], expectedDigest[:]) == 1
}
