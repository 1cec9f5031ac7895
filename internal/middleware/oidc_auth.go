package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"workspace-collections/internal/logging"
	"workspace-collections/internal/observability"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const defaultClockSkew = 2 * time.Minute

// OIDCAuthConfig controls bearer token validation for the read API.
type OIDCAuthConfig struct {
	Enabled   bool
	IssuerURL string
	Audience  string
	// ClockSkew is the tolerance applied to exp and nbf. Zero means two minutes.
	ClockSkew time.Duration
	// CAFile is an extra PEM bundle trusted when talking to the issuer.
	CAFile  string
	Metrics *observability.SecurityMetrics
}

type principalKey struct{}

// Principal is the caller identity taken from a verified token.
type Principal struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]any
}

// PrincipalFromContext returns the verified caller, if the request carried one.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// OIDCAuthMiddleware requires a valid bearer token issued by cfg.IssuerURL for
// cfg.Audience. Provider discovery happens here, so ctx bounds the startup
// round trip to the issuer. Disabled configs return a pass-through.
func OIDCAuthMiddleware(ctx context.Context, cfg OIDCAuthConfig) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	issuer, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuer.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = defaultClockSkew
	}

	client, err := newOIDCHTTPClient(cfg.CAFile)
	if err != nil {
		return nil, err
	}
	provider, err := oidc.NewProvider(context.WithValue(ctx, oauth2.HTTPClient, client), cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	// exp and nbf are checked below with the configured skew.
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.Audience, SkipExpiryCheck: true})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			endpoint := r.URL.Path
			reject := func(reason, message string, err error) {
				attrs := []any{slog.String("reason", reason), slog.String("endpoint", endpoint)}
				if err != nil {
					attrs = append(attrs, slog.String("error", err.Error()))
				}
				logging.FromContext(ctx).Warn("bearer token rejected", attrs...)
				cfg.Metrics.RecordAuthResult(ctx, endpoint, reason)
				cfg.Metrics.RecordUnauthorizedAttempt(ctx, endpoint, reason)
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, message)
			}

			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				reject("missing_token", "missing bearer token", nil)
				return
			}
			idToken, err := verifier.Verify(ctx, raw)
			if err != nil {
				reject("invalid_token", "invalid token", err)
				return
			}
			claims := map[string]any{}
			if err := idToken.Claims(&claims); err != nil {
				reject("invalid_claims", "invalid token", err)
				return
			}
			if err := checkTokenTimes(claims, time.Now(), skew); err != nil {
				reject("token_time", "invalid token", err)
				return
			}

			principal := Principal{
				Subject:  idToken.Subject,
				Issuer:   idToken.Issuer,
				Audience: idToken.Audience,
				Claims:   claims,
			}
			cfg.Metrics.RecordAuthResult(ctx, endpoint, "success")
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", principal.Subject),
					attribute.String("auth.issuer", principal.Issuer),
				)
			}
			logging.FromContext(ctx).Debug("bearer token accepted", slog.String("subject", principal.Subject))

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, principalKey{}, principal)))
		})
	}, nil
}

func newOIDCHTTPClient(caFile string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if caFile != "" {
		pemBytes, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read oidc CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("failed to parse oidc CA file %s", caFile)
		}
		transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12, RootCAs: pool}
	}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// checkTokenTimes requires exp and honours nbf when present.
func checkTokenTimes(claims map[string]any, now time.Time, skew time.Duration) error {
	exp, ok := numericDate(claims["exp"])
	if !ok {
		return errors.New("token has no expiry")
	}
	if now.After(exp.Add(skew)) {
		return errors.New("token expired")
	}
	if nbf, ok := numericDate(claims["nbf"]); ok && now.Add(skew).Before(nbf) {
		return errors.New("token not valid yet")
	}
	return nil
}

// numericDate reads a JWT NumericDate; encoding/json decodes it as float64.
func numericDate(value any) (time.Time, bool) {
	seconds, ok := value.(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(seconds), 0), true
}
