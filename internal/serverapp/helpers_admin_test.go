package serverapp

import (
	"context"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"workspace-collections/internal/catalog"
	"workspace-collections/internal/config"
)

func staticManager(t *testing.T) *catalog.Manager {
	t.Helper()
	manager, err := catalog.NewManager(context.Background(), catalog.ManagerConfig{Logger: testLogger()})
	if err != nil {
		t.Fatalf("unexpected manager error: %v", err)
	}
	return manager
}

func adminConfig(enabled bool, token string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HealthCheckTimeout: time.Second,
			Admin: config.AdminConfig{
				RefreshEnabled: enabled,
				AuthToken:      token,
			},
		},
	}
}

func serve(t *testing.T, mux http.Handler, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestBuildRouter_AdminRouteDisabledReturnsNotFound(t *testing.T) {
	mux, err := buildRouter(context.Background(), adminConfig(false, ""), testLogger(), routerDeps{manager: staticManager(t)})
	if err != nil {
		t.Fatalf("unexpected router error: %v", err)
	}

	rec := serve(t, mux, http.MethodPost, adminRefreshPath, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestBuildRouter_AdminRouteRequiresToken(t *testing.T) {
	_, err := buildRouter(context.Background(), adminConfig(true, ""), testLogger(), routerDeps{manager: staticManager(t)})
	if err == nil {
		t.Fatalf("expected error when refresh is enabled without a token")
	}
}

func TestBuildRouter_AdminRouteMissingHeaderUnauthorized(t *testing.T) {
	mux, err := buildRouter(context.Background(), adminConfig(true, "secret-token"), testLogger(), routerDeps{manager: staticManager(t)})
	if err != nil {
		t.Fatalf("unexpected router error: %v", err)
	}

	rec := serve(t, mux, http.MethodPost, adminRefreshPath, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}

	rec = serve(t, mux, http.MethodPost, adminRefreshPath, "wrong-token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestBuildRouter_AdminRouteValidTokenReachesHandler(t *testing.T) {
	mux, err := buildRouter(context.Background(), adminConfig(true, "secret-token"), testLogger(), routerDeps{manager: staticManager(t)})
	if err != nil {
		t.Fatalf("unexpected router error: %v", err)
	}

	// GET passes auth and stops at the method check without refreshing.
	rec := serve(t, mux, http.MethodGet, adminRefreshPath, "secret-token")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}

	// The static catalog has no storage to re-inspect.
	rec = serve(t, mux, http.MethodPost, adminRefreshPath, "secret-token")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
}

func TestBuildRouter_MetricsRouteFollowsConfig(t *testing.T) {
	mux, err := buildRouter(context.Background(), adminConfig(false, ""), testLogger(), routerDeps{manager: staticManager(t)})
	if err != nil {
		t.Fatalf("unexpected router error: %v", err)
	}
	if rec := serve(t, mux, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected /metrics to be absent, got %d", rec.Code)
	}

	mux, err = buildRouter(context.Background(), adminConfig(false, ""), testLogger(), routerDeps{manager: staticManager(t), metricsEnabled: true})
	if err != nil {
		t.Fatalf("unexpected router error: %v", err)
	}
	if rec := serve(t, mux, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected /metrics to be served, got %d", rec.Code)
	}
}

func TestBuildRouter_GraphQLAndREST(t *testing.T) {
	mux, err := buildRouter(context.Background(), adminConfig(false, ""), testLogger(), routerDeps{manager: staticManager(t)})
	if err != nil {
		t.Fatalf("unexpected router error: %v", err)
	}

	body := strings.NewReader(`{"query":"{ resolve(collection: \"keyresults\") { found } }"}`)
	req := httptest.NewRequest(http.MethodPost, "/graphql", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"found":true`) {
		t.Fatalf("unexpected graphql response %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, mux, http.MethodGet, "/api/resolve/nothings", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	rec = serve(t, mux, http.MethodGet, "/api/collections?page=2", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"pagination"`) {
		t.Fatalf("unexpected list response %d: %s", rec.Code, rec.Body.String())
	}
}

// discoveryOnlyIssuer serves OIDC discovery with an empty key set, enough to
// build the gate and check which routes it covers.
func discoveryOnlyIssuer(t *testing.T) (issuerURL, caFile string) {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"issuer":%q,"jwks_uri":%q}`, srv.URL, srv.URL+"/jwks")
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"keys":[]}`))
	})
	srv = httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)

	caFile = filepath.Join(t.TempDir(), "issuer_ca.crt")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	if err := os.WriteFile(caFile, certPEM, 0o600); err != nil {
		t.Fatalf("write CA file: %v", err)
	}
	return srv.URL, caFile
}

func TestBuildRouter_OIDCGatesReadAPIOnly(t *testing.T) {
	issuerURL, caFile := discoveryOnlyIssuer(t)
	cfg := adminConfig(false, "")
	cfg.Server.Auth = config.AuthConfig{
		OIDCEnabled:   true,
		OIDCIssuerURL: issuerURL,
		OIDCAudience:  "workspace-collections",
		OIDCCAFile:    caFile,
	}

	mux, err := buildRouter(context.Background(), cfg, testLogger(), routerDeps{manager: staticManager(t)})
	if err != nil {
		t.Fatalf("unexpected router error: %v", err)
	}

	for _, target := range []string{"/api/collections", "/api/resolve/tasks", "/graphql?query={schemas}"} {
		rec := serve(t, mux, http.MethodGet, target, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusUnauthorized, rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Fatalf("%s: expected bearer challenge", target)
		}
	}
	if rec := serve(t, mux, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected /health to bypass auth, got %d", rec.Code)
	}
}

func TestBuildRouter_OIDCDiscoveryFailure(t *testing.T) {
	cfg := adminConfig(false, "")
	cfg.Server.Auth = config.AuthConfig{
		OIDCEnabled:   true,
		OIDCIssuerURL: "https://127.0.0.1:1",
		OIDCAudience:  "workspace-collections",
	}
	if _, err := buildRouter(context.Background(), cfg, testLogger(), routerDeps{manager: staticManager(t)}); err == nil {
		t.Fatalf("expected router error when the issuer cannot be discovered")
	}
}
