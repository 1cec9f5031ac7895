// Package serverapp wires configuration, storage, the catalog and the HTTP
// surfaces into one server lifecycle: New, Init, Start, WaitForStop, Shutdown.
package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"sync"

	"workspace-collections/internal/catalog"
	"workspace-collections/internal/config"
	"workspace-collections/internal/logging"
	"workspace-collections/internal/observability"
)

// App owns runtime resources for the server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	meterProvider   *observability.MeterProvider
	apiMetrics      *observability.APIMetrics
	refreshMetrics  *observability.CatalogRefreshMetrics
	securityMetrics *observability.SecurityMetrics
	tracerProvider  *observability.TracerProvider

	// db is nil unless catalog storage inspection is enabled.
	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	manager       *catalog.Manager
	refreshCancel context.CancelFunc

	mux     *http.ServeMux
	handler http.Handler

	serverAddr string
	srv        *http.Server
	listener   net.Listener

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Catalog.InspectStorage {
		if _, err := cfg.Database.EffectiveDatabaseName(); err != nil {
			return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
		}
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
