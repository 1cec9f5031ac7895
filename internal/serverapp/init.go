package serverapp

import (
	"context"
	"fmt"
	"log/slog"
)

// Init initializes all runtime resources. It is idempotent. On failure every
// resource acquired so far is released again.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, apiMetrics, refreshMetrics, securityMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	store, err := openStorage(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	if store.db != nil {
		cleanup.push("database", store.close(a.logger))
	}

	manager, err := buildCatalogManager(ctx, a.cfg, a.logger, store, refreshMetrics)
	if err != nil {
		return fmt.Errorf("failed to build collection catalog: %w", err)
	}
	refreshCtx, refreshCancel := context.WithCancel(context.Background())
	manager.Start(refreshCtx)
	cleanup.push("catalog manager", func(shutdownCtx context.Context) error {
		refreshCancel()
		return manager.Wait(shutdownCtx)
	})

	routes := routerDeps{
		manager:         manager,
		apiMetrics:      apiMetrics,
		securityMetrics: securityMetrics,
		metricsEnabled:  meterProvider != nil,
	}
	if store.db != nil {
		routes.pinger = store.db
	}
	mux, err := buildRouter(ctx, a.cfg, a.logger, routes)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	handler := wrapHTTPHandler(a.cfg, a.logger, mux, securityMetrics)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.logger.Info("collection catalog ready",
		slog.Int("collections", manager.Catalog().Len()),
		slog.Bool("storage_inspection", manager.StorageEnabled()),
	)

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.apiMetrics = apiMetrics
	a.refreshMetrics = refreshMetrics
	a.securityMetrics = securityMetrics
	a.tracerProvider = tracerProvider
	a.db = store.db
	a.dbStatsReg = store.statsReg
	a.manager = manager
	a.refreshCancel = refreshCancel
	a.mux = mux
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
