package serverapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"workspace-collections/internal/catalog"
	"workspace-collections/internal/config"
	"workspace-collections/internal/dbexec"
	"workspace-collections/internal/graphqlapi"
	"workspace-collections/internal/httpapi"
	"workspace-collections/internal/logging"
	"workspace-collections/internal/middleware"
	"workspace-collections/internal/naming"
	"workspace-collections/internal/observability"
	"workspace-collections/internal/schema"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const adminRefreshPath = "/admin/refresh-catalog"

func exporterConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

// InitLogger builds the process logger. When log export is enabled the logger
// is rebuilt so records are also sent through the OTLP logger provider.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.LogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(exporterConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	logger.Info("OpenTelemetry logging initialized")

	return logger, loggerProvider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.APIMetrics, *observability.CatalogRefreshMetrics, *observability.SecurityMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(exporterConfig(cfg, config.OTLPConfig{}))
	if err != nil {
		return nil, nil, nil, nil, err
	}

	apiMetrics, err := observability.InitAPIMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	refreshMetrics, err := observability.InitCatalogRefreshMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	securityMetrics, err := observability.InitSecurityMetrics()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("environment", cfg.Observability.Environment),
	)
	return meterProvider, apiMetrics, refreshMetrics, securityMetrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.TracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	tracerProvider, err := observability.InitTracerProvider(exporterConfig(cfg, tracesConfig))
	if err != nil {
		return nil, err
	}
	logger.Info("OpenTelemetry tracing initialized")
	return tracerProvider, nil
}

// storage is the optional database used for collection inspection.
type storage struct {
	db       *sql.DB
	statsReg interface{ Unregister() error }
	database string
}

func (s storage) close(logger *logging.Logger) func(context.Context) error {
	return func(context.Context) error {
		if s.statsReg != nil {
			if err := s.statsReg.Unregister(); err != nil {
				logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return s.db.Close()
	}
}

// openStorage connects to the database when storage inspection is enabled.
// Otherwise it returns an empty storage and never touches the network.
func openStorage(ctx context.Context, cfg *config.Config, logger *logging.Logger) (storage, error) {
	if !cfg.Catalog.InspectStorage {
		logger.Info("storage inspection disabled, serving the static catalog")
		return storage{}, nil
	}

	database, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return storage{}, err
	}

	db, statsReg, err := connectDB(cfg, logger)
	if err != nil {
		return storage{}, fmt.Errorf("failed to open database: %w", err)
	}
	s := storage{db: db, statsReg: statsReg, database: database}

	if err := configureDatabase(ctx, cfg, logger, db, database); err != nil {
		_ = s.close(logger)(ctx)
		return storage{}, fmt.Errorf("failed to connect to database: %w", err)
	}
	return s, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}
	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{otelsql.WithAttributes(semconv.DBSystemMySQL)}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
	}
	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, database string) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	source := "fields"
	if cfg.Database.ConnectionString != "" {
		source = "dsn"
	}
	logger.Info("connected to database",
		slog.String("database", database),
		slog.String("database_source", source),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

// waitForDatabase pings until the database answers or the connection timeout
// elapses. A zero timeout means a single attempt.
func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	interval := cfg.Database.ConnectionRetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

func buildCatalogManager(ctx context.Context, cfg *config.Config, logger *logging.Logger, store storage, metrics *observability.CatalogRefreshMetrics) (*catalog.Manager, error) {
	namer := naming.New(cfg.Naming, logger.Logger)
	base := catalog.Build(namer, schema.All, logger.Logger)

	var inspector *catalog.Inspector
	if store.db != nil {
		var err error
		inspector, err = catalog.NewInspector(catalog.InspectorConfig{
			Executor:       dbexec.NewStandardExecutor(store.db, dbexec.WithQueryTimeout(cfg.Catalog.QueryTimeout)),
			DatabaseName:   store.database,
			CountDocuments: cfg.Catalog.CountDocuments,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
	}

	return catalog.NewManager(ctx, catalog.ManagerConfig{
		Catalog:     base,
		Inspector:   inspector,
		Logger:      logger,
		Metrics:     metrics,
		MinInterval: cfg.Catalog.MinInterval,
		MaxInterval: cfg.Catalog.MaxInterval,
	})
}

type routerDeps struct {
	manager         *catalog.Manager
	pinger          httpapi.Pinger
	apiMetrics      *observability.APIMetrics
	securityMetrics *observability.SecurityMetrics
	metricsEnabled  bool
}

// instrument applies request logging and per-route metrics to an endpoint.
func instrument(logger *logging.Logger, metrics *observability.APIMetrics, route string, h http.Handler) http.Handler {
	h = middleware.HTTPMetricsMiddleware(metrics, route)(h)
	return middleware.LoggingMiddleware(logger)(h)
}

func oidcAuthConfig(cfg *config.Config, metrics *observability.SecurityMetrics) middleware.OIDCAuthConfig {
	return middleware.OIDCAuthConfig{
		Enabled:   cfg.Server.Auth.OIDCEnabled,
		IssuerURL: cfg.Server.Auth.OIDCIssuerURL,
		Audience:  cfg.Server.Auth.OIDCAudience,
		ClockSkew: cfg.Server.Auth.OIDCClockSkew,
		CAFile:    cfg.Server.Auth.OIDCCAFile,
		Metrics:   metrics,
	}
}

// buildRouter mounts every endpoint. The read API (/graphql and /api/) sits
// behind the optional OIDC gate; health, metrics and admin routes do not.
func buildRouter(ctx context.Context, cfg *config.Config, logger *logging.Logger, deps routerDeps) (*http.ServeMux, error) {
	mux := http.NewServeMux()

	readAuth, err := middleware.OIDCAuthMiddleware(ctx, oidcAuthConfig(cfg, deps.securityMetrics))
	if err != nil {
		return nil, err
	}
	if cfg.Server.Auth.OIDCEnabled {
		logger.Info("OIDC authentication enabled for the read API",
			slog.String("issuer", cfg.Server.Auth.OIDCIssuerURL),
			slog.String("audience", cfg.Server.Auth.OIDCAudience),
		)
	}

	graphqlHandler, err := graphqlapi.NewHandler(graphqlapi.Config{
		Source:          deps.manager,
		DefaultPageSize: cfg.Catalog.DefaultPageSize,
		MaxPageSize:     cfg.Catalog.MaxPageSize,
		GraphiQL:        cfg.Server.GraphiQLEnabled,
	})
	if err != nil {
		return nil, err
	}
	mux.Handle("/graphql", instrument(logger, deps.apiMetrics, "/graphql", readAuth(graphqlHandler)))

	restMux := http.NewServeMux()
	httpapi.New(httpapi.Config{
		Source:          deps.manager,
		DefaultPageSize: cfg.Catalog.DefaultPageSize,
		MaxPageSize:     cfg.Catalog.MaxPageSize,
	}).Register(restMux)
	mux.Handle("/api/", instrument(logger, deps.apiMetrics, "/api", readAuth(restMux)))

	mux.HandleFunc("/health", httpapi.HealthHandler(deps.pinger, cfg.Server.HealthCheckTimeout))

	if cfg.Server.Admin.RefreshEnabled {
		auth, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
			Token:     cfg.Server.Admin.AuthToken,
			Operation: "refresh_catalog",
			Metrics:   deps.securityMetrics,
		})
		if err != nil {
			return nil, err
		}
		refresh := auth(httpapi.RefreshHandler(deps.manager, 0))
		mux.Handle(adminRefreshPath, instrument(logger, deps.apiMetrics, adminRefreshPath, refresh))
		logger.Info("admin refresh endpoint enabled", slog.String("path", adminRefreshPath))
	}

	if deps.metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	return mux, nil
}

// wrapHTTPHandler applies the outer middleware. Rate limiting runs first,
// then CORS, then OpenTelemetry instrumentation.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler, securityMetrics *observability.SecurityMetrics) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	if cfg.Server.RateLimitEnabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled: cfg.Server.RateLimitEnabled,
			RPS:     cfg.Server.RateLimitRPS,
			Burst:   cfg.Server.RateLimitBurst,
			Metrics: securityMetrics,
		})(handler)
	}

	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality by collapsing path
// parameters into their route template.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", "/graphql", "/health", "/metrics", adminRefreshPath, "/api/collections":
		return rawPath
	}
	switch {
	case strings.HasPrefix(rawPath, "/api/collections/"):
		return "/api/collections/{schema}"
	case strings.HasPrefix(rawPath, "/api/resolve/"):
		return "/api/resolve/{collection}"
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, ln net.Listener) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", ln.Addr().String()),
			slog.String("graphql_endpoint", "/graphql"),
			slog.String("rest_endpoint", "/api/collections"),
			slog.String("health_endpoint", "/health"),
			slog.String("log_level", cfg.Observability.Logging.Level),
			slog.Bool("storage_inspection", cfg.Catalog.InspectStorage),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		if cfg.Server.RateLimitEnabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
			)
		}
		logger.Info("server starting", logAttrs...)

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}
