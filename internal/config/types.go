package config

import (
	"maps"
	"time"

	"workspace-collections/internal/naming"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
}

// CatalogConfig controls the collection catalog and its optional storage inspection.
type CatalogConfig struct {
	// InspectStorage checks which collections exist as tables in the configured database.
	InspectStorage bool `mapstructure:"inspect_storage"`
	// CountDocuments also counts rows per existing collection. Only used with InspectStorage.
	CountDocuments bool          `mapstructure:"count_documents"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	MaxInterval    time.Duration `mapstructure:"max_interval"`
	// QueryTimeout bounds each inspection query. Zero disables the bound.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`

	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseTLSConfig holds TLS settings for the database connection.
type DatabaseTLSConfig struct {
	// Mode is one of off, skip-verify, verify-ca or verify-full.
	Mode       string `mapstructure:"mode"`
	CAFile     string `mapstructure:"ca_file"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	ServerName string `mapstructure:"server_name"`
}

// DatabaseConfig holds database connection parameters. The database is only
// contacted when catalog storage inspection is enabled.
type DatabaseConfig struct {
	// ConnectionString is a go-sql-driver/mysql DSN. When set it takes
	// precedence over the discrete fields below.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile reads the DSN from a file, or from stdin with "@-".
	ConnectionStringFile string `mapstructure:"dsn_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	TLS  DatabaseTLSConfig `mapstructure:"tls"`
	Pool PoolConfig        `mapstructure:"pool"`

	// ConnectionTimeout bounds how long startup waits for the database.
	ConnectionTimeout       time.Duration `mapstructure:"connection_timeout"`
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// AdminConfig controls the admin endpoints.
type AdminConfig struct {
	RefreshEnabled bool   `mapstructure:"refresh_enabled"`
	AuthToken      string `mapstructure:"auth_token"`
	AuthTokenFile  string `mapstructure:"auth_token_file"`
}

// AuthConfig gates the read API (/graphql and /api) behind OIDC bearer tokens.
type AuthConfig struct {
	OIDCEnabled   bool          `mapstructure:"oidc_enabled"`
	OIDCIssuerURL string        `mapstructure:"oidc_issuer_url"`
	OIDCAudience  string        `mapstructure:"oidc_audience"`
	OIDCClockSkew time.Duration `mapstructure:"oidc_clock_skew"`
	// OIDCCAFile trusts a private CA when fetching discovery and JWKS documents.
	OIDCCAFile string `mapstructure:"oidc_ca_file"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port                 int           `mapstructure:"port"`
	GraphiQLEnabled      bool          `mapstructure:"graphiql_enabled"`
	Admin                AdminConfig   `mapstructure:"admin"`
	Auth                 AuthConfig    `mapstructure:"auth"`
	RateLimitEnabled     bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRPS         float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst       int           `mapstructure:"rate_limit_burst"`
	CORSEnabled          bool          `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string      `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string      `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string      `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string      `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool          `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int           `mapstructure:"cors_max_age"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout   time.Duration `mapstructure:"health_check_timeout"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`  // debug, info, warn, error
	Format         string `mapstructure:"format"` // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"`
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`

	// OTLP holds defaults shared by every exported signal.
	OTLP OTLPConfig `mapstructure:"otlp"`

	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// TracesConfig returns the OTLP settings for traces with any override applied.
func (c *ObservabilityConfig) TracesConfig() OTLPConfig {
	if c.Traces == nil {
		return c.OTLP
	}
	return c.OTLP.merge(*c.Traces)
}

// LogsConfig returns the OTLP settings for logs with any override applied.
func (c *ObservabilityConfig) LogsConfig() OTLPConfig {
	if c.Logs == nil {
		return c.OTLP
	}
	return c.OTLP.merge(*c.Logs)
}

// merge lays the non-zero fields of override over c. Insecure always comes
// from the override because an explicit false cannot be told apart from unset.
func (c OTLPConfig) merge(override OTLPConfig) OTLPConfig {
	out := c
	out.Insecure = override.Insecure

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&out.Endpoint, override.Endpoint)
	setString(&out.Protocol, override.Protocol)
	setString(&out.TLSCertFile, override.TLSCertFile)
	setString(&out.TLSClientCertFile, override.TLSClientCertFile)
	setString(&out.TLSClientKeyFile, override.TLSClientKeyFile)
	setString(&out.Compression, override.Compression)

	if override.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers)+len(override.Headers))
		maps.Copy(out.Headers, c.Headers)
		maps.Copy(out.Headers, override.Headers)
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.RetryMaxAttempts != 0 {
		out.RetryEnabled = override.RetryEnabled
		out.RetryMaxAttempts = override.RetryMaxAttempts
	}
	return out
}
