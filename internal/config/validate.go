package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"workspace-collections/internal/naming"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration and returns fatal errors and warnings.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Server.validate(result)
	c.Catalog.validate(result)
	validateNamingConfig(result, c.Naming)
	c.Observability.validate(result)

	// Database settings only matter once storage is inspected.
	if c.Catalog.InspectStorage {
		c.Database.validate(result)
	} else if strings.TrimSpace(c.Database.ConnectionString) != "" {
		result.warn("database.dsn", "database is configured but catalog.inspect_storage is disabled",
			"enable catalog.inspect_storage to report collection storage")
	}

	return result
}

// collectionWordPattern matches the words an override may map to: they end
// up inside collection names, so they follow collection naming.
var collectionWordPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	check := func(field string, overrides map[string]string) {
		for from, to := range overrides {
			from = strings.TrimSpace(from)
			to = strings.ToLower(strings.TrimSpace(to))
			switch {
			case from == "":
				result.fail(field, "override key cannot be empty", "")
			case to == "":
				result.fail(field, fmt.Sprintf("override for %q cannot be empty", from), "")
			case !collectionWordPattern.MatchString(to):
				result.fail(field,
					fmt.Sprintf("override %q for %q is not a valid collection word", to, from),
					"use lowercase letters, digits and underscores, starting with a letter")
			}
		}
	}
	check("naming.plural_overrides", cfg.PluralOverrides)
	check("naming.singular_overrides", cfg.SingularOverrides)
}

func (c *CatalogConfig) validate(result *ValidationResult) {
	if c.CountDocuments && !c.InspectStorage {
		result.warn("catalog.count_documents", "count_documents has no effect without inspect_storage",
			"enable catalog.inspect_storage")
	}
	if c.MinInterval <= 0 {
		result.fail("catalog.min_interval", "min_interval must be greater than 0", "")
	}
	if c.MaxInterval < c.MinInterval {
		result.fail("catalog.max_interval", "max_interval cannot be less than min_interval", "")
	}
	if c.QueryTimeout < 0 {
		result.fail("catalog.query_timeout", "query_timeout cannot be negative", "")
	}
	if c.DefaultPageSize <= 0 {
		result.fail("catalog.default_page_size", "default_page_size must be greater than 0", "")
	}
	if c.MaxPageSize < c.DefaultPageSize {
		result.fail("catalog.max_page_size", "max_page_size cannot be less than default_page_size", "")
	}
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.fail("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
	}

	d.TLS.validate(result)

	if d.Pool.MaxOpen < 0 {
		result.fail("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.fail("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.warn("database.pool.max_idle", "max_idle is greater than max_open",
			"idle connections will be limited to max_open")
	}

	switch {
	case d.ConnectionTimeout < 0:
		result.fail("database.connection_timeout", "connection_timeout cannot be negative", "")
	case d.ConnectionRetryInterval < 0:
		result.fail("database.connection_retry_interval", "connection_retry_interval cannot be negative", "")
	case d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0:
		result.fail("database.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	case d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout:
		result.warn("database.connection_retry_interval",
			"connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}

	name, err := d.EffectiveDatabaseName()
	switch {
	case err != nil && strings.Contains(err.Error(), "mismatch"):
		result.fail("database.database", err.Error(), "either remove database.database or set it to match the DSN database")
	case err != nil:
		result.fail("database.dsn", err.Error(), "set a valid MySQL DSN in database.dsn or database.dsn_file")
	case name == "":
		result.warn("database.database", "no database name configured",
			"collections are looked up in the connection's default database")
	}
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	if !slices.Contains([]string{"", "off", "skip-verify", "verify-ca", "verify-full"}, t.Mode) {
		result.fail("database.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode),
			"valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.fail("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes", "")
	}
	if (t.CertFile == "") != (t.KeyFile == "") {
		result.fail("database.tls.cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.warn("database.tls.mode", "skip-verify mode does not verify server certificates",
			"use verify-ca or verify-full in production")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.fail("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.fail("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	} else if s.RateLimitRPS > 0 || s.RateLimitBurst > 0 {
		result.warn("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit_enabled to apply rate limits")
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.fail("server.cors_allowed_origins", "CORS enabled but no allowed origins configured",
				"set cors_allowed_origins or disable CORS")
		}
		wildcard := slices.ContainsFunc(s.CORSAllowedOrigins, func(origin string) bool {
			return strings.TrimSpace(origin) == "*"
		})
		if wildcard && s.CORSAllowCredentials {
			result.fail("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials",
				"use specific origins with credentials, or wildcard without credentials")
		}
		if wildcard {
			result.warn("server.cors_allowed_origins", "CORS wildcard origin enabled",
				"use specific origins in production for better security")
		}
	}

	if s.Auth.OIDCEnabled {
		if s.Auth.OIDCIssuerURL == "" {
			result.fail("server.auth.oidc_issuer_url", "issuer URL is required when OIDC is enabled", "")
		} else if !strings.HasPrefix(s.Auth.OIDCIssuerURL, "https://") {
			result.fail("server.auth.oidc_issuer_url", "issuer URL must use https", "")
		}
		if s.Auth.OIDCAudience == "" {
			result.fail("server.auth.oidc_audience", "audience is required when OIDC is enabled", "")
		}
		if s.Auth.OIDCClockSkew < 0 {
			result.fail("server.auth.oidc_clock_skew", "clock skew cannot be negative", "")
		}
	} else if s.Auth.OIDCIssuerURL != "" || s.Auth.OIDCAudience != "" {
		result.warn("server.auth.oidc_enabled", "OIDC settings are present but OIDC is disabled",
			"set server.auth.oidc_enabled=true to require bearer tokens")
	}

	if s.Admin.RefreshEnabled && strings.TrimSpace(s.Admin.AuthToken) == "" {
		result.fail("server.admin.auth_token", "an admin auth token is required when the refresh endpoint is enabled",
			"set server.admin.auth_token or server.admin.auth_token_file")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, o.Logging.Level) {
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}
	if !slices.Contains([]string{"json", "text"}, o.Logging.Format) {
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", "trace_sample_ratio must be between 0.0 and 1.0", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	if !slices.Contains([]string{"", "grpc", "http/protobuf"}, o.Protocol) {
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			"use host:port or a full URL")
	}
	if !slices.Contains([]string{"", "none", "gzip"}, o.Compression) {
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.fail(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		return err == nil && parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
