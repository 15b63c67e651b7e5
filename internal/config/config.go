package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported backends.
const (
	BackendMongo    = "mongodb"
	BackendPostgres = "postgres"
)

type Config struct {
	// Data source connection.
	DatabaseURL            string
	Backend                string // derived from the URL scheme when empty
	DefaultDatabase        string // Mongo database or Postgres schema used when a call names none
	QueryTimeout           time.Duration
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration

	// Schema inference and caching.
	SampleSize  int
	TopValues   int
	CacheMaxAge time.Duration
	ServeStale  bool

	// Size budget, in units of roughly four characters.
	MaxRequestUnits  int
	MaxResponseUnits int

	// Access control.
	Schemas    []string // Postgres only; empty means all non-system schemas
	PolicyFile string   // optional path to policy YAML

	// Logging.
	LogLevel slog.Level

	// Transport.
	Transport       string  // "stdio" (default) or "http"
	HTTPAddr        string  // listen address for HTTP transport (default ":8080")
	HTTPBearerToken string  // required when transport=http
	HTTPRateLimit   float64 // requests per second accepted on /mcp; 0 disables limiting
	HTTPRateBurst   int

	// Connection pool.
	PoolMaxConns        int32         // default: 5
	PoolMinConns        int32         // default: 1
	PoolMaxConnLifetime time.Duration // default: 30m

	// Observability.
	OTelEnabled bool   // enable OpenTelemetry tracing and metrics
	AuditLog    string // path to NDJSON audit log file
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	DatabaseURL      *string
	Backend          *string
	DefaultDatabase  *string
	LogLevel         *string
	QueryTimeout     *time.Duration
	SampleSize       *int
	CacheMaxAge      *time.Duration
	MaxResponseUnits *int
	PolicyFile       *string
	Transport        *string
	HTTPAddr         *string
	HTTPBearerToken  *string
	OTelEnabled      bool
	AuditLog         string

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := resolveBackend(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		QueryTimeout:           10 * time.Second,
		ConnectTimeout:         10 * time.Second,
		ServerSelectionTimeout: 5 * time.Second,
		SampleSize:             100,
		TopValues:              10,
		CacheMaxAge:            5 * time.Minute,
		ServeStale:             true,
		MaxRequestUnits:        6000,
		MaxResponseUnits:       6000,
		Transport:              "stdio",
		HTTPAddr:               ":8080",
		HTTPRateLimit:          20,
		HTTPRateBurst:          40,
		PoolMaxConns:           5,
		PoolMinConns:           1,
		PoolMaxConnLifetime:    30 * time.Minute,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	cfg.Backend = strings.ToLower(os.Getenv("BACKEND"))
	cfg.DefaultDatabase = os.Getenv("DEFAULT_DATABASE")

	if err := loadDurations(cfg); err != nil {
		return err
	}
	if err := loadSizes(cfg); err != nil {
		return err
	}

	if v := os.Getenv("SERVE_STALE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SERVE_STALE value %q: %w", v, err)
		}
		cfg.ServeStale = b
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("SCHEMAS"); v != "" {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				cfg.Schemas = append(cfg.Schemas, s)
			}
		}
	}

	cfg.PolicyFile = os.Getenv("POLICY_FILE")
	cfg.AuditLog = os.Getenv("AUDIT_LOG")

	if v := os.Getenv("TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.HTTPBearerToken = os.Getenv("HTTP_BEARER_TOKEN")
	if v := os.Getenv("HTTP_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid HTTP_RATE_LIMIT value %q: must be a non-negative number", v)
		}
		cfg.HTTPRateLimit = f
	}
	if v := os.Getenv("HTTP_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid HTTP_RATE_BURST value %q: must be a positive integer", v)
		}
		cfg.HTTPRateBurst = n
	}

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	if err := loadPoolEnvVars(cfg); err != nil {
		return err
	}

	return nil
}

// loadDurations reads the timeout and cache age environment variables.
func loadDurations(cfg *Config) error {
	for _, d := range []struct {
		env    string
		target *time.Duration
	}{
		{"QUERY_TIMEOUT", &cfg.QueryTimeout},
		{"CONNECT_TIMEOUT", &cfg.ConnectTimeout},
		{"SERVER_SELECTION_TIMEOUT", &cfg.ServerSelectionTimeout},
		{"CACHE_MAX_AGE", &cfg.CacheMaxAge},
	} {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", d.env, v, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("invalid %s value %q: must be positive", d.env, v)
		}
		*d.target = parsed
	}
	return nil
}

// loadSizes reads the sampling and budget environment variables.
func loadSizes(cfg *Config) error {
	for _, s := range []struct {
		env    string
		target *int
	}{
		{"SAMPLE_SIZE", &cfg.SampleSize},
		{"TOP_VALUES", &cfg.TopValues},
		{"MAX_REQUEST_UNITS", &cfg.MaxRequestUnits},
		{"MAX_RESPONSE_UNITS", &cfg.MaxResponseUnits},
	} {
		v := os.Getenv(s.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid %s value %q: must be a positive integer", s.env, v)
		}
		*s.target = n
	}
	return nil
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	if v := os.Getenv("POOL_MAX_CONN_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POOL_MAX_CONN_LIFETIME value %q: %w", v, err)
		}
		cfg.PoolMaxConnLifetime = d
	}
	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.Backend != nil {
		cfg.Backend = strings.ToLower(*o.Backend)
	}
	if o.DefaultDatabase != nil {
		cfg.DefaultDatabase = *o.DefaultDatabase
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.SampleSize != nil {
		if *o.SampleSize <= 0 {
			return fmt.Errorf("invalid --sample-size value: must be a positive integer")
		}
		cfg.SampleSize = *o.SampleSize
	}
	if o.CacheMaxAge != nil {
		cfg.CacheMaxAge = *o.CacheMaxAge
	}
	if o.MaxResponseUnits != nil {
		if *o.MaxResponseUnits <= 0 {
			return fmt.Errorf("invalid --max-response-units value: must be a positive integer")
		}
		cfg.MaxResponseUnits = *o.MaxResponseUnits
	}
	if o.PolicyFile != nil {
		cfg.PolicyFile = *o.PolicyFile
	}
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}
	if o.HTTPAddr != nil {
		cfg.HTTPAddr = *o.HTTPAddr
	}
	if o.HTTPBearerToken != nil {
		cfg.HTTPBearerToken = *o.HTTPBearerToken
	}

	if err := applyPoolOverrides(cfg, o); err != nil {
		return err
	}

	if o.AuditLog != "" {
		cfg.AuditLog = o.AuditLog
	}
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// applyPoolOverrides applies connection pool CLI flag overrides.
func applyPoolOverrides(cfg *Config, o Overrides) error {
	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}
	return nil
}

// resolveBackend picks the backend from the URL scheme when it was not set
// explicitly, and fills the default database from the URL path for MongoDB
// or with "public" for Postgres.
func resolveBackend(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return nil
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	if cfg.Backend == "" {
		switch u.Scheme {
		case "mongodb", "mongodb+srv":
			cfg.Backend = BackendMongo
		case "postgres", "postgresql":
			cfg.Backend = BackendPostgres
		default:
			return fmt.Errorf("cannot infer backend from DATABASE_URL scheme %q: set BACKEND to %q or %q", u.Scheme, BackendMongo, BackendPostgres)
		}
	}

	if cfg.DefaultDatabase == "" {
		switch cfg.Backend {
		case BackendMongo:
			cfg.DefaultDatabase = strings.TrimPrefix(u.Path, "/")
		case BackendPostgres:
			cfg.DefaultDatabase = "public"
		}
	}
	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required (set via env var or --database-url flag)")
	}

	switch cfg.Backend {
	case BackendMongo, BackendPostgres:
	default:
		return fmt.Errorf("invalid BACKEND value %q: must be %q or %q", cfg.Backend, BackendMongo, BackendPostgres)
	}

	if len(cfg.Schemas) > 0 && cfg.Backend != BackendPostgres {
		return fmt.Errorf("SCHEMAS is only supported with the %q backend", BackendPostgres)
	}

	if cfg.QueryTimeout <= 0 || cfg.CacheMaxAge <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT and CACHE_MAX_AGE must be positive")
	}

	switch cfg.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"stdio\" or \"http\"", cfg.Transport)
	}

	if cfg.Transport == "http" && cfg.HTTPBearerToken == "" {
		return fmt.Errorf("HTTP_BEARER_TOKEN is required when transport is \"http\" (set via env var or --http-bearer-token flag)")
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
