package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/guillermoBallester/sounder/internal/adapter/mcp"
	"github.com/guillermoBallester/sounder/internal/adapter/mongodb"
	"github.com/guillermoBallester/sounder/internal/adapter/policy"
	"github.com/guillermoBallester/sounder/internal/adapter/postgres"
	"github.com/guillermoBallester/sounder/internal/audit"
	"github.com/guillermoBallester/sounder/internal/config"
	"github.com/guillermoBallester/sounder/internal/core/port"
	"github.com/guillermoBallester/sounder/internal/core/service"
	"github.com/guillermoBallester/sounder/internal/telemetry"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var version = "dev"

func main() {
	overrides, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if err := run(overrides); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags turns CLI arguments into config overrides. Only flags the user
// actually passed are set.
func parseFlags(args []string) (config.Overrides, error) {
	fs := pflag.NewFlagSet("sounder", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	databaseURL := fs.String("database-url", "", "MongoDB or Postgres connection URL")
	backend := fs.String("backend", "", "data source backend: mongodb or postgres")
	defaultDB := fs.String("default-database", "", "database (or Postgres schema) used when a call names none")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	queryTimeout := fs.Duration("query-timeout", 0, "per-query timeout")
	sampleSize := fs.Int("sample-size", 0, "documents sampled per schema snapshot")
	cacheMaxAge := fs.Duration("cache-max-age", 0, "age after which a schema snapshot is refreshed")
	maxResponseUnits := fs.Int("max-response-units", 0, "response size budget in units")
	policyFile := fs.String("policy-file", "", "path to policy YAML")
	transport := fs.String("transport", "", "transport: stdio or http")
	httpAddr := fs.String("http-addr", "", "listen address for the http transport")
	httpBearerToken := fs.String("http-bearer-token", "", "bearer token required by the http transport")
	poolMaxConns := fs.Int32("pool-max-conns", 0, "maximum Postgres pool connections")
	poolMinConns := fs.Int32("pool-min-conns", 0, "minimum Postgres pool connections")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum Postgres connection lifetime")

	var o config.Overrides
	fs.BoolVar(&o.OTelEnabled, "otel", false, "enable OpenTelemetry tracing and metrics")
	fs.StringVar(&o.AuditLog, "audit-log", "", "path to NDJSON audit log")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}

	setString := func(name string, v *string, dst **string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	setString("database-url", databaseURL, &o.DatabaseURL)
	setString("backend", backend, &o.Backend)
	setString("default-database", defaultDB, &o.DefaultDatabase)
	setString("log-level", logLevel, &o.LogLevel)
	setString("policy-file", policyFile, &o.PolicyFile)
	setString("transport", transport, &o.Transport)
	setString("http-addr", httpAddr, &o.HTTPAddr)
	setString("http-bearer-token", httpBearerToken, &o.HTTPBearerToken)

	if fs.Changed("query-timeout") {
		o.QueryTimeout = queryTimeout
	}
	if fs.Changed("cache-max-age") {
		o.CacheMaxAge = cacheMaxAge
	}
	if fs.Changed("sample-size") {
		o.SampleSize = sampleSize
	}
	if fs.Changed("max-response-units") {
		o.MaxResponseUnits = maxResponseUnits
	}
	if fs.Changed("pool-max-conns") {
		o.PoolMaxConns = poolMaxConns
	}
	if fs.Changed("pool-min-conns") {
		o.PoolMinConns = poolMinConns
	}
	if fs.Changed("pool-max-conn-lifetime") {
		o.PoolMaxConnLifetime = poolMaxConnLifetime
	}

	return o, nil
}

// backend is an opened data source together with its catalog view.
type backend struct {
	source  port.DataSource
	catalog port.Catalog
	close   func(context.Context)
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
			ConnectTimeout:  cfg.ConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		logger.Info("database pool connected", slog.String("db.system", "postgresql"))
		src := postgres.NewSource(postgres.NewExecutor(pool, cfg.QueryTimeout), cfg.Schemas)
		return &backend{source: src, catalog: src, close: func(context.Context) { pool.Close() }}, nil

	case config.BackendMongo:
		client, err := mongodb.Connect(ctx, cfg.DatabaseURL, mongodb.ClientOptions{
			ConnectTimeout:         cfg.ConnectTimeout,
			ServerSelectionTimeout: cfg.ServerSelectionTimeout,
			MaxPoolSize:            uint64(cfg.PoolMaxConns),
			AppName:                "sounder",
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to mongodb: %w", err)
		}
		logger.Info("database client connected", slog.String("db.system", "mongodb"))
		src := mongodb.NewSource(client)
		return &backend{source: src, catalog: src, close: func(ctx context.Context) {
			if err := client.Disconnect(ctx); err != nil {
				logger.Warn("mongodb disconnect failed", slog.String("error", err.Error()))
			}
		}}, nil
	}
	return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
}

func run(overrides config.Overrides) error {
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting sounder",
		slog.String("version", version),
		slog.String("backend", cfg.Backend),
		slog.String("database_url", redactDSN(cfg.DatabaseURL)),
		slog.String("default_database", cfg.DefaultDatabase),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.Int("sample_size", cfg.SampleSize),
		slog.String("cache_max_age", cfg.CacheMaxAge.String()),
		slog.Int("max_response_units", cfg.MaxResponseUnits),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.String("transport", cfg.Transport),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var (
		tracer trace.Tracer         = telemetry.NoopTracer()
		inst   port.Instrumentation = telemetry.NoopInstruments()
	)
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, telemetry.Options{ServiceName: "sounder", Version: version, Backend: cfg.Backend})
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
		tracer = provider.Tracer()
		inst = telemetry.NewInstruments()
		logger.Info("opentelemetry enabled")
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		be.close(closeCtx)
	}()

	// Policy enrichment (optional).
	var enricher port.ResultEnricher
	catalog := be.catalog
	if cfg.PolicyFile != "" {
		pol, err := policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
		enricher = policy.NewEnricher(pol)
		catalog = policy.NewCatalog(catalog, pol)
		logger.Info("policy loaded", slog.String("file", cfg.PolicyFile))
	}

	var auditor port.AnalysisAuditor = port.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog, logger)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		auditor = fa
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}
	defer func() {
		if err := auditor.Close(); err != nil {
			logger.Warn("closing audit log failed", slog.String("error", err.Error()))
		}
	}()

	// Services
	cache := service.NewSchemaCache(be.source, service.CacheOptions{
		SampleSize:     cfg.SampleSize,
		TopValues:      cfg.TopValues,
		MaxAge:         cfg.CacheMaxAge,
		RefreshTimeout: cfg.QueryTimeout,
		ServeStale:     cfg.ServeStale,
	}, logger, tracer, inst)
	analysisSvc := service.NewAnalysisService(cache, service.NewSelector(be.source), enricher, auditor, logger, tracer, inst, service.AnalysisOptions{
		DefaultDatabase: cfg.DefaultDatabase,
		CacheMaxAge:     cfg.CacheMaxAge,
		MaxInputUnits:   cfg.MaxRequestUnits,
		MaxOutputUnits:  cfg.MaxResponseUnits,
	})
	explorerSvc := service.NewExplorerService(catalog, cache, enricher, cfg.DefaultDatabase, logger)

	mcpServer := mcp.NewServer(version, explorerSvc, analysisSvc, logger, tracer, inst)

	if cfg.Transport == "http" {
		return serveHTTP(ctx, cfg, mcpServer, logger)
	}

	stdioServer := mcpserver.NewStdioServer(mcpServer)
	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func serveHTTP(ctx context.Context, cfg *config.Config, mcpServer *mcpserver.MCPServer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	var handler http.Handler = mcpserver.NewStreamableHTTPServer(mcpServer)
	if cfg.HTTPRateLimit > 0 {
		handler = rateLimitMiddleware(handler, rate.NewLimiter(rate.Limit(cfg.HTTPRateLimit), cfg.HTTPRateBurst))
	}
	mux.Handle("/mcp", bearerAuthMiddleware(handler, cfg.HTTPBearerToken))
	mux.HandleFunc("/health", healthHandler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           recoveryMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over http", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func bearerAuthMiddleware(next http.Handler, token string) http.Handler {
	want := []byte("Bearer " + token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="sounder"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware rejects requests beyond the limiter's budget with 429.
func rateLimitMiddleware(next http.Handler, limiter *rate.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func recoveryMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("http handler panic",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"status":"ok"}`)
}

// redactDSN masks the password of a connection URL for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || strings.HasPrefix(dsn, "://") {
		return "***"
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
