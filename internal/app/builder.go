package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/stacklok/catalog-sync-server/internal/api"
	"github.com/stacklok/catalog-sync-server/internal/app/storage"
	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/httpclient"
	"github.com/stacklok/catalog-sync-server/internal/notify"
	"github.com/stacklok/catalog-sync-server/internal/sources"
	pkgsync "github.com/stacklok/catalog-sync-server/internal/sync"
	"github.com/stacklok/catalog-sync-server/internal/sync/coordinator"
	"github.com/stacklok/catalog-sync-server/internal/sync/writer"
	"github.com/stacklok/catalog-sync-server/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// tracerName scopes the spans emitted by the sync pipeline
	tracerName = "github.com/stacklok/catalog-sync-server/sync"
)

// SyncAppOptions is a function that configures the sync app builder
type SyncAppOptions func(*syncAppConfig) error

// syncAppConfig holds the builder state. Component overrides exist mainly for tests.
type syncAppConfig struct {
	config *config.Config

	storageFactory storage.Factory
	handlerFactory sources.SourceHandlerFactory
	syncManager    pkgsync.Manager
	notifier       notify.Notifier
	telemetry      *telemetry.Telemetry
	migrate        bool

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...SyncAppOptions) (*syncAppConfig, error) {
	cfg := &syncAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewSyncApp builds every component from the configuration
func NewSyncApp(ctx context.Context, opts ...SyncAppOptions) (*SyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if cfg.storageFactory == nil {
		if cfg.migrate && cfg.config.GetStorageType() == config.StorageTypeDatabase {
			cfg.storageFactory, err = storage.NewDatabaseFactory(ctx, cfg.config, storage.WithMigrations(true))
		} else {
			cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	components := &AppComponents{Storage: cfg.storageFactory}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if !cleanupNeeded {
			return
		}
		for _, closeFn := range components.closers {
			_ = closeFn()
		}
		if components.Telemetry != nil {
			_ = components.Telemetry.Shutdown(context.WithoutCancel(ctx))
		}
		cfg.storageFactory.Cleanup()
	}()

	if cfg.telemetry == nil {
		cfg.telemetry, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.config.Telemetry))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}
	components.Telemetry = cfg.telemetry

	// Executions outlive the request that started them but stop on shutdown
	runCtx, runCancel := context.WithCancel(context.WithoutCancel(ctx))

	if err := buildSyncComponents(ctx, runCtx, cfg, components); err != nil {
		runCancel()
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, components)
	if err != nil {
		runCancel()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	cleanupNeeded = false
	return &SyncApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		runCancel:  runCancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		parts := strings.SplitN(addr, ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		host, port := parts[0], parts[1]
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithSourceHandlerFactory allows injecting a custom source handler factory (for testing)
func WithSourceHandlerFactory(f sources.SourceHandlerFactory) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.handlerFactory = f
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager (for testing)
func WithSyncManager(m pkgsync.Manager) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.syncManager = m
		return nil
	}
}

// WithNotifier allows injecting a custom notifier (for testing)
func WithNotifier(n notify.Notifier) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.notifier = n
		return nil
	}
}

// WithTelemetry uses already initialized telemetry providers
func WithTelemetry(t *telemetry.Telemetry) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithMigrations applies pending database migrations on startup
func WithMigrations(enabled bool) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.migrate = enabled
		return nil
	}
}

// buildSyncComponents wires the pipeline, the tracker and the orchestrator
func buildSyncComponents(
	ctx context.Context,
	runCtx context.Context,
	b *syncAppConfig,
	components *AppComponents,
) error {
	slog.Info("Initializing sync components")

	products, err := b.storageFactory.CreateProductStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to create product store: %w", err)
	}
	tracker, err := b.storageFactory.CreateExecutionTracker(ctx)
	if err != nil {
		return fmt.Errorf("failed to create execution tracker: %w", err)
	}
	components.Tracker = tracker

	client := httpclient.NewDefaultClient(b.config.Sync.GetFetchTimeout())
	tracer := b.telemetry.TracerProvider().Tracer(tracerName)

	if b.handlerFactory == nil {
		factoryOpts := []sources.FactoryOption{
			sources.WithHandlerOptions(sources.WithMaxAttempts(b.config.Sync.GetFetchRetries())),
		}
		cache, closeFn, err := buildPayloadCache(b.config.FetchCache)
		if err != nil {
			return err
		}
		if closeFn != nil {
			components.closers = append(components.closers, closeFn)
		}
		if cache != nil {
			factoryOpts = append(factoryOpts, sources.WithPayloadCache(cache, b.config.FetchCache.GetTTL()))
			slog.Info("Fetch cache enabled", "type", b.config.FetchCache.GetType(), "ttl", b.config.FetchCache.GetTTL())
		}
		b.handlerFactory = sources.NewSourceHandlerFactory(client, factoryOpts...)
	}

	if b.syncManager == nil {
		b.syncManager = pkgsync.NewDefaultSyncManager(
			b.handlerFactory,
			products,
			writer.NewCatalogWriter(products),
			pkgsync.WithTracer(tracer),
		)
	}

	if b.notifier == nil {
		b.notifier = notify.NewDispatcher(b.config.NotificationChannels, client)
	}

	coordOpts := []coordinator.Option{
		coordinator.WithNotifier(b.notifier),
		coordinator.WithTracer(tracer),
		coordinator.WithBaseContext(runCtx),
	}

	syncMetrics, err := telemetry.NewSyncMetrics(b.telemetry.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}
	if syncMetrics != nil {
		coordOpts = append(coordOpts, coordinator.WithSyncMetrics(syncMetrics))
	}

	components.Orchestrator = coordinator.New(
		b.syncManager,
		tracker,
		sources.NewConfigIntegrationResolver(b.config),
		b.config.Sync,
		coordOpts...,
	)

	slog.Info("Sync components initialized successfully",
		"storage", b.config.GetStorageType(),
		"sync_configurations", len(b.config.SyncConfigurations))
	return nil
}

// buildPayloadCache returns the configured fetch cache. Both return values are
// nil when caching is disabled.
func buildPayloadCache(fc *config.FetchCacheConfig) (sources.PayloadCache, func() error, error) {
	switch fc.GetType() {
	case config.CacheTypeNone:
		return nil, nil, nil
	case config.CacheTypeMemory:
		return sources.NewMemoryCache(), nil, nil
	case config.CacheTypeRedis:
		if fc.Redis == nil {
			return nil, nil, fmt.Errorf("redis settings are required for the redis fetch cache")
		}
		opts := &redis.Options{Addr: fc.Redis.Address, DB: fc.Redis.DB}
		if fc.Redis.PasswordEnv != "" {
			opts.Password = os.Getenv(fc.Redis.PasswordEnv)
		}
		client := redis.NewClient(opts)
		return sources.NewRedisCache(client, fc.Redis.KeyPrefix), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown fetch cache type: %s", fc.GetType())
	}
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *syncAppConfig, components *AppComponents) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Metrics and tracing go first so rejected and timed out requests are observed
	metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	front := []func(http.Handler) http.Handler{telemetry.TracingMiddleware(b.telemetry.TracerProvider())}
	if metricsMiddleware != nil {
		front = append(front, metricsMiddleware)
	}
	b.middlewares = append(front, b.middlewares...)

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if path, handler, ok := b.telemetry.MetricsHandler(); ok {
		serverOpts = append(serverOpts, api.WithMetricsHandler(path, handler))
		slog.Info("Prometheus metrics endpoint enabled", "path", path)
	}

	router := api.NewServer(components.Orchestrator, components.Tracker, b.config, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
