package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/opsdeck/tenantd/internal/access"
	"github.com/opsdeck/tenantd/internal/audit"
	"github.com/opsdeck/tenantd/internal/cluster"
	"github.com/opsdeck/tenantd/internal/config"
	"github.com/opsdeck/tenantd/internal/handler"
	"github.com/opsdeck/tenantd/internal/health"
	"github.com/opsdeck/tenantd/internal/identity"
	"github.com/opsdeck/tenantd/internal/metrics"
	"github.com/opsdeck/tenantd/internal/server"
	"github.com/opsdeck/tenantd/internal/service"
	"github.com/opsdeck/tenantd/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	logger, err := buildLogger()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting tenantd")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.String("database_name", cfg.Database.Database),
		zap.Bool("in_cluster", cfg.Cluster.InCluster),
		zap.String("auth_mode", cfg.Auth.Mode))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
		logger.Info("Metrics initialized")
	}

	// Metadata store (PostgreSQL), shared pool for the event store and
	// the audit sink
	metadataStore, err := store.NewPostgresMetadataStore(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize metadata store", zap.Error(err))
	}
	if err := metadataStore.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("Failed to apply schema migrations", zap.Error(err))
	}
	logger.Info("Metadata store initialized")

	eventStore := store.NewPostgresEventStore(metadataStore.GetPool())
	logger.Info("Event store initialized")

	// Scope cache: Redis when enabled, otherwise in-memory
	var scopeCache store.Cache
	var redisCache *store.RedisScopeCache
	if cfg.Redis.Enabled {
		redisCache, err = store.NewRedisScopeCache(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Redis scope cache", zap.Error(err))
		}
		scopeCache = redisCache
		logger.Info("Redis scope cache initialized")
	} else {
		scopeCache = store.NewInMemoryCache(cfg.Cache.MaxSize, logger)
		logger.Info("In-memory scope cache initialized")
	}

	statusCache := store.NewInMemoryCache(cfg.Cache.MaxSize, logger)

	// Cluster gateway
	gateway, err := cluster.NewKubernetesGateway(cfg.Cluster.InCluster, cfg.Cluster.KubeconfigPath, logger)
	if err != nil {
		logger.Fatal("Failed to initialize cluster gateway", zap.Error(err))
	}
	logger.Info("Cluster gateway initialized")

	// Audit trail: structured log plus the database table
	auditSink := audit.NewMultiSink(logger,
		audit.NewLogSink(logger),
		audit.NewPostgresSink(metadataStore.GetPool(), logger),
	)

	// Token validation
	validator, err := buildValidator(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize token validator", zap.Error(err))
	}

	// Services
	resolver := access.NewResolver(metadataStore, scopeCache, cfg.Cache.ScopeTTL, auditSink, logger)
	tenantService := service.NewTenantService(
		metadataStore, eventStore, gateway, statusCache, cfg.Cache.TenantStatusTTL, auditSink, m, logger)
	scheduleService := service.NewScheduleService(metadataStore, auditSink, logger)
	metricsService := service.NewMetricsService(eventStore, logger)
	logger.Info("Services initialized")

	// Background engines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := service.NewScheduler(
		metadataStore, tenantService, cfg.Scheduler.PollInterval, cfg.Scheduler.ActionTimeout, m, logger)
	if cfg.Scheduler.Enabled {
		scheduler.Start(ctx)
	}

	reconciler := service.NewReconcileService(
		metadataStore, eventStore, gateway, cfg.Reconciler.Interval, auditSink, m, logger)
	if cfg.Reconciler.Enabled {
		reconciler.Start(ctx)
	}

	// HTTP surface
	tenantHandler := handler.NewTenantHandler(tenantService, metricsService, resolver, m, logger)
	scheduleHandler := handler.NewScheduleHandler(scheduleService, resolver, m, logger)
	permissionHandler := handler.NewPermissionHandler(resolver, logger)

	srv := server.NewServer(cfg, validator, tenantHandler, scheduleHandler, permissionHandler, logger)
	srv.SetupRoutes()

	// Metrics server
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Health probe server
	healthChecker := health.NewHealthChecker(metadataStore, eventStore, redisPinger(redisCache), logger)
	go func() {
		if err := health.StartHealthServer(healthChecker, cfg.Health.Port, logger); err != nil {
			logger.Error("Health check server failed", zap.Error(err))
		}
	}()

	// Start API server
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", zap.Error(err))
	}

	cancel()
	scheduler.Stop()
	reconciler.Stop()

	if redisCache != nil {
		redisCache.Close()
	}
	metadataStore.Close()

	logger.Info("tenantd stopped")
}

// buildLogger builds a production logger honoring LOG_LEVEL
func buildLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		parsed, err := zap.ParseAtomicLevel(level)
		if err == nil {
			cfg.Level = parsed
		}
	}
	return cfg.Build()
}

// buildValidator constructs the token validator for the configured mode
func buildValidator(cfg *config.Config, logger *zap.Logger) (identity.Validator, error) {
	switch cfg.Auth.Mode {
	case "userinfo":
		return identity.NewUserinfoValidator(cfg.Auth.UserinfoURL, cfg.Auth.ClientID, cfg.Auth.Timeout, logger), nil
	case "static":
		subjects := make(map[string]*identity.Subject, len(cfg.Auth.StaticTokens))
		for token, s := range cfg.Auth.StaticTokens {
			subjects[token] = &identity.Subject{
				ID:    s.SubjectID,
				Name:  s.Name,
				Email: s.Email,
				Roles: s.Roles,
			}
		}
		logger.Warn("Using static token validation; do not use in production")
		return identity.NewStaticValidator(subjects), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

// redisPinger widens the optional Redis cache without handing the
// health checker a typed nil
func redisPinger(c *store.RedisScopeCache) health.Pinger {
	if c == nil {
		return nil
	}
	return c
}
