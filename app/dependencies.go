package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/taskflow/ai-backend/config"
	"github.com/taskflow/ai-backend/handlers"
	"github.com/taskflow/ai-backend/internal/observability"
	"github.com/taskflow/ai-backend/middleware"
	"github.com/taskflow/ai-backend/repositories"
	"github.com/taskflow/ai-backend/repositories/memory"
	"github.com/taskflow/ai-backend/repositories/postgres"
	"github.com/taskflow/ai-backend/repositories/redis"
	"github.com/taskflow/ai-backend/services/ai"
	"github.com/taskflow/ai-backend/services/providers"
	"github.com/taskflow/ai-backend/services/providers/anthropic"
	"github.com/taskflow/ai-backend/services/providers/cerebras"
	"github.com/taskflow/ai-backend/services/providers/openai"
	"github.com/taskflow/ai-backend/services/settings"
	"github.com/taskflow/ai-backend/services/usage"
	"go.uber.org/zap"
)

// Dependencies is the central wiring point of the service
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB
	Redis  *redis.Client

	// Repositories
	Settings  repositories.SettingsRepository
	Usage     repositories.UsageRepository
	TxManager repositories.TransactionManager

	// Services
	Registry        *providers.Registry
	Tracker         *usage.Tracker
	SettingsService *settings.Service
	AIManager       *ai.Manager

	// HTTP
	AuthMiddleware  *middleware.AuthMiddleware
	SettingsHandler *handlers.SettingsHandler
	AIHandler       *handlers.AIHandler
	HealthHandler   *handlers.HealthHandler

	// Observability
	Metrics         *observability.Metrics
	shutdownTracing func(context.Context) error
	repoFactory     *postgres.RepositoryFactory
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initObservability(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := deps.initStores(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize stores: %w", err)
	}

	deps.initServices(cfg)
	deps.initAuth(cfg)
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully",
		zap.String("settings_store", cfg.AI.SettingsStore),
		zap.String("usage_store", cfg.AI.UsageStore),
		zap.Strings("providers", deps.Registry.Names()))
	return deps, nil
}

func (d *Dependencies) initObservability(ctx context.Context, cfg *config.Config) error {
	if cfg.Observability.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		d.Metrics = observability.NewMetrics(reg)
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.Observability.ServiceName,
		Endpoint:    cfg.Observability.TracingEndpoint,
		SampleRate:  cfg.Observability.TracingSampleRate,
		Enabled:     cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return err
	}
	d.shutdownTracing = shutdown
	return nil
}

// initStores opens only the backends the configured stores need
func (d *Dependencies) initStores(ctx context.Context, cfg *config.Config) error {
	if cfg.NeedsDatabase() {
		factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.repoFactory = factory
		d.DB = factory.GetDB()

		if err := d.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		if err := d.DB.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		d.Logger.Info("database connection established",
			zap.String("connection", cfg.Database.LogString()))
	}

	if cfg.NeedsRedis() {
		client, err := redis.NewClient(cfg.Redis, d.Logger)
		if err != nil {
			return err
		}
		d.Redis = client
	}

	switch cfg.AI.SettingsStore {
	case config.StorePostgres:
		repos := d.repoFactory.NewRepositories()
		d.Settings = repos.Settings
		d.TxManager = d.repoFactory.GetTransactionManager()
	default:
		d.Settings = memory.NewSettingsRepository()
		d.TxManager = memory.NewTransactionManager()
	}

	switch cfg.AI.UsageStore {
	case config.StorePostgres:
		d.Usage = d.repoFactory.NewRepositories().Usage
	case config.StoreRedis:
		d.Usage = redis.NewUsageRepository(d.Redis, d.Logger)
	default:
		d.Usage = memory.NewUsageRepository(cfg.AI.UsageRetentionDays)
	}

	d.Logger.Info("repositories initialized")
	return nil
}

// NewRegistry returns a registry holding every supported vendor adapter
func NewRegistry() *providers.Registry {
	return providers.NewRegistry().
		WithBuilder(providers.Cerebras, cerebras.Build).
		WithBuilder(providers.OpenAI, openai.Build).
		WithBuilder(providers.Anthropic, anthropic.Build)
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.Registry = NewRegistry()
	d.Tracker = usage.NewTracker(d.Usage, d.Logger)
	d.SettingsService = settings.NewService(d.Settings, d.TxManager, d.Logger)
	d.AIManager = ai.NewManager(ai.ManagerDeps{
		Registry: d.Registry,
		Settings: d.Settings,
		Tracker:  d.Tracker,
		Config:   cfg.AI,
		Metrics:  d.Metrics,
		Logger:   d.Logger,
	})
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	switch {
	case cfg.Auth.Disabled:
		d.Logger.Warn("authentication disabled, every request runs as the local admin")
		d.AuthMiddleware = middleware.NewDisabledAuthMiddleware(d.Logger)
	case cfg.Auth.JWTSecret != "":
		d.AuthMiddleware = middleware.NewAuthMiddleware(
			middleware.NewHMACValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer), d.Logger)
	default:
		d.Logger.Warn("AUTH_JWT_SECRET not set, protected routes will reject every request")
		d.AuthMiddleware = middleware.NewAuthMiddleware(middleware.RejectAllValidator{}, d.Logger)
	}
}

func (d *Dependencies) initHandlers() {
	d.SettingsHandler = handlers.NewSettingsHandler(d.AIManager, d.SettingsService, d.Logger)
	d.AIHandler = handlers.NewAIHandler(d.AIManager, d.Logger)

	var checks []handlers.HealthCheck
	if d.DB != nil {
		checks = append(checks, handlers.HealthCheck{Name: "database", Check: d.DB.HealthCheck})
	}
	if d.Redis != nil {
		checks = append(checks, handlers.HealthCheck{Name: "redis", Check: d.Redis.HealthCheck})
	}
	d.HealthHandler = handlers.NewHealthHandler(d.Logger, checks...)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.shutdownTracing != nil {
		if err := d.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.repoFactory != nil {
		if err := d.repoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
