package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/switchpay/gateway/config"
	"github.com/switchpay/gateway/handlers"
	"github.com/switchpay/gateway/middleware"
	"github.com/switchpay/gateway/repositories"
	"github.com/switchpay/gateway/repositories/postgres"
	"github.com/switchpay/gateway/services/dispatch"
	"github.com/switchpay/gateway/services/idempotency"
	"github.com/switchpay/gateway/services/payments"
	"github.com/switchpay/gateway/services/providers"
	"github.com/switchpay/gateway/services/routing"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repositories *repositories.Repositories

	// Domain services
	Registry       *providers.Registry
	Router         *routing.Service
	Executor       *dispatch.Executor
	Coordinator    *idempotency.Coordinator
	PaymentService *payments.Service

	// HTTP surface
	AuthMiddleware     *middleware.AuthMiddleware
	TransactionHandler *handlers.TransactionHandler
	HealthHandler      *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initServices(cfg)
	deps.initHTTP(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL connection, schema and repositories
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Repositories = factory.NewRepositories()
	d.Logger.Info("repositories initialized")
	return nil
}

// initProviders registers the simulated payment providers from config
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry := providers.NewRegistry()

	adapters := []struct {
		name string
		cfg  config.ProviderConfig
	}{
		{"stripe", cfg.Providers.Stripe},
		{"adyen", cfg.Providers.Adyen},
		{"rapyd", cfg.Providers.Rapyd},
		{"wise", cfg.Providers.Wise},
	}

	for _, a := range adapters {
		provider := providers.NewSimulatedProvider(providers.SimulatedConfig{
			Name:        a.name,
			MinLatency:  a.cfg.MinLatency,
			MaxLatency:  a.cfg.MaxLatency,
			FailureRate: a.cfg.FailureRate,
		})
		if err := registry.Register(provider); err != nil {
			return fmt.Errorf("failed to register provider %s: %w", a.name, err)
		}
		d.Logger.Info("registered payment provider",
			zap.String("provider", a.name),
			zap.Float64("failure_rate", a.cfg.FailureRate))
	}

	d.Registry = registry
	return nil
}

// initServices wires the routing, dispatch, idempotency and payment services
func (d *Dependencies) initServices(cfg *config.Config) {
	routingConfig := routing.DefaultConfig()
	if cfg.Routing.DefaultProvider != "" {
		routingConfig.DefaultProvider = cfg.Routing.DefaultProvider
	}
	d.Router = routing.NewService(routingConfig)

	d.Executor = dispatch.NewExecutor(dispatch.Config{
		MaxAttempts:     cfg.Dispatch.MaxAttempts,
		BackoffBase:     cfg.Dispatch.BackoffBase,
		BackoffJitter:   cfg.Dispatch.BackoffJitter,
		Timeout:         cfg.Dispatch.Timeout,
		BreakersEnabled: cfg.Dispatch.BreakersEnabled,
	}, d.Registry, d.Logger)

	d.Coordinator = idempotency.NewCoordinator(d.Repositories.Guards, d.Logger)

	d.PaymentService = payments.NewService(
		d.Repositories,
		d.Router,
		d.Executor,
		d.Coordinator,
		d.Logger,
	)
}

// initHTTP wires the middleware and handlers
func (d *Dependencies) initHTTP(cfg *config.Config) {
	d.AuthMiddleware = middleware.NewAuthMiddleware(cfg.Auth.Keys, d.Logger)
	d.TransactionHandler = handlers.NewTransactionHandler(d.PaymentService, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, d.Registry, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
