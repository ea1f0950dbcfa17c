package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/inventory/internal/api/grpcapi"
	"github.com/vietddude/inventory/internal/api/httpapi"
	"github.com/vietddude/inventory/internal/core/config"
	"github.com/vietddude/inventory/internal/core/inventory"
	"github.com/vietddude/inventory/internal/core/ledger"
	"github.com/vietddude/inventory/internal/infra/catalog"
	"github.com/vietddude/inventory/internal/infra/events"
	redisclient "github.com/vietddude/inventory/internal/infra/redis"
	"github.com/vietddude/inventory/internal/infra/resilience"
	"github.com/vietddude/inventory/internal/infra/storage"
	"github.com/vietddude/inventory/internal/infra/storage/memory"
	"github.com/vietddude/inventory/internal/infra/storage/postgres"
	"github.com/vietddude/inventory/internal/metrics"
)

// App owns every component of the inventory service and their lifecycle.
type App struct {
	cfg         *config.AppConfig
	breaker     *resilience.Breaker
	catalog     *catalog.ResilientClient
	ledger      *ledger.Ledger
	service     *inventory.Service
	httpServer  *httpapi.Server
	grpcServer  *grpcapi.HealthServer
	publisher   events.Publisher
	db          *postgres.DB
	redisClient *redisclient.Client
}

// NewApp creates a new App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{cfg: cfg}

	// 1. Storage
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	// 2. Grant events
	a.publisher = events.Noop{}
	if cfg.Events.Enabled() {
		a.publisher = events.NewKafkaPublisher(cfg.Events)
		slog.Info("Publishing grant events", "topic", cfg.Events.Topic, "brokers", cfg.Events.Brokers)
	}

	// 3. Catalog client behind the circuit breaker
	a.breaker = resilience.NewBreaker("catalog", cfg.Catalog.BreakerConfig())
	a.breaker.Subscribe(logBreakerChange)
	a.breaker.Subscribe(recordBreakerChange)
	metrics.BreakerState.WithLabelValues(a.breaker.Name()).Set(float64(resilience.StateClosed))

	a.catalog = catalog.NewResilientClient(
		catalog.NewHTTPClient(cfg.Catalog.URL),
		a.breaker,
		cfg.Catalog.Timeout,
		cfg.Catalog.RetryPolicy(),
	)

	// 4. Ledger and orchestrator
	a.ledger = ledger.New(store,
		ledger.WithPublisher(a.publisher),
		ledger.WithConflictRetries(cfg.Storage.ConflictRetries, 0),
		ledger.WithPublishTimeout(cfg.Events.PublishTimeout),
	)
	a.service = inventory.NewService(a.ledger, a.catalog)

	// 5. Boundaries
	var httpOpts []httpapi.Option
	switch {
	case a.db != nil:
		httpOpts = append(httpOpts, httpapi.WithStoreHealth(a.db))
	case a.redisClient != nil:
		httpOpts = append(httpOpts, httpapi.WithStoreHealth(a.redisClient))
	}
	a.httpServer = httpapi.NewServer(a.service, a.breaker, cfg.Server.Port, httpOpts...)
	if cfg.Server.GRPCPort > 0 {
		a.grpcServer = grpcapi.NewHealthServer(cfg.Server.GRPCPort)
		a.breaker.Subscribe(a.grpcServer.OnBreakerChange)
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	switch a.cfg.Storage.Driver {
	case config.StoragePostgres:
		db, err := postgres.NewDB(ctx, a.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if a.cfg.Storage.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		a.db = db
		slog.Info("Using PostgreSQL storage", "driver", a.cfg.Database.Driver)
		return postgres.NewInventoryRepo(db), nil

	case config.StorageRedis:
		client, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = client
		slog.Info("Using Redis storage")
		return client, nil

	default:
		slog.Warn("Using in-memory storage, inventory is lost on restart")
		return memory.NewMemoryStorage(), nil
	}
}

// Service returns the grant/query orchestrator.
func (a *App) Service() *inventory.Service {
	return a.service
}

// Breaker returns the catalog circuit breaker.
func (a *App) Breaker() *resilience.Breaker {
	return a.breaker
}

// Catalog returns the resilient catalog client.
func (a *App) Catalog() *catalog.ResilientClient {
	return a.catalog
}

// Start starts the HTTP and gRPC servers and background collectors.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
		}
	}()
	slog.Info("HTTP server listening", "port", a.cfg.Server.Port)

	if a.grpcServer != nil {
		go func() {
			if err := a.grpcServer.Start(); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}
	return nil
}

// Stop shuts the servers down and releases every connection.
func (a *App) Stop(ctx context.Context) error {
	slog.Info("Stopping inventory service...")

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if a.grpcServer != nil {
		if err := a.grpcServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("grpc server: %w", err))
		}
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases stores and the event publisher without touching servers.
// Commands that never call Start use it directly.
func (a *App) Close() error {
	var errs []error
	if err := a.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("event publisher: %w", err))
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Migrate applies the postgres migrations for cfg.
func Migrate(ctx context.Context, cfg *config.AppConfig) error {
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	return db.Migrate(ctx)
}

func logBreakerChange(change resilience.StateChange) {
	switch change.To {
	case resilience.StateOpen:
		slog.Warn(fmt.Sprintf("Opening the circuit for %.0f seconds...", change.OpenFor.Seconds()),
			"breaker", change.Breaker,
			"failures", change.Failures,
		)
	case resilience.StateHalfOpen:
		slog.Info("Circuit half-open, probing", "breaker", change.Breaker)
	case resilience.StateClosed:
		slog.Info("Closing the circuit...", "breaker", change.Breaker)
	}
}

func recordBreakerChange(change resilience.StateChange) {
	metrics.BreakerState.WithLabelValues(change.Breaker).Set(float64(change.To))
	metrics.BreakerTransitions.WithLabelValues(change.Breaker, change.To.String()).Inc()
}
