// Package control wires storage, tracking, validation and the HTTP surface
// into one application lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/streamwatch/internal/api"
	"github.com/vietddude/streamwatch/internal/core/config"
	"github.com/vietddude/streamwatch/internal/core/fingerprint"
	redisclient "github.com/vietddude/streamwatch/internal/infra/redis"
	"github.com/vietddude/streamwatch/internal/infra/schema"
	"github.com/vietddude/streamwatch/internal/infra/storage"
	"github.com/vietddude/streamwatch/internal/infra/storage/memory"
	"github.com/vietddude/streamwatch/internal/infra/storage/postgres"
	"github.com/vietddude/streamwatch/internal/query"
	"github.com/vietddude/streamwatch/internal/tracking"
	"github.com/vietddude/streamwatch/internal/validation"
)

// App is the main application struct that manages the service lifecycle.
type App struct {
	cfg         *config.AppConfig
	tracker     *tracking.Tracker
	server      *api.Server
	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger
}

// NewApp creates an App with all dependencies initialized. With an empty
// database URL everything runs on in-memory storage; with an empty redis URL
// command statuses are kept in process.
func NewApp(cfg *config.AppConfig) (*App, error) {

	// 1. Initialize Storage
	var statusRepo storage.StreamStatusRepository
	var hashRepo storage.StreamErrorHashRepository
	var errorRepo storage.StreamErrorRepository
	var eventRepo storage.PublishedEventRepository
	var uowFactory storage.UnitOfWorkFactory
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		statusRepo = postgres.NewStreamStatusRepo(db)
		hashRepo = postgres.NewErrorHashRepo(db)
		errorRepo = postgres.NewStreamErrorRepo(db)
		eventRepo = postgres.NewPublishedEventRepo(db)
		uowFactory = db

		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		statusRepo = memory.NewStreamStatusRepo(store)
		hashRepo = memory.NewErrorHashRepo(store)
		errorRepo = memory.NewStreamErrorRepo(store)
		eventRepo = memory.NewPublishedEventRepo(store)
		uowFactory = memory.NewUnitOfWorkFactory(store)

		slog.Info("Using Memory storage")
	}

	// 2. Command status store: redis when configured, in-process otherwise
	var redisClient *redisclient.Client
	var commandStore validation.StatusStore
	var commandLock validation.Locker
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		commandStore = redisClient
		commandLock = redisClient
		slog.Info("Using Redis command store")
	} else {
		memoryCommands := validation.NewMemoryCommandStore()
		commandStore = memoryCommands
		commandLock = memoryCommands
		slog.Info("Using Memory command store")
	}

	// 3. Schema registry
	registry, err := schema.NewRegistryFromDir(cfg.Schemas.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Schema directory not found, validation will fail every event", "dir", cfg.Schemas.Dir)
		registry = schema.NewRegistry()
	} else if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	// 4. Core services
	tracker := tracking.New(tracking.Config{
		Fingerprint: fingerprint.Options{IncludeLineNumber: cfg.Tracking.IncludeLineNumber},
	}, statusRepo, uowFactory)
	queries := query.NewService(statusRepo, errorRepo, hashRepo)
	validator := validation.NewValidator(eventRepo, registry, cfg.Validation.BatchSize)
	runner := validation.NewRunner(validator, commandStore, commandLock)

	// 5. HTTP surface
	checks := make(map[string]api.HealthCheck)
	if db != nil {
		checks["database"] = db.Health
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}
	server := api.NewServer(api.NewHandlers(queries, runner), checks, cfg.Server.Port)

	return &App{
		cfg:         cfg,
		tracker:     tracker,
		server:      server,
		db:          db,
		redisClient: redisClient,
		log:         slog.Default(),
	}, nil
}

// Tracker exposes the status tracker for in-process consumers.
func (a *App) Tracker() *tracking.Tracker {
	return a.tracker
}

// Start starts the HTTP server and background collectors.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.server.Start(); err != nil {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	a.log.Info("Streamwatch started", "port", a.cfg.Server.Port)
	return nil
}

// Stop shuts everything down in reverse order.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping streamwatch...")

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	return a.server.Stop(ctx)
}
