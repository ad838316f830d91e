// Package app wires the engine's components together and owns their
// lifecycles.
package app

import (
	"context"
	"fmt"
	"strconv"

	"automation-engine/internal/actions"
	"automation-engine/internal/auth"
	"automation-engine/internal/automation"
	"automation-engine/internal/common/logging"
	"automation-engine/internal/config"
	"automation-engine/internal/events"
	"automation-engine/internal/handlers"
	"automation-engine/internal/locks"
	"automation-engine/internal/redis"
	"automation-engine/internal/scheduler"
	"automation-engine/internal/storage"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Storage     storage.Storage
	RedisClient *redis.Client
	Locks       *locks.Manager
	Bus         events.Bus
	Sender      automation.Sender
	Auth        *auth.Service
	Registry    *actions.Registry
	Engine      *automation.Service
	Sweeper     *scheduler.Worker
	Handlers    *handlers.Handlers
	Logger      logging.Logger
}

// New creates a new application instance with all dependencies
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Component("app")),
	}

	// Initialize components in order of dependency
	if err := app.initializeStorage(ctx); err != nil {
		return nil, err
	}

	if err := app.initializeRedis(); err != nil {
		// Redis is optional, distributed coordination is simply disabled
		app.Logger.Warn("Redis initialization failed, continuing without Redis",
			logging.Field{Key: "error", Value: err.Error()})
	}

	if err := app.initializeEvents(); err != nil {
		return nil, err
	}

	if err := app.initializeDelivery(); err != nil {
		return nil, err
	}

	authService, err := auth.NewService(app.Storage, cfg.JWTSecret, app.Logger)
	if err != nil {
		return nil, err
	}
	app.Auth = authService

	app.Registry = actions.NewRegistry(app.Storage, app.Logger)
	app.Engine = automation.NewService(app.Storage, app.Sender, app.Logger)

	if err := app.initializeSweeper(); err != nil {
		return nil, err
	}

	app.Handlers = handlers.New(app.Storage, app.Registry, app.Engine, app.Bus, app.Auth, app.Logger)
	return app, nil
}

func (app *App) initializeRedis() error {
	if app.Config.RedisAddress == "" {
		app.Logger.Info("Redis not configured, running single-instance")
		return nil
	}

	client, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       atoi(app.Config.RedisDB, 0),
		PoolSize: atoi(app.Config.RedisPoolSize, 10),
	})
	if err != nil {
		return err
	}
	app.RedisClient = client

	manager, err := locks.NewManager(client)
	if err != nil {
		return err
	}
	app.Locks = manager

	app.Logger.Info("Redis connected", logging.Field{Key: "address", Value: app.Config.RedisAddress})
	return nil
}

func (app *App) initializeSweeper() error {
	var lockManager scheduler.LockManager
	if app.Locks != nil {
		lockManager = sweepLocks{manager: app.Locks}
	}

	app.Sweeper = scheduler.NewWorker(app.Engine, lockManager, scheduler.Config{
		Schedule:   app.Config.SweepSchedule,
		BatchLimit: atoi(app.Config.SweepBatchLimit, scheduler.DefaultConfig().BatchLimit),
	}, app.Logger)
	return nil
}

// Start brings up the background workers
func (app *App) Start(ctx context.Context) error {
	if err := app.Bus.Subscribe(ctx, app.eventHandler()); err != nil {
		return fmt.Errorf("failed to start event workers: %w", err)
	}
	if err := app.Sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweep worker: %w", err)
	}
	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Sweeper != nil {
		app.Sweeper.Stop()
	}
	if app.Bus != nil {
		if err := app.Bus.Close(); err != nil {
			app.Logger.Warn("Error closing event bus",
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
	if app.Locks != nil {
		app.Locks.Close()
	}
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			app.Logger.Warn("Error closing Redis client",
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
	if app.Storage != nil {
		if err := app.Storage.Close(); err != nil {
			app.Logger.Warn("Error closing storage",
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
}

// sweepLocks adapts the lock manager to the scheduler's coordination
// interface
type sweepLocks struct {
	manager *locks.Manager
}

func (s sweepLocks) AcquireSweepLock(ctx context.Context) (scheduler.Lock, error) {
	lock, err := s.manager.AcquireSweepLock(ctx)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// atoi parses the already-validated numeric config strings
func atoi(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
