package app

import (
	"context"
	"fmt"

	"automation-engine/internal/common/logging"
	"automation-engine/internal/storage/postgres"
	"automation-engine/internal/storage/sqlite"
)

func (app *App) initializeStorage(ctx context.Context) error {
	switch app.Config.DatabaseType {
	case "postgres", "postgresql":
		app.Logger.Info("Database: PostgreSQL",
			logging.Field{Key: "host", Value: app.Config.PostgresHost},
			logging.Field{Key: "port", Value: app.Config.PostgresPort},
			logging.Field{Key: "database", Value: app.Config.PostgresDB},
		)
		store, err := postgres.NewAdapter(ctx, &postgres.Config{
			Host:     app.Config.PostgresHost,
			Port:     app.Config.PostgresPort,
			Database: app.Config.PostgresDB,
			User:     app.Config.PostgresUser,
			Password: app.Config.PostgresPassword,
			SSLMode:  app.Config.PostgresSSLMode,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		app.Storage = store
		return nil

	case "sqlite", "":
		path := app.Config.DatabasePath
		if path == "" {
			path = "./automation_engine.db"
		}
		app.Logger.Info("Database: SQLite", logging.Field{Key: "path", Value: path})
		store, err := sqlite.NewAdapter(path)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		app.Storage = store
		return nil

	default:
		return fmt.Errorf("unsupported database type: %s", app.Config.DatabaseType)
	}
}
