// Package config provides configuration management for the automation
// engine. It loads settings from environment variables with sensible
// defaults and validates them so the application starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Database Configuration:
//   - DATABASE_TYPE: Database type - "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./automation_engine.db)
//   - POSTGRES_HOST: PostgreSQL host (required if using PostgreSQL)
//   - POSTGRES_PORT: PostgreSQL port (default: 5432)
//   - POSTGRES_DB: PostgreSQL database name (required if using PostgreSQL)
//   - POSTGRES_USER: PostgreSQL username (required if using PostgreSQL)
//   - POSTGRES_PASSWORD: PostgreSQL password
//   - POSTGRES_SSL_MODE: PostgreSQL SSL mode (default: disable)
//
// Redis Configuration (optional, enables distributed coordination):
//   - REDIS_ADDRESS: Redis server address (empty disables Redis)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Security Configuration:
//   - JWT_SECRET: JWT signing secret (required, minimum 32 characters)
//
// Event Bus:
//   - EVENTS_BACKEND: "memory" or "rabbitmq" (default: memory)
//   - EVENT_WORKERS: In-process event worker count (default: 4)
//   - RABBITMQ_URL: RabbitMQ connection URL (required for rabbitmq backend)
//
// Sweep Scheduling:
//   - SWEEP_SCHEDULE: Cron expression for the trigger sweep (default: every minute)
//   - SWEEP_BATCH_LIMIT: Max inspections per sweep pass (default: 500)
//
// Email Delivery (optional, deliveries are logged when unset):
//   - SMTP_HOST: SMTP relay host
//   - SMTP_PORT: SMTP relay port (default: 587)
//   - SMTP_USERNAME: SMTP username
//   - SMTP_PASSWORD: SMTP password
//   - SMTP_FROM: From address for outgoing mail
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration values for the automation engine. Every
// field corresponds to an environment variable. Load fills it and Validate
// must pass before the values are used.
type Config struct {
	// Application settings
	Port     string
	LogLevel string

	// Database configuration
	DatabaseType     string
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Redis configuration for distributed coordination
	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	// JWT authentication configuration
	JWTSecret string

	// Event bus configuration
	EventsBackend string
	EventWorkers  string
	RabbitMQURL   string

	// Sweep configuration
	SweepSchedule   string
	SweepBatchLimit string

	// SMTP delivery configuration
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load creates a Config with values from the environment, falling back to
// defaults for anything unset. Call Validate before using the result.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./automation_engine.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "automation_engine"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		EventsBackend: getEnv("EVENTS_BACKEND", "memory"),
		EventWorkers:  getEnv("EVENT_WORKERS", "4"),
		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),

		SweepSchedule:   getEnv("SWEEP_SCHEDULE", "* * * * *"),
		SweepBatchLimit: getEnv("SWEEP_BATCH_LIMIT", "500"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate checks required fields, value formats and cross-field
// dependencies. The application must not start if this fails.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.DatabaseType {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.DatabaseType == "postgres" || c.DatabaseType == "postgresql" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	}

	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	switch c.EventsBackend {
	case "memory":
		if workers, err := strconv.Atoi(c.EventWorkers); err != nil || workers < 1 {
			return fmt.Errorf("EVENT_WORKERS must be a positive number")
		}
	case "rabbitmq":
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when EVENTS_BACKEND is 'rabbitmq'")
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be 'memory' or 'rabbitmq'")
	}

	if limit, err := strconv.Atoi(c.SweepBatchLimit); err != nil || limit < 1 {
		return fmt.Errorf("SWEEP_BATCH_LIMIT must be a positive number")
	}

	if c.SMTPHost != "" {
		if port, err := strconv.Atoi(c.SMTPPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("SMTP_PORT must be a valid port number")
		}
		if c.SMTPFrom == "" {
			return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
		}
	}

	return nil
}
