// Package scheduler runs the periodic sweep that fires date-relative
// triggers and event triggers held back by business-hour or weekend gates.
// The sweep is the safety net: anything the immediate event path could not
// fire becomes due here once its gated time passes.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "automation-engine/internal/common/errors"
	"automation-engine/internal/common/logging"
)

// Sweeper is the narrow slice of the automation service the sweep needs
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time, limit int) (int, error)
}

// LockManager coordinates sweep runs across instances. A nil manager means
// single-instance deployment and no coordination.
type LockManager interface {
	AcquireSweepLock(ctx context.Context) (Lock, error)
}

// Lock is the held sweep lock
type Lock interface {
	Release(ctx context.Context) error
}

// Config tunes the sweep worker
type Config struct {
	// Schedule is a cron expression; the default sweeps every minute
	Schedule string
	// BatchLimit caps how many inspections one sweep run examines
	BatchLimit int
}

// DefaultConfig returns the default sweep settings
func DefaultConfig() Config {
	return Config{
		Schedule:   "* * * * *",
		BatchLimit: 500,
	}
}

// Worker drives the sweep on a cron schedule
type Worker struct {
	sweeper Sweeper
	locks   LockManager
	config  Config
	cron    *cron.Cron
	logger  logging.Logger
}

// NewWorker creates a sweep worker. Pass a nil lock manager to run without
// cross-instance coordination.
func NewWorker(sweeper Sweeper, locks LockManager, config Config, logger logging.Logger) *Worker {
	if config.Schedule == "" {
		config.Schedule = DefaultConfig().Schedule
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = DefaultConfig().BatchLimit
	}
	return &Worker{
		sweeper: sweeper,
		locks:   locks,
		config:  config,
		cron:    cron.New(),
		logger:  logger.WithFields(logging.Component("sweeper")),
	}
}

// Start registers the cron entry and begins sweeping
func (w *Worker) Start(ctx context.Context) error {
	_, err := w.cron.AddFunc(w.config.Schedule, func() {
		w.RunOnce(ctx)
	})
	if err != nil {
		return apperrors.ConfigError("invalid sweep schedule " + w.config.Schedule)
	}

	w.cron.Start()
	w.logger.Info("Sweep worker started",
		logging.Field{Key: "schedule", Value: w.config.Schedule},
		logging.Field{Key: "batch_limit", Value: w.config.BatchLimit},
	)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (w *Worker) Stop() {
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	w.logger.Info("Sweep worker stopped")
}

// RunOnce performs a single sweep pass, holding the cluster lock if one is
// configured. A pass skipped because another instance holds the lock is
// not an error.
func (w *Worker) RunOnce(ctx context.Context) {
	if w.locks != nil {
		lock, err := w.locks.AcquireSweepLock(ctx)
		if err != nil {
			w.logger.Debug("Sweep lock held elsewhere, skipping pass")
			return
		}
		defer func() { _ = lock.Release(ctx) }()
	}

	started := time.Now()
	fired, err := w.sweeper.Sweep(ctx, time.Now().UTC(), w.config.BatchLimit)
	if err != nil {
		w.logger.Error("Sweep pass failed", err)
		return
	}

	if fired > 0 {
		w.logger.Info("Sweep pass complete",
			logging.Field{Key: "fired", Value: fired},
			logging.Field{Key: "elapsed", Value: time.Since(started).String()},
		)
	}
}
