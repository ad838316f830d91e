package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"automation-engine/internal/automation"
	"automation-engine/internal/common/logging"
	"automation-engine/internal/events"
	"automation-engine/internal/storage"
)

// eventDedupTTL bounds how long a processed event id is remembered. Long
// enough to cover any realistic broker redelivery window.
const eventDedupTTL = 24 * time.Hour

func (app *App) initializeEvents() error {
	switch app.Config.EventsBackend {
	case "rabbitmq":
		bus, err := events.NewRabbitBus(app.Config.RabbitMQURL, app.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect event broker: %w", err)
		}
		app.Bus = bus
		app.Logger.Info("Event bus: RabbitMQ")
		return nil

	case "memory", "":
		app.Bus = events.NewMemoryBus(atoi(app.Config.EventWorkers, 4), app.Logger)
		app.Logger.Info("Event bus: in-memory")
		return nil

	default:
		return fmt.Errorf("unsupported events backend: %s", app.Config.EventsBackend)
	}
}

// eventHandler processes queued inspection events. The broker delivers at
// least once, so when Redis is available each event id is claimed there
// before the engine runs.
func (app *App) eventHandler() events.Handler {
	return func(ctx context.Context, envelope *events.Envelope) error {
		if app.RedisClient != nil && envelope.ID != "" {
			fresh, err := app.RedisClient.MarkEventSeen(ctx, envelope.ID, eventDedupTTL)
			if err != nil {
				app.Logger.Warn("Event dedup check failed, processing anyway",
					logging.Field{Key: "event_id", Value: envelope.ID},
					logging.Field{Key: "error", Value: err.Error()})
			} else if !fresh {
				app.Logger.Debug("Skipping already processed event",
					logging.Field{Key: "event_id", Value: envelope.ID})
				return nil
			}
		}

		err := app.Engine.ProcessEvent(ctx, envelope.InspectionID, envelope.Key)
		if errors.Is(err, automation.ErrInspectionNotFound) || errors.Is(err, storage.ErrNotFound) {
			// The inspection was deleted while the event sat in the queue.
			// Requeueing would redeliver the same event forever, so drop it.
			app.Logger.Info("Dropping event for missing inspection",
				logging.Field{Key: "event_id", Value: envelope.ID},
				logging.InspectionID(envelope.InspectionID),
				logging.Field{Key: "trigger_key", Value: string(envelope.Key)})
			return nil
		}
		return err
	}
}
