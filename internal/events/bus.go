// Package events carries inspection business events from the HTTP surface
// to the workers that process them. Two implementations exist: an in-process
// bus for single-node deployments and a RabbitMQ bus for setups where the
// event producers live in other services.
package events

import (
	"context"
	"time"

	"automation-engine/internal/models"
)

// Envelope is one inspection business event on the wire
type Envelope struct {
	ID           string            `json:"id"`
	InspectionID string            `json:"inspection_id"`
	Key          models.TriggerKey `json:"trigger_key"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// Handler processes one event. Returning an error requeues the event on
// implementations that support it.
type Handler func(ctx context.Context, envelope *Envelope) error

// Bus publishes and consumes inspection events
type Bus interface {
	Publish(ctx context.Context, envelope *Envelope) error
	Subscribe(ctx context.Context, handler Handler) error
	Health() error
	Close() error
}
