package events

import (
	"context"
	"sync"

	apperrors "automation-engine/internal/common/errors"
	"automation-engine/internal/common/logging"
)

const defaultQueueDepth = 256

// MemoryBus is an in-process bus backed by a buffered channel and a small
// worker pool. Events do not survive a restart; deployments that need
// durability run the RabbitMQ bus instead.
type MemoryBus struct {
	queue   chan *Envelope
	done    chan struct{}
	workers int
	logger  logging.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
	started bool
}

// NewMemoryBus creates an in-process bus with the given worker count
func NewMemoryBus(workers int, logger logging.Logger) *MemoryBus {
	if workers <= 0 {
		workers = 4
	}
	return &MemoryBus{
		queue:   make(chan *Envelope, defaultQueueDepth),
		done:    make(chan struct{}),
		workers: workers,
		logger:  logger.WithFields(logging.Component("events")),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, envelope *Envelope) error {
	select {
	case <-b.done:
		return apperrors.ConnectionError("event bus is closed", nil)
	default:
	}

	select {
	case b.queue <- envelope:
		return nil
	case <-b.done:
		return apperrors.ConnectionError("event bus is closed", nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe starts the worker pool. It may be called once; the workers run
// until the context is cancelled or the bus is closed.
func (b *MemoryBus) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return apperrors.ConnectionError("event bus is closed", nil)
	}
	if b.started {
		return apperrors.InternalError("event bus already has a subscriber", nil)
	}
	b.started = true

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx, handler)
	}
	return nil
}

func (b *MemoryBus) worker(ctx context.Context, handler Handler) {
	defer b.wg.Done()
	for {
		select {
		case envelope := <-b.queue:
			if err := handler(ctx, envelope); err != nil {
				b.logger.Error("Event handler failed", err,
					logging.Field{Key: "event_id", Value: envelope.ID},
					logging.InspectionID(envelope.InspectionID),
					logging.Field{Key: "trigger_key", Value: string(envelope.Key)},
				)
			}
		case <-b.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *MemoryBus) Health() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return apperrors.ConnectionError("event bus is closed", nil)
	}
	return nil
}

// Close stops accepting events and waits for in-flight handlers. Queued
// events that no worker picked up yet are dropped.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
