package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/streadway/amqp"

	apperrors "automation-engine/internal/common/errors"
	"automation-engine/internal/common/logging"
)

const eventQueue = "inspection-events"

// RabbitBus is an AMQP-backed bus. Events are published persistent to a
// durable queue, acked on successful handling and requeued on handler
// errors, so a crashed worker never loses an event.
type RabbitBus struct {
	url    string
	logger logging.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	closed bool
}

// NewRabbitBus connects to the broker and declares the event queue
func NewRabbitBus(url string, logger logging.Logger) (*RabbitBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, apperrors.ConnectionError("failed to connect to RabbitMQ", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, apperrors.ConnectionError("failed to open RabbitMQ channel", err)
	}

	if _, err := pubCh.QueueDeclare(eventQueue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, apperrors.InternalError("failed to declare event queue", err)
	}

	return &RabbitBus{
		url:    url,
		conn:   conn,
		pubCh:  pubCh,
		logger: logger.WithFields(logging.Component("events")),
	}, nil
}

func (b *RabbitBus) Publish(ctx context.Context, envelope *Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return apperrors.InternalError("failed to encode event", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return apperrors.ConnectionError("event bus is closed", nil)
	}

	err = b.pubCh.Publish("", eventQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    envelope.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return apperrors.ConnectionError("failed to publish event", err)
	}
	return nil
}

func (b *RabbitBus) Subscribe(ctx context.Context, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return apperrors.ConnectionError("failed to open consumer channel", err)
	}

	deliveries, err := ch.Consume(eventQueue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return apperrors.InternalError("failed to start consuming events", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				b.handle(ctx, handler, delivery)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (b *RabbitBus) handle(ctx context.Context, handler Handler, delivery amqp.Delivery) {
	var envelope Envelope
	if err := json.Unmarshal(delivery.Body, &envelope); err != nil {
		b.logger.Error("Dropping undecodable event", err,
			logging.Field{Key: "message_id", Value: delivery.MessageId},
		)
		_ = delivery.Nack(false, false)
		return
	}

	if err := handler(ctx, &envelope); err != nil {
		b.logger.Error("Event handler failed, requeueing", err,
			logging.Field{Key: "event_id", Value: envelope.ID},
			logging.InspectionID(envelope.InspectionID),
		)
		_ = delivery.Nack(false, true)
		return
	}
	_ = delivery.Ack(false)
}

func (b *RabbitBus) Health() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.conn.IsClosed() {
		return apperrors.ConnectionError("RabbitMQ connection is closed", nil)
	}
	return nil
}

func (b *RabbitBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.conn.Close()
}
