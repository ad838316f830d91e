package delivery

import (
	"context"

	"automation-engine/internal/circuitbreaker"
	"automation-engine/internal/models"
)

// BreakerSender protects a sender with a circuit breaker so a dead relay
// fails fast instead of tying up every firing goroutine
type BreakerSender struct {
	inner   Sender
	breaker circuitbreaker.Breaker
}

// NewBreakerSender wraps the sender with the given breaker
func NewBreakerSender(inner Sender, breaker circuitbreaker.Breaker) *BreakerSender {
	return &BreakerSender{inner: inner, breaker: breaker}
}

func (s *BreakerSender) Send(ctx context.Context, inspection *models.Inspection, trigger *models.Trigger) error {
	return s.breaker.Execute(ctx, func() error {
		return s.inner.Send(ctx, inspection, trigger)
	})
}
