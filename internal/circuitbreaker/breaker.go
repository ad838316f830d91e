// Package circuitbreaker shields outbound delivery from a failing
// downstream by failing fast once consecutive errors pile up.
package circuitbreaker

import (
	"context"
	"fmt"
	"time"
)

// Breaker executes functions under circuit breaker protection
type Breaker interface {
	Execute(ctx context.Context, fn func() error) error
	State() State
}

// Config holds the tuning knobs for a circuit breaker
type Config struct {
	// MaxFailures is the consecutive failure count that opens the circuit
	MaxFailures int
	// Timeout is how long the circuit stays open before probing again
	Timeout time.Duration
	// MaxConcurrentRequests bounds probes while half-open
	MaxConcurrentRequests int
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxFailures:           5,
		Timeout:               60 * time.Second,
		MaxConcurrentRequests: 1,
	}
}

// SMTPConfig tolerates a few transient relay errors before opening
var SMTPConfig = Config{
	MaxFailures:           3,
	Timeout:               30 * time.Second,
	MaxConcurrentRequests: 1,
}

// Validate checks if the configuration is usable
func (c Config) Validate() error {
	if c.MaxFailures <= 0 {
		return fmt.Errorf("MaxFailures must be positive, got %d", c.MaxFailures)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MaxConcurrentRequests must be positive, got %d", c.MaxConcurrentRequests)
	}
	return nil
}

// State represents the current state of a circuit breaker
type State int

const (
	// StateClosed allows requests through
	StateClosed State = iota
	// StateOpen rejects requests outright
	StateOpen
	// StateHalfOpen lets probe requests test for recovery
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
