package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig holds the configuration for the backend circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 5
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning to half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxRequests is the number of trial requests allowed while half-open.
	// Default: 1
	HalfOpenMaxRequests uint32
}

// BreakerMetrics holds counters about breaker operations.
type BreakerMetrics struct {
	TotalRequests        uint64
	TotalSuccesses       uint64
	TotalFailures        uint64
	Rejected             uint64
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32
}

// Breaker wraps gobreaker to stop hammering a backend that is down.
//
// Only transport errors and 5xx responses count as failures. A 401, a 404 or
// a validation error is the backend working correctly and leaves the circuit
// alone. While open, calls fail fast with ErrCircuitOpen; nothing is retried.
type Breaker struct {
	breaker *gobreaker.CircuitBreaker
	config  BreakerConfig
	logger  *zap.Logger

	mu      sync.RWMutex
	metrics BreakerMetrics
}

// NewBreaker creates a breaker, filling zero config values with defaults.
func NewBreaker(config BreakerConfig, logger *zap.Logger) *Breaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests == 0 {
		config.HalfOpenMaxRequests = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Breaker{config: config, logger: logger}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "xmemory-backend",
		MaxRequests: config.HalfOpenMaxRequests,
		Interval:    0, // Don't clear counts periodically
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return !isBackendFailure(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return b
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.record(false, true)
		return nil, ErrCircuitOpen
	}
	b.record(!isBackendFailure(err), false)
	return result, err
}

// State returns "closed", "open" or "half-open".
func (b *Breaker) State() string {
	return b.breaker.State().String()
}

// Metrics returns a snapshot of the breaker counters.
func (b *Breaker) Metrics() BreakerMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := b.breaker.Counts()
	m := b.metrics
	m.ConsecutiveFailures = counts.ConsecutiveFailures
	m.ConsecutiveSuccesses = counts.ConsecutiveSuccesses
	return m
}

func (b *Breaker) record(success, rejected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.TotalRequests++
	switch {
	case rejected:
		b.metrics.Rejected++
	case success:
		b.metrics.TotalSuccesses++
	default:
		b.metrics.TotalFailures++
	}
}

// isBackendFailure reports whether err says the backend is unhealthy.
func isBackendFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidCredentials) {
		return false
	}
	return true
}
