package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/tometh04/maxevagestion-sub002/internal/platform/logging"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/metrics"
)

// ResilientConfig configures timeout and circuit breaker protection for a layer.
type ResilientConfig struct {
	// Timeout for each cache operation; zero disables it
	Timeout time.Duration

	// MaxRequests allowed through while half-open
	MaxRequests uint32

	// Interval after which closed-state counts reset; zero never resets
	Interval time.Duration

	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration

	// ConsecutiveFailures trips the breaker
	ConsecutiveFailures uint32
}

// DefaultResilientConfig returns the defaults used for the shared Redis layer.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout:             250 * time.Millisecond,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		OpenTimeout:         30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// ResilientLayer wraps a Layer with a circuit breaker and per-operation timeout.
// While the breaker is open every call fails fast with ErrCircuitOpen, which the
// balance calculator treats as a miss.
type ResilientLayer struct {
	layer   Layer
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.CacheCollector
	logger  *logging.Logger
}

// NewResilientLayer creates a resilient wrapper around the given layer.
func NewResilientLayer(layer Layer, config ResilientConfig, collector metrics.CacheCollector, logger *logging.Logger) *ResilientLayer {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	logger = logger.Named("resilience").Named(layer.Name())

	rl := &ResilientLayer{
		layer:   layer,
		timeout: config.Timeout,
		metrics: collector,
		logger:  logger,
	}

	threshold := config.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	rl.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        layer.Name(),
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A miss is a normal answer, not a backend failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrKeyNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("layer", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)

			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			rl.metrics.RecordCircuitState(name, state)
		},
	})

	return rl
}

// Name returns the name of the underlying cache layer.
func (rl *ResilientLayer) Name() string {
	return rl.layer.Name()
}

// Get retrieves a value with timeout and circuit breaker protection.
func (rl *ResilientLayer) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	ctx, cancel := rl.withTimeout(ctx)
	defer cancel()

	result, err := rl.cb.Execute(func() (interface{}, error) {
		return rl.layer.Get(ctx, key)
	})
	rl.metrics.RecordGet(rl.layer.Name(), err == nil, time.Since(start))

	if err != nil {
		return "", rl.translate(ctx, "get", key, err)
	}
	return result.(string), nil
}

// Set stores a value with timeout and circuit breaker protection.
func (rl *ResilientLayer) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	start := time.Now()
	ctx, cancel := rl.withTimeout(ctx)
	defer cancel()

	_, err := rl.cb.Execute(func() (interface{}, error) {
		return nil, rl.layer.Set(ctx, key, value, ttl)
	})
	rl.metrics.RecordSet(rl.layer.Name(), err == nil, time.Since(start))

	if err != nil {
		return rl.translate(ctx, "set", key, err)
	}
	return nil
}

// Delete removes a value with timeout and circuit breaker protection.
func (rl *ResilientLayer) Delete(ctx context.Context, key string) error {
	start := time.Now()
	ctx, cancel := rl.withTimeout(ctx)
	defer cancel()

	_, err := rl.cb.Execute(func() (interface{}, error) {
		return nil, rl.layer.Delete(ctx, key)
	})
	rl.metrics.RecordDelete(rl.layer.Name(), err == nil, time.Since(start))

	if err != nil {
		return rl.translate(ctx, "delete", key, err)
	}
	return nil
}

// Close closes the underlying cache layer.
func (rl *ResilientLayer) Close() error {
	return rl.layer.Close()
}

// State reports the breaker state
func (rl *ResilientLayer) State() metrics.CircuitState {
	switch rl.cb.State() {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

func (rl *ResilientLayer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if rl.timeout > 0 {
		return context.WithTimeout(ctx, rl.timeout)
	}
	return ctx, func() {}
}

func (rl *ResilientLayer) translate(ctx context.Context, operation, key string, err error) error {
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		rl.logger.Warn("circuit breaker open - request rejected",
			zap.String("operation", operation),
			zap.String("key", key),
		)
		return ErrCircuitOpen
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		rl.logger.Warn("operation timeout",
			zap.String("operation", operation),
			zap.String("key", key),
			zap.Duration("timeout", rl.timeout),
		)
		return ErrTimeout
	default:
		rl.logger.Error("cache operation failed",
			zap.String("operation", operation),
			zap.String("key", key),
			zap.Error(err),
		)
		return WrapError(err, rl.layer.Name(), operation)
	}
}
