package metrics

import (
	"time"
)

// CacheCollector records balance cache operations.
// Implementations export to a metrics backend (Prometheus).
type CacheCollector interface {
	RecordGet(layer string, hit bool, duration time.Duration)
	RecordSet(layer string, success bool, duration time.Duration)
	RecordDelete(layer string, success bool, duration time.Duration)
	RecordCircuitState(layer string, state CircuitState)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the backend recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards every cache measurement
type NoOpCollector struct{}

// RecordGet does nothing.
func (NoOpCollector) RecordGet(layer string, hit bool, duration time.Duration) {}

// RecordSet does nothing.
func (NoOpCollector) RecordSet(layer string, success bool, duration time.Duration) {}

// RecordDelete does nothing.
func (NoOpCollector) RecordDelete(layer string, success bool, duration time.Duration) {}

// RecordCircuitState does nothing.
func (NoOpCollector) RecordCircuitState(layer string, state CircuitState) {}
