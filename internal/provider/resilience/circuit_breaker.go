// Package resilience wraps outbound HTTP calls to monitored integrations with
// circuit breakers, timeouts and retries, and tracks per-source health.
package resilience

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// probeFailuresToTrip is how many consecutive failed probes open a source's
// circuit.
const probeFailuresToTrip = 3

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker. For integration clients it is the
	// source ID.
	Name string

	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32

	// Interval clears the counts while closed. Zero keeps them for the
	// lifetime of the breaker.
	Interval time.Duration

	// Timeout is how long the circuit stays open before going half-open.
	Timeout time.Duration

	// ReadyToTrip decides when to open. Nil uses DefaultReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange observes transitions.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig suits clients that make bursts of calls: trip on
// a high failure ratio and retry after a minute.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// ProbeCircuitBreakerConfig suits liveness probes, which call a source once
// per sweep. Counts reset every ten minutes so a long healthy history cannot
// mask a fresh outage, and a run of failed probes opens the circuit.
func ProbeCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: ConsecutiveFailuresToTrip(probeFailuresToTrip),
	}
}

// DefaultReadyToTrip trips at a 50% failure rate once 5 requests were made.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < 5 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

// ConsecutiveFailuresToTrip trips after n failures in a row.
func ConsecutiveFailuresToTrip(n uint32) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
}

// logStateChange reports transitions at warn level, or info when a circuit
// closes again.
func logStateChange(logger zerolog.Logger) func(string, gobreaker.State, gobreaker.State) {
	return func(name string, from, to gobreaker.State) {
		event := logger.Warn()
		if to == gobreaker.StateClosed {
			event = logger.Info()
		}
		event.
			Str("source", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
	}
}

// NewCircuitBreaker builds a gobreaker breaker from cfg.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = DefaultReadyToTrip
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   readyToTrip,
		OnStateChange: cfg.OnStateChange,
	})
}
