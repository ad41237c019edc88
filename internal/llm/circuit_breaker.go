package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stratforge/stratforge/internal/models"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"    // Normal operation
	CircuitOpen     CircuitState = "open"      // Failing, rejecting requests
	CircuitHalfOpen CircuitState = "half_open" // Testing with limited requests
)

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrCircuitHalfOpenRejected is returned when a half-open circuit rejects a request.
var ErrCircuitHalfOpenRejected = errors.New("circuit breaker in half-open state, request rejected")

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold    int           // Number of consecutive failures to open circuit
	SuccessThreshold    int           // Number of successes in half-open to close
	Timeout             time.Duration // How long to stay open before half-open
	HalfOpenMaxRequests int           // Max requests allowed in half-open state
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

// CircuitBreaker wraps a Provider with the circuit breaker pattern so a
// persistently failing vendor stops consuming fan-out slots. It implements
// Provider itself, so the coordinator never needs to know it is there.
type CircuitBreaker struct {
	mu                   sync.RWMutex
	provider             Provider
	config               CircuitBreakerConfig
	state                CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailure          time.Time
	lastStateChange      time.Time
	halfOpenRequests     int
	totalRequests        int64
	totalFailures        int64
	totalSuccesses       int64
}

// NewCircuitBreaker creates a circuit breaker around the given provider.
func NewCircuitBreaker(provider Provider, config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		provider:        provider,
		config:          config,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// NewDefaultCircuitBreaker creates a circuit breaker with default config.
func NewDefaultCircuitBreaker(provider Provider) *CircuitBreaker {
	return NewCircuitBreaker(provider, DefaultCircuitBreakerConfig())
}

// Generate wraps the provider's Generate method with circuit breaker logic.
// Rejections surface as unknown-kind provider errors so the coordinator treats
// them like any other isolated failure.
func (cb *CircuitBreaker) Generate(ctx context.Context, prompt string, opts *models.GenerateOptions) (*models.Generation, error) {
	if err := cb.beforeRequest(); err != nil {
		return nil, NewUnknownError(cb.provider.Name(), err)
	}

	gen, err := cb.provider.Generate(ctx, prompt, opts)
	cb.afterRequest(err)
	return gen, err
}

// Name returns the wrapped provider's identifier.
func (cb *CircuitBreaker) Name() string {
	return cb.provider.Name()
}

// Capabilities returns the wrapped provider's capabilities.
func (cb *CircuitBreaker) Capabilities() *models.ProviderCapabilities {
	return cb.provider.Capabilities()
}

// HealthCheck delegates to the wrapped provider.
func (cb *CircuitBreaker) HealthCheck(ctx context.Context) error {
	return cb.provider.HealthCheck(ctx)
}

// beforeRequest checks if the request should be allowed.
func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.config.Timeout {
			cb.transitionTo(CircuitHalfOpen)
			cb.halfOpenRequests = 1
			return nil
		}
		return ErrCircuitOpen

	case CircuitHalfOpen:
		if cb.halfOpenRequests >= cb.config.HalfOpenMaxRequests {
			return ErrCircuitHalfOpenRejected
		}
		cb.halfOpenRequests++
		return nil
	}

	return nil
}

// afterRequest records the result of the request.
func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.totalFailures++
	cb.consecutiveFailures++
	cb.consecutiveSuccesses = 0
	cb.lastFailure = time.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any failure in half-open returns to open
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.totalSuccesses++
	cb.consecutiveSuccesses++
	cb.consecutiveFailures = 0

	if cb.state == CircuitHalfOpen && cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.transitionTo(CircuitClosed)
	}
}

// transitionTo changes the circuit state. Caller must hold cb.mu.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	cb.state = newState
	cb.lastStateChange = time.Now()

	if newState == CircuitClosed {
		cb.consecutiveFailures = 0
	} else if newState == CircuitHalfOpen {
		cb.halfOpenRequests = 0
		cb.consecutiveSuccesses = 0
	}
}

// GetState returns the current circuit state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// IsOpen returns true if the circuit is open.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.GetState() == CircuitOpen
}

// CircuitBreakerStats contains circuit breaker statistics.
type CircuitBreakerStats struct {
	ProviderID           string       `json:"provider_id"`
	State                CircuitState `json:"state"`
	TotalRequests        int64        `json:"total_requests"`
	TotalSuccesses       int64        `json:"total_successes"`
	TotalFailures        int64        `json:"total_failures"`
	ConsecutiveFailures  int          `json:"consecutive_failures"`
	ConsecutiveSuccesses int          `json:"consecutive_successes"`
	LastFailure          time.Time    `json:"last_failure,omitempty"`
	LastStateChange      time.Time    `json:"last_state_change"`
}

// GetStats returns circuit breaker statistics.
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitBreakerStats{
		ProviderID:           cb.provider.Name(),
		State:                cb.state,
		TotalRequests:        cb.totalRequests,
		TotalSuccesses:       cb.totalSuccesses,
		TotalFailures:        cb.totalFailures,
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		LastFailure:          cb.lastFailure,
		LastStateChange:      cb.lastStateChange,
	}
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenRequests = 0
	cb.lastStateChange = time.Now()
}
