package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             20 * time.Millisecond,
		HalfOpenMaxRequests: 2,
	}
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewDefaultCircuitBreaker(&fakeProvider{name: "anthropic"})

	assert.Equal(t, CircuitClosed, cb.GetState())
	assert.False(t, cb.IsOpen())
	assert.Equal(t, "anthropic", cb.Name())
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	provider := &fakeProvider{name: "anthropic", err: errors.New("down")}
	cb := NewCircuitBreaker(provider, testBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cb.Generate(ctx, "p", nil)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.GetState())

	// Open circuit rejects without touching the provider.
	before := provider.calls
	_, err := cb.Generate(ctx, "p", nil)
	require.Error(t, err)
	assert.Equal(t, ErrKindUnknown, KindOf(err))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, provider.calls)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	provider := &fakeProvider{name: "anthropic", err: errors.New("down")}
	cb := NewCircuitBreaker(provider, testBreakerConfig())
	ctx := context.Background()

	_, _ = cb.Generate(ctx, "p", nil)
	_, _ = cb.Generate(ctx, "p", nil)

	provider.err = nil
	_, err := cb.Generate(ctx, "p", nil)
	require.NoError(t, err)

	provider.err = errors.New("down")
	_, _ = cb.Generate(ctx, "p", nil)
	_, _ = cb.Generate(ctx, "p", nil)
	assert.Equal(t, CircuitClosed, cb.GetState())
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	provider := &fakeProvider{name: "anthropic", err: errors.New("down")}
	cfg := testBreakerConfig()
	cb := NewCircuitBreaker(provider, cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		_, _ = cb.Generate(ctx, "p", nil)
	}
	require.Equal(t, CircuitOpen, cb.GetState())

	time.Sleep(cfg.Timeout + 10*time.Millisecond)
	provider.err = nil

	// First probe transitions to half-open; SuccessThreshold successes close.
	_, err := cb.Generate(ctx, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, CircuitHalfOpen, cb.GetState())

	_, err = cb.Generate(ctx, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	provider := &fakeProvider{name: "anthropic", err: errors.New("down")}
	cfg := testBreakerConfig()
	cb := NewCircuitBreaker(provider, cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		_, _ = cb.Generate(ctx, "p", nil)
	}
	time.Sleep(cfg.Timeout + 10*time.Millisecond)

	_, err := cb.Generate(ctx, "p", nil)
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.GetState())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	provider := &fakeProvider{name: "anthropic", err: errors.New("down")}
	cfg := testBreakerConfig()
	cb := NewCircuitBreaker(provider, cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		_, _ = cb.Generate(ctx, "p", nil)
	}
	require.Equal(t, CircuitOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.GetState())

	provider.err = nil
	_, err := cb.Generate(ctx, "p", nil)
	assert.NoError(t, err)
}

func TestCircuitBreaker_Stats(t *testing.T) {
	provider := &fakeProvider{name: "anthropic"}
	cb := NewCircuitBreaker(provider, testBreakerConfig())
	ctx := context.Background()

	_, _ = cb.Generate(ctx, "p", nil)
	provider.err = errors.New("down")
	_, _ = cb.Generate(ctx, "p", nil)

	stats := cb.GetStats()
	assert.Equal(t, "anthropic", stats.ProviderID)
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.TotalSuccesses)
	assert.Equal(t, int64(1), stats.TotalFailures)
	assert.Equal(t, 1, stats.ConsecutiveFailures)
}
