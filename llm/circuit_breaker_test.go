package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/swarmcore/core"
)

func TestProviderBreaker_OpensAfterThreshold(t *testing.T) {
	cfg := core.CircuitBreakerConfig{Enabled: true, Threshold: 3, Timeout: 50 * time.Millisecond, HalfOpenRequests: 1}
	b := NewProviderBreaker("test", cfg)

	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), func() error { return errors.New("boom") })
		require.Error(t, err)
	}

	assert.Equal(t, "open", b.GetState())
	assert.False(t, b.CanExecute())
}

func TestProviderBreaker_RecoversAfterTimeout(t *testing.T) {
	cfg := core.CircuitBreakerConfig{Enabled: true, Threshold: 1, Timeout: 10 * time.Millisecond, HalfOpenRequests: 1}
	b := NewProviderBreaker("test", cfg)

	_ = b.Execute(context.Background(), func() error { return errors.New("boom") })
	assert.Equal(t, "open", b.GetState())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, "half_open", b.GetState())

	err := b.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "closed", b.GetState())
}

func TestProviderBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := core.CircuitBreakerConfig{Enabled: true, Threshold: 1, Timeout: 10 * time.Millisecond, HalfOpenRequests: 1}
	b := NewProviderBreaker("test", cfg)

	_ = b.Execute(context.Background(), func() error { return errors.New("boom") })
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, "half_open", b.GetState())

	_ = b.Execute(context.Background(), func() error { return errors.New("still failing") })
	assert.Equal(t, "open", b.GetState())
}

func TestProviderBreaker_Reset(t *testing.T) {
	cfg := core.DefaultCircuitBreakerDefaults()
	cfg.Threshold = 1
	b := NewProviderBreaker("test", cfg)

	_ = b.Execute(context.Background(), func() error { return errors.New("boom") })
	assert.Equal(t, "open", b.GetState())

	b.Reset()
	assert.Equal(t, "closed", b.GetState())
	assert.True(t, b.CanExecute())
}
