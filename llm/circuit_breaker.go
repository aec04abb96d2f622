package llm

import (
	"context"
	"sync"
	"time"

	"github.com/flowmesh/swarmcore/core"
)

type breakerState string

const (
	stateClosed   breakerState = "closed"
	stateOpen     breakerState = "open"
	stateHalfOpen breakerState = "half_open"
)

// ProviderBreaker is the Router's per-provider circuit breaker (spec §4.1), implementing
// core.CircuitBreaker. It is grounded on the exact 3-state algorithm of the original
// llm/circuit_breaker.py combined with the teacher's core.CircuitBreaker interface shape.
type ProviderBreaker struct {
	mu sync.Mutex

	name  string
	cfg   core.CircuitBreakerConfig
	state breakerState

	failureCount      int
	lastFailureTime   time.Time
	halfOpenInFlight  int
}

// NewProviderBreaker creates a breaker using the spec's defaults (5 / 60s / 3) unless cfg
// overrides them.
func NewProviderBreaker(name string, cfg core.CircuitBreakerConfig) *ProviderBreaker {
	def := core.DefaultCircuitBreakerDefaults()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = def.HalfOpenRequests
	}
	return &ProviderBreaker{name: name, cfg: cfg, state: stateClosed}
}

func (b *ProviderBreaker) GetState() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecoverLocked()
	return string(b.state)
}

func (b *ProviderBreaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecoverLocked()

	switch b.state {
	case stateClosed:
		return true
	case stateHalfOpen:
		return b.halfOpenInFlight < b.cfg.HalfOpenRequests
	default:
		return false
	}
}

// maybeRecoverLocked transitions open -> half_open once the recovery timeout elapses.
// Caller must hold b.mu.
func (b *ProviderBreaker) maybeRecoverLocked() {
	if b.state == stateOpen && time.Since(b.lastFailureTime) >= b.cfg.Timeout {
		b.state = stateHalfOpen
		b.halfOpenInFlight = 0
	}
}

func (b *ProviderBreaker) Execute(ctx context.Context, fn func() error) error {
	if !b.CanExecute() {
		return core.ErrCircuitOpen
	}

	b.mu.Lock()
	if b.state == stateHalfOpen {
		b.halfOpenInFlight++
	}
	b.mu.Unlock()

	err := fn()
	b.recordResult(err)
	return err
}

func (b *ProviderBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return b.Execute(ctx, func() error { return err })
	case <-ctx.Done():
		b.recordResult(ctx.Err())
		return ctx.Err()
	}
}

func (b *ProviderBreaker) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = stateClosed
		b.failureCount = 0
		b.halfOpenInFlight = 0
		return
	}

	switch b.state {
	case stateHalfOpen:
		b.state = stateOpen
		b.lastFailureTime = time.Now()
		b.halfOpenInFlight = 0
	case stateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.Threshold {
			b.state = stateOpen
			b.lastFailureTime = time.Now()
		}
	}
}

func (b *ProviderBreaker) GetMetrics() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"name":          b.name,
		"state":         string(b.state),
		"failure_count": b.failureCount,
	}
}

func (b *ProviderBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.failureCount = 0
	b.halfOpenInFlight = 0
}

var _ core.CircuitBreaker = (*ProviderBreaker)(nil)
