package llm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// contacting the provider. Callers surface this as a canned
// "provider unavailable" message, never as a raw error string.
var ErrCircuitOpen = errors.New("model provider circuit is open")

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	// StateClosed: calls flow normally, failures are counted.
	StateClosed BreakerState = iota

	// StateOpen: calls fail fast until the recovery timeout elapses.
	StateOpen

	// StateHalfOpen: exactly one trial call is in flight; its outcome
	// decides the next state.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker wraps a provider Client with a circuit breaker. It implements
// Client itself, so it slots in anywhere a provider client is expected
// and callers cannot reach the provider around it.
//
// State lives on the breaker value, not in package globals: every
// Breaker instance is fully independent, and the counters are only
// mutated inside the mutex.
type Breaker struct {
	inner     Client
	threshold int
	recovery  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time

	// now is stubbed in tests to drive the recovery timeout.
	now func() time.Time
}

// NewBreaker wraps inner with a breaker that opens after threshold
// consecutive failures and probes again after recovery.
func NewBreaker(inner Client, threshold int, recovery time.Duration, logger *slog.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if recovery <= 0 {
		recovery = 60 * time.Second
	}
	return &Breaker{
		inner:     inner,
		threshold: threshold,
		recovery:  recovery,
		logger:    logger.With("component", "breaker"),
		state:     StateClosed,
		now:       time.Now,
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Chat forwards to the wrapped client when the breaker allows it.
// Provider failures (timeouts, non-2xx, malformed responses) count
// toward the threshold; an open circuit returns ErrCircuitOpen
// immediately without contacting the provider.
func (b *Breaker) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}

	resp, err := b.inner.Chat(ctx, model, messages, tools)
	b.record(err)
	return resp, err
}

// Ping passes through without touching breaker state; health probes
// must not open or close the circuit.
func (b *Breaker) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

// allow decides whether a call may proceed, transitioning OPEN to
// HALF_OPEN when the recovery timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.recovery {
			b.state = StateHalfOpen
			b.logger.Info("circuit half-open, allowing trial call")
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		// A trial call is already in flight.
		return ErrCircuitOpen
	}
	return nil
}

// record updates breaker state from a call outcome.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state != StateClosed {
			b.logger.Info("circuit closed after successful trial")
		}
		b.state = StateClosed
		b.failures = 0
		return
	}

	switch b.state {
	case StateHalfOpen:
		// Trial failed: back to OPEN and restart the recovery timer.
		b.state = StateOpen
		b.openedAt = b.now()
		b.logger.Warn("trial call failed, circuit reopened", "error", err)
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.logger.Warn("circuit opened",
				"consecutive_failures", b.failures,
				"recovery_timeout", b.recovery,
			)
		}
	}
}
