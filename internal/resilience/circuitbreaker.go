// Package resilience guards wavecast's external tools with circuit breakers
// and ordered fallbacks.
//
// The central type is [CircuitBreaker], a classic three-state breaker
// (closed → open → half-open). A broken ggwave or ffmpeg binary fails every
// call the same way; once the breaker trips, the remaining scan windows fail
// fast instead of spawning one doomed subprocess each. [FallbackGroup] tries a
// list of interchangeable providers in order, each behind its own breaker.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/wavecast/internal/observe"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state. All calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive failures.
	// Calls are rejected immediately with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout. A limited
	// number of calls are allowed through; if they succeed the breaker closes,
	// otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the maximum number of probe calls allowed in the half-open
	// state before the breaker decides whether to close or re-open. Default: 3.
	HalfOpenMax int

	// IsFailure classifies errors returned by the guarded call. Errors for
	// which it reports false are passed through without touching the failure
	// count. Default: [CountsAsFailure].
	IsFailure func(error) bool
}

// CountsAsFailure is the default failure classifier. Cancellation and
// deadline errors come from the caller, not the tool, and are ignored.
func CountsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	isFailure    func(error) bool

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenFails   int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with sensible defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = CountsAsFailure
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		isFailure:    cfg.IsFailure,
		state:        StateClosed,
	}
}

// Name returns the label the breaker was created with.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. In the half-open state a limited number
// of probe calls are permitted. ctx only supplies the logger for state
// transitions; fn is responsible for honouring cancellation.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	log := observe.Logger(ctx)

	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.halfOpenFails = 0
		log.Info("circuit breaker transitioning to half-open", "name", cb.name)

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	inHalfOpen := cb.state == StateHalfOpen
	if inHalfOpen {
		cb.halfOpenCalls++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err == nil:
		cb.recordSuccess(ctx, inHalfOpen)
	case cb.isFailure(err):
		cb.recordFailure(ctx, inHalfOpen, err)
	case inHalfOpen:
		// An ignored error spends no probe budget.
		cb.halfOpenCalls--
	}
	return err
}

// recordFailure handles failure accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(ctx context.Context, inHalfOpen bool, err error) {
	cb.lastFailure = time.Now()

	if inHalfOpen {
		cb.halfOpenFails++
		cb.state = StateOpen
		cb.consecutiveFail = cb.maxFailures
		observe.Logger(ctx).Warn("circuit breaker re-opened from half-open",
			"name", cb.name, "error", err)
		return
	}

	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures && cb.state != StateOpen {
		cb.state = StateOpen
		observe.Logger(ctx).Warn("circuit breaker opened",
			"name", cb.name,
			"consecutive_failures", cb.consecutiveFail,
			"error", err)
	}
}

// recordSuccess handles success accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(ctx context.Context, inHalfOpen bool) {
	if inHalfOpen {
		successes := cb.halfOpenCalls - cb.halfOpenFails
		if successes >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.consecutiveFail = 0
			cb.halfOpenCalls = 0
			cb.halfOpenFails = 0
			observe.Logger(ctx).Info("circuit breaker closed after successful probes",
				"name", cb.name)
		}
		return
	}
	cb.consecutiveFail = 0
}

// State returns the current [State] of the breaker. If the breaker is open and
// the reset timeout has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next [Execute] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset manually forces the breaker back to [StateClosed], clearing all failure
// counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.halfOpenCalls = 0
	cb.halfOpenFails = 0
}
