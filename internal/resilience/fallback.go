package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/wavecast/internal/observe"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures a [FallbackGroup] and the per-entry circuit
// breaker created for each provider.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// Kind labels provider metrics, e.g. "transcoder".
	Kind string

	// Metrics receives per-entry request and error counts. Nil means
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the same
// provider type. When the primary fails (or its circuit breaker is open), the
// next healthy fallback is tried in registration order.
//
// Entries must be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
// Additional fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order they
// are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Names returns the entry names in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// Execute tries fn against each entry in order until one succeeds.
// Circuit-breaker-open entries are skipped.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry in the group until one succeeds,
// returning both the result value and error. A cancelled ctx stops the walk
// and its error is returned as is. Otherwise, when every entry fails, the
// result wraps [ErrAllFailed] together with each entry's error.
//
// This is a package-level function because Go does not support method-level
// type parameters.
func ExecuteWithResult[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		errs []error
		zero R
	)
	log := observe.Logger(ctx)
	for i := range fg.entries {
		entry := &fg.entries[i]
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		var result R
		err := entry.breaker.Execute(ctx, func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			fg.cfg.Metrics.RecordProviderRequest(ctx, entry.name, fg.cfg.Kind, "ok")
			return result, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			log.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			fg.cfg.Metrics.RecordProviderRequest(ctx, entry.name, fg.cfg.Kind, "error")
			fg.cfg.Metrics.RecordProviderError(ctx, entry.name, fg.cfg.Kind)
			if ctx.Err() != nil {
				return zero, err
			}
			if i < len(fg.entries)-1 {
				log.Warn("provider failed, trying next", "provider", entry.name, "error", err)
			}
		}
		errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
