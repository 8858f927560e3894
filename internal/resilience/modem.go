package resilience

import (
	"context"

	"github.com/MrWong99/wavecast/internal/observe"
	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
)

// ModemBreaker implements [modem.Provider] by forwarding to an inner modem
// through a [CircuitBreaker]. Modulate and Demodulate share one breaker since
// both run the same toolchain.
type ModemBreaker struct {
	inner   modem.Provider
	breaker *CircuitBreaker
	metrics *observe.Metrics
}

// Compile-time interface assertion.
var _ modem.Provider = (*ModemBreaker)(nil)

// NewModemBreaker wraps inner. cfg.Name labels both the breaker and the
// provider metrics. metrics may be nil, in which case
// [observe.DefaultMetrics] is used.
func NewModemBreaker(inner modem.Provider, cfg CircuitBreakerConfig, metrics *observe.Metrics) *ModemBreaker {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &ModemBreaker{
		inner:   inner,
		breaker: NewCircuitBreaker(cfg),
		metrics: metrics,
	}
}

// Breaker exposes the underlying breaker, mainly for readiness checks.
func (m *ModemBreaker) Breaker() *CircuitBreaker { return m.breaker }

// Modulate forwards to the inner modem unless the breaker is open.
func (m *ModemBreaker) Modulate(ctx context.Context, message string, params modem.Params) (audio.Segment, error) {
	var seg audio.Segment
	err := m.breaker.Execute(ctx, func() error {
		var err error
		seg, err = m.inner.Modulate(ctx, message, params)
		return err
	})
	m.record(ctx, "modulate", err)
	return seg, err
}

// Demodulate forwards to the inner modem unless the breaker is open.
func (m *ModemBreaker) Demodulate(ctx context.Context, seg audio.Segment, params modem.Params) ([]string, error) {
	var lines []string
	err := m.breaker.Execute(ctx, func() error {
		var err error
		lines, err = m.inner.Demodulate(ctx, seg, params)
		return err
	})
	m.record(ctx, "demodulate", err)
	return lines, err
}

func (m *ModemBreaker) record(ctx context.Context, kind string, err error) {
	m.metrics.RecordProviderRequest(ctx, m.breaker.Name(), kind, observe.Status(err))
	if err != nil {
		m.metrics.RecordProviderError(ctx, m.breaker.Name(), kind)
	}
}
