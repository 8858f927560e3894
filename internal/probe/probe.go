// Package probe measures how long the modem takes to transmit one full block.
//
// The receiver has no timing signal besides the audio itself. It derives its
// scan geometry from the duration of a maximum-length message: a window of
// twice that length is guaranteed to contain any single frame whole, and
// stepping by half of it guarantees some window starts before each frame.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/wavecast/internal/observe"
	"github.com/MrWong99/wavecast/pkg/frame"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
)

// ErrProbeFailure is returned when the probe message cannot be modulated.
var ErrProbeFailure = errors.New("probe: timing probe failed")

// probeMessage is the longest message the modem accepts.
var probeMessage = strings.Repeat("x", frame.MaxMessageLen)

// Geometry is the sliding-window layout used by the scanner.
type Geometry struct {
	Window time.Duration
	Step   time.Duration
}

// GeometryFor derives the scan geometry from the duration of one full block:
// the window is twice the block, the step half of it.
func GeometryFor(block time.Duration) Geometry {
	return Geometry{Window: 2 * block, Step: block / 2}
}

// Prober measures block durations and caches them per modem configuration.
// It is safe for concurrent use.
type Prober struct {
	modem   modem.Provider
	metrics *observe.Metrics

	mu    sync.Mutex
	cache map[modem.Params]time.Duration
}

// New creates a Prober for m. metrics may be nil, in which case
// [observe.DefaultMetrics] is used.
func New(m modem.Provider, metrics *observe.Metrics) *Prober {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Prober{
		modem:   m,
		metrics: metrics,
		cache:   make(map[modem.Params]time.Duration),
	}
}

// BlockDuration returns the duration of a maximum-length block modulated with
// params. The first call per params value runs the modem; later calls return
// the cached measurement. Failures are not cached.
func (p *Prober) BlockDuration(ctx context.Context, params modem.Params) (_ time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d, ok := p.cache[params]; ok {
		return d, nil
	}

	ctx, span := observe.StartSpan(ctx, "wavecast.probe")
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	seg, err := p.modem.Modulate(ctx, probeMessage, params)
	p.metrics.ModulateDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProbeFailure, err)
	}
	d := seg.Duration()
	if d <= 0 {
		return 0, fmt.Errorf("%w: modem produced no audio", ErrProbeFailure)
	}

	p.cache[params] = d
	observe.Logger(ctx).Debug("timing probe measured", "params", params.String(), "block", d)
	return d, nil
}

// Geometry is a shorthand for BlockDuration followed by [GeometryFor].
func (p *Prober) Geometry(ctx context.Context, params modem.Params) (Geometry, error) {
	d, err := p.BlockDuration(ctx, params)
	if err != nil {
		return Geometry{}, err
	}
	return GeometryFor(d), nil
}
