// Package scan finds frames in received audio by sliding a window across it.
//
// The window starts at offset 0 and advances by a fixed step while the offset
// is before the end of the audio. Every window is demodulated on its own.
// Lines announcing a decoded message are parsed as Wire Records, and anything
// that does not parse is dropped as noise. Because windows overlap, the same
// frame is usually found more than once; removing duplicates is the
// reassembler's job.
package scan

import (
	"context"
	"fmt"
	"iter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/wavecast/internal/observe"
	"github.com/MrWong99/wavecast/internal/probe"
	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/frame"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
)

// Detection is a frame found in the window starting at Offset.
type Detection struct {
	Frame  frame.Frame
	Offset time.Duration
}

// Scanner demodulates overlapping windows of audio.
type Scanner struct {
	modem   modem.Provider
	params  modem.Params
	geom    probe.Geometry
	workers int
	metrics *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Scanner)

// WithParams sets the modem parameters. Defaults to [modem.DefaultParams].
func WithParams(p modem.Params) Option {
	return func(s *Scanner) { s.params = p }
}

// WithWorkers sets how many windows are demodulated concurrently. Values
// below 2 scan sequentially. Detections are yielded in offset order either
// way.
func WithWorkers(n int) Option {
	return func(s *Scanner) { s.workers = n }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// New creates a Scanner with geometry g. The step must be positive and
// strictly smaller than the window, otherwise frames could fall between
// windows.
func New(m modem.Provider, g probe.Geometry, opts ...Option) (*Scanner, error) {
	if g.Step <= 0 || g.Step >= g.Window {
		return nil, fmt.Errorf("scan: invalid geometry: step %v, window %v", g.Step, g.Window)
	}
	s := &Scanner{
		modem:   m,
		params:  modem.DefaultParams(),
		geom:    g,
		workers: 1,
	}
	for _, o := range opts {
		o(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Scan returns the detections in seg, ordered by window offset. The sequence
// is finite and single-use. It stops early when the consumer stops ranging.
// A demodulation failure or context cancellation is yielded as a final error
// naming the window offset.
func (s *Scanner) Scan(ctx context.Context, seg audio.Segment) iter.Seq2[Detection, error] {
	return func(yield func(Detection, error) bool) {
		ctx, span := observe.StartSpan(ctx, "wavecast.scan")
		var spanErr error
		defer func() { observe.EndSpan(span, spanErr) }()

		total := seg.Duration()
		batch := make([]time.Duration, 0, s.workers)
		for offset := time.Duration(0); offset < total; {
			batch = batch[:0]
			for len(batch) < s.workers && offset < total {
				batch = append(batch, offset)
				offset += s.geom.Step
			}

			results, err := s.demodulateBatch(ctx, seg, batch)
			if err != nil {
				spanErr = err
				yield(Detection{}, err)
				return
			}
			for i, lines := range results {
				for _, msg := range modem.Messages(lines) {
					f, ok := frame.Decode(msg)
					if !ok {
						continue
					}
					s.metrics.FramesDetected.Add(ctx, 1)
					if !yield(Detection{Frame: f, Offset: batch[i]}, nil) {
						return
					}
				}
			}
		}
	}
}

// demodulateBatch demodulates the windows starting at offsets and returns
// their output lines in the same order.
func (s *Scanner) demodulateBatch(ctx context.Context, seg audio.Segment, offsets []time.Duration) ([][]string, error) {
	results := make([][]string, len(offsets))
	if len(offsets) == 1 {
		lines, err := s.demodulate(ctx, seg, offsets[0])
		results[0] = lines
		return results, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, off := range offsets {
		g.Go(func() error {
			lines, err := s.demodulate(gctx, seg, off)
			results[i] = lines
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Scanner) demodulate(ctx context.Context, seg audio.Segment, offset time.Duration) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan: window at %v: %w", offset, err)
	}
	window := seg.Slice(offset, s.geom.Window)

	start := time.Now()
	lines, err := s.modem.Demodulate(ctx, window, s.params)
	s.metrics.DemodulateDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.WindowsScanned.Add(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("scan: window at %v: %w", offset, err)
	}
	observe.Logger(ctx).Debug("window demodulated", "offset", offset, "lines", len(lines))
	return lines, nil
}
