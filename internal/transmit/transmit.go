// Package transmit turns a byte payload into one continuous audio stream.
//
// The payload is cut into chunks of at most [frame.MaxChunkSize] bytes. Each
// chunk becomes a frame whose Wire Record is modulated into its own audio
// segment. Segments are concatenated with a silence gap between consecutive
// frames and none after the last, so every frame occupies its own stretch of
// time and the receiver can find it by sliding a window.
package transmit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/wavecast/internal/observe"
	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/frame"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
)

// DefaultSilenceGap is the pause inserted between consecutive frames.
const DefaultSilenceGap = 500 * time.Millisecond

// ErrEmptyInput is returned by [Transmitter.Encode] for a zero-length payload.
var ErrEmptyInput = errors.New("transmit: empty input")

// Result is a finished transmission.
type Result struct {
	// Audio is the full transmission: every frame's segment separated by
	// silence gaps.
	Audio audio.Segment

	// Frames is the number of frames transmitted.
	Frames int

	// FrameDurations holds the modulated length of each frame in index order,
	// excluding silence.
	FrameDurations []time.Duration
}

// Stats summarises frame durations.
type Stats struct {
	Min time.Duration
	Avg time.Duration
	Max time.Duration
}

// Stats returns the min/avg/max duration of every frame except the last one,
// which is usually shorter. It reports false when there is only one frame.
func (r *Result) Stats() (Stats, bool) {
	if len(r.FrameDurations) < 2 {
		return Stats{}, false
	}
	durs := r.FrameDurations[:len(r.FrameDurations)-1]
	s := Stats{Min: durs[0], Max: durs[0]}
	var sum time.Duration
	for _, d := range durs {
		s.Min = min(s.Min, d)
		s.Max = max(s.Max, d)
		sum += d
	}
	s.Avg = sum / time.Duration(len(durs))
	return s, true
}

// Transmitter modulates payloads through a modem.
type Transmitter struct {
	modem      modem.Provider
	params     modem.Params
	chunkSize  int
	silenceGap time.Duration
	metrics    *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Transmitter)

// WithParams sets the modem parameters. Defaults to [modem.DefaultParams].
func WithParams(p modem.Params) Option {
	return func(t *Transmitter) { t.params = p }
}

// WithChunkSize sets the payload bytes per frame. Defaults to
// [frame.MaxChunkSize]; larger values are rejected by [New].
func WithChunkSize(n int) Option {
	return func(t *Transmitter) { t.chunkSize = n }
}

// WithSilenceGap sets the pause between frames. Defaults to
// [DefaultSilenceGap].
func WithSilenceGap(d time.Duration) Option {
	return func(t *Transmitter) { t.silenceGap = d }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Transmitter) { t.metrics = m }
}

// New creates a Transmitter that modulates through m.
func New(m modem.Provider, opts ...Option) (*Transmitter, error) {
	t := &Transmitter{
		modem:      m,
		params:     modem.DefaultParams(),
		chunkSize:  frame.MaxChunkSize,
		silenceGap: DefaultSilenceGap,
	}
	for _, o := range opts {
		o(t)
	}
	if t.chunkSize < 1 || t.chunkSize > frame.MaxChunkSize {
		return nil, fmt.Errorf("transmit: chunk size %d out of range 1..%d", t.chunkSize, frame.MaxChunkSize)
	}
	if t.silenceGap < 0 {
		return nil, fmt.Errorf("transmit: negative silence gap %v", t.silenceGap)
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	return t, nil
}

// Encode transmits data. The input slice is never modified.
func (t *Transmitter) Encode(ctx context.Context, data []byte) (_ *Result, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	ctx, span := observe.StartSpan(ctx, "wavecast.transmit")
	defer func() { observe.EndSpan(span, err) }()
	log := observe.Logger(ctx)

	total := frame.ChunksFor(len(data), t.chunkSize)
	res := &Result{
		Frames:         total,
		FrameDurations: make([]time.Duration, 0, total),
	}
	var buf audio.Buffer

	for i := 1; i <= total; i++ {
		start := (i - 1) * t.chunkSize
		end := min(start+t.chunkSize, len(data))
		f := frame.Frame{Index: i, Total: total, Payload: data[start:end]}

		rec, err := frame.Encode(f)
		if err != nil {
			return nil, fmt.Errorf("transmit: frame %s: %w", f, err)
		}

		seg, err := t.modulate(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("transmit: frame %s: %w", f, err)
		}
		if seg.IsEmpty() {
			return nil, fmt.Errorf("transmit: frame %s: modem produced no audio", f)
		}
		if !buf.Append(seg) {
			return nil, fmt.Errorf("transmit: frame %s: modem returned %d Hz audio, earlier frames were %d Hz",
				f, seg.SampleRate, buf.Segment().SampleRate)
		}
		if i < total {
			buf.AppendSilence(t.silenceGap)
		}

		res.FrameDurations = append(res.FrameDurations, seg.Duration())
		t.metrics.FramesTransmitted.Add(ctx, 1)
		log.Debug("frame modulated", "frame", f.String(), "bytes", len(f.Payload), "duration", seg.Duration())
	}

	res.Audio = buf.Segment()
	return res, nil
}

func (t *Transmitter) modulate(ctx context.Context, rec string) (audio.Segment, error) {
	start := time.Now()
	seg, err := t.modem.Modulate(ctx, rec, t.params)
	t.metrics.ModulateDuration.Record(ctx, time.Since(start).Seconds())
	return seg, err
}
