// Package receive runs the receiving half of a transfer: normalize the
// recording, calibrate timing, scan for frames and reassemble them.
//
// Both the decode operation and the encoder's self-verification use the same
// [Receiver], so a passing verification means the real decoder will succeed
// on the same artifact.
package receive

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/wavecast/internal/observe"
	"github.com/MrWong99/wavecast/internal/probe"
	"github.com/MrWong99/wavecast/internal/reassembly"
	"github.com/MrWong99/wavecast/internal/scan"
	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
)

// Stage names a step of the receive pipeline.
type Stage string

const (
	StageNormalize  Stage = "normalize"
	StageProbe      Stage = "probe"
	StageScan       Stage = "scan"
	StageReassemble Stage = "reassemble"
)

// StageError wraps the error of the pipeline step that failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("receive: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Receiver decodes transmissions from recorded audio.
type Receiver struct {
	modem      modem.Provider
	transcoder transcoder.Provider
	prober     *probe.Prober
	params     modem.Params
	workers    int
	metrics    *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Receiver)

// WithParams sets the modem parameters. Defaults to [modem.DefaultParams].
func WithParams(p modem.Params) Option {
	return func(r *Receiver) { r.params = p }
}

// WithWorkers sets the number of concurrently demodulated windows.
func WithWorkers(n int) Option {
	return func(r *Receiver) { r.workers = n }
}

// WithProber shares a timing prober, and with it the block duration cache.
func WithProber(p *probe.Prober) Option {
	return func(r *Receiver) { r.prober = p }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Receiver) { r.metrics = m }
}

// New creates a Receiver. tc is only needed for non-WAV input and may be nil.
func New(m modem.Provider, tc transcoder.Provider, opts ...Option) *Receiver {
	r := &Receiver{
		modem:      m,
		transcoder: tc,
		params:     modem.DefaultParams(),
		workers:    1,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.prober == nil {
		r.prober = probe.New(m, r.metrics)
	}
	return r
}

// Normalize turns an encoded recording into a mono segment at the modem's
// sample rate. Non-WAV input goes through the transcoder with loudness
// normalization; WAV input is decoded directly and resampled if needed.
func (r *Receiver) Normalize(ctx context.Context, data []byte, format transcoder.Format) (audio.Segment, error) {
	if format != transcoder.FormatWAV {
		if r.transcoder == nil {
			return audio.Segment{}, fmt.Errorf("no transcoder configured for %s input", format)
		}
		start := time.Now()
		wav, err := r.transcoder.Transcode(ctx, data, transcoder.Options{
			Format:     transcoder.FormatWAV,
			Channels:   1,
			SampleRate: r.params.SampleRate,
			Normalize:  true,
		})
		r.metrics.RecordTranscode(ctx, string(transcoder.FormatWAV), time.Since(start).Seconds())
		if err != nil {
			return audio.Segment{}, err
		}
		data = wav
	}
	seg, info, err := audio.DecodeWAV(data)
	if err != nil {
		return audio.Segment{}, err
	}
	observe.Logger(ctx).Debug("recording loaded", "format", info.Format.String(), "bits", info.BitsPerSample, "duration", seg.Duration())
	return audio.ConvertSegment(seg, r.params.SampleRate), nil
}

// Receive decodes the transmission contained in data. Errors are
// *StageError values wrapping the failure of the step that broke, so
// *reassembly.IncompleteTransmissionError and friends stay reachable through
// errors.As.
func (r *Receiver) Receive(ctx context.Context, data []byte, format transcoder.Format) ([]byte, error) {
	seg, err := r.Normalize(ctx, data, format)
	if err != nil {
		return nil, &StageError{Stage: StageNormalize, Err: err}
	}
	return r.ReceiveSegment(ctx, seg)
}

// ReceiveSegment decodes the transmission contained in an already normalized
// segment.
func (r *Receiver) ReceiveSegment(ctx context.Context, seg audio.Segment) ([]byte, error) {
	g, err := r.prober.Geometry(ctx, r.params)
	if err != nil {
		return nil, &StageError{Stage: StageProbe, Err: err}
	}
	log := observe.Logger(ctx)
	log.Debug("scan geometry", "window", g.Window, "step", g.Step)

	s, err := scan.New(r.modem, g,
		scan.WithParams(r.params),
		scan.WithWorkers(r.workers),
		scan.WithMetrics(r.metrics),
	)
	if err != nil {
		return nil, &StageError{Stage: StageScan, Err: err}
	}

	var scanErr error
	detections := func(yield func(scan.Detection, error) bool) {
		for d, err := range s.Scan(ctx, seg) {
			if err != nil {
				scanErr = err
			}
			if !yield(d, err) {
				return
			}
		}
	}
	out, err := reassembly.Collect(ctx, detections, reassembly.WithMetrics(r.metrics))
	if err != nil {
		if scanErr != nil {
			return nil, &StageError{Stage: StageScan, Err: err}
		}
		return nil, &StageError{Stage: StageReassemble, Err: err}
	}
	return out, nil
}
