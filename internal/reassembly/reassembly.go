// Package reassembly rebuilds the original payload from detected frames.
//
// Admission is strictly in order: only the frame whose index equals the next
// expected index is stored. Later frames are discarded with a warning (the
// scanner will find them again once their turn comes), earlier ones are
// duplicates from overlapping windows and are dropped silently. The first
// frame seen fixes the declared total for the rest of the transmission.
package reassembly

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/MrWong99/wavecast/internal/observe"
	"github.com/MrWong99/wavecast/internal/scan"
	"github.com/MrWong99/wavecast/pkg/frame"
)

// ProtocolInconsistencyError reports a frame that was due for acceptance but
// disagrees with the declared total. It is fatal for the transmission.
type ProtocolInconsistencyError struct {
	Frame         frame.Frame
	DeclaredTotal int
}

func (e *ProtocolInconsistencyError) Error() string {
	return fmt.Sprintf("reassembly: frame %s disagrees with declared total %d", e.Frame, e.DeclaredTotal)
}

// IncompleteTransmissionError reports that the input ended before every frame
// was received. Expected is 0 when no frame was seen at all.
type IncompleteTransmissionError struct {
	Received int
	Expected int
}

func (e *IncompleteTransmissionError) Error() string {
	if e.Expected == 0 {
		return "reassembly: incomplete transmission: no frames received"
	}
	return fmt.Sprintf("reassembly: incomplete transmission: received %d of %d frames", e.Received, e.Expected)
}

// Reassembler collects frames in order. It is safe for concurrent use.
type Reassembler struct {
	metrics *observe.Metrics
	log     *slog.Logger

	mu            sync.Mutex
	declaredTotal int // 0 until the first frame
	next          int
	collected     [][]byte
}

// Option is a functional option for [New].
type Option func(*Reassembler)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Reassembler) { r.metrics = m }
}

// WithLogger sets the logger for frame decisions. Defaults to
// [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(r *Reassembler) { r.log = l }
}

// New creates an empty Reassembler.
func New(opts ...Option) *Reassembler {
	r := &Reassembler{next: 1}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Accept offers f to the reassembler and reports whether the transmission is
// now complete. The only error is *ProtocolInconsistencyError. Frames outside
// 1 <= Index <= Total are ignored, as is everything offered after completion.
func (r *Reassembler) Accept(f frame.Frame) (complete bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()
	log := r.log

	if f.Index < 1 || f.Total < 1 || f.Index > f.Total {
		r.metrics.RecordFrameOutcome(ctx, observe.OutcomeInvalid)
		log.Warn("invalid frame ignored", "frame", f.String())
		return r.complete(), nil
	}
	if r.complete() {
		r.metrics.RecordFrameOutcome(ctx, observe.OutcomeDuplicate)
		return true, nil
	}

	if r.declaredTotal == 0 {
		r.declaredTotal = f.Total
		log.Debug("declared total set", "total", f.Total)
	}

	switch {
	case f.Index == r.next:
		if f.Total != r.declaredTotal {
			r.metrics.RecordFrameOutcome(ctx, observe.OutcomeInconsistent)
			return false, &ProtocolInconsistencyError{Frame: f, DeclaredTotal: r.declaredTotal}
		}
		r.collected = append(r.collected, bytes.Clone(f.Payload))
		r.next++
		r.metrics.RecordFrameOutcome(ctx, observe.OutcomeAccepted)
		log.Debug("frame accepted", "frame", f.String())

	case f.Index > r.next:
		r.metrics.RecordFrameOutcome(ctx, observe.OutcomeOutOfOrder)
		if f.Total != r.declaredTotal {
			log.Warn("discarding frame with mismatched total", "frame", f.String(), "declared_total", r.declaredTotal)
		} else {
			log.Warn("out-of-order frame discarded", "frame", f.String(), "expected", r.next)
		}

	default:
		r.metrics.RecordFrameOutcome(ctx, observe.OutcomeDuplicate)
		if f.Total != r.declaredTotal {
			log.Warn("discarding frame with mismatched total", "frame", f.String(), "declared_total", r.declaredTotal)
		}
	}

	return r.complete(), nil
}

func (r *Reassembler) complete() bool {
	return r.declaredTotal > 0 && r.next > r.declaredTotal
}

// Complete reports whether every frame has been accepted.
func (r *Reassembler) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete()
}

// Progress returns the number of accepted frames and the declared total (0
// when unknown).
func (r *Reassembler) Progress() (received, expected int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.collected), r.declaredTotal
}

// Finalize returns the payloads concatenated in index order, or an
// *IncompleteTransmissionError when frames are missing.
func (r *Reassembler) Finalize() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.complete() {
		return nil, &IncompleteTransmissionError{Received: len(r.collected), Expected: r.declaredTotal}
	}
	return bytes.Join(r.collected, nil), nil
}

// Collect drives detections from seq into a new Reassembler until the
// transmission is complete or seq is exhausted, and returns the reassembled
// bytes. Scan errors, protocol inconsistencies and incomplete transmissions
// are returned as errors.
func Collect(ctx context.Context, seq iter.Seq2[scan.Detection, error], opts ...Option) ([]byte, error) {
	log := observe.Logger(ctx)
	r := New(append([]Option{WithLogger(log)}, opts...)...)
	for d, err := range seq {
		if err != nil {
			return nil, err
		}
		complete, err := r.Accept(d.Frame)
		if err != nil {
			return nil, err
		}
		if complete {
			break
		}
	}
	out, err := r.Finalize()
	if err != nil {
		return nil, err
	}
	received, _ := r.Progress()
	log.Debug("transmission reassembled", "frames", received, "bytes", len(out))
	return out, nil
}
