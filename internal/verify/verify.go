// Package verify proves a produced artifact decodes back to the exact input.
//
// The encoder calls [Verifier.Verify] on the bytes it is about to hand out.
// The artifact goes through the very same receive pipeline a real decoder
// uses, and the result must match the original byte for byte.
package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/wavecast/internal/observe"
	"github.com/MrWong99/wavecast/internal/receive"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
)

// StageCompare is reported when decoding succeeded but produced other bytes.
const StageCompare receive.Stage = "compare"

// VerificationFailedError reports a failed self-check. For a compare failure
// FirstDiff is the offset of the first differing byte (or the shorter length
// when one output is a prefix of the other); otherwise Err holds the cause.
type VerificationFailedError struct {
	Stage       receive.Stage
	Err         error
	ExpectedLen int
	GotLen      int
	FirstDiff   int
}

func (e *VerificationFailedError) Error() string {
	if e.Stage == StageCompare {
		return fmt.Sprintf("verify: decoded output differs: got %d bytes, want %d, first difference at byte %d",
			e.GotLen, e.ExpectedLen, e.FirstDiff)
	}
	return fmt.Sprintf("verify: %s failed: %v", e.Stage, e.Err)
}

func (e *VerificationFailedError) Unwrap() error { return e.Err }

// Verifier checks artifacts with a [receive.Receiver].
type Verifier struct {
	receiver *receive.Receiver
	metrics  *observe.Metrics
}

// New creates a Verifier. metrics may be nil, in which case
// [observe.DefaultMetrics] is used.
func New(r *receive.Receiver, metrics *observe.Metrics) *Verifier {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Verifier{receiver: r, metrics: metrics}
}

// Verify decodes artifact, stored in format, and compares the result with
// original. Every failure is a *VerificationFailedError.
func (v *Verifier) Verify(ctx context.Context, original, artifact []byte, format transcoder.Format) (err error) {
	ctx, finish := observe.StartOperation(ctx, v.metrics, "verify")
	defer func() { finish(err) }()
	start := time.Now()

	got, err := v.receiver.Receive(ctx, artifact, format)
	if err != nil {
		stage := receive.Stage("receive")
		var se *receive.StageError
		if errors.As(err, &se) {
			stage, err = se.Stage, se.Err
		}
		return &VerificationFailedError{Stage: stage, Err: err, ExpectedLen: len(original)}
	}

	if !bytes.Equal(got, original) {
		return &VerificationFailedError{
			Stage:       StageCompare,
			ExpectedLen: len(original),
			GotLen:      len(got),
			FirstDiff:   firstDiff(got, original),
		}
	}

	observe.Logger(ctx).Info("verification passed", "bytes", len(original), "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// firstDiff returns the index of the first byte at which a and b differ.
func firstDiff(a, b []byte) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
