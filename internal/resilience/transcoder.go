package resilience

import (
	"context"

	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
)

// TranscoderFallback implements [transcoder.Provider] with automatic failover
// across multiple transcoders, e.g. ffmpeg first and sox when ffmpeg is
// missing. Each backend has its own circuit breaker.
type TranscoderFallback struct {
	group *FallbackGroup[transcoder.Provider]
}

// Compile-time interface assertion.
var _ transcoder.Provider = (*TranscoderFallback)(nil)

// NewTranscoderFallback creates a [TranscoderFallback] with primary as the
// preferred backend.
func NewTranscoderFallback(primary transcoder.Provider, primaryName string, cfg FallbackConfig) *TranscoderFallback {
	if cfg.Kind == "" {
		cfg.Kind = "transcoder"
	}
	return &TranscoderFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcoder as a fallback.
func (f *TranscoderFallback) AddFallback(name string, p transcoder.Provider) {
	f.group.AddFallback(name, p)
}

// Names returns the backend names in the order they are tried.
func (f *TranscoderFallback) Names() []string { return f.group.Names() }

// Transcode runs the first healthy backend. Each attempt gets the full input;
// a backend that fails mid-way leaves no partial output behind.
func (f *TranscoderFallback) Transcode(ctx context.Context, in []byte, opts transcoder.Options) ([]byte, error) {
	return ExecuteWithResult(ctx, f.group, func(p transcoder.Provider) ([]byte, error) {
		return p.Transcode(ctx, in, opts)
	})
}
