// Package mock provides a test double for the transcoder.Provider interface.
//
// By default Provider passes its input through unchanged, so a pipeline that
// "encodes" to MP3 and "decodes" back still sees the original WAV bytes.
//
// Example:
//
//	p := &mock.Provider{}
//	out, _ := p.Transcode(ctx, wav, transcoder.Options{Format: transcoder.FormatMP3})
//	// out == wav, p.Calls[0].Options.Format == "mp3"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
)

// TranscodeCall records a single invocation of Transcode.
type TranscodeCall struct {
	// Ctx is the context passed to Transcode.
	Ctx context.Context
	// Input is a copy of the bytes passed to Transcode.
	Input []byte
	// Options are the options passed to Transcode.
	Options transcoder.Options
}

// Provider is a mock implementation of transcoder.Provider.
type Provider struct {
	mu sync.Mutex

	// Err, if non-nil, is returned as the error from Transcode.
	Err error

	// Func, if set, computes the Transcode result instead of passing the
	// input through.
	Func func(in []byte, opts transcoder.Options) ([]byte, error)

	// Calls records every call to Transcode in order.
	Calls []TranscodeCall
}

// Transcode records the call and returns the configured response.
func (p *Provider) Transcode(ctx context.Context, in []byte, opts transcoder.Options) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscodeCall{Ctx: ctx, Input: append([]byte(nil), in...), Options: opts})
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Func != nil {
		return p.Func(in, opts)
	}
	return append([]byte(nil), in...), nil
}

// CallCount returns the number of Transcode calls so far. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements transcoder.Provider at compile time.
var _ transcoder.Provider = (*Provider)(nil)
