// Package mock provides test doubles for the modem.Provider interface.
//
// Provider returns canned responses and records every call, which suits tests
// that care about how a component drives the modem. Loopback is a working
// fake modem that turns text into a deterministic sample pattern and back,
// for end-to-end protocol tests that need real timing without real audio.
//
// Example:
//
//	p := &mock.Provider{
//	    ModulateResult: audio.Silence(time.Second, 8000),
//	    DemodulateLines: []string{modem.FormatMessage("1/1 aGk=")},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
)

// ModulateCall records a single invocation of Modulate.
type ModulateCall struct {
	// Ctx is the context passed to Modulate.
	Ctx context.Context
	// Message is the text passed to Modulate.
	Message string
	// Params are the modem parameters passed to Modulate.
	Params modem.Params
}

// DemodulateCall records a single invocation of Demodulate.
type DemodulateCall struct {
	// Ctx is the context passed to Demodulate.
	Ctx context.Context
	// Segment is the audio window passed to Demodulate.
	Segment audio.Segment
	// Params are the modem parameters passed to Demodulate.
	Params modem.Params
}

// Provider is a mock implementation of modem.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// ModulateResult is returned by Modulate when ModulateFunc is nil.
	ModulateResult audio.Segment

	// ModulateErr, if non-nil, is returned as the error from Modulate.
	ModulateErr error

	// ModulateFunc, if set, computes the Modulate response instead of
	// ModulateResult.
	ModulateFunc func(message string, p modem.Params) (audio.Segment, error)

	// DemodulateLines is returned by Demodulate when DemodulateFunc is nil.
	DemodulateLines []string

	// DemodulateErr, if non-nil, is returned as the error from Demodulate.
	DemodulateErr error

	// DemodulateFunc, if set, computes the Demodulate response instead of
	// DemodulateLines.
	DemodulateFunc func(seg audio.Segment, p modem.Params) ([]string, error)

	// --- Call records ---

	// ModulateCalls records every call to Modulate in order.
	ModulateCalls []ModulateCall

	// DemodulateCalls records every call to Demodulate in order.
	DemodulateCalls []DemodulateCall
}

// Modulate records the call and returns the configured response.
func (p *Provider) Modulate(ctx context.Context, message string, params modem.Params) (audio.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ModulateCalls = append(p.ModulateCalls, ModulateCall{Ctx: ctx, Message: message, Params: params})
	if p.ModulateErr != nil {
		return audio.Segment{}, p.ModulateErr
	}
	if p.ModulateFunc != nil {
		return p.ModulateFunc(message, params)
	}
	return p.ModulateResult, nil
}

// Demodulate records the call and returns the configured response.
func (p *Provider) Demodulate(ctx context.Context, seg audio.Segment, params modem.Params) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DemodulateCalls = append(p.DemodulateCalls, DemodulateCall{Ctx: ctx, Segment: seg, Params: params})
	if p.DemodulateErr != nil {
		return nil, p.DemodulateErr
	}
	if p.DemodulateFunc != nil {
		return p.DemodulateFunc(seg, params)
	}
	lines := make([]string, len(p.DemodulateLines))
	copy(lines, p.DemodulateLines)
	return lines, nil
}

// CallCounts returns the number of Modulate and Demodulate calls so far.
// Thread-safe.
func (p *Provider) CallCounts() (modulate, demodulate int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ModulateCalls), len(p.DemodulateCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ModulateCalls = nil
	p.DemodulateCalls = nil
}

// Ensure Provider implements modem.Provider at compile time.
var _ modem.Provider = (*Provider)(nil)
