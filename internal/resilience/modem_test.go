package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/wavecast/internal/probe"
	"github.com/MrWong99/wavecast/internal/transmit"
	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
	"github.com/MrWong99/wavecast/pkg/provider/modem/mock"
)

var modemParams = modem.Params{Protocol: 2, Volume: 90, SampleRate: 1000}

func TestModemBreaker_PassesThrough(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	l := &mock.Loopback{}
	mb := NewModemBreaker(l, CircuitBreakerConfig{Name: "loopback"}, m)
	ctx := context.Background()

	seg, err := mb.Modulate(ctx, "1/1 aGk=", modemParams)
	if err != nil {
		t.Fatalf("Modulate: %v", err)
	}
	lines, err := mb.Demodulate(ctx, seg, modemParams)
	if err != nil {
		t.Fatalf("Demodulate: %v", err)
	}
	msgs := modem.Messages(lines)
	if len(msgs) != 1 || msgs[0] != "1/1 aGk=" {
		t.Errorf("messages = %q", msgs)
	}
	if n := counterSum(t, reader, "wavecast.provider.requests", map[string]string{"provider": "loopback", "status": "ok"}); n != 2 {
		t.Errorf("ok requests = %d, want 2", n)
	}
}

func TestModemBreaker_TripsOnRepeatedFailure(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	errTool := errors.New("ggwave-from-file: signal: killed")
	inner := &mock.Provider{DemodulateErr: errTool}
	mb := NewModemBreaker(inner, CircuitBreakerConfig{Name: "ggwave", MaxFailures: 3, ResetTimeout: time.Hour}, m)

	var open int
	for range 5 {
		_, err := mb.Demodulate(context.Background(), silence(), modemParams)
		switch {
		case errors.Is(err, ErrCircuitOpen):
			open++
		case !errors.Is(err, errTool):
			t.Fatalf("err = %v", err)
		}
	}
	if _, n := inner.CallCounts(); n != 3 {
		t.Errorf("inner demodulate calls = %d, want 3", n)
	}
	if open != 2 {
		t.Errorf("rejected calls = %d, want 2", open)
	}
	if mb.Breaker().State() != StateOpen {
		t.Errorf("state = %v, want open", mb.Breaker().State())
	}

	// Modulate shares the breaker.
	if _, err := mb.Modulate(context.Background(), "x", modemParams); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Modulate err = %v, want ErrCircuitOpen", err)
	}
	if n := counterSum(t, reader, "wavecast.provider.errors", map[string]string{"provider": "ggwave", "kind": "demodulate"}); n != 5 {
		t.Errorf("demodulate errors = %d, want 5", n)
	}
}

func TestModemBreaker_PipelineCountsEachCallOnce(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	mb := NewModemBreaker(&mock.Loopback{}, CircuitBreakerConfig{Name: "ggwave"}, m)
	ctx := context.Background()

	if _, err := probe.New(mb, m).BlockDuration(ctx, modemParams); err != nil {
		t.Fatalf("BlockDuration: %v", err)
	}
	tx, err := transmit.New(mb, transmit.WithParams(modemParams), transmit.WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}
	res, err := tx.Encode(ctx, make([]byte, 200))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if res.Frames != 3 {
		t.Fatalf("frames = %d, want 3", res.Frames)
	}

	// One probe modulation plus one per frame, all attributed to the modem.
	if n := counterSum(t, reader, "wavecast.provider.requests", nil); n != 4 {
		t.Errorf("provider requests = %d, want 4", n)
	}
	if n := counterSum(t, reader, "wavecast.provider.requests", map[string]string{"provider": "ggwave", "kind": "modulate"}); n != 4 {
		t.Errorf("ggwave modulate requests = %d, want 4", n)
	}
}

func silence() audio.Segment { return audio.Silence(time.Second, modemParams.SampleRate) }
