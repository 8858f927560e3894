package probe_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/wavecast/internal/probe"
	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
	"github.com/MrWong99/wavecast/pkg/provider/modem/mock"
)

var testParams = modem.Params{Protocol: 2, Volume: 90, SampleRate: 1000}

func TestGeometryFor(t *testing.T) {
	t.Parallel()

	g := probe.GeometryFor(4 * time.Second)
	if g.Window != 8*time.Second || g.Step != 2*time.Second {
		t.Errorf("GeometryFor(4s) = %+v, want window 8s step 2s", g)
	}
	if g.Step >= g.Window {
		t.Error("step must be smaller than window")
	}
}

func TestBlockDuration_MeasuresMaxLengthMessage(t *testing.T) {
	t.Parallel()

	l := &mock.Loopback{}
	m := &mock.Provider{ModulateFunc: func(msg string, p modem.Params) (audio.Segment, error) {
		return l.Modulate(context.Background(), msg, p)
	}}
	p := probe.New(m, nil)

	d, err := p.BlockDuration(context.Background(), testParams)
	if err != nil {
		t.Fatalf("BlockDuration: %v", err)
	}
	if want := l.BlockDuration(140, testParams.SampleRate); d != want {
		t.Errorf("duration = %v, want %v", d, want)
	}
	if len(m.ModulateCalls) != 1 || m.ModulateCalls[0].Message != strings.Repeat("x", 140) {
		t.Errorf("probe message = %+v, want 140 x", m.ModulateCalls)
	}
}

func TestBlockDuration_CachesPerParams(t *testing.T) {
	t.Parallel()

	m := &mock.Provider{ModulateResult: audio.Silence(3*time.Second, 1000)}
	p := probe.New(m, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.BlockDuration(ctx, testParams); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n, _ := m.CallCounts(); n != 1 {
		t.Errorf("modem called %d times, want 1", n)
	}

	other := testParams
	other.Protocol = 5
	if _, err := p.BlockDuration(ctx, other); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.CallCounts(); n != 2 {
		t.Errorf("modem called %d times after new params, want 2", n)
	}

	g, err := p.Geometry(ctx, testParams)
	if err != nil {
		t.Fatal(err)
	}
	if g.Window != 6*time.Second || g.Step != 1500*time.Millisecond {
		t.Errorf("Geometry = %+v", g)
	}
}

func TestBlockDuration_Failures(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("exit status 1")
	tests := []struct {
		name string
		m    *mock.Provider
	}{
		{"modem error", &mock.Provider{ModulateErr: errBoom}},
		{"empty segment", &mock.Provider{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := probe.New(tc.m, nil)
			if _, err := p.BlockDuration(context.Background(), testParams); !errors.Is(err, probe.ErrProbeFailure) {
				t.Errorf("err = %v, want ErrProbeFailure", err)
			}
			// Failures are not cached.
			_, _ = p.BlockDuration(context.Background(), testParams)
			if n, _ := tc.m.CallCounts(); n != 2 {
				t.Errorf("modem called %d times, want 2", n)
			}
		})
	}
}
