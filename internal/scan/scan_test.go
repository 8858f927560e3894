package scan_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/wavecast/internal/probe"
	"github.com/MrWong99/wavecast/internal/scan"
	"github.com/MrWong99/wavecast/internal/transmit"
	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
	"github.com/MrWong99/wavecast/pkg/provider/modem/mock"
)

var testParams = modem.Params{Protocol: 2, Volume: 90, SampleRate: 1000}

// transmission builds a loopback transmission of n bytes and the matching
// scan geometry.
func transmission(t *testing.T, l *mock.Loopback, n int) (audio.Segment, probe.Geometry) {
	t.Helper()
	ctx := context.Background()
	tx, err := transmit.New(l, transmit.WithParams(testParams))
	if err != nil {
		t.Fatal(err)
	}
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	res, err := tx.Encode(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	g, err := probe.New(l, nil).Geometry(ctx, testParams)
	if err != nil {
		t.Fatal(err)
	}
	return res.Audio, g
}

type hit struct {
	index  int
	offset time.Duration
}

func collect(t *testing.T, s *scan.Scanner, seg audio.Segment) []hit {
	t.Helper()
	var hits []hit
	for d, err := range s.Scan(context.Background(), seg) {
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		hits = append(hits, hit{d.Frame.Index, d.Offset})
	}
	return hits
}

func TestScan_FindsEveryFrame(t *testing.T) {
	t.Parallel()

	l := &mock.Loopback{}
	seg, g := transmission(t, l, 200)
	s, err := scan.New(l, g, scan.WithParams(testParams))
	if err != nil {
		t.Fatal(err)
	}

	hits := collect(t, s, seg)
	seen := map[int]bool{}
	for i, h := range hits {
		seen[h.index] = true
		if i > 0 && h.offset < hits[i-1].offset {
			t.Errorf("detections out of offset order: %v after %v", h.offset, hits[i-1].offset)
		}
	}
	for idx := 1; idx <= 3; idx++ {
		if !seen[idx] {
			t.Errorf("frame %d never detected", idx)
		}
	}

	wantWindows := int((seg.Duration() + g.Step - 1) / g.Step)
	if got := l.Demodulations(); got != wantWindows {
		t.Errorf("windows = %d, want %d", got, wantWindows)
	}
}

func TestScan_ParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	l := &mock.Loopback{}
	seg, g := transmission(t, l, 500)

	seq, err := scan.New(l, g, scan.WithParams(testParams))
	if err != nil {
		t.Fatal(err)
	}
	par, err := scan.New(l, g, scan.WithParams(testParams), scan.WithWorkers(4))
	if err != nil {
		t.Fatal(err)
	}

	a := collect(t, seq, seg)
	b := collect(t, par, seg)
	if len(a) != len(b) {
		t.Fatalf("sequential found %d detections, parallel %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("detection %d: sequential %+v, parallel %+v", i, a[i], b[i])
		}
	}
}

func TestScan_WindowLayout(t *testing.T) {
	t.Parallel()

	m := &mock.Provider{}
	g := probe.Geometry{Window: 4 * time.Second, Step: 2 * time.Second}
	s, err := scan.New(m, g, scan.WithParams(testParams))
	if err != nil {
		t.Fatal(err)
	}
	for range s.Scan(context.Background(), audio.Silence(9*time.Second, 1000)) {
		t.Fatal("silence produced a detection")
	}

	want := []time.Duration{4 * time.Second, 4 * time.Second, 4 * time.Second, 3 * time.Second, 1 * time.Second}
	if len(m.DemodulateCalls) != len(want) {
		t.Fatalf("windows = %d, want %d", len(m.DemodulateCalls), len(want))
	}
	for i, c := range m.DemodulateCalls {
		if got := c.Segment.Duration(); got != want[i] {
			t.Errorf("window %d duration = %v, want %v", i, got, want[i])
		}
		if c.Params != testParams {
			t.Errorf("window %d params = %v", i, c.Params)
		}
	}
}

func TestScan_DropsNoise(t *testing.T) {
	t.Parallel()

	m := &mock.Provider{DemodulateLines: []string{
		"Analyzing captured data..",
		modem.FormatMessage("not a record"),
		modem.FormatMessage("1/2 !!!"),
		modem.FormatMessage("3/2 aGk="),
		"1/1 aGk=",
		modem.FormatMessage("1/1 aGk="),
	}}
	g := probe.Geometry{Window: 2 * time.Second, Step: time.Second}
	s, err := scan.New(m, g)
	if err != nil {
		t.Fatal(err)
	}

	var got []scan.Detection
	for d, err := range s.Scan(context.Background(), audio.Silence(time.Second, 1000)) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, d)
	}
	if len(got) != 1 || string(got[0].Frame.Payload) != "hi" || got[0].Offset != 0 {
		t.Errorf("detections = %+v, want one 1/1 frame at offset 0", got)
	}
}

func TestScan_ModemErrorNamesOffset(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("signal: killed")
	calls := 0
	m := &mock.Provider{DemodulateFunc: func(audio.Segment, modem.Params) ([]string, error) {
		calls++
		if calls == 3 {
			return nil, errBoom
		}
		return nil, nil
	}}
	g := probe.Geometry{Window: 2 * time.Second, Step: time.Second}
	s, err := scan.New(m, g)
	if err != nil {
		t.Fatal(err)
	}

	var last error
	n := 0
	for _, err := range s.Scan(context.Background(), audio.Silence(10*time.Second, 1000)) {
		n++
		last = err
	}
	if n != 1 || !errors.Is(last, errBoom) {
		t.Fatalf("got %d items, last err %v; want a single wrapped error", n, last)
	}
	if !strings.Contains(last.Error(), "window at 2s") {
		t.Errorf("error %q does not name the offset", last)
	}
	if calls != 3 {
		t.Errorf("scan continued after error: %d calls", calls)
	}
}

func TestScan_EarlyTermination(t *testing.T) {
	t.Parallel()

	m := &mock.Provider{DemodulateLines: []string{modem.FormatMessage("1/1 aGk=")}}
	g := probe.Geometry{Window: 2 * time.Second, Step: time.Second}
	s, err := scan.New(m, g)
	if err != nil {
		t.Fatal(err)
	}
	for range s.Scan(context.Background(), audio.Silence(60*time.Second, 100)) {
		break
	}
	if _, d := m.CallCounts(); d != 1 {
		t.Errorf("demodulated %d windows after consumer stopped, want 1", d)
	}
}

func TestScan_ContextCancelled(t *testing.T) {
	t.Parallel()

	m := &mock.Provider{}
	g := probe.Geometry{Window: 2 * time.Second, Step: time.Second}
	s, err := scan.New(m, g)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, err := range s.Scan(ctx, audio.Silence(5*time.Second, 100)) {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	}
	if _, d := m.CallCounts(); d != 0 {
		t.Errorf("demodulated %d windows with a cancelled context", d)
	}
}

func TestNew_RejectsBadGeometry(t *testing.T) {
	t.Parallel()

	bad := []probe.Geometry{
		{Window: time.Second, Step: 0},
		{Window: time.Second, Step: -time.Second},
		{Window: time.Second, Step: time.Second},
		{Window: time.Second, Step: 2 * time.Second},
	}
	for _, g := range bad {
		if _, err := scan.New(&mock.Provider{}, g); err == nil {
			t.Errorf("New(%+v) accepted invalid geometry", g)
		}
	}
}
