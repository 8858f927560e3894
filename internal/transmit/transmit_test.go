package transmit_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/wavecast/internal/transmit"
	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/frame"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
	"github.com/MrWong99/wavecast/pkg/provider/modem/mock"
)

const testRate = 1000

var testParams = modem.Params{Protocol: 2, Volume: 90, SampleRate: testRate}

func newTransmitter(t *testing.T, m modem.Provider, opts ...transmit.Option) *transmit.Transmitter {
	t.Helper()
	opts = append([]transmit.Option{transmit.WithParams(testParams)}, opts...)
	tx, err := transmit.New(m, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tx
}

// recordingLoopback wraps a Loopback in a call-recording mock.
func recordingLoopback(l *mock.Loopback) *mock.Provider {
	return &mock.Provider{ModulateFunc: func(msg string, p modem.Params) (audio.Segment, error) {
		return l.Modulate(context.Background(), msg, p)
	}}
}

func TestEncode_EmptyInput(t *testing.T) {
	t.Parallel()

	m := &mock.Provider{}
	tx := newTransmitter(t, m)
	for _, in := range [][]byte{nil, {}} {
		if _, err := tx.Encode(context.Background(), in); !errors.Is(err, transmit.ErrEmptyInput) {
			t.Errorf("err = %v, want ErrEmptyInput", err)
		}
	}
	if n, _ := m.CallCounts(); n != 0 {
		t.Errorf("modem called %d times for empty input", n)
	}
}

func TestEncode_SingleFrameHasNoGap(t *testing.T) {
	t.Parallel()

	l := &mock.Loopback{}
	tx := newTransmitter(t, l)
	data := []byte("This is a test message!\n")

	res, err := tx.Encode(context.Background(), data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if res.Frames != 1 {
		t.Errorf("Frames = %d, want 1", res.Frames)
	}
	rec, _ := frame.Encode(frame.Frame{Index: 1, Total: 1, Payload: data})
	if got, want := res.Audio.Duration(), l.BlockDuration(len(rec), testRate); got != want {
		t.Errorf("audio duration = %v, want %v (one block, no trailing gap)", got, want)
	}
	if _, ok := res.Stats(); ok {
		t.Error("Stats reported ok for a single frame")
	}
}

func TestEncode_ChunkingAndGaps(t *testing.T) {
	t.Parallel()

	l := &mock.Loopback{}
	rec := recordingLoopback(l)
	gap := 500 * time.Millisecond
	tx := newTransmitter(t, rec, transmit.WithSilenceGap(gap))

	data := make([]byte, 200)
	for i := range data {
		data[i] = byte(i)
	}
	orig := bytes.Clone(data)

	res, err := tx.Encode(context.Background(), data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(data, orig) {
		t.Error("Encode modified its input")
	}
	if res.Frames != 3 || len(res.FrameDurations) != 3 {
		t.Fatalf("Frames = %d, durations = %d, want 3", res.Frames, len(res.FrameDurations))
	}

	wantSizes := []int{90, 90, 20}
	var reassembled []byte
	for i, call := range rec.ModulateCalls {
		f, ok := frame.Decode(call.Message)
		if !ok {
			t.Fatalf("call %d: %q is not a wire record", i, call.Message)
		}
		if f.Index != i+1 || f.Total != 3 {
			t.Errorf("call %d: position %s, want %d/3", i, f, i+1)
		}
		if len(f.Payload) != wantSizes[i] {
			t.Errorf("frame %s: %d bytes, want %d", f, len(f.Payload), wantSizes[i])
		}
		if call.Params != testParams {
			t.Errorf("frame %s: params %v, want %v", f, call.Params, testParams)
		}
		reassembled = append(reassembled, f.Payload...)
	}
	if !bytes.Equal(reassembled, data) {
		t.Error("frame payloads do not concatenate to the input")
	}

	var want time.Duration
	for _, d := range res.FrameDurations {
		want += d
	}
	want += 2 * gap
	if got := res.Audio.Duration(); got != want {
		t.Errorf("audio duration = %v, want %v", got, want)
	}
}

func TestEncode_CustomChunkSize(t *testing.T) {
	t.Parallel()

	rec := recordingLoopback(&mock.Loopback{})
	tx := newTransmitter(t, rec, transmit.WithChunkSize(10))
	res, err := tx.Encode(context.Background(), make([]byte, 35))
	if err != nil {
		t.Fatal(err)
	}
	if res.Frames != 4 {
		t.Errorf("Frames = %d, want 4", res.Frames)
	}
}

func TestEncode_ModemFailures(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("subprocess died")
	calls := 0
	tests := []struct {
		name string
		m    *mock.Provider
		is   error
	}{
		{name: "modem error", m: &mock.Provider{ModulateErr: errBoom}, is: errBoom},
		{name: "empty audio", m: &mock.Provider{}},
		{name: "sample rate changes", m: &mock.Provider{ModulateFunc: func(string, modem.Params) (audio.Segment, error) {
			calls++
			return audio.Silence(time.Second, 1000*calls), nil
		}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tx := newTransmitter(t, tc.m)
			_, err := tx.Encode(context.Background(), make([]byte, 200))
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Errorf("err = %v, want wrapping %v", err, tc.is)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  transmit.Option
	}{
		{"zero chunk", transmit.WithChunkSize(0)},
		{"chunk too large", transmit.WithChunkSize(frame.MaxChunkSize + 1)},
		{"negative gap", transmit.WithSilenceGap(-time.Second)},
	}
	for _, tc := range tests {
		if _, err := transmit.New(&mock.Loopback{}, tc.opt); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestResultStats(t *testing.T) {
	t.Parallel()

	r := &transmit.Result{FrameDurations: []time.Duration{3 * time.Second, 1 * time.Second, 2 * time.Second, 100 * time.Millisecond}}
	s, ok := r.Stats()
	if !ok {
		t.Fatal("Stats not ok")
	}
	if s.Min != time.Second || s.Max != 3*time.Second || s.Avg != 2*time.Second {
		t.Errorf("Stats = %+v, want min 1s avg 2s max 3s (last frame excluded)", s)
	}
}
