package audio_test

import (
	"testing"

	"github.com/MrWong99/wavecast/pkg/audio"
)

func TestToMono(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	got := audio.ToMono([]int16{100, 200, -100, -200}, 2)
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestToMono_NoOverflow(t *testing.T) {
	got := audio.ToMono([]int16{32767, 32767, -32768, -32768}, 2)
	if got[0] != 32767 || got[1] != -32768 {
		t.Errorf("got %v, want [32767 -32768]", got)
	}
}

func TestToMono_MonoPassthrough(t *testing.T) {
	in := []int16{1, 2, 3}
	got := audio.ToMono(in, 1)
	if &got[0] != &in[0] {
		t.Error("mono input should be returned without copying")
	}
}

func TestToMono_DropsPartialFrame(t *testing.T) {
	got := audio.ToMono([]int16{10, 20, 30, 40, 50}, 3)
	if len(got) != 1 || got[0] != 20 {
		t.Errorf("got %v, want [20]", got)
	}
}

func TestResample(t *testing.T) {
	tests := []struct {
		name    string
		src     int
		dst     int
		inLen   int
		wantLen int
	}{
		{"identity", 48000, 48000, 480, 480},
		{"downsample 3x", 48000, 16000, 480, 160},
		{"upsample 3x", 16000, 48000, 160, 480},
		{"invalid rate", 0, 48000, 10, 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := make([]int16, tc.inLen)
			got := audio.Resample(in, tc.src, tc.dst)
			if len(got) != tc.wantLen {
				t.Errorf("len = %d, want %d", len(got), tc.wantLen)
			}
		})
	}
}

func TestResample_Interpolates(t *testing.T) {
	got := audio.Resample([]int16{0, 100, 200, 300}, 2, 4)
	want := []int16{0, 50, 100, 150, 200, 250, 300, 300}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestConvertSegment(t *testing.T) {
	seg := audio.Segment{Samples: make([]int16, 160), SampleRate: 16000}
	out := audio.ConvertSegment(seg, 48000)
	if out.SampleRate != 48000 || out.Len() != 480 {
		t.Errorf("got %d samples at %d Hz, want 480 at 48000", out.Len(), out.SampleRate)
	}
	if same := audio.ConvertSegment(seg, 16000); same.Len() != 160 {
		t.Errorf("matching rate should be untouched, got %d samples", same.Len())
	}
}

func TestSamplesBytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	got := audio.BytesToSamples(audio.SamplesToBytes(in))
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], in[i])
		}
	}
	if n := len(audio.BytesToSamples([]byte{1, 2, 3})); n != 1 {
		t.Errorf("odd byte count: got %d samples, want 1", n)
	}
}
