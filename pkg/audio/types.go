// Package audio holds the in-memory audio representation shared by the
// wavecast transmitter, scanner and providers, together with WAV I/O and the
// PCM format conversions needed to bring arbitrary WAV input into it.
//
// Every [Segment] is mono signed 16-bit PCM. Inputs with more channels are
// down-mixed on load; inputs at another rate can be brought to a target rate
// with [Resample].
package audio

import "time"

// Segment is a contiguous block of mono 16-bit PCM audio.
//
// Segments returned by [Segment.Slice] share their backing array with the
// parent. Treat segments as read-only once handed to another component.
type Segment struct {
	// Samples are the signed 16-bit PCM samples.
	Samples []int16

	// SampleRate in Hz (e.g., 48000).
	SampleRate int
}

// Duration returns the playback length of s.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(len(s.Samples)) * int64(time.Second) / int64(s.SampleRate))
}

// Len returns the number of samples in s.
func (s Segment) Len() int { return len(s.Samples) }

// IsEmpty reports whether s carries no samples.
func (s Segment) IsEmpty() bool { return len(s.Samples) == 0 }

// SampleAt converts a time offset into a sample index at the segment's rate,
// rounded to the nearest sample.
func (s Segment) SampleAt(d time.Duration) int {
	if d <= 0 || s.SampleRate <= 0 {
		return 0
	}
	return int((int64(d)*int64(s.SampleRate) + int64(time.Second)/2) / int64(time.Second))
}

// Slice returns the part of s in [offset, offset+length). The result is
// clamped to the end of s and may be shorter than length, or empty when
// offset lies past the end.
func (s Segment) Slice(offset, length time.Duration) Segment {
	start := s.SampleAt(offset)
	if start >= len(s.Samples) {
		return Segment{SampleRate: s.SampleRate}
	}
	end := start + s.SampleAt(length)
	if end > len(s.Samples) {
		end = len(s.Samples)
	}
	return Segment{Samples: s.Samples[start:end], SampleRate: s.SampleRate}
}

// Silence returns a segment of d worth of zero samples at sampleRate.
func Silence(d time.Duration, sampleRate int) Segment {
	s := Segment{SampleRate: sampleRate}
	n := s.SampleAt(d)
	s.Samples = make([]int16, n)
	return s
}

// Buffer accumulates segments of one sample rate into a single stream.
// The zero value is ready to use; the first appended segment fixes the rate.
type Buffer struct {
	samples    []int16
	sampleRate int
}

// Append adds seg to the end of the buffer. It reports false (and appends
// nothing) when seg's sample rate differs from what the buffer already holds.
func (b *Buffer) Append(seg Segment) bool {
	if b.sampleRate == 0 {
		b.sampleRate = seg.SampleRate
	}
	if seg.SampleRate != b.sampleRate {
		return false
	}
	b.samples = append(b.samples, seg.Samples...)
	return true
}

// AppendSilence adds d worth of zero samples at the buffer's rate. It is a
// no-op before the first segment has been appended.
func (b *Buffer) AppendSilence(d time.Duration) {
	if b.sampleRate == 0 {
		return
	}
	b.samples = append(b.samples, Silence(d, b.sampleRate).Samples...)
}

// Segment returns the accumulated audio. The buffer must not be appended to
// afterwards if the result is still in use.
func (b *Buffer) Segment() Segment {
	return Segment{Samples: b.samples, SampleRate: b.sampleRate}
}
