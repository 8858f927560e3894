package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "48000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// ToMono down-mixes interleaved multi-channel samples to mono by averaging
// every channel of a frame. If channels is 1 or less the input is returned
// unchanged. A trailing partial frame is dropped.
func ToMono(interleaved []int16, channels int) []int16 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(interleaved[i*channels+ch])
		}
		out[i] = clamp16(sum / int32(channels))
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match, the input is returned unchanged.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstSamples := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]int16, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// ConvertSegment brings s to the target sample rate. Segments are always mono,
// so only the rate is considered. A warning is logged when a conversion
// actually happens because resampling degrades modem signals.
func ConvertSegment(s Segment, sampleRate int) Segment {
	if s.SampleRate == sampleRate || sampleRate <= 0 {
		return s
	}
	slog.Warn("audio format mismatch: resampling",
		"from", formatString(s.SampleRate, 1),
		"to", formatString(sampleRate, 1),
	)
	return Segment{
		Samples:    Resample(s.Samples, s.SampleRate, sampleRate),
		SampleRate: sampleRate,
	}
}

// SamplesToBytes converts int16 samples to little-endian PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// BytesToSamples converts little-endian PCM bytes to int16 samples. A trailing
// odd byte is ignored.
func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
