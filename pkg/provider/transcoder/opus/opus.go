// Package opus provides an in-process transcoder.Provider that sends audio
// through an Opus encode/decode cycle.
//
// It needs no external binaries, which makes it a last-resort fallback when
// neither ffmpeg nor sox is installed, and a lossy-channel simulator for
// checking that a transmission survives compression. Input and output are
// WAV only. The channel runs at 48 kHz mono in 20 ms frames; other rates are
// resampled on the way in and out.
package opus

import (
	"context"
	"fmt"
	"math"

	"layeh.com/gopus"

	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
)

const (
	opusSampleRate  = 48000
	opusChannels    = 1
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960

	// maxPacketBytes bounds a single encoded packet.
	maxPacketBytes = 4000
)

// Compile-time assertion that Provider implements transcoder.Provider.
var _ transcoder.Provider = (*Provider)(nil)

// Provider round-trips audio through libopus. It keeps no state between
// calls; each Transcode builds its own encoder and decoder.
type Provider struct{}

// New creates a Provider.
func New() *Provider { return &Provider{} }

// Transcode implements transcoder.Provider.
func (p *Provider) Transcode(ctx context.Context, in []byte, opts transcoder.Options) ([]byte, error) {
	opts = opts.WithDefaults()
	if opts.Format != transcoder.FormatWAV {
		return nil, fmt.Errorf("opus: unsupported output format %q", opts.Format)
	}
	bitrate, err := transcoder.ParseBitrate(opts.Bitrate)
	if err != nil {
		return nil, fmt.Errorf("opus: %w", err)
	}
	seg, _, err := audio.DecodeWAV(in)
	if err != nil {
		return nil, fmt.Errorf("opus: %w", err)
	}

	pcm := audio.Resample(seg.Samples, seg.SampleRate, opusSampleRate)
	out, err := roundTrip(ctx, pcm, bitrate)
	if err != nil {
		return nil, err
	}
	out = audio.Resample(out, opusSampleRate, opts.SampleRate)
	if opts.Normalize {
		normalizePeak(out, transcoder.TruePeak)
	}
	// Segments are mono; Channels > 1 is not meaningful for this channel.
	return audio.EncodeWAV(audio.Segment{Samples: out, SampleRate: opts.SampleRate})
}

// roundTrip encodes pcm into Opus packets at bitrate and decodes them again.
// The result has exactly len(pcm) samples.
func roundTrip(ctx context.Context, pcm []int16, bitrate int) ([]int16, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	enc.SetBitrate(bitrate)
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}

	out := make([]int16, 0, len(pcm)+opusFrameSize)
	frame := make([]int16, opusFrameSize)
	for off := 0; off < len(pcm); off += opusFrameSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := copy(frame, pcm[off:])
		clear(frame[n:])

		packet, err := enc.Encode(frame, opusFrameSize, maxPacketBytes)
		if err != nil {
			return nil, fmt.Errorf("opus: encode at sample %d: %w", off, err)
		}
		decoded, err := dec.Decode(packet, opusFrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("opus: decode at sample %d: %w", off, err)
		}
		out = append(out, decoded...)
	}
	if len(out) > len(pcm) {
		out = out[:len(pcm)]
	}
	return out, nil
}

// normalizePeak scales samples in place so the loudest one sits at peakDB
// dBFS. Silence is left untouched.
func normalizePeak(samples []int16, peakDB float64) {
	var peak int32
	for _, s := range samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	if peak == 0 {
		return
	}
	gain := math.Pow(10, peakDB/20) * 32767 / float64(peak)
	for i, s := range samples {
		v := math.Round(float64(s) * gain)
		samples[i] = int16(max(-32768, min(32767, v)))
	}
}
