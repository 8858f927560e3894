// Package transcoder defines the Provider interface for audio container
// conversion and loudness normalization.
//
// wavecast produces and consumes mono 16-bit WAV internally. A transcoder
// converts that into a delivery format (MP3) on the way out, and brings
// arbitrary received recordings back to mono 48 kHz WAV, optionally
// loudness-normalized, on the way in.
package transcoder

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Format is an audio container format.
type Format string

const (
	// FormatWAV is uncompressed PCM in a RIFF/WAVE container.
	FormatWAV Format = "wav"

	// FormatMP3 is MPEG-1 Layer III.
	FormatMP3 Format = "mp3"
)

const (
	// DefaultSampleRate is the rate received audio is normalized to.
	DefaultSampleRate = 48000

	// DefaultBitrate is the MP3 bitrate used when none is configured.
	DefaultBitrate = "64k"

	// LoudnessTarget, TruePeak and LoudnessRange are the EBU R128 loudnorm
	// targets applied when Options.Normalize is set.
	LoudnessTarget = -16.0
	TruePeak       = -1.5
	LoudnessRange  = 11.0
)

// FormatFromPath returns the format implied by the file extension of path.
// Anything other than ".mp3" is treated as WAV.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		return FormatMP3
	}
	return FormatWAV
}

// ParseFormat parses a format name such as "wav" or "MP3".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatWAV, FormatMP3:
		return f, nil
	}
	return "", fmt.Errorf("transcoder: unknown format %q", s)
}

// Options controls a single transcode.
type Options struct {
	// Format is the output container. Defaults to FormatWAV.
	Format Format

	// Channels is the output channel count. Defaults to 1.
	Channels int

	// SampleRate is the output sample rate in Hz. Defaults to
	// DefaultSampleRate.
	SampleRate int

	// Bitrate is the target bitrate for lossy formats, e.g. "64k".
	Bitrate string

	// Normalize applies EBU R128 loudness normalization.
	Normalize bool
}

// WithDefaults returns o with zero fields replaced by their defaults.
func (o Options) WithDefaults() Options {
	if o.Format == "" {
		o.Format = FormatWAV
	}
	if o.Channels <= 0 {
		o.Channels = 1
	}
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Bitrate == "" {
		o.Bitrate = DefaultBitrate
	}
	return o
}

// Provider is the abstraction over any audio transcoder.
type Provider interface {
	// Transcode converts the audio file in, in any container the
	// implementation understands, according to opts and returns the encoded
	// output file.
	Transcode(ctx context.Context, in []byte, opts Options) ([]byte, error)
}

// ParseBitrate converts a bitrate such as "64k", "128K" or "96000" into bits
// per second.
func ParseBitrate(s string) (int, error) {
	s = strings.TrimSpace(s)
	mult := 1
	if n := len(s); n > 0 && (s[n-1] == 'k' || s[n-1] == 'K') {
		mult = 1000
		s = s[:n-1]
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("transcoder: invalid bitrate %q", s)
	}
	return v * mult, nil
}

// Sniff guesses the container of an encoded audio file from its leading
// bytes. It reports false when the data matches no known format.
func Sniff(data []byte) (Format, bool) {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV, true
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3, true
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG audio frame sync.
		return FormatMP3, true
	}
	return "", false
}
