// Package modem defines the Provider interface for single-block acoustic
// modems.
//
// A modem turns one short text message (at most 140 characters) into an
// audio waveform and back. It knows nothing about files, chunking or
// ordering; wavecast builds its transport protocol on top of the two
// operations defined here. Keeping the modem behind this narrow interface
// lets protocol tests run against a deterministic fake (see the mock package)
// instead of real audio.
//
// Implementations must be safe for concurrent use: the receiver may
// demodulate several scan windows at once.
package modem

import (
	"context"
	"strconv"
	"strings"

	"github.com/MrWong99/wavecast/pkg/audio"
)

const (
	// DefaultProtocol is the ggwave protocol id used when none is configured.
	DefaultProtocol = 2

	// DefaultVolume is the modulation volume in percent.
	DefaultVolume = 90

	// DefaultSampleRate is the output sample rate of modulated audio in Hz.
	DefaultSampleRate = 48000
)

// Params selects how a message is modulated and demodulated. Two calls with
// equal Params and equal message lengths must yield segments of equal
// duration; the receiver's timing calibration depends on it.
type Params struct {
	// Protocol is the modem-specific transmission protocol id.
	Protocol int

	// Volume is the output volume in percent (1–100).
	Volume int

	// SampleRate is the sample rate of generated audio in Hz.
	SampleRate int

	// DSS enables direct-sequence spread spectrum on both ends.
	DSS bool
}

// DefaultParams returns the parameters used when nothing else is configured.
func DefaultParams() Params {
	return Params{
		Protocol:   DefaultProtocol,
		Volume:     DefaultVolume,
		SampleRate: DefaultSampleRate,
	}
}

// String renders p for logs, e.g. "p2/v90/48000Hz/dss".
func (p Params) String() string {
	s := "p" + strconv.Itoa(p.Protocol) + "/v" + strconv.Itoa(p.Volume) + "/" + strconv.Itoa(p.SampleRate) + "Hz"
	if p.DSS {
		s += "/dss"
	}
	return s
}

// Provider is the abstraction over any single-block modem.
type Provider interface {
	// Modulate renders message as audio. message must not exceed the modem's
	// maximum message length. An empty returned segment means the modem
	// produced no audio; callers treat that as a failure.
	Modulate(ctx context.Context, message string, p Params) (audio.Segment, error)

	// Demodulate listens to seg and returns the modem's raw output lines.
	// Successfully decoded messages appear as lines in the form understood by
	// [Message]; everything else is free-form noise. A window containing no
	// signal returns no matching lines and a nil error.
	Demodulate(ctx context.Context, seg audio.Segment, p Params) ([]string, error)
}

// decodedPrefix starts every line that carries a decoded message.
const decodedPrefix = "Decoded message with length"

// FormatMessage renders message the way a modem reports a successful decode:
//
//	Decoded message with length N: '<message>'
func FormatMessage(message string) string {
	return decodedPrefix + " " + strconv.Itoa(len(message)) + ": '" + message + "'"
}

// Message extracts the decoded text from one output line of a modem. It
// reports false for lines that do not announce a decoded message. The content
// is everything between the first and the last single quote on the line.
func Message(line string) (string, bool) {
	if !strings.Contains(line, decodedPrefix) {
		return "", false
	}
	start := strings.IndexByte(line, '\'')
	end := strings.LastIndexByte(line, '\'')
	if start == -1 || end <= start {
		return "", false
	}
	return line[start+1 : end], true
}

// Messages filters lines down to the decoded messages they announce.
func Messages(lines []string) []string {
	var out []string
	for _, l := range lines {
		if msg, ok := Message(l); ok {
			out = append(out, msg)
		}
	}
	return out
}
