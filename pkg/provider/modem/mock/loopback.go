package mock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/frame"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
)

// Loopback symbol levels. Silence is 0, so none of these may be 0.
const (
	startMarker int16 = -30000
	endMarker   int16 = 30000
	lengthBase  int16 = 2000
	byteBase    int16 = 1000
)

// DefaultSamplesPerSymbol is used when Loopback.SamplesPerSymbol is zero.
const DefaultSamplesPerSymbol = 8

// AnalyzingLine is the noise line Loopback prints before any decoded
// messages, mimicking the banner of real modem tools.
const AnalyzingLine = "Analyzing captured data.."

// Loopback is a deterministic fake modem.
//
// A message is rendered as a sequence of symbols: a start marker, the
// message length, one symbol per byte and an end marker. Each symbol is held
// for SamplesPerSymbol samples at Params.SampleRate, so the duration of a
// modulated block depends only on the message length. Demodulate reports a
// message only when the whole block, from the first sample of the start marker
// to the last sample of the end marker, lies inside the window.
//
// The zero value is ready to use and safe for concurrent use.
type Loopback struct {
	// SamplesPerSymbol controls the block duration. Zero means
	// DefaultSamplesPerSymbol.
	SamplesPerSymbol int

	modulations   atomic.Int64
	demodulations atomic.Int64
}

// Ensure Loopback implements modem.Provider at compile time.
var _ modem.Provider = (*Loopback)(nil)

// Modulations returns how many times Modulate has been called.
func (l *Loopback) Modulations() int { return int(l.modulations.Load()) }

// Demodulations returns how many times Demodulate has been called.
func (l *Loopback) Demodulations() int { return int(l.demodulations.Load()) }

// BlockDuration returns the duration Modulate produces for a message of n
// bytes at sampleRate.
func (l *Loopback) BlockDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := int64((n + 3) * l.sps())
	return time.Duration(samples * int64(time.Second) / int64(sampleRate))
}

func (l *Loopback) sps() int {
	if l.SamplesPerSymbol <= 0 {
		return DefaultSamplesPerSymbol
	}
	return l.SamplesPerSymbol
}

// Modulate implements modem.Provider.
func (l *Loopback) Modulate(ctx context.Context, message string, p modem.Params) (audio.Segment, error) {
	l.modulations.Add(1)
	if err := ctx.Err(); err != nil {
		return audio.Segment{}, err
	}
	if len(message) > frame.MaxMessageLen {
		return audio.Segment{}, fmt.Errorf("loopback: message is %d characters, limit is %d", len(message), frame.MaxMessageLen)
	}
	if p.SampleRate <= 0 {
		return audio.Segment{}, fmt.Errorf("loopback: invalid sample rate %d", p.SampleRate)
	}

	symbols := make([]int16, 0, len(message)+3)
	symbols = append(symbols, startMarker, lengthBase+int16(len(message)))
	for i := range len(message) {
		symbols = append(symbols, byteBase+int16(message[i]))
	}
	symbols = append(symbols, endMarker)

	sps := l.sps()
	samples := make([]int16, 0, len(symbols)*sps)
	for _, s := range symbols {
		for range sps {
			samples = append(samples, s)
		}
	}
	return audio.Segment{Samples: samples, SampleRate: p.SampleRate}, nil
}

// Demodulate implements modem.Provider.
func (l *Loopback) Demodulate(ctx context.Context, seg audio.Segment, _ modem.Params) ([]string, error) {
	l.demodulations.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lines := []string{AnalyzingLine}
	s := seg.Samples
	sps := l.sps()
	for i := 0; i < len(s); {
		if s[i] != startMarker || (i > 0 && s[i-1] == startMarker) {
			i++
			continue
		}
		msg, next, ok := l.readBlock(s, i, sps)
		if !ok {
			i++
			continue
		}
		lines = append(lines, modem.FormatMessage(msg))
		i = next
	}
	return lines, nil
}

// readBlock decodes the block whose start marker begins at s[start]. It
// returns the index just past the block.
func (l *Loopback) readBlock(s []int16, start, sps int) (string, int, bool) {
	symbol := func(k int) (int16, bool) {
		from := start + k*sps
		if from+sps > len(s) {
			return 0, false
		}
		v := s[from]
		for _, x := range s[from : from+sps] {
			if x != v {
				return 0, false
			}
		}
		return v, true
	}

	if v, ok := symbol(0); !ok || v != startMarker {
		return "", 0, false
	}
	lv, ok := symbol(1)
	n := int(lv - lengthBase)
	if !ok || n < 0 || n > frame.MaxMessageLen {
		return "", 0, false
	}
	msg := make([]byte, n)
	for k := range n {
		v, ok := symbol(2 + k)
		if !ok || v < byteBase || v > byteBase+255 {
			return "", 0, false
		}
		msg[k] = byte(v - byteBase)
	}
	if v, ok := symbol(2 + n); !ok || v != endMarker {
		return "", 0, false
	}
	return string(msg), start + (n+3)*sps, true
}
