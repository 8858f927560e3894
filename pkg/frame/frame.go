// Package frame defines the wire format of a single wavecast frame.
//
// A frame is one indexed, bounded-size piece of the transmitted payload. It
// travels through the modem as a Wire Record, a short line of text:
//
//	<index>/<total> <base64(payload)>
//
// Index is 1-based. The record must fit in a single modem message
// ([MaxMessageLen] characters), which caps the raw payload at [MaxChunkSize]
// bytes once base64 expansion and the header are accounted for.
//
// Decoding is deliberately permissive: the receiver demodulates overlapping
// windows of audio continuously and most of what comes back is noise. Any text
// that is not exactly a well-formed record is reported as "not a frame" rather
// than as an error.
package frame

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxMessageLen is the longest text the modem can carry in one block.
	MaxMessageLen = 140

	// MaxChunkSize is the largest payload a single frame may carry. With a
	// header of up to "9999/9999 " (10 characters) the record stays at
	// 10 + 4*ceil(90/3) = 130 characters.
	MaxChunkSize = 90
)

var (
	// ErrPayloadTooLarge is returned by [Encode] when the payload exceeds
	// [MaxChunkSize] or the resulting record exceeds [MaxMessageLen].
	ErrPayloadTooLarge = errors.New("frame: payload too large")

	// ErrInvalidPosition is returned by [Encode] when index or total violate
	// 1 <= index <= total.
	ErrInvalidPosition = errors.New("frame: invalid index/total")
)

// Frame is one unit of a transmission.
type Frame struct {
	// Index is the 1-based position of this frame.
	Index int

	// Total is the number of frames in the transmission.
	Total int

	// Payload is the raw slice of the original data carried by this frame.
	Payload []byte
}

// String returns the "index/total" position of the frame, e.g. "2/3".
func (f Frame) String() string {
	return strconv.Itoa(f.Index) + "/" + strconv.Itoa(f.Total)
}

// Encode serialises f into its Wire Record.
func Encode(f Frame) (string, error) {
	if f.Index < 1 || f.Total < 1 || f.Index > f.Total {
		return "", fmt.Errorf("%w: %d/%d", ErrInvalidPosition, f.Index, f.Total)
	}
	if len(f.Payload) == 0 {
		return "", fmt.Errorf("frame: empty payload for frame %s", f)
	}
	if len(f.Payload) > MaxChunkSize {
		return "", fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(f.Payload), MaxChunkSize)
	}
	rec := f.String() + " " + base64.StdEncoding.EncodeToString(f.Payload)
	if len(rec) > MaxMessageLen {
		return "", fmt.Errorf("%w: record is %d characters, modem limit is %d", ErrPayloadTooLarge, len(rec), MaxMessageLen)
	}
	return rec, nil
}

// Decode parses a Wire Record. It reports false for anything that is not
// exactly "<int>/<int> <base64>" with 1 <= index <= total. Leading and
// trailing whitespace is ignored.
func Decode(text string) (Frame, bool) {
	parts := strings.Split(strings.TrimSpace(text), " ")
	if len(parts) != 2 || parts[1] == "" {
		return Frame{}, false
	}
	idxStr, totalStr, ok := strings.Cut(parts[0], "/")
	if !ok || strings.Contains(totalStr, "/") {
		return Frame{}, false
	}
	index, ok := parseCount(idxStr)
	if !ok {
		return Frame{}, false
	}
	total, ok := parseCount(totalStr)
	if !ok || index > total {
		return Frame{}, false
	}
	payload, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(payload) == 0 {
		return Frame{}, false
	}
	return Frame{Index: index, Total: total, Payload: payload}, true
}

// ChunksFor returns how many frames are needed to carry n bytes in chunks of
// chunkSize, i.e. ceil(n / chunkSize).
func ChunksFor(n, chunkSize int) int {
	if n <= 0 || chunkSize <= 0 {
		return 0
	}
	return (n + chunkSize - 1) / chunkSize
}

// parseCount parses a strictly positive decimal integer made of ASCII digits
// only (no sign, no whitespace).
func parseCount(s string) (int, bool) {
	if s == "" || len(s) > 9 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
