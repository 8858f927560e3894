package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE

	wavHeaderSize = 44
)

// ErrInvalidWAV is returned when data cannot be parsed as a RIFF/WAVE file.
var ErrInvalidWAV = errors.New("audio: invalid WAV data")

// WAVInfo describes the stream stored in a WAV file as found on disk, before
// any down-mixing.
type WAVInfo struct {
	Format        Format
	BitsPerSample int
	NumFrames     int
}

// EncodeWAV serialises s as a canonical 44-byte-header mono 16-bit PCM WAV file.
func EncodeWAV(s Segment) ([]byte, error) {
	if s.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: sample rate must be positive, got %d", s.SampleRate)
	}
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := uint32(len(s.Samples) * 2)

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(s.Samples)*2))
	buf.WriteString("RIFF")
	writeLE(buf, uint32(36)+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeLE(buf, uint32(16))
	writeLE(buf, uint16(wavFormatPCM))
	writeLE(buf, uint16(channels))
	writeLE(buf, uint32(s.SampleRate))
	writeLE(buf, uint32(s.SampleRate*channels*bitsPerSample/8))
	writeLE(buf, uint16(channels*bitsPerSample/8))
	writeLE(buf, uint16(bitsPerSample))
	buf.WriteString("data")
	writeLE(buf, dataSize)
	buf.Write(SamplesToBytes(s.Samples))
	return buf.Bytes(), nil
}

// DecodeWAV parses a RIFF/WAVE file into a mono [Segment]. It walks all chunks
// (skipping LIST and other metadata) and accepts 8/16/24/32-bit integer PCM and
// 32-bit float data with any channel count. A data chunk whose declared size
// is zero or larger than the remaining bytes, as written by encoders streaming
// to a pipe, is read to the end of the input.
func DecodeWAV(data []byte) (Segment, WAVInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Segment{}, WAVInfo{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		info       WAVInfo
		formatTag  uint16
		haveFormat bool
		pcm        []byte
		haveData   bool
	)

	pos := 12
	for pos+8 <= len(data) && !haveData {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		remaining := len(data) - body

		switch id {
		case "fmt ":
			if size < 16 || size > remaining {
				return Segment{}, WAVInfo{}, fmt.Errorf("%w: truncated fmt chunk", ErrInvalidWAV)
			}
			formatTag = binary.LittleEndian.Uint16(data[body:])
			info.Format.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.Format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			if formatTag == wavFormatExtensible && size >= 26 {
				// The sub-format GUID starts with the real format tag.
				formatTag = binary.LittleEndian.Uint16(data[body+24:])
			}
			haveFormat = true
		case "data":
			if size == 0 || size > remaining {
				size = remaining
			}
			pcm = data[body : body+size]
			haveData = true
		}

		if size > remaining {
			break
		}
		pos = body + size + size%2
	}

	if !haveFormat {
		return Segment{}, WAVInfo{}, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	}
	if !haveData {
		return Segment{}, WAVInfo{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
	}
	if info.Format.Channels < 1 || info.Format.SampleRate < 1 {
		return Segment{}, WAVInfo{}, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidWAV, info.Format.Channels, info.Format.SampleRate)
	}

	samples, err := decodeSamples(pcm, formatTag, info.BitsPerSample)
	if err != nil {
		return Segment{}, WAVInfo{}, err
	}
	info.NumFrames = len(samples) / info.Format.Channels

	return Segment{
		Samples:    ToMono(samples, info.Format.Channels),
		SampleRate: info.Format.SampleRate,
	}, info, nil
}

// ReadWAVFile loads the WAV file at path. See [DecodeWAV].
func ReadWAVFile(path string) (Segment, WAVInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Segment{}, WAVInfo{}, fmt.Errorf("audio: read %q: %w", path, err)
	}
	seg, info, err := DecodeWAV(data)
	if err != nil {
		return Segment{}, WAVInfo{}, fmt.Errorf("audio: decode %q: %w", path, err)
	}
	return seg, info, nil
}

// WriteWAVFile writes s to path as mono 16-bit PCM.
func WriteWAVFile(path string, s Segment) error {
	data, err := EncodeWAV(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("audio: write %q: %w", path, err)
	}
	return nil
}

// decodeSamples converts raw interleaved sample bytes into int16 samples.
func decodeSamples(pcm []byte, formatTag uint16, bits int) ([]int16, error) {
	switch {
	case formatTag == wavFormatPCM && bits == 16:
		return BytesToSamples(pcm), nil

	case formatTag == wavFormatPCM && bits == 8:
		out := make([]int16, len(pcm))
		for i, b := range pcm {
			out[i] = (int16(b) - 128) << 8
		}
		return out, nil

	case formatTag == wavFormatPCM && bits == 24:
		n := len(pcm) / 3
		out := make([]int16, n)
		for i := range n {
			// Keep the two most significant bytes.
			out[i] = int16(uint16(pcm[i*3+1]) | uint16(pcm[i*3+2])<<8)
		}
		return out, nil

	case formatTag == wavFormatPCM && bits == 32:
		n := len(pcm) / 4
		out := make([]int16, n)
		for i := range n {
			out[i] = int16(int32(binary.LittleEndian.Uint32(pcm[i*4:])) >> 16)
		}
		return out, nil

	case formatTag == wavFormatFloat && bits == 32:
		n := len(pcm) / 4
		out := make([]int16, n)
		for i := range n {
			f := math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
			out[i] = clamp16(int32(f * 32767))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unsupported encoding (format %d, %d bits)", ErrInvalidWAV, formatTag, bits)
}

func writeLE(w io.Writer, v any) {
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(w, binary.LittleEndian, v)
}
