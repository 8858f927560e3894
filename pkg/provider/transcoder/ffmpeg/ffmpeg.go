// Package ffmpeg provides a transcoder.Provider that pipes audio through the
// ffmpeg command-line tool.
//
// Input is fed on stdin and the result read from stdout, so no temporary files
// are involved. WAV written to a pipe carries a placeholder data size, which
// audio.DecodeWAV accepts.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
)

const defaultPath = "ffmpeg"

// Compile-time assertion that Provider implements transcoder.Provider.
var _ transcoder.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithPath sets the ffmpeg executable. Defaults to "ffmpeg" resolved through
// PATH.
func WithPath(path string) Option {
	return func(p *Provider) {
		if path != "" {
			p.path = path
		}
	}
}

// Provider runs ffmpeg as a subprocess.
type Provider struct {
	path string
}

// New creates a Provider.
func New(opts ...Option) *Provider {
	p := &Provider{path: defaultPath}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Binary returns the configured executable, for readiness checks.
func (p *Provider) Binary() string { return p.path }

// Args returns the ffmpeg arguments used for opts, reading from stdin and
// writing to stdout.
func Args(opts transcoder.Options) []string {
	opts = opts.WithDefaults()
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", "pipe:0",
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRate),
	}
	if opts.Normalize {
		args = append(args, "-af", loudnormFilter())
	}
	switch opts.Format {
	case transcoder.FormatMP3:
		args = append(args, "-c:a", "libmp3lame", "-b:a", opts.Bitrate, "-f", "mp3")
	default:
		args = append(args, "-c:a", "pcm_s16le", "-f", "wav")
	}
	return append(args, "pipe:1")
}

func loudnormFilter() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return "loudnorm=I=" + f(transcoder.LoudnessTarget) +
		":TP=" + f(transcoder.TruePeak) +
		":LRA=" + f(transcoder.LoudnessRange)
}

// Transcode implements transcoder.Provider.
func (p *Provider) Transcode(ctx context.Context, in []byte, opts transcoder.Options) ([]byte, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("ffmpeg: empty input")
	}
	cmd := exec.CommandContext(ctx, p.path, Args(opts)...)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("executing", "cmd", cmd.String())
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg: no output produced")
	}
	return stdout.Bytes(), nil
}
