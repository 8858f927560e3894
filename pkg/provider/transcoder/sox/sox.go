// Package sox provides a transcoder.Provider built on SoX (Sound eXchange).
//
// Audio is streamed through stdin and stdout. SoX cannot guess the type of a
// pipe, so the input container is sniffed from its leading bytes and passed
// with -t. MP3 support depends on the SoX build (libmad and libmp3lame).
package sox

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

const defaultPath = "sox"

// Compile-time assertion that Provider implements transcoder.Provider.
var _ transcoder.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithPath sets the sox executable. Defaults to "sox" resolved through PATH.
func WithPath(path string) Option {
	return func(p *Provider) {
		if path != "" {
			p.path = path
		}
	}
}

// Provider runs sox as a subprocess.
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

// Args returns the sox arguments for converting input of type in according to
// opts.
func Args(in transcoder.Format, opts transcoder.Options) ([]string, error) {
	opts = opts.WithDefaults()
	var args []string
	if opts.Normalize {
		args = append(args, "--norm="+strconv.FormatFloat(transcoder.TruePeak, 'f', -1, 64))
	}
	args = append(args, "-t", string(in), "-")
	args = append(args,
		"-c", strconv.Itoa(opts.Channels),
		"-r", strconv.Itoa(opts.SampleRate),
	)
	switch opts.Format {
	case transcoder.FormatMP3:
		bps, err := transcoder.ParseBitrate(opts.Bitrate)
		if err != nil {
			return nil, fmt.Errorf("sox: %w", err)
		}
		args = append(args, "-C", strconv.Itoa(bps/1000), "-t", "mp3", "-")
	default:
		args = append(args, "-b", "16", "-e", "signed-integer", "-t", "wav", "-")
	}
	return args, nil
}

// Transcode implements transcoder.Provider.
func (p *Provider) Transcode(ctx context.Context, in []byte, opts transcoder.Options) ([]byte, error) {
	inFormat, ok := transcoder.Sniff(in)
	if !ok {
		return nil, fmt.Errorf("sox: unrecognised input container")
	}
	args, err := Args(inFormat, opts)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, p.path, args...)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("executing", "cmd", cmd.String())
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("sox: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("sox: no output produced")
	}
	return stdout.Bytes(), nil
}
