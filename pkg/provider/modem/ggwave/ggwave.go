// Package ggwave provides a modem.Provider backed by the ggwave command-line
// tools.
//
// Modulation runs ggwave-to-file with the message on stdin; the tool writes
// audio.wav into its working directory, so every call gets a private
// temporary directory. Demodulation writes the window to a WAV file and runs
// ggwave-from-file on it, returning its stdout lines unchanged.
//
// Usage:
//
//	p, err := ggwave.New(
//	    ggwave.WithToFile("/opt/ggwave/ggwave-to-file"),
//	    ggwave.WithFromFile("/opt/ggwave/ggwave-from-file"),
//	)
//	seg, err := p.Modulate(ctx, "1/1 aGk=", modem.DefaultParams())
package ggwave

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/frame"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
)

const (
	defaultToFile   = "ggwave-to-file"
	defaultFromFile = "ggwave-from-file"

	// outputName is the fixed file name ggwave-to-file writes to.
	outputName = "audio.wav"
)

// Compile-time assertion that Provider implements modem.Provider.
var _ modem.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithToFile sets the path of the ggwave-to-file executable. Defaults to
// "ggwave-to-file" resolved through PATH.
func WithToFile(path string) Option {
	return func(p *Provider) {
		if path != "" {
			p.toFile = path
		}
	}
}

// WithFromFile sets the path of the ggwave-from-file executable. Defaults to
// "ggwave-from-file" resolved through PATH.
func WithFromFile(path string) Option {
	return func(p *Provider) {
		if path != "" {
			p.fromFile = path
		}
	}
}

// WithTempDir sets the parent directory for per-call scratch directories.
// Defaults to [os.TempDir].
func WithTempDir(dir string) Option {
	return func(p *Provider) {
		p.tempDir = dir
	}
}

// Provider runs the ggwave binaries as subprocesses. It holds no mutable
// state and is safe for concurrent use.
type Provider struct {
	toFile   string
	fromFile string
	tempDir  string
}

// New creates a Provider. The executables are resolved lazily on first use so
// that construction never fails on a machine that only decodes.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		toFile:   defaultToFile,
		fromFile: defaultFromFile,
	}
	for _, o := range opts {
		o(p)
	}
	if p.toFile == "" || p.fromFile == "" {
		return nil, errors.New("ggwave: executable paths must not be empty")
	}
	return p, nil
}

// Binaries returns the configured executable names, for readiness checks.
func (p *Provider) Binaries() []string {
	return []string{p.toFile, p.fromFile}
}

// Modulate implements modem.Provider.
func (p *Provider) Modulate(ctx context.Context, message string, params modem.Params) (audio.Segment, error) {
	if len(message) > frame.MaxMessageLen {
		return audio.Segment{}, fmt.Errorf("ggwave: message is %d characters, limit is %d", len(message), frame.MaxMessageLen)
	}
	dir, err := os.MkdirTemp(p.tempDir, "wavecast-mod-*")
	if err != nil {
		return audio.Segment{}, fmt.Errorf("ggwave: create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	args := []string{
		"-p" + strconv.Itoa(params.Protocol),
		"-v" + strconv.Itoa(params.Volume),
		"-s" + strconv.Itoa(params.SampleRate),
	}
	if params.DSS {
		args = append(args, "-d")
	}

	cmd := exec.CommandContext(ctx, p.toFile, args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(message)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Debug("executing", "cmd", cmd.String())
	if err := cmd.Run(); err != nil {
		return audio.Segment{}, fmt.Errorf("ggwave: %s: %w: %s", p.toFile, err, strings.TrimSpace(stderr.String()))
	}

	seg, _, err := audio.ReadWAVFile(filepath.Join(dir, outputName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// An empty segment is how the interface reports "no audio".
			return audio.Segment{}, nil
		}
		return audio.Segment{}, fmt.Errorf("ggwave: %w", err)
	}
	return seg, nil
}

// Demodulate implements modem.Provider. A non-zero exit status of
// ggwave-from-file is not an error: the tool exits non-zero when it hears
// nothing, which is the common case for scan windows.
func (p *Provider) Demodulate(ctx context.Context, seg audio.Segment, params modem.Params) ([]string, error) {
	f, err := os.CreateTemp(p.tempDir, "wavecast-window-*.wav")
	if err != nil {
		return nil, fmt.Errorf("ggwave: create window file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	data, err := audio.EncodeWAV(seg)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ggwave: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("ggwave: write window file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("ggwave: close window file: %w", err)
	}

	var args []string
	if params.DSS {
		args = append(args, "-d")
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, p.fromFile, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	slog.Debug("executing", "cmd", cmd.String())
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return nil, fmt.Errorf("ggwave: %s: %w", p.fromFile, err)
		}
		slog.Debug("ggwave-from-file exited non-zero", "code", exitErr.ExitCode())
	}

	var lines []string
	sc := bufio.NewScanner(&stdout)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
