// Package app wires wavecast's subsystems into the two user-facing
// operations: encoding a file into an audio artefact and decoding an artefact
// back into the file.
//
// The App struct is built once from the config and the providers created by
// main.go. For testing, inject doubles through [Providers] (a loopback modem
// and a pass-through transcoder) and options such as [WithMetrics].
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/wavecast/internal/config"
	"github.com/MrWong99/wavecast/internal/observe"
	"github.com/MrWong99/wavecast/internal/probe"
	"github.com/MrWong99/wavecast/internal/receive"
	"github.com/MrWong99/wavecast/internal/transmit"
	"github.com/MrWong99/wavecast/internal/verify"
	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
)

// ErrOutputExists is returned when the output path already exists and the
// request does not allow overwriting it.
var ErrOutputExists = errors.New("app: output file already exists")

// ErrNoTranscoder is returned when a compressed format is requested but no
// transcoder is configured.
var ErrNoTranscoder = errors.New("app: no transcoder configured")

// Providers holds one interface value per provider slot. Populated by main.go
// via the config registry. Transcoder may be nil, which restricts the app to
// WAV artefacts.
type Providers struct {
	Modem      modem.Provider
	Transcoder transcoder.Provider
}

// App runs encode and decode operations. It is safe for concurrent use; the
// block duration measured by the first operation is shared by later ones.
type App struct {
	cfg       *config.Config
	providers *Providers
	params    modem.Params
	metrics   *observe.Metrics

	transmitter *transmit.Transmitter
	receiver    *receive.Receiver
	verifier    *verify.Verifier
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App from cfg. cfg is expected to have passed
// [config.Validate] with defaults applied.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Modem == nil {
		return nil, errors.New("app: a modem provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		params:    cfg.Modem.Params(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	tx, err := transmit.New(providers.Modem,
		transmit.WithParams(a.params),
		transmit.WithChunkSize(cfg.Transmit.ChunkSize),
		transmit.WithSilenceGap(cfg.Transmit.SilenceGap),
		transmit.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.transmitter = tx

	a.receiver = receive.New(providers.Modem, providers.Transcoder,
		receive.WithParams(a.params),
		receive.WithWorkers(cfg.Receive.Workers),
		receive.WithProber(probe.New(providers.Modem, a.metrics)),
		receive.WithMetrics(a.metrics),
	)
	a.verifier = verify.New(a.receiver, a.metrics)
	return a, nil
}

// ─── Encode ──────────────────────────────────────────────────────────────────

// EncodeRequest describes one encode operation.
type EncodeRequest struct {
	InputPath  string
	OutputPath string

	// Overwrite allows replacing an existing OutputPath.
	Overwrite bool

	// Bitrate overrides the configured compressed bitrate, e.g. "128k".
	Bitrate string
}

// EncodeReport summarises a finished encode.
type EncodeReport struct {
	SessionID    string
	InputBytes   int
	Frames       int
	Format       transcoder.Format
	Duration     time.Duration
	Channels     int
	ArtifactSize int

	// FrameStats is only meaningful when HasFrameStats is set, which needs at
	// least two frames.
	FrameStats    transmit.Stats
	HasFrameStats bool
}

// BytesPerSecond is the effective payload rate of the artefact.
func (r *EncodeReport) BytesPerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.InputBytes) / r.Duration.Seconds()
}

// Encode turns the file at req.InputPath into an audio artefact at
// req.OutputPath. The artefact format follows the output extension: ".mp3"
// is transcoded, anything else is written as WAV. The artefact is decoded
// again and compared with the input before it is written; a mismatch fails
// the operation with a *verify.VerificationFailedError and leaves no output.
// The verification is bounded by the configured receive timeout.
func (a *App) Encode(ctx context.Context, req EncodeRequest) (_ *EncodeReport, err error) {
	id := uuid.NewString()
	ctx, finish := observe.StartOperation(ctx, a.metrics, "encode")
	defer func() { finish(err) }()
	log := observe.Logger(ctx).With("session", id)

	if err := checkOutput(req.OutputPath, req.Overwrite); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("app: read input: %w", err)
	}
	log.Info("encoding", "input", req.InputPath, "bytes", len(data), "params", a.params.String())

	res, err := a.transmitter.Encode(ctx, data)
	if err != nil {
		return nil, err
	}
	report := &EncodeReport{
		SessionID:  id,
		InputBytes: len(data),
		Frames:     res.Frames,
		Format:     transcoder.FormatFromPath(req.OutputPath),
		Duration:   res.Audio.Duration(),
		Channels:   1,
	}
	report.FrameStats, report.HasFrameStats = res.Stats()
	if report.HasFrameStats {
		log.Info("frame durations (excluding last)",
			"min", report.FrameStats.Min, "avg", report.FrameStats.Avg, "max", report.FrameStats.Max)
	} else {
		log.Info("single frame, no duration stats")
	}

	artifact, err := a.render(ctx, res.Audio, report.Format, req.Bitrate)
	if err != nil {
		return nil, err
	}
	report.ArtifactSize = len(artifact)
	log.Info("audio generated",
		"duration", formatClock(report.Duration),
		"bytes_per_second", fmt.Sprintf("%.2f", report.BytesPerSecond()),
		"channels", report.Channels,
		"size", formatSize(report.ArtifactSize),
		"format", report.Format,
	)

	vctx, cancel := a.receiveContext(ctx)
	err = a.verifier.Verify(vctx, data, artifact, report.Format)
	cancel()
	if err != nil {
		return nil, err
	}
	if err := writeOutput(req.OutputPath, artifact, req.Overwrite); err != nil {
		return nil, err
	}
	log.Info("encode complete", "output", req.OutputPath)
	return report, nil
}

// render encodes seg as WAV and, for compressed formats, transcodes it.
func (a *App) render(ctx context.Context, seg audio.Segment, format transcoder.Format, bitrate string) ([]byte, error) {
	wav, err := audio.EncodeWAV(seg)
	if err != nil {
		return nil, fmt.Errorf("app: encode wav: %w", err)
	}
	if format == transcoder.FormatWAV {
		return wav, nil
	}
	if a.providers.Transcoder == nil {
		return nil, fmt.Errorf("%w for %s output", ErrNoTranscoder, format)
	}
	if bitrate == "" {
		bitrate = a.cfg.Transcoder.Bitrate
	}
	start := time.Now()
	out, err := a.providers.Transcoder.Transcode(ctx, wav, transcoder.Options{
		Format:     format,
		Channels:   1,
		SampleRate: a.params.SampleRate,
		Bitrate:    bitrate,
	})
	a.metrics.RecordTranscode(ctx, string(format), time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("app: transcode to %s: %w", format, err)
	}
	return out, nil
}

// ─── Decode ──────────────────────────────────────────────────────────────────

// DecodeRequest describes one decode operation.
type DecodeRequest struct {
	InputPath  string
	OutputPath string

	// Overwrite allows replacing an existing OutputPath.
	Overwrite bool
}

// DecodeReport summarises a finished decode.
type DecodeReport struct {
	SessionID string
	Format    transcoder.Format
	Bytes     int
	Elapsed   time.Duration
}

// Decode recovers the file transmitted in the recording at req.InputPath and
// writes it to req.OutputPath. The input format is sniffed from its content
// and falls back to the file extension. The whole operation is bounded by
// the configured receive timeout.
func (a *App) Decode(ctx context.Context, req DecodeRequest) (_ *DecodeReport, err error) {
	id := uuid.NewString()
	start := time.Now()
	ctx, cancel := a.receiveContext(ctx)
	defer cancel()
	ctx, finish := observe.StartOperation(ctx, a.metrics, "decode")
	defer func() { finish(err) }()
	log := observe.Logger(ctx).With("session", id)

	if err := checkOutput(req.OutputPath, req.Overwrite); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("app: read input: %w", err)
	}
	format, ok := transcoder.Sniff(data)
	if !ok {
		format = transcoder.FormatFromPath(req.InputPath)
	}
	log.Info("decoding", "input", req.InputPath, "format", format, "size", formatSize(len(data)))

	out, err := a.receiver.Receive(ctx, data, format)
	if err != nil {
		return nil, err
	}
	if err := writeOutput(req.OutputPath, out, req.Overwrite); err != nil {
		return nil, err
	}
	report := &DecodeReport{SessionID: id, Format: format, Bytes: len(out), Elapsed: time.Since(start)}
	log.Info("decode complete", "output", req.OutputPath, "bytes", report.Bytes, "elapsed", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// receiveContext bounds a receive pipeline run, the decode itself or the
// verification scan of an encode, by the configured receive timeout.
func (a *App) receiveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t := a.cfg.Receive.Timeout; t > 0 {
		return context.WithTimeout(ctx, t)
	}
	return context.WithCancel(ctx)
}

// ─── Files ───────────────────────────────────────────────────────────────────

// checkOutput fails early, before any expensive work, when path exists and
// may not be overwritten.
func checkOutput(path string, overwrite bool) error {
	if overwrite {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrOutputExists, path)
	}
	return nil
}

// writeOutput writes data to path. Without overwrite the file is created
// exclusively, so a file that appeared since [checkOutput] is not clobbered.
func writeOutput(path string, data []byte, overwrite bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", ErrOutputExists, path)
	}
	if err != nil {
		return fmt.Errorf("app: create output: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("app: write output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("app: write output: %w", err)
	}
	return nil
}

// formatClock renders d as "1h 2m 3.45s".
func formatClock(d time.Duration) string {
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := (d % time.Minute).Seconds()
	return fmt.Sprintf("%dh %dm %.2fs", h, m, s)
}

// formatSize renders n bytes with a binary unit, e.g. "1.50 KB".
func formatSize(n int) string {
	size := float64(n)
	units := []string{"B", "KB", "MB", "GB"}
	unit := units[0]
	for _, unit = range units {
		if size < 1024 || unit == units[len(units)-1] {
			break
		}
		size /= 1024
	}
	return fmt.Sprintf("%.2f %s", size, unit)
}
