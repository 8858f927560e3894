// Command wavecast transmits files as sound: encode turns a file into an
// audio artefact, decode recovers the file from a recording of it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/MrWong99/wavecast/internal/app"
	"github.com/MrWong99/wavecast/internal/config"
	"github.com/MrWong99/wavecast/internal/health"
	"github.com/MrWong99/wavecast/internal/observe"
	"github.com/MrWong99/wavecast/internal/verify"
)

const usage = `usage: wavecast <command> [flags] [args]

commands:
  encode <input> <output>   encode a file into a .wav or .mp3 artefact
  decode <input> <output>   recover a file from an audio recording
  check                     report whether the external tools are usable

Run "wavecast <command> -h" for the flags of a command.
`

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "wavecast: %v\n", err)
		fmt.Fprint(stderr, usage)
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(opts)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(stderr, "wavecast: config file %q not found\n", opts.configPath)
		} else {
			fmt.Fprintf(stderr, "wavecast: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(stderr, cfg.Log.Level))
	slog.Debug("wavecast starting", "version", version, "command", opts.command, "params", cfg.Modem.Params().String())

	// ── Signal handling ───────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, checkers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	hc := health.New(checkers...)

	if opts.command == "check" {
		return runCheck(ctx, hc, stdout)
	}

	if addr := cfg.Telemetry.ListenAddr; addr != "" {
		srv, err := serveTelemetry(addr, tel.MetricsHandler, hc, metrics)
		if err != nil {
			slog.Error("failed to start telemetry server", "addr", addr, "err", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	application, err := app.New(cfg, providers, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	switch opts.command {
	case "encode":
		err = runEncode(ctx, application, opts, stdout)
	case "decode":
		err = runDecode(ctx, application, opts, stdout)
	}
	if err != nil {
		reportError(stderr, err)
		return 1
	}
	return 0
}

func runEncode(ctx context.Context, a *app.App, opts *options, stdout io.Writer) error {
	r, err := a.Encode(ctx, app.EncodeRequest{
		InputPath:  opts.args[0],
		OutputPath: opts.args[1],
		Overwrite:  opts.overwrite,
		Bitrate:    opts.bitrate,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "encoded %s -> %s\n", opts.args[0], opts.args[1])
	fmt.Fprintf(stdout, "  input:     %d bytes in %d frames\n", r.InputBytes, r.Frames)
	if r.HasFrameStats {
		fmt.Fprintf(stdout, "  frames:    min %s, avg %s, max %s\n",
			r.FrameStats.Min.Round(time.Millisecond), r.FrameStats.Avg.Round(time.Millisecond), r.FrameStats.Max.Round(time.Millisecond))
	}
	fmt.Fprintf(stdout, "  duration:  %s (%.2f B/s)\n", r.Duration.Round(time.Millisecond), r.BytesPerSecond())
	fmt.Fprintf(stdout, "  artefact:  %s, %d channel, %d bytes\n", r.Format, r.Channels, r.ArtifactSize)
	fmt.Fprintln(stdout, "  verified:  ok")
	return nil
}

func runDecode(ctx context.Context, a *app.App, opts *options, stdout io.Writer) error {
	r, err := a.Decode(ctx, app.DecodeRequest{
		InputPath:  opts.args[0],
		OutputPath: opts.args[1],
		Overwrite:  opts.overwrite,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "decoded %s (%s) -> %s: %d bytes in %s\n",
		opts.args[0], r.Format, opts.args[1], r.Bytes, r.Elapsed.Round(time.Millisecond))
	return nil
}

func runCheck(ctx context.Context, hc *health.Handler, stdout io.Writer) int {
	checks, ok := hc.Run(ctx)
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(stdout, "%-40s %s\n", name, checks[name])
	}
	if !ok {
		return 1
	}
	return 0
}

// reportError prints err with the detail a user needs to act on it.
func reportError(w io.Writer, err error) {
	var vf *verify.VerificationFailedError
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(w, "wavecast: interrupted")
	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintln(w, "wavecast: timed out (see receive.timeout)")
	case errors.Is(err, app.ErrOutputExists):
		fmt.Fprintf(w, "wavecast: %v (use -y to overwrite)\n", err)
	case errors.As(err, &vf):
		fmt.Fprintf(w, "wavecast: %v\n", err)
		fmt.Fprintln(w, "wavecast: nothing was written; try a different -p protocol or lower the compression")
	default:
		fmt.Fprintf(w, "wavecast: %v\n", err)
	}
}

// serveTelemetry starts the /metrics, /healthz and /readyz endpoints on addr.
// The listener is bound before returning so address errors surface
// immediately.
func serveTelemetry(addr string, metricsHandler http.Handler, hc *health.Handler, metrics *observe.Metrics) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	hc.Register(mux)

	srv := &http.Server{
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("telemetry server error", "err", err)
		}
	}()
	slog.Info("telemetry server listening", "addr", ln.Addr().String())
	return srv, nil
}

// newLogger creates a [*slog.Logger] writing text to w at the given level.
func newLogger(w io.Writer, level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
