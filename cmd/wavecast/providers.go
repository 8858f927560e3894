package main

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/wavecast/internal/app"
	"github.com/MrWong99/wavecast/internal/config"
	"github.com/MrWong99/wavecast/internal/health"
	"github.com/MrWong99/wavecast/internal/observe"
	"github.com/MrWong99/wavecast/internal/resilience"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
	"github.com/MrWong99/wavecast/pkg/provider/modem/ggwave"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder/ffmpeg"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder/opus"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder/sox"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Modem ─────────────────────────────────────────────────────────────────

	reg.RegisterModem("ggwave", func(c config.ModemConfig) (modem.Provider, error) {
		p, err := ggwave.New(
			ggwave.WithToFile(c.ToFile),
			ggwave.WithFromFile(c.FromFile),
			ggwave.WithTempDir(c.TempDir),
		)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// ── Transcoder ────────────────────────────────────────────────────────────

	reg.RegisterTranscoder("ffmpeg", func(e config.ProviderEntry) (transcoder.Provider, error) {
		return ffmpeg.New(ffmpeg.WithPath(e.Path)), nil
	})
	reg.RegisterTranscoder("sox", func(e config.ProviderEntry) (transcoder.Provider, error) {
		return sox.New(sox.WithPath(e.Path)), nil
	})
	reg.RegisterTranscoder("opus", func(config.ProviderEntry) (transcoder.Provider, error) {
		return opus.New(), nil
	})
}

// binaryUser is implemented by subprocess-backed providers.
type binaryUser interface{ Binary() string }

// binariesUser is implemented by providers that run several executables.
type binariesUser interface{ Binaries() []string }

// buildProviders instantiates the providers named in cfg using the registry,
// guards them with circuit breakers and returns the readiness checkers that
// belong to them.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, []health.Checker, error) {
	var checkers []health.Checker
	cb := resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Resilience.MaxFailures,
		ResetTimeout: cfg.Resilience.ResetTimeout,
	}

	m, err := reg.CreateModem(cfg.Modem)
	if err != nil {
		return nil, nil, fmt.Errorf("create modem %q: %w", cfg.Modem.Name, err)
	}
	if bu, ok := m.(binariesUser); ok {
		for _, b := range bu.Binaries() {
			checkers = append(checkers, health.Binary(b))
		}
	}
	modemCB := cb
	modemCB.Name = cfg.Modem.Name
	guarded := resilience.NewModemBreaker(m, modemCB, metrics)
	checkers = append(checkers, health.Breaker(guarded.Breaker()))
	slog.Info("provider created", "kind", "modem", "name", cfg.Modem.Name, "params", cfg.Modem.Params().String())

	ps := &app.Providers{Modem: guarded}

	primary, err := createTranscoder(reg, cfg.Transcoder.ProviderEntry, &checkers)
	if err != nil {
		return nil, nil, fmt.Errorf("create transcoder %q: %w", cfg.Transcoder.Name, err)
	}
	fb := resilience.NewTranscoderFallback(primary, cfg.Transcoder.Name, resilience.FallbackConfig{
		CircuitBreaker: cb,
		Metrics:        metrics,
	})
	for _, entry := range cfg.Transcoder.Fallbacks {
		p, err := createTranscoder(reg, entry, &checkers)
		if err != nil {
			return nil, nil, fmt.Errorf("create fallback transcoder %q: %w", entry.Name, err)
		}
		fb.AddFallback(entry.Name, p)
	}
	ps.Transcoder = fb
	slog.Info("provider created", "kind", "transcoder", "chain", fb.Names())

	return ps, checkers, nil
}

func createTranscoder(reg *config.Registry, entry config.ProviderEntry, checkers *[]health.Checker) (transcoder.Provider, error) {
	p, err := reg.CreateTranscoder(entry)
	if err != nil {
		return nil, err
	}
	if bu, ok := p.(binaryUser); ok {
		*checkers = append(*checkers, health.Binary(bu.Binary()))
	}
	return p, nil
}
