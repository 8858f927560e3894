package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/wavecast/internal/config"
	"github.com/MrWong99/wavecast/pkg/audio"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
log:
  level: debug

modem:
  name: ggwave
  to_file: /opt/ggwave/bin/ggwave-to-file
  from_file: /opt/ggwave/bin/ggwave-from-file
  protocol: 5
  volume: 50
  sample_rate: 16000
  dss: true

transmit:
  chunk_size: 60
  silence_gap: 250ms

receive:
  workers: 4
  timeout: 10m

transcoder:
  name: ffmpeg
  path: /usr/local/bin/ffmpeg
  bitrate: 96k
  fallbacks:
    - name: sox
    - name: opus

resilience:
  max_failures: 3
  reset_timeout: 1m

telemetry:
  listen_addr: ":9090"
`

type stubModem struct{}

func (stubModem) Modulate(context.Context, string, modem.Params) (audio.Segment, error) {
	return audio.Segment{}, nil
}

func (stubModem) Demodulate(context.Context, audio.Segment, modem.Params) ([]string, error) {
	return nil, nil
}

type stubTranscoder struct{ path string }

func (stubTranscoder) Transcode(_ context.Context, in []byte, _ transcoder.Options) ([]byte, error) {
	return in, nil
}

// ── loader ───────────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Log.Level != config.LogDebug {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
	want := modem.Params{Protocol: 5, Volume: 50, SampleRate: 16000, DSS: true}
	if got := cfg.Modem.Params(); got != want {
		t.Errorf("modem params = %+v, want %+v", got, want)
	}
	if cfg.Modem.ToFile != "/opt/ggwave/bin/ggwave-to-file" {
		t.Errorf("modem.to_file = %q", cfg.Modem.ToFile)
	}
	if cfg.Transmit.ChunkSize != 60 || cfg.Transmit.SilenceGap != 250*time.Millisecond {
		t.Errorf("transmit = %+v", cfg.Transmit)
	}
	if cfg.Receive.Workers != 4 || cfg.Receive.Timeout != 10*time.Minute {
		t.Errorf("receive = %+v", cfg.Receive)
	}
	if cfg.Transcoder.Name != "ffmpeg" || cfg.Transcoder.Path != "/usr/local/bin/ffmpeg" || cfg.Transcoder.Bitrate != "96k" {
		t.Errorf("transcoder = %+v", cfg.Transcoder)
	}
	if len(cfg.Transcoder.Fallbacks) != 2 || cfg.Transcoder.Fallbacks[1].Name != "opus" {
		t.Errorf("transcoder.fallbacks = %+v", cfg.Transcoder.Fallbacks)
	}
	if cfg.Resilience.MaxFailures != 3 || cfg.Resilience.ResetTimeout != time.Minute {
		t.Errorf("resilience = %+v", cfg.Resilience)
	}
	if cfg.Telemetry.ListenAddr != ":9090" {
		t.Errorf("telemetry.listen_addr = %q", cfg.Telemetry.ListenAddr)
	}
}

func TestLoadFromReader_PartialKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("transmit:\n  chunk_size: 60\ntranscoder:\n  fallbacks:\n    - name: sox\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	want := config.Default()
	want.Transmit.ChunkSize = 60
	want.Transcoder.Fallbacks = []config.ProviderEntry{{Name: "sox"}}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty config should be valid, got: %v", err)
	}
	if cfg.Modem.Params() != modem.DefaultParams() {
		t.Errorf("modem params = %+v, want defaults", cfg.Modem.Params())
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("modem:\n  protocoll: 3\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "protocoll") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wavecast.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Modem.Protocol != 5 {
		t.Errorf("modem.protocol = %d, want 5", cfg.Modem.Protocol)
	}

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v, want ErrNotExist", err)
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if cfg.Log.Level != config.LogInfo {
		t.Errorf("log.level = %q, want info", cfg.Log.Level)
	}
	if cfg.Modem.Name != "ggwave" || cfg.Modem.Params() != modem.DefaultParams() {
		t.Errorf("modem = %+v", cfg.Modem)
	}
	if cfg.Transmit.ChunkSize != 90 || cfg.Transmit.SilenceGap != 500*time.Millisecond {
		t.Errorf("transmit = %+v", cfg.Transmit)
	}
	if cfg.Receive.Workers != 1 || cfg.Receive.Timeout != 30*time.Minute {
		t.Errorf("receive = %+v", cfg.Receive)
	}
	if cfg.Transcoder.Name != "ffmpeg" || cfg.Transcoder.Bitrate != transcoder.DefaultBitrate {
		t.Errorf("transcoder = %+v", cfg.Transcoder)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	if _, err := reg.CreateModem(config.ModemConfig{Name: "nonexistent"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("modem: expected ErrProviderNotRegistered, got: %v", err)
	}
	if _, err := reg.CreateTranscoder(config.ProviderEntry{Name: "nonexistent"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("transcoder: expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var gotCfg config.ModemConfig
	reg.RegisterModem("stub", func(c config.ModemConfig) (modem.Provider, error) {
		gotCfg = c
		return stubModem{}, nil
	})
	reg.RegisterTranscoder("stub", func(e config.ProviderEntry) (transcoder.Provider, error) {
		return stubTranscoder{path: e.Path}, nil
	})

	if _, err := reg.CreateModem(config.ModemConfig{Name: "stub", Protocol: 7}); err != nil {
		t.Fatalf("CreateModem: %v", err)
	}
	if gotCfg.Protocol != 7 {
		t.Errorf("factory received protocol %d, want 7", gotCfg.Protocol)
	}

	tc, err := reg.CreateTranscoder(config.ProviderEntry{Name: "stub", Path: "/bin/x"})
	if err != nil {
		t.Fatalf("CreateTranscoder: %v", err)
	}
	if st, ok := tc.(stubTranscoder); !ok || st.path != "/bin/x" {
		t.Errorf("got %#v", tc)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	errFactory := errors.New("binary not found")
	reg.RegisterModem("broken", func(config.ModemConfig) (modem.Provider, error) {
		return nil, errFactory
	})
	if _, err := reg.CreateModem(config.ModemConfig{Name: "broken"}); !errors.Is(err, errFactory) {
		t.Errorf("expected factory error, got: %v", err)
	}
}
