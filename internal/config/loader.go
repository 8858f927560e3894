package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/MrWong99/wavecast/pkg/frame"
	"github.com/MrWong99/wavecast/pkg/provider/modem"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
	"gopkg.in/yaml.v3"
)

// Default values filled in by [ApplyDefaults].
const (
	DefaultModem        = "ggwave"
	DefaultTranscoder   = "ffmpeg"
	DefaultSilenceGap   = 500 * time.Millisecond
	DefaultTimeout      = 30 * time.Minute
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"modem":      {"ggwave"},
	"transcoder": {"ffmpeg", "sox", "opus"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg. A zero value always means
// "use the default", so a silence gap cannot be configured as exactly zero.
func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = LogInfo
	}

	m := &cfg.Modem
	if m.Name == "" {
		m.Name = DefaultModem
	}
	if m.Protocol == 0 {
		m.Protocol = modem.DefaultProtocol
	}
	if m.Volume == 0 {
		m.Volume = modem.DefaultVolume
	}
	if m.SampleRate == 0 {
		m.SampleRate = modem.DefaultSampleRate
	}

	if cfg.Transmit.ChunkSize == 0 {
		cfg.Transmit.ChunkSize = frame.MaxChunkSize
	}
	if cfg.Transmit.SilenceGap == 0 {
		cfg.Transmit.SilenceGap = DefaultSilenceGap
	}

	if cfg.Receive.Workers == 0 {
		cfg.Receive.Workers = 1
	}
	if cfg.Receive.Timeout == 0 {
		cfg.Receive.Timeout = DefaultTimeout
	}

	if cfg.Transcoder.Name == "" {
		cfg.Transcoder.Name = DefaultTranscoder
	}
	if cfg.Transcoder.Bitrate == "" {
		cfg.Transcoder.Bitrate = transcoder.DefaultBitrate
	}

	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = DefaultResetTimeout
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	// Modem
	validateProviderName("modem", cfg.Modem.Name)
	if cfg.Modem.Protocol < 0 {
		errs = append(errs, fmt.Errorf("modem.protocol %d must not be negative", cfg.Modem.Protocol))
	}
	if cfg.Modem.Volume < 0 || cfg.Modem.Volume > 100 {
		errs = append(errs, fmt.Errorf("modem.volume %d is out of range [1, 100]", cfg.Modem.Volume))
	}
	if cfg.Modem.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("modem.sample_rate %d must be positive", cfg.Modem.SampleRate))
	}

	// Transmit
	if cfg.Transmit.ChunkSize < 0 || cfg.Transmit.ChunkSize > frame.MaxChunkSize {
		errs = append(errs, fmt.Errorf("transmit.chunk_size %d is out of range [1, %d]", cfg.Transmit.ChunkSize, frame.MaxChunkSize))
	}
	if cfg.Transmit.SilenceGap < 0 {
		errs = append(errs, fmt.Errorf("transmit.silence_gap %s must not be negative", cfg.Transmit.SilenceGap))
	}

	// Receive
	if cfg.Receive.Workers < 0 {
		errs = append(errs, fmt.Errorf("receive.workers %d must be positive", cfg.Receive.Workers))
	}
	if cfg.Receive.Timeout < 0 {
		errs = append(errs, fmt.Errorf("receive.timeout %s must not be negative", cfg.Receive.Timeout))
	}

	// Transcoder
	validateProviderName("transcoder", cfg.Transcoder.Name)
	for i, fb := range cfg.Transcoder.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("transcoder.fallbacks[%d].name is required", i))
			continue
		}
		if fb.Name == cfg.Transcoder.Name && fb.Path == cfg.Transcoder.Path {
			errs = append(errs, fmt.Errorf("transcoder.fallbacks[%d] %q duplicates the primary transcoder", i, fb.Name))
		}
		validateProviderName("transcoder", fb.Name)
	}
	if cfg.Transcoder.Bitrate != "" {
		if _, err := transcoder.ParseBitrate(cfg.Transcoder.Bitrate); err != nil {
			errs = append(errs, fmt.Errorf("transcoder.bitrate: %w", err))
		}
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must be positive", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
