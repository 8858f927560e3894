// Package config provides the configuration schema, loader, and provider registry
// for wavecast.
package config

import (
	"time"

	"github.com/MrWong99/wavecast/pkg/provider/modem"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for wavecast.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Modem      ModemConfig      `yaml:"modem"`
	Transmit   TransmitConfig   `yaml:"transmit"`
	Receive    ReceiveConfig    `yaml:"receive"`
	Transcoder TranscoderConfig `yaml:"transcoder"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level controls verbosity. The CLI's -v flag forces debug.
	Level LogLevel `yaml:"level"`
}

// ModemConfig selects the modem implementation and its transmission
// parameters. Both ends of a transfer must agree on Protocol and DSS.
type ModemConfig struct {
	// Name selects the registered modem implementation (e.g., "ggwave").
	Name string `yaml:"name"`

	// ToFile and FromFile override the ggwave helper binaries. Empty values
	// use the names resolved on PATH.
	ToFile   string `yaml:"to_file"`
	FromFile string `yaml:"from_file"`

	// TempDir is where per-call scratch directories are created.
	// Empty means the OS default.
	TempDir string `yaml:"temp_dir"`

	Protocol   int  `yaml:"protocol"`
	Volume     int  `yaml:"volume"`
	SampleRate int  `yaml:"sample_rate"`
	DSS        bool `yaml:"dss"`
}

// Params returns the modem parameters described by c.
func (c ModemConfig) Params() modem.Params {
	return modem.Params{
		Protocol:   c.Protocol,
		Volume:     c.Volume,
		SampleRate: c.SampleRate,
		DSS:        c.DSS,
	}
}

// TransmitConfig controls how payloads are split into frames.
type TransmitConfig struct {
	// ChunkSize is the number of payload bytes per frame (1–90).
	ChunkSize int `yaml:"chunk_size"`

	// SilenceGap is the pause inserted between consecutive frames.
	SilenceGap time.Duration `yaml:"silence_gap"`
}

// ReceiveConfig controls the receiving pipeline.
type ReceiveConfig struct {
	// Workers is the number of scan windows demodulated concurrently.
	Workers int `yaml:"workers"`

	// Timeout bounds a whole decode operation. Zero disables the bound.
	Timeout time.Duration `yaml:"timeout"`
}

// TranscoderConfig selects the audio transcoder and its fallbacks.
type TranscoderConfig struct {
	ProviderEntry `yaml:",inline"`

	// Fallbacks are tried in order when the primary transcoder fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Bitrate is the compressed output bitrate, e.g. "64k".
	Bitrate string `yaml:"bitrate"`
}

// ProviderEntry is the common configuration block shared by transcoder
// entries. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "ffmpeg", "sox").
	Name string `yaml:"name"`

	// Path overrides the executable for subprocess-backed providers.
	Path string `yaml:"path"`
}

// ResilienceConfig tunes the circuit breakers guarding external tools.
type ResilienceConfig struct {
	// MaxFailures is the number of consecutive failures that trips a breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long a tripped breaker stays open.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// TelemetryConfig configures the optional metrics and health endpoint.
type TelemetryConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`
}
