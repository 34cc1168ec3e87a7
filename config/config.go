// Package config defines the Quicklook service configuration: the
// acquisition parameters that can change between runs, and the static
// service settings loaded once at startup from a YAML file and
// QUICKLOOK_-prefixed environment variables.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/MaigomAS/Quicklook/errors"
)

// Acquisition modes
const (
	ModeLive   = "live"   // read events from the TCP event source
	ModeRecord = "record" // live, plus append every accepted line to a file
	ModeReplay = "replay" // read events from a recorded file with pacing
)

// Acquisition limits
const (
	MinWindowSeconds = 1
	MaxWindowSeconds = 3600
	MinChannels      = 1
	MaxChannels      = 64
	MinReplaySpeed   = 0.01
)

// AcquisitionConfig holds the per-run acquisition parameters. It can be
// replaced through the HTTP API between runs but never while a run is
// active.
type AcquisitionConfig struct {
	Mode        string  `json:"mode" yaml:"mode"`
	SimHost     string  `json:"sim_host" yaml:"sim_host"`
	SimPort     int     `json:"sim_port" yaml:"sim_port"`
	WindowS     int     `json:"window_s" yaml:"window_s"`
	Channels    int     `json:"channels" yaml:"channels"`
	RecordPath  string  `json:"record_path,omitempty" yaml:"record_path"`
	ReplayPath  string  `json:"replay_path,omitempty" yaml:"replay_path"`
	ReplaySpeed float64 `json:"replay_speed" yaml:"replay_speed"`
}

// DefaultAcquisition returns the acquisition defaults used when neither
// the config file nor the environment overrides them.
func DefaultAcquisition() AcquisitionConfig {
	return AcquisitionConfig{
		Mode:        ModeLive,
		SimHost:     "127.0.0.1",
		SimPort:     9001,
		WindowS:     5,
		Channels:    16,
		ReplaySpeed: 1.0,
	}
}

// Validate checks the acquisition parameters and returns a classified
// invalid-config error on the first violation.
func (c AcquisitionConfig) Validate() error {
	switch c.Mode {
	case ModeLive, ModeRecord, ModeReplay:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: mode %q (want live, record or replay)", errors.ErrInvalidConfig, c.Mode),
			"AcquisitionConfig", "Validate", "check mode")
	}

	if c.WindowS < MinWindowSeconds || c.WindowS > MaxWindowSeconds {
		return errors.WrapInvalid(
			fmt.Errorf("%w: window_s %d outside [%d, %d]",
				errors.ErrInvalidConfig, c.WindowS, MinWindowSeconds, MaxWindowSeconds),
			"AcquisitionConfig", "Validate", "check window_s")
	}

	if c.Channels < MinChannels || c.Channels > MaxChannels {
		return errors.WrapInvalid(
			fmt.Errorf("%w: channels %d outside [%d, %d]",
				errors.ErrInvalidConfig, c.Channels, MinChannels, MaxChannels),
			"AcquisitionConfig", "Validate", "check channels")
	}

	if c.Mode == ModeLive || c.Mode == ModeRecord {
		if c.SimHost == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: sim_host must not be empty in %s mode", errors.ErrInvalidConfig, c.Mode),
				"AcquisitionConfig", "Validate", "check sim_host")
		}
		if c.SimPort < 1 || c.SimPort > 65535 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: sim_port %d outside [1, 65535]", errors.ErrInvalidConfig, c.SimPort),
				"AcquisitionConfig", "Validate", "check sim_port")
		}
	}

	if c.Mode == ModeRecord && c.RecordPath == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: record_path must be set in record mode", errors.ErrInvalidConfig),
			"AcquisitionConfig", "Validate", "check record_path")
	}

	if c.Mode == ModeReplay {
		if c.ReplayPath == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: replay_path must be set in replay mode", errors.ErrInvalidConfig),
				"AcquisitionConfig", "Validate", "check replay_path")
		}
		if c.ReplaySpeed <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: replay_speed %g must be positive", errors.ErrInvalidConfig, c.ReplaySpeed),
				"AcquisitionConfig", "Validate", "check replay_speed")
		}
	}

	return nil
}

// Patch returns a copy of the config with the fields present in the
// update map applied. Unknown keys are rejected so a typo in an API
// request cannot silently no-op.
func (c AcquisitionConfig) Patch(update map[string]any) (AcquisitionConfig, error) {
	patched := c

	for key := range update {
		switch key {
		case "mode", "sim_host", "sim_port", "window_s", "channels",
			"record_path", "replay_path", "replay_speed":
		default:
			return c, errors.WrapInvalid(
				fmt.Errorf("%w: unknown field %q", errors.ErrInvalidConfig, key),
				"AcquisitionConfig", "Patch", "check fields")
		}
	}

	patched.Mode = GetString(update, "mode", c.Mode)
	patched.SimHost = GetString(update, "sim_host", c.SimHost)
	patched.SimPort = GetInt(update, "sim_port", c.SimPort)
	patched.WindowS = GetInt(update, "window_s", c.WindowS)
	patched.Channels = GetInt(update, "channels", c.Channels)
	patched.RecordPath = GetString(update, "record_path", c.RecordPath)
	patched.ReplayPath = GetString(update, "replay_path", c.ReplayPath)
	patched.ReplaySpeed = GetFloat64(update, "replay_speed", c.ReplaySpeed)

	if err := patched.Validate(); err != nil {
		return c, err
	}
	return patched, nil
}

// HTTPConfig defines the REST gateway settings
type HTTPConfig struct {
	Port        int      `json:"port" yaml:"port"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins"`
}

// MetricsConfig defines the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// NATSConfig defines the optional NATS event publishing sink
type NATSConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	URL           string `json:"url,omitempty" yaml:"url"`
	Subject       string `json:"subject,omitempty" yaml:"subject"`
	MaxReconnects int    `json:"max_reconnects,omitempty" yaml:"max_reconnects"`
}

// FanoutConfig defines the adapter event sinks
type FanoutConfig struct {
	Console       bool   `json:"console" yaml:"console"`
	TCPServerAddr string `json:"tcp_server_addr,omitempty" yaml:"tcp_server_addr"`
	TCPClientAddr string `json:"tcp_client_addr,omitempty" yaml:"tcp_client_addr"`
}

// LogConfig defines the structured logging settings
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Config is the complete service configuration
type Config struct {
	Log         LogConfig         `json:"log" yaml:"log"`
	HTTP        HTTPConfig        `json:"http" yaml:"http"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
	NATS        NATSConfig        `json:"nats" yaml:"nats"`
	Fanout      FanoutConfig      `json:"fanout" yaml:"fanout"`
	Acquisition AcquisitionConfig `json:"acquisition" yaml:"acquisition"`
}

// Default returns the service configuration defaults
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Port: 8000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		NATS: NATSConfig{
			Subject:       "quicklook.events",
			MaxReconnects: -1,
		},
		Acquisition: DefaultAcquisition(),
	}
}

// Validate checks the full service configuration
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: http port %d outside [1, 65535]", errors.ErrInvalidConfig, c.HTTP.Port),
			"Config", "Validate", "check http port")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: metrics port %d outside [1, 65535]", errors.ErrInvalidConfig, c.Metrics.Port),
			"Config", "Validate", "check metrics port")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nats url must be set when nats is enabled", errors.ErrInvalidConfig),
			"Config", "Validate", "check nats url")
	}
	return c.Acquisition.Validate()
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}
