package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MaigomAS/Quicklook/errors"
)

// EnvPrefix is prepended to every environment variable the service
// reads, e.g. QUICKLOOK_HTTP_PORT.
const EnvPrefix = "QUICKLOOK_"

// Load builds the service configuration from defaults, an optional
// YAML file, and environment overrides, in that order of precedence
// (environment wins). An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load",
				fmt.Sprintf("read config file %s", path))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load",
				fmt.Sprintf("parse config file %s", path))
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from QUICKLOOK_-prefixed
// environment variables. Unset variables leave the field untouched.
func applyEnv(cfg *Config) error {
	var err error

	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envString("LOG_FORMAT", cfg.Log.Format)

	if cfg.HTTP.Port, err = envInt("HTTP_PORT", cfg.HTTP.Port); err != nil {
		return err
	}
	if origins := envString("CORS_ORIGINS", ""); origins != "" {
		cfg.HTTP.CORSOrigins = splitAndTrim(origins)
	}

	if cfg.Metrics.Enabled, err = envBool("METRICS_ENABLED", cfg.Metrics.Enabled); err != nil {
		return err
	}
	if cfg.Metrics.Port, err = envInt("METRICS_PORT", cfg.Metrics.Port); err != nil {
		return err
	}

	if cfg.NATS.Enabled, err = envBool("NATS_ENABLED", cfg.NATS.Enabled); err != nil {
		return err
	}
	cfg.NATS.URL = envString("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Subject = envString("NATS_SUBJECT", cfg.NATS.Subject)

	cfg.Acquisition.Mode = envString("MODE", cfg.Acquisition.Mode)
	cfg.Acquisition.SimHost = envString("SIM_HOST", cfg.Acquisition.SimHost)
	if cfg.Acquisition.SimPort, err = envInt("SIM_PORT", cfg.Acquisition.SimPort); err != nil {
		return err
	}
	if cfg.Acquisition.WindowS, err = envInt("WINDOW_S", cfg.Acquisition.WindowS); err != nil {
		return err
	}
	if cfg.Acquisition.Channels, err = envInt("CHANNELS", cfg.Acquisition.Channels); err != nil {
		return err
	}
	cfg.Acquisition.RecordPath = envString("RECORD_PATH", cfg.Acquisition.RecordPath)
	cfg.Acquisition.ReplayPath = envString("REPLAY_PATH", cfg.Acquisition.ReplayPath)
	if cfg.Acquisition.ReplaySpeed, err = envFloat("REPLAY_SPEED", cfg.Acquisition.ReplaySpeed); err != nil {
		return err
	}

	return nil
}

func envString(name, defaultVal string) string {
	if val, ok := os.LookupEnv(EnvPrefix + name); ok {
		return val
	}
	return defaultVal
}

func envInt(name string, defaultVal int) (int, error) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal, errors.WrapInvalid(err, "config", "applyEnv",
			fmt.Sprintf("parse %s%s as integer", EnvPrefix, name))
	}
	return parsed, nil
}

func envFloat(name string, defaultVal float64) (float64, error) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return defaultVal, nil
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal, errors.WrapInvalid(err, "config", "applyEnv",
			fmt.Sprintf("parse %s%s as float", EnvPrefix, name))
	}
	return parsed, nil
}

func envBool(name string, defaultVal bool) (bool, error) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return defaultVal, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal, errors.WrapInvalid(err, "config", "applyEnv",
			fmt.Sprintf("parse %s%s as bool", EnvPrefix, name))
	}
	return parsed, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
