package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaigomAS/Quicklook/errors"
)

func TestAcquisitionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AcquisitionConfig)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(_ *AcquisitionConfig) {},
		},
		{
			name:    "unknown mode",
			mutate:  func(c *AcquisitionConfig) { c.Mode = "stream" },
			wantErr: true,
		},
		{
			name:    "window too small",
			mutate:  func(c *AcquisitionConfig) { c.WindowS = 0 },
			wantErr: true,
		},
		{
			name:    "window too large",
			mutate:  func(c *AcquisitionConfig) { c.WindowS = 3601 },
			wantErr: true,
		},
		{
			name:   "window at upper bound",
			mutate: func(c *AcquisitionConfig) { c.WindowS = 3600 },
		},
		{
			name:    "channels too many",
			mutate:  func(c *AcquisitionConfig) { c.Channels = 65 },
			wantErr: true,
		},
		{
			name:    "channels zero",
			mutate:  func(c *AcquisitionConfig) { c.Channels = 0 },
			wantErr: true,
		},
		{
			name:    "live mode empty host",
			mutate:  func(c *AcquisitionConfig) { c.SimHost = "" },
			wantErr: true,
		},
		{
			name: "record mode needs record path",
			mutate: func(c *AcquisitionConfig) {
				c.Mode = ModeRecord
				c.RecordPath = ""
			},
			wantErr: true,
		},
		{
			name: "record mode with path",
			mutate: func(c *AcquisitionConfig) {
				c.Mode = ModeRecord
				c.RecordPath = "/tmp/run.jsonl"
			},
		},
		{
			name: "replay mode needs replay path",
			mutate: func(c *AcquisitionConfig) {
				c.Mode = ModeReplay
				c.ReplayPath = ""
			},
			wantErr: true,
		},
		{
			name: "replay speed must be positive",
			mutate: func(c *AcquisitionConfig) {
				c.Mode = ModeReplay
				c.ReplayPath = "/tmp/run.jsonl"
				c.ReplaySpeed = 0
			},
			wantErr: true,
		},
		{
			name: "replay mode ignores sim endpoint",
			mutate: func(c *AcquisitionConfig) {
				c.Mode = ModeReplay
				c.ReplayPath = "/tmp/run.jsonl"
				c.SimHost = ""
				c.SimPort = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAcquisition()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAcquisitionConfig_Patch(t *testing.T) {
	base := DefaultAcquisition()

	patched, err := base.Patch(map[string]any{
		"window_s": float64(10), // JSON numbers decode as float64
		"channels": 32,
		"sim_host": "10.0.0.5",
	})
	require.NoError(t, err)
	assert.Equal(t, 10, patched.WindowS)
	assert.Equal(t, 32, patched.Channels)
	assert.Equal(t, "10.0.0.5", patched.SimHost)
	assert.Equal(t, base.Mode, patched.Mode)

	_, err = base.Patch(map[string]any{"window_seconds": 10})
	require.Error(t, err, "unknown field must be rejected")
	assert.True(t, errors.IsInvalid(err))

	_, err = base.Patch(map[string]any{"channels": 100})
	require.Error(t, err, "patched config must still validate")
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quicklook.yaml")
	content := []byte(`
http:
  port: 8100
acquisition:
  mode: live
  sim_host: sim.lab.internal
  sim_port: 9001
  window_s: 2
  channels: 8
  replay_speed: 1.0
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	t.Setenv("QUICKLOOK_WINDOW_S", "7")
	t.Setenv("QUICKLOOK_CORS_ORIGINS", "http://localhost:3000, http://localhost:5173")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8100, cfg.HTTP.Port)
	assert.Equal(t, "sim.lab.internal", cfg.Acquisition.SimHost)
	assert.Equal(t, 7, cfg.Acquisition.WindowS, "env must override the file")
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.HTTP.CORSOrigins)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("QUICKLOOK_SIM_PORT", "not-a-port")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/quicklook.yaml")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	cfg.HTTP.CORSOrigins = []string{"http://localhost:3000"}

	clone := cfg.Clone()
	clone.HTTP.CORSOrigins[0] = "http://evil.example"
	clone.Acquisition.WindowS = 99

	assert.Equal(t, "http://localhost:3000", cfg.HTTP.CORSOrigins[0])
	assert.Equal(t, 5, cfg.Acquisition.WindowS)
}
