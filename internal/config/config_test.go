package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 300*time.Millisecond, cfg.Debounce)
	require.Equal(t, 20*time.Minute, cfg.RestThreshold)
	require.Equal(t, 3, cfg.ClosedFrames)
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := []byte(`
eye_closed_time: 4s
face_missing_time: 2500ms
rest_threshold: 15m
closed_frames: 5
log_level: debug
redis:
  host: 10.0.0.2
  port: 6380
lcd:
  address: 0x3f
`)
	require.NoError(t, os.WriteFile(path, contents, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4*time.Second, cfg.EyeClosedTime)
	require.Equal(t, 2500*time.Millisecond, cfg.FaceMissingTime)
	require.Equal(t, 15*time.Minute, cfg.RestThreshold)
	require.Equal(t, 5, cfg.ClosedFrames)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "10.0.0.2", cfg.Redis.Host)
	require.Equal(t, 6380, cfg.Redis.Port)
	require.Equal(t, uint16(0x3f), cfg.LCD.Address)
	// untouched keys keep their defaults
	require.Equal(t, DefaultDebounce, cfg.Debounce)
	require.Equal(t, 20, cfg.LCD.Cols)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debounce: [oops"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative debounce", func(c *Config) { c.Debounce = -time.Second }},
		{"zero eye closed time", func(c *Config) { c.EyeClosedTime = 0 }},
		{"negative face missing time", func(c *Config) { c.FaceMissingTime = -1 }},
		{"negative rest threshold", func(c *Config) { c.RestThreshold = -time.Minute }},
		{"zero closed frames", func(c *Config) { c.ClosedFrames = 0 }},
		{"zero yawn threshold", func(c *Config) { c.YawnThreshold = 0 }},
		{"zero yawn window", func(c *Config) { c.YawnWindow = 0 }},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
		{"negative pulse", func(c *Config) { c.TransitionPulse = -time.Second }},
		{"ear out of range", func(c *Config) { c.EARThreshold = 1.5 }},
		{"confidence out of range", func(c *Config) { c.MinConfidence = -0.1 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }},
		{"bad redis port", func(c *Config) { c.Redis.Port = 0 }},
		{"five row lcd", func(c *Config) { c.LCD.Rows = 5 }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tc.mutate(cfg)
			require.ErrorIs(t, Validate(cfg), ErrInvalid)
		})
	}
}

func TestValidateRedisPortIgnoredWhenDisabled(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Redis.Disabled = true
	cfg.Redis.Port = 0
	require.NoError(t, Validate(cfg))
}
