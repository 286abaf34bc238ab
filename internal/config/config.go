package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"drowsy-monitor/internal/logger"
)

// Config holds every tunable of the monitor. Durations are written as Go
// duration strings in YAML ("300ms", "20m").
type Config struct {
	Debounce        time.Duration `yaml:"debounce"`
	EyeClosedTime   time.Duration `yaml:"eye_closed_time"`
	FaceMissingTime time.Duration `yaml:"face_missing_time"`
	RestThreshold   time.Duration `yaml:"rest_threshold"`
	ClosedFrames    int           `yaml:"closed_frames"`
	YawnThreshold   int           `yaml:"yawn_threshold"`
	YawnWindow      time.Duration `yaml:"yawn_window"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	TransitionPulse time.Duration `yaml:"transition_pulse"`

	// EARThreshold is the eye aspect ratio under which eyes count as closed
	// when a frame carries landmarks instead of a classification.
	EARThreshold float64 `yaml:"ear_threshold"`
	// MinConfidence drops frames whose classifier confidence is lower.
	MinConfidence float64 `yaml:"min_confidence"`

	LogLevel string `yaml:"log_level"`

	Redis   Redis   `yaml:"redis"`
	GPIO    GPIO    `yaml:"gpio"`
	LCD     LCD     `yaml:"lcd"`
	Journal Journal `yaml:"journal"`
}

type Redis struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Disabled runs the monitor without remote reporting or perception feed.
	Disabled bool `yaml:"disabled"`
}

type GPIO struct {
	Chip   string `yaml:"chip"`
	Buzzer int    `yaml:"buzzer"`
	LED    int    `yaml:"led"`
	Button int    `yaml:"button"`
}

type LCD struct {
	Bus     int    `yaml:"bus"`
	Address uint16 `yaml:"address"`
	Cols    int    `yaml:"cols"`
	Rows    int    `yaml:"rows"`
}

type Journal struct {
	Path string `yaml:"path"`
}

const (
	DefaultConfigFilename = "/etc/drowsy-monitor/config.yaml"

	DefaultDebounce        = 300 * time.Millisecond
	DefaultEyeClosedTime   = 3 * time.Second
	DefaultFaceMissingTime = 2 * time.Second
	DefaultRestThreshold   = 20 * time.Minute
	DefaultClosedFrames    = 3
	DefaultYawnThreshold   = 3
	DefaultYawnWindow      = 60 * time.Second
	DefaultTickInterval    = 100 * time.Millisecond
	DefaultTransitionPulse = time.Second
	DefaultEARThreshold    = 0.25
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Debounce:        DefaultDebounce,
		EyeClosedTime:   DefaultEyeClosedTime,
		FaceMissingTime: DefaultFaceMissingTime,
		RestThreshold:   DefaultRestThreshold,
		ClosedFrames:    DefaultClosedFrames,
		YawnThreshold:   DefaultYawnThreshold,
		YawnWindow:      DefaultYawnWindow,
		TickInterval:    DefaultTickInterval,
		TransitionPulse: DefaultTransitionPulse,
		EARThreshold:    DefaultEARThreshold,
		MinConfidence:   0,
		LogLevel:        "info",
		Redis: Redis{
			Host: "127.0.0.1",
			Port: 6379,
		},
		GPIO: GPIO{
			Chip:   "gpiochip0",
			Buzzer: 17,
			LED:    21,
			Button: 19,
		},
		LCD: LCD{
			Bus:     1,
			Address: 0x27,
			Cols:    20,
			Rows:    4,
		},
		Journal: Journal{
			Path: "/var/lib/drowsy-monitor/breaks.db",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; the defaults are returned after validation.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the state machine cannot run with.
func Validate(cfg *Config) error {
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"debounce", cfg.Debounce},
		{"eye_closed_time", cfg.EyeClosedTime},
		{"face_missing_time", cfg.FaceMissingTime},
		{"rest_threshold", cfg.RestThreshold},
		{"yawn_window", cfg.YawnWindow},
		{"tick_interval", cfg.TickInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalid, p.name, p.value)
		}
	}

	if cfg.TransitionPulse < 0 {
		return fmt.Errorf("%w: transition_pulse must not be negative", ErrInvalid)
	}
	if cfg.ClosedFrames < 1 {
		return fmt.Errorf("%w: closed_frames must be at least 1, got %d", ErrInvalid, cfg.ClosedFrames)
	}
	if cfg.YawnThreshold < 1 {
		return fmt.Errorf("%w: yawn_threshold must be at least 1, got %d", ErrInvalid, cfg.YawnThreshold)
	}
	if cfg.EARThreshold <= 0 || cfg.EARThreshold >= 1 {
		return fmt.Errorf("%w: ear_threshold must be in (0,1), got %v", ErrInvalid, cfg.EARThreshold)
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence must be in [0,1], got %v", ErrInvalid, cfg.MinConfidence)
	}
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !cfg.Redis.Disabled && (cfg.Redis.Port <= 0 || cfg.Redis.Port > 65535) {
		return fmt.Errorf("%w: redis port %d out of range", ErrInvalid, cfg.Redis.Port)
	}
	if cfg.LCD.Cols <= 0 || cfg.LCD.Rows <= 0 || cfg.LCD.Rows > 4 {
		return fmt.Errorf("%w: lcd geometry %dx%d not supported", ErrInvalid, cfg.LCD.Cols, cfg.LCD.Rows)
	}

	return nil
}
