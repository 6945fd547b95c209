// SPDX-License-Identifier: EPL-2.0

// Package config loads runtime configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Backends accepted by the Backend field.
var Backends = []string{"null", "portaudio", "oto", "malgo"}

// Config holds every runtime setting.
type Config struct {
	// Backend is the device backend name.
	Backend string `yaml:"backend"`
	// Device is the preferred output device name, empty for the system default.
	Device string `yaml:"device"`

	SampleRate   int `yaml:"sample_rate"`
	Channels     int `yaml:"channels"`
	BufferFrames int `yaml:"buffer_frames"`

	// UpdateHz is the audio thread frame rate.
	UpdateHz           int           `yaml:"update_hz"`
	DevicePollInterval time.Duration `yaml:"device_poll_interval"`
	// SyncTimeout bounds synchronous waits on the audio thread.
	SyncTimeout time.Duration `yaml:"sync_timeout"`

	SampleConcurrency int      `yaml:"sample_concurrency"`
	TrackExtensions   []string `yaml:"track_extensions"`
	SampleExtensions  []string `yaml:"sample_extensions"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
}

// Default returns the built in configuration.
func Default() Config {
	return Config{
		Backend:            "null",
		SampleRate:         44100,
		Channels:           2,
		BufferFrames:       512,
		UpdateHz:           1000,
		DevicePollInterval: time.Second,
		SyncTimeout:        10 * time.Second,
		SampleConcurrency:  2,
		TrackExtensions:    []string{"mp3", "ogg", "wav", "aiff"},
		SampleExtensions:   []string{"wav", "mp3", "ogg"},
		LogLevel:           "info",
	}
}

// Load reads path over the defaults, applies AUDRT_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error

	if !slices.Contains(Backends, c.Backend) {
		errs = append(errs, fmt.Errorf("backend %q is not one of %v", c.Backend, Backends))
	}
	if c.SampleRate < 8000 || c.SampleRate > 384000 {
		errs = append(errs, fmt.Errorf("sample_rate %d out of range", c.SampleRate))
	}
	if c.Channels < 1 || c.Channels > 8 {
		errs = append(errs, fmt.Errorf("channels %d out of range", c.Channels))
	}
	if c.BufferFrames < 0 {
		errs = append(errs, fmt.Errorf("buffer_frames %d is negative", c.BufferFrames))
	}
	if c.UpdateHz < 1 {
		errs = append(errs, fmt.Errorf("update_hz %d must be positive", c.UpdateHz))
	}
	if c.DevicePollInterval <= 0 {
		errs = append(errs, fmt.Errorf("device_poll_interval %v must be positive", c.DevicePollInterval))
	}
	if c.SyncTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sync_timeout %v must be positive", c.SyncTimeout))
	}
	if c.SampleConcurrency < 1 {
		errs = append(errs, fmt.Errorf("sample_concurrency %d must be positive", c.SampleConcurrency))
	}
	if !slices.Contains(logLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level %q is not one of %v", c.LogLevel, logLevels))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

var logLevels = []string{"debug", "info", "warn", "error", "disabled"}

func (c *Config) applyEnv() error {
	c.Backend = getEnv("AUDRT_BACKEND", c.Backend)
	c.Device = getEnv("AUDRT_DEVICE", c.Device)
	c.LogLevel = getEnv("AUDRT_LOG_LEVEL", c.LogLevel)
	c.TrackExtensions = getEnvList("AUDRT_TRACK_EXTENSIONS", c.TrackExtensions)
	c.SampleExtensions = getEnvList("AUDRT_SAMPLE_EXTENSIONS", c.SampleExtensions)

	var err error
	ints := []struct {
		key string
		dst *int
	}{
		{"AUDRT_SAMPLE_RATE", &c.SampleRate},
		{"AUDRT_CHANNELS", &c.Channels},
		{"AUDRT_BUFFER_FRAMES", &c.BufferFrames},
		{"AUDRT_UPDATE_HZ", &c.UpdateHz},
		{"AUDRT_SAMPLE_CONCURRENCY", &c.SampleConcurrency},
	}
	for _, v := range ints {
		if *v.dst, err = getEnvInt(v.key, *v.dst); err != nil {
			return err
		}
	}

	if c.DevicePollInterval, err = getEnvDuration("AUDRT_DEVICE_POLL_INTERVAL", c.DevicePollInterval); err != nil {
		return err
	}
	if c.SyncTimeout, err = getEnvDuration("AUDRT_SYNC_TIMEOUT", c.SyncTimeout); err != nil {
		return err
	}
	if c.LogPretty, err = getEnvBool("AUDRT_LOG_PRETTY", c.LogPretty); err != nil {
		return err
	}

	return nil
}

// getEnv returns the value of the environment variable key, or defaultValue if unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}

	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}

	return d, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}

	return b, nil
}
