// Package config loads and validates the process configuration, following
// the shape and loading convention of the teacher's original config package.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	skyerrors "github.com/skyenginedb/skyengine/pkg/errors"
)

// Config is the top-level process configuration.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Journal JournalConfig `json:"journal"`
	Skymap  SkymapConfig  `json:"skymap"`
	Fractal FractalConfig `json:"fractal"`
	Log     LogConfig     `json:"log"`
}

// ServerConfig identifies this node in headers and log lines (spec §4.1's
// server_version/driver_version compatibility check).
type ServerConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	ServerVersion uint64 `json:"server_version"`
	DriverVersion uint64 `json:"driver_version"`
}

// StorageConfig locates the on-disk tree this process owns.
type StorageConfig struct {
	DataRoot string `json:"data_root"`
}

// JournalConfig tunes the raw journal/event-log driver (spec §4.1-§4.4).
type JournalConfig struct {
	// FsyncEveryEvent is kept for parity with the original's configurable
	// durability knob. Nothing in the engine reads it: the raw journal
	// fsyncs after every appended event whatever its value.
	FsyncEveryEvent bool `json:"fsync_every_event"`
}

// SkymapConfig tunes the striped primary index (spec §4.5).
type SkymapConfig struct {
	// ShardHint is validated to be non-negative but is not read by the
	// engine; per-model skymaps are always sized from runtime.NumCPU().
	ShardHint int `json:"shard_hint"`
}

// FractalConfig mirrors fractal.Config's JSON shape (spec §4.9).
type FractalConfig struct {
	WindowIntervalMS   int `json:"window_interval_ms"`
	MaxDeltaSize       int `json:"max_delta_size"`
	HighPriorityBuffer int `json:"high_priority_buffer"`
	StandardBuffer     int `json:"standard_buffer"`
}

// LogConfig configures the process-entry logger.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json or text
}

// WindowInterval returns the configured fractal window as a time.Duration.
func (f FractalConfig) WindowInterval() time.Duration {
	return time.Duration(f.WindowIntervalMS) * time.Millisecond
}

// DefaultConfig returns the baseline configuration used when no config file
// is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          7878,
			ServerVersion: 1,
			DriverVersion: 1,
		},
		Storage: StorageConfig{
			DataRoot: "./data",
		},
		Journal: JournalConfig{
			FsyncEveryEvent: true,
		},
		Skymap: SkymapConfig{
			ShardHint: 0,
		},
		Fractal: FractalConfig{
			WindowIntervalMS:   5000,
			MaxDeltaSize:       4096,
			HighPriorityBuffer: 256,
			StandardBuffer:     256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a JSON config file, falling back to DefaultConfig when
// configPath is empty.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, skyerrors.NewConfigError(configPath, fmt.Errorf("config file does not exist"))
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, skyerrors.NewConfigError(configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, skyerrors.NewConfigError(configPath, err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigOrDefault tries SKYENGINE_CONFIG, then a short list of
// conventional paths, then falls back to DefaultConfig.
func LoadConfigOrDefault() *Config {
	if envPath := os.Getenv("SKYENGINE_CONFIG"); envPath != "" {
		if cfg, err := LoadConfig(envPath); err == nil {
			return cfg
		}
	}

	possiblePaths := []string{
		"config.json",
		"./config/config.json",
		"/etc/skyenginedb/config.json",
	}
	for _, path := range possiblePaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if cfg, err := LoadConfig(absPath); err == nil {
			return cfg
		}
	}

	return DefaultConfig()
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return skyerrors.NewConfigError("server.port", fmt.Errorf("port %d out of range", cfg.Server.Port))
	}
	if cfg.Server.ServerVersion == 0 {
		return skyerrors.NewConfigError("server.server_version", fmt.Errorf("server_version must be non-zero"))
	}
	if cfg.Storage.DataRoot == "" {
		return skyerrors.NewConfigError("storage.data_root", fmt.Errorf("data_root must not be empty"))
	}
	if cfg.Skymap.ShardHint < 0 {
		return skyerrors.NewConfigError("skymap.shard_hint", fmt.Errorf("shard_hint must not be negative"))
	}
	if cfg.Fractal.WindowIntervalMS < 1 {
		return skyerrors.NewConfigError("fractal.window_interval_ms", fmt.Errorf("window_interval_ms must be positive"))
	}
	if cfg.Fractal.MaxDeltaSize < 1 {
		return skyerrors.NewConfigError("fractal.max_delta_size", fmt.Errorf("max_delta_size must be positive"))
	}
	if cfg.Fractal.HighPriorityBuffer < 1 {
		return skyerrors.NewConfigError("fractal.high_priority_buffer", fmt.Errorf("high_priority_buffer must be positive"))
	}
	if cfg.Fractal.StandardBuffer < 1 {
		return skyerrors.NewConfigError("fractal.standard_buffer", fmt.Errorf("standard_buffer must be positive"))
	}
	return nil
}

// ListenAddress returns the server's host:port listen address.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ToFractalManagerFields converts the JSON-friendly FractalConfig into the
// four values that make up the fractal.Config the manager expects.
func (f FractalConfig) ToFractalManagerFields() (windowInterval time.Duration, maxDeltaSize, highPriorityBuffer, standardBuffer int) {
	return f.WindowInterval(), f.MaxDeltaSize, f.HighPriorityBuffer, f.StandardBuffer
}
