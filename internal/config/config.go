// Package config owns the settings store: schema, defaults, validation,
// XDG-compliant paths and the load/save lifecycle. The core never touches
// files; it receives a Config at construction and updates via ApplyConfig.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"

	"github.com/qtilities/voltrayke/internal/audio"
)

const appName = "voltrayke"

// FileLoggingConfig configures rotated file logging for the daemon.
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`
	Filename   string `json:"filename"` // empty = XDG cache path
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Config is the persisted settings schema.
type Config struct {
	EngineID          int                `json:"engine_id"`            // audio.EngineID
	ChannelID         int                `json:"channel_id"`           // sink index within the engine
	Normalized        bool               `json:"normalized"`           // perceptual volume mapping
	IgnoreMaxVolume   bool               `json:"ignore_max_volume"`    // permit native volumes above nominal max
	SingleStep        int                `json:"single_step"`          // slider arrow step, percent
	PageStep          int                `json:"page_step"`            // slider page step, percent
	MuteOnMiddleClick bool               `json:"mute_on_middle_click"` // tray policy passthrough
	MixerCommand      string             `json:"mixer_command"`        // external mixer launcher
	UseAutostart      bool               `json:"use_autostart"`
	LogLevel          string             `json:"log_level"` // debug, info, warn, error
	HistoryEnabled    bool               `json:"history_enabled"`
	FileLogging       *FileLoggingConfig `json:"file_logging,omitempty"`
}

// Manager handles loading, saving and validating configuration.
type Manager struct {
	fs afero.Fs
}

// NewManager creates a manager over the real filesystem.
func NewManager() *Manager {
	return NewManagerWithFs(afero.NewOsFs())
}

// NewManagerWithFs creates a manager over an injected filesystem, for tests.
func NewManagerWithFs(fs afero.Fs) *Manager {
	slog.Debug("creating config manager")
	return &Manager{fs: fs}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		EngineID:          int(audio.PulseAudio),
		ChannelID:         0,
		Normalized:        true,
		SingleStep:        1,
		PageStep:          10,
		MuteOnMiddleClick: true,
		MixerCommand:      "pavucontrol",
		LogLevel:          "warn",
		HistoryEnabled:    true,
		FileLogging: &FileLoggingConfig{
			Enabled:    true,
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// DefaultPath returns the XDG-compliant config file path.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.json")
}

// CachePath returns the XDG cache directory for a purpose (logs, history).
func CachePath(purpose string) string {
	return filepath.Join(xdg.CacheHome, appName, purpose)
}

// Load reads the config from the default path. A missing file yields the
// defaults; a malformed or invalid file is an error.
func (m *Manager) Load() (*Config, error) {
	return m.LoadFromFile(DefaultPath())
}

// LoadFromFile reads and validates a config file. A missing file yields the
// defaults.
func (m *Manager) LoadFromFile(path string) (*Config, error) {
	slog.Debug("loading config", "path", path)

	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("config file not found, using defaults", "path", path)
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	slog.Debug("config loaded",
		"engine_id", cfg.EngineID,
		"channel_id", cfg.ChannelID,
		"normalized", cfg.Normalized,
		"log_level", cfg.LogLevel)
	return cfg, nil
}

// Save writes the config to the default path, creating directories as
// needed.
func (m *Manager) Save(cfg *Config) error {
	return m.SaveToFile(cfg, DefaultPath())
}

// SaveToFile validates and writes a config file.
func (m *Manager) SaveToFile(cfg *Config, path string) error {
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}

	if err := m.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := afero.WriteFile(m.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Debug("config saved", "path", path)
	return nil
}

// Validate checks field ranges.
func Validate(cfg *Config) error {
	if _, err := audio.ParseEngineID(strconv.Itoa(cfg.EngineID)); err != nil {
		return fmt.Errorf("engine_id %d: %w", cfg.EngineID, err)
	}
	if cfg.SingleStep < 1 || cfg.SingleStep > 100 {
		return fmt.Errorf("single_step must be in 1..100, got %d", cfg.SingleStep)
	}
	if cfg.PageStep < 1 || cfg.PageStep > 100 {
		return fmt.Errorf("page_step must be in 1..100, got %d", cfg.PageStep)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	return nil
}

// ApplyEnvironmentOverrides applies VOLTRAYKE_* variables on top of the
// loaded config. Invalid values are logged and skipped.
func (m *Manager) ApplyEnvironmentOverrides(cfg *Config) *Config {
	if v := os.Getenv("VOLTRAYKE_ENGINE"); v != "" {
		if id, err := audio.ParseEngineID(v); err == nil {
			slog.Debug("engine overridden from environment", "engine", id)
			cfg.EngineID = int(id)
		} else {
			slog.Warn("ignoring invalid VOLTRAYKE_ENGINE", "value", v, "error", err)
		}
	}
	if v := os.Getenv("VOLTRAYKE_CHANNEL"); v != "" {
		if idx, err := strconv.Atoi(v); err == nil {
			cfg.ChannelID = idx
		} else {
			slog.Warn("ignoring invalid VOLTRAYKE_CHANNEL", "value", v)
		}
	}
	if v := os.Getenv("VOLTRAYKE_LOG_LEVEL"); v != "" {
		switch v {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = v
		default:
			slog.Warn("ignoring invalid VOLTRAYKE_LOG_LEVEL", "value", v)
		}
	}
	return cfg
}
