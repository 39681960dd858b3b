// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvListen      = "LISTING_SYNC_LISTEN"
	EnvDataDir     = "LISTING_SYNC_DATA_DIR"
	EnvPlatformURL = "LISTING_SYNC_PLATFORM_URL"
	EnvPlatformKey = "LISTING_SYNC_PLATFORM_TOKEN"
)

// PlatformConfig describes the listing platform API. An empty BaseURL
// logs payloads instead of sending them.
type PlatformConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	Token          string `yaml:"token,omitempty" json:"-"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// SyncConfig holds sync defaults for properties that don't set their own.
type SyncConfig struct {
	DefaultIntervalMin  int `yaml:"default_interval_min" json:"default_interval_min"`
	DefaultHorizonDays  int `yaml:"default_horizon_days" json:"default_horizon_days"`
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`
	MaxPreviewDays      int `yaml:"max_preview_days" json:"max_preview_days"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// DataDir holds the SQLite database.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// StaticDir is served at / for the admin frontend.
	StaticDir string `yaml:"static_dir" json:"static_dir"`

	Platform PlatformConfig `yaml:"platform" json:"platform"`
	Sync     SyncConfig     `yaml:"sync" json:"sync"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing or zero values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = ":8099"
	}
	if c.DataDir == "" {
		c.DataDir = "/data"
	}
	if c.StaticDir == "" {
		c.StaticDir = "./static"
	}
	if c.Platform.TimeoutSeconds <= 0 {
		c.Platform.TimeoutSeconds = 30
	}
	if c.Sync.DefaultIntervalMin <= 0 {
		c.Sync.DefaultIntervalMin = 60
	}
	if c.Sync.DefaultHorizonDays <= 0 {
		c.Sync.DefaultHorizonDays = 365
	}
	if c.Sync.FetchTimeoutSeconds <= 0 {
		c.Sync.FetchTimeoutSeconds = 30
	}
	if c.Sync.MaxPreviewDays <= 0 {
		c.Sync.MaxPreviewDays = 1095
	}
}

// ApplyEnv overrides file values with any set environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvPlatformURL); v != "" {
		c.Platform.BaseURL = v
	}
	if v := os.Getenv(EnvPlatformKey); v != "" {
		c.Platform.Token = v
	}
}

// PlatformTimeout returns the platform request timeout.
func (c *Config) PlatformTimeout() time.Duration {
	return time.Duration(c.Platform.TimeoutSeconds) * time.Second
}

// FetchTimeout returns the supplier feed download timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Sync.FetchTimeoutSeconds) * time.Second
}

// Load reads configuration from the YAML file at path and applies
// environment overrides. A missing file is created with defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		cfg.ApplyEnv()
		return cfg, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".listing-sync-config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing config: %w", err)
	}

	return nil
}
