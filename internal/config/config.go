// Package config loads consumed-sync configuration from a TOML file with
// environment overrides. Credentials come from the environment only.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variable names, matching the deployed system.
const (
	EnvDeveloperToken = "APPLE_DEVELOPER_TOKEN"
	EnvUserToken      = "APPLE_MUSIC_USER_TOKEN"
	EnvDatabaseURL    = "DATABASE_URL"
)

// Configuration errors.
var (
	ErrMissingCredentials = errors.New("missing Apple Music credentials")
	ErrMissingDatabaseURL = errors.New("missing database URL")
)

// Config is the application configuration.
type Config struct {
	AppleMusic AppleMusicConfig `toml:"-"`
	Database   DatabaseConfig   `toml:"database"`
	Sync       SyncConfig       `toml:"sync"`
	Server     ServerConfig     `toml:"server"`
}

// AppleMusicConfig holds the two Apple Music tokens. Environment-only.
type AppleMusicConfig struct {
	DeveloperToken string
	UserToken      string
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// SyncConfig contains reconciliation tunables.
type SyncConfig struct {
	FetchLimit         int    `toml:"fetch_limit"`
	SlotMinutes        int    `toml:"slot_minutes"`
	DedupWindowMinutes int    `toml:"dedup_window_minutes"`
	Timezone           string `toml:"timezone"`
	IntervalMinutes    int    `toml:"interval_minutes"`
}

// ServerConfig contains daemon-mode status server settings.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// Default returns a Config with defaults from the embedded example file,
// with environment overrides applied.
func Default() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("parsing embedded default config: %v", err))
	}
	config.applyEnv()
	return &config
}

// Load reads and parses a TOML configuration file, applying environment
// overrides on top.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	config.applyEnv()
	return config, nil
}

// WriteExample creates an example config file at path.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, exampleConf, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDeveloperToken); v != "" {
		c.AppleMusic.DeveloperToken = v
	}
	if v := os.Getenv(EnvUserToken); v != "" {
		c.AppleMusic.UserToken = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Database.URL = v
	}
}

// Validate checks that everything a reconciliation pass needs is present.
// A validation failure is fatal before anything is attempted, so no run
// record is written for it.
func (c *Config) Validate() error {
	if c.AppleMusic.DeveloperToken == "" || c.AppleMusic.UserToken == "" {
		return fmt.Errorf("%w: set %s and %s", ErrMissingCredentials, EnvDeveloperToken, EnvUserToken)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("%w: set %s", ErrMissingDatabaseURL, EnvDatabaseURL)
	}
	if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Sync.Timezone, err)
	}
	return nil
}

// SlotDuration returns the per-position play time estimation gap.
func (c *Config) SlotDuration() time.Duration {
	return time.Duration(c.Sync.SlotMinutes) * time.Minute
}

// DedupWindow returns the duplicate detection tolerance.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.Sync.DedupWindowMinutes) * time.Minute
}

// Interval returns the time between daemon-mode passes.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// Location returns the day bucketing timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Sync.Timezone)
}

// ServerAddr returns the status server listen address.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
