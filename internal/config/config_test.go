package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvDeveloperToken, "")
	t.Setenv(EnvUserToken, "")
	t.Setenv(EnvDatabaseURL, "")
}

func TestDefault(t *testing.T) {
	clearEnv(t)
	cfg := Default()

	if cfg.Sync.FetchLimit != 30 {
		t.Errorf("FetchLimit = %d, want 30", cfg.Sync.FetchLimit)
	}
	if cfg.SlotDuration() != 4*time.Minute {
		t.Errorf("SlotDuration = %v, want 4m", cfg.SlotDuration())
	}
	if cfg.DedupWindow() != 10*time.Minute {
		t.Errorf("DedupWindow = %v, want 10m", cfg.DedupWindow())
	}
	if cfg.Sync.Timezone != "America/Los_Angeles" {
		t.Errorf("Timezone = %q", cfg.Sync.Timezone)
	}
	if cfg.Interval() != 30*time.Minute {
		t.Errorf("Interval = %v, want 30m", cfg.Interval())
	}
	if cfg.ServerAddr() != "127.0.0.1:8990" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr())
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[database]
url = "postgres://localhost/consumed"

[sync]
fetch_limit = 10
slot_minutes = 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.URL != "postgres://localhost/consumed" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Sync.FetchLimit != 10 {
		t.Errorf("FetchLimit = %d, want 10", cfg.Sync.FetchLimit)
	}
	// Unset keys keep their defaults.
	if cfg.Sync.DedupWindowMinutes != 10 {
		t.Errorf("DedupWindowMinutes = %d, want default 10", cfg.Sync.DedupWindowMinutes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvDeveloperToken, "dev")
	t.Setenv(EnvUserToken, "user")
	t.Setenv(EnvDatabaseURL, "postgres://env/db")

	cfg := Default()
	if cfg.AppleMusic.DeveloperToken != "dev" || cfg.AppleMusic.UserToken != "user" {
		t.Errorf("credentials not read from environment: %+v", cfg.AppleMusic)
	}
	if cfg.Database.URL != "postgres://env/db" {
		t.Errorf("Database.URL = %q, want env value", cfg.Database.URL)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "missing credentials",
			mutate:  func(c *Config) { c.Database.URL = "postgres://x" },
			wantErr: ErrMissingCredentials,
		},
		{
			name: "missing database URL",
			mutate: func(c *Config) {
				c.AppleMusic = AppleMusicConfig{DeveloperToken: "d", UserToken: "u"}
			},
			wantErr: ErrMissingDatabaseURL,
		},
		{
			name: "valid",
			mutate: func(c *Config) {
				c.AppleMusic = AppleMusicConfig{DeveloperToken: "d", UserToken: "u"}
				c.Database.URL = "postgres://x"
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBadTimezone(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.AppleMusic = AppleMusicConfig{DeveloperToken: "d", UserToken: "u"}
	cfg.Database.URL = "postgres://x"
	cfg.Sync.Timezone = "Not/AZone"

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for bad timezone")
	}
}

func TestWriteExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteExample(path); err != nil {
		t.Fatalf("WriteExample() error = %v", err)
	}
	if err := WriteExample(path); err == nil {
		t.Error("WriteExample() expected error when file exists")
	}
	if _, err := Load(path); err != nil {
		t.Errorf("Load(example) error = %v", err)
	}
}
