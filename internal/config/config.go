// Package config loads muninn runtime configuration. Settings come from an
// optional muninn.yaml in the project data directory, with MUNINN_* environment
// variables taking precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ravnltd/muninn/internal/logging"
)

// Mode selects the store backend.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeHTTP  Mode = "http"
)

// DataDirName is the per-project directory holding the local database and logs.
const DataDirName = ".muninn"

// Config holds all runtime settings.
type Config struct {
	Mode            Mode   `yaml:"mode"`
	PrimaryURL      string `yaml:"primary_url"`
	APIToken        string `yaml:"api_token"`
	TrustedProxy    bool   `yaml:"trusted_proxy"`
	LocalhostBypass bool   `yaml:"localhost_bypass"`
	LogLevel        string `yaml:"log_level"`

	// ProjectRoot is the project being served; DataDir and HomeDir are derived
	// unless set explicitly in the file.
	ProjectRoot string `yaml:"project_root"`
	DataDir     string `yaml:"data_dir"`
	HomeDir     string `yaml:"home_dir"`
}

// Default returns the baseline configuration for a project root.
func Default(projectRoot string) *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Mode:            ModeLocal,
		LocalhostBypass: true,
		LogLevel:        "info",
		ProjectRoot:     projectRoot,
		DataDir:         filepath.Join(projectRoot, DataDirName),
		HomeDir:         filepath.Join(home, DataDirName),
	}
}

// Load builds the configuration for a project root: defaults, then the yaml
// file if present, then environment overrides.
func Load(projectRoot string) (*Config, error) {
	cfg := Default(projectRoot)

	path := filepath.Join(cfg.DataDir, "muninn.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		logging.Get(logging.CategoryBoot).Debug("loaded config file: %s", path)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays MUNINN_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MUNINN_MODE"); v != "" {
		cfg.Mode = Mode(strings.ToLower(v))
	}
	if v := os.Getenv("MUNINN_PRIMARY_URL"); v != "" {
		cfg.PrimaryURL = v
	}
	if v := os.Getenv("MUNINN_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("MUNINN_TRUSTED_PROXY"); v != "" {
		cfg.TrustedProxy = v == "1"
	}
	if v := os.Getenv("MUNINN_LOCALHOST_BYPASS"); v != "" {
		cfg.LocalhostBypass = v == "1"
	}
	if v := os.Getenv("MUNINN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
}

// Validate checks mode and token sanity. A short token is accepted but warned
// about; an http mode without a primary URL is an error.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLocal, ModeHTTP:
	default:
		return fmt.Errorf("invalid MUNINN_MODE %q (want local or http)", c.Mode)
	}
	if c.Mode == ModeHTTP && c.PrimaryURL == "" {
		return fmt.Errorf("MUNINN_MODE=http requires MUNINN_PRIMARY_URL")
	}
	if c.APIToken != "" && len(c.APIToken) < 32 {
		logging.Get(logging.CategoryBoot).Warn("MUNINN_API_TOKEN is shorter than 32 characters; consider a longer token")
	}
	return nil
}

// DatabasePath returns the per-project database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "memory.db")
}

// GlobalDatabasePath returns the cross-project database file.
func (c *Config) GlobalDatabasePath() string {
	return filepath.Join(c.HomeDir, "global.db")
}

// MigrationLogPath returns the append-only migration log.
func (c *Config) MigrationLogPath() string {
	return filepath.Join(c.HomeDir, "migrations.log")
}
