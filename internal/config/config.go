package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rzbill/forgeq/internal/feature"
	logpkg "github.com/rzbill/forgeq/pkg/log"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Backend         string        `json:"backend" yaml:"backend"`
	Project         string        `json:"project" yaml:"project"`
	DataDir         string        `json:"dataDir" yaml:"dataDir"`
	MaxDependencies int           `json:"maxDependencies" yaml:"maxDependencies"`
	BusyTimeoutMs   int           `json:"busyTimeoutMs" yaml:"busyTimeoutMs"`
	Fsync           string        `json:"fsync" yaml:"fsync"`
	Log             logpkg.Config `json:"log" yaml:"log"`
	// MetricsFile, when set, receives a Prometheus text dump on exit.
	MetricsFile string `json:"metricsFile" yaml:"metricsFile"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Backend:         BackendSQLite,
		Project:         "default",
		DataDir:         DefaultDataDir(),
		MaxDependencies: feature.DefaultMaxDependencies,
		BusyTimeoutMs:   5000,
		Fsync:           "interval",
		Log:             logpkg.Config{Level: "warn", Format: "text"},
	}
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendPebble:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendSQLite, BackendPebble)
	}
	if err := feature.ValidateProject(c.Project); err != nil {
		return err
	}
	if c.DataDir == "" {
		return fmt.Errorf("dataDir is required")
	}
	if c.MaxDependencies < 1 {
		return fmt.Errorf("maxDependencies must be at least 1, got %d", c.MaxDependencies)
	}
	if c.BusyTimeoutMs < 0 {
		return fmt.Errorf("busyTimeoutMs must not be negative")
	}
	return nil
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
