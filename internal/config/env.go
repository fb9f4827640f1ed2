package config

import (
	"os"
	"strconv"
)

// FromEnv overlays FORGEQ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FORGEQ_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("FORGEQ_PROJECT"); v != "" {
		cfg.Project = v
	}
	if v := os.Getenv("FORGEQ_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FORGEQ_MAX_DEPENDENCIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDependencies = n
		}
	}
	if v := os.Getenv("FORGEQ_BUSY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BusyTimeoutMs = n
		}
	}
	if v := os.Getenv("FORGEQ_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("FORGEQ_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FORGEQ_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("FORGEQ_METRICS_FILE"); v != "" {
		cfg.MetricsFile = v
	}
}
