package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Backend != BackendSQLite {
		t.Fatalf("default backend: %q", cfg.Backend)
	}
	if cfg.Project != "default" {
		t.Fatalf("default project")
	}
	if cfg.MaxDependencies != 20 {
		t.Fatalf("max dependencies default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "forgeq.json")
	data := []byte(`{"backend":"pebble","project":"web","maxDependencies":5,"log":{"level":"debug"}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendPebble {
		t.Fatalf("expected pebble")
	}
	if cfg.Project != "web" {
		t.Fatalf("expected web")
	}
	if cfg.MaxDependencies != 5 {
		t.Fatalf("expected 5")
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug")
	}
	if cfg.BusyTimeoutMs != 5000 {
		t.Fatalf("unset fields keep defaults, got %d", cfg.BusyTimeoutMs)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "forgeq.yaml")
	data := []byte("backend: sqlite\ndataDir: /tmp/fq\nbusyTimeoutMs: 250\nlog:\n  format: json\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/tmp/fq" || cfg.BusyTimeoutMs != 250 || cfg.Log.Format != "json" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(file, []byte("{"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Backend = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown backend accepted")
	}
	cfg = Default()
	cfg.MaxDependencies = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero max dependencies accepted")
	}
}

func TestValidateProjectName(t *testing.T) {
	for _, name := range []string{"../x", "../../escaped", "a/b", ""} {
		cfg := Default()
		cfg.Project = name
		if err := cfg.Validate(); err == nil {
			t.Fatalf("project %q accepted", name)
		}
	}
	cfg := Default()
	cfg.Project = "web-app.v2"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid project rejected: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("FORGEQ_BACKEND", "pebble")
	t.Setenv("FORGEQ_PROJECT", "staging")
	t.Setenv("FORGEQ_MAX_DEPENDENCIES", "7")
	t.Setenv("FORGEQ_LOG_LEVEL", "warn")
	t.Setenv("FORGEQ_BUSY_TIMEOUT_MS", "not-a-number")
	FromEnv(&cfg)
	if cfg.Backend != BackendPebble {
		t.Fatalf("env override backend")
	}
	if cfg.Project != "staging" {
		t.Fatalf("env override project")
	}
	if cfg.MaxDependencies != 7 {
		t.Fatalf("env override max dependencies")
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("env override log level")
	}
	if cfg.BusyTimeoutMs != 5000 {
		t.Fatalf("invalid number should be ignored")
	}
}
