package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the per-user data directory for forgeq. Workers on
// one machine share it, so it must be writable without privileges.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}

	// XDG (Linux) override
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "forgeq")
	}

	// macOS: ~/Library/Application Support/forgeq
	if isDir(filepath.Join(homeDir, "Library", "Application Support")) {
		return filepath.Join(homeDir, "Library", "Application Support", "forgeq")
	}

	// Windows: %USERPROFILE%/AppData/Local/forgeq
	if isDir(filepath.Join(homeDir, "AppData", "Local")) {
		return filepath.Join(homeDir, "AppData", "Local", "forgeq")
	}

	// Fallback: ~/.local/share/forgeq
	return filepath.Join(homeDir, ".local", "share", "forgeq")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
