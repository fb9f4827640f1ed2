package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefaultDataDirBranches(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "plan9" {
		t.Skip("home directory comes from HOME only on unix")
	}
	tests := []struct {
		name   string
		xdg    string
		mkdirs []string
		want   func(home string) string
	}{
		{
			name: "XDG_DATA_HOME wins over platform dirs",
			xdg:  "/custom/data",
			mkdirs: []string{
				filepath.Join("Library", "Application Support"),
				filepath.Join("AppData", "Local"),
			},
			want: func(string) string { return "/custom/data/forgeq" },
		},
		{
			name:   "macOS application support",
			mkdirs: []string{filepath.Join("Library", "Application Support"), filepath.Join("AppData", "Local")},
			want:   func(home string) string { return filepath.Join(home, "Library", "Application Support", "forgeq") },
		},
		{
			name:   "windows local app data",
			mkdirs: []string{filepath.Join("AppData", "Local")},
			want:   func(home string) string { return filepath.Join(home, "AppData", "Local", "forgeq") },
		},
		{
			name: "local share fallback",
			want: func(home string) string { return filepath.Join(home, ".local", "share", "forgeq") },
		},
		{
			name:   "application support must be a directory",
			mkdirs: []string{"Library"},
			want:   func(home string) string { return filepath.Join(home, ".local", "share", "forgeq") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			for _, d := range tt.mkdirs {
				if err := os.MkdirAll(filepath.Join(home, d), 0o755); err != nil {
					t.Fatalf("mkdir %s: %v", d, err)
				}
			}
			t.Setenv("HOME", home)
			t.Setenv("XDG_DATA_HOME", tt.xdg)

			if got, want := DefaultDataDir(), tt.want(home); got != want {
				t.Errorf("DefaultDataDir() = %s, want %s", got, want)
			}
		})
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "plan9" {
		t.Skip("home directory comes from HOME only on unix")
	}
	t.Setenv("HOME", "")
	t.Setenv("XDG_DATA_HOME", "/ignored")

	if got := DefaultDataDir(); got != "./data" {
		t.Errorf("expected fallback to ./data, got %s", got)
	}
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cases := map[string]bool{
		dir:                           true,
		file:                          false,
		filepath.Join(dir, "missing"): false,
	}
	for path, want := range cases {
		if got := isDir(path); got != want {
			t.Errorf("isDir(%s) = %v, want %v", path, got, want)
		}
	}
}
