package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	t.Parallel()
	h := New()
	if h.MaxParallelConnections != 5 || h.MaxConnectionsPerHost != 2 {
		t.Errorf("defaults = %+v", h)
	}
}

func TestCheckRequiresDestinationDir(t *testing.T) {
	t.Parallel()
	h := New()
	h.URLs = []string{"http://example.com"}
	if err := h.Check(); err == nil {
		t.Fatal("Check() = nil, want error for missing destination_dir")
	}
	h.DestinationDir = "relative/path"
	if err := h.Check(); err == nil {
		t.Fatal("Check() = nil, want error for relative destination_dir")
	}
}

func TestCheckRequiresURLSource(t *testing.T) {
	t.Parallel()
	h := New()
	h.DestinationDir = "/tmp/repo"
	if err := h.Check(); err == nil {
		t.Fatal("Check() = nil, want no_url error")
	}
	h.MetalinkURL = "http://example.com/metalink.xml"
	if err := h.Check(); err != nil {
		t.Fatalf("Check() = %v, want nil", err)
	}
}

func TestApplyEnvironmentVariablesOverridesFile(t *testing.T) {
	t.Setenv("LIBREPO_DESTINATION_DIR", "/env/override")
	h := New()
	h.DestinationDir = "/file/value"
	if err := h.ApplyEnvironmentVariables(); err != nil {
		t.Fatalf("ApplyEnvironmentVariables() = %v", err)
	}
	if h.DestinationDir != "/env/override" {
		t.Errorf("DestinationDir = %q, want env override", h.DestinationDir)
	}
}

func TestLoadFromTOML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "repo.toml")
	content := `
urls = ["http://mirror.example/repo"]
destination_dir = "` + filepath.Join(dir, "dest") + `"
max_parallel_connections = 8
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	h, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if h.MaxParallelConnections != 8 {
		t.Errorf("MaxParallelConnections = %d, want 8", h.MaxParallelConnections)
	}
	if len(h.URLs) != 1 || h.URLs[0] != "http://mirror.example/repo" {
		t.Errorf("URLs = %v", h.URLs)
	}
	if err := h.Check(); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}
}

func TestLogConfigApplyRejectsInvalidLevel(t *testing.T) {
	t.Parallel()
	lc := &LogConfig{Level: "verbose"}
	if err := lc.Apply(); err == nil {
		t.Fatal("Apply() = nil, want error for invalid level")
	}
}

func TestLogConfigShouldShowProgress(t *testing.T) {
	t.Parallel()
	if (&LogConfig{}).ShouldShowProgress() {
		t.Error("default LogConfig (info level) should suppress progress bars")
	}
	if (&LogConfig{Level: "debug"}).ShouldShowProgress() {
		t.Error("debug level should suppress progress bars")
	}
	if !(&LogConfig{Level: "warn"}).ShouldShowProgress() {
		t.Error("warn level should show progress bars")
	}
	if !(&LogConfig{Level: "error"}).ShouldShowProgress() {
		t.Error("error level should show progress bars")
	}
}
