package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Sync.Interval() != 30*time.Second {
		t.Errorf("Interval() = %v, want 30s", cfg.Sync.Interval())
	}
	if cfg.Sync.SafetyWindow() != time.Hour {
		t.Errorf("SafetyWindow() = %v, want 1h", cfg.Sync.SafetyWindow())
	}
	if cfg.Sync.Strategy != "server_wins" {
		t.Errorf("Strategy = %q, want server_wins", cfg.Sync.Strategy)
	}
	if cfg.Recurring.LookaheadIntervals != 0 || cfg.Recurring.MaxPerSeries != 100 {
		t.Errorf("Recurring = %+v", cfg.Recurring)
	}
}

func TestWriteDefaultThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path, nil); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	want := DefaultConfig()
	if cfg.Sync != want.Sync {
		t.Errorf("Sync = %+v, want %+v", cfg.Sync, want.Sync)
	}
	if cfg.Recurring != want.Recurring {
		t.Errorf("Recurring = %+v, want %+v", cfg.Recurring, want.Recurring)
	}
}

func TestLoadFrom_projectOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global.yaml")
	project := filepath.Join(dir, "project.yaml")

	writeFile(t, global, "user_id: alice\nsync:\n  server_url: https://global.example\n  interval_seconds: 60\n")
	writeFile(t, project, "sync:\n  server_url: https://project.example\n")

	cfg, err := LoadFrom(global, project, filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if cfg.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", cfg.UserID)
	}
	if cfg.Sync.ServerURL != "https://project.example" {
		t.Errorf("ServerURL = %q, want the project value", cfg.Sync.ServerURL)
	}
	if cfg.Sync.IntervalSeconds != 60 {
		t.Errorf("IntervalSeconds = %d, want 60", cfg.Sync.IntervalSeconds)
	}
	if cfg.Sync.TimeoutSeconds != 30 {
		t.Errorf("TimeoutSeconds = %d, want the default 30", cfg.Sync.TimeoutSeconds)
	}
}

func TestLoadFrom_envOverride(t *testing.T) {
	t.Setenv("TASKIN_SYNC_SERVER_URL", "https://env.example")
	t.Setenv("TASKIN_LOG_LEVEL", "debug")
	t.Setenv("TASKIN_SYNC_TOKEN_KEY", "kept-in-keychain")

	cfg, err := LoadFrom()
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if cfg.Sync.ServerURL != "https://env.example" {
		t.Errorf("ServerURL = %q, want the env value", cfg.Sync.ServerURL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Sync.TokenKey != "kept-in-keychain" {
		t.Errorf("Sync.TokenKey = %q, want the env value", cfg.Sync.TokenKey)
	}
}

func TestLoadFrom_invalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "sync: [unterminated\n")

	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() should fail on malformed YAML")
	}
}

func TestLoadLocation(t *testing.T) {
	loc, err := RecurringConfig{Location: "UTC"}.LoadLocation()
	if err != nil || loc.String() != "UTC" {
		t.Errorf("LoadLocation(UTC) = %v, %v", loc, err)
	}
	if loc, _ := (RecurringConfig{}).LoadLocation(); loc != time.Local {
		t.Errorf("LoadLocation(\"\") = %v, want Local", loc)
	}
	if _, err := (RecurringConfig{Location: "Nowhere/Special"}).LoadLocation(); err == nil {
		t.Error("LoadLocation() should fail for an unknown zone")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
}
