package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		DataDir: DefaultDataDir(),
		Log: LogConfig{
			Level: "info",
		},
		Sync: SyncConfig{
			ServerURL:           "http://localhost:8090",
			IntervalSeconds:     30,
			TimeoutSeconds:      30,
			Strategy:            "server_wins",
			SafetyWindowMinutes: 60,
		},
		Recurring: RecurringConfig{
			LookaheadIntervals: 0,
			MaxPerSeries:       100,
			Location:           "Local",
			GenerateSpec:       "0 5 0 * * *",
		},
		Desktop: DesktopConfig{
			Addr: "127.0.0.1:8080",
		},
		Authority: AuthorityConfig{
			Addr: ":8090",
			DSN:  "taskin-authority.db",
		},
	}
}

// DefaultDataDir returns ~/.taskin/data, or a relative path without a home dir.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".taskin", "data")
	}
	return filepath.Join(home, ".taskin", "data")
}

// WriteDefault writes cfg, or the defaults when cfg is nil, to path. Parent
// directories are created as needed.
func WriteDefault(path string, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content := "# taskin configuration\n" + string(data)
	return os.WriteFile(path, []byte(content), 0600)
}
