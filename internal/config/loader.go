package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/kimhsiao/taskin/backend/internal/logging"
)

// EnvPrefix prefixes environment overrides, e.g. TASKIN_SYNC_SERVER_URL.
const EnvPrefix = "TASKIN"

// Load merges the defaults, the global config, the project config and the
// environment, later sources winning.
func Load() (*Config, error) {
	return LoadFrom(GlobalConfigPath(), ProjectConfigPath())
}

// LoadFrom merges the defaults with each existing file in paths, then the
// environment. Missing files are skipped.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, err
		}
		logging.Debug("Config file loaded", map[string]interface{}{"path": path})
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides resolve.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("user_id", d.UserID)
	v.SetDefault("device_id", d.DeviceID)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("sync.server_url", d.Sync.ServerURL)
	v.SetDefault("sync.token", d.Sync.Token)
	v.SetDefault("sync.token_key", d.Sync.TokenKey)
	v.SetDefault("sync.interval_seconds", d.Sync.IntervalSeconds)
	v.SetDefault("sync.timeout_seconds", d.Sync.TimeoutSeconds)
	v.SetDefault("sync.strategy", d.Sync.Strategy)
	v.SetDefault("sync.safety_window_minutes", d.Sync.SafetyWindowMinutes)
	v.SetDefault("recurring.lookahead_intervals", d.Recurring.LookaheadIntervals)
	v.SetDefault("recurring.max_per_series", d.Recurring.MaxPerSeries)
	v.SetDefault("recurring.location", d.Recurring.Location)
	v.SetDefault("recurring.generate_spec", d.Recurring.GenerateSpec)
	v.SetDefault("desktop.addr", d.Desktop.Addr)
	v.SetDefault("authority.addr", d.Authority.Addr)
	v.SetDefault("authority.dsn", d.Authority.DSN)
	v.SetDefault("authority.tokens", d.Authority.Tokens)
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".taskin", "config.yaml")
}

// ProjectConfigPath returns the path to the project config file.
func ProjectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".taskin", "config.yaml")
}
