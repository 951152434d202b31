package config

import "time"

// Config is the merged taskin configuration.
type Config struct {
	Version string `yaml:"version" mapstructure:"version"`

	// Identity of this device and the user it syncs for
	UserID   string `yaml:"user_id" mapstructure:"user_id"`
	DeviceID string `yaml:"device_id" mapstructure:"device_id"`

	// Directory holding the local database
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
	Recurring RecurringConfig `yaml:"recurring" mapstructure:"recurring"`
	Desktop   DesktopConfig   `yaml:"desktop" mapstructure:"desktop"`
	Authority AuthorityConfig `yaml:"authority" mapstructure:"authority"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// SyncConfig configures the delta sync client and its scheduler.
type SyncConfig struct {
	ServerURL           string `yaml:"server_url" mapstructure:"server_url"`
	Token               string `yaml:"token,omitempty" mapstructure:"token"`
	TokenKey            string `yaml:"token_key,omitempty" mapstructure:"token_key"`
	IntervalSeconds     int    `yaml:"interval_seconds" mapstructure:"interval_seconds"`
	TimeoutSeconds      int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	Strategy            string `yaml:"strategy" mapstructure:"strategy"`
	SafetyWindowMinutes int    `yaml:"safety_window_minutes" mapstructure:"safety_window_minutes"`
}

// Interval returns the periodic sync interval.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Timeout returns the per-cycle timeout.
func (s SyncConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// SafetyWindow returns how far behind the cursor the change log is kept.
func (s SyncConfig) SafetyWindow() time.Duration {
	return time.Duration(s.SafetyWindowMinutes) * time.Minute
}

// RecurringConfig configures recurring instance generation.
type RecurringConfig struct {
	LookaheadIntervals int    `yaml:"lookahead_intervals" mapstructure:"lookahead_intervals"`
	MaxPerSeries       int    `yaml:"max_per_series" mapstructure:"max_per_series"`
	Location           string `yaml:"location" mapstructure:"location"`
	GenerateSpec       string `yaml:"generate_spec" mapstructure:"generate_spec"`
}

// LoadLocation resolves Location, falling back to the local zone.
func (r RecurringConfig) LoadLocation() (*time.Location, error) {
	if r.Location == "" || r.Location == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(r.Location)
}

// DesktopConfig configures the companion server.
type DesktopConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// AuthorityConfig configures the reference authority server.
type AuthorityConfig struct {
	Addr   string   `yaml:"addr" mapstructure:"addr"`
	DSN    string   `yaml:"dsn" mapstructure:"dsn"`
	Tokens []string `yaml:"tokens" mapstructure:"tokens"`
}
