package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Backend kinds understood by the entry point.
const (
	BackendSQLite = "sqlite"
	BackendHTTP   = "http"
)

// BackendConfig selects and configures the service implementation the
// sync stores talk to.
type BackendConfig struct {
	// Kind is either "sqlite" (local database) or "http" (remote API).
	Kind string `mapstructure:"kind" yaml:"kind"`

	// DBPath is the SQLite database file used by the sqlite backend.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// BaseURL is the root URL of the remote API used by the http backend.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// PollIntervalSec is how often the sqlite backend pushes a fresh
	// notification batch to subscribers.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// TimeoutSec bounds every remote HTTP call.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// UserID is the identity the stores sync for.
	UserID  string        `mapstructure:"user_id" yaml:"user_id"`
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
}

// ConfigDir returns the directory holding the config file, database and
// log file, located at ~/.config/inboxsync.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "inboxsync")
}

// DefaultConfigPath returns the default path for the configuration file.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Backend: BackendConfig{
			Kind:            BackendSQLite,
			DBPath:          filepath.Join(ConfigDir(), "inbox.db"),
			BaseURL:         "http://127.0.0.1:8080",
			PollIntervalSec: 5,
			TimeoutSec:      15,
		},
		Display: DisplayConfig{
			Theme: "default",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values may be overridden by INBOXSYNC_* environment variables, e.g.
// INBOXSYNC_USER_ID or INBOXSYNC_BACKEND_KIND. If the file does not exist,
// defaults (plus environment overrides) are returned.
func LoadConfig(path string) (*AppConfig, error) {
	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("INBOXSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv can resolve it on Unmarshal.
	v.SetDefault("user_id", def.UserID)
	v.SetDefault("backend.kind", def.Backend.Kind)
	v.SetDefault("backend.db_path", def.Backend.DBPath)
	v.SetDefault("backend.base_url", def.Backend.BaseURL)
	v.SetDefault("backend.poll_interval_sec", def.Backend.PollIntervalSec)
	v.SetDefault("backend.timeout_sec", def.Backend.TimeoutSec)
	v.SetDefault("display.theme", def.Display.Theme)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.UserID = strings.TrimSpace(cfg.UserID)
	cfg.Backend.Kind = strings.ToLower(strings.TrimSpace(cfg.Backend.Kind))
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = BackendSQLite
	}
	if cfg.Backend.PollIntervalSec <= 0 {
		cfg.Backend.PollIntervalSec = def.Backend.PollIntervalSec
	}
	if cfg.Backend.TimeoutSec <= 0 {
		cfg.Backend.TimeoutSec = def.Backend.TimeoutSec
	}

	switch cfg.Backend.Kind {
	case BackendSQLite, BackendHTTP:
	default:
		return nil, fmt.Errorf("parsing config %s: unknown backend kind %q", path, cfg.Backend.Kind)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("user_id", cfg.UserID)
	v.Set("backend", cfg.Backend)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
