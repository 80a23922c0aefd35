// Package appconfig loads the daemon's process-level bootstrap
// configuration: how it listens, which report-store profile it runs,
// and how it logs. This is distinct from the per-peer sync configuration
// tree (internal/configtree, C1), which lives under the user's config
// directory and is mutated by SetConfig, not by this package.
package appconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the daemon's bootstrap configuration.
type Config struct {
	Profile  Profile        `mapstructure:"profile"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	AutoTerm AutoTermConfig `mapstructure:"auto_term"`
}

// Profile selects the report-store backend (SPEC_FULL.md §6
// "GetReports persistence (A5)").
type Profile string

const (
	ProfileLite     Profile = "lite"
	ProfileStandard Profile = "standard"
)

// ServerConfig configures the A6 wire binding's HTTP+WebSocket listener.
type ServerConfig struct {
	Addr                    string        `mapstructure:"addr"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// StorageConfig configures the report store (A5).
type StorageConfig struct {
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	ConfigHome  string `mapstructure:"config_home"`
}

// RedisConfig configures the distributed active-session lock (A7) and the
// redis-backed auto-sync task store (C7), when running the Standard
// profile across more than one process.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig configures the prometheus exporter (A4).
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// AutoTermConfig configures the scheduler's auto-termination timer
// (SPEC_FULL.md §4.5 "Auto-termination").
type AutoTermConfig struct {
	Duration time.Duration `mapstructure:"duration"`
}

// Load reads configPath (if non-empty) as YAML, layers environment
// variables over it (prefixed SYNCENGINE_, with "." replaced by "_"), and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SYNCENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("appconfig: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("appconfig: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("appconfig: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", "lite")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_shutdown_timeout", "15s")

	v.SetDefault("storage.sqlite_path", "")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.config_home", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("auto_term.duration", "10m")
}

// Validate rejects configurations that cannot start a server.
func (c *Config) Validate() error {
	switch c.Profile {
	case ProfileLite, ProfileStandard:
	default:
		return fmt.Errorf("invalid profile %q (want %q or %q)", c.Profile, ProfileLite, ProfileStandard)
	}
	if c.Profile == ProfileStandard && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.postgres_dsn is required for profile %q", ProfileStandard)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	return nil
}
