// Package config loads engine configuration from defaults, an optional
// YAML file, and GAPLY_* environment overrides, and can hot-reload
// tunables when the file changes on disk.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full engine configuration tree.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Gaps      GapsConfig      `mapstructure:"gaps"`
	Network   NetworkConfig   `mapstructure:"network"`
	Log       LogConfig       `mapstructure:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RemoteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// AuthToken is the bearer token for the remote service. Usually set
	// via GAPLY_REMOTE_AUTH_TOKEN rather than the config file.
	AuthToken string        `mapstructure:"auth_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SyncConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	HousekeepingAge time.Duration `mapstructure:"housekeeping_age"`
	// BatchDelay is how long the engine waits after a local mutation
	// before triggering a sync, so a burst of edits becomes one cycle.
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	// BatchSize caps how many mutation signals one batch absorbs before
	// the sync fires early, so a sustained edit stream cannot defer
	// syncing past the delay indefinitely.
	BatchSize int `mapstructure:"batch_size"`
}

type GapsConfig struct {
	CacheTTL              time.Duration `mapstructure:"cache_ttl"`
	CacheMaxEntries       int           `mapstructure:"cache_max_entries"`
	PrecomputeDays        int           `mapstructure:"precompute_days"`
	PrecomputeConcurrency int           `mapstructure:"precompute_concurrency"`
	ExpiryDays            int           `mapstructure:"expiry_days"`
}

type NetworkConfig struct {
	ProbeAddr    string        `mapstructure:"probe_addr"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type LogConfig struct {
	// File is the rotating log sink; empty logs to stderr only.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type DashboardConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", ".gaply/gaply.db")
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.auth_token", "")
	v.SetDefault("remote.timeout", 30*time.Second)
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.settle_delay", 10*time.Second)
	v.SetDefault("sync.housekeeping_age", 24*time.Hour)
	v.SetDefault("sync.batch_delay", 3*time.Second)
	v.SetDefault("sync.batch_size", 25)
	v.SetDefault("gaps.cache_ttl", 5*time.Minute)
	v.SetDefault("gaps.cache_max_entries", 50)
	v.SetDefault("gaps.precompute_days", 7)
	v.SetDefault("gaps.precompute_concurrency", 3)
	v.SetDefault("gaps.expiry_days", 3)
	v.SetDefault("network.probe_addr", "1.1.1.1:443")
	v.SetDefault("network.poll_interval", 15*time.Second)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("dashboard.addr", "localhost:8737")
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GAPLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	}
	return v
}

// Load reads the configuration. path may be empty, in which case defaults
// and environment variables apply. A missing file at an explicit path is
// an error; a malformed file likewise.
func Load(path string) (*Config, error) {
	v := newViper(path)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
