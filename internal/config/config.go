package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g.
// LASTVIEW_RESTORE_SCAN_CEILING=750.
const EnvPrefix = "LASTVIEW"

// Config is the persistent application configuration
type Config struct {
	// DataDir holds the database, logs and event log. Defaults to ~/.lastview.
	DataDir string `json:"data_dir,omitempty" envconfig:"DATA_DIR"`

	// DBPath overrides the database location. ":memory:" is allowed.
	DBPath string `json:"db_path,omitempty" envconfig:"DB_PATH"`

	// FeedKey is the feed opened at startup.
	FeedKey string `json:"feed_key" envconfig:"FEED_KEY"`

	Restore RestoreConfig `json:"restore" envconfig:"RESTORE"`
	Feed    FeedConfig    `json:"feed" envconfig:"FEED"`
	Cache   CacheConfig   `json:"cache" envconfig:"CACHE"`
	Debug   DebugConfig   `json:"debug" envconfig:"DEBUG"`
}

// RestoreConfig tunes position capture and restoration
type RestoreConfig struct {
	ScanCeiling      int `json:"scan_ceiling" envconfig:"SCAN_CEILING"`             // give up once this many items are loaded
	ConfirmTimeoutMs int `json:"confirm_timeout_ms" envconfig:"CONFIRM_TIMEOUT_MS"` // max wait for the view to reflect a restore scroll
	CaptureSettleMs  int `json:"capture_settle_ms" envconfig:"CAPTURE_SETTLE_MS"`   // scroll must rest this long before capture
	PrefetchDistance int `json:"prefetch_distance" envconfig:"PREFETCH_DISTANCE"`
}

// FeedConfig tunes page loading
type FeedConfig struct {
	PageSize           int     `json:"page_size" envconfig:"PAGE_SIZE"`
	PagesPerSecond     float64 `json:"pages_per_second" envconfig:"PAGES_PER_SECOND"`
	MaxAnchorPages     int     `json:"max_anchor_pages" envconfig:"MAX_ANCHOR_PAGES"`
	PrependIntervalSec int     `json:"prepend_interval_sec" envconfig:"PREPEND_INTERVAL_SEC"`
}

// CacheConfig enables the Redis position cache when RedisAddr is set
type CacheConfig struct {
	RedisAddr string `json:"redis_addr,omitempty" envconfig:"REDIS_ADDR"`
	RedisDB   int    `json:"redis_db" envconfig:"REDIS_DB"`
	TTLSec    int    `json:"ttl_sec" envconfig:"TTL_SEC"`
}

// DebugConfig enables the debug HTTP server when Addr is set
type DebugConfig struct {
	Addr string `json:"addr,omitempty" envconfig:"ADDR"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		FeedKey: "home",
		Restore: RestoreConfig{
			ScanCeiling:      500,
			ConfirmTimeoutMs: 3000,
			CaptureSettleMs:  400,
			PrefetchDistance: 3,
		},
		Feed: FeedConfig{
			PageSize:           20,
			PagesPerSecond:     4,
			MaxAnchorPages:     20,
			PrependIntervalSec: 30,
		},
		Cache: CacheConfig{
			TTLSec: 24 * 60 * 60,
		},
	}
}

// DefaultDir returns ~/.lastview
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lastview")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DefaultDir(), "config.json")
}

// Load reads the config file at ConfigPath and applies environment overrides.
func Load() (*Config, error) {
	return LoadFile(ConfigPath())
}

// LoadFile reads config from path, or returns defaults when the file is
// missing or unreadable as JSON. Environment overrides are applied last.
// Only a malformed environment variable is an error.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			cfg = DefaultConfig()
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize replaces non-positive tunables with their defaults.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = DefaultDir()
	}
	if c.FeedKey == "" {
		c.FeedKey = d.FeedKey
	}
	if c.Restore.ScanCeiling <= 0 {
		c.Restore.ScanCeiling = d.Restore.ScanCeiling
	}
	if c.Restore.ConfirmTimeoutMs <= 0 {
		c.Restore.ConfirmTimeoutMs = d.Restore.ConfirmTimeoutMs
	}
	if c.Restore.CaptureSettleMs <= 0 {
		c.Restore.CaptureSettleMs = d.Restore.CaptureSettleMs
	}
	if c.Restore.PrefetchDistance < 0 {
		c.Restore.PrefetchDistance = d.Restore.PrefetchDistance
	}
	if c.Feed.PageSize <= 0 {
		c.Feed.PageSize = d.Feed.PageSize
	}
	if c.Feed.PagesPerSecond <= 0 {
		c.Feed.PagesPerSecond = d.Feed.PagesPerSecond
	}
	if c.Feed.MaxAnchorPages < 0 {
		c.Feed.MaxAnchorPages = d.Feed.MaxAnchorPages
	}
	if c.Feed.PrependIntervalSec <= 0 {
		c.Feed.PrependIntervalSec = d.Feed.PrependIntervalSec
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = d.Cache.TTLSec
	}
}

// Save writes config to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Database returns DBPath, or lastview.db under DataDir.
func (c *Config) Database() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "lastview.db")
}

// EventLogPath is the JSONL event log written by the timeline binary.
func (c *Config) EventLogPath() string {
	return filepath.Join(c.DataDir, "events.jsonl")
}

func (r RestoreConfig) ConfirmTimeout() time.Duration {
	return time.Duration(r.ConfirmTimeoutMs) * time.Millisecond
}

func (r RestoreConfig) CaptureSettle() time.Duration {
	return time.Duration(r.CaptureSettleMs) * time.Millisecond
}

func (f FeedConfig) PrependInterval() time.Duration {
	return time.Duration(f.PrependIntervalSec) * time.Second
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}
