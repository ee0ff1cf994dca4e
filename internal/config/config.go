// Package config loads and validates sync service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	DB        DBConfig        `mapstructure:"db"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	RequestTimeout int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// FetchConfig configures the plain-HTTP probe and retry behavior.
type FetchConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	RespectRobots    bool   `mapstructure:"respect_robots"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	BodyThreshold    int    `mapstructure:"body_length_threshold"`
}

// BrowserConfig configures the headless rendering subsystem.
type BrowserConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs int  `mapstructure:"settle_delay_ms"`
}

// DiscoveryConfig governs the infinite-scroll listing walk.
type DiscoveryConfig struct {
	ListingURL     string `mapstructure:"listing_url"`
	LinkMarker     string `mapstructure:"link_marker"`
	LinkSelector   string `mapstructure:"link_selector"`
	MaxIdleScrolls int    `mapstructure:"max_idle_scrolls"`
	ScrollDelayMs  int    `mapstructure:"scroll_delay_ms"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
}

// ExtractConfig tunes dialogue segmentation.
type ExtractConfig struct {
	MinTurns       int    `mapstructure:"min_turns"`
	PrimarySpeaker string `mapstructure:"primary_speaker"`
}

// SyncConfig governs the incremental synchronization window and pacing.
type SyncConfig struct {
	SafetyBufferHours int    `mapstructure:"safety_buffer_hours"`
	DefaultStart      string `mapstructure:"default_start"`
	ItemDelayMs       int    `mapstructure:"item_delay_ms"`
	MinWords          int    `mapstructure:"min_words"`
}

// ArchiveConfig selects the raw-page blob backend.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"` // none, local, gcs
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PublishConfig holds metadata for publish-subscribe notifications.
type PublishConfig struct {
	Backend   string `mapstructure:"backend"` // none, memory, pubsub
	ProjectID string `mapstructure:"project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROLLCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("fetch.user_agent", "rollcall-sync/1.0 (+https://github.com/mentionmarkets/rollcall-sync)")
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 5000)
	v.SetDefault("fetch.body_length_threshold", 2048)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.max_parallel", 2)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.settle_delay_ms", 1500)
	v.SetDefault("discovery.listing_url", "https://rollcall.com/factbase/trump/transcripts/")
	v.SetDefault("discovery.link_marker", "/transcript/")
	v.SetDefault("discovery.max_idle_scrolls", 10)
	v.SetDefault("discovery.scroll_delay_ms", 750)
	v.SetDefault("discovery.nav_timeout_seconds", 60)
	v.SetDefault("extract.min_turns", 5)
	v.SetDefault("extract.primary_speaker", "Donald Trump")
	v.SetDefault("sync.safety_buffer_hours", 24)
	v.SetDefault("sync.default_start", "2024-09-01")
	v.SetDefault("sync.item_delay_ms", 1500)
	v.SetDefault("sync.min_words", 25)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("publish.backend", "none")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Browser.Enabled && c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0 when the browser is enabled")
	}
	if c.Discovery.ListingURL == "" {
		return fmt.Errorf("discovery.listing_url must be set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if _, err := c.DefaultStartDate(); err != nil {
		return err
	}
	switch c.Archive.Backend {
	case "", "none", "memory":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	switch c.Publish.Backend {
	case "", "none", "memory":
	case "pubsub":
		if c.Publish.ProjectID == "" {
			return fmt.Errorf("publish.project_id must be set for the pubsub backend")
		}
	default:
		return fmt.Errorf("publish.backend %q is not supported", c.Publish.Backend)
	}
	return nil
}

// DefaultStartDate parses sync.default_start as a UTC calendar date.
func (c Config) DefaultStartDate() (time.Time, error) {
	if c.Sync.DefaultStart == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", c.Sync.DefaultStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("sync.default_start %q is not a YYYY-MM-DD date", c.Sync.DefaultStart)
	}
	return t, nil
}

// RequestTimeout converts the server timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}
