// Package config handles configuration loading and validation for roadmap.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// TokenEnv overrides github.token when set.
const TokenEnv = "GITHUB_TOKEN"

// Config holds the application configuration.
type Config struct {
	Store      StoreConfig    `yaml:"store"`
	Database   DatabaseConfig `yaml:"database"`
	Github     GithubConfig   `yaml:"github"`
	Activity   ActivityConfig `yaml:"activity"`
	Identity   IdentityConfig `yaml:"identity"`
	Events     EventsConfig   `yaml:"events"`
	Messages   MessagesConfig `yaml:"messages"`
	Schedule   ScheduleConfig `yaml:"schedule"`
	RefreshKey string         `yaml:"refresh_key"`
	DataDir    string         `yaml:"-"` // set by caller, not from config file
}

// StoreConfig selects where the shared roadmap documents live.
type StoreConfig struct {
	Backend   string         `yaml:"backend"`
	KeyPrefix string         `yaml:"key_prefix"`
	Postgres  PostgresConfig `yaml:"postgres"`
	S3        S3Config       `yaml:"s3"`
}

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// S3Config configures the s3 backend.
type S3Config struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

// DatabaseConfig tunes the local sqlite pool.
type DatabaseConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
	BusyTimeout  int `yaml:"busy_timeout"` // milliseconds
}

// GithubConfig configures the GitHub client and the staleness window.
type GithubConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Token        string        `yaml:"token"`
	Timeout      time.Duration `yaml:"timeout"`
	StaleAfter   time.Duration `yaml:"stale_after"`
	FetchWorkers int           `yaml:"fetch_workers"`
}

// ActivityConfig points at the live message feed.
type ActivityConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// IdentityConfig points at the agent registry.
type IdentityConfig struct {
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EventsConfig caps the activity log.
type EventsConfig struct {
	MaxEvents int `yaml:"max_events"`
}

// MessagesConfig caps the message archive.
type MessagesConfig struct {
	ArchiveLimit int `yaml:"archive_limit"`
}

// ScheduleConfig controls `roadmap watch`.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Backend:   BackendSQLite,
			KeyPrefix: "roadmap:",
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			BusyTimeout:  5000,
		},
		Github: GithubConfig{
			BaseURL:      "https://api.github.com",
			Timeout:      10 * time.Second,
			StaleAfter:   time.Hour,
			FetchWorkers: 4,
		},
		Activity: ActivityConfig{
			URL:     "https://aibtc.com/api/activity",
			Timeout: 10 * time.Second,
		},
		Identity: IdentityConfig{
			URL:      "https://aibtc.com/api/agents",
			CacheTTL: time.Hour,
			Timeout:  5 * time.Second,
		},
		Events:   EventsConfig{MaxEvents: 200},
		Messages: MessagesConfig{ArchiveLimit: 2000},
		Schedule: ScheduleConfig{Interval: 15 * time.Minute},
	}
}

// Load reads configuration from the given path. A missing file yields the
// defaults.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	if token := os.Getenv(TokenEnv); token != "" {
		cfg.Github.Token = token
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	d := DefaultConfig()

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = d.Store.KeyPrefix
	}
	if c.Github.BaseURL == "" {
		c.Github.BaseURL = d.Github.BaseURL
	}
	if c.Github.Timeout == 0 {
		c.Github.Timeout = d.Github.Timeout
	}
	if c.Github.StaleAfter == 0 {
		c.Github.StaleAfter = d.Github.StaleAfter
	}
	if c.Github.FetchWorkers == 0 {
		c.Github.FetchWorkers = d.Github.FetchWorkers
	}
	if c.Activity.URL == "" {
		c.Activity.URL = d.Activity.URL
	}
	if c.Activity.Timeout == 0 {
		c.Activity.Timeout = d.Activity.Timeout
	}
	if c.Identity.URL == "" {
		c.Identity.URL = d.Identity.URL
	}
	if c.Identity.CacheTTL == 0 {
		c.Identity.CacheTTL = d.Identity.CacheTTL
	}
	if c.Identity.Timeout == 0 {
		c.Identity.Timeout = d.Identity.Timeout
	}
	if c.Events.MaxEvents == 0 {
		c.Events.MaxEvents = d.Events.MaxEvents
	}
	if c.Messages.ArchiveLimit == 0 {
		c.Messages.ArchiveLimit = d.Messages.ArchiveLimit
	}
	if c.Schedule.Interval == 0 {
		c.Schedule.Interval = d.Schedule.Interval
	}
}

// Validate checks structural correctness of the configuration. Backend
// specific fields and URL syntax are checked by ValidateDeep.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	switch c.Store.Backend {
	case BackendSQLite, BackendPostgres, BackendS3:
	default:
		return fmt.Errorf("store.backend %q must be one of sqlite, postgres, s3", c.Store.Backend)
	}

	if c.Github.FetchWorkers < 1 {
		return fmt.Errorf("github.fetch_workers must be at least 1")
	}
	if c.Github.StaleAfter < 0 {
		return fmt.Errorf("github.stale_after cannot be negative")
	}
	if c.Events.MaxEvents < 1 {
		return fmt.Errorf("events.max_events must be at least 1")
	}
	if c.Messages.ArchiveLimit < 1 {
		return fmt.Errorf("messages.archive_limit must be at least 1")
	}
	if c.Schedule.Interval < time.Minute {
		return fmt.Errorf("schedule.interval must be at least 1m")
	}

	return nil
}
