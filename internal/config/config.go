// Package config handles sitesync configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tOgg1/sitesync/internal/models"
)

// Config is the root configuration structure for sitesync.
type Config struct {
	// Backend connection settings
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Operator is the authenticated marketplace user.
	Operator OperatorConfig `yaml:"operator" mapstructure:"operator"`

	// Poll cadences and presence tuning
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// Optional offline thread cache
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// APIConfig contains backend REST settings.
type APIConfig struct {
	// BaseURL is the backend root, e.g. https://market.example.com.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Token is the bearer token of the operator session.
	Token string `yaml:"token" mapstructure:"token"`

	// RequestTimeout bounds every list/thread/send request.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`

	// TypingTimeout bounds typing-status requests, which run every poll tick.
	TypingTimeout time.Duration `yaml:"typing_timeout" mapstructure:"typing_timeout"`

	// RateLimitRPS caps outbound requests per second.
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`

	// RateLimitBurst is the limiter burst size.
	RateLimitBurst int `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// OperatorConfig identifies the authenticated user.
type OperatorConfig struct {
	ID   string `yaml:"id" mapstructure:"id"`
	Name string `yaml:"name" mapstructure:"name"`
	Role string `yaml:"role" mapstructure:"role"`
}

// SyncConfig contains polling and presence settings.
type SyncConfig struct {
	// ListInterval is how often the conversation list is rebuilt.
	ListInterval time.Duration `yaml:"list_interval" mapstructure:"list_interval"`

	// ThreadInterval is how often the selected thread is reloaded.
	ThreadInterval time.Duration `yaml:"thread_interval" mapstructure:"thread_interval"`

	// TypingInterval is how often typing status is polled.
	TypingInterval time.Duration `yaml:"typing_interval" mapstructure:"typing_interval"`

	// ScrollCooldown is how long after a scroll gesture refreshes are held.
	ScrollCooldown time.Duration `yaml:"scroll_cooldown" mapstructure:"scroll_cooldown"`

	// NearBottomPx is the distance from the bottom that still counts as "at bottom".
	NearBottomPx int `yaml:"near_bottom_px" mapstructure:"near_bottom_px"`

	// OnlineWindow is how recent a last-seen timestamp must be to count as online.
	OnlineWindow time.Duration `yaml:"online_window" mapstructure:"online_window"`

	// TypingNotFoundBackoff is how long a conversation id stays dormant after
	// the typing endpoint reports it missing.
	TypingNotFoundBackoff time.Duration `yaml:"typing_not_found_backoff" mapstructure:"typing_not_found_backoff"`
}

// CacheConfig contains offline thread cache settings.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. 127.0.0.1:9464.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		API: APIConfig{
			RequestTimeout: 10 * time.Second,
			TypingTimeout:  2 * time.Second,
			RateLimitRPS:   20,
			RateLimitBurst: 10,
		},
		Sync: SyncConfig{
			ListInterval:          30 * time.Second,
			ThreadInterval:        5 * time.Second,
			TypingInterval:        700 * time.Millisecond,
			ScrollCooldown:        1500 * time.Millisecond,
			NearBottomPx:          100,
			OnlineWindow:          5 * time.Minute,
			TypingNotFoundBackoff: 5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: false,
			Path:    filepath.Join(homeDir, ".local", "share", "sitesync", "threads.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("api.base_url must be an absolute URL")
		}
	}
	if c.API.RequestTimeout < 100*time.Millisecond {
		return fmt.Errorf("api.request_timeout must be at least 100ms")
	}
	if c.API.TypingTimeout < 100*time.Millisecond {
		return fmt.Errorf("api.typing_timeout must be at least 100ms")
	}
	if c.API.RateLimitRPS < 0 {
		return fmt.Errorf("api.rate_limit_rps must not be negative")
	}

	if c.Sync.ListInterval < time.Second {
		return fmt.Errorf("sync.list_interval must be at least 1s")
	}
	if c.Sync.ThreadInterval < 500*time.Millisecond {
		return fmt.Errorf("sync.thread_interval must be at least 500ms")
	}
	if c.Sync.TypingInterval < 100*time.Millisecond {
		return fmt.Errorf("sync.typing_interval must be at least 100ms")
	}
	if c.Sync.ScrollCooldown < 0 {
		return fmt.Errorf("sync.scroll_cooldown must not be negative")
	}
	if c.Sync.NearBottomPx < 0 {
		return fmt.Errorf("sync.near_bottom_px must not be negative")
	}
	if c.Sync.OnlineWindow <= 0 {
		return fmt.Errorf("sync.online_window must be positive")
	}

	if c.Operator.Role != "" {
		if !models.ParseRole(c.Operator.Role).Valid() {
			return fmt.Errorf("operator.role must be one of client, developer, admin")
		}
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required when the cache is enabled")
	}

	return nil
}

// RequireBackend checks the settings needed to talk to the backend.
func (c *Config) RequireBackend() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required (set SITESYNC_API_BASE_URL)")
	}
	if c.Operator.ID == "" {
		return fmt.Errorf("operator.id is required (set SITESYNC_OPERATOR_ID)")
	}
	return nil
}

// OperatorModel converts the operator section into a models.Operator.
func (c *Config) OperatorModel() models.Operator {
	return models.Operator{
		ID:          c.Operator.ID,
		Name:        c.Operator.Name,
		Role:        models.ParseRole(c.Operator.Role),
		AccessToken: c.API.Token,
	}
}
