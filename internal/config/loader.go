package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (SITESYNC_API_BASE_URL, ...).
const EnvPrefix = "SITESYNC"

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Unmarshal does not merge env vars into nested structs once a file is loaded.
	l.applyEnvOverrides(cfg)

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func expandPaths(cfg *Config) {
	cfg.Cache.Path = expandTilde(cfg.Cache.Path)
	cfg.Logging.File = expandTilde(cfg.Logging.File)
}

// ConfigDir returns the default sitesync config directory.
func ConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "sitesync")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "sitesync")
}

func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "sitesync"))
	}
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "sitesync"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)
	bindEnvVars(v)
	v.AutomaticEnv()
}

func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	// API
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.token", cfg.API.Token)
	v.SetDefault("api.request_timeout", cfg.API.RequestTimeout)
	v.SetDefault("api.typing_timeout", cfg.API.TypingTimeout)
	v.SetDefault("api.rate_limit_rps", cfg.API.RateLimitRPS)
	v.SetDefault("api.rate_limit_burst", cfg.API.RateLimitBurst)

	// Operator
	v.SetDefault("operator.id", cfg.Operator.ID)
	v.SetDefault("operator.name", cfg.Operator.Name)
	v.SetDefault("operator.role", cfg.Operator.Role)

	// Sync
	v.SetDefault("sync.list_interval", cfg.Sync.ListInterval)
	v.SetDefault("sync.thread_interval", cfg.Sync.ThreadInterval)
	v.SetDefault("sync.typing_interval", cfg.Sync.TypingInterval)
	v.SetDefault("sync.scroll_cooldown", cfg.Sync.ScrollCooldown)
	v.SetDefault("sync.near_bottom_px", cfg.Sync.NearBottomPx)
	v.SetDefault("sync.online_window", cfg.Sync.OnlineWindow)
	v.SetDefault("sync.typing_not_found_backoff", cfg.Sync.TypingNotFoundBackoff)

	// Cache
	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.path", cfg.Cache.Path)

	// Logging
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	// Metrics
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && l.configFile == "" {
			return nil
		}
		return err
	}

	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set sets a Viper value by key. Used to apply CLI flag overrides.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Viper returns the underlying Viper instance for advanced use.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	return NewLoader().Load()
}

// envBindings lists every key that accepts a SITESYNC_* override.
var envBindings = []string{
	"api.base_url",
	"api.token",
	"api.request_timeout",
	"api.typing_timeout",
	"api.rate_limit_rps",
	"api.rate_limit_burst",
	"operator.id",
	"operator.name",
	"operator.role",
	"sync.list_interval",
	"sync.thread_interval",
	"sync.typing_interval",
	"sync.scroll_cooldown",
	"sync.near_bottom_px",
	"sync.online_window",
	"sync.typing_not_found_backoff",
	"cache.enabled",
	"cache.path",
	"logging.level",
	"logging.format",
	"logging.file",
	"logging.enable_caller",
	"metrics.addr",
}

// bindEnvVars binds environment variables for config keys.
// Viper's Unmarshal ignores env vars on nested structs unless explicitly bound.
func bindEnvVars(v *viper.Viper) {
	for _, key := range envBindings {
		envVar := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, envVar)
	}
}

// applyEnvOverrides copies the string-valued keys viper resolved into cfg.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	v := l.v

	if baseURL := v.GetString("api.base_url"); baseURL != "" {
		cfg.API.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if token := v.GetString("api.token"); token != "" {
		cfg.API.Token = token
	}
	if id := v.GetString("operator.id"); id != "" {
		cfg.Operator.ID = id
	}
	if name := v.GetString("operator.name"); name != "" {
		cfg.Operator.Name = name
	}
	if role := v.GetString("operator.role"); role != "" {
		cfg.Operator.Role = role
	}
	if path := v.GetString("cache.path"); path != "" {
		cfg.Cache.Path = path
	}
	if level := v.GetString("logging.level"); level != "" && level != "info" {
		cfg.Logging.Level = level
	}
	if format := v.GetString("logging.format"); format != "" && format != "console" {
		cfg.Logging.Format = format
	}
	if file := v.GetString("logging.file"); file != "" {
		cfg.Logging.File = file
	}
	if addr := v.GetString("metrics.addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}
}
