package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SearchSettings configuration for the history search engine
type SearchSettings struct {
	MaxSessions      int           `mapstructure:"max_sessions"`
	Retention        time.Duration `mapstructure:"retention"`
	ReapInterval     time.Duration `mapstructure:"reap_interval"`
	DefaultTimeout   time.Duration `mapstructure:"default_timeout"`
	MaxFileSize      int64         `mapstructure:"max_file_size"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
}

// LookupSettings configuration for the commit lookup index
type LookupSettings struct {
	Enabled  bool          `mapstructure:"enabled"`
	IndexTTL time.Duration `mapstructure:"index_ttl"`
}

// Settings application settings
type Settings struct {
	Transport string         `mapstructure:"transport"`
	Host      string         `mapstructure:"host"`
	Port      int            `mapstructure:"port"`
	Search    SearchSettings `mapstructure:"search"`
	Lookup    LookupSettings `mapstructure:"lookup"`
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)

	// Search defaults
	v.SetDefault("search.max_sessions", 4)
	v.SetDefault("search.retention", 5*time.Minute)
	v.SetDefault("search.reap_interval", 30*time.Second)
	v.SetDefault("search.default_timeout", 5*time.Minute)
	v.SetDefault("search.max_file_size", int64(256*1024)) // 256KB
	v.SetDefault("search.subscriber_buffer", 64)

	// Lookup defaults
	v.SetDefault("lookup.enabled", true)
	v.SetDefault("lookup.index_ttl", 5*time.Minute)

	// Environment variables
	v.SetEnvPrefix("HISTSCAN_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars for nested config
	_ = v.BindEnv("search.max_sessions", "HISTSCAN_MCP_SEARCH_MAX_SESSIONS")
	_ = v.BindEnv("search.retention", "HISTSCAN_MCP_SEARCH_RETENTION")
	_ = v.BindEnv("search.reap_interval", "HISTSCAN_MCP_SEARCH_REAP_INTERVAL")
	_ = v.BindEnv("search.default_timeout", "HISTSCAN_MCP_SEARCH_DEFAULT_TIMEOUT")
	_ = v.BindEnv("search.max_file_size", "HISTSCAN_MCP_SEARCH_MAX_FILE_SIZE")
	_ = v.BindEnv("search.subscriber_buffer", "HISTSCAN_MCP_SEARCH_SUBSCRIBER_BUFFER")
	_ = v.BindEnv("lookup.enabled", "HISTSCAN_MCP_LOOKUP_ENABLED")
	_ = v.BindEnv("lookup.index_ttl", "HISTSCAN_MCP_LOOKUP_INDEX_TTL")

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		_ = v.BindPFlag("transport", flags.Lookup("transport"))
		_ = v.BindPFlag("host", flags.Lookup("host"))
		_ = v.BindPFlag("port", flags.Lookup("port"))

		_ = v.BindPFlag("search.max_sessions", flags.Lookup("search-max-sessions"))
		_ = v.BindPFlag("search.retention", flags.Lookup("search-retention"))
		_ = v.BindPFlag("search.reap_interval", flags.Lookup("search-reap-interval"))
		_ = v.BindPFlag("search.default_timeout", flags.Lookup("search-default-timeout"))
		_ = v.BindPFlag("search.max_file_size", flags.Lookup("search-max-file-size"))
		_ = v.BindPFlag("search.subscriber_buffer", flags.Lookup("search-subscriber-buffer"))
		_ = v.BindPFlag("lookup.enabled", flags.Lookup("lookup-enabled"))
		_ = v.BindPFlag("lookup.index_ttl", flags.Lookup("lookup-index-ttl"))
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	return &settings, nil
}

// ValidateSettings checks for invalid or conflicting configurations.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	if s.Transport == "sse" {
		if s.Host == "" {
			return errors.New("host cannot be empty for sse transport")
		}
		if s.Port <= 0 || s.Port > 65535 {
			return errors.New("port must be within 1-65535 for sse transport")
		}
	}

	if err := validateSearchSettings(&s.Search); err != nil {
		return err
	}

	if s.Lookup.Enabled && s.Lookup.IndexTTL <= 0 {
		return errors.New("lookup-index-ttl must be positive")
	}

	return nil
}

// validateSearchSettings validates the search engine configuration
func validateSearchSettings(s *SearchSettings) error {
	if s.MaxSessions <= 0 {
		return errors.New("search-max-sessions must be positive")
	}

	if s.Retention <= 0 {
		return errors.New("search-retention must be positive")
	}

	if s.ReapInterval <= 0 {
		return errors.New("search-reap-interval must be positive")
	}

	if s.DefaultTimeout <= 0 {
		return errors.New("search-default-timeout must be positive")
	}

	if s.MaxFileSize <= 0 {
		return errors.New("search-max-file-size must be positive")
	}

	if s.SubscriberBuffer <= 0 {
		return errors.New("search-subscriber-buffer must be positive")
	}

	return nil
}
