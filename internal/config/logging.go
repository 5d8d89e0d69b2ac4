package config

import (
	"context"
	"log/slog"
)

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == "sse" {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}

	logger.InfoContext(ctx, "Config: search.max_sessions", "value", s.Search.MaxSessions)
	logger.InfoContext(ctx, "Config: search.retention", "value", s.Search.Retention)
	logger.InfoContext(ctx, "Config: search.reap_interval", "value", s.Search.ReapInterval)
	logger.InfoContext(ctx, "Config: search.default_timeout", "value", s.Search.DefaultTimeout)
	logger.InfoContext(ctx, "Config: search.max_file_size", "value", s.Search.MaxFileSize)
	logger.InfoContext(ctx, "Config: lookup.enabled", "value", s.Lookup.Enabled)
	if s.Lookup.Enabled {
		logger.InfoContext(ctx, "Config: lookup.index_ttl", "value", s.Lookup.IndexTTL)
	}
}

// SearchSettingsLogValue returns a slog.Value for SearchSettings
func SearchSettingsLogValue(s SearchSettings) slog.Value {
	return slog.GroupValue(
		slog.Int("max_sessions", s.MaxSessions),
		slog.Duration("retention", s.Retention),
		slog.Duration("reap_interval", s.ReapInterval),
		slog.Duration("default_timeout", s.DefaultTimeout),
		slog.Int64("max_file_size", s.MaxFileSize),
		slog.Int("subscriber_buffer", s.SubscriberBuffer),
	)
}

// SettingsLogValue returns a slog.Value for Settings
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.Any("search", SearchSettingsLogValue(s.Search)),
	)
}
