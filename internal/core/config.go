package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the main configuration for Feed Sentry
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Log         LogConfig         `json:"log"`
	Sync        SyncConfig        `json:"sync"`
	Permissions PermissionsConfig `json:"permissions"`
	Broadcast   BroadcastConfig   `json:"broadcast"`
	Alerts      AlertConfig       `json:"alerts"`
	API         APIConfig         `json:"api"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// DatabaseConfig selects the store driver and its connection string
type DatabaseConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `json:"level"`
}

// SyncConfig holds the thresholds that govern polling, retention and failure escalation
type SyncConfig struct {
	MaxEntriesPerFeed          int           `json:"max_entries_per_feed"`
	EvictionBatchSize          int           `json:"eviction_batch_size"`
	MinPollIntervalSeconds     int           `json:"min_poll_interval_seconds"`
	DefaultPollIntervalSeconds int           `json:"default_poll_interval_seconds"`
	MaxFailureCount            int           `json:"max_failure_count"`
	HTTPTimeout                time.Duration `json:"http_timeout"`
	UserAgent                  string        `json:"user_agent"`
	RequestsPerSecondPerHost   float64       `json:"requests_per_second_per_host"`
}

// PermissionsConfig controls which hosts may be fetched
type PermissionsConfig struct {
	AllowAllHosts bool     `json:"allow_all_hosts"`
	AllowedHosts  []string `json:"allowed_hosts"`
}

// BroadcastConfig configures the optional Redis event publisher
type BroadcastConfig struct {
	RedisAddress  string `json:"redis_address"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
	RedisChannel  string `json:"redis_channel"`
}

// AlertConfig configures how user-facing alerts are delivered
type AlertConfig struct {
	SMTP2GOAPIKey  string        `json:"-"`
	SMTP2GOSender  string        `json:"smtp2go_sender"`
	AlertRecipient string        `json:"alert_recipient"`
	PendingTTL     time.Duration `json:"pending_ttl"`
}

// APIConfig contains HTTP API configuration
type APIConfig struct {
	TokenHash   string   `json:"-"`
	CORSOrigins []string `json:"cors_origins"`
	BaseURL     string   `json:"base_url"`
}

// Sync defaults
const (
	DefaultMaxEntriesPerFeed          = 2000
	DefaultEvictionBatchSize          = 200
	DefaultMinPollIntervalSeconds     = 60
	DefaultDefaultPollIntervalSeconds = 600
	DefaultMaxFailureCount            = 100
	DefaultHTTPTimeoutSeconds         = 15
	DefaultUserAgent                  = "FeedSentry/0.1.0"
)

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("FEEDSENTRY_PORT", 4000),
			Host: getEnvOrDefault("FEEDSENTRY_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver: getEnvOrDefault("FEEDSENTRY_DB_DRIVER", DriverSQLite),
			DSN:    getEnvOrDefault("FEEDSENTRY_DB_DSN", "./feedsentry.db"),
		},
		Log: LogConfig{
			Level: getEnvOrDefault("FEEDSENTRY_LOG_LEVEL", "info"),
		},
		Sync: SyncConfig{
			MaxEntriesPerFeed:          getEnvAsInt("FEEDSENTRY_MAX_ENTRIES_PER_FEED", DefaultMaxEntriesPerFeed),
			EvictionBatchSize:          getEnvAsInt("FEEDSENTRY_EVICTION_BATCH", DefaultEvictionBatchSize),
			MinPollIntervalSeconds:     getEnvAsInt("FEEDSENTRY_MIN_POLL_INTERVAL", DefaultMinPollIntervalSeconds),
			DefaultPollIntervalSeconds: getEnvAsInt("FEEDSENTRY_DEFAULT_POLL_INTERVAL", DefaultDefaultPollIntervalSeconds),
			MaxFailureCount:            getEnvAsInt("FEEDSENTRY_MAX_FAILURE_COUNT", DefaultMaxFailureCount),
			HTTPTimeout:                time.Duration(getEnvAsInt("FEEDSENTRY_HTTP_TIMEOUT", DefaultHTTPTimeoutSeconds)) * time.Second,
			UserAgent:                  getEnvOrDefault("FEEDSENTRY_USER_AGENT", DefaultUserAgent),
			RequestsPerSecondPerHost:   getEnvAsFloat("FEEDSENTRY_HOST_RATE", 2),
		},
		Permissions: PermissionsConfig{
			AllowAllHosts: getEnvAsBool("FEEDSENTRY_ALLOW_ALL_HOSTS", true),
			AllowedHosts:  getEnvAsList("FEEDSENTRY_ALLOWED_HOSTS"),
		},
		Broadcast: BroadcastConfig{
			RedisAddress:  getEnvOrDefault("FEEDSENTRY_REDIS_ADDRESS", ""),
			RedisPassword: getEnvOrDefault("FEEDSENTRY_REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("FEEDSENTRY_REDIS_DB", 0),
			RedisChannel:  getEnvOrDefault("FEEDSENTRY_REDIS_CHANNEL", "feedsentry:events"),
		},
		Alerts: AlertConfig{
			SMTP2GOAPIKey:  getEnvOrDefault("FEEDSENTRY_SMTP2GO_API_KEY", ""),
			SMTP2GOSender:  getEnvOrDefault("FEEDSENTRY_ALERT_SENDER", "Feed Sentry <alerts@feedsentry.local>"),
			AlertRecipient: getEnvOrDefault("FEEDSENTRY_ALERT_RECIPIENT", ""),
			PendingTTL:     time.Duration(getEnvAsInt("FEEDSENTRY_ALERT_TTL_MINUTES", 60*24)) * time.Minute,
		},
		API: APIConfig{
			TokenHash:   getEnvOrDefault("FEEDSENTRY_API_TOKEN_HASH", ""),
			CORSOrigins: getEnvAsList("FEEDSENTRY_CORS_ORIGINS"),
			BaseURL:     strings.TrimRight(getEnvOrDefault("FEEDSENTRY_BASE_URL", "http://localhost:4000"), "/"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewConfigurationError(fmt.Sprintf("invalid server port: %d", c.Server.Port), nil)
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return NewConfigurationError(fmt.Sprintf("unsupported database driver: %q", c.Database.Driver), nil)
	}

	if c.Database.DSN == "" {
		return NewConfigurationError("database DSN is required", nil)
	}

	if err := c.Sync.Validate(); err != nil {
		return err
	}

	if c.Alerts.AlertRecipient != "" && c.Alerts.SMTP2GOAPIKey == "" {
		return NewConfigurationError("SMTP2GO API key is required when an alert recipient is set", nil)
	}

	return nil
}

// Validate checks the sync thresholds for internal consistency
func (s SyncConfig) Validate() error {
	if s.MinPollIntervalSeconds <= 0 {
		return NewConfigurationError("minimum poll interval must be positive", nil)
	}
	if s.DefaultPollIntervalSeconds < s.MinPollIntervalSeconds {
		return NewConfigurationError("default poll interval must not be below the minimum", nil)
	}
	if s.MaxEntriesPerFeed <= 0 {
		return NewConfigurationError("max entries per feed must be positive", nil)
	}
	if s.EvictionBatchSize < 0 || s.EvictionBatchSize >= s.MaxEntriesPerFeed {
		return NewConfigurationError("eviction batch must be between 0 and max entries per feed", nil)
	}
	if s.MaxFailureCount <= 0 {
		return NewConfigurationError("max failure count must be positive", nil)
	}
	if s.HTTPTimeout <= 0 {
		return NewConfigurationError("HTTP timeout must be positive", nil)
	}
	return nil
}

// DefaultSyncConfig returns the documented sync thresholds
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxEntriesPerFeed:          DefaultMaxEntriesPerFeed,
		EvictionBatchSize:          DefaultEvictionBatchSize,
		MinPollIntervalSeconds:     DefaultMinPollIntervalSeconds,
		DefaultPollIntervalSeconds: DefaultDefaultPollIntervalSeconds,
		MaxFailureCount:            DefaultMaxFailureCount,
		HTTPTimeout:                DefaultHTTPTimeoutSeconds * time.Second,
		UserAgent:                  DefaultUserAgent,
		RequestsPerSecondPerHost:   2,
	}
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
