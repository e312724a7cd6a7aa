package feeds

import (
	"time"

	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
	"feedsentry/internal/features/feeds/services"
)

// Config represents feeds feature configuration
type Config struct {
	Enabled     bool
	Sync        core.SyncConfig
	Permissions core.PermissionsConfig
	Alerts      core.AlertConfig
	BaseURL     string
}

// NewConfig creates feeds config from core config
func NewConfig(coreConfig *core.Config) *Config {
	return &Config{
		Enabled:     true,
		Sync:        coreConfig.Sync,
		Permissions: coreConfig.Permissions,
		Alerts:      coreConfig.Alerts,
		BaseURL:     coreConfig.API.BaseURL,
	}
}

// Validate validates the feeds configuration
func (c *Config) Validate() error {
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if c.BaseURL == "" {
		return core.NewConfigurationError("base URL is required for alert links", nil)
	}
	return nil
}

func (c *Config) feedLimits() services.FeedLimits {
	return services.FeedLimits{
		MinPollIntervalSeconds:     c.Sync.MinPollIntervalSeconds,
		DefaultPollIntervalSeconds: c.Sync.DefaultPollIntervalSeconds,
		MaxFailureCount:            c.Sync.MaxFailureCount,
	}
}

func (c *Config) retention() services.RetentionPolicy {
	return services.RetentionPolicy{
		MaxEntriesPerFeed: c.Sync.MaxEntriesPerFeed,
		EvictionBatchSize: c.Sync.EvictionBatchSize,
	}
}

func (c *Config) scheduler() *models.SchedulerConfig {
	config := models.DefaultSchedulerConfig()
	config.MinPollInterval = time.Duration(c.Sync.MinPollIntervalSeconds) * time.Second
	config.DefaultPollInterval = time.Duration(c.Sync.DefaultPollIntervalSeconds) * time.Second
	config.MaxFailureCount = c.Sync.MaxFailureCount
	return config
}
