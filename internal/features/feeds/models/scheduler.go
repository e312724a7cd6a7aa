package models

import (
	"time"
)

// FetchOptions bounds retries for one gateway fetch
type FetchOptions struct {
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// DefaultFetchOptions is used for subscription probes and manual fetches
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{MaxRetries: 3, RetryDelay: time.Second}
}

// PollFetchOptions is used by the scheduler during poll cycles
func PollFetchOptions() FetchOptions {
	return FetchOptions{MaxRetries: 2, RetryDelay: time.Second}
}

// SchedulerConfig holds configuration for the poll scheduler
type SchedulerConfig struct {
	MinPollInterval     time.Duration `json:"min_poll_interval"`
	DefaultPollInterval time.Duration `json:"default_poll_interval"`
	MaxFailureCount     int           `json:"max_failure_count"`
	Fetch               FetchOptions  `json:"fetch"`
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		MinPollInterval:     60 * time.Second,
		DefaultPollInterval: 600 * time.Second,
		MaxFailureCount:     100,
		Fetch:               PollFetchOptions(),
	}
}

// SyncSummary reports the outcome of a manual sync
type SyncSummary struct {
	Feeds   int `json:"feeds"`
	Added   int `json:"added"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}
