package services

import (
	"context"
	"database/sql"
	"time"

	"feedsentry/internal/features/feeds/models"
)

// FeedClient fetches and parses one feed document. It does not retry.
type FeedClient interface {
	FetchFeed(ctx context.Context, feedURL string) (*models.ParsedFeed, error)
}

// PermissionGate answers whether a URL may be fetched
type PermissionGate interface {
	IsAllowed(ctx context.Context, feedURL string) (bool, error)
}

// FeedFetcher is a permission-checked, retrying fetch
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string, opts models.FetchOptions) (*models.ParsedFeed, error)
}

// AlertSink shows alerts to the user
type AlertSink interface {
	Deliver(ctx context.Context, alert models.Alert) error
	Clear(ctx context.Context, alertID string) error
}

// Alarm schedules a recurring wake-up. Schedule replaces any previous
// registration; Cancel stops future wake-ups without waiting for a running one.
type Alarm interface {
	Schedule(interval time.Duration, wake func())
	Cancel()
}

// Clock returns the current time
type Clock func() time.Time

// querier is satisfied by both *core.Database and *core.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}
