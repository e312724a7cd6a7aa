package migrations

import (
	"feedsentry/internal/core"
)

// Timestamps are stored as Unix milliseconds so the schema is portable
// between SQLite and PostgreSQL.

// Migration001CreateFeedTables creates the subscription and entry tables
var Migration001CreateFeedTables = core.Migration{
	Version:     1,
	Name:        "create_feed_tables",
	Description: "Create feed subscription and entry tables",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS feeds (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			url TEXT NOT NULL UNIQUE,
			poll_interval_seconds INTEGER NOT NULL,
			notify_on_new_item BOOLEAN NOT NULL DEFAULT FALSE,
			notify_on_keyword_match BOOLEAN NOT NULL DEFAULT FALSE,
			keywords TEXT NOT NULL DEFAULT '[]',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			consecutive_failure_count INTEGER NOT NULL DEFAULT 0,
			last_sync_at BIGINT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_feeds_active ON feeds(active);

		CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			feed_id TEXT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			link TEXT NOT NULL DEFAULT '',
			pub_date TEXT NOT NULL DEFAULT '',
			published_at BIGINT NOT NULL,
			ingested_at BIGINT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE INDEX IF NOT EXISTS idx_entries_feed_published ON entries(feed_id, published_at);
		CREATE INDEX IF NOT EXISTS idx_entries_published ON entries(published_at);
		CREATE INDEX IF NOT EXISTS idx_entries_is_read ON entries(is_read);
	`,
	DownSQL: `
		DROP INDEX IF EXISTS idx_entries_is_read;
		DROP INDEX IF EXISTS idx_entries_published;
		DROP INDEX IF EXISTS idx_entries_feed_published;
		DROP TABLE IF EXISTS entries;
		DROP INDEX IF EXISTS idx_feeds_active;
		DROP TABLE IF EXISTS feeds;
	`,
}
