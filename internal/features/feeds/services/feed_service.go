package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedsentry/internal/broadcast"
	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

// FeedLimits are the subscription thresholds enforced by FeedService
type FeedLimits struct {
	MinPollIntervalSeconds     int
	DefaultPollIntervalSeconds int
	MaxFailureCount            int
}

// FeedService manages subscription records. Topology changes are broadcast
// before they are considered done and are undone when the broadcast fails.
// The scheduler follows the bus, so it only restarts for changes that stuck.
type FeedService struct {
	db      *core.Database
	bus     broadcast.Publisher
	fetcher FeedFetcher
	limits  FeedLimits
	logger  *core.Logger
	now     Clock
}

// NewFeedService creates a new feed service
func NewFeedService(db *core.Database, bus broadcast.Publisher, fetcher FeedFetcher, limits FeedLimits, logger *core.Logger) *FeedService {
	return &FeedService{
		db:      db,
		bus:     bus,
		fetcher: fetcher,
		limits:  limits,
		logger:  logger,
		now:     time.Now,
	}
}

const feedColumns = `id, title, url, poll_interval_seconds, notify_on_new_item, notify_on_keyword_match,
	keywords, active, consecutive_failure_count, last_sync_at, created_at, updated_at`

// Subscribe validates, authorizes and probes a feed URL, then stores the
// subscription. Nothing is left behind when any step fails.
func (s *FeedService) Subscribe(ctx context.Context, rawURL string, opts models.SubscribeOptions) (*models.Feed, error) {
	feedURL := strings.TrimSpace(rawURL)
	if err := ValidateFeedURL(feedURL); err != nil {
		return nil, err
	}

	id := FeedID(feedURL)
	if _, err := s.Get(ctx, id); err == nil {
		return nil, core.NewAlreadySubscribedError(fmt.Sprintf("already subscribed to %s", feedURL), nil)
	} else if !core.IsCode(err, core.ErrCodeNotFound) {
		return nil, err
	}

	interval := opts.PollIntervalSeconds
	if interval == 0 {
		interval = s.limits.DefaultPollIntervalSeconds
	}
	if err := s.validateInterval(interval); err != nil {
		return nil, err
	}

	parsed, err := s.fetcher.Fetch(ctx, feedURL, models.DefaultFetchOptions())
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = strings.TrimSpace(parsed.Title)
	}
	if title == "" {
		title = models.FallbackFeedTitle
	}

	now := s.now()
	feed := &models.Feed{
		ID:                   id,
		Title:                title,
		URL:                  feedURL,
		PollIntervalSeconds:  interval,
		NotifyOnNewItem:      opts.NotifyOnNewItem,
		NotifyOnKeywordMatch: opts.NotifyOnKeywordMatch,
		Keywords:             models.NormalizeKeywords(opts.Keywords),
		Active:               true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := insertFeed(ctx, s.db, feed); err != nil {
		return nil, core.NewDatabaseError("failed to store feed", err)
	}

	err = s.bus.Publish(ctx, broadcast.NewEvent(broadcast.FeedUpdated, broadcast.FeedUpdatedPayload{
		FeedID:          id,
		Action:          broadcast.FeedCreated,
		RequiresRestart: true,
	}))
	if err != nil {
		if _, derr := s.db.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, id); derr != nil {
			s.logger.Error("Failed to revert feed after broadcast failure", "feed_id", id, "error", derr)
		}
		s.logger.Warn("Subscription reverted due to broadcast failure", "feed_id", id, "error", err)
		return nil, core.NewBroadcastFailedError("failed to announce new feed", err)
	}

	s.logger.Info("Subscribed to feed", "feed_id", id, "title", title, "url", feedURL)
	return feed, nil
}

// Update applies a partial patch. The previous settings are restored when
// the change cannot be broadcast.
func (s *FeedService) Update(ctx context.Context, id string, patch models.FeedPatch) (*models.Feed, error) {
	snapshot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.PollIntervalSeconds != nil {
		if err := s.validateInterval(*patch.PollIntervalSeconds); err != nil {
			return nil, err
		}
	}

	updated, requiresRestart := patch.Apply(*snapshot)
	if strings.TrimSpace(updated.Title) == "" {
		updated.Title = snapshot.Title
	}
	updated.UpdatedAt = s.now()

	if err := writeSettings(ctx, s.db, &updated); err != nil {
		return nil, core.NewDatabaseError("failed to update feed", err)
	}

	err = s.bus.Publish(ctx, broadcast.NewEvent(broadcast.FeedUpdated, broadcast.FeedUpdatedPayload{
		FeedID:          id,
		Action:          broadcast.FeedChanged,
		RequiresRestart: requiresRestart,
	}))
	if err != nil {
		if rerr := writeSettings(ctx, s.db, snapshot); rerr != nil {
			s.logger.Error("Failed to restore feed after broadcast failure", "feed_id", id, "error", rerr)
		}
		s.logger.Warn("Feed update reverted due to broadcast failure", "feed_id", id, "error", err)
		return nil, core.NewBroadcastFailedError("failed to announce feed update", err)
	}

	s.logger.Info("Updated feed", "feed_id", id, "requires_restart", requiresRestart)
	return &updated, nil
}

// Unsubscribe removes a feed and its entries. Unknown ids are ignored.
func (s *FeedService) Unsubscribe(ctx context.Context, id string) error {
	feed, err := s.Get(ctx, id)
	if err != nil {
		if core.IsCode(err, core.ErrCodeNotFound) {
			return nil
		}
		return err
	}

	var entries []models.Entry
	err = s.db.Transaction(ctx, func(tx *core.Tx) error {
		var err error
		entries, err = selectEntries(ctx, tx, `WHERE feed_id = ?`, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE feed_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete feed: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.NewDatabaseError("failed to remove feed", err)
	}

	err = s.bus.Publish(ctx, broadcast.NewEvent(broadcast.FeedUpdated, broadcast.FeedUpdatedPayload{
		FeedID:          id,
		Action:          broadcast.FeedDeleted,
		RequiresRestart: true,
	}))
	if err != nil {
		rerr := s.db.Transaction(ctx, func(tx *core.Tx) error {
			if err := insertFeed(ctx, tx, feed); err != nil {
				return err
			}
			for i := range entries {
				if err := insertEntry(ctx, tx, &entries[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if rerr != nil {
			s.logger.Error("Failed to restore feed after broadcast failure", "feed_id", id, "error", rerr)
		}
		s.logger.Warn("Unsubscribe reverted due to broadcast failure", "feed_id", id, "entries", len(entries), "error", err)
		return core.NewBroadcastFailedError("failed to announce feed removal", err)
	}

	s.logger.Info("Unsubscribed from feed", "feed_id", id, "entries_removed", len(entries))
	return nil
}

// RecordSuccess clears the failure streak and stamps the sync time
func (s *FeedService) RecordSuccess(ctx context.Context, id string) error {
	now := s.now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET consecutive_failure_count = 0, last_sync_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id)
	if err != nil {
		return core.NewDatabaseError("failed to record sync success", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewNotFoundError(fmt.Sprintf("feed not found: %s", id), nil)
	}
	return nil
}

// RecordFailure increments the failure streak and returns the new count.
// Reaching the ceiling deactivates the feed in the same statement.
func (s *FeedService) RecordFailure(ctx context.Context, id string) (int, error) {
	var count int
	var active bool
	err := s.db.QueryRowContext(ctx, `
		UPDATE feeds
		SET consecutive_failure_count = consecutive_failure_count + 1,
		    active = CASE WHEN consecutive_failure_count + 1 >= ? THEN FALSE ELSE active END,
		    updated_at = ?
		WHERE id = ?
		RETURNING consecutive_failure_count, active`,
		s.limits.MaxFailureCount, s.now().UnixMilli(), id,
	).Scan(&count, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, core.NewNotFoundError(fmt.Sprintf("feed not found: %s", id), nil)
		}
		return 0, core.NewDatabaseError("failed to record sync failure", err)
	}

	if !active && count >= s.limits.MaxFailureCount {
		s.logger.Warn("Feed deactivated after repeated failures", "feed_id", id, "failure_count", count)
	}
	return count, nil
}

// Get retrieves a feed by id
func (s *FeedService) Get(ctx context.Context, id string) (*models.Feed, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	feed, err := scanFeed(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewNotFoundError(fmt.Sprintf("feed not found: %s", id), nil)
		}
		return nil, core.NewDatabaseError("failed to get feed", err)
	}
	return feed, nil
}

// List returns feeds in creation order, optionally only active ones
func (s *FeedService) List(ctx context.Context, activeOnly bool) ([]models.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds`
	var args []any
	if activeOnly {
		query += ` WHERE active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY created_at, id`
	return s.queryFeeds(ctx, query, args...)
}

// Search returns feeds whose title or URL contains keyword, ignoring case
func (s *FeedService) Search(ctx context.Context, keyword string) ([]models.Feed, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.List(ctx, false)
	}
	pattern := "%" + strings.ToLower(keyword) + "%"
	return s.queryFeeds(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE LOWER(title) LIKE ? OR LOWER(url) LIKE ? ORDER BY created_at, id`,
		pattern, pattern)
}

// KeywordMap returns the keywords of every feed in keyword mode, keyed by feed id
func (s *FeedService) KeywordMap(ctx context.Context) (map[string][]string, error) {
	feeds, err := s.List(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, feed := range feeds {
		if feed.KeywordMode() {
			out[feed.ID] = feed.Keywords
		}
	}
	return out, nil
}

func (s *FeedService) queryFeeds(ctx context.Context, query string, args ...any) ([]models.Feed, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewDatabaseError("failed to list feeds", err)
	}
	defer rows.Close()

	feeds := []models.Feed{}
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, core.NewDatabaseError("failed to scan feed", err)
		}
		feeds = append(feeds, *feed)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewDatabaseError("failed to list feeds", err)
	}
	return feeds, nil
}

func (s *FeedService) validateInterval(seconds int) error {
	if seconds < s.limits.MinPollIntervalSeconds {
		return core.NewValidationError(
			fmt.Sprintf("poll interval must be at least %d seconds", s.limits.MinPollIntervalSeconds), nil)
	}
	return nil
}

func scanFeed(row rowScanner) (*models.Feed, error) {
	var feed models.Feed
	var keywords string
	var lastSync sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&feed.ID,
		&feed.Title,
		&feed.URL,
		&feed.PollIntervalSeconds,
		&feed.NotifyOnNewItem,
		&feed.NotifyOnKeywordMatch,
		&keywords,
		&feed.Active,
		&feed.ConsecutiveFailureCount,
		&lastSync,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(keywords), &feed.Keywords); err != nil {
		return nil, fmt.Errorf("invalid keywords for feed %s: %w", feed.ID, err)
	}
	if feed.Keywords == nil {
		feed.Keywords = []string{}
	}
	if lastSync.Valid {
		t := time.UnixMilli(lastSync.Int64)
		feed.LastSyncAt = &t
	}
	feed.CreatedAt = time.UnixMilli(createdAt)
	feed.UpdatedAt = time.UnixMilli(updatedAt)
	return &feed, nil
}

func insertFeed(ctx context.Context, q querier, feed *models.Feed) error {
	keywords, err := encodeKeywords(feed.Keywords)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO feeds (`+feedColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		feed.ID,
		feed.Title,
		feed.URL,
		feed.PollIntervalSeconds,
		feed.NotifyOnNewItem,
		feed.NotifyOnKeywordMatch,
		keywords,
		feed.Active,
		feed.ConsecutiveFailureCount,
		nullableMillis(feed.LastSyncAt),
		feed.CreatedAt.UnixMilli(),
		feed.UpdatedAt.UnixMilli(),
	)
	return err
}

// writeSettings stores the user-editable columns of an existing row. Sync
// bookkeeping (failure count, last sync) belongs to the scheduler and is
// left untouched.
func writeSettings(ctx context.Context, q querier, feed *models.Feed) error {
	keywords, err := encodeKeywords(feed.Keywords)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		UPDATE feeds
		SET title = ?, poll_interval_seconds = ?, notify_on_new_item = ?, notify_on_keyword_match = ?,
		    keywords = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		feed.Title,
		feed.PollIntervalSeconds,
		feed.NotifyOnNewItem,
		feed.NotifyOnKeywordMatch,
		keywords,
		feed.Active,
		feed.UpdatedAt.UnixMilli(),
		feed.ID,
	)
	return err
}

func encodeKeywords(keywords []string) (string, error) {
	if keywords == nil {
		keywords = []string{}
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return "", fmt.Errorf("failed to encode keywords: %w", err)
	}
	return string(data), nil
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
