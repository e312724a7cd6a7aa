package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedsentry/internal/broadcast"
	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

// RetentionPolicy caps the number of entries kept per feed
type RetentionPolicy struct {
	MaxEntriesPerFeed int
	EvictionBatchSize int
}

// EntryService stores ingested items, enforces retention and answers queries
type EntryService struct {
	db        *core.Database
	bus       broadcast.Publisher
	retention RetentionPolicy
	logger    *core.Logger
	now       Clock
}

// NewEntryService creates a new entry service
func NewEntryService(db *core.Database, bus broadcast.Publisher, retention RetentionPolicy, logger *core.Logger) *EntryService {
	return &EntryService{
		db:        db,
		bus:       bus,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

const entryColumns = `id, feed_id, title, author, link, pub_date, published_at, ingested_at, is_read`

// Ingest inserts the items not seen before for a feed. The batch and the
// retention pass that follows it commit together.
func (s *EntryService) Ingest(ctx context.Context, feedID string, items []models.ParsedItem) (*models.IngestResult, error) {
	result := &models.IngestResult{NewEntries: []models.Entry{}}
	ingestedAt := s.now()
	var evicted int

	err := s.db.Transaction(ctx, func(tx *core.Tx) error {
		seen := make(map[string]bool, len(items))
		for _, item := range items {
			id, ok := EntryID(feedID, item)
			if !ok || seen[id] {
				result.Skipped++
				continue
			}
			seen[id] = true

			exists, err := entryExists(ctx, tx, id)
			if err != nil {
				return err
			}
			if exists {
				result.Skipped++
				continue
			}

			entry := newEntry(feedID, id, item, ingestedAt)
			if err := insertEntry(ctx, tx, &entry); err != nil {
				return fmt.Errorf("failed to insert entry %s: %w", id, err)
			}
			result.Added++
			result.NewEntries = append(result.NewEntries, entry)
		}

		var err error
		evicted, err = s.evict(ctx, tx, feedID)
		return err
	})
	if err != nil {
		return nil, core.NewDatabaseError("failed to ingest entries", err)
	}

	s.logger.Debug("Ingested entries", "feed_id", feedID, "added", result.Added, "skipped", result.Skipped, "evicted", evicted)
	return result, nil
}

// EnforceRetention evicts the oldest entries of a feed once it holds more
// than the cap and returns how many were removed.
func (s *EntryService) EnforceRetention(ctx context.Context, feedID string) (int, error) {
	var removed int
	err := s.db.Transaction(ctx, func(tx *core.Tx) error {
		var err error
		removed, err = s.evict(ctx, tx, feedID)
		return err
	})
	if err != nil {
		return 0, core.NewDatabaseError("failed to enforce retention", err)
	}
	return removed, nil
}

// evict removes count-cap+batch of the oldest entries in a single statement
func (s *EntryService) evict(ctx context.Context, q querier, feedID string) (int, error) {
	var count int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE feed_id = ?`, feedID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	if count <= s.retention.MaxEntriesPerFeed {
		return 0, nil
	}

	excess := count - s.retention.MaxEntriesPerFeed + s.retention.EvictionBatchSize
	res, err := q.ExecContext(ctx, `
		DELETE FROM entries WHERE id IN (
			SELECT id FROM entries WHERE feed_id = ?
			ORDER BY published_at ASC, ingested_at ASC, id ASC
			LIMIT ?
		)`, feedID, excess)
	if err != nil {
		return 0, fmt.Errorf("failed to evict entries: %w", err)
	}
	removed, _ := res.RowsAffected()

	s.logger.Info("Evicted old entries", "feed_id", feedID, "removed", removed, "cap", s.retention.MaxEntriesPerFeed)
	return int(removed), nil
}

// Get retrieves an entry by id
func (s *EntryService) Get(ctx context.Context, id string) (*models.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewNotFoundError(fmt.Sprintf("entry not found: %s", id), nil)
		}
		return nil, core.NewDatabaseError("failed to get entry", err)
	}
	return entry, nil
}

// Query returns one page of entries, newest first
func (s *EntryService) Query(ctx context.Context, q models.EntryQuery) (*models.EntryPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}

	where, args := entryFilter(q.FeedID, q.Read, q.Search, false)
	offset := (page - 1) * pageSize
	data, total, err := s.window(ctx, where, args, q.KeywordFilter, offset, pageSize)
	if err != nil {
		return nil, err
	}
	if err := s.attachFavorites(ctx, data); err != nil {
		return nil, err
	}

	return &models.EntryPage{
		Data:     data,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  offset+pageSize < total,
	}, nil
}

// QueryInfinite returns entries older than the cursor, newest first, never
// exposing more than MaxTotal entries in total.
func (s *EntryService) QueryInfinite(ctx context.Context, q models.InfiniteQuery) (*models.InfinitePage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = models.DefaultInfiniteLimit
	}
	maxTotal := q.MaxTotal
	if maxTotal <= 0 {
		maxTotal = models.DefaultInfiniteMax
	}

	excludeInactive := q.ExcludeInactiveFeeds && q.FeedID == models.AllFeeds
	where, args := entryFilter(q.FeedID, q.Read, q.Search, excludeInactive)
	if !q.Cursor.IsZero() {
		where = appendCondition(where, `published_at < ?`)
		args = append(args, q.Cursor.UnixMilli())
	}

	data, total, err := s.window(ctx, where, args, q.KeywordFilter, 0, min(limit, maxTotal))
	if err != nil {
		return nil, err
	}
	if err := s.attachFavorites(ctx, data); err != nil {
		return nil, err
	}

	return &models.InfinitePage{
		Data:    data,
		HasMore: len(data) >= limit && total > len(data) && len(data) < maxTotal,
		Total:   min(total, maxTotal),
	}, nil
}

// window returns size entries starting at offset, newest first, and the
// number of entries matching the filter. Keyword matching happens on titles
// in Go, so only unfiltered windows are paged by the database.
func (s *EntryService) window(ctx context.Context, where string, args []any, keywords map[string][]string, offset, size int) ([]models.Entry, int, error) {
	const order = ` ORDER BY published_at DESC, ingested_at DESC, id`

	if keywords != nil {
		entries, err := selectEntries(ctx, s.db, where+order, args...)
		if err != nil {
			return nil, 0, core.NewDatabaseError("failed to query entries", err)
		}
		entries = filterByKeywords(entries, keywords)
		return paginate(entries, offset, size), len(entries), nil
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, core.NewDatabaseError("failed to count entries", err)
	}
	if offset >= total {
		return []models.Entry{}, total, nil
	}

	pageArgs := append(append([]any{}, args...), size, offset)
	entries, err := selectEntries(ctx, s.db, where+order+` LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, core.NewDatabaseError("failed to query entries", err)
	}
	return entries, total, nil
}

// MarkRead marks one entry read. Already-read entries are left untouched.
func (s *EntryService) MarkRead(ctx context.Context, id string) error {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry.IsRead {
		return nil
	}
	return s.setRead(ctx, entry, true)
}

// ToggleRead flips the read state of one entry and returns the new state
func (s *EntryService) ToggleRead(ctx context.Context, id string) (bool, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	next := !entry.IsRead
	return next, s.setRead(ctx, entry, next)
}

func (s *EntryService) setRead(ctx context.Context, entry *models.Entry, isRead bool) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE entries SET is_read = ? WHERE id = ?`, isRead, entry.ID); err != nil {
		return core.NewDatabaseError("failed to update read state", err)
	}
	s.announceReadChange(ctx, broadcast.EntryReadChangedPayload{EntryID: entry.ID, FeedID: entry.FeedID, IsRead: isRead})
	return nil
}

// MarkAllRead marks every entry of a feed, or of all feeds, read
func (s *EntryService) MarkAllRead(ctx context.Context, feedID string) (int, error) {
	query := `UPDATE entries SET is_read = ? WHERE is_read = ?`
	args := []any{true, false}
	if feedID != models.AllFeeds {
		query += ` AND feed_id = ?`
		args = append(args, feedID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, core.NewDatabaseError("failed to mark entries read", err)
	}
	changed, _ := res.RowsAffected()

	s.logger.Info("Marked entries read", "feed_id", feedID, "changed", changed)
	s.announceReadChange(ctx, broadcast.EntryReadChangedPayload{FeedID: feedID, IsRead: true})
	return int(changed), nil
}

// UnreadCount counts unread entries for a feed or all feeds. With activeOnly
// and the all-feeds scope, entries of inactive feeds are not counted.
func (s *EntryService) UnreadCount(ctx context.Context, feedID string, activeOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM entries WHERE is_read = ?`
	args := []any{false}
	switch {
	case feedID != models.AllFeeds:
		query += ` AND feed_id = ?`
		args = append(args, feedID)
	case activeOnly:
		query += ` AND feed_id IN (SELECT id FROM feeds WHERE active = ?)`
		args = append(args, true)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, core.NewDatabaseError("failed to count unread entries", err)
	}
	return count, nil
}

// PublishBadge broadcasts the unread count across active feeds
func (s *EntryService) PublishBadge(ctx context.Context) {
	count, err := s.UnreadCount(ctx, models.AllFeeds, true)
	if err != nil {
		s.logger.Error("Failed to compute badge count", "error", err)
		return
	}
	if err := s.bus.Publish(ctx, broadcast.NewEvent(broadcast.BadgeUpdate, broadcast.BadgeUpdatePayload{
		Count: count,
		Text:  FormatBadgeText(count),
	})); err != nil {
		s.logger.Warn("Failed to broadcast badge update", "error", err)
	}
}

func (s *EntryService) announceReadChange(ctx context.Context, payload broadcast.EntryReadChangedPayload) {
	if err := s.bus.Publish(ctx, broadcast.NewEvent(broadcast.EntryReadChanged, payload)); err != nil {
		s.logger.Warn("Failed to broadcast read change", "feed_id", payload.FeedID, "error", err)
	}
	s.PublishBadge(ctx)
}

// attachFavorites marks entries that have a favorite, matching by entry id
// first and by link second.
func (s *EntryService) attachFavorites(ctx context.Context, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]any, 0, len(entries))
	links := make([]any, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
		if link := strings.TrimSpace(e.Link); link != "" {
			links = append(links, link)
		}
	}

	query := `SELECT id, item_id, link FROM favorites WHERE item_id IN (` + placeholders(len(ids)) + `)`
	args := ids
	if len(links) > 0 {
		query += ` OR link IN (` + placeholders(len(links)) + `)`
		args = append(args, links...)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return core.NewDatabaseError("failed to load favorite markers", err)
	}
	defer rows.Close()

	byItem := make(map[string]string)
	byLink := make(map[string]string)
	for rows.Next() {
		var favID, itemID, link string
		if err := rows.Scan(&favID, &itemID, &link); err != nil {
			return core.NewDatabaseError("failed to scan favorite marker", err)
		}
		if itemID != "" {
			if _, ok := byItem[itemID]; !ok {
				byItem[itemID] = favID
			}
		}
		if link != "" {
			if _, ok := byLink[link]; !ok {
				byLink[link] = favID
			}
		}
	}
	if err := rows.Err(); err != nil {
		return core.NewDatabaseError("failed to load favorite markers", err)
	}

	for i := range entries {
		favID, ok := byItem[entries[i].ID]
		if !ok {
			favID, ok = byLink[strings.TrimSpace(entries[i].Link)]
		}
		if ok && favID != "" {
			entries[i].IsFavorite = true
			entries[i].FavoriteID = favID
		}
	}
	return nil
}

// FormatBadgeText renders an unread count for a compact badge
func FormatBadgeText(count int) string {
	switch {
	case count <= 0:
		return ""
	case count > 999:
		return "999+"
	default:
		return fmt.Sprintf("%d", count)
	}
}

// MatchKeywords returns the keywords contained in title, ignoring case
func MatchKeywords(title string, keywords []string) []string {
	lower := strings.ToLower(title)
	var matched []string
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			matched = append(matched, k)
		}
	}
	return matched
}

func filterByKeywords(entries []models.Entry, keywordMap map[string][]string) []models.Entry {
	out := entries[:0]
	for _, e := range entries {
		keywords := keywordMap[e.FeedID]
		if len(keywords) == 0 {
			continue
		}
		if matched := MatchKeywords(e.Title, keywords); len(matched) > 0 {
			e.MatchedKeywords = matched
			out = append(out, e)
		}
	}
	return out
}

func paginate(entries []models.Entry, offset, size int) []models.Entry {
	if offset >= len(entries) {
		return []models.Entry{}
	}
	end := min(offset+size, len(entries))
	return entries[offset:end]
}

func entryFilter(feedID string, read models.ReadFilter, search string, activeFeedsOnly bool) (string, []any) {
	var where string
	var args []any

	if feedID != models.AllFeeds {
		where = appendCondition(where, `feed_id = ?`)
		args = append(args, feedID)
	} else if activeFeedsOnly {
		where = appendCondition(where, `feed_id IN (SELECT id FROM feeds WHERE active = ?)`)
		args = append(args, true)
	}

	switch read {
	case models.ReadOnly:
		where = appendCondition(where, `is_read = ?`)
		args = append(args, true)
	case models.UnreadOnly:
		where = appendCondition(where, `is_read = ?`)
		args = append(args, false)
	}

	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		where = appendCondition(where, `(LOWER(title) LIKE ? OR LOWER(author) LIKE ?)`)
		args = append(args, pattern, pattern)
	}

	return where, args
}

func appendCondition(where, cond string) string {
	if where == "" {
		return "WHERE " + cond
	}
	return where + " AND " + cond
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func newEntry(feedID, id string, item models.ParsedItem, ingestedAt time.Time) models.Entry {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = models.FallbackEntryTitle
	}
	return models.Entry{
		ID:          id,
		FeedID:      feedID,
		Title:       title,
		Author:      strings.TrimSpace(item.Author),
		Link:        strings.TrimSpace(item.Link),
		PubDate:     strings.TrimSpace(item.PubDate),
		PublishedAt: resolvePublishedAt(item, ingestedAt),
		IngestedAt:  ingestedAt,
	}
}

// resolvePublishedAt prefers the ISO timestamp, then the free-form
// publication date, then the ingestion time.
func resolvePublishedAt(item models.ParsedItem, fallback time.Time) time.Time {
	if iso := strings.TrimSpace(item.IsoDate); iso != "" {
		if t, err := time.Parse(time.RFC3339, iso); err == nil {
			return t
		}
	}
	if pub := strings.TrimSpace(item.PubDate); pub != "" {
		if t, err := parseDate(pub); err == nil {
			return t
		}
	}
	return fallback
}

func entryExists(ctx context.Context, q querier, id string) (bool, error) {
	var count int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE id = ?`, id).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check entry %s: %w", id, err)
	}
	return count > 0, nil
}

func insertEntry(ctx context.Context, q querier, entry *models.Entry) error {
	_, err := q.ExecContext(ctx, `INSERT INTO entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.FeedID,
		entry.Title,
		entry.Author,
		entry.Link,
		entry.PubDate,
		entry.PublishedAt.UnixMilli(),
		entry.IngestedAt.UnixMilli(),
		entry.IsRead,
	)
	return err
}

func selectEntries(ctx context.Context, q querier, clause string, args ...any) ([]models.Entry, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	entries := []models.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var entry models.Entry
	var publishedAt, ingestedAt int64
	err := row.Scan(
		&entry.ID,
		&entry.FeedID,
		&entry.Title,
		&entry.Author,
		&entry.Link,
		&entry.PubDate,
		&publishedAt,
		&ingestedAt,
		&entry.IsRead,
	)
	if err != nil {
		return nil, err
	}
	entry.PublishedAt = time.UnixMilli(publishedAt)
	entry.IngestedAt = time.UnixMilli(ingestedAt)
	return &entry, nil
}
