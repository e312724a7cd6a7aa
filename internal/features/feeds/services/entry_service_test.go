package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"feedsentry/internal/broadcast"
	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

func newTestEntryService(t *testing.T, db *core.Database, bus broadcast.Publisher, cap, batch int) *EntryService {
	t.Helper()
	s := NewEntryService(db, bus, RetentionPolicy{MaxEntriesPerFeed: cap, EvictionBatchSize: batch}, testLogger())
	s.now = newFakeClock().Now
	return s
}

func countEntries(t *testing.T, db *core.Database, feedID string) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM entries WHERE feed_id = ?`, feedID).Scan(&n); err != nil {
		t.Fatalf("Failed to count entries: %v", err)
	}
	return n
}

func TestIngestIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	feed := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Title: "Example", Active: true})
	s := newTestEntryService(t, db, newRecordingBus(), 100, 10)
	ctx := context.Background()

	it := item("g1", "Hello", time.Now())

	first, err := s.Ingest(ctx, feed.ID, []models.ParsedItem{it})
	if err != nil {
		t.Fatalf("First ingest failed: %v", err)
	}
	second, err := s.Ingest(ctx, feed.ID, []models.ParsedItem{it})
	if err != nil {
		t.Fatalf("Second ingest failed: %v", err)
	}

	if added := first.Added + second.Added; added != 1 {
		t.Errorf("Expected 1 added across both calls, got %d", added)
	}
	if skipped := first.Skipped + second.Skipped; skipped != 1 {
		t.Errorf("Expected 1 skipped across both calls, got %d", skipped)
	}
	if n := countEntries(t, db, feed.ID); n != 1 {
		t.Errorf("Expected exactly 1 entry, got %d", n)
	}
}

func TestIngestSkipsUnidentifiableItems(t *testing.T) {
	db := newTestDB(t)
	feed := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Active: true})
	s := newTestEntryService(t, db, newRecordingBus(), 100, 10)

	items := []models.ParsedItem{
		{GUID: "  ", Link: "", Title: "   "},
		{Link: "https://example.com/a"},
		{Title: "Only a title"},
	}
	result, err := s.Ingest(context.Background(), feed.ID, items)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if result.Added != 2 || result.Skipped != 1 {
		t.Errorf("Expected added=2 skipped=1, got added=%d skipped=%d", result.Added, result.Skipped)
	}

	for _, e := range result.NewEntries {
		if e.IsRead {
			t.Errorf("Entry %s should be unread", e.ID)
		}
	}
	if result.NewEntries[0].Title != models.FallbackEntryTitle {
		t.Errorf("Expected fallback title, got %q", result.NewEntries[0].Title)
	}
}

func TestIngestResolvesPublishedAt(t *testing.T) {
	db := newTestDB(t)
	feed := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Active: true})
	s := newTestEntryService(t, db, newRecordingBus(), 100, 10)
	ingestedAt := s.now()

	items := []models.ParsedItem{
		{GUID: "iso", IsoDate: "2024-03-01T10:00:00Z", PubDate: "garbage"},
		{GUID: "pub", PubDate: "Mon, 02 Jan 2006 15:04:05 -0700"},
		{GUID: "none", PubDate: "not a date"},
	}
	result, err := s.Ingest(context.Background(), feed.ID, items)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	want := []time.Time{
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC),
		ingestedAt,
	}
	for i, e := range result.NewEntries {
		if !e.PublishedAt.Equal(want[i]) {
			t.Errorf("Entry %s: expected publishedAt %v, got %v", e.ID, want[i], e.PublishedAt)
		}
	}
}

func TestRetentionEvictsOldestInBatch(t *testing.T) {
	db := newTestDB(t)
	feed := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Active: true})
	const cap, batch, k = 10, 3, 2
	s := newTestEntryService(t, db, newRecordingBus(), cap, batch)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var items []models.ParsedItem
	for i := 0; i < cap; i++ {
		items = append(items, item(fmt.Sprintf("g%02d", i), "Post", base.Add(time.Duration(i)*time.Hour)))
	}
	if _, err := s.Ingest(ctx, feed.ID, items); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if n := countEntries(t, db, feed.ID); n != cap {
		t.Fatalf("Expected %d entries at the cap, got %d", cap, n)
	}

	var more []models.ParsedItem
	for i := cap; i < cap+k; i++ {
		more = append(more, item(fmt.Sprintf("g%02d", i), "Post", base.Add(time.Duration(i)*time.Hour)))
	}
	if _, err := s.Ingest(ctx, feed.ID, more); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if n := countEntries(t, db, feed.ID); n != cap-batch {
		t.Errorf("Expected %d entries after eviction, got %d", cap-batch, n)
	}

	// The k+batch oldest are gone
	for i := 0; i < k+batch; i++ {
		id := feed.ID + fmt.Sprintf("_g%02d", i)
		if _, err := s.Get(ctx, id); !core.IsCode(err, core.ErrCodeNotFound) {
			t.Errorf("Expected entry %s to be evicted, got %v", id, err)
		}
	}
	if _, err := s.Get(ctx, feed.ID+fmt.Sprintf("_g%02d", cap+k-1)); err != nil {
		t.Errorf("Expected newest entry to survive: %v", err)
	}
}

func TestEnforceRetentionBelowCap(t *testing.T) {
	db := newTestDB(t)
	feed := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Active: true})
	s := newTestEntryService(t, db, newRecordingBus(), 10, 2)

	removed, err := s.EnforceRetention(context.Background(), feed.ID)
	if err != nil {
		t.Fatalf("EnforceRetention failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Expected nothing removed, got %d", removed)
	}
}

func seedEntries(t *testing.T, s *EntryService, feedID string, titles ...string) []models.Entry {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var items []models.ParsedItem
	for i, title := range titles {
		items = append(items, item(fmt.Sprintf("%s-%d", feedID, i), title, base.Add(time.Duration(i)*time.Hour)))
	}
	result, err := s.Ingest(context.Background(), feedID, items)
	if err != nil {
		t.Fatalf("Failed to seed entries: %v", err)
	}
	return result.NewEntries
}

func TestQueryPagination(t *testing.T) {
	db := newTestDB(t)
	feed := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Active: true})
	s := newTestEntryService(t, db, newRecordingBus(), 100, 10)
	seedEntries(t, s, feed.ID, "a", "b", "c", "d", "e")
	ctx := context.Background()

	page, err := s.Query(ctx, models.EntryQuery{FeedID: feed.ID, Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if page.Total != 5 || len(page.Data) != 2 || !page.HasMore {
		t.Errorf("Unexpected first page: total=%d len=%d hasMore=%v", page.Total, len(page.Data), page.HasMore)
	}
	if page.Data[0].Title != "e" {
		t.Errorf("Expected newest first, got %q", page.Data[0].Title)
	}

	last, err := s.Query(ctx, models.EntryQuery{FeedID: feed.ID, Page: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(last.Data) != 1 || last.HasMore {
		t.Errorf("Unexpected last page: len=%d hasMore=%v", len(last.Data), last.HasMore)
	}

	defaults, err := s.Query(ctx, models.EntryQuery{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if defaults.Page != 1 || defaults.PageSize != models.DefaultPageSize {
		t.Errorf("Expected default paging, got page=%d size=%d", defaults.Page, defaults.PageSize)
	}
}

func TestQueryFilters(t *testing.T) {
	db := newTestDB(t)
	feed := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Active: true})
	other := insertTestFeed(t, db, models.Feed{URL: "https://other.example.com/feed.xml", Active: true})
	s := newTestEntryService(t, db, newRecordingBus(), 100, 10)
	entries := seedEntries(t, s, feed.ID, "Go release notes", "Rust news", "golang tips")
	seedEntries(t, s, other.ID, "Go elsewhere")
	ctx := context.Background()

	if err := s.MarkRead(ctx, entries[0].ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	unread, err := s.Query(ctx, models.EntryQuery{FeedID: feed.ID, Read: models.UnreadOnly})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if unread.Total != 2 {
		t.Errorf("Expected 2 unread, got %d", unread.Total)
	}

	search, err := s.Query(ctx, models.EntryQuery{Search: "GO"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if search.Total != 3 {
		t.Errorf("Expected 3 search hits across feeds, got %d", search.Total)
	}

	filtered, err := s.Query(ctx, models.EntryQuery{KeywordFilter: map[string][]string{feed.ID: {"golang", "rust"}}})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if filtered.Total != 2 {
		t.Fatalf("Expected 2 keyword matches, got %d", filtered.Total)
	}
	for _, e := range filtered.Data {
		if e.FeedID != feed.ID || len(e.MatchedKeywords) != 1 {
			t.Errorf("Unexpected keyword match %+v", e)
		}
	}
}

func TestQueryInfinite(t *testing.T) {
	db := newTestDB(t)
	feed := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Active: true})
	inactive := insertTestFeed(t, db, models.Feed{URL: "https://off.example.com/feed.xml", Active: false})
	s := newTestEntryService(t, db, newRecordingBus(), 100, 10)
	entries := seedEntries(t, s, feed.ID, "1", "2", "3", "4", "5")
	seedEntries(t, s, inactive.ID, "x")
	ctx := context.Background()

	first, err := s.QueryInfinite(ctx, models.InfiniteQuery{FeedID: feed.ID, Limit: 2, MaxTotal: 3})
	if err != nil {
		t.Fatalf("QueryInfinite failed: %v", err)
	}
	if len(first.Data) != 2 || !first.HasMore || first.Total != 3 {
		t.Errorf("Unexpected first batch: len=%d hasMore=%v total=%d", len(first.Data), first.HasMore, first.Total)
	}

	cursor := first.Data[len(first.Data)-1].PublishedAt
	next, err := s.QueryInfinite(ctx, models.InfiniteQuery{FeedID: feed.ID, Cursor: cursor, Limit: 2, MaxTotal: 100})
	if err != nil {
		t.Fatalf("QueryInfinite failed: %v", err)
	}
	if len(next.Data) != 2 || next.Data[0].ID != entries[2].ID {
		t.Errorf("Expected cursor to continue at entry 3, got %+v", next.Data)
	}

	all, err := s.QueryInfinite(ctx, models.InfiniteQuery{ExcludeInactiveFeeds: true, Limit: 50})
	if err != nil {
		t.Fatalf("QueryInfinite failed: %v", err)
	}
	if all.Total != 5 || all.HasMore {
		t.Errorf("Expected 5 entries from active feeds only, got total=%d hasMore=%v", all.Total, all.HasMore)
	}
}

func TestReadStateChanges(t *testing.T) {
	db := newTestDB(t)
	feed := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Active: true})
	bus := newRecordingBus()
	s := newTestEntryService(t, db, bus, 100, 10)
	entries := seedEntries(t, s, feed.ID, "a", "b", "c")
	ctx := context.Background()

	if err := s.MarkRead(ctx, "missing"); !core.IsCode(err, core.ErrCodeNotFound) {
		t.Errorf("Expected NOT_FOUND for missing entry, got %v", err)
	}

	if err := s.MarkRead(ctx, entries[0].ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	bus.reset()
	if err := s.MarkRead(ctx, entries[0].ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if len(bus.events) != 0 {
		t.Errorf("Marking an already read entry should broadcast nothing, got %d events", len(bus.events))
	}

	isRead, err := s.ToggleRead(ctx, entries[0].ID)
	if err != nil || isRead {
		t.Errorf("Expected toggle to mark unread, got %v %v", isRead, err)
	}

	count, err := s.UnreadCount(ctx, models.AllFeeds, true)
	if err != nil || count != 3 {
		t.Errorf("Expected 3 unread, got %d %v", count, err)
	}

	changed, err := s.MarkAllRead(ctx, feed.ID)
	if err != nil || changed != 3 {
		t.Errorf("Expected 3 entries marked read, got %d %v", changed, err)
	}

	badges := bus.ofType(broadcast.BadgeUpdate)
	if len(badges) == 0 {
		t.Fatal("Expected badge updates")
	}
	last := badges[len(badges)-1].Payload.(broadcast.BadgeUpdatePayload)
	if last.Count != 0 || last.Text != "" {
		t.Errorf("Expected empty badge after mark all read, got %+v", last)
	}
	if len(bus.ofType(broadcast.EntryReadChanged)) != 2 {
		t.Errorf("Expected 2 read change events, got %d", len(bus.ofType(broadcast.EntryReadChanged)))
	}
}

func TestUnreadCountWithoutActiveFeeds(t *testing.T) {
	db := newTestDB(t)
	feed := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Active: false})
	s := newTestEntryService(t, db, newRecordingBus(), 100, 10)
	seedEntries(t, s, feed.ID, "a")

	count, err := s.UnreadCount(context.Background(), models.AllFeeds, true)
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 unread with no active feeds, got %d", count)
	}
}

func TestInactiveFeedsExcludedFromAllFeedsScope(t *testing.T) {
	db := newTestDB(t)
	active := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Active: true})
	inactive := insertTestFeed(t, db, models.Feed{URL: "https://off.example.com/feed.xml", Active: false})
	s := newTestEntryService(t, db, newRecordingBus(), 100, 10)
	seedEntries(t, s, active.ID, "a", "b")
	seedEntries(t, s, inactive.ID, "x", "y", "z")
	ctx := context.Background()

	tests := []struct {
		name       string
		feedID     string
		activeOnly bool
		want       int
	}{
		{"all feeds", models.AllFeeds, false, 5},
		{"active feeds only", models.AllFeeds, true, 2},
		{"inactive feed by id", inactive.ID, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := s.UnreadCount(ctx, tt.feedID, tt.activeOnly)
			if err != nil {
				t.Fatalf("UnreadCount failed: %v", err)
			}
			if count != tt.want {
				t.Errorf("Expected %d unread, got %d", tt.want, count)
			}

			page, err := s.QueryInfinite(ctx, models.InfiniteQuery{
				FeedID:               tt.feedID,
				ExcludeInactiveFeeds: tt.activeOnly,
				Read:                 models.UnreadOnly,
				Limit:                50,
			})
			if err != nil {
				t.Fatalf("QueryInfinite failed: %v", err)
			}
			if page.Total != tt.want || len(page.Data) != tt.want {
				t.Errorf("Expected %d entries, got total=%d len=%d", tt.want, page.Total, len(page.Data))
			}
			if tt.feedID == models.AllFeeds && tt.activeOnly {
				for _, e := range page.Data {
					if e.FeedID != active.ID {
						t.Errorf("Entry %s from inactive feed leaked into the active scope", e.ID)
					}
				}
			}
		})
	}
}

func TestQueryWindowsMatchWithAndWithoutKeywords(t *testing.T) {
	db := newTestDB(t)
	feed := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Active: true})
	s := newTestEntryService(t, db, newRecordingBus(), 100, 10)
	seedEntries(t, s, feed.ID, "go 1", "go 2", "go 3", "go 4", "go 5")
	ctx := context.Background()

	plain, err := s.Query(ctx, models.EntryQuery{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	filtered, err := s.Query(ctx, models.EntryQuery{Page: 2, PageSize: 2, KeywordFilter: map[string][]string{feed.ID: {"go"}}})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if plain.Total != 5 || filtered.Total != 5 || len(plain.Data) != 2 || len(filtered.Data) != 2 {
		t.Fatalf("Unexpected windows: plain=%d/%d filtered=%d/%d",
			plain.Total, len(plain.Data), filtered.Total, len(filtered.Data))
	}
	for i := range plain.Data {
		if plain.Data[i].ID != filtered.Data[i].ID {
			t.Errorf("Window %d differs: %s vs %s", i, plain.Data[i].ID, filtered.Data[i].ID)
		}
	}
	if plain.Data[0].Title != "go 3" {
		t.Errorf("Expected second page to start at go 3, got %q", plain.Data[0].Title)
	}

	beyond, err := s.Query(ctx, models.EntryQuery{Page: 9, PageSize: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if beyond.Total != 5 || len(beyond.Data) != 0 || beyond.HasMore {
		t.Errorf("Expected an empty page past the end, got total=%d len=%d hasMore=%v",
			beyond.Total, len(beyond.Data), beyond.HasMore)
	}
}

func TestFavoriteMetadataAttached(t *testing.T) {
	db := newTestDB(t)
	feed := insertTestFeed(t, db, models.Feed{URL: "https://example.com/feed.xml", Active: true})
	bus := newRecordingBus()
	s := newTestEntryService(t, db, bus, 100, 10)
	entries := seedEntries(t, s, feed.ID, "a", "b", "c")
	favorites := NewFavoriteService(db, bus, testLogger())
	ctx := context.Background()

	byID, err := favorites.Add(ctx, models.FavoriteInput{ItemID: entries[0].ID, Title: "a"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	byLink, err := favorites.Add(ctx, models.FavoriteInput{Link: entries[1].Link, Title: "b"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	page, err := s.Query(ctx, models.EntryQuery{FeedID: feed.ID})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	want := map[string]string{entries[0].ID: byID.ID, entries[1].ID: byLink.ID}
	for _, e := range page.Data {
		if favID, ok := want[e.ID]; ok {
			if !e.IsFavorite || e.FavoriteID != favID {
				t.Errorf("Entry %s: expected favorite %s, got %v %q", e.ID, favID, e.IsFavorite, e.FavoriteID)
			}
		} else if e.IsFavorite {
			t.Errorf("Entry %s should not be a favorite", e.ID)
		}
	}
}

func TestMatchKeywordsAndBadgeText(t *testing.T) {
	matched := MatchKeywords("Breaking: GoLang 2 released", []string{"golang", "rust", " "})
	if len(matched) != 1 || matched[0] != "golang" {
		t.Errorf("Unexpected matches %v", matched)
	}

	tests := []struct {
		count int
		want  string
	}{
		{0, ""},
		{7, "7"},
		{999, "999"},
		{1000, "999+"},
	}
	for _, tt := range tests {
		if got := FormatBadgeText(tt.count); got != tt.want {
			t.Errorf("FormatBadgeText(%d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}
