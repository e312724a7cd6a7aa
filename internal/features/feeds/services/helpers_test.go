package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"feedsentry/internal/broadcast"
	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/migrations"
	"feedsentry/internal/features/feeds/models"

	_ "modernc.org/sqlite"
)

func testLogger() *core.Logger {
	return core.NewLoggerWithLevel(io.Discard, "error")
}

func newTestDB(t *testing.T) *core.Database {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	db := core.NewDatabase(sqlDB, core.DriverSQLite, testLogger())
	if err := migrations.NewManager(db, testLogger()).Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// fakeClock hands out a fixed time that tests can advance
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingBus keeps every published event and can fail selected types
type recordingBus struct {
	mu     sync.Mutex
	events []broadcast.Event
	failOn map[broadcast.EventType]error
}

func newRecordingBus() *recordingBus {
	return &recordingBus{failOn: make(map[broadcast.EventType]error)}
}

func (b *recordingBus) Publish(ctx context.Context, event broadcast.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return b.failOn[event.Type]
}

func (b *recordingBus) ofType(eventType broadcast.EventType) []broadcast.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcast.Event
	for _, e := range b.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// stubClient serves parsed feeds by URL and counts calls
type stubClient struct {
	mu    sync.Mutex
	feeds map[string]*models.ParsedFeed
	errs  map[string]error
	calls map[string]int
}

func newStubClient() *stubClient {
	return &stubClient{
		feeds: make(map[string]*models.ParsedFeed),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (c *stubClient) FetchFeed(ctx context.Context, feedURL string) (*models.ParsedFeed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[feedURL]++
	if err := c.errs[feedURL]; err != nil {
		return nil, err
	}
	if feed, ok := c.feeds[feedURL]; ok {
		return feed, nil
	}
	return nil, errors.New("no such feed")
}

func (c *stubClient) callCount(feedURL string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[feedURL]
}

func (c *stubClient) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

// stubGate allows everything except the listed URLs
type stubGate struct {
	denied map[string]bool
}

func (g *stubGate) IsAllowed(ctx context.Context, feedURL string) (bool, error) {
	return !g.denied[feedURL], nil
}

// recordingSink keeps delivered and cleared alerts
type recordingSink struct {
	mu      sync.Mutex
	alerts  []models.Alert
	cleared []string
}

func (s *recordingSink) Deliver(ctx context.Context, alert models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *recordingSink) Clear(ctx context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, alertID)
	return nil
}

func (s *recordingSink) ofKind(kind models.AlertKind) []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Alert
	for _, a := range s.alerts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// manualAlarm records registrations without starting timers
type manualAlarm struct {
	mu        sync.Mutex
	interval  time.Duration
	wake      func()
	scheduled int
	cancelled int
}

func (a *manualAlarm) Schedule(interval time.Duration, wake func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interval = interval
	a.wake = wake
	a.scheduled++
}

func (a *manualAlarm) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.wake = nil
	a.cancelled++
}

func testLimits() FeedLimits {
	return FeedLimits{
		MinPollIntervalSeconds:     60,
		DefaultPollIntervalSeconds: 600,
		MaxFailureCount:            5,
	}
}

func noRetry() models.FetchOptions {
	return models.FetchOptions{MaxRetries: 0}
}

// insertTestFeed stores a feed row directly, bypassing subscribe
func insertTestFeed(t *testing.T, db *core.Database, feed models.Feed) *models.Feed {
	t.Helper()
	if feed.ID == "" {
		feed.ID = FeedID(feed.URL)
	}
	if feed.PollIntervalSeconds == 0 {
		feed.PollIntervalSeconds = 600
	}
	if feed.CreatedAt.IsZero() {
		feed.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		feed.UpdatedAt = feed.CreatedAt
	}
	if err := insertFeed(context.Background(), db, &feed); err != nil {
		t.Fatalf("Failed to insert feed: %v", err)
	}
	return &feed
}

func item(guid, title string, published time.Time) models.ParsedItem {
	return models.ParsedItem{
		GUID:    guid,
		Title:   title,
		Link:    "https://example.com/" + guid,
		IsoDate: published.UTC().Format(time.RFC3339),
	}
}
