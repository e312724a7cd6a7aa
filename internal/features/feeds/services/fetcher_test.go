package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"feedsentry/internal/core"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Blog</title>
    <link>https://example.com</link>
    <description>Posts</description>
    <item>
      <title>First post</title>
      <link>https://example.com/first</link>
      <guid>first-guid</guid>
      <author>alice@example.com (Alice)</author>
      <pubDate>Tue, 05 Mar 2024 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Second post</title>
      <link>https://example.com/second</link>
    </item>
  </channel>
</rss>`

const sampleAtom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Example</title>
  <entry>
    <title>Atom entry</title>
    <link href="https://example.com/atom-entry"/>
    <id>urn:uuid:1225c695</id>
    <updated>2024-03-05T10:00:00Z</updated>
  </entry>
</feed>`

func testSyncConfig() core.SyncConfig {
	cfg := core.DefaultSyncConfig()
	cfg.HTTPTimeout = 5 * time.Second
	cfg.RequestsPerSecondPerHost = 0
	return cfg
}

func TestFetcherParsesRSS(t *testing.T) {
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	fetcher := NewFetcherService(testSyncConfig(), testLogger())
	feed, err := fetcher.FetchFeed(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchFeed failed: %v", err)
	}

	if userAgent != core.DefaultUserAgent {
		t.Errorf("Expected user agent %q, got %q", core.DefaultUserAgent, userAgent)
	}
	if feed.Title != "Example Blog" {
		t.Errorf("Expected title, got %q", feed.Title)
	}
	if len(feed.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(feed.Items))
	}

	first := feed.Items[0]
	if first.GUID != "first-guid" || first.Link != "https://example.com/first" {
		t.Errorf("Unexpected first item %+v", first)
	}
	if first.IsoDate != "2024-03-05T10:00:00Z" {
		t.Errorf("Expected ISO date, got %q", first.IsoDate)
	}
	if first.PubDate == "" {
		t.Error("Expected raw pubDate to be kept")
	}
	if feed.Items[1].GUID != "" || feed.Items[1].IsoDate != "" {
		t.Errorf("Second item should have no guid or date, got %+v", feed.Items[1])
	}
}

func TestFetcherParsesAtom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleAtom))
	}))
	defer srv.Close()

	feed, err := NewFetcherService(testSyncConfig(), testLogger()).FetchFeed(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchFeed failed: %v", err)
	}
	if len(feed.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(feed.Items))
	}
	if got := feed.Items[0]; got.GUID != "urn:uuid:1225c695" || got.IsoDate != "2024-03-05T10:00:00Z" {
		t.Errorf("Unexpected atom item %+v", got)
	}
}

func TestFetcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("this is not a feed"))
	}))
	defer srv.Close()

	fetcher := NewFetcherService(testSyncConfig(), testLogger())
	if _, err := fetcher.FetchFeed(context.Background(), srv.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Expected HTTP 404 error, got %v", err)
	}
	if _, err := fetcher.FetchFeed(context.Background(), srv.URL+"/garbage"); err == nil {
		t.Error("Expected parse error for non-feed body")
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"Mon, 02 Jan 2006 15:04:05 MST", true},
		{"Mon, 02 Jan 2006 15:04:05 -0700", true},
		{"2006-01-02T15:04:05Z", true},
		{"2006-01-02", true},
		{"yesterday", false},
	}
	for _, tt := range tests {
		_, err := parseDate(tt.input)
		if (err == nil) != tt.ok {
			t.Errorf("parseDate(%q): expected ok=%v, got err=%v", tt.input, tt.ok, err)
		}
	}
}
