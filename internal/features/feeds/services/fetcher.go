package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

// FetcherService downloads and parses RSS, Atom and JSON feeds
type FetcherService struct {
	client    *http.Client
	userAgent string
	limiter   *hostLimiter
	logger    *core.Logger
}

// NewFetcherService creates a new fetcher service
func NewFetcherService(cfg core.SyncConfig, logger *core.Logger) *FetcherService {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = time.Duration(core.DefaultHTTPTimeoutSeconds) * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = core.DefaultUserAgent
	}

	return &FetcherService{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		limiter:   newHostLimiter(cfg.RequestsPerSecondPerHost),
		logger:    logger,
	}
}

// FetchFeed performs one GET and parses the response body
func (s *FetcherService) FetchFeed(ctx context.Context, feedURL string) (*models.ParsedFeed, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}
	if err := s.limiter.wait(ctx, strings.ToLower(u.Host)); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml;q=0.9, */*;q=0.8")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	parsed := convertFeed(feed)
	s.logger.Debug("Fetched feed", "url", feedURL, "items", len(parsed.Items), "duration", time.Since(start))
	return parsed, nil
}

func convertFeed(feed *gofeed.Feed) *models.ParsedFeed {
	parsed := &models.ParsedFeed{
		Title:       strings.TrimSpace(feed.Title),
		Link:        feed.Link,
		Description: feed.Description,
		Items:       make([]models.ParsedItem, 0, len(feed.Items)),
	}

	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		p := models.ParsedItem{
			GUID:    item.GUID,
			Title:   item.Title,
			Link:    item.Link,
			PubDate: item.Published,
		}
		if item.Author != nil {
			p.Author = item.Author.Name
		} else if len(item.Authors) > 0 && item.Authors[0] != nil {
			p.Author = item.Authors[0].Name
		}
		switch {
		case item.PublishedParsed != nil:
			p.IsoDate = item.PublishedParsed.UTC().Format(time.RFC3339)
		case item.UpdatedParsed != nil:
			p.IsoDate = item.UpdatedParsed.UTC().Format(time.RFC3339)
		}
		if p.PubDate == "" {
			p.PubDate = item.Updated
		}
		parsed.Items = append(parsed.Items, p)
	}

	return parsed
}

// hostLimiter keeps one token bucket per host
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
}

func newHostLimiter(perSecond float64) *hostLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
	}
}

func (h *hostLimiter) wait(ctx context.Context, host string) error {
	h.mu.Lock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.limit, 1)
		h.limiters[host] = l
	}
	h.mu.Unlock()

	return l.Wait(ctx)
}

func parseDate(dateStr string) (time.Time, error) {
	// Formats seen in the wild that RFC3339 does not cover
	formats := []string{
		time.RFC1123,
		time.RFC1123Z,
		time.RFC822,
		time.RFC822Z,
		time.RFC3339Nano,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05-07:00",
		"2006-01-02 15:04:05",
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"02 Jan 2006 15:04:05 MST",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}
