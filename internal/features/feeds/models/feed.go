package models

import (
	"strings"
	"time"
)

// FallbackFeedTitle is used when a subscription has neither an explicit nor a fetched title
const FallbackFeedTitle = "Untitled Feed"

// AppDisplayName is shown when neither an entry nor its feed has a title
const AppDisplayName = "Feed Sentry"

// Feed represents a subscription source
type Feed struct {
	ID                      string     `json:"id"`
	Title                   string     `json:"title"`
	URL                     string     `json:"url"`
	PollIntervalSeconds     int        `json:"pollIntervalSeconds"`
	NotifyOnNewItem         bool       `json:"notifyOnNewItem"`
	NotifyOnKeywordMatch    bool       `json:"notifyOnKeywordMatch"`
	Keywords                []string   `json:"keywords"`
	Active                  bool       `json:"active"`
	ConsecutiveFailureCount int        `json:"consecutiveFailureCount"`
	LastSyncAt              *time.Time `json:"lastSyncAt,omitempty"`
	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`
}

// KeywordMode reports whether keyword-match alerting is in effect
func (f *Feed) KeywordMode() bool {
	return f.NotifyOnKeywordMatch && len(f.Keywords) > 0
}

// DisplayTitle returns the trimmed title or the application name
func (f *Feed) DisplayTitle() string {
	if t := strings.TrimSpace(f.Title); t != "" {
		return t
	}
	return AppDisplayName
}

// SubscribeOptions carries the optional fields accepted when subscribing
type SubscribeOptions struct {
	Title                string   `json:"title"`
	PollIntervalSeconds  int      `json:"pollIntervalSeconds"`
	NotifyOnNewItem      bool     `json:"notifyOnNewItem"`
	NotifyOnKeywordMatch bool     `json:"notifyOnKeywordMatch"`
	Keywords             []string `json:"keywords"`
}

// FeedPatch is a partial update. Identity fields (id, url, createdAt) are
// intentionally absent so they cannot be changed.
type FeedPatch struct {
	Title                *string  `json:"title"`
	PollIntervalSeconds  *int     `json:"pollIntervalSeconds"`
	NotifyOnNewItem      *bool    `json:"notifyOnNewItem"`
	NotifyOnKeywordMatch *bool    `json:"notifyOnKeywordMatch"`
	Keywords             []string `json:"keywords"`
	Active               *bool    `json:"active"`
}

// Apply returns a copy of feed with the patch applied and whether the
// change affects scheduling (poll interval or active flag changed value).
func (p FeedPatch) Apply(feed Feed) (Feed, bool) {
	updated := feed
	requiresRestart := false

	if p.Title != nil {
		updated.Title = strings.TrimSpace(*p.Title)
	}
	if p.PollIntervalSeconds != nil {
		if *p.PollIntervalSeconds != feed.PollIntervalSeconds {
			requiresRestart = true
		}
		updated.PollIntervalSeconds = *p.PollIntervalSeconds
	}
	if p.NotifyOnNewItem != nil {
		updated.NotifyOnNewItem = *p.NotifyOnNewItem
	}
	if p.NotifyOnKeywordMatch != nil {
		updated.NotifyOnKeywordMatch = *p.NotifyOnKeywordMatch
	}
	if p.Keywords != nil {
		updated.Keywords = NormalizeKeywords(p.Keywords)
	}
	if p.Active != nil {
		if *p.Active != feed.Active {
			requiresRestart = true
		}
		updated.Active = *p.Active
	}

	return updated, requiresRestart
}

// NormalizeKeywords trims, drops blanks and removes case-insensitive duplicates,
// keeping the first spelling seen.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	return out
}
