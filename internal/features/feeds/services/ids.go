package services

import (
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/crypto/blake2b"

	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

// FeedID derives the stable id of a subscription from its URL. Distinct URLs
// may collide in principle; no collision handling is attempted.
func FeedID(feedURL string) string {
	sum := blake2b.Sum256([]byte(feedURL))
	return hex.EncodeToString(sum[:8])
}

// EntryID derives the dedup id of an item within a feed from the first
// non-blank of its guid, link and title. It reports false when the item
// has none of them.
func EntryID(feedID string, item models.ParsedItem) (string, bool) {
	for _, candidate := range []string{item.GUID, item.Link, item.Title} {
		if identifier := strings.TrimSpace(candidate); identifier != "" {
			return feedID + "_" + identifier, true
		}
	}
	return "", false
}

// ValidateFeedURL accepts absolute http and https URLs with a host
func ValidateFeedURL(feedURL string) error {
	u, err := url.Parse(feedURL)
	if err != nil {
		return core.NewInvalidURLError("feed URL does not parse", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return core.NewInvalidURLError("feed URL must use http or https", nil)
	}
	if u.Host == "" {
		return core.NewInvalidURLError("feed URL must include a host", nil)
	}
	return nil
}

// OriginPattern returns the host match pattern covering a URL,
// in the form scheme://host[:port]/*
func OriginPattern(feedURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(feedURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", core.NewInvalidURLError("cannot derive origin from URL", err)
	}
	return u.Scheme + "://" + strings.ToLower(u.Host) + "/*", nil
}
