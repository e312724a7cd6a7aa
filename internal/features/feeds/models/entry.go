package models

import "time"

// FallbackEntryTitle is stored for items that arrive without a title
const FallbackEntryTitle = "Untitled"

// AllFeeds selects every feed in entry queries and read-state operations
const AllFeeds = ""

// Entry represents one ingested feed item
type Entry struct {
	ID          string    `json:"id"`
	FeedID      string    `json:"feedId"`
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	Link        string    `json:"link,omitempty"`
	PubDate     string    `json:"pubDate,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	IngestedAt  time.Time `json:"ingestedAt"`
	IsRead      bool      `json:"isRead"`

	// Computed per query, never stored
	MatchedKeywords []string `json:"matchedKeywords,omitempty"`
	IsFavorite      bool     `json:"isFavorite"`
	FavoriteID      string   `json:"favoriteId,omitempty"`
}

// IngestResult summarizes one ingest batch
type IngestResult struct {
	Added      int     `json:"added"`
	Skipped    int     `json:"skipped"`
	NewEntries []Entry `json:"newEntries"`
}

// ReadFilter restricts queries by read state
type ReadFilter string

const (
	ReadAny    ReadFilter = ""
	ReadOnly   ReadFilter = "read"
	UnreadOnly ReadFilter = "unread"
)

// Pagination defaults
const (
	DefaultPageSize      = 50
	DefaultInfiniteLimit = 20
	DefaultInfiniteMax   = 100
)

// EntryQuery selects entries in offset/page mode
type EntryQuery struct {
	FeedID   string
	Read     ReadFilter
	Search   string
	Page     int
	PageSize int

	// KeywordFilter, when non-nil, keeps only entries whose title matches one
	// of the keywords registered for their feed.
	KeywordFilter map[string][]string
}

// EntryPage is the result of an offset/page query
type EntryPage struct {
	Data     []Entry `json:"data"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
	HasMore  bool    `json:"hasMore"`
}

// InfiniteQuery selects entries in cursor mode. Entries strictly older than
// Cursor are returned; a zero cursor starts from the newest entry.
type InfiniteQuery struct {
	FeedID               string
	Read                 ReadFilter
	Search               string
	Cursor               time.Time
	Limit                int
	MaxTotal             int
	ExcludeInactiveFeeds bool
	KeywordFilter        map[string][]string
}

// InfinitePage is the result of a cursor query
type InfinitePage struct {
	Data    []Entry `json:"data"`
	HasMore bool    `json:"hasMore"`
	Total   int     `json:"total"`
}
