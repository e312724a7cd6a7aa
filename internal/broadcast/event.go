// Package broadcast delivers typed sync-engine events to in-process handlers
// and, optionally, to external subscribers over Redis.
package broadcast

import "time"

// EventType names an event in the broadcast taxonomy
type EventType string

const (
	SyncStarted            EventType = "sync_started"
	SyncCompleted          EventType = "sync_completed"
	SyncFailed             EventType = "sync_failed"
	FeedDisabled           EventType = "feed_disabled"
	FeedUpdated            EventType = "feed_updated"
	EntriesAdded           EventType = "entries_added"
	EntryReadChanged       EventType = "entry_read_changed"
	BadgeUpdate            EventType = "badge_update"
	FavoritesUpdated       EventType = "favorites_updated"
	FavoriteFoldersUpdated EventType = "favorite_folders_updated"
)

// Event is the envelope delivered to handlers
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps a payload with its type and the current time
func NewEvent(eventType EventType, payload any) Event {
	return Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
}

type SyncStartedPayload struct {
	FeedID string `json:"feedId"`
	Title  string `json:"title"`
}

type SyncCompletedPayload struct {
	FeedID  string `json:"feedId"`
	Title   string `json:"title"`
	Added   int    `json:"added"`
	Skipped int    `json:"skipped"`
}

type SyncFailedPayload struct {
	FeedID       string `json:"feedId"`
	Title        string `json:"title"`
	Error        string `json:"error"`
	FailureCount int    `json:"failureCount"`
}

type FeedDisabledPayload struct {
	FeedID string `json:"feedId"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// FeedAction describes a subscription topology change
type FeedAction string

const (
	FeedCreated FeedAction = "created"
	FeedChanged FeedAction = "updated"
	FeedDeleted FeedAction = "deleted"
)

type FeedUpdatedPayload struct {
	FeedID          string     `json:"feedId"`
	Action          FeedAction `json:"action"`
	RequiresRestart bool       `json:"requiresRestart"`
}

type EntriesAddedPayload struct {
	FeedID string `json:"feedId"`
	Count  int    `json:"count"`
}

// EntryReadChangedPayload reports read-state changes. EntryID is empty for
// bulk changes; FeedID is empty when every feed was affected.
type EntryReadChangedPayload struct {
	EntryID string `json:"entryId,omitempty"`
	FeedID  string `json:"feedId,omitempty"`
	IsRead  bool   `json:"isRead"`
}

type BadgeUpdatePayload struct {
	Count int    `json:"count"`
	Text  string `json:"text"`
}

type FavoritesUpdatedPayload struct {
	FavoriteID string `json:"favoriteId,omitempty"`
	FolderID   string `json:"folderId,omitempty"`
	ItemID     string `json:"itemId,omitempty"`
	Action     string `json:"action"`
}

type FavoriteFoldersUpdatedPayload struct {
	FolderID string `json:"folderId"`
	Action   string `json:"action"`
}
