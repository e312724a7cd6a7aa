package models

// AlertPriority mirrors the priority levels of desktop notification systems
type AlertPriority int

const (
	PriorityLow    AlertPriority = 0
	PriorityNormal AlertPriority = 1
	PriorityHigh   AlertPriority = 2
)

// AlertKind identifies which rule produced an alert
type AlertKind string

const (
	AlertSingle          AlertKind = "single"
	AlertGeneralSummary  AlertKind = "general_summary"
	AlertCombinedSummary AlertKind = "combined_summary"
	AlertFailureWarning  AlertKind = "failure_warning"
	AlertFeedDisabled    AlertKind = "feed_disabled"
	AlertTest            AlertKind = "test"
)

// Alert is a user-facing notification. TargetURL is opened when the alert is
// clicked; it is empty for alerts without a click action.
type Alert struct {
	ID        string        `json:"id"`
	Kind      AlertKind     `json:"kind"`
	FeedID    string        `json:"feedId,omitempty"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Priority  AlertPriority `json:"priority"`
	TargetURL string        `json:"targetUrl,omitempty"`
	Total     int           `json:"total,omitempty"`
	Matched   int           `json:"matched,omitempty"`
}

// TestNotification is the diagnostics payload accepted by the trigger surface
type TestNotification struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Keywords []string `json:"keywords"`
	Source   string   `json:"source"`
}
