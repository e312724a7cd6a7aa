package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

const (
	failureWarningEvery = 10

	testNotificationTitle   = "Test Notification"
	testNotificationMessage = "This is a test notification from Feed Sentry."
)

// NotificationService decides which alert a sync result deserves, delivers it
// and remembers where clicking it should lead until it is clicked or closed.
type NotificationService struct {
	sink    AlertSink
	pending *cache.Cache
	baseURL string
	logger  *core.Logger
}

// NewNotificationService creates a new notification service. Click targets
// not resolved within ttl are forgotten.
func NewNotificationService(sink AlertSink, baseURL string, ttl time.Duration, logger *core.Logger) *NotificationService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &NotificationService{
		sink:    sink,
		pending: cache.New(ttl, ttl/2),
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Decide returns the alert for a batch of newly ingested entries, or nil
// when the feed's settings call for silence.
func (s *NotificationService) Decide(feed *models.Feed, entries []models.Entry) *models.Alert {
	keywordMode := feed.KeywordMode()
	if !feed.NotifyOnNewItem && !keywordMode {
		return nil
	}

	var matched []models.Entry
	if keywordMode {
		annotated := make([]models.Entry, len(entries))
		for i, e := range entries {
			if hits := MatchKeywords(e.Title, feed.Keywords); len(hits) > 0 {
				e.MatchedKeywords = hits
				matched = append(matched, e)
			}
			annotated[i] = e
		}
		entries = annotated
	}

	total := len(entries)
	if !feed.NotifyOnNewItem {
		switch len(matched) {
		case 0:
			return nil
		case 1:
			return s.singleAlert(feed, matched[0])
		default:
			return s.combinedAlert(feed, total, len(matched))
		}
	}

	switch {
	case total == 0:
		return nil
	case total == 1:
		return s.singleAlert(feed, entries[0])
	case len(matched) == 0:
		return s.generalAlert(feed, total)
	default:
		return s.combinedAlert(feed, total, len(matched))
	}
}

// NotifyEntries decides and delivers the alert for new entries
func (s *NotificationService) NotifyEntries(ctx context.Context, feed *models.Feed, entries []models.Entry) (*models.Alert, error) {
	alert := s.Decide(feed, entries)
	if alert == nil {
		return nil, nil
	}
	if err := s.Notify(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// NotifyFailure warns on every tenth consecutive failure
func (s *NotificationService) NotifyFailure(ctx context.Context, feed *models.Feed, failureCount int) error {
	if failureCount < failureWarningEvery || failureCount%failureWarningEvery != 0 {
		return nil
	}
	return s.Notify(ctx, &models.Alert{
		Kind:     models.AlertFailureWarning,
		FeedID:   feed.ID,
		Title:    "Feed Sync Warning",
		Message:  fmt.Sprintf("%q has failed %d times. Check your feed URL.", feed.DisplayTitle(), failureCount),
		Priority: models.PriorityNormal,
	})
}

// NotifyDisabled tells the user a feed was switched off
func (s *NotificationService) NotifyDisabled(ctx context.Context, feed *models.Feed, failureCount int) error {
	return s.Notify(ctx, &models.Alert{
		Kind:     models.AlertFeedDisabled,
		FeedID:   feed.ID,
		Title:    "Feed Disabled",
		Message:  fmt.Sprintf("%q has been disabled: %s", feed.DisplayTitle(), DisabledReason(failureCount)),
		Priority: models.PriorityHigh,
	})
}

// DisabledReason describes why a feed was deactivated
func DisabledReason(failureCount int) string {
	return fmt.Sprintf("Failed %d consecutive times", failureCount)
}

// SendTest delivers a diagnostics alert
func (s *NotificationService) SendTest(ctx context.Context, payload models.TestNotification) (*models.Alert, error) {
	title := payload.Title
	if title == "" {
		title = testNotificationTitle
		if payload.Source != "" {
			title += " - " + payload.Source
		}
	}

	message := payload.Message
	if message == "" {
		message = testNotificationMessage
		if keywords := models.NormalizeKeywords(payload.Keywords); len(keywords) > 0 {
			message += " Matched keywords: " + strings.Join(keywords, ", ")
		}
	}

	alert := &models.Alert{
		Kind:     models.AlertTest,
		Title:    title,
		Message:  message,
		Priority: models.PriorityNormal,
	}
	if err := s.Notify(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Notify delivers an alert and tracks its click target
func (s *NotificationService) Notify(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if err := s.sink.Deliver(ctx, *alert); err != nil {
		return fmt.Errorf("failed to deliver alert %s: %w", alert.ID, err)
	}
	if alert.TargetURL != "" {
		s.pending.SetDefault(alert.ID, alert.TargetURL)
	}

	s.logger.Debug("Delivered alert", "alert_id", alert.ID, "kind", alert.Kind, "feed_id", alert.FeedID)
	return nil
}

// HandleClick resolves a clicked alert to its target and acknowledges it.
// It reports false when the alert has no tracked target.
func (s *NotificationService) HandleClick(ctx context.Context, alertID string) (string, bool, error) {
	value, ok := s.pending.Get(alertID)
	if !ok {
		return "", false, nil
	}
	s.pending.Delete(alertID)

	if err := s.sink.Clear(ctx, alertID); err != nil {
		s.logger.Warn("Failed to clear alert", "alert_id", alertID, "error", err)
	}
	return value.(string), true, nil
}

// HandleClosed forgets the target of a dismissed alert
func (s *NotificationService) HandleClosed(alertID string) {
	s.pending.Delete(alertID)
}

// PendingCount returns how many click targets are being tracked
func (s *NotificationService) PendingCount() int {
	return s.pending.ItemCount()
}

func (s *NotificationService) singleAlert(feed *models.Feed, entry models.Entry) *models.Alert {
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		title = feed.DisplayTitle()
	}
	target := strings.TrimSpace(entry.Link)
	if target == "" {
		target = s.entriesURL(feed.ID, false)
	}
	return &models.Alert{
		Kind:      models.AlertSingle,
		FeedID:    feed.ID,
		Title:     title,
		Message:   feed.DisplayTitle(),
		Priority:  models.PriorityNormal,
		TargetURL: target,
		Total:     1,
		Matched:   matchedCount(entry),
	}
}

func matchedCount(entry models.Entry) int {
	if len(entry.MatchedKeywords) > 0 {
		return 1
	}
	return 0
}

func (s *NotificationService) generalAlert(feed *models.Feed, total int) *models.Alert {
	return &models.Alert{
		Kind:      models.AlertGeneralSummary,
		FeedID:    feed.ID,
		Title:     feed.DisplayTitle(),
		Message:   fmt.Sprintf("RSS subscription updated with %d new items. Click to view!", total),
		Priority:  models.PriorityNormal,
		TargetURL: s.entriesURL(feed.ID, false),
		Total:     total,
	}
}

func (s *NotificationService) combinedAlert(feed *models.Feed, total, matched int) *models.Alert {
	return &models.Alert{
		Kind:      models.AlertCombinedSummary,
		FeedID:    feed.ID,
		Title:     feed.DisplayTitle(),
		Message:   fmt.Sprintf("RSS subscription updated with %d new items, %d matched keywords. Click to view!", total, matched),
		Priority:  models.PriorityNormal,
		TargetURL: s.entriesURL(feed.ID, true),
		Total:     total,
		Matched:   matched,
	}
}

func (s *NotificationService) entriesURL(feedID string, keywordFilter bool) string {
	target := s.baseURL + "/api/feeds/" + feedID + "/entries"
	if keywordFilter {
		target += "?keywordFilter=true"
	}
	return target
}
