package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"feedsentry/internal/features/feeds/models"
)

func newTestNotifier() (*NotificationService, *recordingSink) {
	sink := &recordingSink{}
	return NewNotificationService(sink, "http://localhost:4000", time.Hour, testLogger()), sink
}

func entriesTitled(titles ...string) []models.Entry {
	out := make([]models.Entry, len(titles))
	for i, title := range titles {
		out[i] = models.Entry{ID: "e" + title, Title: title, Link: "https://example.com/" + title}
	}
	return out
}

func TestDecideTable(t *testing.T) {
	n, _ := newTestNotifier()
	keywords := []string{"go"}

	tests := []struct {
		name      string
		onNew     bool
		onKeyword bool
		entries   []models.Entry
		kind      models.AlertKind
		total     int
		matched   int
	}{
		{"both off", false, false, entriesTitled("go 1", "go 2"), "", 0, 0},
		{"keyword only, no match", false, true, entriesTitled("rust", "zig"), "", 0, 0},
		{"keyword only, one match", false, true, entriesTitled("go news", "zig"), models.AlertSingle, 1, 1},
		{"keyword only, many matches", false, true, entriesTitled("go 1", "go 2", "zig"), models.AlertCombinedSummary, 3, 2},
		{"new only, none", true, false, nil, "", 0, 0},
		{"new only, one", true, false, entriesTitled("zig"), models.AlertSingle, 1, 0},
		{"new only, many", true, false, entriesTitled("a", "b"), models.AlertGeneralSummary, 2, 0},
		{"both, none", true, true, nil, "", 0, 0},
		{"both, one unmatched", true, true, entriesTitled("zig"), models.AlertSingle, 1, 0},
		{"both, one matched", true, true, entriesTitled("go news"), models.AlertSingle, 1, 1},
		{"both, many unmatched", true, true, entriesTitled("a", "b", "c"), models.AlertGeneralSummary, 3, 0},
		{"both, three with one match", true, true, entriesTitled("go news", "b", "c"), models.AlertCombinedSummary, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := &models.Feed{
				ID:                   "f1",
				Title:                "Example",
				NotifyOnNewItem:      tt.onNew,
				NotifyOnKeywordMatch: tt.onKeyword,
				Keywords:             keywords,
			}
			alert := n.Decide(feed, tt.entries)

			if tt.kind == "" {
				if alert != nil {
					t.Errorf("Expected no alert, got %+v", alert)
				}
				return
			}
			if alert == nil {
				t.Fatalf("Expected %s alert, got none", tt.kind)
			}
			if alert.Kind != tt.kind || alert.Total != tt.total || alert.Matched != tt.matched {
				t.Errorf("Expected %s total=%d matched=%d, got %s total=%d matched=%d",
					tt.kind, tt.total, tt.matched, alert.Kind, alert.Total, alert.Matched)
			}
		})
	}
}

func TestDecideKeywordFlagWithoutKeywords(t *testing.T) {
	n, _ := newTestNotifier()
	feed := &models.Feed{ID: "f1", NotifyOnKeywordMatch: true}
	if alert := n.Decide(feed, entriesTitled("anything")); alert != nil {
		t.Errorf("Keyword mode without keywords should stay silent, got %+v", alert)
	}
}

func TestAlertContent(t *testing.T) {
	n, _ := newTestNotifier()
	feed := &models.Feed{ID: "f1", Title: "Example", NotifyOnNewItem: true, NotifyOnKeywordMatch: true, Keywords: []string{"go"}}

	single := n.Decide(feed, entriesTitled("go news"))
	if single.Title != "go news" || single.Message != "Example" || single.TargetURL != "https://example.com/go news" {
		t.Errorf("Unexpected single alert %+v", single)
	}

	noLink := []models.Entry{{ID: "x", Title: "No link"}}
	if alert := n.Decide(feed, noLink); alert.TargetURL != "http://localhost:4000/api/feeds/f1/entries" {
		t.Errorf("Expected feed list fallback, got %q", alert.TargetURL)
	}

	general := n.Decide(feed, entriesTitled("a", "b"))
	if general.Message != "RSS subscription updated with 2 new items. Click to view!" {
		t.Errorf("Unexpected general message %q", general.Message)
	}
	if strings.Contains(general.TargetURL, "keywordFilter") {
		t.Errorf("General summary should open the unfiltered list, got %q", general.TargetURL)
	}

	combined := n.Decide(feed, entriesTitled("go 1", "b", "c"))
	if combined.Message != "RSS subscription updated with 3 new items, 1 matched keywords. Click to view!" {
		t.Errorf("Unexpected combined message %q", combined.Message)
	}
	if combined.TargetURL != "http://localhost:4000/api/feeds/f1/entries?keywordFilter=true" {
		t.Errorf("Combined summary should open the filtered list, got %q", combined.TargetURL)
	}
}

func TestClickAndCloseReleaseTargets(t *testing.T) {
	n, sink := newTestNotifier()
	ctx := context.Background()
	feed := &models.Feed{ID: "f1", Title: "Example", NotifyOnNewItem: true}

	clicked, err := n.NotifyEntries(ctx, feed, entriesTitled("a"))
	if err != nil {
		t.Fatalf("NotifyEntries failed: %v", err)
	}
	closed, err := n.NotifyEntries(ctx, feed, entriesTitled("b", "c"))
	if err != nil {
		t.Fatalf("NotifyEntries failed: %v", err)
	}
	if n.PendingCount() != 2 {
		t.Fatalf("Expected 2 pending targets, got %d", n.PendingCount())
	}

	target, ok, err := n.HandleClick(ctx, clicked.ID)
	if err != nil || !ok || target != "https://example.com/a" {
		t.Errorf("Unexpected click result %q %v %v", target, ok, err)
	}
	if len(sink.cleared) != 1 || sink.cleared[0] != clicked.ID {
		t.Errorf("Expected alert to be cleared on click, got %v", sink.cleared)
	}
	if _, ok, _ := n.HandleClick(ctx, clicked.ID); ok {
		t.Error("A clicked alert should not resolve twice")
	}

	n.HandleClosed(closed.ID)
	if n.PendingCount() != 0 {
		t.Errorf("Expected no pending targets, got %d", n.PendingCount())
	}
}

func TestFailureAndDisabledAlerts(t *testing.T) {
	n, sink := newTestNotifier()
	ctx := context.Background()
	feed := &models.Feed{ID: "f1", Title: "Example"}

	for count := 1; count <= 25; count++ {
		if err := n.NotifyFailure(ctx, feed, count); err != nil {
			t.Fatalf("NotifyFailure failed: %v", err)
		}
	}
	warnings := sink.ofKind(models.AlertFailureWarning)
	if len(warnings) != 2 {
		t.Fatalf("Expected warnings at 10 and 20, got %d", len(warnings))
	}
	if warnings[0].Message != `"Example" has failed 10 times. Check your feed URL.` {
		t.Errorf("Unexpected warning message %q", warnings[0].Message)
	}

	if err := n.NotifyDisabled(ctx, feed, 100); err != nil {
		t.Fatalf("NotifyDisabled failed: %v", err)
	}
	disabled := sink.ofKind(models.AlertFeedDisabled)
	if len(disabled) != 1 || disabled[0].Priority != models.PriorityHigh {
		t.Fatalf("Expected one high priority disabled alert, got %+v", disabled)
	}
	if disabled[0].Message != `"Example" has been disabled: Failed 100 consecutive times` {
		t.Errorf("Unexpected disabled message %q", disabled[0].Message)
	}
}

func TestSendTest(t *testing.T) {
	n, _ := newTestNotifier()
	ctx := context.Background()

	alert, err := n.SendTest(ctx, models.TestNotification{Source: "options", Keywords: []string{"go", "rust"}})
	if err != nil {
		t.Fatalf("SendTest failed: %v", err)
	}
	if alert.Title != "Test Notification - options" {
		t.Errorf("Unexpected title %q", alert.Title)
	}
	if !strings.HasSuffix(alert.Message, "go, rust") {
		t.Errorf("Expected keywords in message, got %q", alert.Message)
	}

	custom, err := n.SendTest(ctx, models.TestNotification{Title: "Hi", Message: "There", Keywords: []string{"go"}})
	if err != nil {
		t.Fatalf("SendTest failed: %v", err)
	}
	if custom.Title != "Hi" || custom.Message != "There" {
		t.Errorf("Explicit title and message should win, got %+v", custom)
	}
}
