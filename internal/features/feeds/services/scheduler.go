package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"feedsentry/internal/broadcast"
	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

// SchedulerService polls due feeds on a recurring alarm. Feeds are processed
// one at a time and a wake-up that arrives during a cycle is dropped.
type SchedulerService struct {
	feeds    *FeedService
	entries  *EntryService
	fetcher  FeedFetcher
	gate     PermissionGate
	notifier *NotificationService
	bus      broadcast.Publisher
	alarm    Alarm
	config   *models.SchedulerConfig
	logger   *core.Logger
	now      Clock

	running atomic.Bool
	mu      sync.Mutex
	cadence time.Duration
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(
	feeds *FeedService,
	entries *EntryService,
	fetcher FeedFetcher,
	gate PermissionGate,
	notifier *NotificationService,
	bus broadcast.Publisher,
	alarm Alarm,
	config *models.SchedulerConfig,
	logger *core.Logger,
) *SchedulerService {
	return &SchedulerService{
		feeds:    feeds,
		entries:  entries,
		fetcher:  fetcher,
		gate:     gate,
		notifier: notifier,
		bus:      bus,
		alarm:    alarm,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Start registers the alarm at the current cadence and runs one cycle
// immediately.
func (s *SchedulerService) Start(ctx context.Context) error {
	feeds, err := s.feeds.List(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to compute cadence: %w", err)
	}
	cadence := s.Cadence(feeds)

	wakeCtx := context.WithoutCancel(ctx)
	s.mu.Lock()
	s.cadence = cadence
	s.alarm.Schedule(cadence, func() {
		if err := s.RunCycle(wakeCtx); err != nil {
			s.logger.Error("Poll cycle failed", "error", err)
		}
	})
	s.mu.Unlock()

	s.logger.Info("Started feed scheduler", "cadence", cadence, "active_feeds", len(feeds))

	if err := s.RunCycle(ctx); err != nil {
		s.logger.Error("Initial poll cycle failed", "error", err)
	}
	return nil
}

// Stop cancels future wake-ups. A cycle already running is not interrupted.
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarm.Cancel()
	s.cadence = 0
	s.logger.Info("Stopped feed scheduler")
}

// Restart re-reads the active feeds and re-registers the alarm
func (s *SchedulerService) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// CurrentCadence returns the registered wake-up interval, zero when stopped
func (s *SchedulerService) CurrentCadence() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cadence
}

// Running reports whether a cycle is in progress
func (s *SchedulerService) Running() bool {
	return s.running.Load()
}

// Handle restarts the scheduler when a topology change asks for it
func (s *SchedulerService) Handle(ctx context.Context, event broadcast.Event) error {
	if event.Type != broadcast.FeedUpdated {
		return nil
	}

	var payload broadcast.FeedUpdatedPayload
	switch p := event.Payload.(type) {
	case broadcast.FeedUpdatedPayload:
		payload = p
	case *broadcast.FeedUpdatedPayload:
		payload = *p
	default:
		return nil
	}
	if !payload.RequiresRestart {
		return nil
	}

	s.logger.Info("Restarting scheduler after feed change", "feed_id", payload.FeedID, "action", payload.Action)
	return s.Restart(context.WithoutCancel(ctx))
}

// Cadence is the shortest poll interval among feeds, floored at the
// configured minimum. Without feeds the default interval is used.
func (s *SchedulerService) Cadence(feeds []models.Feed) time.Duration {
	if len(feeds) == 0 {
		return s.config.DefaultPollInterval
	}

	cadence := time.Duration(0)
	for _, feed := range feeds {
		interval := time.Duration(feed.PollIntervalSeconds) * time.Second
		if cadence == 0 || interval < cadence {
			cadence = interval
		}
	}
	return max(cadence, s.config.MinPollInterval)
}

// IsDue reports whether a feed has never synced or waited its full interval
func (s *SchedulerService) IsDue(feed *models.Feed, now time.Time) bool {
	if feed.LastSyncAt == nil {
		return true
	}
	return now.Sub(*feed.LastSyncAt) >= time.Duration(feed.PollIntervalSeconds)*time.Second
}

// RunCycle polls every active feed that is due. It returns immediately when
// another cycle holds the running flag.
func (s *SchedulerService) RunCycle(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("Poll cycle already running, skipping wake-up")
		return nil
	}
	defer s.running.Store(false)

	feeds, err := s.feeds.List(ctx, true)
	if err != nil {
		return err
	}

	now := s.now()
	due := make([]models.Feed, 0, len(feeds))
	for i := range feeds {
		if s.IsDue(&feeds[i], now) {
			due = append(due, feeds[i])
		}
	}

	s.logger.Info("Starting poll cycle", "active", len(feeds), "due", len(due))
	summary := s.pollAll(ctx, due)
	s.logger.Info("Poll cycle completed", "feeds", summary.Feeds, "added", summary.Added, "failed", summary.Failed)

	s.entries.PublishBadge(ctx)
	return nil
}

// SyncAll polls every active feed regardless of when it last synced
func (s *SchedulerService) SyncAll(ctx context.Context) (*models.SyncSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, core.NewConflictError("a sync is already in progress", nil)
	}
	defer s.running.Store(false)

	feeds, err := s.feeds.List(ctx, true)
	if err != nil {
		return nil, err
	}

	summary := s.pollAll(ctx, feeds)
	s.entries.PublishBadge(ctx)
	return &summary, nil
}

// SyncOne polls a single feed immediately
func (s *SchedulerService) SyncOne(ctx context.Context, feedID string) (*models.SyncSummary, error) {
	feed, err := s.feeds.Get(ctx, feedID)
	if err != nil {
		return nil, err
	}

	summary := s.pollAll(ctx, []models.Feed{*feed})
	s.entries.PublishBadge(ctx)
	return &summary, nil
}

func (s *SchedulerService) pollAll(ctx context.Context, feeds []models.Feed) models.SyncSummary {
	summary := models.SyncSummary{Feeds: len(feeds)}
	for i := range feeds {
		res, err := s.pollFeed(ctx, &feeds[i])
		if err != nil {
			summary.Failed++
			continue
		}
		summary.Added += res.Added
		summary.Skipped += res.Skipped
	}
	return summary
}

// pollFeed runs the fetch and ingest of one feed and all of its bookkeeping
func (s *SchedulerService) pollFeed(ctx context.Context, feed *models.Feed) (*models.IngestResult, error) {
	logger := s.logger.With("feed_id", feed.ID)

	allowed, err := s.gate.IsAllowed(ctx, feed.URL)
	if err == nil && !allowed {
		err = core.NewPermissionDeniedError(PermissionDeniedMessage, nil)
	}
	if core.IsCode(err, core.ErrCodePermissionDenied) {
		logger.Warn("Skipping feed without host permission", "url", feed.URL)
		s.publish(ctx, broadcast.SyncFailed, broadcast.SyncFailedPayload{
			FeedID:       feed.ID,
			Title:        feed.DisplayTitle(),
			Error:        PermissionDeniedMessage,
			FailureCount: feed.ConsecutiveFailureCount,
		})
		return nil, err
	}
	if err != nil {
		return nil, s.handleFailure(ctx, feed, err)
	}

	s.publish(ctx, broadcast.SyncStarted, broadcast.SyncStartedPayload{FeedID: feed.ID, Title: feed.DisplayTitle()})

	parsed, err := s.fetcher.Fetch(ctx, feed.URL, s.config.Fetch)
	if err != nil {
		return nil, s.handleFailure(ctx, feed, err)
	}

	result, err := s.entries.Ingest(ctx, feed.ID, parsed.Items)
	if err != nil {
		return nil, s.handleFailure(ctx, feed, err)
	}

	if _, err := s.notifier.NotifyEntries(ctx, feed, result.NewEntries); err != nil {
		logger.Warn("Failed to deliver new entry alert", "error", err)
	}

	if err := s.feeds.RecordSuccess(ctx, feed.ID); err != nil {
		logger.Error("Failed to record sync success", "error", err)
	}

	s.publish(ctx, broadcast.SyncCompleted, broadcast.SyncCompletedPayload{
		FeedID:  feed.ID,
		Title:   feed.DisplayTitle(),
		Added:   result.Added,
		Skipped: result.Skipped,
	})
	if result.Added > 0 {
		s.publish(ctx, broadcast.EntriesAdded, broadcast.EntriesAddedPayload{FeedID: feed.ID, Count: result.Added})
	}

	logger.Info("Synced feed", "added", result.Added, "skipped", result.Skipped)
	return result, nil
}

func (s *SchedulerService) handleFailure(ctx context.Context, feed *models.Feed, cause error) error {
	logger := s.logger.With("feed_id", feed.ID)

	count, err := s.feeds.RecordFailure(ctx, feed.ID)
	if err != nil {
		logger.Error("Failed to record sync failure", "error", err)
		count = feed.ConsecutiveFailureCount + 1
	}
	logger.Warn("Feed sync failed", "failure_count", count, "error", cause)

	s.publish(ctx, broadcast.SyncFailed, broadcast.SyncFailedPayload{
		FeedID:       feed.ID,
		Title:        feed.DisplayTitle(),
		Error:        cause.Error(),
		FailureCount: count,
	})
	if err := s.notifier.NotifyFailure(ctx, feed, count); err != nil {
		logger.Warn("Failed to deliver failure warning", "error", err)
	}

	if feed.Active && count >= s.config.MaxFailureCount {
		s.publish(ctx, broadcast.FeedDisabled, broadcast.FeedDisabledPayload{
			FeedID: feed.ID,
			Title:  feed.DisplayTitle(),
			Reason: DisabledReason(count),
		})
		if err := s.notifier.NotifyDisabled(ctx, feed, count); err != nil {
			logger.Warn("Failed to deliver feed disabled alert", "error", err)
		}
	}

	return cause
}

func (s *SchedulerService) publish(ctx context.Context, eventType broadcast.EventType, payload any) {
	if err := s.bus.Publish(ctx, broadcast.NewEvent(eventType, payload)); err != nil {
		s.logger.Warn("Failed to broadcast event", "type", eventType, "error", err)
	}
}
