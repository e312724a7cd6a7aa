package services

import (
	"context"
	"fmt"
	"time"

	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

// PermissionDeniedMessage is reported when a feed host has not been granted
const PermissionDeniedMessage = "Site access not granted. Please allow host permission in Feed Management."

// GatewayService applies the host permission check and retry policy around a FeedClient
type GatewayService struct {
	client FeedClient
	gate   PermissionGate
	logger *core.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewGatewayService creates a new gateway service
func NewGatewayService(client FeedClient, gate PermissionGate, logger *core.Logger) *GatewayService {
	return &GatewayService{
		client: client,
		gate:   gate,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Fetch retrieves a feed, retrying up to opts.MaxRetries times with a
// linearly growing delay. Permission is checked once, before any attempt.
func (g *GatewayService) Fetch(ctx context.Context, feedURL string, opts models.FetchOptions) (*models.ParsedFeed, error) {
	allowed, err := g.gate.IsAllowed(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, core.NewPermissionDeniedError(PermissionDeniedMessage, nil)
	}

	attempts := max(opts.MaxRetries, 0) + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		feed, err := g.client.FetchFeed(ctx, feedURL)
		if err == nil {
			return feed, nil
		}
		lastErr = err

		g.logger.Warn("Feed fetch attempt failed", "url", feedURL, "attempt", attempt, "of", attempts, "error", err)
		if attempt == attempts {
			break
		}
		if err := g.sleep(ctx, opts.RetryDelay*time.Duration(attempt)); err != nil {
			return nil, core.NewFetchFailedError("fetch canceled", err)
		}
	}

	return nil, core.NewFetchFailedError(fmt.Sprintf("failed to fetch %s after %d attempts", feedURL, attempts), lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
