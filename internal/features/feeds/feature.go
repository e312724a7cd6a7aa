package feeds

import (
	"context"
	"fmt"

	"feedsentry/internal/broadcast"
	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/handlers"
	"feedsentry/internal/features/feeds/migrations"
	"feedsentry/internal/features/feeds/models"
	"feedsentry/internal/features/feeds/services"
	"feedsentry/internal/mailer"
)

// Feature is the feed subscription sync engine
type Feature struct {
	*core.BaseFeature
	config              *Config
	migrationMgr        *migrations.Manager
	fetcherService      *services.FetcherService
	permissionService   *services.PermissionService
	gatewayService      *services.GatewayService
	feedService         *services.FeedService
	entryService        *services.EntryService
	favoriteService     *services.FavoriteService
	notificationService *services.NotificationService
	schedulerService    *services.SchedulerService
	handlers            *handlers.Handlers
}

// NewFeature builds the services of the feeds feature and subscribes the
// scheduler to topology changes on bus.
func NewFeature(logger *core.Logger, db *core.Database, bus *broadcast.Bus, config *Config) *Feature {
	base := core.NewBaseFeature("feeds", "Feed subscription sync engine", config.Enabled, logger, db)
	featureLogger := base.Logger()

	migrationMgr := migrations.NewManager(db, featureLogger)

	fetcherService := services.NewFetcherService(config.Sync, featureLogger)
	permissionService := services.NewPermissionService(db, config.Permissions, featureLogger)
	gatewayService := services.NewGatewayService(fetcherService, permissionService, featureLogger)

	feedService := services.NewFeedService(db, bus, gatewayService, config.feedLimits(), featureLogger)
	entryService := services.NewEntryService(db, bus, config.retention(), featureLogger)
	favoriteService := services.NewFavoriteService(db, bus, featureLogger)

	var sink services.AlertSink = services.NewLogSink(featureLogger)
	if config.Alerts.AlertRecipient != "" {
		m := mailer.New(config.Alerts.SMTP2GOAPIKey, config.Alerts.SMTP2GOSender)
		sink = services.MultiSink{sink, services.NewMailSink(m, config.Alerts.AlertRecipient, models.PriorityNormal)}
	}
	notificationService := services.NewNotificationService(sink, config.BaseURL, config.Alerts.PendingTTL, featureLogger)

	schedulerService := services.NewSchedulerService(
		feedService,
		entryService,
		gatewayService,
		permissionService,
		notificationService,
		bus,
		services.NewTickerAlarm(),
		config.scheduler(),
		featureLogger,
	)
	bus.Follow("scheduler", schedulerService)

	return &Feature{
		BaseFeature:         base,
		config:              config,
		migrationMgr:        migrationMgr,
		fetcherService:      fetcherService,
		permissionService:   permissionService,
		gatewayService:      gatewayService,
		feedService:         feedService,
		entryService:        entryService,
		favoriteService:     favoriteService,
		notificationService: notificationService,
		schedulerService:    schedulerService,
		handlers: handlers.NewHandlers(
			featureLogger,
			feedService,
			entryService,
			favoriteService,
			permissionService,
			schedulerService,
			notificationService,
		),
	}
}

// Init migrates the schema, seeds host grants and starts polling
func (f *Feature) Init(ctx context.Context) error {
	if err := f.BaseFeature.Init(ctx); err != nil {
		return err
	}

	if err := f.config.Validate(); err != nil {
		return fmt.Errorf("invalid feeds configuration: %w", err)
	}

	if err := f.migrationMgr.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := f.permissionService.Seed(ctx, f.config.Permissions.AllowedHosts); err != nil {
		return fmt.Errorf("failed to seed host permissions: %w", err)
	}

	if err := f.schedulerService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	f.Logger().Info("Feeds feature initialized successfully")
	return nil
}

// Routes returns the HTTP routes for the feeds feature
func (f *Feature) Routes() []core.Route {
	return f.handlers.Routes()
}

// Shutdown stops the poll alarm
func (f *Feature) Shutdown(ctx context.Context) error {
	f.schedulerService.Stop()
	return f.BaseFeature.Shutdown(ctx)
}

// GetFeedService returns the feed service
func (f *Feature) GetFeedService() *services.FeedService {
	return f.feedService
}

// GetEntryService returns the entry service
func (f *Feature) GetEntryService() *services.EntryService {
	return f.entryService
}

// GetFavoriteService returns the favorite service
func (f *Feature) GetFavoriteService() *services.FavoriteService {
	return f.favoriteService
}

// GetSchedulerService returns the scheduler service
func (f *Feature) GetSchedulerService() *services.SchedulerService {
	return f.schedulerService
}

// GetNotificationService returns the notification service
func (f *Feature) GetNotificationService() *services.NotificationService {
	return f.notificationService
}
