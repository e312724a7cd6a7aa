package services

import (
	"context"
	"errors"

	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
	"feedsentry/internal/mailer"
)

// LogSink writes alerts to the structured log
type LogSink struct {
	logger *core.Logger
}

func NewLogSink(logger *core.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, alert models.Alert) error {
	s.logger.WithContext(ctx).Info("Alert",
		"alert_id", alert.ID,
		"kind", alert.Kind,
		"feed_id", alert.FeedID,
		"title", alert.Title,
		"message", alert.Message,
		"priority", alert.Priority,
		"target", alert.TargetURL,
	)
	return nil
}

func (s *LogSink) Clear(ctx context.Context, alertID string) error {
	s.logger.Debug("Alert cleared", "alert_id", alertID)
	return nil
}

// MailSink emails alerts to a single recipient via SMTP2GO
type MailSink struct {
	mailer    mailer.Mailer
	recipient string
	minimum   models.AlertPriority
}

// NewMailSink creates a sink that emails alerts at or above minimum priority
func NewMailSink(m mailer.Mailer, recipient string, minimum models.AlertPriority) *MailSink {
	return &MailSink{mailer: m, recipient: recipient, minimum: minimum}
}

func (s *MailSink) Deliver(ctx context.Context, alert models.Alert) error {
	if alert.Priority < s.minimum {
		return nil
	}
	return s.mailer.Send(ctx, s.recipient, "alert.tmpl", alert)
}

// Clear is a no-op; sent mail cannot be withdrawn
func (s *MailSink) Clear(ctx context.Context, alertID string) error {
	return nil
}

// MultiSink fans an alert out to several sinks
type MultiSink []AlertSink

func (m MultiSink) Deliver(ctx context.Context, alert models.Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Clear(ctx context.Context, alertID string) error {
	var errs []error
	for _, s := range m {
		if err := s.Clear(ctx, alertID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
