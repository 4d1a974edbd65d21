package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/discuit-community/alt-text-bot/internal/config"
	"github.com/discuit-community/alt-text-bot/internal/discuit"
	"github.com/discuit-community/alt-text-bot/internal/models"
	"github.com/discuit-community/alt-text-bot/internal/notifications"
	"github.com/discuit-community/alt-text-bot/internal/roundup"
)

// Service handles scheduling of roundup generation
type Service struct {
	config   *config.Config
	reports  *roundup.Generator
	client   discuit.API
	notifier notifications.Notifier
	cron     *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, reports *roundup.Generator, client discuit.API, notifier notifications.Notifier) *Service {
	return &Service{
		config:   cfg,
		reports:  reports,
		client:   client,
		notifier: notifier,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Start begins the scheduled roundup runs
func (s *Service) Start() error {
	var cronExpression string

	switch s.config.ReportSchedule {
	case "daily":
		// Run daily at 9 AM UTC
		cronExpression = "0 0 9 * * *"
	default:
		// Run weekly on Monday at 9 AM UTC
		cronExpression = "0 0 9 * * MON"
	}

	_, err := s.cron.AddFunc(cronExpression, func() {
		logrus.Info("Starting scheduled roundup run")
		if err := s.RunRoundup(context.Background()); err != nil {
			logrus.Errorf("Scheduled roundup run failed: %v", err)
		}
	})

	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %s schedule", s.config.ReportSchedule)
	return nil
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}

// RunRoundup generates the configured report, posts it to the roundup
// community, and emails it to the maintainer. Also used by the manual
// trigger endpoint.
func (s *Service) RunRoundup(ctx context.Context) error {
	now := time.Now().UTC()

	var (
		report string
		stats  models.ReportStats
		err    error
	)
	if s.config.ReportSchedule == "daily" {
		report, stats, err = s.reports.Daily(ctx, now)
	} else {
		report, stats, err = s.reports.Weekly(ctx, now)
	}
	if err != nil {
		return fmt.Errorf("generate roundup: %w", err)
	}

	title := fmt.Sprintf("Alt Text Roundup — %s", now.Format("January 2, 2006"))
	if _, err := s.client.CreatePost(ctx, s.config.RoundupCommunity, title, report); err != nil {
		return fmt.Errorf("post roundup to +%s: %w", s.config.RoundupCommunity, err)
	}

	if err := s.notifier.SendReport(report, stats); err != nil {
		// The post already went out; a failed email should not fail the run.
		logrus.Errorf("Failed to email roundup: %v", err)
	}

	logrus.Infof("Roundup run complete (%d posts in window)", stats.Totals.TotalImagePosts)
	return nil
}
