package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"github.com/robfig/cron/v3"
)

type CleanupServiceConfig struct {
	Records   ports.AlertRecordRepository
	Logger    *logger.Logger
	// Schedule is a cron expression or descriptor such as "@daily".
	Schedule  string
	Retention time.Duration
}

// CleanupService trims alert history older than the retention period.
type CleanupService struct {
	records   ports.AlertRecordRepository
	logger    *logger.Logger
	schedule  string
	retention time.Duration
	cron      *cron.Cron
}

func NewCleanupService(cfg CleanupServiceConfig) (*CleanupService, error) {
	if cfg.Records == nil {
		return nil, errors.New("cleanup: alert record repository is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	return &CleanupService{
		records:   cfg.Records,
		logger:    cfg.Logger.Named("cleanup"),
		schedule:  cfg.Schedule,
		retention: cfg.Retention,
	}, nil
}

// RunOnce removes alert records older than the retention.
func (s *CleanupService) RunOnce(ctx context.Context) error {
	if err := s.records.CleanupOld(ctx, s.retention); err != nil {
		s.logger.Errorw("cleanup_alert_history_failed", "retention", s.retention, "error", err)
		return err
	}
	s.logger.Infow("cleanup_alert_history_done", "retention", s.retention)
	return nil
}

func (s *CleanupService) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { _ = s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Infow("cleanup_scheduler_started", "schedule", s.schedule, "retention", s.retention)
	return nil
}

func (s *CleanupService) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
