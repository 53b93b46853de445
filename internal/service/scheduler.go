package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/toolhub/digest-engine/internal/domain"
	"go.uber.org/zap"
)

// Scheduler owns the two cron entries that drive the schedule policy:
// a daily trigger at the configured hour and a weekly trigger from the
// configured spec. Both are pinned to the service timezone so the window
// boundaries land on local wall-clock time.
type Scheduler struct {
	digests  *DigestService
	cron     *cron.Cron
	logger   *zap.Logger
	daily    string
	weekly   string
	location *time.Location
}

func NewScheduler(
	digests *DigestService,
	dailySpec string,
	weeklySpec string,
	location *time.Location,
	logger *zap.Logger,
) (*Scheduler, error) {
	if digests == nil {
		return nil, fmt.Errorf("digest service is required")
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		digests:  digests,
		cron:     cron.New(cron.WithLocation(location)),
		logger:   logger,
		daily:    dailySpec,
		weekly:   weeklySpec,
		location: location,
	}, nil
}

// Start registers both entries and starts the cron loop. It returns once
// the loop is running; Stop blocks until in-flight jobs complete.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.cron.AddFunc(s.daily, func() { s.trigger(ctx, domain.KindDaily) }); err != nil {
		return fmt.Errorf("invalid daily cron spec %q: %w", s.daily, err)
	}
	if _, err := s.cron.AddFunc(s.weekly, func() { s.trigger(ctx, domain.KindWeekly) }); err != nil {
		return fmt.Errorf("invalid weekly cron spec %q: %w", s.weekly, err)
	}

	s.cron.Start()
	s.logger.Info("digest scheduler started",
		zap.String("dailySpec", s.daily),
		zap.String("weeklySpec", s.weekly),
		zap.String("timezone", s.location.String()),
	)

	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s == nil || s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("digest scheduler stopped")
}

func (s *Scheduler) trigger(ctx context.Context, kind domain.DigestKind) {
	if ctx.Err() != nil {
		return
	}

	outcome, err := s.digests.Run(ctx, kind)
	if errors.Is(err, domain.ErrConflict) {
		s.logger.Info("scheduled digest window already handled",
			zap.String("kind", kind.String()),
		)
		return
	}
	if err != nil {
		s.logger.Error("scheduled digest run failed",
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("scheduled digest run finished",
		zap.String("kind", kind.String()),
		zap.String("result", outcome.Result),
	)
}
