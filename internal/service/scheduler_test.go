package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newSchedulerFixture(t *testing.T) *DigestService {
	t.Helper()
	fx := newDigestFixture(t, DigestServiceConfig{DailyTriggerHour: 21, DailyMinItems: 1, WeeklyMinItems: 1})
	return fx.service
}

func TestNewScheduler(t *testing.T) {
	t.Parallel()

	if _, err := NewScheduler(nil, "0 21 * * *", "0 10 * * 1", time.UTC, zap.NewNop()); err == nil {
		t.Fatal("expected error for nil digest service")
	}

	s, err := NewScheduler(newSchedulerFixture(t), "0 21 * * *", "0 10 * * 1", time.UTC, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if s == nil {
		t.Fatal("expected scheduler, got nil")
	}
}

func TestSchedulerStartRejectsInvalidSpecs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		daily  string
		weekly string
	}{
		{name: "bad daily spec", daily: "not a spec", weekly: "0 10 * * 1"},
		{name: "bad weekly spec", daily: "0 21 * * *", weekly: "61 10 * * 1"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := NewScheduler(newSchedulerFixture(t), tt.daily, tt.weekly, time.UTC, zap.NewNop())
			if err != nil {
				t.Fatalf("NewScheduler: %v", err)
			}
			if err := s.Start(context.Background()); err == nil {
				t.Fatal("expected invalid cron spec to fail Start")
			}
		})
	}
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(newSchedulerFixture(t), "0 21 * * *", "0 10 * * 1", time.UTC, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
