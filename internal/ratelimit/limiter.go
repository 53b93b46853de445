package ratelimit

import (
	"context"
	"time"
)

// Limiter paces outbound mail. The dispatcher calls Wait after every send
// attempt, success or failure, so consecutive sends never violate the
// provider's rate ceiling.
type Limiter interface {
	Wait(ctx context.Context, kind string) error
}

// FixedDelayLimiter enforces a constant pause between sends.
type FixedDelayLimiter struct {
	delay time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

const defaultSendDelay = 800 * time.Millisecond

func NewFixedDelayLimiter(delay time.Duration) *FixedDelayLimiter {
	if delay <= 0 {
		delay = defaultSendDelay
	}

	return &FixedDelayLimiter{
		delay: delay,
		sleep: SleepWithContext,
	}
}

func (l *FixedDelayLimiter) Wait(ctx context.Context, kind string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return l.sleep(ctx, l.delay)
}

// SleepWithContext blocks for d or until the context is canceled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
