package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/toolhub/digest-engine/internal/ratelimit"
)

const (
	defaultSendsPerSec int64 = 2
	backoffStep              = 50 * time.Millisecond
	backoffMax               = 250 * time.Millisecond
	windowSeconds            = 1
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.Limiter = (*SendGate)(nil)

// SendGate is a per-second send-rate ceiling backed by Redis. It exists
// for deployments running more than one digest instance against the same
// mail provider quota; the fixed-delay limiter covers the single-process
// default.
type SendGate struct {
	client      *goredis.Client
	sendsPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	script      *goredis.Script
}

func NewSendGate(client *goredis.Client, sendsPerSec int) (*SendGate, error) {
	return newSendGate(
		client,
		int64(sendsPerSec),
		time.Now,
		ratelimit.SleepWithContext,
	)
}

func newSendGate(
	client *goredis.Client,
	sendsPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*SendGate, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if sendsPerSec <= 0 {
		sendsPerSec = defaultSendsPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = ratelimit.SleepWithContext
	}

	return &SendGate{
		client:      client,
		sendsPerSec: sendsPerSec,
		now:         nowFn,
		sleep:       sleepFn,
		script:      allowScript,
	}, nil
}

func (g *SendGate) allow(ctx context.Context, kind string) (bool, error) {
	if g == nil || g.client == nil || g.script == nil {
		return false, fmt.Errorf("send gate is not initialized")
	}

	normalizedKind := strings.ToLower(strings.TrimSpace(kind))
	if normalizedKind == "" {
		return false, fmt.Errorf("digest kind is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key := fmt.Sprintf("sendgate:%s:%d", normalizedKind, g.now().UTC().Unix())
	result, err := g.script.Run(ctx, g.client, []string{key}, g.sendsPerSec, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate send gate: %w", err)
	}

	return result == 1, nil
}

func (g *SendGate) Wait(ctx context.Context, kind string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := backoffStep
	for {
		allowed, err := g.allow(ctx, kind)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := g.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff += backoffStep
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}
