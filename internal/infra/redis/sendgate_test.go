package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/toolhub/digest-engine/internal/ratelimit"
)

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	return goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
}

func TestSendGateAllow(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_000, 0)
	gate, err := newSendGate(
		rdb,
		2,
		func() time.Time { return now },
		ratelimit.SleepWithContext,
	)
	if err != nil {
		t.Fatalf("newSendGate() error = %v", err)
	}

	allowed, err := gate.allow(context.Background(), "daily")
	if err != nil {
		t.Fatalf("allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("first call should be allowed")
	}

	allowed, err = gate.allow(context.Background(), "daily")
	if err != nil {
		t.Fatalf("allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("second call should be allowed")
	}

	allowed, err = gate.allow(context.Background(), "daily")
	if err != nil {
		t.Fatalf("allow() error = %v", err)
	}
	if allowed {
		t.Fatal("third call should be rejected by the per-second ceiling")
	}

	now = now.Add(time.Second)
	allowed, err = gate.allow(context.Background(), "daily")
	if err != nil {
		t.Fatalf("allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("new second window should allow the call")
	}
}

func TestSendGateAllowPerKind(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_100, 0)
	gate, err := newSendGate(
		rdb,
		1,
		func() time.Time { return now },
		ratelimit.SleepWithContext,
	)
	if err != nil {
		t.Fatalf("newSendGate() error = %v", err)
	}

	allowed, err := gate.allow(context.Background(), "daily")
	if err != nil {
		t.Fatalf("allow(daily) error = %v", err)
	}
	if !allowed {
		t.Fatal("daily should be allowed on first request")
	}

	allowed, err = gate.allow(context.Background(), "weekly")
	if err != nil {
		t.Fatalf("allow(weekly) error = %v", err)
	}
	if !allowed {
		t.Fatal("weekly should be allowed on first request")
	}

	allowed, err = gate.allow(context.Background(), "daily")
	if err != nil {
		t.Fatalf("allow(daily) error = %v", err)
	}
	if allowed {
		t.Fatal("daily second request should be rejected")
	}
}

func TestSendGateWaitBacksOffUntilAllowed(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_200, 0)
	sleepCalls := 0
	gate, err := newSendGate(
		rdb,
		1,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			sleepCalls++
			if sleepCalls == 1 {
				now = now.Add(time.Second)
			}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("newSendGate() error = %v", err)
	}

	if err := gate.Wait(context.Background(), "daily"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if err := gate.Wait(context.Background(), "daily"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if sleepCalls != 1 {
		t.Fatalf("sleep calls = %d, want 1", sleepCalls)
	}
}

func TestNewSendGateRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewSendGate(nil, 1); err == nil {
		t.Fatal("expected error for nil client")
	}
}
