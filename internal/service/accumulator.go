package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/toolhub/digest-engine/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultAccumulatorInterval = 5 * time.Minute
	defaultAccumulatorMin      = 5
	defaultAccumulatorCap      = 10
)

// FlushFunc dispatches one in-memory batch. The accumulator policy keeps
// no ledger; delivery guarantees are process-lifetime only.
type FlushFunc func(ctx context.Context, items []domain.ItemSummary) error

// Accumulator is the alternate batching policy: approved items are added
// as they arrive, and a flush happens when the interval timer fires with
// at least the minimum pending, or immediately when the pending count
// reaches the hard cap. A timer flush below the minimum defers: items are
// kept and the timer restarts.
type Accumulator struct {
	flush      FlushFunc
	interval   time.Duration
	minItems   int
	maxPending int
	logger     *zap.Logger

	mu      sync.Mutex
	pending []domain.ItemSummary

	kick     chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewAccumulator(
	flush FlushFunc,
	interval time.Duration,
	minItems int,
	maxPending int,
	logger *zap.Logger,
) (*Accumulator, error) {
	if flush == nil {
		return nil, fmt.Errorf("flush function is required")
	}
	if interval <= 0 {
		interval = defaultAccumulatorInterval
	}
	if minItems < 1 {
		minItems = defaultAccumulatorMin
	}
	if maxPending < 1 {
		maxPending = defaultAccumulatorCap
	}
	if maxPending < minItems {
		maxPending = minItems
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Accumulator{
		flush:      flush,
		interval:   interval,
		minItems:   minItems,
		maxPending: maxPending,
		logger:     logger,
		kick:       make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Add queues one approved item. Reaching the hard cap wakes the flush
// loop immediately instead of waiting out the interval.
func (a *Accumulator) Add(item domain.ItemSummary) {
	a.mu.Lock()
	a.pending = append(a.pending, item)
	hitCap := len(a.pending) >= a.maxPending
	count := len(a.pending)
	a.mu.Unlock()

	a.logger.Debug("item queued for batch digest",
		zap.String("itemId", item.ID),
		zap.Int("pending", count),
	)

	if hitCap {
		select {
		case a.kick <- struct{}{}:
		default:
		}
	}
}

// Pending reports the current queue depth.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Start runs the flush loop until the context is canceled or Stop is
// called. Remaining items are drained on the way out.
func (a *Accumulator) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer close(a.doneCh)

	timer := time.NewTimer(a.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			a.drain()
			return nil
		case <-a.stopCh:
			a.drain()
			return nil
		case <-a.kick:
			a.flushPending(ctx, 1)
			resetTimer(timer, a.interval)
		case <-timer.C:
			a.flushPending(ctx, a.minItems)
			timer.Reset(a.interval)
		}
	}
}

// Stop signals the loop to drain and waits for it to exit. Safe to call
// more than once.
func (a *Accumulator) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	<-a.doneCh
}

// flushPending sends the queued items when at least minRequired are
// pending. A failed flush puts the batch back at the head of the queue so
// the next interval retries it.
func (a *Accumulator) flushPending(ctx context.Context, minRequired int) {
	a.mu.Lock()
	if len(a.pending) < minRequired {
		deferred := len(a.pending)
		a.mu.Unlock()
		if deferred > 0 {
			a.logger.Info("batch below minimum, deferring flush",
				zap.Int("pending", deferred),
				zap.Int("minimum", minRequired),
			)
		}
		return
	}
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if err := a.flush(ctx, batch); err != nil {
		a.logger.Error("batch flush failed, requeueing items",
			zap.Int("items", len(batch)),
			zap.Error(err),
		)
		a.mu.Lock()
		a.pending = append(batch, a.pending...)
		a.mu.Unlock()
		return
	}

	a.logger.Info("batch digest flushed", zap.Int("items", len(batch)))
}

// drain flushes whatever is queued, ignoring the minimum. Uses a fresh
// short-lived context because the loop context is usually already
// canceled during shutdown.
func (a *Accumulator) drain() {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.flush(ctx, batch); err != nil {
		a.logger.Error("failed to drain pending batch on shutdown",
			zap.Int("items", len(batch)),
			zap.Error(err),
		)
		return
	}
	a.logger.Info("pending batch drained on shutdown", zap.Int("items", len(batch)))
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}
