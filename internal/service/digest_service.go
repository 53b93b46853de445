package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/toolhub/digest-engine/internal/domain"
	"github.com/toolhub/digest-engine/internal/observability"
	"github.com/toolhub/digest-engine/internal/repository"
	"go.uber.org/zap"
)

// Run results reported to callers and metrics.
const (
	RunCompleted = "completed"
	RunSkipped   = "skipped"
	RunFailed    = "failed"
)

const weeklyLookback = 7 * 24 * time.Hour

// RunOutcome reports what one digest run did.
type RunOutcome struct {
	Result    string
	Window    *domain.NotificationWindow
	ItemCount int
	Dispatch  DispatchResult
}

// DigestServiceConfig carries the schedule knobs the digest service needs.
type DigestServiceConfig struct {
	Location         *time.Location
	DailyTriggerHour int
	DailyMinItems    int
	WeeklyMinItems   int
	StaleClaimGrace  time.Duration
}

// DigestService runs one digest window end to end: idempotency guard,
// eligibility check, ledger claim, recipient resolution, dispatch, and
// ledger finish. The ledger claim happens before the first send so a
// concurrent or repeated trigger can never double-dispatch the same
// window.
type DigestService struct {
	windows    repository.WindowRepository
	items      repository.ItemRepository
	resolver   *Resolver
	dispatcher *Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        DigestServiceConfig
	nowFn      func() time.Time
}

func NewDigestService(
	windows repository.WindowRepository,
	items repository.ItemRepository,
	resolver *Resolver,
	dispatcher *Dispatcher,
	metrics *observability.Metrics,
	cfg DigestServiceConfig,
	logger *zap.Logger,
) (*DigestService, error) {
	if windows == nil {
		return nil, fmt.Errorf("window repository is required")
	}
	if items == nil {
		return nil, fmt.Errorf("item repository is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DailyMinItems < 1 {
		cfg.DailyMinItems = 1
	}
	if cfg.WeeklyMinItems < 1 {
		cfg.WeeklyMinItems = 1
	}
	if cfg.StaleClaimGrace <= 0 {
		cfg.StaleClaimGrace = 2 * time.Hour
	}
	if cfg.DailyTriggerHour < 0 || cfg.DailyTriggerHour > 23 {
		return nil, fmt.Errorf("daily trigger hour must be within 0..23, got %d", cfg.DailyTriggerHour)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DigestService{
		windows:    windows,
		items:      items,
		resolver:   resolver,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		nowFn:      time.Now,
	}, nil
}

// Run executes one digest window for the given kind. A window already
// claimed by a prior run blocks with domain.ErrConflict unless that claim
// is stale, in which case it is taken over for exactly one retry. An
// ineligible window (below the item minimum) leaves no ledger row.
func (s *DigestService) Run(ctx context.Context, kind domain.DigestKind) (*RunOutcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: invalid digest kind %q", domain.ErrValidation, kind)
	}

	now := s.nowFn().In(s.cfg.Location)
	start := s.windowStart(kind, now)
	logger := s.logger.With(
		zap.String("kind", kind.String()),
		zap.Time("windowStart", start),
	)

	claimed, err := s.claimWindow(ctx, kind, start, now, logger)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.metrics.IncDigestRun(kind.String(), RunSkipped)
		} else {
			s.metrics.IncDigestRun(kind.String(), RunFailed)
		}
		return nil, err
	}

	outcome, err := s.executeWindow(ctx, claimed, start, logger)
	if err != nil {
		s.metrics.IncDigestRun(kind.String(), RunFailed)
		return outcome, err
	}
	s.metrics.IncDigestRun(kind.String(), outcome.Result)
	return outcome, nil
}

// claimWindow enforces the idempotency guard and returns a ledger row this
// run owns, or nil when the window is ineligible (below minimum).
func (s *DigestService) claimWindow(
	ctx context.Context,
	kind domain.DigestKind,
	start time.Time,
	now time.Time,
	logger *zap.Logger,
) (*domain.NotificationWindow, error) {
	existing, err := s.windows.LatestSince(ctx, kind, start)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to check notification ledger: %w", err)
	}

	if existing != nil {
		if existing.Status.Terminal() || existing.RetryCount > 0 {
			logger.Info("digest window already handled",
				zap.String("windowId", existing.ID),
				zap.String("status", existing.Status.String()),
			)
			return nil, fmt.Errorf("%w: window already handled by run %s", domain.ErrConflict, existing.ID)
		}

		staleBefore := now.Add(-s.cfg.StaleClaimGrace)
		if !existing.UpdatedAt.Before(staleBefore) {
			logger.Info("digest window currently in flight",
				zap.String("windowId", existing.ID),
			)
			return nil, fmt.Errorf("%w: window run %s is still in flight", domain.ErrConflict, existing.ID)
		}

		claimed, err := s.windows.ClaimStale(ctx, kind, start, staleBefore)
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: stale window was claimed elsewhere", domain.ErrConflict)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to claim stale window: %w", err)
		}

		logger.Warn("claimed stale digest window for retry",
			zap.String("windowId", claimed.ID),
			zap.Time("abandonedAt", claimed.UpdatedAt),
		)
		return claimed, nil
	}

	// Eligibility comes before the claim: a below-minimum window must not
	// leave a ledger row, so a later run the same day can still fire once
	// enough items arrive.
	items, err := s.items.ListApprovedSince(ctx, start.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list approved items: %w", err)
	}
	if len(items) < s.minItems(kind) {
		logger.Info("digest window below item minimum",
			zap.Int("items", len(items)),
			zap.Int("minimum", s.minItems(kind)),
		)
		return nil, nil
	}

	window := &domain.NotificationWindow{
		ID:          uuid.NewString(),
		Kind:        kind,
		WindowStart: start.UTC(),
		ItemCount:   len(items),
		ItemIDs:     itemIDs(items),
		Status:      domain.WindowStatusPending,
	}
	created, err := s.windows.CreateIfAbsent(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to claim digest window: %w", err)
	}
	if !created {
		// Another trigger won the insert race.
		return nil, fmt.Errorf("%w: window was claimed concurrently", domain.ErrConflict)
	}

	return window, nil
}

func (s *DigestService) executeWindow(
	ctx context.Context,
	window *domain.NotificationWindow,
	start time.Time,
	logger *zap.Logger,
) (*RunOutcome, error) {
	if window == nil {
		return &RunOutcome{Result: RunSkipped}, nil
	}

	kind := window.Kind

	// Items are re-read after the claim so a stale retry dispatches the
	// window's current content rather than a snapshot from the crashed run.
	items, err := s.items.ListApprovedSince(ctx, start.UTC())
	if err != nil {
		return s.failWindow(ctx, window, DispatchResult{}, fmt.Errorf("failed to list approved items: %w", err))
	}
	if len(items) == 0 {
		return s.failWindow(ctx, window, DispatchResult{}, fmt.Errorf("window has no approved items"))
	}

	recipients, err := s.resolver.Resolve(ctx)
	if err != nil {
		return s.failWindow(ctx, window, DispatchResult{}, err)
	}

	if err := s.windows.MarkSending(ctx, window.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return s.failWindow(ctx, window, DispatchResult{}, fmt.Errorf("failed to mark window as sending: %w", err))
	}

	summaries := make([]domain.ItemSummary, 0, len(items))
	for i := range items {
		summaries = append(summaries, items[i].Summary())
	}

	dispatch, dispatchErr := s.dispatcher.Dispatch(ctx, kind, summaries, recipients)
	s.metrics.SetLastRunRecipients(kind.String(), dispatch.Attempted)

	if dispatchErr != nil {
		return s.failWindow(ctx, window, dispatch, fmt.Errorf("dispatch aborted: %w", dispatchErr))
	}

	if err := s.windows.Finish(ctx, window.ID, domain.WindowStatusCompleted,
		dispatch.Attempted, dispatch.Succeeded, dispatch.Failed, nil); err != nil {
		return nil, fmt.Errorf("failed to finish window %s: %w", window.ID, err)
	}

	logger.Info("digest run completed",
		zap.String("windowId", window.ID),
		zap.Int("items", len(items)),
		zap.Int("attempted", dispatch.Attempted),
		zap.Int("succeeded", dispatch.Succeeded),
		zap.Int("failed", dispatch.Failed),
	)

	window.Status = domain.WindowStatusCompleted
	window.RecipientCount = dispatch.Attempted
	window.SucceededCount = dispatch.Succeeded
	window.FailedCount = dispatch.Failed

	return &RunOutcome{
		Result:    RunCompleted,
		Window:    window,
		ItemCount: len(items),
		Dispatch:  dispatch,
	}, nil
}

func (s *DigestService) failWindow(
	ctx context.Context,
	window *domain.NotificationWindow,
	dispatch DispatchResult,
	cause error,
) (*RunOutcome, error) {
	errMsg := cause.Error()
	if finishErr := s.windows.Finish(ctx, window.ID, domain.WindowStatusFailed,
		dispatch.Attempted, dispatch.Succeeded, dispatch.Failed, &errMsg); finishErr != nil {
		s.logger.Error("failed to mark window as failed",
			zap.String("windowId", window.ID),
			zap.Error(finishErr),
		)
	}

	window.Status = domain.WindowStatusFailed
	return &RunOutcome{
		Result:   RunFailed,
		Window:   window,
		Dispatch: dispatch,
	}, cause
}

// RunCatchUp runs once at startup. If the process was down when today's
// daily trigger should have fired and no ledger row exists for today, the
// daily digest runs immediately. Weekly windows are not caught up.
func (s *DigestService) RunCatchUp(ctx context.Context) (*RunOutcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.nowFn().In(s.cfg.Location)
	if now.Hour() < s.cfg.DailyTriggerHour {
		return &RunOutcome{Result: RunSkipped}, nil
	}

	start := s.windowStart(domain.KindDaily, now)
	_, err := s.windows.LatestSince(ctx, domain.KindDaily, start)
	if err == nil {
		// Today's window already has a row; the stale-claim path inside Run
		// handles abandoned ones on the next scheduled trigger.
		return &RunOutcome{Result: RunSkipped}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to check notification ledger: %w", err)
	}

	s.logger.Info("running startup catch-up for missed daily digest",
		zap.Time("windowStart", start),
	)

	outcome, err := s.Run(ctx, domain.KindDaily)
	if errors.Is(err, domain.ErrConflict) {
		// Raced another instance; the window is handled either way.
		return &RunOutcome{Result: RunSkipped}, nil
	}
	return outcome, err
}

func (s *DigestService) windowStart(kind domain.DigestKind, now time.Time) time.Time {
	if kind == domain.KindWeekly {
		return now.Add(-weeklyLookback)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
}

func (s *DigestService) minItems(kind domain.DigestKind) int {
	if kind == domain.KindWeekly {
		return s.cfg.WeeklyMinItems
	}
	return s.cfg.DailyMinItems
}

func itemIDs(items []domain.Item) []string {
	ids := make([]string, 0, len(items))
	for i := range items {
		ids = append(ids, items[i].ID)
	}
	return ids
}
