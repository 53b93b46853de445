package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/toolhub/digest-engine/internal/domain"
	"github.com/toolhub/digest-engine/internal/mailer"
	"github.com/toolhub/digest-engine/internal/repository"
)

type fakeWindowRepo struct {
	mu sync.Mutex

	CreateIfAbsentFn func(ctx context.Context, w *domain.NotificationWindow) (bool, error)
	LatestSinceFn    func(ctx context.Context, kind domain.DigestKind, since time.Time) (*domain.NotificationWindow, error)
	ClaimStaleFn     func(ctx context.Context, kind domain.DigestKind, since, staleBefore time.Time) (*domain.NotificationWindow, error)
	MarkSendingFn    func(ctx context.Context, id string) error
	FinishFn         func(ctx context.Context, id string, status domain.WindowStatus, recipientCount, succeeded, failed int, errMsg *string) error
	ListFn           func(ctx context.Context, params repository.ListWindowParams) ([]domain.NotificationWindow, int64, error)

	createCalls int
	finished    []finishCall
}

type finishCall struct {
	ID             string
	Status         domain.WindowStatus
	RecipientCount int
	Succeeded      int
	Failed         int
	ErrMsg         *string
}

func (f *fakeWindowRepo) CreateIfAbsent(ctx context.Context, w *domain.NotificationWindow) (bool, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	if f.CreateIfAbsentFn != nil {
		return f.CreateIfAbsentFn(ctx, w)
	}
	return true, nil
}

func (f *fakeWindowRepo) LatestSince(ctx context.Context, kind domain.DigestKind, since time.Time) (*domain.NotificationWindow, error) {
	if f.LatestSinceFn != nil {
		return f.LatestSinceFn(ctx, kind, since)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeWindowRepo) ClaimStale(ctx context.Context, kind domain.DigestKind, since, staleBefore time.Time) (*domain.NotificationWindow, error) {
	if f.ClaimStaleFn != nil {
		return f.ClaimStaleFn(ctx, kind, since, staleBefore)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeWindowRepo) MarkSending(ctx context.Context, id string) error {
	if f.MarkSendingFn != nil {
		return f.MarkSendingFn(ctx, id)
	}
	return nil
}

func (f *fakeWindowRepo) Finish(ctx context.Context, id string, status domain.WindowStatus, recipientCount, succeeded, failed int, errMsg *string) error {
	f.mu.Lock()
	f.finished = append(f.finished, finishCall{
		ID:             id,
		Status:         status,
		RecipientCount: recipientCount,
		Succeeded:      succeeded,
		Failed:         failed,
		ErrMsg:         errMsg,
	})
	f.mu.Unlock()
	if f.FinishFn != nil {
		return f.FinishFn(ctx, id, status, recipientCount, succeeded, failed, errMsg)
	}
	return nil
}

func (f *fakeWindowRepo) List(ctx context.Context, params repository.ListWindowParams) ([]domain.NotificationWindow, int64, error) {
	if f.ListFn != nil {
		return f.ListFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeWindowRepo) finishCalls() []finishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]finishCall, len(f.finished))
	copy(out, f.finished)
	return out
}

type fakeItemRepo struct {
	ListApprovedSinceFn func(ctx context.Context, since time.Time) ([]domain.Item, error)
}

func (f *fakeItemRepo) ListApprovedSince(ctx context.Context, since time.Time) ([]domain.Item, error) {
	if f.ListApprovedSinceFn != nil {
		return f.ListApprovedSinceFn(ctx, since)
	}
	return nil, nil
}

type fakeRecipientRepo struct {
	mu sync.Mutex

	ActiveSubscribersFn func(ctx context.Context) ([]domain.Subscriber, error)
	VerifiedAccountsFn  func(ctx context.Context) ([]domain.Account, error)
	MarkSentFn          func(ctx context.Context, subscriberIDs []string, sentAt time.Time) error

	markedSent [][]string
}

func (f *fakeRecipientRepo) ActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	if f.ActiveSubscribersFn != nil {
		return f.ActiveSubscribersFn(ctx)
	}
	return nil, nil
}

func (f *fakeRecipientRepo) VerifiedAccounts(ctx context.Context) ([]domain.Account, error) {
	if f.VerifiedAccountsFn != nil {
		return f.VerifiedAccountsFn(ctx)
	}
	return nil, nil
}

func (f *fakeRecipientRepo) MarkSubscribersSent(ctx context.Context, subscriberIDs []string, sentAt time.Time) error {
	f.mu.Lock()
	f.markedSent = append(f.markedSent, subscriberIDs)
	f.mu.Unlock()
	if f.MarkSentFn != nil {
		return f.MarkSentFn(ctx, subscriberIDs, sentAt)
	}
	return nil
}

func (f *fakeRecipientRepo) markSentCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.markedSent))
	copy(out, f.markedSent)
	return out
}

type fakeMailer struct {
	mu sync.Mutex

	SendFn func(ctx context.Context, msg mailer.Message) (*mailer.SendResult, error)

	sent []mailer.Message
}

func (f *fakeMailer) Send(ctx context.Context, msg mailer.Message) (*mailer.SendResult, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.SendFn != nil {
		return f.SendFn(ctx, msg)
	}
	return &mailer.SendResult{MessageID: "msg-1"}, nil
}

func (f *fakeMailer) sentMessages() []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mailer.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeRenderer struct {
	RenderFn func(kind domain.DigestKind, items []domain.ItemSummary, unsubscribeURL string) (string, string, error)
}

func (f *fakeRenderer) Render(kind domain.DigestKind, items []domain.ItemSummary, unsubscribeURL string) (string, string, error) {
	if f.RenderFn != nil {
		return f.RenderFn(kind, items, unsubscribeURL)
	}
	return fmt.Sprintf("%d items", len(items)), "<html>" + unsubscribeURL + "</html>", nil
}

type fakeLimiter struct {
	mu sync.Mutex

	WaitFn func(ctx context.Context, kind string) error

	waits int
}

func (f *fakeLimiter) Wait(ctx context.Context, kind string) error {
	f.mu.Lock()
	f.waits++
	f.mu.Unlock()
	if f.WaitFn != nil {
		return f.WaitFn(ctx, kind)
	}
	return nil
}

func (f *fakeLimiter) waitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waits
}
