package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/toolhub/digest-engine/internal/domain"
	"github.com/toolhub/digest-engine/internal/repository"
	"go.uber.org/zap"
)

// Resolver builds the deduplicated recipient list for one dispatch run.
// Both source queries must succeed; a partial audience would silently drop
// recipients, so any source failure fails the whole run before the first
// send.
type Resolver struct {
	sources repository.RecipientSourceRepository
	logger  *zap.Logger
}

func NewResolver(sources repository.RecipientSourceRepository, logger *zap.Logger) (*Resolver, error) {
	if sources == nil {
		return nil, fmt.Errorf("recipient source repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		sources: sources,
		logger:  logger,
	}, nil
}

// Resolve merges active subscribers and verified accounts into one list
// keyed by lowercased email. Subscribers are inserted first so an address
// present in both sources keeps its unsubscribe token; accounts only fill
// addresses not already present. Result ordering is unspecified.
func (r *Resolver) Resolve(ctx context.Context) ([]domain.Recipient, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	subscribers, err := r.sources.ActiveSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active subscribers: %w", err)
	}

	accounts, err := r.sources.VerifiedAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load verified accounts: %w", err)
	}

	byEmail := make(map[string]domain.Recipient, len(subscribers)+len(accounts))

	for i := range subscribers {
		sub := subscribers[i]
		email := normalizeEmail(sub.Email)
		if email == "" {
			continue
		}

		subscriberID := sub.ID
		recipient := domain.Recipient{
			Email:        email,
			Source:       domain.SourceSubscriber,
			SubscriberID: &subscriberID,
		}
		if token := strings.TrimSpace(sub.UnsubscribeToken); token != "" {
			recipient.UnsubscribeToken = &token
		}
		byEmail[email] = recipient
	}

	for i := range accounts {
		account := accounts[i]
		email := normalizeEmail(account.Email)
		if email == "" {
			continue
		}
		if _, exists := byEmail[email]; exists {
			continue
		}
		byEmail[email] = domain.Recipient{
			Email:  email,
			Source: domain.SourceAccount,
		}
	}

	recipients := make([]domain.Recipient, 0, len(byEmail))
	for _, recipient := range byEmail {
		recipients = append(recipients, recipient)
	}

	r.logger.Debug("recipient list resolved",
		zap.Int("subscribers", len(subscribers)),
		zap.Int("accounts", len(accounts)),
		zap.Int("merged", len(recipients)),
	)

	return recipients, nil
}

// MarkSent records last_sent_at for the subscribers that received a
// message during the run. Account recipients have no such bookkeeping.
func (r *Resolver) MarkSent(ctx context.Context, subscriberIDs []string, sentAt time.Time) error {
	if len(subscriberIDs) == 0 {
		return nil
	}
	return r.sources.MarkSubscribersSent(ctx, subscriberIDs, sentAt)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
