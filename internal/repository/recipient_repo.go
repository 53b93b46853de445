package repository

import (
	"context"
	"time"

	"github.com/toolhub/digest-engine/internal/domain"
	"gorm.io/gorm"
)

// RecipientSourceRepository exposes the two recipient sources the
// resolver merges: the opt-in mailing list and registered accounts.
type RecipientSourceRepository interface {
	ActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error)
	VerifiedAccounts(ctx context.Context) ([]domain.Account, error)
	MarkSubscribersSent(ctx context.Context, subscriberIDs []string, sentAt time.Time) error
}

type GormRecipientRepo struct {
	db *gorm.DB
}

func NewGormRecipientRepo(db *gorm.DB) *GormRecipientRepo {
	return &GormRecipientRepo{db: db}
}

func (r *GormRecipientRepo) ActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	var models []SubscriberModel
	err := r.db.WithContext(ctx).
		Where("unsubscribed = ?", false).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	subscribers := make([]domain.Subscriber, 0, len(models))
	for i := range models {
		subscribers = append(subscribers, *subscriberModelToDomain(&models[i]))
	}

	return subscribers, nil
}

func (r *GormRecipientRepo) VerifiedAccounts(ctx context.Context) ([]domain.Account, error) {
	var models []AccountModel
	err := r.db.WithContext(ctx).
		Where("verified = ?", true).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(models))
	for i := range models {
		accounts = append(accounts, *accountModelToDomain(&models[i]))
	}

	return accounts, nil
}

func (r *GormRecipientRepo) MarkSubscribersSent(ctx context.Context, subscriberIDs []string, sentAt time.Time) error {
	if len(subscriberIDs) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&SubscriberModel{}).
		Where("id IN ?", subscriberIDs).
		Update("last_sent_at", sentAt).Error
}
