package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/toolhub/digest-engine/internal/domain"
	"gorm.io/gorm"
)

// ItemRepository is the digest core's read view over catalog items.
type ItemRepository interface {
	ListApprovedSince(ctx context.Context, since time.Time) ([]domain.Item, error)
}

// ItemWriter is the announcement ingress's write view: create an item and
// stamp its approval exactly once.
type ItemWriter interface {
	Create(ctx context.Context, item *domain.Item) error
	Approve(ctx context.Context, id string, approvedAt time.Time) error
}

type GormItemRepo struct {
	db *gorm.DB
}

func NewGormItemRepo(db *gorm.DB) *GormItemRepo {
	return &GormItemRepo{db: db}
}

func (r *GormItemRepo) Create(ctx context.Context, item *domain.Item) error {
	if item == nil {
		return fmt.Errorf("%w: item is required", domain.ErrValidation)
	}
	if err := item.Validate(); err != nil {
		return err
	}

	model := &ItemModel{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		URL:         item.URL,
		Status:      item.Status,
		ApprovedAt:  item.ApprovedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	item.CreatedAt = model.CreatedAt
	item.UpdatedAt = model.UpdatedAt
	return nil
}

// Approve stamps the approval timestamp exactly once. The guard is in
// SQL: a row that already carries approved_at is never touched again, so
// re-approval cannot move an item into a later digest window.
func (r *GormItemRepo) Approve(ctx context.Context, id string, approvedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&ItemModel{}).
		Where("id = ? AND approved_at IS NULL", id).
		Updates(map[string]any{
			"status":      domain.ItemStatusApproved,
			"approved_at": approvedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&ItemModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *GormItemRepo) ListApprovedSince(ctx context.Context, since time.Time) ([]domain.Item, error) {
	var models []ItemModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND approved_at >= ?", domain.ItemStatusApproved, since).
		Order("approved_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	items := make([]domain.Item, 0, len(models))
	for i := range models {
		items = append(items, *itemModelToDomain(&models[i]))
	}

	return items, nil
}
