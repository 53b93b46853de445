package repository

import (
	"context"
	"errors"
	"time"

	"github.com/toolhub/digest-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListWindowParams struct {
	Kind     *domain.DigestKind
	Status   *domain.WindowStatus
	Page     int
	PageSize int
}

// WindowRepository is the ledger port. The claim operations are the
// idempotency authority: CreateIfAbsent is an atomic insert-if-absent on
// (kind, window day), and ClaimStale hands an abandoned row to exactly
// one retry.
type WindowRepository interface {
	CreateIfAbsent(ctx context.Context, w *domain.NotificationWindow) (bool, error)
	LatestSince(ctx context.Context, kind domain.DigestKind, since time.Time) (*domain.NotificationWindow, error)
	ClaimStale(ctx context.Context, kind domain.DigestKind, since time.Time, staleBefore time.Time) (*domain.NotificationWindow, error)
	MarkSending(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status domain.WindowStatus, recipientCount, succeeded, failed int, errMsg *string) error
	List(ctx context.Context, params ListWindowParams) ([]domain.NotificationWindow, int64, error)
}

type GormWindowRepo struct {
	db *gorm.DB
}

func NewGormWindowRepo(db *gorm.DB) *GormWindowRepo {
	return &GormWindowRepo{db: db}
}

// CreateIfAbsent inserts the window row unless one already exists for the
// same kind and calendar day. Returns false without error when another
// row won the race; the unique index makes this safe under concurrent
// triggers.
func (r *GormWindowRepo) CreateIfAbsent(ctx context.Context, w *domain.NotificationWindow) (bool, error) {
	model := windowModelFromDomain(w)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	if w != nil {
		*w = *windowModelToDomain(model)
	}
	return true, nil
}

func (r *GormWindowRepo) LatestSince(ctx context.Context, kind domain.DigestKind, since time.Time) (*domain.NotificationWindow, error) {
	var model WindowModel
	err := r.db.WithContext(ctx).
		Where("kind = ? AND window_start >= ?", kind, since).
		Order("window_start DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return windowModelToDomain(&model), nil
}

// ClaimStale claims a PENDING or SENDING row that has not been touched
// since staleBefore and has never been retried. The conditional update is
// the lock: only one caller can flip retry_count 0 -> 1.
func (r *GormWindowRepo) ClaimStale(ctx context.Context, kind domain.DigestKind, since time.Time, staleBefore time.Time) (*domain.NotificationWindow, error) {
	var model WindowModel
	err := r.db.WithContext(ctx).
		Where("kind = ? AND window_start >= ? AND status IN ? AND retry_count = 0 AND updated_at < ?",
			kind, since,
			[]domain.WindowStatus{domain.WindowStatusPending, domain.WindowStatusSending},
			staleBefore,
		).
		Order("window_start DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	result := r.db.WithContext(ctx).
		Model(&WindowModel{}).
		Where("id = ? AND retry_count = 0", model.ID).
		Updates(map[string]any{
			"status":      domain.WindowStatusSending,
			"retry_count": 1,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, domain.ErrConflict
	}

	model.Status = domain.WindowStatusSending
	model.RetryCount = 1
	return windowModelToDomain(&model), nil
}

// MarkSending flips a freshly claimed PENDING row to SENDING just before
// the first send attempt.
func (r *GormWindowRepo) MarkSending(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&WindowModel{}).
		Where("id = ? AND status = ?", id, domain.WindowStatusPending).
		Update("status", domain.WindowStatusSending)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormWindowRepo) Finish(ctx context.Context, id string, status domain.WindowStatus, recipientCount, succeeded, failed int, errMsg *string) error {
	result := r.db.WithContext(ctx).
		Model(&WindowModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          status,
			"recipient_count": recipientCount,
			"succeeded_count": succeeded,
			"failed_count":    failed,
			"error":           errMsg,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormWindowRepo) List(ctx context.Context, params ListWindowParams) ([]domain.NotificationWindow, int64, error) {
	query := r.db.WithContext(ctx).Model(&WindowModel{})

	if params.Kind != nil {
		query = query.Where("kind = ?", *params.Kind)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []WindowModel
	err := query.
		Order("window_start DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	windows := make([]domain.NotificationWindow, 0, len(models))
	for i := range models {
		windows = append(windows, *windowModelToDomain(&models[i]))
	}

	return windows, total, nil
}
