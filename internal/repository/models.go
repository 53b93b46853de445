package repository

import (
	"strings"
	"time"

	"github.com/toolhub/digest-engine/internal/domain"
)

// ItemModel is the persistence model for the items table.
type ItemModel struct {
	ID          string            `gorm:"type:uuid;primaryKey"`
	Name        string            `gorm:"type:varchar(255);not null"`
	Description string            `gorm:"type:text"`
	URL         string            `gorm:"type:varchar(2048);not null"`
	Status      domain.ItemStatus `gorm:"type:varchar(20);not null"`
	ApprovedAt  *time.Time        `gorm:"type:timestamptz"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ItemModel) TableName() string {
	return "items"
}

// SubscriberModel is the persistence model for the mailing list.
type SubscriberModel struct {
	ID               string     `gorm:"type:uuid;primaryKey"`
	Email            string     `gorm:"type:varchar(255);not null"`
	UnsubscribeToken string     `gorm:"type:varchar(64);not null"`
	Unsubscribed     bool       `gorm:"not null;default:false"`
	SubscribedAt     time.Time  `gorm:"not null"`
	LastSentAt       *time.Time `gorm:"type:timestamptz"`
}

func (SubscriberModel) TableName() string {
	return "subscribers"
}

// AccountModel is the persistence model for registered users. The digest
// core only ever reads it.
type AccountModel struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	Email    string `gorm:"type:varchar(255);not null"`
	Verified bool   `gorm:"not null;default:true"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

// WindowModel is the persistence model for notification_windows, the
// digest ledger.
type WindowModel struct {
	ID             string              `gorm:"type:uuid;primaryKey"`
	Kind           domain.DigestKind   `gorm:"type:varchar(10);not null"`
	WindowStart    time.Time           `gorm:"type:timestamptz;not null"`
	ItemCount      int                 `gorm:"not null;default:0"`
	ItemIDs        string              `gorm:"type:text"`
	RecipientCount int                 `gorm:"not null;default:0"`
	SucceededCount int                 `gorm:"not null;default:0"`
	FailedCount    int                 `gorm:"not null;default:0"`
	Status         domain.WindowStatus `gorm:"type:varchar(20);not null"`
	Error          *string             `gorm:"type:text"`
	RetryCount     int                 `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (WindowModel) TableName() string {
	return "notification_windows"
}

func itemModelToDomain(m *ItemModel) *domain.Item {
	if m == nil {
		return nil
	}

	return &domain.Item{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		URL:         m.URL,
		Status:      m.Status,
		ApprovedAt:  m.ApprovedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func subscriberModelToDomain(m *SubscriberModel) *domain.Subscriber {
	if m == nil {
		return nil
	}

	return &domain.Subscriber{
		ID:               m.ID,
		Email:            m.Email,
		UnsubscribeToken: m.UnsubscribeToken,
		Unsubscribed:     m.Unsubscribed,
		SubscribedAt:     m.SubscribedAt,
		LastSentAt:       m.LastSentAt,
	}
}

func accountModelToDomain(m *AccountModel) *domain.Account {
	if m == nil {
		return nil
	}

	return &domain.Account{
		ID:       m.ID,
		Email:    m.Email,
		Verified: m.Verified,
	}
}

func windowModelFromDomain(w *domain.NotificationWindow) *WindowModel {
	if w == nil {
		return nil
	}

	return &WindowModel{
		ID:             w.ID,
		Kind:           w.Kind,
		WindowStart:    w.WindowStart,
		ItemCount:      w.ItemCount,
		ItemIDs:        joinItemIDs(w.ItemIDs),
		RecipientCount: w.RecipientCount,
		SucceededCount: w.SucceededCount,
		FailedCount:    w.FailedCount,
		Status:         w.Status,
		Error:          w.Error,
		RetryCount:     w.RetryCount,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

func windowModelToDomain(m *WindowModel) *domain.NotificationWindow {
	if m == nil {
		return nil
	}

	return &domain.NotificationWindow{
		ID:             m.ID,
		Kind:           m.Kind,
		WindowStart:    m.WindowStart,
		ItemCount:      m.ItemCount,
		ItemIDs:        splitItemIDs(m.ItemIDs),
		RecipientCount: m.RecipientCount,
		SucceededCount: m.SucceededCount,
		FailedCount:    m.FailedCount,
		Status:         m.Status,
		Error:          m.Error,
		RetryCount:     m.RetryCount,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func joinItemIDs(ids []string) string {
	return strings.Join(ids, ",")
}

func splitItemIDs(joined string) []string {
	trimmed := strings.TrimSpace(joined)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ",")
}
