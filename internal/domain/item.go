package domain

import (
	"fmt"
	"strings"
	"time"
)

// ItemStatus represents the moderation state of a catalog item.
type ItemStatus string

const (
	ItemStatusPending  ItemStatus = "PENDING"
	ItemStatusApproved ItemStatus = "APPROVED"
	ItemStatusRejected ItemStatus = "REJECTED"
)

func (s ItemStatus) String() string { return string(s) }

func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusPending, ItemStatusApproved, ItemStatusRejected:
		return true
	}
	return false
}

func ParseItemStatusFromString(s string) (ItemStatus, error) {
	st := ItemStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid item status %q", ErrValidation, s)
	}
	return st, nil
}

// Item is a catalog entry submitted to the directory. Only approved items
// with an approval timestamp are eligible for digest inclusion.
//
// ApprovedAt is stamped exactly once, at approval time, and never altered
// afterwards.
type Item struct {
	ID          string
	Name        string
	Description string
	URL         string
	Status      ItemStatus
	ApprovedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (i *Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("%w: item name is required", ErrValidation)
	}
	if strings.TrimSpace(i.URL) == "" {
		return fmt.Errorf("%w: item url is required", ErrValidation)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("%w: invalid item status %q", ErrValidation, i.Status)
	}
	return nil
}

// ItemSummary is the lightweight shape accumulated by the in-memory
// batching policy. It carries just enough for a digest line.
type ItemSummary struct {
	ID          string
	Name        string
	Description string
	URL         string
}

func (i Item) Summary() ItemSummary {
	return ItemSummary{
		ID:          i.ID,
		Name:        i.Name,
		Description: i.Description,
		URL:         i.URL,
	}
}
