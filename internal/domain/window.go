package domain

import (
	"fmt"
	"strings"
	"time"
)

// DigestKind distinguishes the two scheduled digest flavors.
type DigestKind string

const (
	KindDaily  DigestKind = "DAILY"
	KindWeekly DigestKind = "WEEKLY"
)

func (k DigestKind) String() string { return string(k) }

func (k DigestKind) IsValid() bool {
	switch k {
	case KindDaily, KindWeekly:
		return true
	}
	return false
}

func ParseDigestKindFromString(s string) (DigestKind, error) {
	k := DigestKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid digest kind %q", ErrValidation, s)
	}
	return k, nil
}

// WindowStatus is the lifecycle state of a notification window.
type WindowStatus string

const (
	WindowStatusPending   WindowStatus = "PENDING"
	WindowStatusSending   WindowStatus = "SENDING"
	WindowStatusCompleted WindowStatus = "COMPLETED"
	WindowStatusFailed    WindowStatus = "FAILED"
)

func (s WindowStatus) String() string { return string(s) }

func (s WindowStatus) IsValid() bool {
	switch s {
	case WindowStatusPending, WindowStatusSending, WindowStatusCompleted, WindowStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the window can never be dispatched again.
func (s WindowStatus) Terminal() bool {
	return s == WindowStatusCompleted || s == WindowStatusFailed
}

// NotificationWindow is the persisted ledger row for one digest dispatch
// attempt. It is created the moment a window is judged eligible, before
// any send, so a crash mid-dispatch still leaves a trace. At most one row
// exists per (kind, calendar day); the unique index makes the claim an
// atomic insert-if-absent.
type NotificationWindow struct {
	ID             string
	Kind           DigestKind
	WindowStart    time.Time
	ItemCount      int
	ItemIDs        []string
	RecipientCount int
	SucceededCount int
	FailedCount    int
	Status         WindowStatus
	Error          *string
	RetryCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (w *NotificationWindow) Validate() error {
	if !w.Kind.IsValid() {
		return fmt.Errorf("%w: invalid digest kind %q", ErrValidation, w.Kind)
	}
	if !w.Status.IsValid() {
		return fmt.Errorf("%w: invalid window status %q", ErrValidation, w.Status)
	}
	if w.WindowStart.IsZero() {
		return fmt.Errorf("%w: window start is required", ErrValidation)
	}
	if w.ItemCount < 0 {
		return fmt.Errorf("%w: item count must not be negative", ErrValidation)
	}
	return nil
}
