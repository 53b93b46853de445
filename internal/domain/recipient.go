package domain

import (
	"fmt"
	"strings"
	"time"
)

// RecipientSource tags which table an audience member came from.
type RecipientSource string

const (
	SourceSubscriber RecipientSource = "SUBSCRIBER"
	SourceAccount    RecipientSource = "ACCOUNT"
)

func (s RecipientSource) String() string { return string(s) }

func (s RecipientSource) IsValid() bool {
	switch s {
	case SourceSubscriber, SourceAccount:
		return true
	}
	return false
}

// Recipient is one deduplicated digest target. Within a single dispatch
// run each email address appears exactly once; when an address exists in
// both sources the subscriber entry wins because it carries an
// unsubscribe token.
type Recipient struct {
	Email            string
	Source           RecipientSource
	SubscriberID     *string
	UnsubscribeToken *string
}

func (r *Recipient) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("%w: recipient email is required", ErrValidation)
	}
	if !r.Source.IsValid() {
		return fmt.Errorf("%w: invalid recipient source %q", ErrValidation, r.Source)
	}
	return nil
}

// Subscriber is an opt-in mailing list row.
type Subscriber struct {
	ID               string
	Email            string
	UnsubscribeToken string
	Unsubscribed     bool
	SubscribedAt     time.Time
	LastSentAt       *time.Time
}

// Account is a registered user, read-only to the digest core.
type Account struct {
	ID       string
	Email    string
	Verified bool
}
