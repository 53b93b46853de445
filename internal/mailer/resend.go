package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ResendMailer delivers digest emails through the Resend API.
type ResendMailer struct {
	client *resend.Client
	from   string
}

func NewResendMailer(apiKey string, from string) (*ResendMailer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("from address is required")
	}

	return &ResendMailer{
		client: resend.NewClient(apiKey),
		from:   strings.TrimSpace(from),
	}, nil
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if m == nil || m.client == nil {
		return nil, fmt.Errorf("mailer is not initialized")
	}
	if strings.TrimSpace(msg.To) == "" {
		return nil, &MailError{Message: "recipient address is required", Transient: false}
	}

	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}

	sent, err := m.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return nil, &MailError{
			Message:   "resend send failed",
			Transient: true,
			Cause:     err,
		}
	}

	return &SendResult{MessageID: sent.Id}, nil
}
