package mailer

import "context"

// Message is one rendered digest email for one recipient.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// SendResult stores provider call metadata for audit and logging.
type SendResult struct {
	MessageID string
}

// Mailer is the outbound send primitive. One call delivers one rendered
// message to one address; errors are classified transient/permanent via
// MailError.
type Mailer interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
}
