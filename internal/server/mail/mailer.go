// Package mail sends transactional account emails (verification links,
// password resets) through an asynchronous dispatcher backed by Mailgun.
package mail

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
)

// Mailer delivers a single message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailgunMailer implements Mailer over the Mailgun HTTP API.
type MailgunMailer struct {
	mg   mailgun.Mailgun
	from string
}

// NewMailgunMailer constructs a mailer for the given sending domain.
func NewMailgunMailer(domain, apiKey, from string) *MailgunMailer {
	return &MailgunMailer{mg: mailgun.NewMailgun(domain, apiKey), from: from}
}

func (m *MailgunMailer) Send(ctx context.Context, to, subject, body string) error {
	message := m.mg.NewMessage(m.from, subject, body, to)
	if _, _, err := m.mg.Send(ctx, message); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}
