package notification

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"

	"github.com/domodwyer/mailyak/v3"
)

// EmailNotifier delivers HTML mail over SMTP.
type EmailNotifier struct {
	addr     string
	auth     smtp.Auth
	from     string
	fromName string
	send     func(*mailyak.MailYak) error
}

// NewEmailNotifier builds an SMTP notifier. Authentication is skipped when
// username is empty.
func NewEmailNotifier(host string, port int, username, password, from, fromName string) *EmailNotifier {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &EmailNotifier{
		addr:     fmt.Sprintf("%s:%d", host, port),
		auth:     auth,
		from:     from,
		fromName: fromName,
		send:     (*mailyak.MailYak).Send,
	}
}

// Send builds the mail and hands it to the SMTP server. mailyak has no context
// support, so the send runs in a goroutine and is abandoned when ctx ends.
func (n *EmailNotifier) Send(ctx context.Context, message Message) error {
	if message.Destination == "" {
		return errors.New("email destination is required")
	}

	mail := mailyak.New(n.addr, n.auth)
	mail.To(message.Destination)
	mail.From(n.from)
	if n.fromName != "" {
		mail.FromName(n.fromName)
	}
	mail.Subject(message.Subject)
	mail.HTML().Set(message.Body)

	done := make(chan error, 1)
	go func() {
		done <- n.send(mail)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send %s email: %w", message.Kind, err)
		}
		return nil
	}
}
