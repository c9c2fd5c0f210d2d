package notification

import (
	"context"
	"log/slog"
)

const (
	// KindVerificationEmail carries an OTP rendered as HTML.
	KindVerificationEmail = "verification_email"
	// KindVerificationCall carries a TwiML script read out on a voice call.
	KindVerificationCall = "verification_call"
	// KindPasswordReset carries a password reset link.
	KindPasswordReset = "password_reset"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Subject     string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger instead of delivering them.
// It stands in for a provider that is not configured in development.
type LoggerNotifier struct {
	logger  *slog.Logger
	channel string
}

// NewLoggerNotifier constructs a logging notifier for the named channel.
func NewLoggerNotifier(logger *slog.Logger, channel string) *LoggerNotifier {
	return &LoggerNotifier{logger: logger, channel: channel}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("channel", n.channel),
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("subject", message.Subject),
		slog.String("body", message.Body),
	)
	return nil
}
