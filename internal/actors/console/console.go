package console

import (
	"context"

	"github.com/rbroggi/userdir/internal/core/model"
	log "github.com/sirupsen/logrus"
)

// NewSender creates a new Sender.
func NewSender() *Sender {
	return &Sender{}
}

// Sender is a NotificationSender that writes the notification to the log. Useful in
// local setups where no real delivery channel is configured.
type Sender struct{}

func (s *Sender) Send(ctx context.Context, notification model.Notification) error {
	log.
		WithField("to", notification.To).
		WithField("subject", notification.Subject).
		WithField("body", notification.Body).
		Info("notification")
	return nil
}
