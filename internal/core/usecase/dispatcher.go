package usecase

import (
	"context"
	"fmt"

	"github.com/rbroggi/userdir/internal/core/model"
	"github.com/rbroggi/userdir/internal/core/ports"
)

// NewDispatcher builds a new dispatcher.
func NewDispatcher(sender ports.NotificationSender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Dispatcher hands notifications arriving from the queue to a delivery sender.
// Notifications without a recipient are dropped rather than retried forever.
type Dispatcher struct {
	sender ports.NotificationSender
}

func (d *Dispatcher) Handle(ctx context.Context, notification model.Notification) error {
	if notification.To == "" {
		return nil
	}

	if err := d.sender.Send(ctx, notification); err != nil {
		return fmt.Errorf("error delivering notification to [%s]: %w", notification.To, err)
	}

	return nil
}
