package ports

import (
	"context"

	"github.com/rbroggi/userdir/internal/core/model"
)

// NotificationHandler handles notifications arriving from the transport.
type NotificationHandler interface {
	// Handle receives an incoming notification and handles it.
	Handle(ctx context.Context, notification model.Notification) error
}
