package ports

import (
	"context"

	"github.com/rbroggi/userdir/internal/core/model"
)

// NotificationSender is the port for delivering outbound notifications. Delivery is
// fire-and-forget relative to lifecycle transactions; no confirmation feeds back
// into lifecycle state.
type NotificationSender interface {
	// Send delivers the notification.
	Send(ctx context.Context, notification model.Notification) error
}
