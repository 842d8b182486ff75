package notification

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines notification persistence.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, error)
	MarkRead(ctx context.Context, notificationID uuid.UUID) error
}

// SSEHub defines the realtime push side-channel.
type SSEHub interface {
	Register(client *SSEClient)
	Unregister(clientID string)
	BroadcastToAll(message *SSEMessage)
	BroadcastToUser(userID uuid.UUID, message *SSEMessage)
	GetClientCount() int
	Stop()
}
