package notification

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind represents what a notification is about.
type Kind string

const (
	KindRequestCreated   Kind = "REQUEST_CREATED"
	KindRequestExpired   Kind = "REQUEST_EXPIRED"
	KindRequestCancelled Kind = "REQUEST_CANCELLED"
	KindSessionAssigned  Kind = "SESSION_ASSIGNED"
	KindSessionStarted   Kind = "SESSION_STARTED"
	KindSessionEnded     Kind = "SESSION_ENDED"
	KindSessionCancelled Kind = "SESSION_CANCELLED"
	KindSessionErrored   Kind = "SESSION_ERRORED"
	KindUnattended       Kind = "REQUEST_UNATTENDED"
)

var (
	ErrClientNotFound = errors.New("SSE client not found")
	ErrChannelFull    = errors.New("SSE message channel full")
)

// Notification is a persisted message for one user. Delivery over SSE is
// best-effort; the row is the durable copy.
type Notification struct {
	ID             int64           `json:"id"`
	NotificationID uuid.UUID       `json:"notificationId"`
	UserID         uuid.UUID       `json:"userId"`
	Kind           Kind            `json:"kind"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Read           bool            `json:"read"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// New builds a notification row for a user.
func New(userID uuid.UUID, kind Kind, payload json.RawMessage) *Notification {
	return &Notification{
		NotificationID: uuid.New(),
		UserID:         userID,
		Kind:           kind,
		Payload:        payload,
		CreatedAt:      time.Now().UTC(),
	}
}

// SSEClient represents an active SSE connection.
type SSEClient struct {
	ClientID    string
	UserID      *uuid.UUID
	ConnectedAt time.Time
	MessageChan chan *SSEMessage
}

// NewSSEClient creates a new SSE client.
func NewSSEClient(clientID string, userID *uuid.UUID) *SSEClient {
	return &SSEClient{
		ClientID:    clientID,
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *SSEMessage, 100),
	}
}

// Close closes the client's message channel.
func (c *SSEClient) Close() {
	close(c.MessageChan)
}

// SSEMessage represents a message pushed over SSE.
type SSEMessage struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewSSEMessage creates a new SSE message.
func NewSSEMessage(event string, data json.RawMessage) *SSEMessage {
	return &SSEMessage{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
