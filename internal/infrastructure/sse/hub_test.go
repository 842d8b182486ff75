package sse

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-hub/session-hub/internal/domain/notification"
)

func TestHub_RegisterUnregister(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	userID := uuid.New()
	client := notification.NewSSEClient("c1", &userID)
	h.Register(client)
	assert.Equal(t, 1, h.GetClientCount())

	h.Unregister("c1")
	assert.Equal(t, 0, h.GetClientCount())

	// Unregister closes the channel.
	_, open := <-client.MessageChan
	assert.False(t, open)
}

func TestHub_BroadcastToUser(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	alice := uuid.New()
	bob := uuid.New()
	aliceClient := notification.NewSSEClient("a", &alice)
	bobClient := notification.NewSSEClient("b", &bob)
	h.Register(aliceClient)
	h.Register(bobClient)

	msg := notification.NewSSEMessage("notification", []byte(`{"kind":"SESSION_ASSIGNED"}`))
	h.BroadcastToUser(alice, msg)

	select {
	case got := <-aliceClient.MessageChan:
		require.NotNil(t, got)
		assert.Equal(t, "notification", got.Event)
	default:
		t.Fatal("alice should have received the message")
	}
	select {
	case <-bobClient.MessageChan:
		t.Fatal("bob should not have received the message")
	default:
	}
}

func TestHub_BroadcastToAll(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	u1, u2 := uuid.New(), uuid.New()
	c1 := notification.NewSSEClient("c1", &u1)
	c2 := notification.NewSSEClient("c2", &u2)
	h.Register(c1)
	h.Register(c2)

	h.BroadcastToAll(notification.NewSSEMessage("request.created", []byte(`{}`)))
	assert.Len(t, c1.MessageChan, 1)
	assert.Len(t, c2.MessageChan, 1)
}

func TestHub_FullChannelDoesNotBlock(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	userID := uuid.New()
	client := notification.NewSSEClient("slow", &userID)
	h.Register(client)

	msg := notification.NewSSEMessage("notification", []byte(`{}`))
	for i := 0; i < 200; i++ {
		h.BroadcastToUser(userID, msg)
	}
	assert.Equal(t, 100, len(client.MessageChan))
}
