package rooms

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACProvider(t *testing.T) {
	p := NewHMACProvider([]byte("signing-key"), time.Hour)
	sessionID := uuid.New()
	userID := uuid.New()

	cred, err := p.RoomCredential(sessionID, userID)
	require.NoError(t, err)
	assert.Equal(t, "room-"+sessionID.String(), cred.RoomID)
	assert.NotEmpty(t, cred.Token)
	assert.True(t, cred.ExpiresAt.After(time.Now()))

	// Same session yields the same room for both participants.
	other, err := p.RoomCredential(sessionID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, cred.RoomID, other.RoomID)
	assert.NotEqual(t, cred.Token, other.Token)
}

func TestHMACProvider_MissingKey(t *testing.T) {
	p := NewHMACProvider(nil, time.Hour)
	_, err := p.RoomCredential(uuid.New(), uuid.New())
	assert.Error(t, err)
}
