package rooms

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Credential grants one participant access to a session room.
type Credential struct {
	RoomID    string    `json:"roomId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Provider provisions video/chat rooms. The real deployment swaps in a
// LiveKit-backed implementation; the dispatch core only sees this interface.
type Provider interface {
	RoomCredential(sessionID, userID uuid.UUID) (*Credential, error)
}

// HMACProvider derives deterministic room ids and signs short-lived access
// tokens with a shared key.
type HMACProvider struct {
	key []byte
	ttl time.Duration
}

func NewHMACProvider(key []byte, ttl time.Duration) *HMACProvider {
	return &HMACProvider{key: key, ttl: ttl}
}

func (p *HMACProvider) RoomCredential(sessionID, userID uuid.UUID) (*Credential, error) {
	if len(p.key) == 0 {
		return nil, fmt.Errorf("room signing key not configured")
	}
	roomID := "room-" + sessionID.String()
	expires := time.Now().UTC().Add(p.ttl)

	mac := hmac.New(sha256.New, p.key)
	fmt.Fprintf(mac, "%s|%s|%d", roomID, userID, expires.Unix())
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return &Credential{
		RoomID:    roomID,
		Token:     fmt.Sprintf("%s.%d.%s", userID, expires.Unix(), sig),
		ExpiresAt: expires,
	}, nil
}
