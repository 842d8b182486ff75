package token

import (
	"time"

	"github.com/google/uuid"
)

// Token represents an authenticated login session, stored by hash only.
type Token struct {
	ID         int64      `json:"id"`
	TokenID    uuid.UUID  `json:"tokenId"`
	TokenHash  string     `json:"-"`
	AccountID  uuid.UUID  `json:"accountId"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}

func (t *Token) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
