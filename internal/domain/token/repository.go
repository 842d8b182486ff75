package token

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for login tokens.
type Repository interface {
	Create(ctx context.Context, t *Token) error
	GetByHash(ctx context.Context, tokenHash string) (*Token, error)
	DeleteByHash(ctx context.Context, tokenHash string) error
	DeleteByID(ctx context.Context, tokenID uuid.UUID) error
	UpdateLastSeen(ctx context.Context, tokenID uuid.UUID) error
	DeleteExpired(ctx context.Context) (int, error)
}
