package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/session-hub/session-hub/internal/domain/token"
)

// TokenRepository implements token.Repository.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Create(ctx context.Context, t *token.Token) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_tokens (token_id, token_hash, account_id, created_at, expires_at, last_seen_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, t.TokenID, t.TokenHash, t.AccountID, t.CreatedAt, t.ExpiresAt, t.LastSeenAt)
	return err
}

func (r *TokenRepository) GetByHash(ctx context.Context, tokenHash string) (*token.Token, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, token_id, token_hash, account_id, created_at, expires_at, last_seen_at
		FROM auth_tokens WHERE token_hash=$1
	`, tokenHash)
	var t token.Token
	if err := row.Scan(&t.ID, &t.TokenID, &t.TokenHash, &t.AccountID, &t.CreatedAt, &t.ExpiresAt, &t.LastSeenAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TokenRepository) DeleteByHash(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE token_hash=$1`, tokenHash)
	return err
}

func (r *TokenRepository) DeleteByID(ctx context.Context, tokenID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE token_id=$1`, tokenID)
	return err
}

func (r *TokenRepository) UpdateLastSeen(ctx context.Context, tokenID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE auth_tokens SET last_seen_at=$1 WHERE token_id=$2`, time.Now().UTC(), tokenID)
	return err
}

func (r *TokenRepository) DeleteExpired(ctx context.Context) (int, error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}
