package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/session-hub/session-hub/internal/domain/account"
	"github.com/session-hub/session-hub/internal/domain/mechanic"
	"github.com/session-hub/session-hub/internal/domain/token"
)

var (
	// ErrInvalidCredentials is returned for a bad email/password pair.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken is returned for an unknown or expired token.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrEmailTaken is returned when registering an existing email.
	ErrEmailTaken = errors.New("email already registered")
)

// Service issues and validates opaque bearer tokens. Only the sha256 of a
// token is stored; the plaintext exists once, in the login response.
type Service struct {
	accountRepo  account.Repository
	tokenRepo    token.Repository
	mechanicRepo mechanic.Repository
	tokenTTL     time.Duration
	logger       zerolog.Logger
}

// NewService creates an auth service.
func NewService(accountRepo account.Repository, tokenRepo token.Repository, mechanicRepo mechanic.Repository, tokenTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		accountRepo:  accountRepo,
		tokenRepo:    tokenRepo,
		mechanicRepo: mechanicRepo,
		tokenTTL:     tokenTTL,
		logger:       logger.With().Str("service", "auth").Logger(),
	}
}

// RegisterInput carries a signup.
type RegisterInput struct {
	Email       string
	Password    string
	FullName    string
	Role        account.Role
	ServiceTier mechanic.ServiceTier
}

// Register creates an account; mechanic signups also get a capability
// profile, initially not approved to accept sessions.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*account.Account, error) {
	email := account.NormalizeEmail(in.Email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if in.Role != account.RoleCustomer && in.Role != account.RoleMechanic {
		return nil, fmt.Errorf("role must be CUSTOMER or MECHANIC")
	}

	existing, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := account.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	acct := &account.Account{
		AccountID:    uuid.New(),
		Email:        email,
		FullName:     in.FullName,
		PasswordHash: hash,
		Role:         in.Role,
		Status:       account.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.accountRepo.Create(ctx, acct); err != nil {
		return nil, err
	}

	if in.Role == account.RoleMechanic {
		tier := in.ServiceTier
		if tier == "" {
			tier = mechanic.TierVirtualOnly
		}
		profile := &mechanic.Profile{
			MechanicID:        acct.AccountID,
			DisplayName:       in.FullName,
			ServiceTier:       tier,
			CanAcceptSessions: false,
		}
		if err := s.mechanicRepo.Create(ctx, profile); err != nil {
			return nil, err
		}
	}

	s.logger.Info().Str("account_id", acct.AccountID.String()).Str("role", string(in.Role)).Msg("account registered")
	return acct, nil
}

// LoginResult carries the plaintext token back to the client.
type LoginResult struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Account   *account.Account `json:"account"`
}

// Login verifies the password and mints a fresh token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	acct, err := s.accountRepo.GetByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if acct == nil || !acct.IsActive() || !account.VerifyPassword(acct.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	plaintext, err := newTokenString()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	t := &token.Token{
		TokenID:   uuid.New(),
		TokenHash: HashToken(plaintext),
		AccountID: acct.AccountID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokenTTL),
	}
	if err := s.tokenRepo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info().Str("account_id", acct.AccountID.String()).Msg("login succeeded")
	return &LoginResult{Token: plaintext, ExpiresAt: t.ExpiresAt, Account: acct}, nil
}

// Authenticate resolves a plaintext token to the calling principal.
func (s *Service) Authenticate(ctx context.Context, plaintext string) (account.Principal, error) {
	t, err := s.tokenRepo.GetByHash(ctx, HashToken(plaintext))
	if err != nil {
		return account.Principal{}, err
	}
	if t == nil {
		return account.Principal{}, ErrInvalidToken
	}
	if t.IsExpired(time.Now().UTC()) {
		_ = s.tokenRepo.DeleteByID(ctx, t.TokenID)
		return account.Principal{}, ErrInvalidToken
	}

	acct, err := s.accountRepo.GetByID(ctx, t.AccountID)
	if err != nil {
		return account.Principal{}, err
	}
	if acct == nil || !acct.IsActive() {
		return account.Principal{}, ErrInvalidToken
	}

	if err := s.tokenRepo.UpdateLastSeen(ctx, t.TokenID); err != nil {
		s.logger.Warn().Err(err).Msg("token last seen update failed")
	}
	return account.Principal{ID: acct.AccountID, Role: acct.Role, Email: acct.Email}, nil
}

// Logout revokes the token. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, plaintext string) error {
	return s.tokenRepo.DeleteByHash(ctx, HashToken(plaintext))
}

// HashToken is how tokens are stored and looked up.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func newTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
