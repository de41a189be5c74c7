package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/authgate/internal/domain"
)

// UserRepository defines methods for user operations
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error
}

// MagicLoginTokenRepository defines methods for magic-link token operations
type MagicLoginTokenRepository interface {
	Create(ctx context.Context, token *domain.MagicLoginToken) error
	// Consume locks the token row, runs check against it and, if check
	// succeeds, marks the token used before committing. check runs inside the
	// transaction, so anything it does is atomic with the consumption.
	Consume(ctx context.Context, id string, usage domain.MagicLinkUsage, check func(*domain.MagicLoginToken) error) error
	DeleteStaleForUser(ctx context.Context, userID string, expiredBefore time.Time) (int64, error)
	DeleteExpired(ctx context.Context, expiredBefore time.Time) (int64, error)
}

// IdentityRepository defines methods for OAuth identity operations
type IdentityRepository interface {
	Upsert(ctx context.Context, identity *domain.UserIdentity) error
	GetByProvider(ctx context.Context, provider, providerID string) (*domain.UserIdentity, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.UserIdentity, error)
}

// WebAuthnCredentialRepository defines methods for authenticator operations
type WebAuthnCredentialRepository interface {
	Upsert(ctx context.Context, credential *domain.WebAuthnCredential) error
	GetByCredentialID(ctx context.Context, credentialID string) (*domain.WebAuthnCredential, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.WebAuthnCredential, error)
	// UpdateSignCount stores a new counter only if it does not go backwards.
	UpdateSignCount(ctx context.Context, credentialID string, signCount uint32, usedAt time.Time) error
}

// AccessTokenRepository defines methods for bearer token operations
type AccessTokenRepository interface {
	Create(ctx context.Context, token *domain.AccessToken) error
	GetByID(ctx context.Context, id string) (*domain.AccessToken, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.AccessToken, error)
	// Delete removes the token only when it belongs to userID.
	Delete(ctx context.Context, id, userID string) (bool, error)
	Touch(ctx context.Context, id string, at time.Time) error
}
