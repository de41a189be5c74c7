package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/authgate/internal/apperr"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/internal/repository"
	"github.com/prperemyshlev/authgate/internal/utils"
	"github.com/prperemyshlev/authgate/pkg/observability"
	"go.uber.org/zap"
)

const tokenSecretLength = 40

// TokenVault issues and checks opaque bearer tokens of the form
// "<id>|<secret>". Only sha256(secret) is stored.
type TokenVault struct {
	tokens  repository.AccessTokenRepository
	users   repository.UserRepository
	metrics *observability.AuthMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewTokenVault creates a new token vault
func NewTokenVault(
	tokens repository.AccessTokenRepository,
	users repository.UserRepository,
	metrics *observability.AuthMetrics,
	logger *zap.Logger,
) *TokenVault {
	return &TokenVault{
		tokens:  tokens,
		users:   users,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Issue creates a token for user. The plaintext is only available on the result.
func (v *TokenVault) Issue(ctx context.Context, user *domain.User, name string) (*domain.IssuedToken, error) {
	secret, err := utils.RandomString(tokenSecretLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}

	token := &domain.AccessToken{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		Name:       name,
		SecretHash: utils.SHA256Hex(secret),
		CreatedAt:  v.now(),
	}

	if err := v.tokens.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}

	v.metrics.TokenIssued(ctx)

	return &domain.IssuedToken{
		Token:     token,
		PlainText: token.ID + "|" + secret,
	}, nil
}

// List returns token metadata for userID
func (v *TokenVault) List(ctx context.Context, userID string) ([]*domain.AccessToken, error) {
	tokens, err := v.tokens.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list access tokens: %w", err)
	}
	return tokens, nil
}

// Revoke deletes tokenID if it belongs to userID. Tokens of other users are
// reported exactly like tokens that do not exist.
func (v *TokenVault) Revoke(ctx context.Context, userID, tokenID string) (bool, error) {
	if _, err := uuid.Parse(tokenID); err != nil {
		return false, nil
	}

	deleted, err := v.tokens.Delete(ctx, tokenID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke access token: %w", err)
	}
	return deleted, nil
}

// Authenticate resolves a plaintext bearer token to its owner
func (v *TokenVault) Authenticate(ctx context.Context, plaintext string) (*domain.User, *domain.AccessToken, error) {
	id, secret, ok := strings.Cut(plaintext, "|")
	if !ok || secret == "" {
		return nil, nil, apperr.Unauthenticated()
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, apperr.Unauthenticated()
	}

	token, err := v.tokens.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.Unauthenticated()
		}
		return nil, nil, fmt.Errorf("failed to load access token: %w", err)
	}

	if !utils.ConstantTimeEqual(utils.SHA256Hex(secret), token.SecretHash) {
		return nil, nil, apperr.Unauthenticated()
	}

	user, err := v.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.Unauthenticated()
		}
		return nil, nil, fmt.Errorf("failed to load token owner: %w", err)
	}

	now := v.now()
	if err := v.tokens.Touch(ctx, token.ID, now); err != nil {
		v.logger.Warn("failed to touch access token", zap.String("token_id", token.ID), zap.Error(err))
	} else {
		token.LastUsedAt = &now
	}

	return user, token, nil
}
