package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prperemyshlev/authgate/internal/apperr"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/internal/repository"
)

// RequestAuthenticator resolves the caller of a request from either the
// session cookie or a bearer token.
type RequestAuthenticator struct {
	sessions *SessionStore
	users    repository.UserRepository
	vault    *TokenVault
}

// NewRequestAuthenticator creates a new request authenticator
func NewRequestAuthenticator(sessions *SessionStore, users repository.UserRepository, vault *TokenVault) *RequestAuthenticator {
	return &RequestAuthenticator{
		sessions: sessions,
		users:    users,
		vault:    vault,
	}
}

// FromSession returns the user behind a session id
func (a *RequestAuthenticator) FromSession(ctx context.Context, sessionID string) (*domain.User, *domain.Session, error) {
	session, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil, apperr.Unauthenticated()
		}
		return nil, nil, err
	}

	user, err := a.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = a.sessions.Destroy(ctx, sessionID)
			return nil, nil, apperr.Unauthenticated()
		}
		return nil, nil, fmt.Errorf("failed to load session user: %w", err)
	}

	return user, session, nil
}

// FromBearer returns the user owning a plaintext bearer token
func (a *RequestAuthenticator) FromBearer(ctx context.Context, plaintext string) (*domain.User, *domain.AccessToken, error) {
	return a.vault.Authenticate(ctx, plaintext)
}
