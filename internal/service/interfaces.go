package service

import (
	"context"

	"github.com/prperemyshlev/authgate/internal/domain"
)

// AuthService defines password based authentication operations
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, in LoginInput) (*domain.EstablishedSession, error)
	IssueToken(ctx context.Context, in TokenInput) (*domain.IssuedToken, error)
	Logout(ctx context.Context, sessionID string) error
}

// MagicLinkService defines passwordless email login operations
type MagicLinkService interface {
	RequestLink(ctx context.Context, req MagicLinkRequest) error
	Verify(ctx context.Context, v MagicLinkVerification) (*MagicLinkResult, error)
}

// OAuthService defines external identity provider login operations
type OAuthService interface {
	Redirect(ctx context.Context, provider string) (string, error)
	Callback(ctx context.Context, cb OAuthCallback) (*OAuthResult, error)
}

// WebAuthnService defines authenticator ceremony operations
type WebAuthnService interface {
	Options(ctx context.Context, req OptionsRequest) (*CeremonyOptions, error)
	Register(ctx context.Context, user *domain.User, req RegisterCredential) (*domain.WebAuthnCredential, error)
	Verify(ctx context.Context, req VerifyAssertion) (*domain.EstablishedSession, error)
}
