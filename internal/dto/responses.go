package dto

import (
	"time"

	"github.com/prperemyshlev/authgate/internal/domain"
)

// UserResponse represents a user in responses
type UserResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
	}
}

// UserSummary is the short user form embedded in login responses
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func NewUserSummary(u *domain.User) UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Meta is attached to session login responses
type Meta struct {
	Message    string `json:"message"`
	RedirectTo string `json:"redirect_to,omitempty"`
	IDToken    string `json:"id_token,omitempty"`
}

// UserEnvelope wraps a user resource with meta information
type UserEnvelope struct {
	Data UserResponse `json:"data"`
	Meta *Meta        `json:"meta,omitempty"`
}

// MagicLinkLoginResponse answers a verified magic link
type MagicLinkLoginResponse struct {
	Meta Meta `json:"meta"`
	Data struct {
		User UserSummary `json:"user"`
	} `json:"data"`
}

// TokenLoginResponse answers flows that hand back a bearer token
type TokenLoginResponse struct {
	Token    string      `json:"token"`
	User     UserSummary `json:"user"`
	Provider string      `json:"provider,omitempty"`
	IDToken  string      `json:"id_token,omitempty"`
}

// IssuedTokenResponse carries a plaintext token exactly once
type IssuedTokenResponse struct {
	Token string `json:"token"`
}

// TokenResponse is token metadata, without any secret
type TokenResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func NewTokenResponses(tokens []*domain.AccessToken) []TokenResponse {
	out := make([]TokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, TokenResponse{
			ID:         t.ID,
			Name:       t.Name,
			LastUsedAt: t.LastUsedAt,
			CreatedAt:  t.CreatedAt,
		})
	}
	return out
}

type DeletedResponse struct {
	Deleted bool `json:"deleted"`
}

// CredentialResponse describes a registered authenticator
type CredentialResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response. Errors holds messages per
// input field.
type ErrorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}
