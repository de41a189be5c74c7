package repository

import (
	"github.com/prperemyshlev/authgate/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	User               UserRepository
	MagicLoginToken    MagicLoginTokenRepository
	Identity           IdentityRepository
	WebAuthnCredential WebAuthnCredentialRepository
	AccessToken        AccessTokenRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres) *Repositories {
	return &Repositories{
		User:               NewUserRepository(db),
		MagicLoginToken:    NewMagicLoginTokenRepository(db),
		Identity:           NewIdentityRepository(db),
		WebAuthnCredential: NewWebAuthnCredentialRepository(db),
		AccessToken:        NewAccessTokenRepository(db),
	}
}
