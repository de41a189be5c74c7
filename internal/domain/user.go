package domain

import "time"

// User represents a user in the system
type User struct {
	ID              string     `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	Email           string     `json:"email" db:"email"`
	PasswordHash    string     `json:"-" db:"password_hash"`
	EmailVerifiedAt *time.Time `json:"email_verified_at" db:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

func (u *User) HasVerifiedEmail() bool {
	return u.EmailVerifiedAt != nil
}

// UserIdentity links a user to an account at an external OAuth provider.
// (Provider, ProviderID) is unique.
type UserIdentity struct {
	ID            string            `json:"id" db:"id"`
	UserID        string            `json:"user_id" db:"user_id"`
	Provider      string            `json:"provider" db:"provider"`
	ProviderID    string            `json:"provider_id" db:"provider_id"`
	ProviderEmail string            `json:"provider_email" db:"provider_email"`
	Data          map[string]string `json:"data" db:"data"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}
