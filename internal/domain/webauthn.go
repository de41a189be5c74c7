package domain

import "time"

// WebAuthnCredential is a registered authenticator. SignCount never decreases.
type WebAuthnCredential struct {
	ID           string     `json:"id" db:"id"`
	UserID       string     `json:"-" db:"user_id"`
	CredentialID string     `json:"credential_id" db:"credential_id"`
	Name         string     `json:"name" db:"name"`
	PublicKey    string     `json:"-" db:"public_key"`
	SignCount    uint32     `json:"sign_count" db:"sign_count"`
	Transports   []string   `json:"transports" db:"transports"`
	LastUsedAt   *time.Time `json:"last_used_at" db:"last_used_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

type CeremonyType string

const (
	CeremonyRegister CeremonyType = "register"
	CeremonyLogin    CeremonyType = "login"
)
