package domain

import "time"

// AccessToken is an opaque bearer token. Only the hash of its secret is kept.
type AccessToken struct {
	ID         string     `json:"id" db:"id"`
	UserID     string     `json:"-" db:"user_id"`
	Name       string     `json:"name" db:"name"`
	SecretHash string     `json:"-" db:"secret_hash"`
	LastUsedAt *time.Time `json:"last_used_at" db:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// IssuedToken pairs a freshly stored token with its plaintext form
// "<id>|<secret>". The plaintext cannot be recovered later.
type IssuedToken struct {
	Token     *AccessToken
	PlainText string
}

// MagicLoginToken is a single-use login link record.
type MagicLoginToken struct {
	ID         string     `db:"id"`
	UserID     string     `db:"user_id"`
	TokenHash  string     `db:"token_hash"`
	ExpiresAt  time.Time  `db:"expires_at"`
	UsedAt     *time.Time `db:"used_at"`
	Remember   bool       `db:"remember"`
	RedirectTo string     `db:"redirect_to"`
	IP         string     `db:"ip"`
	UserAgent  string     `db:"user_agent"`
	UsedIP     string     `db:"used_ip"`
	UsedUA     string     `db:"used_ua"`
	CreatedAt  time.Time  `db:"created_at"`
}

func (t *MagicLoginToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func (t *MagicLoginToken) IsUsed() bool {
	return t.UsedAt != nil
}

// MagicLinkUsage is recorded on a token when it is consumed.
type MagicLinkUsage struct {
	UsedAt    time.Time
	IP        string
	UserAgent string
}
