package domain

import "time"

// AuthFlow names the verification path that produced a principal.
type AuthFlow string

const (
	FlowPassword  AuthFlow = "password"
	FlowMagicLink AuthFlow = "magic_link"
	FlowOAuth     AuthFlow = "oauth"
	FlowWebAuthn  AuthFlow = "webauthn"
	FlowToken     AuthFlow = "token"
)

// AuthenticatedPrincipal is the common result of every login flow. The
// session establisher consumes it without knowing which flow ran.
type AuthenticatedPrincipal struct {
	User     *User
	Flow     AuthFlow
	Remember bool
	// TokenName, when set, asks for a bearer token with that name.
	TokenName string
	// RequireVerifiedEmail rejects accounts without a verified address.
	RequireVerifiedEmail bool
}

// Session is the server-side state behind the session cookie.
type Session struct {
	ID        string    `json:"-"`
	UserID    string    `json:"user_id"`
	Flow      AuthFlow  `json:"flow"`
	Remember  bool      `json:"remember"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EstablishedSession is what a successful login hands back to the caller.
type EstablishedSession struct {
	Session *Session
	User    *User
	Token   *IssuedToken
	// IDToken is a signed JWT, present only when a signing key is configured.
	IDToken string
}
