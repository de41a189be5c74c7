package dto

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a password login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// TokenRequest exchanges a password for a bearer token
type TokenRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
}

// MagicLinkRequest asks for a login link
type MagicLinkRequest struct {
	Email      string `json:"email"`
	Remember   bool   `json:"remember"`
	RedirectTo string `json:"redirect_to"`
}

// MagicLinkVerifyRequest carries the link parameters when verify is POSTed.
// GET requests read them from the query string instead.
type MagicLinkVerifyRequest struct {
	ID        string `json:"id" form:"id"`
	T         string `json:"t" form:"t"`
	Expires   string `json:"expires" form:"expires"`
	Signature string `json:"signature" form:"signature"`
}

// WebAuthnOptionsRequest asks for ceremony options
type WebAuthnOptionsRequest struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}

// AuthenticatorResponse is the response member of a PublicKeyCredential
type AuthenticatorResponse struct {
	ClientDataJSON    string `json:"clientDataJSON"`
	AttestationObject string `json:"attestationObject"`
	AuthenticatorData string `json:"authenticatorData"`
	Signature         string `json:"signature"`
	UserHandle        string `json:"userHandle"`
}

// WebAuthnRegisterRequest is a serialized attestation
type WebAuthnRegisterRequest struct {
	ID         string                `json:"id"`
	RawID      string                `json:"rawId"`
	Type       string                `json:"type"`
	Name       string                `json:"name"`
	Response   AuthenticatorResponse `json:"response"`
	PublicKey  string                `json:"publicKey"`
	SignCount  int64                 `json:"signCount"`
	Transports []string              `json:"transports"`
}

// WebAuthnVerifyRequest is a serialized assertion
type WebAuthnVerifyRequest struct {
	ID        string                `json:"id"`
	RawID     string                `json:"rawId"`
	Type      string                `json:"type"`
	Response  AuthenticatorResponse `json:"response"`
	SignCount int64                 `json:"signCount"`
}
