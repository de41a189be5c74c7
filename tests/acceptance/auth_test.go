package acceptance

import (
	"net/http"
	"net/url"

	"github.com/prperemyshlev/authgate/internal/dto"
)

func (s *Suite) TestRegister_Success() {
	resp := s.postJSON("/auth/register", map[string]string{
		"name":     "Ada Lovelace",
		"email":    "Ada@Example.com",
		"password": "Password123",
	})
	s.Equal(http.StatusCreated, resp.StatusCode)

	var body dto.UserEnvelope
	s.decode(resp, &body)
	s.Equal("ada@example.com", body.Data.Email)
	s.NotEmpty(body.Data.ID)
	s.Nil(body.Data.EmailVerifiedAt)
	s.Require().NotNil(body.Meta)
	s.Equal("Registered successfully", body.Meta.Message)
}

func (s *Suite) TestRegister_DuplicateEmail() {
	s.registerVerified("dup@example.com")

	resp := s.postJSON("/auth/register", map[string]string{
		"name":     "Other",
		"email":    "DUP@example.com",
		"password": "Password123",
	})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)

	var body dto.ErrorResponse
	s.decode(resp, &body)
	s.Equal([]string{"The email has already been taken."}, body.Errors["email"])
}

func (s *Suite) TestRegister_Validation() {
	resp := s.postJSON("/auth/register", map[string]string{"email": "invalid-email", "password": "weak"})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)

	var body dto.ErrorResponse
	s.decode(resp, &body)
	s.Contains(body.Errors, "name")
	s.Contains(body.Errors, "email")
	s.Contains(body.Errors, "password")
}

func (s *Suite) TestLogin_UnverifiedEmail() {
	resp := s.postJSON("/auth/register", map[string]string{
		"name":     "Ada",
		"email":    "new@example.com",
		"password": "Password123",
	})
	resp.Body.Close()

	resp = s.postJSON("/auth/login", map[string]string{"email": "new@example.com", "password": "Password123"})
	s.Equal(http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func (s *Suite) TestLogin_SessionLifecycle() {
	s.registerVerified("ada@example.com")

	resp := s.get("/auth/me")
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = s.postJSON("/auth/login", map[string]any{"email": "ada@example.com", "password": "Password123", "remember": true})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var login dto.UserEnvelope
	s.decode(resp, &login)
	s.Equal("Login OK (session established)", login.Meta.Message)

	resp = s.get("/auth/me")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var me dto.UserEnvelope
	s.decode(resp, &me)
	s.Equal(login.Data.ID, me.Data.ID)

	resp = s.postJSON("/auth/session/logout", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.get("/auth/me")
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func (s *Suite) TestLogin_InvalidCredentialsAndThrottle() {
	s.registerVerified("ada@example.com")

	for i := 0; i < 5; i++ {
		resp := s.postJSON("/auth/login", map[string]string{"email": "ada@example.com", "password": "Wrong1234"})
		s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
		var body dto.ErrorResponse
		s.decode(resp, &body)
		s.Equal([]string{"Invalid credentials."}, body.Errors["email"])
	}

	resp := s.postJSON("/auth/login", map[string]string{"email": "ada@example.com", "password": "Password123"})
	s.Equal(http.StatusTooManyRequests, resp.StatusCode)
	s.NotEmpty(resp.Header.Get("Retry-After"))
	resp.Body.Close()
}

func (s *Suite) TestTokens_IssueListRevoke() {
	s.registerVerified("ada@example.com")

	resp := s.postJSON("/auth/tokens", map[string]string{
		"email":       "ada@example.com",
		"password":    "Password123",
		"device_name": "laptop",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var issued dto.IssuedTokenResponse
	s.decode(resp, &issued)
	s.Contains(issued.Token, "|")

	bearer := []string{"Authorization", "Bearer " + issued.Token}

	resp = s.get("/auth/me", bearer...)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.get("/auth/tokens", bearer...)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var tokens []dto.TokenResponse
	s.decode(resp, &tokens)
	s.Require().Len(tokens, 1)
	s.Equal("laptop", tokens[0].Name)
	s.NotNil(tokens[0].LastUsedAt)

	resp = s.request(http.MethodDelete, "/auth/tokens/"+tokens[0].ID, nil, bearer...)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = s.request(http.MethodDelete, "/auth/tokens/"+tokens[0].ID, nil, bearer...)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func (s *Suite) TestMagicLink_RequestDoesNotRevealAccounts() {
	s.registerVerified("ada@example.com")

	for _, email := range []string{"ada@example.com", "ghost@example.com"} {
		resp := s.postJSON("/auth/magic/request", map[string]string{"email": email})
		s.Equal(http.StatusOK, resp.StatusCode)
		var body dto.SuccessResponse
		s.decode(resp, &body)
		s.Equal("If your email is registered, a login link has been sent.", body.Message)
	}
}

func (s *Suite) TestMagicLink_ForgedLinkIsRejected() {
	query := url.Values{
		"id":        {"4c8a1c3a-0a3e-4c39-a4f5-6a1d0cf1c7a2"},
		"t":         {"forged"},
		"expires":   {"9999999999"},
		"signature": {"deadbeef"},
	}

	resp := s.get("/auth/magic/verify?" + query.Encode())
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)

	var body dto.ErrorResponse
	s.decode(resp, &body)
	s.Equal("This link is invalid or has expired.", body.Message)
}

func (s *Suite) TestOAuth_UnsupportedProvider() {
	resp := s.get("/auth/oauth/redirect/myspace")
	s.Equal(http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func (s *Suite) TestWebAuthn_Options() {
	resp := s.postJSON("/auth/webauthn/options", map[string]string{"type": "register"})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	s.registerVerified("ada@example.com")

	resp = s.postJSON("/auth/webauthn/options", map[string]string{"type": "login", "email": "ada@example.com"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var body struct {
		Type      string         `json:"type"`
		PublicKey map[string]any `json:"publicKey"`
	}
	s.decode(resp, &body)
	s.Equal("login", body.Type)
	s.NotEmpty(body.PublicKey["challenge"])
}
