// Package oauth talks to external identity providers. Each provider runs the
// authorization code flow with PKCE and reduces the result to a Profile.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Profile is what the identity linker needs to know about a remote account.
type Profile struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Nickname      string
	Avatar        string
}

// Data returns the non-empty descriptive attributes kept on the identity row.
func (p *Profile) Data() map[string]string {
	data := make(map[string]string, 3)
	if p.Name != "" {
		data["name"] = p.Name
	}
	if p.Nickname != "" {
		data["nickname"] = p.Nickname
	}
	if p.Avatar != "" {
		data["avatar"] = p.Avatar
	}
	return data
}

// Provider is one configured upstream.
type Provider interface {
	Name() string
	// AuthCodeURL builds the consent URL. verifier is the PKCE code verifier
	// that must later be handed to Exchange.
	AuthCodeURL(ctx context.Context, state, verifier string) (string, error)
	Exchange(ctx context.Context, code, verifier string) (*Profile, error)
}

// ErrInvalidGrant means the provider rejected the code, usually because it
// was replayed, expired or issued for another client.
var ErrInvalidGrant = errors.New("oauth: invalid authorization grant")

// classifyExchangeError maps token endpoint rejections of the code itself to
// ErrInvalidGrant and leaves everything else as is.
func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant", "bad_verification_code", "invalid_request":
			return fmt.Errorf("%w: %s", ErrInvalidGrant, retrieveErr.ErrorCode)
		}
	}
	return fmt.Errorf("failed to exchange code: %w", err)
}

// Option customizes a code-flow provider.
type Option func(*codeFlow)

// WithEndpoint overrides the authorization and token URLs.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(f *codeFlow) {
		f.config.Endpoint = endpoint
	}
}

// WithAPIURL overrides the base URL of the provider's user API.
func WithAPIURL(apiURL string) Option {
	return func(f *codeFlow) {
		f.apiURL = apiURL
	}
}

// codeFlow is the part shared by providers that fetch the profile from a
// REST API after the code exchange.
type codeFlow struct {
	name   string
	config *oauth2.Config
	apiURL string
}

func newCodeFlow(name string, config *oauth2.Config, apiURL string, opts []Option) codeFlow {
	f := codeFlow{name: name, config: config, apiURL: apiURL}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func (f *codeFlow) Name() string {
	return f.name
}

func (f *codeFlow) AuthCodeURL(_ context.Context, state, verifier string) (string, error) {
	return f.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// exchange trades the code for an HTTP client authorized with the new token.
func (f *codeFlow) exchange(ctx context.Context, code, verifier string) (*http.Client, error) {
	token, err := f.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, classifyExchangeError(err)
	}
	return f.config.Client(ctx, token), nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, url, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}

	return nil
}

// NewVerifier returns a fresh PKCE code verifier.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}
