package oauth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

// OIDC is an OpenID Connect provider. Discovery happens on first use and is
// retried until it succeeds, so a provider that is down at startup does not
// keep the service from booting.
type OIDC struct {
	name         string
	issuer       string
	clientID     string
	clientSecret string
	redirectURL  string
	scopes       []string

	mu       sync.Mutex
	provider *oidc.Provider
	config   *oauth2.Config
}

func NewOIDC(name, issuer, clientID, clientSecret, redirectURL string, scopes []string) *OIDC {
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	return &OIDC{
		name:         name,
		issuer:       issuer,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		scopes:       scopes,
	}
}

// NewGoogle is an OIDC provider with Google's issuer.
func NewGoogle(clientID, clientSecret, redirectURL string, scopes []string) *OIDC {
	return NewOIDC("google", googleIssuer, clientID, clientSecret, redirectURL, scopes)
}

func (o *OIDC) Name() string {
	return o.name
}

func (o *OIDC) discover(ctx context.Context) (*oidc.Provider, *oauth2.Config, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.provider != nil {
		return o.provider, o.config, nil
	}

	provider, err := oidc.NewProvider(ctx, o.issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover provider %s: %w", o.name, err)
	}

	o.provider = provider
	o.config = &oauth2.Config{
		ClientID:     o.clientID,
		ClientSecret: o.clientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  o.redirectURL,
		Scopes:       o.scopes,
	}

	return o.provider, o.config, nil
}

func (o *OIDC) AuthCodeURL(ctx context.Context, state, verifier string) (string, error) {
	_, config, err := o.discover(ctx)
	if err != nil {
		return "", err
	}
	return config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

type oidcClaims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
}

func (o *OIDC) Exchange(ctx context.Context, code, verifier string) (*Profile, error) {
	provider, config, err := o.discover(ctx)
	if err != nil {
		return nil, err
	}

	token, err := config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("no id_token in token response")
	}

	idToken, err := provider.Verifier(&oidc.Config{ClientID: o.clientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	return &Profile{
		ID:            claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Nickname:      claims.PreferredUsername,
		Avatar:        claims.Picture,
	}, nil
}
