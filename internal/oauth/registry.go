package oauth

import (
	"slices"
	"strings"

	"github.com/prperemyshlev/authgate/internal/config"
)

// Registry resolves provider names against the allow-list. Lookups never
// touch the network.
type Registry struct {
	allowed   []string
	providers map[string]Provider
}

func NewRegistry(allowed []string, providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, name := range allowed {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && !slices.Contains(r.allowed, name) {
			r.allowed = append(r.allowed, name)
		}
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// NewRegistryFromConfig builds every allow-listed provider that has client
// credentials. Callback URLs live under appURL.
func NewRegistryFromConfig(cfg config.OAuthConfig, appURL string) *Registry {
	callback := func(name string) string {
		return strings.TrimRight(appURL, "/") + "/auth/oauth/callback/" + name
	}

	var providers []Provider
	if c := cfg.GitHub; c.Configured() {
		providers = append(providers, NewGitHub(c.ClientID, c.ClientSecret, callback("github"), c.Scopes))
	}
	if c := cfg.GitLab; c.Configured() {
		var opts []Option
		if c.Issuer != "" {
			base := strings.TrimRight(c.Issuer, "/")
			opts = append(opts, WithAPIURL(base), WithEndpoint(oauth2Endpoint(base)))
		}
		providers = append(providers, NewGitLab(c.ClientID, c.ClientSecret, callback("gitlab"), c.Scopes, opts...))
	}
	if c := cfg.Google; c.Configured() {
		providers = append(providers, NewGoogle(c.ClientID, c.ClientSecret, callback("google"), c.Scopes))
	}
	if c := cfg.OIDC; c.Configured() && c.Issuer != "" {
		providers = append(providers, NewOIDC("oidc", c.Issuer, c.ClientID, c.ClientSecret, callback("oidc"), c.Scopes))
	}

	return NewRegistry(cfg.Providers, providers...)
}

// Get returns the provider when it is both allow-listed and configured.
func (r *Registry) Get(name string) (Provider, bool) {
	name = strings.ToLower(name)
	if !slices.Contains(r.allowed, name) {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}

// Names lists the usable providers in allow-list order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.allowed))
	for _, name := range r.allowed {
		if _, ok := r.providers[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
