package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/authgate/internal/apperr"
	"github.com/prperemyshlev/authgate/internal/cache"
	"github.com/prperemyshlev/authgate/internal/config"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/internal/oauth"
	"github.com/prperemyshlev/authgate/internal/repository"
	"github.com/prperemyshlev/authgate/internal/utils"
	"github.com/prperemyshlev/authgate/pkg/observability"
	"go.uber.org/zap"
)

const (
	oauthUnsupported = "Unsupported OAuth provider."
	oauthFailed      = "Unable to complete OAuth login."
	oauthNoEmail     = "OAuth provider did not return an email address."
)

// ProviderRegistry resolves allow-listed, configured providers
type ProviderRegistry interface {
	Get(name string) (oauth.Provider, bool)
}

// PasswordHasher is the credential verifier used for local passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Check(password, hash string) bool
	// Unusable returns a hash no password will match
	Unusable() (string, error)
}

type OAuthCallback struct {
	Provider  string
	Code      string
	State     string
	SessionID string
}

type OAuthResult struct {
	Session  *domain.EstablishedSession
	Provider string
}

type oauthState struct {
	Provider string `json:"provider"`
	Verifier string `json:"verifier"`
}

// oauthService implements OAuthService interface
type oauthService struct {
	registry    ProviderRegistry
	users       repository.UserRepository
	identities  repository.IdentityRepository
	store       cache.Store
	hasher      PasswordHasher
	establisher *SessionEstablisher
	policy      config.AccountAdoptionPolicy
	stateTTL    time.Duration
	metrics     *observability.AuthMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewOAuthService creates a new OAuth service
func NewOAuthService(
	registry ProviderRegistry,
	users repository.UserRepository,
	identities repository.IdentityRepository,
	store cache.Store,
	hasher PasswordHasher,
	establisher *SessionEstablisher,
	policy config.AccountAdoptionPolicy,
	stateTTL time.Duration,
	metrics *observability.AuthMetrics,
	logger *zap.Logger,
) OAuthService {
	return &oauthService{
		registry:    registry,
		users:       users,
		identities:  identities,
		store:       store,
		hasher:      hasher,
		establisher: establisher,
		policy:      policy,
		stateTTL:    stateTTL,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

func oauthStateKey(state string) string {
	return "oauth:state:" + state
}

// Redirect returns the provider consent URL. The state and PKCE verifier
// are kept server side until the callback.
func (s *oauthService) Redirect(ctx context.Context, provider string) (string, error) {
	p, ok := s.registry.Get(provider)
	if !ok {
		return "", apperr.NotFound(oauthUnsupported)
	}

	state, err := utils.RandomToken(32)
	if err != nil {
		return "", err
	}
	verifier := oauth.NewVerifier()

	payload, err := json.Marshal(oauthState{Provider: p.Name(), Verifier: verifier})
	if err != nil {
		return "", fmt.Errorf("failed to encode oauth state: %w", err)
	}
	if err := s.store.Put(ctx, oauthStateKey(state), payload, s.stateTTL); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}

	target, err := p.AuthCodeURL(ctx, state, verifier)
	if err != nil {
		s.logger.Warn("OAuth redirect failed", zap.String("provider", p.Name()), zap.Error(err))
		return "", apperr.ProviderFailure(oauthFailed, err)
	}

	return target, nil
}

// Callback finishes the code flow and logs the matching local user in,
// creating one when needed.
func (s *oauthService) Callback(ctx context.Context, cb OAuthCallback) (*OAuthResult, error) {
	p, ok := s.registry.Get(cb.Provider)
	if !ok {
		return nil, apperr.NotFound(oauthUnsupported)
	}
	name := p.Name()

	verifier, err := s.pullState(ctx, name, cb.State)
	if err != nil {
		s.logger.Warn("OAuth callback failed", zap.String("provider", name), zap.Error(err))
		s.metrics.Attempt(ctx, string(domain.FlowOAuth), "invalid_state")
		return nil, apperr.ProviderState(oauthFailed, err)
	}

	if cb.Code == "" {
		s.metrics.Attempt(ctx, string(domain.FlowOAuth), "invalid_state")
		return nil, apperr.ProviderState(oauthFailed, errors.New("missing authorization code"))
	}

	profile, err := p.Exchange(ctx, cb.Code, verifier)
	if err != nil {
		s.logger.Warn("OAuth callback failed", zap.String("provider", name), zap.Error(err))
		if errors.Is(err, oauth.ErrInvalidGrant) {
			s.metrics.Attempt(ctx, string(domain.FlowOAuth), "invalid_state")
			return nil, apperr.ProviderState(oauthFailed, err)
		}
		s.metrics.Attempt(ctx, string(domain.FlowOAuth), "provider_failure")
		return nil, apperr.ProviderFailure(oauthFailed, err)
	}

	email := utils.NormalizeEmail(profile.Email)
	if email == "" {
		return nil, apperr.Validation("email", oauthNoEmail)
	}

	user, err := s.findOrCreateUser(ctx, name, profile, email)
	if err != nil {
		if kind := apperr.KindOf(err); kind != apperr.KindInternal {
			s.metrics.Attempt(ctx, string(domain.FlowOAuth), kind.String())
		}
		return nil, err
	}

	identity := &domain.UserIdentity{
		UserID:        user.ID,
		Provider:      name,
		ProviderID:    profile.ID,
		ProviderEmail: email,
		Data:          profile.Data(),
	}
	if err := s.identities.Upsert(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to link identity: %w", err)
	}

	established, err := s.establisher.Establish(ctx, domain.AuthenticatedPrincipal{
		User:      user,
		Flow:      domain.FlowOAuth,
		Remember:  true,
		TokenName: "oauth-" + name,
	}, cb.SessionID)
	if err != nil {
		return nil, err
	}

	return &OAuthResult{Session: established, Provider: name}, nil
}

func (s *oauthService) pullState(ctx context.Context, provider, state string) (string, error) {
	if state == "" {
		return "", errors.New("missing state")
	}

	payload, err := s.store.Pull(ctx, oauthStateKey(state))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return "", errors.New("unknown or expired state")
		}
		return "", err
	}

	var stored oauthState
	if err := json.Unmarshal(payload, &stored); err != nil {
		return "", fmt.Errorf("failed to decode oauth state: %w", err)
	}
	if stored.Provider != provider {
		return "", fmt.Errorf("state was issued for %s", stored.Provider)
	}

	return stored.Verifier, nil
}

// findOrCreateUser matches on the normalized email. The unique index decides
// concurrent creations; the loser reads the winner's row.
func (s *oauthService) findOrCreateUser(ctx context.Context, provider string, profile *oauth.Profile, email string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return s.adopt(ctx, provider, profile, user)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	passwordHash, err := s.hasher.Unusable()
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	name := profile.Name
	if name == "" {
		name = profile.Nickname
	}
	if name == "" {
		name = email
	}

	user = &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
	}
	if profile.EmailVerified {
		now := s.now()
		user.EmailVerifiedAt = &now
	}

	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}

		user, err = s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		return s.adopt(ctx, provider, profile, user)
	}

	s.logger.Info("user created from OAuth profile", zap.String("user_id", user.ID))
	return user, nil
}

// adopt applies the account adoption policy to an existing local user. An
// identity already linked to the user is a returning login, not an adoption.
// A provider that has not verified the address never takes over an account.
func (s *oauthService) adopt(ctx context.Context, provider string, profile *oauth.Profile, user *domain.User) (*domain.User, error) {
	identity, err := s.identities.GetByProvider(ctx, provider, profile.ID)
	switch {
	case err == nil && identity.UserID == user.ID:
		return user, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	if !profile.EmailVerified {
		s.logger.Warn("refusing to link unverified provider email",
			zap.String("provider", provider),
			zap.String("user_id", user.ID),
		)
		return nil, apperr.Authorization("email", emailVerificationRequired)
	}
	if user.HasVerifiedEmail() || s.policy == config.AccountAdoptionAdopt {
		return user, nil
	}
	return nil, apperr.Authorization("email", emailVerificationRequired)
}
