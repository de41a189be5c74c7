package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/internal/repository"
	"github.com/prperemyshlev/authgate/internal/service"
	"github.com/stretchr/testify/mock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) Register(ctx context.Context, in service.RegisterInput) (*domain.User, error) {
	args := m.Called(ctx, in)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *mockAuthService) Login(ctx context.Context, in service.LoginInput) (*domain.EstablishedSession, error) {
	args := m.Called(ctx, in)
	established, _ := args.Get(0).(*domain.EstablishedSession)
	return established, args.Error(1)
}

func (m *mockAuthService) IssueToken(ctx context.Context, in service.TokenInput) (*domain.IssuedToken, error) {
	args := m.Called(ctx, in)
	token, _ := args.Get(0).(*domain.IssuedToken)
	return token, args.Error(1)
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

type mockMagicLinkService struct{ mock.Mock }

func (m *mockMagicLinkService) RequestLink(ctx context.Context, req service.MagicLinkRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockMagicLinkService) Verify(ctx context.Context, v service.MagicLinkVerification) (*service.MagicLinkResult, error) {
	args := m.Called(ctx, v)
	result, _ := args.Get(0).(*service.MagicLinkResult)
	return result, args.Error(1)
}

type mockOAuthService struct{ mock.Mock }

func (m *mockOAuthService) Redirect(ctx context.Context, provider string) (string, error) {
	args := m.Called(ctx, provider)
	return args.String(0), args.Error(1)
}

func (m *mockOAuthService) Callback(ctx context.Context, cb service.OAuthCallback) (*service.OAuthResult, error) {
	args := m.Called(ctx, cb)
	result, _ := args.Get(0).(*service.OAuthResult)
	return result, args.Error(1)
}

type mockWebAuthnService struct{ mock.Mock }

func (m *mockWebAuthnService) Options(ctx context.Context, req service.OptionsRequest) (*service.CeremonyOptions, error) {
	args := m.Called(ctx, req)
	options, _ := args.Get(0).(*service.CeremonyOptions)
	return options, args.Error(1)
}

func (m *mockWebAuthnService) Register(ctx context.Context, user *domain.User, req service.RegisterCredential) (*domain.WebAuthnCredential, error) {
	args := m.Called(ctx, user, req)
	credential, _ := args.Get(0).(*domain.WebAuthnCredential)
	return credential, args.Error(1)
}

func (m *mockWebAuthnService) Verify(ctx context.Context, req service.VerifyAssertion) (*domain.EstablishedSession, error) {
	args := m.Called(ctx, req)
	established, _ := args.Get(0).(*domain.EstablishedSession)
	return established, args.Error(1)
}

// memoryUsers is enough of a user table for the auth middleware
type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemoryUsers(users ...*domain.User) *memoryUsers {
	m := &memoryUsers{users: make(map[string]*domain.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memoryUsers) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUsers) MarkEmailVerified(context.Context, string, time.Time) error {
	return nil
}

type memoryTokens struct {
	mu     sync.Mutex
	tokens map[string]*domain.AccessToken
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{tokens: make(map[string]*domain.AccessToken)}
}

func (m *memoryTokens) Create(_ context.Context, token *domain.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.ID] = &cp
	return nil
}

func (m *memoryTokens) GetByID(_ context.Context, id string) (*domain.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryTokens) ListByUser(_ context.Context, userID string) ([]*domain.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.AccessToken{}
	for _, t := range m.tokens {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryTokens) Delete(_ context.Context, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok && t.UserID == userID {
		delete(m.tokens, id)
		return true, nil
	}
	return false, nil
}

func (m *memoryTokens) Touch(context.Context, string, time.Time) error {
	return nil
}
