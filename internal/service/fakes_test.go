package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/authgate/internal/cache"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/internal/repository"
	"github.com/prperemyshlev/authgate/internal/utils"
	"go.uber.org/zap"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
	// createHook runs before Create stores the row, to simulate races
	createHook func(user *domain.User)
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]*domain.User)}
}

func (r *fakeUsers) Create(_ context.Context, user *domain.User) error {
	if r.createHook != nil {
		r.createHook(user)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("failed to create user: %w", repository.ErrDuplicateEmail)
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUsers) MarkEmailVerified(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.EmailVerifiedAt == nil {
		u.EmailVerifiedAt = &at
	}
	return nil
}

func (r *fakeUsers) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// seed stores a user with a bcrypt hash of password
func (r *fakeUsers) seed(t *testing.T, name, email, password string, verified bool) *domain.User {
	t.Helper()
	hash, err := utils.HashPassword(password, 4)
	if err != nil {
		t.Fatal(err)
	}
	user := &domain.User{Name: name, Email: email, PasswordHash: hash}
	if verified {
		now := time.Now()
		user.EmailVerifiedAt = &now
	}
	if err := r.Create(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	return user
}

type fakeMagicTokens struct {
	mu       sync.Mutex
	tokens   map[string]*domain.MagicLoginToken
	purgedAt []time.Time
}

func newFakeMagicTokens() *fakeMagicTokens {
	return &fakeMagicTokens{tokens: make(map[string]*domain.MagicLoginToken)}
}

func (r *fakeMagicTokens) Create(_ context.Context, token *domain.MagicLoginToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

// Consume holds the lock for the whole callback, like the row lock.
func (r *fakeMagicTokens) Consume(_ context.Context, id string, usage domain.MagicLinkUsage, check func(*domain.MagicLoginToken) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[id]
	if !ok {
		return repository.ErrNotFound
	}
	cp := *token
	if err := check(&cp); err != nil {
		return err
	}
	if token.UsedAt != nil {
		return repository.ErrTokenConsumed
	}
	usedAt := usage.UsedAt
	token.UsedAt = &usedAt
	token.UsedIP = usage.IP
	token.UsedUA = usage.UserAgent
	return nil
}

func (r *fakeMagicTokens) DeleteStaleForUser(_ context.Context, userID string, expiredBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgedAt = append(r.purgedAt, expiredBefore)
	var n int64
	for id, t := range r.tokens {
		if t.UserID == userID && t.UsedAt == nil && t.ExpiresAt.Before(expiredBefore) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeMagicTokens) DeleteExpired(_ context.Context, expiredBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.ExpiresAt.Before(expiredBefore) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeMagicTokens) get(id string) *domain.MagicLoginToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tokens[id]
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

type fakeIdentities struct {
	mu         sync.Mutex
	identities map[string]*domain.UserIdentity
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{identities: make(map[string]*domain.UserIdentity)}
}

func (r *fakeIdentities) Upsert(_ context.Context, identity *domain.UserIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := identity.Provider + ":" + identity.ProviderID
	now := time.Now()
	if existing, ok := r.identities[key]; ok {
		existing.UserID = identity.UserID
		existing.ProviderEmail = identity.ProviderEmail
		existing.Data = identity.Data
		existing.UpdatedAt = now
		identity.ID = existing.ID
		identity.CreatedAt = existing.CreatedAt
		identity.UpdatedAt = now
		return nil
	}
	identity.ID = uuid.New().String()
	identity.CreatedAt, identity.UpdatedAt = now, now
	cp := *identity
	r.identities[key] = &cp
	return nil
}

func (r *fakeIdentities) GetByProvider(_ context.Context, provider, providerID string) (*domain.UserIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.identities[provider+":"+providerID]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeIdentities) ListByUser(_ context.Context, userID string) ([]*domain.UserIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.UserIdentity{}
	for _, i := range r.identities {
		if i.UserID == userID {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeIdentities) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.identities)
}

type fakeCredentials struct {
	mu          sync.Mutex
	credentials map[string]*domain.WebAuthnCredential
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{credentials: make(map[string]*domain.WebAuthnCredential)}
}

func (r *fakeCredentials) Upsert(_ context.Context, credential *domain.WebAuthnCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.credentials[credential.CredentialID]; ok {
		if existing.UserID != credential.UserID {
			return repository.ErrCredentialOwnedByOtherUser
		}
		credential.ID = existing.ID
	} else {
		credential.ID = uuid.New().String()
	}
	cp := *credential
	r.credentials[credential.CredentialID] = &cp
	return nil
}

func (r *fakeCredentials) GetByCredentialID(_ context.Context, credentialID string) (*domain.WebAuthnCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.credentials[credentialID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeCredentials) ListByUser(_ context.Context, userID string) ([]*domain.WebAuthnCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.WebAuthnCredential{}
	for _, c := range r.credentials {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CredentialID < out[j].CredentialID })
	return out, nil
}

func (r *fakeCredentials) UpdateSignCount(_ context.Context, credentialID string, signCount uint32, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.credentials[credentialID]
	if !ok || c.SignCount > signCount {
		return repository.ErrSignCountRegression
	}
	c.SignCount = signCount
	c.LastUsedAt = &usedAt
	return nil
}

type fakeAccessTokens struct {
	mu     sync.Mutex
	tokens map[string]*domain.AccessToken
}

func newFakeAccessTokens() *fakeAccessTokens {
	return &fakeAccessTokens{tokens: make(map[string]*domain.AccessToken)}
}

func (r *fakeAccessTokens) Create(_ context.Context, token *domain.AccessToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *token
	r.tokens[token.ID] = &cp
	return nil
}

func (r *fakeAccessTokens) GetByID(_ context.Context, id string) (*domain.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccessTokens) ListByUser(_ context.Context, userID string) ([]*domain.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.AccessToken{}
	for _, t := range r.tokens {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAccessTokens) Delete(_ context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.UserID != userID {
		return false, nil
	}
	delete(r.tokens, id)
	return true, nil
}

func (r *fakeAccessTokens) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		t.LastUsedAt = &at
	}
	return nil
}

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []MagicLinkMessage
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg MagicLinkMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
}

func (d *recordingDispatcher) all() []MagicLinkMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]MagicLinkMessage(nil), d.messages...)
}

// harness wires the services over fakes and a memory cache
type harness struct {
	users       *fakeUsers
	magic       *fakeMagicTokens
	identities  *fakeIdentities
	credentials *fakeCredentials
	tokens      *fakeAccessTokens
	store       *cache.MemoryStore
	clock       *fakeClock
	sessions    *SessionStore
	vault       *TokenVault
	establisher *SessionEstablisher
	limiter     *RateLimiter
	logger      *zap.Logger
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := &fakeClock{now: time.Now()}
	h := &harness{
		users:       newFakeUsers(),
		magic:       newFakeMagicTokens(),
		identities:  newFakeIdentities(),
		credentials: newFakeCredentials(),
		tokens:      newFakeAccessTokens(),
		store:       cache.NewMemoryStore(cache.WithClock(clock.Now)),
		clock:       clock,
		logger:      zap.NewNop(),
	}

	h.sessions = NewSessionStore(h.store, 2*time.Hour, 30*24*time.Hour)
	h.sessions.now = clock.Now
	h.vault = NewTokenVault(h.tokens, h.users, nil, h.logger)
	h.vault.now = clock.Now
	h.establisher = NewSessionEstablisher(h.sessions, h.vault, nil, nil, h.logger)
	h.limiter = NewRateLimiter(h.store)

	return h
}

// liveSession reports whether id still resolves
func (h *harness) liveSession(t *testing.T, id string) bool {
	t.Helper()
	_, err := h.sessions.Get(context.Background(), id)
	return err == nil
}
