package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/authgate/internal/cache"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/internal/utils"
)

// ErrSessionNotFound is returned for unknown or expired session ids
var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps server-side sessions in the cache under session:<id>.
// The id itself is the cookie value.
type SessionStore struct {
	store            cache.Store
	lifetime         time.Duration
	rememberLifetime time.Duration
	now              func() time.Time
}

// NewSessionStore creates a new session store
func NewSessionStore(store cache.Store, lifetime, rememberLifetime time.Duration) *SessionStore {
	return &SessionStore{
		store:            store,
		lifetime:         lifetime,
		rememberLifetime: rememberLifetime,
		now:              time.Now,
	}
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// Create starts a session with a fresh random id
func (s *SessionStore) Create(ctx context.Context, userID string, flow domain.AuthFlow, remember bool) (*domain.Session, error) {
	id, err := utils.RandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	ttl := s.lifetime
	if remember {
		ttl = s.rememberLifetime
	}

	now := s.now()
	session := &domain.Session{
		ID:        id,
		UserID:    userID,
		Flow:      flow,
		Remember:  remember,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	if err := s.store.Put(ctx, sessionKey(id), payload, ttl); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// Get loads a live session
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}

	payload, err := s.store.Get(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	session.ID = id

	return &session, nil
}

// Destroy removes a session. Unknown ids are not an error.
func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.store.Delete(ctx, sessionKey(id)); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}
