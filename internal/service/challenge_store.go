package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/prperemyshlev/authgate/internal/cache"
	"github.com/prperemyshlev/authgate/internal/domain"
)

// ErrChallengeNotFound is returned when no live challenge exists
var ErrChallengeNotFound = errors.New("challenge not found")

// ChallengeStore keeps one outstanding WebAuthn challenge per ceremony type
// and user. Issuing a new one replaces the previous.
type ChallengeStore struct {
	store cache.Store
	ttl   time.Duration
}

// NewChallengeStore creates a new challenge store
func NewChallengeStore(store cache.Store, ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{store: store, ttl: ttl}
}

func challengeKey(ceremony domain.CeremonyType, userID string) string {
	return fmt.Sprintf("webauthn:%s:%s", ceremony, userID)
}

// Issue creates a random 32 byte challenge and returns it base64url encoded
func (s *ChallengeStore) Issue(ctx context.Context, ceremony domain.CeremonyType, userID string) (protocol.URLEncodedBase64, error) {
	challenge, err := protocol.CreateChallenge()
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	if err := s.store.Put(ctx, challengeKey(ceremony, userID), []byte(challenge.String()), s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	return challenge, nil
}

// Pull returns the challenge and deletes it, so each one verifies at most once
func (s *ChallengeStore) Pull(ctx context.Context, ceremony domain.CeremonyType, userID string) (string, error) {
	value, err := s.store.Pull(ctx, challengeKey(ceremony, userID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return "", ErrChallengeNotFound
		}
		return "", fmt.Errorf("failed to pull challenge: %w", err)
	}
	if len(value) == 0 {
		return "", ErrChallengeNotFound
	}
	return string(value), nil
}
