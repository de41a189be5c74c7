package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned when the lower-cased email is already taken
	ErrDuplicateEmail = errors.New("user with this email already exists")

	// ErrCredentialOwnedByOtherUser is returned when a WebAuthn credential id is
	// already registered to a different account
	ErrCredentialOwnedByOtherUser = errors.New("credential is registered to another user")

	// ErrSignCountRegression is returned when an authenticator reports a
	// signature counter lower than the stored one
	ErrSignCountRegression = errors.New("sign count regression")

	// ErrTokenConsumed is returned when a magic-link token was used concurrently
	ErrTokenConsumed = errors.New("magic link token already consumed")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
