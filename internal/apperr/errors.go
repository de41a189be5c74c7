// Package apperr defines the error kinds returned by authentication flows.
// Services return *Error values; the HTTP layer maps Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

type Kind int

const (
	KindInternal Kind = iota
	// KindValidation is malformed or missing input.
	KindValidation
	// KindAuthentication covers bad credentials, signatures and challenges.
	// Messages are deliberately generic.
	KindAuthentication
	// KindUnauthenticated means the caller presented no usable session or token.
	KindUnauthenticated
	// KindAuthorization covers authenticated callers that may not proceed,
	// including accounts with an unverified email.
	KindAuthorization
	KindRateLimited
	KindNotFound
	// KindProviderState is an upstream rejection that points at a stale or
	// forged state parameter.
	KindProviderState
	// KindProviderFailure is any other upstream failure.
	KindProviderFailure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindAuthorization:
		return "authorization"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindProviderState:
		return "provider_state"
	case KindProviderFailure:
		return "provider_failure"
	default:
		return "internal"
	}
}

// Error is a user-facing failure. Fields holds messages keyed by input field.
type Error struct {
	Kind       Kind
	Message    string
	Fields     map[string][]string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithField adds a message under field and returns e.
func (e *Error) WithField(field, message string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
	return e
}

// FieldErrors returns a copy of the field map.
func (e *Error) FieldErrors() map[string][]string {
	if len(e.Fields) == 0 {
		return nil
	}
	return maps.Clone(e.Fields)
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation reports a problem with a single input field.
func Validation(field, message string) *Error {
	return newError(KindValidation, message).WithField(field, message)
}

// ValidationFields reports several field problems at once.
func ValidationFields(fields map[string][]string) *Error {
	e := newError(KindValidation, "The given data was invalid.")
	for field, messages := range fields {
		for _, m := range messages {
			e.WithField(field, m)
		}
	}
	if len(fields) == 1 {
		for _, messages := range fields {
			if len(messages) > 0 {
				e.Message = messages[0]
			}
		}
	}
	return e
}

func Authentication(field, message string) *Error {
	return newError(KindAuthentication, message).WithField(field, message)
}

func Unauthenticated() *Error {
	return newError(KindUnauthenticated, "Unauthenticated.")
}

func Authorization(field, message string) *Error {
	e := newError(KindAuthorization, message)
	if field != "" {
		e.WithField(field, message)
	}
	return e
}

// RateLimited reports an exhausted throttle. retryAfter is rounded up to whole
// seconds in the message.
func RateLimited(field, format string, retryAfter time.Duration) *Error {
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	message := fmt.Sprintf(format, seconds)
	e := newError(KindRateLimited, message).WithField(field, message)
	e.RetryAfter = time.Duration(seconds) * time.Second
	return e
}

func NotFound(message string) *Error {
	return newError(KindNotFound, message)
}

func ProviderState(message string, err error) *Error {
	e := newError(KindProviderState, message)
	e.Err = err
	return e
}

func ProviderFailure(message string, err error) *Error {
	e := newError(KindProviderFailure, message)
	e.Err = err
	return e
}

// Internal wraps an unexpected failure. Its message is never shown to clients.
func Internal(err error) *Error {
	e := newError(KindInternal, "Server Error")
	e.Err = err
	return e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns KindInternal for errors that are not *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
