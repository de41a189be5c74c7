package service

import (
	"context"
	"fmt"

	"github.com/prperemyshlev/authgate/internal/apperr"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/internal/utils"
	"github.com/prperemyshlev/authgate/pkg/observability"
	"go.uber.org/zap"
)

const emailVerificationRequired = "Email verification required."

// SessionEstablisher turns an AuthenticatedPrincipal into a logged-in state:
// a rotated session and, on request, a bearer token and an id_token.
type SessionEstablisher struct {
	sessions *SessionStore
	vault    *TokenVault
	signer   *utils.JWTSigner
	metrics  *observability.AuthMetrics
	logger   *zap.Logger
}

// NewSessionEstablisher creates a new establisher. signer may be nil, in
// which case no id_token is minted.
func NewSessionEstablisher(
	sessions *SessionStore,
	vault *TokenVault,
	signer *utils.JWTSigner,
	metrics *observability.AuthMetrics,
	logger *zap.Logger,
) *SessionEstablisher {
	return &SessionEstablisher{
		sessions: sessions,
		vault:    vault,
		signer:   signer,
		metrics:  metrics,
		logger:   logger,
	}
}

// Establish logs principal in. currentSessionID is the caller's session
// before login; it is always discarded so the id changes on every login.
func (e *SessionEstablisher) Establish(ctx context.Context, principal domain.AuthenticatedPrincipal, currentSessionID string) (*domain.EstablishedSession, error) {
	user := principal.User

	if principal.RequireVerifiedEmail && !user.HasVerifiedEmail() {
		if err := e.sessions.Destroy(ctx, currentSessionID); err != nil {
			e.logger.Warn("failed to destroy session", zap.Error(err))
		}
		e.metrics.Attempt(ctx, string(principal.Flow), "unverified")
		return nil, apperr.Authorization("email", emailVerificationRequired)
	}

	if err := e.sessions.Destroy(ctx, currentSessionID); err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	session, err := e.sessions.Create(ctx, user.ID, principal.Flow, principal.Remember)
	if err != nil {
		return nil, err
	}

	established := &domain.EstablishedSession{
		Session: session,
		User:    user,
	}

	if principal.TokenName != "" {
		token, err := e.vault.Issue(ctx, user, principal.TokenName)
		if err != nil {
			e.discard(ctx, session.ID)
			return nil, err
		}
		established.Token = token
	}

	if e.signer != nil {
		idToken, err := e.signer.SignIDToken(user, principal.Flow)
		if err != nil {
			e.discard(ctx, session.ID)
			return nil, err
		}
		established.IDToken = idToken
	}

	e.metrics.Attempt(ctx, string(principal.Flow), "success")
	e.logger.Info("session established",
		zap.String("user_id", user.ID),
		zap.String("flow", string(principal.Flow)),
		zap.Bool("remember", principal.Remember),
	)

	return established, nil
}

// Destroy ends a session, for logout and for rolling back a login whose
// surrounding transaction failed.
func (e *SessionEstablisher) Destroy(ctx context.Context, sessionID string) error {
	return e.sessions.Destroy(ctx, sessionID)
}

func (e *SessionEstablisher) discard(ctx context.Context, sessionID string) {
	if err := e.sessions.Destroy(ctx, sessionID); err != nil {
		e.logger.Warn("failed to discard session", zap.Error(err))
	}
}
