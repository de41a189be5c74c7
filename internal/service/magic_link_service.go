package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/authgate/internal/apperr"
	"github.com/prperemyshlev/authgate/internal/config"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/internal/repository"
	"github.com/prperemyshlev/authgate/internal/utils"
	"github.com/prperemyshlev/authgate/pkg/observability"
	"go.uber.org/zap"
)

const (
	magicLinkPath         = "/auth/magic/verify"
	magicLinkSecretBytes  = 48 // 64 base64url characters
	magicLinkPurgeGrace   = 5 * time.Minute
	magicLinkInvalid      = "This link is invalid or has expired."
	magicLinkThrottled    = "Too many attempts. Try again in %d seconds."
	magicLinkVerifyFirst  = "Please verify your email first."
	magicLinkMinSecretLen = 40
	magicLinkMaxSecretLen = 128
)

// MagicLinkRequest asks for a login link to be sent to Email
type MagicLinkRequest struct {
	Email      string
	Remember   bool
	RedirectTo string
	ClientIP   string
	UserAgent  string
}

// MagicLinkVerification is a clicked link. SignatureValid is decided by the
// transport layer, which sees the full request URL.
type MagicLinkVerification struct {
	ID             string
	Secret         string
	SignatureValid bool
	ClientIP       string
	UserAgent      string
	SessionID      string
}

type MagicLinkResult struct {
	Session    *domain.EstablishedSession
	RedirectTo string
}

// MessageDispatcher queues notifications without blocking
type MessageDispatcher interface {
	Dispatch(ctx context.Context, msg MagicLinkMessage)
}

// MagicLinkSettings carries the configuration the service needs
type MagicLinkSettings struct {
	AppURL           string
	HomeURL          string
	TTL              time.Duration
	MaxAttempts      int
	Decay            time.Duration
	UnverifiedPolicy config.UnverifiedPolicy
}

// magicLinkService implements MagicLinkService interface
type magicLinkService struct {
	users       repository.UserRepository
	tokens      repository.MagicLoginTokenRepository
	limiter     *RateLimiter
	signer      *utils.URLSigner
	establisher *SessionEstablisher
	dispatcher  MessageDispatcher
	settings    MagicLinkSettings
	metrics     *observability.AuthMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewMagicLinkService creates a new magic link service
func NewMagicLinkService(
	users repository.UserRepository,
	tokens repository.MagicLoginTokenRepository,
	limiter *RateLimiter,
	signer *utils.URLSigner,
	establisher *SessionEstablisher,
	dispatcher MessageDispatcher,
	settings MagicLinkSettings,
	metrics *observability.AuthMetrics,
	logger *zap.Logger,
) MagicLinkService {
	return &magicLinkService{
		users:       users,
		tokens:      tokens,
		limiter:     limiter,
		signer:      signer,
		establisher: establisher,
		dispatcher:  dispatcher,
		settings:    settings,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

func magicLinkThrottleKey(email, ip string) string {
	sum := sha1.Sum([]byte(email + "|" + ip))
	return "magiclink:" + hex.EncodeToString(sum[:])
}

// RequestLink issues a link when the address belongs to an account. The
// result is the same whether or not it does.
func (s *magicLinkService) RequestLink(ctx context.Context, req MagicLinkRequest) error {
	email := utils.NormalizeEmail(req.Email)
	redirectTo := strings.TrimSpace(req.RedirectTo)

	fields := map[string][]string{}
	switch {
	case email == "":
		fields["email"] = []string{"The email field is required."}
	case utils.Length(email) > 255:
		fields["email"] = []string{"The email field must not be greater than 255 characters."}
	case !utils.ValidateEmail(email):
		fields["email"] = []string{"The email field must be a valid email address."}
	}
	if utils.Length(redirectTo) > 2048 {
		fields["redirect_to"] = []string{"The redirect to field must not be greater than 2048 characters."}
	}
	if len(fields) > 0 {
		return apperr.ValidationFields(fields)
	}

	if redirectTo == "" {
		redirectTo = s.settings.HomeURL
	}

	// every request spends an attempt, known address or not
	throttle, err := s.limiter.Attempt(ctx, magicLinkThrottleKey(email, req.ClientIP), s.settings.MaxAttempts, s.settings.Decay)
	if err != nil {
		return err
	}
	if !throttle.Allowed {
		s.metrics.Attempt(ctx, string(domain.FlowMagicLink), "throttled")
		return apperr.RateLimited("email", magicLinkThrottled, throttle.RetryAfter)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("magic link requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	secret, err := utils.RandomToken(magicLinkSecretBytes)
	if err != nil {
		return err
	}

	now := s.now()
	expiresAt := now.Add(s.settings.TTL)
	token := &domain.MagicLoginToken{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		TokenHash:  utils.SHA256Hex(secret),
		ExpiresAt:  expiresAt,
		Remember:   req.Remember,
		RedirectTo: redirectTo,
		IP:         req.ClientIP,
		UserAgent:  req.UserAgent,
		CreatedAt:  now,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return fmt.Errorf("failed to save magic login token: %w", err)
	}

	link, err := s.signer.Sign(strings.TrimRight(s.settings.AppURL, "/")+magicLinkPath, url.Values{
		"id": {token.ID},
		"t":  {secret},
	}, expiresAt)
	if err != nil {
		return err
	}

	s.dispatcher.Dispatch(ctx, MagicLinkMessage{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Subject:   magicLinkSubject,
		URL:       link,
		ExpiresAt: expiresAt,
	})

	return nil
}

// Verify consumes a link and logs its owner in. Every way a link can be bad
// produces the same error.
func (s *magicLinkService) Verify(ctx context.Context, v MagicLinkVerification) (*MagicLinkResult, error) {
	if !v.SignatureValid {
		s.metrics.Attempt(ctx, string(domain.FlowMagicLink), "invalid")
		return nil, apperr.Authentication("link", magicLinkInvalid)
	}

	fields := map[string][]string{}
	if v.ID == "" {
		fields["id"] = []string{"The id field is required."}
	}
	if v.Secret == "" {
		fields["t"] = []string{"The t field is required."}
	} else if n := utils.Length(v.Secret); n < magicLinkMinSecretLen || n > magicLinkMaxSecretLen {
		fields["t"] = []string{"The t field must be between 40 and 128 characters."}
	}
	if len(fields) > 0 {
		return nil, apperr.ValidationFields(fields)
	}

	invalid := apperr.Authentication("link", magicLinkInvalid)
	if _, err := uuid.Parse(v.ID); err != nil {
		s.metrics.Attempt(ctx, string(domain.FlowMagicLink), "invalid")
		return nil, invalid
	}

	now := s.now()
	usage := domain.MagicLinkUsage{UsedAt: now, IP: v.ClientIP, UserAgent: v.UserAgent}

	var (
		established *domain.EstablishedSession
		redirectTo  string
		userID      string
	)

	err := s.tokens.Consume(ctx, v.ID, usage, func(token *domain.MagicLoginToken) error {
		if token.IsExpired(now) || token.IsUsed() || !utils.ConstantTimeEqual(utils.SHA256Hex(v.Secret), token.TokenHash) {
			return invalid
		}

		user, err := s.users.GetByID(ctx, token.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return invalid
			}
			return fmt.Errorf("failed to get user: %w", err)
		}

		if !user.HasVerifiedEmail() {
			if s.settings.UnverifiedPolicy == config.UnverifiedPolicyBlock {
				return apperr.Authorization("email", magicLinkVerifyFirst)
			}
			if err := s.users.MarkEmailVerified(ctx, user.ID, now); err != nil {
				return fmt.Errorf("failed to mark email verified: %w", err)
			}
			user.EmailVerifiedAt = &now
		}

		established, err = s.establisher.Establish(ctx, domain.AuthenticatedPrincipal{
			User:     user,
			Flow:     domain.FlowMagicLink,
			Remember: token.Remember,
		}, v.SessionID)
		if err != nil {
			return err
		}

		redirectTo = token.RedirectTo
		userID = user.ID
		return nil
	})
	if err != nil {
		if established != nil {
			if destroyErr := s.establisher.Destroy(ctx, established.Session.ID); destroyErr != nil {
				s.logger.Warn("failed to destroy session after aborted magic link login", zap.Error(destroyErr))
			}
		}
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrTokenConsumed) {
			s.metrics.Attempt(ctx, string(domain.FlowMagicLink), "invalid")
			return nil, invalid
		}
		if _, ok := apperr.As(err); ok {
			s.metrics.Attempt(ctx, string(domain.FlowMagicLink), apperr.KindOf(err).String())
			return nil, err
		}
		return nil, fmt.Errorf("failed to consume magic link: %w", err)
	}

	if n, err := s.tokens.DeleteStaleForUser(ctx, userID, now.Add(-magicLinkPurgeGrace)); err != nil {
		s.logger.Warn("failed to purge stale magic links", zap.String("user_id", userID), zap.Error(err))
	} else if n > 0 {
		s.logger.Debug("purged stale magic links", zap.String("user_id", userID), zap.Int64("count", n))
	}

	if redirectTo == "" {
		redirectTo = s.settings.HomeURL
	}

	return &MagicLinkResult{
		Session:    established,
		RedirectTo: redirectTo,
	}, nil
}
