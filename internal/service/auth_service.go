package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prperemyshlev/authgate/internal/apperr"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/internal/repository"
	"github.com/prperemyshlev/authgate/internal/utils"
	"github.com/prperemyshlev/authgate/pkg/observability"
	"go.uber.org/zap"
)

const (
	invalidCredentials = "Invalid credentials."
	loginThrottled     = "Too many login attempts. Try again in %d seconds."
	emailTaken         = "The email has already been taken."
	defaultDeviceName  = "api"
)

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type LoginInput struct {
	Email     string
	Password  string
	Remember  bool
	ClientIP  string
	SessionID string
}

// TokenInput requests a bearer token with a password. DeviceName names the
// token and falls back to UserAgent.
type TokenInput struct {
	Email      string
	Password   string
	DeviceName string
	UserAgent  string
	ClientIP   string
}

// ThrottleSettings bounds failed password attempts per email and IP
type ThrottleSettings struct {
	MaxAttempts int
	Decay       time.Duration
}

// authService implements AuthService interface
type authService struct {
	users       repository.UserRepository
	hasher      PasswordHasher
	limiter     *RateLimiter
	establisher *SessionEstablisher
	vault       *TokenVault
	throttle    ThrottleSettings
	metrics     *observability.AuthMetrics
	logger      *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	users repository.UserRepository,
	hasher PasswordHasher,
	limiter *RateLimiter,
	establisher *SessionEstablisher,
	vault *TokenVault,
	throttle ThrottleSettings,
	metrics *observability.AuthMetrics,
	logger *zap.Logger,
) AuthService {
	return &authService{
		users:       users,
		hasher:      hasher,
		limiter:     limiter,
		establisher: establisher,
		vault:       vault,
		throttle:    throttle,
		metrics:     metrics,
		logger:      logger,
	}
}

// Register registers a new user
func (s *authService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := utils.NormalizeEmail(in.Email)

	fields := map[string][]string{}
	switch {
	case name == "":
		fields["name"] = []string{"The name field is required."}
	case utils.Length(name) > 255:
		fields["name"] = []string{"The name field must not be greater than 255 characters."}
	}
	switch {
	case email == "":
		fields["email"] = []string{"The email field is required."}
	case utils.Length(email) > 255:
		fields["email"] = []string{"The email field must not be greater than 255 characters."}
	case !utils.ValidateEmail(email):
		fields["email"] = []string{"The email field must be a valid email address."}
	}
	switch {
	case in.Password == "":
		fields["password"] = []string{"The password field is required."}
	case !utils.ValidatePassword(in.Password):
		fields["password"] = []string{"The password field must be at least 8 characters and contain an uppercase letter, a lowercase letter and a number."}
	}

	// Advisory only; the unique index has the final word below.
	if _, ok := fields["email"]; !ok {
		_, err := s.users.GetByEmail(ctx, email)
		if err == nil {
			fields["email"] = []string{emailTaken}
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to check user existence: %w", err)
		}
	}

	if len(fields) > 0 {
		return nil, apperr.ValidationFields(fields)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperr.Validation("email", emailTaken)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Login authenticates a user with a password and starts a session
func (s *authService) Login(ctx context.Context, in LoginInput) (*domain.EstablishedSession, error) {
	email := utils.NormalizeEmail(in.Email)
	if err := validateCredentialsInput(email, in.Password); err != nil {
		return nil, err
	}

	user, err := s.attempt(ctx, email, in.Password, in.ClientIP)
	if err != nil {
		return nil, err
	}

	return s.establisher.Establish(ctx, domain.AuthenticatedPrincipal{
		User:                 user,
		Flow:                 domain.FlowPassword,
		Remember:             in.Remember,
		RequireVerifiedEmail: true,
	}, in.SessionID)
}

// IssueToken exchanges a password for a bearer token without a session
func (s *authService) IssueToken(ctx context.Context, in TokenInput) (*domain.IssuedToken, error) {
	email := utils.NormalizeEmail(in.Email)
	if err := validateCredentialsInput(email, in.Password); err != nil {
		return nil, err
	}
	if utils.Length(in.DeviceName) > 255 {
		return nil, apperr.Validation("device_name", "The device name field must not be greater than 255 characters.")
	}

	user, err := s.attempt(ctx, email, in.Password, in.ClientIP)
	if err != nil {
		return nil, err
	}

	if !user.HasVerifiedEmail() {
		s.metrics.Attempt(ctx, string(domain.FlowToken), "unverified")
		return nil, apperr.Authorization("email", emailVerificationRequired)
	}

	name := strings.TrimSpace(in.DeviceName)
	if name == "" {
		name = strings.TrimSpace(in.UserAgent)
	}
	if name == "" {
		name = defaultDeviceName
	}
	if utils.Length(name) > 255 {
		name = string([]rune(name)[:255])
	}

	token, err := s.vault.Issue(ctx, user, name)
	if err != nil {
		return nil, err
	}

	s.metrics.Attempt(ctx, string(domain.FlowToken), "success")
	return token, nil
}

// Logout ends the session
func (s *authService) Logout(ctx context.Context, sessionID string) error {
	return s.establisher.Destroy(ctx, sessionID)
}

// attempt checks a password under the login throttle. The attempt is
// counted before the password is checked so concurrent guesses cannot share
// one slot; a success clears the key.
func (s *authService) attempt(ctx context.Context, email, password, ip string) (*domain.User, error) {
	key := email + "|" + ip

	throttle, err := s.limiter.Attempt(ctx, key, s.throttle.MaxAttempts, s.throttle.Decay)
	if err != nil {
		return nil, err
	}
	if !throttle.Allowed {
		s.metrics.Attempt(ctx, string(domain.FlowPassword), "throttled")
		return nil, apperr.RateLimited("email", loginThrottled, throttle.RetryAfter)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user == nil || !s.hasher.Check(password, user.PasswordHash) {
		s.metrics.Attempt(ctx, string(domain.FlowPassword), "invalid")
		return nil, apperr.Authentication("email", invalidCredentials)
	}

	if err := s.limiter.Clear(ctx, key); err != nil {
		s.logger.Warn("failed to clear login attempts", zap.Error(err))
	}

	return user, nil
}

func validateCredentialsInput(email, password string) error {
	fields := map[string][]string{}
	switch {
	case email == "":
		fields["email"] = []string{"The email field is required."}
	case !utils.ValidateEmail(email):
		fields["email"] = []string{"The email field must be a valid email address."}
	}
	if password == "" {
		fields["password"] = []string{"The password field is required."}
	}
	if len(fields) > 0 {
		return apperr.ValidationFields(fields)
	}
	return nil
}
