package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prperemyshlev/authgate/internal/apperr"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthService(h *harness) AuthService {
	return NewAuthService(
		h.users,
		utils.BCryptHasher{Cost: 4},
		h.limiter,
		h.establisher,
		h.vault,
		ThrottleSettings{MaxAttempts: 5, Decay: 60 * time.Second},
		nil,
		h.logger,
	)
}

func TestAuthServiceRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes email and hashes password", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)

		user, err := svc.Register(ctx, RegisterInput{Name: "  Ada Lovelace ", Email: " Ada@Example.COM ", Password: "Password123"})
		require.NoError(t, err)

		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "Ada Lovelace", user.Name)
		assert.Equal(t, "ada@example.com", user.Email)
		assert.NotEqual(t, "Password123", user.PasswordHash)
		assert.True(t, utils.CheckPasswordHash("Password123", user.PasswordHash))
		assert.False(t, user.HasVerifiedEmail())
	})

	t.Run("duplicate email ignores case", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)
		h.users.seed(t, "Ada", "ada@example.com", "Password123", true)

		_, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ADA@example.com", Password: "Password123"})
		requireFieldError(t, err, apperr.KindValidation, "email", emailTaken)
	})

	t.Run("duplicate detected by the store", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)
		h.users.createHook = func(user *domain.User) {
			h.users.createHook = nil
			h.users.seed(t, "Racer", user.Email, "Password123", false)
		}

		_, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "Password123"})
		requireFieldError(t, err, apperr.KindValidation, "email", emailTaken)
	})

	t.Run("validation", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)

		_, err := svc.Register(ctx, RegisterInput{Name: strings.Repeat("n", 256), Email: "nope", Password: "weak"})

		appErr, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindValidation, appErr.Kind)
		assert.Contains(t, appErr.Fields, "name")
		assert.Contains(t, appErr.Fields, "email")
		assert.Contains(t, appErr.Fields, "password")
		assert.Equal(t, 0, h.users.count())
	})
}

func TestAuthServiceLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("success rotates the session", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)
		user := h.users.seed(t, "Ada", "ada@example.com", "Password123", true)
		previous, err := h.sessions.Create(ctx, "guest", domain.FlowPassword, false)
		require.NoError(t, err)

		established, err := svc.Login(ctx, LoginInput{Email: "ADA@example.com", Password: "Password123", Remember: true, ClientIP: "10.0.0.1", SessionID: previous.ID})
		require.NoError(t, err)

		assert.Equal(t, user.ID, established.User.ID)
		assert.Equal(t, domain.FlowPassword, established.Session.Flow)
		assert.True(t, established.Session.Remember)
		assert.Nil(t, established.Token)
		assert.Empty(t, established.IDToken)
		assert.False(t, h.liveSession(t, previous.ID))
		assert.True(t, h.liveSession(t, established.Session.ID))
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)
		h.users.seed(t, "Ada", "ada@example.com", "Password123", true)

		_, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Wrong1234", ClientIP: "10.0.0.1"})
		requireFieldError(t, err, apperr.KindAuthentication, "email", invalidCredentials)

		_, err = svc.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "Wrong1234", ClientIP: "10.0.0.1"})
		requireFieldError(t, err, apperr.KindAuthentication, "email", invalidCredentials)
	})

	t.Run("throttles after repeated failures", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)
		h.users.seed(t, "Ada", "ada@example.com", "Password123", true)

		for i := 0; i < 5; i++ {
			_, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Wrong1234", ClientIP: "10.0.0.1"})
			require.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
		}

		// the right password is refused while throttled
		_, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Password123", ClientIP: "10.0.0.1"})
		appErr, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindRateLimited, appErr.Kind)
		assert.Equal(t, "Too many login attempts. Try again in 60 seconds.", appErr.Message)
		assert.Equal(t, 60*time.Second, appErr.RetryAfter)

		// a different IP has its own budget
		_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Password123", ClientIP: "10.0.0.2"})
		require.NoError(t, err)

		h.clock.Advance(61 * time.Second)
		_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Password123", ClientIP: "10.0.0.1"})
		require.NoError(t, err)
	})

	t.Run("concurrent guesses share one budget", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)
		h.users.seed(t, "Ada", "ada@example.com", "Password123", true)

		var wg sync.WaitGroup
		kinds := make(chan apperr.Kind, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Wrong1234", ClientIP: "10.0.0.1"})
				kinds <- apperr.KindOf(err)
			}()
		}
		wg.Wait()
		close(kinds)

		counts := map[apperr.Kind]int{}
		for kind := range kinds {
			counts[kind]++
		}
		assert.Equal(t, 5, counts[apperr.KindAuthentication])
		assert.Equal(t, 15, counts[apperr.KindRateLimited])
	})

	t.Run("success clears earlier failures", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)
		h.users.seed(t, "Ada", "ada@example.com", "Password123", true)

		for i := 0; i < 4; i++ {
			_, _ = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Wrong1234", ClientIP: "10.0.0.1"})
		}
		_, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Password123", ClientIP: "10.0.0.1"})
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Wrong1234", ClientIP: "10.0.0.1"})
			assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
		}
	})

	t.Run("unverified email is refused and the session is dropped", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)
		h.users.seed(t, "Ada", "ada@example.com", "Password123", false)
		previous, err := h.sessions.Create(ctx, "guest", domain.FlowPassword, false)
		require.NoError(t, err)

		_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Password123", ClientIP: "10.0.0.1", SessionID: previous.ID})

		requireFieldError(t, err, apperr.KindAuthorization, "email", emailVerificationRequired)
		assert.False(t, h.liveSession(t, previous.ID))
	})

	t.Run("missing fields", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)

		_, err := svc.Login(ctx, LoginInput{})

		appErr, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.KindValidation, appErr.Kind)
		assert.Contains(t, appErr.Fields, "email")
		assert.Contains(t, appErr.Fields, "password")
	})
}

func TestAuthServiceIssueToken(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name       string
		deviceName string
		userAgent  string
		expected   string
	}{
		{name: "device name wins", deviceName: "cli", userAgent: "curl/8.0", expected: "cli"},
		{name: "falls back to user agent", userAgent: "curl/8.0", expected: "curl/8.0"},
		{name: "falls back to api", expected: "api"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			svc := newTestAuthService(h)
			user := h.users.seed(t, "Ada", "ada@example.com", "Password123", true)

			issued, err := svc.IssueToken(ctx, TokenInput{
				Email:      "ada@example.com",
				Password:   "Password123",
				DeviceName: tc.deviceName,
				UserAgent:  tc.userAgent,
				ClientIP:   "10.0.0.1",
			})
			require.NoError(t, err)

			assert.Equal(t, tc.expected, issued.Token.Name)
			assert.Equal(t, user.ID, issued.Token.UserID)
			assert.True(t, strings.HasPrefix(issued.PlainText, issued.Token.ID+"|"))
		})
	}

	t.Run("unverified email", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)
		h.users.seed(t, "Ada", "ada@example.com", "Password123", false)

		_, err := svc.IssueToken(ctx, TokenInput{Email: "ada@example.com", Password: "Password123"})

		assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
	})

	t.Run("concurrent guesses share one budget", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestAuthService(h)
		h.users.seed(t, "Ada", "ada@example.com", "Password123", true)

		var wg sync.WaitGroup
		kinds := make(chan apperr.Kind, 12)
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.IssueToken(ctx, TokenInput{Email: "ada@example.com", Password: "Wrong1234", ClientIP: "10.0.0.1"})
				kinds <- apperr.KindOf(err)
			}()
		}
		wg.Wait()
		close(kinds)

		counts := map[apperr.Kind]int{}
		for kind := range kinds {
			counts[kind]++
		}
		assert.Equal(t, 5, counts[apperr.KindAuthentication])
		assert.Equal(t, 7, counts[apperr.KindRateLimited])
	})
}

func TestAuthServiceLogout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := newTestAuthService(h)
	h.users.seed(t, "Ada", "ada@example.com", "Password123", true)

	established, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Password123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, established.Session.ID))
	assert.False(t, h.liveSession(t, established.Session.ID))
	assert.NoError(t, svc.Logout(ctx, ""))
}
