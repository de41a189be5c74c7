package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/apperr"
	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/prperemyshlev/authgate/internal/dto"
	"github.com/prperemyshlev/authgate/internal/service"
	"go.uber.org/zap"
)

const (
	userKey      = "user"
	sessionIDKey = "session_id"
	tokenIDKey   = "token_id"
)

// AuthMiddleware resolves the caller from the bearer token or the session
// cookie and stores it in the context. Anonymous requests pass through;
// RequireAuth rejects them.
func AuthMiddleware(authenticator *service.RequestAuthenticator, cookie SessionCookie, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if token, ok := bearerToken(c); ok {
			user, accessToken, err := authenticator.FromBearer(ctx, token)
			switch {
			case err == nil:
				c.Set(userKey, user)
				c.Set(tokenIDKey, accessToken.ID)
			case apperr.KindOf(err) == apperr.KindUnauthenticated:
				// unknown tokens leave the caller anonymous
			default:
				respondError(c, logger, err)
				return
			}
			c.Next()
			return
		}

		sessionID := cookie.Read(c)
		if sessionID != "" {
			c.Set(sessionIDKey, sessionID)
			user, _, err := authenticator.FromSession(ctx, sessionID)
			switch {
			case err == nil:
				c.Set(userKey, user)
			case apperr.KindOf(err) == apperr.KindUnauthenticated:
				// stale cookie, treat the caller as anonymous
			default:
				respondError(c, logger, err)
				return
			}
		}

		c.Next()
	}
}

// RequireAuth aborts with 401 unless AuthMiddleware found a user
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Message: "Unauthenticated.",
			})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func currentUser(c *gin.Context) *domain.User {
	value, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := value.(*domain.User)
	return user
}

// currentSessionID is the session presented with the request, if any
func currentSessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}
