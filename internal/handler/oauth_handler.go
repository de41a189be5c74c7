package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/dto"
	"github.com/prperemyshlev/authgate/internal/service"
	"go.uber.org/zap"
)

// OAuthHandler handles external identity provider logins
type OAuthHandler struct {
	oauthService service.OAuthService
	cookie       SessionCookie
	logger       *zap.Logger
}

func NewOAuthHandler(oauthService service.OAuthService, cookie SessionCookie, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{
		oauthService: oauthService,
		cookie:       cookie,
		logger:       logger,
	}
}

// Redirect sends the browser to the provider's consent screen
// @Summary Start an OAuth login
// @Tags oauth
// @Param provider path string true "Provider name"
// @Success 302
// @Failure 404 {object} dto.ErrorResponse
// @Router /auth/oauth/redirect/{provider} [get]
func (h *OAuthHandler) Redirect(c *gin.Context) {
	target, err := h.oauthService.Redirect(c.Request.Context(), c.Param("provider"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Redirect(http.StatusFound, target)
}

// Callback finishes the login and returns a session and a bearer token
// @Summary Finish an OAuth login
// @Tags oauth
// @Produce json
// @Param provider path string true "Provider name"
// @Param code query string true "Authorization code"
// @Param state query string true "State"
// @Success 200 {object} dto.TokenLoginResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /auth/oauth/callback/{provider} [get]
func (h *OAuthHandler) Callback(c *gin.Context) {
	result, err := h.oauthService.Callback(c.Request.Context(), service.OAuthCallback{
		Provider:  c.Param("provider"),
		Code:      c.Query("code"),
		State:     c.Query("state"),
		SessionID: currentSessionID(c),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	established := result.Session
	h.cookie.Set(c, established.Session)
	c.JSON(http.StatusOK, dto.TokenLoginResponse{
		Token:    established.Token.PlainText,
		User:     dto.NewUserSummary(established.User),
		Provider: result.Provider,
		IDToken:  established.IDToken,
	})
}
