package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/apperr"
	"github.com/prperemyshlev/authgate/internal/dto"
	"github.com/prperemyshlev/authgate/internal/service"
	"go.uber.org/zap"
)

// AuthHandler handles password authentication requests
type AuthHandler struct {
	authService service.AuthService
	cookie      SessionCookie
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService service.AuthService, cookie SessionCookie, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cookie:      cookie,
		logger:      logger,
	}
}

// Register handles user registration
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration request"
// @Success 201 {object} dto.UserEnvelope
// @Failure 422 {object} dto.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.UserEnvelope{
		Data: dto.NewUserResponse(user),
		Meta: &dto.Meta{Message: "Registered successfully"},
	})
}

// Login handles password login and starts a session
// @Summary Login user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.UserEnvelope
// @Failure 403 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	established, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		Remember:  req.Remember,
		ClientIP:  c.ClientIP(),
		SessionID: currentSessionID(c),
	})
	if err != nil {
		// an unverified account has its old session dropped
		if apperr.KindOf(err) == apperr.KindAuthorization && currentSessionID(c) != "" {
			h.cookie.Clear(c)
		}
		respondError(c, h.logger, err)
		return
	}

	h.cookie.Set(c, established.Session)
	c.JSON(http.StatusOK, dto.UserEnvelope{
		Data: dto.NewUserResponse(established.User),
		Meta: &dto.Meta{Message: "Login OK (session established)", IDToken: established.IDToken},
	})
}

// Logout destroys the current session
// @Summary Logout user
// @Tags auth
// @Produce json
// @Success 200 {object} dto.SuccessResponse
// @Router /auth/session/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), currentSessionID(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.cookie.Clear(c)
	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}

// Me returns the current user
// @Summary Get current user profile
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.UserEnvelope
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, dto.UserEnvelope{Data: dto.NewUserResponse(currentUser(c))})
}
