package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/dto"
	"github.com/prperemyshlev/authgate/internal/service"
	"go.uber.org/zap"
)

// TokenHandler manages personal bearer tokens
type TokenHandler struct {
	authService service.AuthService
	vault       *service.TokenVault
	logger      *zap.Logger
}

func NewTokenHandler(authService service.AuthService, vault *service.TokenVault, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{
		authService: authService,
		vault:       vault,
		logger:      logger,
	}
}

// Issue exchanges email and password for a token
// @Summary Issue a bearer token
// @Tags tokens
// @Accept json
// @Produce json
// @Param request body dto.TokenRequest true "Token request"
// @Success 201 {object} dto.IssuedTokenResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /auth/tokens [post]
func (h *TokenHandler) Issue(c *gin.Context) {
	var req dto.TokenRequest
	if !bindJSON(c, &req) {
		return
	}

	issued, err := h.authService.IssueToken(c.Request.Context(), service.TokenInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceName: req.DeviceName,
		UserAgent:  c.Request.UserAgent(),
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.IssuedTokenResponse{Token: issued.PlainText})
}

// List returns the caller's tokens
// @Summary List bearer tokens
// @Tags tokens
// @Security BearerAuth
// @Produce json
// @Success 200 {array} dto.TokenResponse
// @Router /auth/tokens [get]
func (h *TokenHandler) List(c *gin.Context) {
	tokens, err := h.vault.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTokenResponses(tokens))
}

// Revoke deletes one of the caller's tokens
// @Summary Revoke a bearer token
// @Tags tokens
// @Security BearerAuth
// @Produce json
// @Param id path string true "Token ID"
// @Success 200 {object} dto.DeletedResponse
// @Failure 404 {object} dto.DeletedResponse
// @Router /auth/tokens/{id} [delete]
func (h *TokenHandler) Revoke(c *gin.Context) {
	deleted, err := h.vault.Revoke(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if !deleted {
		c.JSON(http.StatusNotFound, dto.DeletedResponse{Deleted: false})
		return
	}
	c.JSON(http.StatusOK, dto.DeletedResponse{Deleted: true})
}
