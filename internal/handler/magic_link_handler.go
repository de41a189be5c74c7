package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/dto"
	"github.com/prperemyshlev/authgate/internal/service"
	"github.com/prperemyshlev/authgate/internal/utils"
	"go.uber.org/zap"
)

const magicLinkSent = "If your email is registered, a login link has been sent."

// MagicLinkHandler handles passwordless email login
type MagicLinkHandler struct {
	magicLinks service.MagicLinkService
	signer     *utils.URLSigner
	cookie     SessionCookie
	logger     *zap.Logger
}

func NewMagicLinkHandler(magicLinks service.MagicLinkService, signer *utils.URLSigner, cookie SessionCookie, logger *zap.Logger) *MagicLinkHandler {
	return &MagicLinkHandler{
		magicLinks: magicLinks,
		signer:     signer,
		cookie:     cookie,
		logger:     logger,
	}
}

// Request sends a login link. The answer does not reveal whether the
// address is registered.
// @Summary Request a magic link
// @Tags magic-link
// @Accept json
// @Produce json
// @Param request body dto.MagicLinkRequest true "Magic link request"
// @Success 200 {object} dto.SuccessResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /auth/magic/request [post]
func (h *MagicLinkHandler) Request(c *gin.Context) {
	var req dto.MagicLinkRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.magicLinks.RequestLink(c.Request.Context(), service.MagicLinkRequest{
		Email:      req.Email,
		Remember:   req.Remember,
		RedirectTo: req.RedirectTo,
		ClientIP:   c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: magicLinkSent})
}

// Verify consumes a link. GET requests carry the parameters in the query
// string; POST requests may send them as JSON instead.
// @Summary Verify a magic link
// @Tags magic-link
// @Produce json
// @Param id query string true "Token ID"
// @Param t query string true "Secret"
// @Param expires query string true "Expiry"
// @Param signature query string true "Signature"
// @Success 200 {object} dto.MagicLinkLoginResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /auth/magic/verify [get]
func (h *MagicLinkHandler) Verify(c *gin.Context) {
	link := *c.Request.URL
	query := link.Query()

	if c.Request.Method == http.MethodPost {
		var req dto.MagicLinkVerifyRequest
		if !bindJSON(c, &req) {
			return
		}
		overlay(query, "id", req.ID)
		overlay(query, "t", req.T)
		overlay(query, "expires", req.Expires)
		overlay(query, "signature", req.Signature)
		link.RawQuery = query.Encode()
	}

	result, err := h.magicLinks.Verify(c.Request.Context(), service.MagicLinkVerification{
		ID:             query.Get("id"),
		Secret:         query.Get("t"),
		SignatureValid: h.signer.Valid(&link),
		ClientIP:       c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		SessionID:      currentSessionID(c),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.cookie.Set(c, result.Session.Session)

	var resp dto.MagicLinkLoginResponse
	resp.Meta = dto.Meta{
		Message:    "Login OK (magic link)",
		RedirectTo: result.RedirectTo,
		IDToken:    result.Session.IDToken,
	}
	resp.Data.User = dto.NewUserSummary(result.Session.User)
	c.JSON(http.StatusOK, resp)
}

func overlay(values url.Values, key, value string) {
	if value != "" {
		values.Set(key, value)
	}
}
