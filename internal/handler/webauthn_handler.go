package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/dto"
	"github.com/prperemyshlev/authgate/internal/service"
	"go.uber.org/zap"
)

// WebAuthnHandler handles authenticator ceremonies
type WebAuthnHandler struct {
	webauthn service.WebAuthnService
	cookie   SessionCookie
	logger   *zap.Logger
}

func NewWebAuthnHandler(webauthn service.WebAuthnService, cookie SessionCookie, logger *zap.Logger) *WebAuthnHandler {
	return &WebAuthnHandler{
		webauthn: webauthn,
		cookie:   cookie,
		logger:   logger,
	}
}

// Options issues a challenge for registration or login
// @Summary WebAuthn ceremony options
// @Tags webauthn
// @Accept json
// @Produce json
// @Param request body dto.WebAuthnOptionsRequest true "Options request"
// @Success 200 {object} service.CeremonyOptions
// @Failure 401 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /auth/webauthn/options [post]
func (h *WebAuthnHandler) Options(c *gin.Context) {
	var req dto.WebAuthnOptionsRequest
	if !bindJSON(c, &req) {
		return
	}

	options, err := h.webauthn.Options(c.Request.Context(), service.OptionsRequest{
		Type:  req.Type,
		Email: req.Email,
		User:  currentUser(c),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, options)
}

// Register stores a new authenticator for the caller
// @Summary Register a WebAuthn credential
// @Tags webauthn
// @Accept json
// @Produce json
// @Param request body dto.WebAuthnRegisterRequest true "Attestation"
// @Success 201 {object} dto.CredentialResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /auth/webauthn/register [post]
func (h *WebAuthnHandler) Register(c *gin.Context) {
	var req dto.WebAuthnRegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	credential, err := h.webauthn.Register(c.Request.Context(), currentUser(c), service.RegisterCredential{
		ID:                req.ID,
		RawID:             req.RawID,
		Type:              req.Type,
		Name:              req.Name,
		ClientDataJSON:    req.Response.ClientDataJSON,
		AttestationObject: req.Response.AttestationObject,
		PublicKey:         req.PublicKey,
		SignCount:         req.SignCount,
		Transports:        req.Transports,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CredentialResponse{ID: credential.CredentialID, Name: credential.Name})
}

// Verify checks an assertion and logs the owner in
// @Summary Verify a WebAuthn assertion
// @Tags webauthn
// @Accept json
// @Produce json
// @Param request body dto.WebAuthnVerifyRequest true "Assertion"
// @Success 200 {object} dto.TokenLoginResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /auth/webauthn/verify [post]
func (h *WebAuthnHandler) Verify(c *gin.Context) {
	var req dto.WebAuthnVerifyRequest
	if !bindJSON(c, &req) {
		return
	}

	established, err := h.webauthn.Verify(c.Request.Context(), service.VerifyAssertion{
		ID:                req.ID,
		Type:              req.Type,
		ClientDataJSON:    req.Response.ClientDataJSON,
		AuthenticatorData: req.Response.AuthenticatorData,
		Signature:         req.Response.Signature,
		SignCount:         req.SignCount,
		SessionID:         currentSessionID(c),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.cookie.Set(c, established.Session)
	c.JSON(http.StatusOK, dto.TokenLoginResponse{
		Token:   established.Token.PlainText,
		User:    dto.NewUserSummary(established.User),
		IDToken: established.IDToken,
	})
}
