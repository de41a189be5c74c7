package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/service"
)

// JWKS publishes the verification keys
// @Summary JSON Web Key Set
// @Tags jwks
// @Produce json
// @Success 200 {object} service.JWKSet
// @Router /.well-known/jwks.json [get]
func JWKS(provider *service.JWKSProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=300")
		c.JSON(http.StatusOK, provider.Keys())
	}
}
