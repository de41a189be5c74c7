package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/config"
	"github.com/prperemyshlev/authgate/internal/handler"
	"github.com/prperemyshlev/authgate/pkg/observability"
	"go.uber.org/zap"
)

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	svc *services,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
	logger *zap.Logger,
) {
	cookie := handler.SessionCookie{
		Name:   cfg.Session.CookieName,
		Secure: cfg.SecureCookies(),
	}

	authHandler := handler.NewAuthHandler(svc.auth, cookie, logger)
	tokenHandler := handler.NewTokenHandler(svc.auth, svc.vault, logger)
	magicLinkHandler := handler.NewMagicLinkHandler(svc.magicLinks, svc.urlSigner, cookie, logger)
	oauthHandler := handler.NewOAuthHandler(svc.oauth, cookie, logger)
	webauthnHandler := handler.NewWebAuthnHandler(svc.webauthn, cookie, logger)

	throttle := handler.RateLimitMiddleware(
		svc.limiter,
		cfg.Security.RateLimitRequests,
		cfg.Security.RateLimitWindow.Duration,
		handler.ClientIPKey,
		logger,
	)
	requireAuth := handler.RequireAuth()

	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)
	router.GET("/.well-known/jwks.json", handler.JWKS(svc.jwks))

	auth := router.Group("/auth")
	auth.Use(handler.AuthMiddleware(svc.authenticator, cookie, logger))
	{
		auth.GET("/.well-known/jwks.json", handler.JWKS(svc.jwks))

		auth.POST("/register", throttle, authHandler.Register)
		auth.POST("/login", throttle, authHandler.Login)
		auth.POST("/session/login", throttle, authHandler.Login)
		auth.POST("/session/logout", authHandler.Logout)
		auth.GET("/me", requireAuth, authHandler.Me)

		auth.POST("/magic/request", magicLinkHandler.Request)
		auth.GET("/magic/verify", throttle, magicLinkHandler.Verify)
		auth.POST("/magic/verify", throttle, magicLinkHandler.Verify)

		auth.GET("/oauth/redirect/:provider", throttle, oauthHandler.Redirect)
		auth.GET("/oauth/callback/:provider", throttle, oauthHandler.Callback)

		auth.POST("/webauthn/options", throttle, webauthnHandler.Options)
		auth.POST("/webauthn/register", requireAuth, webauthnHandler.Register)
		auth.POST("/webauthn/verify", throttle, webauthnHandler.Verify)

		auth.POST("/tokens", throttle, tokenHandler.Issue)
		auth.GET("/tokens", requireAuth, tokenHandler.List)
		auth.DELETE("/tokens/:id", requireAuth, tokenHandler.Revoke)
	}
}
