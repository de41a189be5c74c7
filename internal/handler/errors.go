package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/authgate/internal/apperr"
	"github.com/prperemyshlev/authgate/internal/dto"
	"go.uber.org/zap"
)

// statusFor maps an error kind to its HTTP status
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindAuthentication:
		return http.StatusUnprocessableEntity
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindProviderState:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Errors that are not
// *apperr.Error are logged and answered with a generic message.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal(err)
	}

	status := statusFor(appErr.Kind)
	switch {
	case appErr.Kind == apperr.KindInternal:
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	case appErr.Kind == apperr.KindProviderFailure:
		logger.Warn("upstream provider failed", zap.String("path", c.FullPath()), zap.Error(appErr.Err))
	}

	if appErr.Kind == apperr.KindRateLimited && appErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(appErr.RetryAfter.Seconds())))
	}

	c.AbortWithStatusJSON(status, dto.ErrorResponse{
		Message: appErr.Message,
		Errors:  appErr.FieldErrors(),
	})
}

// bindJSON decodes the body into out. An empty body leaves out untouched so
// the service reports missing fields.
func bindJSON(c *gin.Context, out any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{
			Message: "Malformed JSON body.",
		})
		return false
	}
	return true
}
