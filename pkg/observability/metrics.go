package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PrometheusHandler returns a Gin handler for Prometheus metrics
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler != nil {
			handler.ServeHTTP(c.Writer, c.Request)
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "metrics handler not initialized",
			})
		}
	}
}

// AuthMetrics holds the service counters. A nil *AuthMetrics records nothing,
// which keeps unit tests free of a meter provider.
type AuthMetrics struct {
	attempts      metric.Int64Counter
	tokensIssued  metric.Int64Counter
	notifications metric.Int64Counter
}

func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	attempts, err := meter.Int64Counter("authgate.auth.attempts",
		metric.WithDescription("Authentication attempts by flow and outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create attempts counter: %w", err)
	}

	tokensIssued, err := meter.Int64Counter("authgate.tokens.issued",
		metric.WithDescription("Bearer tokens issued"))
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens counter: %w", err)
	}

	notifications, err := meter.Int64Counter("authgate.notifications",
		metric.WithDescription("Magic link notifications by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create notifications counter: %w", err)
	}

	return &AuthMetrics{
		attempts:      attempts,
		tokensIssued:  tokensIssued,
		notifications: notifications,
	}, nil
}

// Attempt records one login attempt. outcome is "success" or a failure kind.
func (m *AuthMetrics) Attempt(ctx context.Context, flow, outcome string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	))
}

func (m *AuthMetrics) TokenIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.tokensIssued.Add(ctx, 1)
}

func (m *AuthMetrics) Notification(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
