package service

import (
	"context"
	"time"

	"github.com/prperemyshlev/authgate/internal/repository"
	"go.uber.org/zap"
)

// Janitor periodically deletes magic link tokens that expired more than
// grace ago, used or not.
type Janitor struct {
	tokens   repository.MagicLoginTokenRepository
	interval time.Duration
	grace    time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewJanitor creates a new janitor
func NewJanitor(tokens repository.MagicLoginTokenRepository, interval, grace time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		tokens:   tokens,
		interval: interval,
		grace:    grace,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass
func (j *Janitor) Sweep(ctx context.Context) int64 {
	deleted, err := j.tokens.DeleteExpired(ctx, j.now().Add(-j.grace))
	if err != nil {
		j.logger.Error("failed to purge expired magic links", zap.Error(err))
		return 0
	}
	if deleted > 0 {
		j.logger.Info("purged expired magic links", zap.Int64("count", deleted))
	}
	return deleted
}
