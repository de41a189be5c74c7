package service

import (
	"context"
	"testing"
	"time"

	"github.com/prperemyshlev/authgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJanitorSweep(t *testing.T) {
	ctx := context.Background()
	tokens := newFakeMagicTokens()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	used := now.Add(-2 * time.Hour)

	for id, token := range map[string]*domain.MagicLoginToken{
		"fresh":        {ExpiresAt: now.Add(10 * time.Minute)},
		"just-expired": {ExpiresAt: now.Add(-10 * time.Minute)},
		"old":          {ExpiresAt: now.Add(-2 * time.Hour)},
		"old-used":     {ExpiresAt: now.Add(-90 * time.Minute), UsedAt: &used},
	} {
		token.ID = id
		require.NoError(t, tokens.Create(ctx, token))
	}

	j := NewJanitor(tokens, time.Minute, time.Hour, zap.NewNop())
	j.now = func() time.Time { return now }

	assert.Equal(t, int64(2), j.Sweep(ctx))
	assert.NotNil(t, tokens.get("fresh"))
	assert.NotNil(t, tokens.get("just-expired"))
	assert.Nil(t, tokens.get("old"))
	assert.Nil(t, tokens.get("old-used"))

	assert.Equal(t, int64(0), j.Sweep(ctx))
}

func TestJanitorRunStopsWithContext(t *testing.T) {
	j := NewJanitor(newFakeMagicTokens(), time.Millisecond, time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
