package net

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecvLimiterAllow(t *testing.T) {
	limiter := NewRecvLimiter(1, 5)
	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow(), "token %d", i)
	}
	assert.False(t, limiter.Allow())

	limiter.Reload(1, 3)
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(), "reloaded token %d", i)
	}
	assert.False(t, limiter.Allow())
}

func TestRecvLimiterTake(t *testing.T) {
	limiter := NewRecvLimiter(100, 1)
	require.NoError(t, limiter.Take(context.Background()))

	start := time.Now()
	require.NoError(t, limiter.Take(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, limiter.Take(ctx))
}

func TestRecvLimitFilter(t *testing.T) {
	limiter := NewRecvLimiter(1, 1)
	chain := ProxyFilterChain{limiter.recvLimitFilter}
	handled := 0
	h := func(*Delivery) error { handled++; return nil }

	assert.NoError(t, chain.Handle(&Delivery{}, h))
	assert.ErrorIs(t, chain.Handle(&Delivery{}, h), errRecvLimited)
	assert.Equal(t, 1, handled)
}

func TestFunnelLimiter(t *testing.T) {
	limiter := NewFunnelLimiter(100)
	start := time.Now()
	for i := 0; i < 6; i++ {
		limiter.Take()
	}
	// 6 takes at 100/s are spaced by 10ms
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	limiter.Reload(0)
	start = time.Now()
	for i := 0; i < 1000; i++ {
		limiter.Take()
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
