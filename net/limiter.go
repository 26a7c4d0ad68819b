package net

import (
	"context"
	"sync/atomic"

	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"
)

// RecvLimiter is a token bucket on the inbound packets of one connection.
// The bucket can be replaced at runtime.
type RecvLimiter struct {
	limiter atomic.Pointer[rate.Limiter]
}

// NewRecvLimiter creates a bucket refilled with limit tokens per second and
// holding at most burst. burst < 1 is raised to 1.
//
// Example usage:
//
//	limiter := NewRecvLimiter(100, 10) // 100 packets per second, bursts of 10
func NewRecvLimiter(limit, burst int) *RecvLimiter {
	l := &RecvLimiter{}
	l.Reload(limit, burst)
	return l
}

// Allow takes a token if one is available. It never blocks.
func (l *RecvLimiter) Allow() bool {
	return l.limiter.Load().Allow()
}

// Take blocks until a token is available.
func (l *RecvLimiter) Take(ctx context.Context) error {
	return l.limiter.Load().Wait(ctx)
}

// Reload replaces the bucket.
func (l *RecvLimiter) Reload(limit, burst int) {
	if burst < 1 {
		burst = 1
	}
	l.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
}

// recvLimitFilter drops packets beyond the rate of the connection.
func (l *RecvLimiter) recvLimitFilter(d *Delivery, f ProxyFilterHandleFunc) error {
	if !l.Allow() {
		return errRecvLimited
	}
	return f(d)
}

// FunnelLimiter is a leaky bucket spacing events evenly, used to pace
// reconnect attempts.
type FunnelLimiter struct {
	limiter atomic.Pointer[ratelimit.Limiter]
}

// NewFunnelLimiter lets limit events per second through.
func NewFunnelLimiter(limit int) *FunnelLimiter {
	l := &FunnelLimiter{}
	l.Reload(limit)
	return l
}

// Take blocks until the next event may happen.
func (l *FunnelLimiter) Take() {
	_ = (*l.limiter.Load()).Take()
}

// Reload changes the rate. limit <= 0 removes the limit.
func (l *FunnelLimiter) Reload(limit int) {
	var limiter ratelimit.Limiter
	if limit <= 0 {
		limiter = ratelimit.NewUnlimited()
	} else {
		limiter = ratelimit.New(limit)
	}
	l.limiter.Store(&limiter)
}
