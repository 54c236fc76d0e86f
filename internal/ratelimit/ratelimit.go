package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wohnblick/wohnblick/internal/model"
)

// HostRateLimiter enforces a minimum delay between requests to the same
// upstream host group. Sources sharing a backend (several landlords behind
// the wohnraumkarte API) share one key.
type HostRateLimiter struct {
	mu       sync.Mutex
	lastCall map[string]time.Time
	minDelay time.Duration
}

// NewHostRateLimiter creates a rate limiter enforcing minDelay between
// consecutive requests to the same host group.
func NewHostRateLimiter(minDelay time.Duration) *HostRateLimiter {
	return &HostRateLimiter{
		lastCall: make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until enough time has passed since the last request to the
// given host group, or the context is cancelled.
func (r *HostRateLimiter) Wait(ctx context.Context, host string) error {
	r.mu.Lock()
	last, ok := r.lastCall[host]
	now := time.Now()

	if !ok {
		r.lastCall[host] = now
		r.mu.Unlock()
		return nil
	}

	elapsed := now.Sub(last)
	if elapsed >= r.minDelay {
		r.lastCall[host] = now
		r.mu.Unlock()
		return nil
	}

	remaining := r.minDelay - elapsed
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", host, ctx.Err())
	case <-time.After(remaining):
	}

	r.mu.Lock()
	r.lastCall[host] = time.Now()
	r.mu.Unlock()

	return nil
}

// RateLimitedAdapter is a decorator that waits for the shared host limiter
// before delegating to the wrapped adapter.
type RateLimitedAdapter struct {
	inner   model.SourceAdapter
	limiter *HostRateLimiter
	host    string
}

// NewRateLimitedAdapter wraps a SourceAdapter with host-level rate limiting.
// Adapters targeting the same host group should share the limiter.
func NewRateLimitedAdapter(inner model.SourceAdapter, limiter *HostRateLimiter, host string) *RateLimitedAdapter {
	return &RateLimitedAdapter{
		inner:   inner,
		limiter: limiter,
		host:    host,
	}
}

func (a *RateLimitedAdapter) Name() string { return a.inner.Name() }

func (a *RateLimitedAdapter) FetchListings(ctx context.Context) ([]model.Listing, error) {
	if err := a.limiter.Wait(ctx, a.host); err != nil {
		return nil, err
	}
	return a.inner.FetchListings(ctx)
}
