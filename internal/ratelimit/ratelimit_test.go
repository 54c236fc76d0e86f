package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wohnblick/wohnblick/internal/model"
)

func TestWait_FirstCallIsImmediate(t *testing.T) {
	r := NewHostRateLimiter(time.Second)

	start := time.Now()
	if err := r.Wait(context.Background(), "wohnraumkarte"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("first call should not wait, took %v", elapsed)
	}
}

func TestWait_EnforcesMinDelay(t *testing.T) {
	r := NewHostRateLimiter(80 * time.Millisecond)

	if err := r.Wait(context.Background(), "wohnraumkarte"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now()
	if err := r.Wait(context.Background(), "wohnraumkarte"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Errorf("second call should wait roughly minDelay, waited only %v", elapsed)
	}
}

func TestWait_DifferentHostsIndependent(t *testing.T) {
	r := NewHostRateLimiter(time.Second)

	if err := r.Wait(context.Background(), "wohnraumkarte"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now()
	if err := r.Wait(context.Background(), "inberlinwohnen"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("different host must not wait, took %v", elapsed)
	}
}

func TestWait_ContextCancel(t *testing.T) {
	r := NewHostRateLimiter(time.Minute)

	if err := r.Wait(context.Background(), "wohnraumkarte"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Wait(ctx, "wohnraumkarte")
	if err == nil {
		t.Fatal("expected error on cancelled wait")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

type stubAdapter struct {
	calls int
}

func (s *stubAdapter) Name() string { return "stub" }

func (s *stubAdapter) FetchListings(ctx context.Context) ([]model.Listing, error) {
	s.calls++
	return []model.Listing{{Source: "stub", ExternalID: "1"}}, nil
}

func TestRateLimitedAdapter_SharedHostSerializes(t *testing.T) {
	limiter := NewHostRateLimiter(60 * time.Millisecond)
	stubA := &stubAdapter{}
	stubB := &stubAdapter{}
	a := NewRateLimitedAdapter(stubA, limiter, "wohnraumkarte")
	b := NewRateLimitedAdapter(stubB, limiter, "wohnraumkarte")

	start := time.Now()
	if _, err := a.FetchListings(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := b.FetchListings(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("adapters on the same host group must be spaced, took %v", elapsed)
	}
	if stubA.calls != 1 || stubB.calls != 1 {
		t.Errorf("expected one call each, got %d and %d", stubA.calls, stubB.calls)
	}
}
