package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

func TestBreakerOpensAfterFailures(t *testing.T) {
	down := errors.New("upstream down")
	src := &scriptedSource{results: []error{down, down, down}}
	b := NewBreaker(src, BreakerOptions{
		MaxRequests: 1,
		Timeout:     time.Hour,
		MinRequests: 2,
		FailureRate: 0.5,
	}, zerolog.Nop())

	if b.Name() != "scripted" {
		t.Fatalf("unexpected name %q", b.Name())
	}
	if b.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed breaker, got %s", b.State())
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := b.FetchBars(ctx, "BBRI.JK", time.Time{}, time.Time{}); !errors.Is(err, down) {
			t.Fatalf("attempt %d: expected upstream error, got %v", i, err)
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", b.State())
	}

	_, err := b.FetchBars(ctx, "BBRI.JK", time.Time{}, time.Time{})
	var provErr *ProviderError
	if !errors.As(err, &provErr) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected ProviderError wrapping open state, got %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("open breaker must not call the provider, got %d calls", src.calls)
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	src := &scriptedSource{bars: []Bar{{Date: time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1}}}
	b := NewBreaker(src, BreakerOptions{Timeout: time.Hour, MinRequests: 1, FailureRate: 0.1}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		if _, err := b.FetchBars(ctx, "BBRI.JK", time.Time{}, time.Time{}); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Fatalf("cancellation should not trip the breaker, got %s", b.State())
	}
	if src.calls != 0 {
		t.Fatalf("cancelled context should not reach the provider, got %d calls", src.calls)
	}
}
