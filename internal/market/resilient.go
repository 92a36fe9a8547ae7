package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AttemptObserver receives the outcome of every provider attempt.
type AttemptObserver interface {
	ObserveFetchAttempt(provider string, err error)
	ObserveFallback(provider string)
}

// ResilientOptions tune the retry budget.
type ResilientOptions struct {
	Attempts int
	Delay    time.Duration
}

// Resilient retries a primary source and substitutes synthetic data once
// the retry budget is exhausted, so fetching never fails on provider errors.
type Resilient struct {
	primary  Source
	fallback *Synthetic
	opts     ResilientOptions
	observer AttemptObserver
	logger   zerolog.Logger
}

// NewResilient wires a primary source to its synthetic fallback.
func NewResilient(primary Source, fallback *Synthetic, opts ResilientOptions, observer AttemptObserver, logger zerolog.Logger) *Resilient {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if fallback == nil {
		fallback = NewSynthetic(DefaultSyntheticOptions())
	}
	return &Resilient{
		primary:  primary,
		fallback: fallback,
		opts:     opts,
		observer: observer,
		logger:   logger.With().Str("component", "market_source").Str("provider", primary.Name()).Logger(),
	}
}

// Fetch returns bars in [start, end] from the primary provider or, after the
// retry budget, from the synthetic generator. Only context cancellation is
// returned as an error.
func (r *Resilient) Fetch(ctx context.Context, symbol string, start, end time.Time) (Series, error) {
	var lastErr error
	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		bars, err := r.primary.FetchBars(ctx, symbol, start, end)
		if err == nil {
			bars = Repair(bars)
			if len(bars) == 0 {
				err = &EmptyResultError{Provider: r.primary.Name(), Symbol: symbol}
			}
		}
		r.observe(err)

		if err == nil {
			if attempt > 1 {
				r.logger.Info().Str("symbol", symbol).Int("attempt", attempt).Msg("provider recovered")
			}
			return Series{Symbol: symbol, Bars: bars, Origin: r.primary.Name(), Attempts: attempt}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Series{}, fmt.Errorf("fetch %s: %w", symbol, ctxErr)
		}
		if !Retryable(err) {
			err = &ProviderError{Provider: r.primary.Name(), Err: err}
		}
		lastErr = err

		r.logger.Warn().Err(err).Str("symbol", symbol).Int("attempt", attempt).Int("budget", r.opts.Attempts).Msg("provider attempt failed")

		if attempt < r.opts.Attempts {
			if err := sleep(ctx, r.opts.Delay); err != nil {
				return Series{}, fmt.Errorf("fetch %s: %w", symbol, err)
			}
		}
	}

	bars, err := r.fallback.FetchBars(ctx, symbol, start, end)
	if err != nil {
		return Series{}, fmt.Errorf("fetch %s: %w", symbol, errors.Join(lastErr, err))
	}
	if r.observer != nil {
		r.observer.ObserveFallback(r.primary.Name())
	}
	r.logger.Warn().Err(lastErr).
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Str("reason", "synthetic-data").
		Msg("retry budget exhausted; serving synthetic bars in degraded mode")

	return Series{Symbol: symbol, Bars: bars, Origin: OriginSynthetic, Attempts: r.opts.Attempts}, nil
}

func (r *Resilient) observe(err error) {
	if r.observer != nil {
		r.observer.ObserveFetchAttempt(r.primary.Name(), err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
