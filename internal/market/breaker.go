package market

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerOptions configure the circuit breaker wrapped around a provider.
type BreakerOptions struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	FailureRate float64
}

// Breaker short-circuits calls to a provider that keeps failing.
type Breaker struct {
	next   Source
	cb     *gobreaker.CircuitBreaker[[]Bar]
	logger zerolog.Logger
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Source, opts BreakerOptions, logger zerolog.Logger) *Breaker {
	if opts.MinRequests == 0 {
		opts.MinRequests = 5
	}
	if opts.FailureRate <= 0 {
		opts.FailureRate = 0.5
	}

	b := &Breaker{
		next:   next,
		logger: logger.With().Str("component", "source_breaker").Str("provider", next.Name()).Logger(),
	}

	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < opts.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= opts.FailureRate
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	b.cb = gobreaker.NewCircuitBreaker[[]Bar](settings)
	return b
}

// Name reports the wrapped provider name.
func (b *Breaker) Name() string { return b.next.Name() }

// FetchBars delegates to the wrapped provider unless the breaker is open.
func (b *Breaker) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	bars, err := b.cb.Execute(func() ([]Bar, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return b.next.FetchBars(ctx, symbol, start, end)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &ProviderError{Provider: b.next.Name(), Err: err}
	}
	return bars, err
}

// State exposes the breaker state for diagnostics.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

var _ Source = (*Breaker)(nil)
