package market

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// OriginSynthetic marks series produced by the fallback generator.
const OriginSynthetic = "synthetic"

// SyntheticOptions parameterise the random-walk generator.
type SyntheticOptions struct {
	Seed       int64
	BasePrice  float64
	Drift      float64
	Volatility float64
	MinPrice   float64
	MaxPrice   float64
	// Now anchors the calendar; bars end on the weekday before Now.
	Now func() time.Time
}

// DefaultSyntheticOptions mirrors the price regime of BBRI.JK.
func DefaultSyntheticOptions() SyntheticOptions {
	return SyntheticOptions{
		Seed:       42,
		BasePrice:  5000,
		Drift:      0.0002,
		Volatility: 0.015,
		MinPrice:   4200,
		MaxPrice:   5800,
	}
}

// Synthetic generates deterministic weekday bars for degraded operation.
type Synthetic struct {
	opts SyntheticOptions
}

// NewSynthetic constructs a generator. Zero-valued options fall back to the defaults.
func NewSynthetic(opts SyntheticOptions) *Synthetic {
	def := DefaultSyntheticOptions()
	if opts.BasePrice <= 0 {
		opts.BasePrice = def.BasePrice
	}
	if opts.Volatility <= 0 {
		opts.Volatility = def.Volatility
	}
	if opts.MinPrice <= 0 {
		opts.MinPrice = def.MinPrice
	}
	if opts.MaxPrice <= opts.MinPrice {
		opts.MaxPrice = def.MaxPrice
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Synthetic{opts: opts}
}

// Name identifies the generator as a source.
func (s *Synthetic) Name() string { return OriginSynthetic }

// FetchBars generates one bar per calendar day spanned by [start, end].
func (s *Synthetic) FetchBars(ctx context.Context, _ string, start, end time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Generate(CalendarDays(start, end)), nil
}

// Generate returns days weekday bars ending the weekday before the anchor.
// Output depends only on the seed, days and the anchor date.
func (s *Synthetic) Generate(days int) []Bar {
	if days <= 0 {
		return nil
	}

	dates := tradingDays(Day(s.opts.Now()), days)
	rng := rand.New(rand.NewSource(s.opts.Seed))

	changes := make([]float64, days)
	for i := range changes {
		changes[i] = s.opts.Drift + s.opts.Volatility*rng.NormFloat64()
	}

	closes := make([]float64, days)
	closes[0] = s.opts.BasePrice
	for i := 1; i < days; i++ {
		p := closes[i-1] * (1 + changes[i])
		closes[i] = math.Min(math.Max(p, s.opts.MinPrice), s.opts.MaxPrice)
	}

	opens := draw(rng, days, -0.005, 0.005)
	highs := draw(rng, days, 0.005, 0.02)
	lows := draw(rng, days, -0.02, -0.005)
	volumes := make([]float64, days)
	for i := range volumes {
		volumes[i] = float64(50_000_000 + rng.Int63n(150_000_000))
	}

	bars := make([]Bar, days)
	for i, p := range closes {
		open := p * (1 + opens[i])
		high := p * (1 + highs[i])
		low := p * (1 + lows[i])
		bars[i] = Bar{
			Date:   dates[i],
			Open:   open,
			High:   math.Max(math.Max(open, high), p),
			Low:    math.Min(math.Min(open, low), p),
			Close:  p,
			Volume: volumes[i],
		}
	}
	return bars
}

func draw(rng *rand.Rand, n int, lo, hi float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*rng.Float64()
	}
	return out
}

// tradingDays walks backward from the day before anchor collecting weekdays,
// returned in ascending order.
func tradingDays(anchor time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	day := anchor.AddDate(0, 0, -1)
	for i := n - 1; i >= 0; {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out[i] = day
			i--
		}
		day = day.AddDate(0, 0, -1)
	}
	return out
}

// CalendarDays counts the calendar days in [start, end], inclusive.
func CalendarDays(start, end time.Time) int {
	d := int(Day(end).Sub(Day(start)).Hours()/24) + 1
	if d < 0 {
		return 0
	}
	return d
}

var _ Source = (*Synthetic)(nil)
