package market

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// Bar is one trading day of OHLCV data.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate reports whether the bar satisfies the OHLC invariants.
func (b Bar) Validate() error {
	for name, v := range map[string]float64{"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("bar %s: %s must be a positive finite price, got %v", b.Date.Format(DateLayout), name, v)
		}
	}
	if math.IsNaN(b.Volume) || b.Volume < 0 {
		return fmt.Errorf("bar %s: volume must be non-negative, got %v", b.Date.Format(DateLayout), b.Volume)
	}
	if b.High < math.Max(b.Open, b.Close) {
		return fmt.Errorf("bar %s: high %v below max(open, close)", b.Date.Format(DateLayout), b.High)
	}
	if b.Low > math.Min(b.Open, b.Close) {
		return fmt.Errorf("bar %s: low %v above min(open, close)", b.Date.Format(DateLayout), b.Low)
	}
	return nil
}

// DateLayout is the calendar date format used on every external surface.
const DateLayout = "2006-01-02"

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Source supplies daily bars for a symbol within [start, end].
type Source interface {
	Name() string
	FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// Series is the outcome of a resilient fetch.
type Series struct {
	Symbol   string
	Bars     []Bar
	Origin   string
	Attempts int
}

// Synthetic reports whether the bars came from the fallback generator.
func (s Series) Synthetic() bool {
	return s.Origin == OriginSynthetic
}

// Repair normalises provider output: rows with unusable prices are dropped,
// high/low are widened to cover open/close, duplicate dates keep the last
// occurrence and the result is sorted by date.
func Repair(bars []Bar) []Bar {
	byDay := make(map[time.Time]Bar, len(bars))
	for _, bar := range bars {
		bar.Date = Day(bar.Date)
		bar.High = math.Max(bar.High, math.Max(bar.Open, bar.Close))
		bar.Low = math.Min(bar.Low, math.Min(bar.Open, bar.Close))
		if bar.Validate() != nil {
			continue
		}
		byDay[bar.Date] = bar
	}

	out := make([]Bar, 0, len(byDay))
	for _, bar := range byDay {
		out = append(out, bar)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
