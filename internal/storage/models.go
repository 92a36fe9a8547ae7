package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shintothemars/tft-bbri/internal/market"
)

// DailyBar represents one archived trading day.
type DailyBar struct {
	Symbol    string
	Date      time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
	Source    string
	CreatedAt time.Time
}

// FromMarketBar converts a provider bar into its archived form.
func FromMarketBar(symbol, source string, bar market.Bar) DailyBar {
	return DailyBar{
		Symbol: symbol,
		Date:   market.Day(bar.Date),
		Open:   decimal.NewFromFloat(bar.Open),
		High:   decimal.NewFromFloat(bar.High),
		Low:    decimal.NewFromFloat(bar.Low),
		Close:  decimal.NewFromFloat(bar.Close),
		Volume: roundVolume(bar.Volume),
		Source: source,
	}
}

// Bar converts the archived row back into the pipeline representation.
func (b DailyBar) Bar() market.Bar {
	return market.Bar{
		Date:   market.Day(b.Date),
		Open:   b.Open.InexactFloat64(),
		High:   b.High.InexactFloat64(),
		Low:    b.Low.InexactFloat64(),
		Close:  b.Close.InexactFloat64(),
		Volume: float64(b.Volume),
	}
}

func parseDecimals(values ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("parse decimal %q: %w", v, err)
		}
		out[i] = d
	}
	return out, nil
}
