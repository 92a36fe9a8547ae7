package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/shintothemars/tft-bbri/internal/market"
	"github.com/shintothemars/tft-bbri/internal/storage"
)

// Show prints recently archived bars.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show bars")
	}
	if closeStore != nil {
		defer closeStore()
	}

	bars, err := store.ListRecentBars(ctx, a.Config.Market.Symbol, opts.Limit)
	if err != nil {
		return err
	}
	return writeBars(a, bars)
}

func writeBars(a *App, bars []storage.DailyBar) error {
	if len(bars) == 0 {
		fmt.Fprintln(a.Out, "no bars found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tOpen\tHigh\tLow\tClose\tVolume\tSource")

	for _, bar := range bars {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			bar.Date.Format(market.DateLayout),
			formatDecimal(bar.Open, 2),
			formatDecimal(bar.High, 2),
			formatDecimal(bar.Low, 2),
			formatDecimal(bar.Close, 2),
			humanize.Comma(bar.Volume),
			bar.Source,
		)
	}

	return writer.Flush()
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
