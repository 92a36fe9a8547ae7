package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/shintothemars/tft-bbri/internal/forecast"
)

// Predict runs one forecast from the command line and optionally exports it.
func (a *App) Predict(ctx context.Context, opts PredictOptions) error {
	target, err := forecast.ParseTargetDate(opts.TargetDate)
	if err != nil {
		return err
	}

	source, closeSource, err := a.newSource(ctx)
	if err != nil {
		return err
	}
	if closeSource != nil {
		defer closeSource()
	}

	p, err := a.newPipeline(source)
	if err != nil {
		return err
	}

	res, err := p.forecast.Predict(ctx, target)
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printSummary(a, res)
	}

	if opts.CSVPath != "" {
		if err := writeForecastCSV(opts.CSVPath, res); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		a.Logger.Info().Str("path", opts.CSVPath).Msg("forecast csv written")
	}
	if opts.PNGPath != "" {
		if err := writeForecastPNG(opts.PNGPath, res, a.chartOptions()); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
		a.Logger.Info().Str("path", opts.PNGPath).Msg("forecast chart written")
	}
	return nil
}

func printSummary(a *App, res *forecast.Result) {
	currency := a.chartOptions().Currency
	price := func(v float64) string {
		return fmt.Sprintf("%s %s", currency, humanize.Comma(int64(math.Round(v))))
	}

	fmt.Fprintf(a.Out, "Symbol:          %s\n", res.Symbol)
	fmt.Fprintf(a.Out, "Last data date:  %s\n", res.LastDataDate)
	fmt.Fprintf(a.Out, "Target date:     %s (%d days)\n", res.TargetDate, res.PredictionHorizon)
	fmt.Fprintf(a.Out, "Last price:      %s\n", price(res.Analysis.LastPrice))
	fmt.Fprintf(a.Out, "Predicted price: %s\n", price(res.Analysis.PredictedPrice))
	fmt.Fprintf(a.Out, "Trend:           %+.2f%% (%s)\n", res.Analysis.TrendPercentage, res.Analysis.TrendDirection)
	fmt.Fprintf(a.Out, "Range:           %s - %s\n",
		price(res.Analysis.ConfidenceRange.Lower), price(res.Analysis.ConfidenceRange.Upper))
	fmt.Fprintf(a.Out, "Data source:     %s\n", res.DataSource)
	fmt.Fprintf(a.Out, "Model:           %s\n", res.ModelState)
	if res.IsDegraded() {
		tags := make([]string, len(res.Degraded))
		for i, r := range res.Degraded {
			tags[i] = string(r)
		}
		fmt.Fprintf(a.Out, "Status:          %s (%s)\n", res.Status, strings.Join(tags, ", "))
	} else {
		fmt.Fprintf(a.Out, "Status:          %s\n", res.Status)
	}
}
