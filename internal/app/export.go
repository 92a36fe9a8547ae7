package app

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shintothemars/tft-bbri/internal/chart"
	"github.com/shintothemars/tft-bbri/internal/forecast"
)

func writeForecastCSV(path string, res *forecast.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "kind", "close", "median", "lower_bound", "upper_bound"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for i, date := range res.Historical.Dates {
		record := []string{date, "historical", formatPrice(res.Historical.Close[i]), "", "", ""}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	for i, date := range res.Predictions.Dates {
		record := []string{
			date,
			"forecast",
			"",
			formatPrice(res.Predictions.Median[i]),
			formatPrice(res.Predictions.LowerBound[i]),
			formatPrice(res.Predictions.UpperBound[i]),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeForecastPNG(path string, res *forecast.Result, opts chart.Options) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return chart.Render(file, res, opts)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
