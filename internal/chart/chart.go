package chart

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/shintothemars/tft-bbri/internal/forecast"
	"github.com/shintothemars/tft-bbri/internal/market"
)

// Options control chart size and labels.
type Options struct {
	Width        int
	Height       int
	Title        string
	Currency     string
	HistoryLabel string
	MedianLabel  string
	BandLabel    string
	DateLabel    string
	PriceLabel   string
}

// DefaultOptions returns the Indonesian-locale labels used by the web client.
func DefaultOptions() Options {
	return Options{
		Width:        1000,
		Height:       500,
		Title:        "Prediksi Harga Saham BBRI",
		Currency:     "Rp",
		HistoryLabel: "Harga Historis",
		MedianLabel:  "Prediksi (Median)",
		BandLabel:    "Rentang Prediksi",
		DateLabel:    "Tanggal",
		PriceLabel:   "Harga",
	}
}

// Payload is a rendered chart embedded in API responses.
type Payload struct {
	Format   string `json:"format"`
	Encoding string `json:"encoding"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Data     string `json:"data"`
}

var (
	historyColor = drawing.Color{R: 31, G: 119, B: 180, A: 255}
	medianColor  = drawing.Color{R: 214, G: 39, B: 40, A: 255}
	bandColor    = drawing.Color{R: 255, G: 152, B: 150, A: 120}
)

// Render draws history, the median path and the prediction band as PNG.
func Render(w io.Writer, res *forecast.Result, opts Options) error {
	if res == nil || len(res.Historical.Dates) == 0 || len(res.Predictions.Dates) == 0 {
		return errors.New("chart requires history and predictions")
	}

	histX, err := parseDates(res.Historical.Dates)
	if err != nil {
		return err
	}
	predX, err := parseDates(res.Predictions.Dates)
	if err != nil {
		return err
	}

	// Forecast series start at the last observation so the lines join.
	anchorX := histX[len(histX)-1]
	anchorY := res.Historical.Close[len(res.Historical.Close)-1]
	fx := append([]time.Time{anchorX}, predX...)
	median := append([]float64{anchorY}, res.Predictions.Median...)
	lower := append([]float64{anchorY}, res.Predictions.LowerBound...)
	upper := append([]float64{anchorY}, res.Predictions.UpperBound...)

	lo, hi := bounds(res.Historical.Close, lower, upper)
	pad := math.Max((hi-lo)*0.05, hi*0.005)

	priceFormatter := func(v interface{}) string {
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%s %s", opts.Currency, humanize.Comma(int64(math.Round(f))))
		}
		return ""
	}

	graph := gochart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: gochart.XAxis{
			Name:           opts.DateLabel,
			ValueFormatter: gochart.TimeDateValueFormatter,
		},
		YAxis: gochart.YAxis{
			Name:           opts.PriceLabel,
			ValueFormatter: priceFormatter,
			Range:          &gochart.ContinuousRange{Min: lo - pad, Max: hi + pad},
		},
		Series: []gochart.Series{
			gochart.TimeSeries{
				Name:    opts.BandLabel,
				XValues: fx,
				YValues: upper,
				Style:   gochart.Style{StrokeColor: bandColor, FillColor: bandColor},
			},
			gochart.TimeSeries{
				Name:    opts.BandLabel + " (bawah)",
				XValues: fx,
				YValues: lower,
				Style:   gochart.Style{StrokeColor: bandColor, FillColor: gochart.ColorWhite},
			},
			gochart.TimeSeries{
				Name:    opts.HistoryLabel,
				XValues: histX,
				YValues: res.Historical.Close,
				Style:   gochart.Style{StrokeColor: historyColor, StrokeWidth: 2},
			},
			gochart.TimeSeries{
				Name:    opts.MedianLabel,
				XValues: fx,
				YValues: median,
				Style:   gochart.Style{StrokeColor: medianColor, StrokeWidth: 2, StrokeDashArray: []float64{5, 3}},
			},
		},
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	return graph.Render(gochart.PNG, w)
}

// RenderPayload renders the chart and encodes it for JSON transport.
func RenderPayload(res *forecast.Result, opts Options) (*Payload, error) {
	var buf bytes.Buffer
	if err := Render(&buf, res, opts); err != nil {
		return nil, err
	}
	return &Payload{
		Format:   "png",
		Encoding: "base64",
		Width:    opts.Width,
		Height:   opts.Height,
		Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

func parseDates(values []string) ([]time.Time, error) {
	out := make([]time.Time, len(values))
	for i, v := range values {
		t, err := time.Parse(market.DateLayout, v)
		if err != nil {
			return nil, fmt.Errorf("parse chart date %q: %w", v, err)
		}
		out[i] = t
	}
	return out, nil
}

func bounds(series ...[]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}
