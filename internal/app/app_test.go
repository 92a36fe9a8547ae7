package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/shintothemars/tft-bbri/internal/config"
	"github.com/shintothemars/tft-bbri/internal/forecast"
	"github.com/shintothemars/tft-bbri/internal/storage"
)

func testApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	a := NewApp(cfg, zerolog.Nop())
	out := &bytes.Buffer{}
	a.Out = out
	return a, out
}

func sampleResult() *forecast.Result {
	return &forecast.Result{
		Symbol:       "BBRI.JK",
		TargetDate:   "2025-06-11",
		LastDataDate: "2025-06-09",
		Historical: forecast.Historical{
			Dates: []string{"2025-06-06", "2025-06-09"},
			Close: []float64{4980, 5000},
		},
		Predictions: forecast.Predictions{
			Dates:      []string{"2025-06-10", "2025-06-11"},
			Median:     []float64{5010, 5030.5},
			LowerBound: []float64{4900, 4880},
			UpperBound: []float64{5100, 5150},
		},
		Analysis: forecast.Analysis{
			LastPrice:       5000,
			PredictedPrice:  5030.5,
			TrendPercentage: 0.61,
			TrendDirection:  forecast.DirectionUp,
			ConfidenceRange: forecast.ConfidenceRange{Lower: 4880, Upper: 5150},
		},
		DataSource: "synthetic",
		ModelState: "untrained",
		Status:     forecast.StatusDegraded,
		Degraded:   []forecast.Reason{forecast.ReasonSyntheticData, forecast.ReasonUntrainedModel},
	}
}

func TestWriteForecastCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "forecast.csv")
	if err := writeForecastCSV(path, sampleResult()); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected header + 4 rows, got %d", len(records))
	}
	if records[1][1] != "historical" || records[1][2] != "4980.00" {
		t.Fatalf("unexpected history row %v", records[1])
	}
	if records[4][0] != "2025-06-11" || records[4][3] != "5030.50" {
		t.Fatalf("unexpected forecast row %v", records[4])
	}
}

func TestWriteForecastPNG(t *testing.T) {
	a, _ := testApp(t)
	path := filepath.Join(t.TempDir(), "chart.png")
	if err := writeForecastPNG(path, sampleResult(), a.chartOptions()); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil || !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Fatalf("expected PNG file, err=%v", err)
	}
}

func TestPrintSummary(t *testing.T) {
	a, out := testApp(t)
	printSummary(a, sampleResult())

	text := out.String()
	for _, want := range []string{
		"Predicted price: Rp 5,031",
		"Trend:           +0.61% (up)",
		"Status:          degraded (synthetic-data, untrained-model)",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("summary missing %q:\n%s", want, text)
		}
	}
}

func TestModelInit(t *testing.T) {
	a, out := testApp(t)
	path := filepath.Join(t.TempDir(), "models", "weights.json")

	if err := a.ModelInit(context.Background(), ModelInitOptions{Path: path}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if !strings.Contains(out.String(), path) {
		t.Fatalf("unexpected output %q", out.String())
	}

	if err := a.ModelInit(context.Background(), ModelInitOptions{Path: path}); err == nil {
		t.Fatal("existing artifact should not be overwritten without --force")
	}
	if err := a.ModelInit(context.Background(), ModelInitOptions{Path: path, Force: true}); err != nil {
		t.Fatalf("forced init: %v", err)
	}
}

func TestPipelineUsesWrittenWeights(t *testing.T) {
	a, _ := testApp(t)
	path := filepath.Join(t.TempDir(), "weights.json")
	if err := a.ModelInit(context.Background(), ModelInitOptions{Path: path}); err != nil {
		t.Fatalf("init: %v", err)
	}
	a.Config.Model.WeightsPath = path

	p, err := a.newPipeline(a.newSynthetic())
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	m, err := p.loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(m.Quantiles()) != len(a.Config.Model.Quantiles) {
		t.Fatalf("unexpected quantiles %v", m.Quantiles())
	}
	if !m.Untrained() {
		t.Fatal("weights written by model init must load as untrained")
	}

	res, err := p.forecast.Predict(context.Background(), time.Now().AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if res.ModelState != "untrained" || !res.HasDegradation(forecast.ReasonUntrainedModel) {
		t.Fatalf("expected untrained-model tag, got state=%s degraded=%v", res.ModelState, res.Degraded)
	}
}

func TestEngineerFollowsEncoderLength(t *testing.T) {
	a, _ := testApp(t)
	a.Config.Model.MinEncoderLength = 10
	a.Config.Model.MaxEncoderLength = 20

	engineer := newEngineer(a.schema())
	bars := a.newSynthetic().Generate(engineer.Warmup() + 20)
	if _, err := engineer.Enrich(bars); err != nil {
		t.Fatalf("enrich with shortened encoder: %v", err)
	}

	if _, err := newEngineer(a.schema()).Enrich(bars[:len(bars)-1]); err == nil {
		t.Fatal("one row short of the encoder length should be rejected")
	}
}

func TestSimulateAlertLogsWithoutChannel(t *testing.T) {
	a, out := testApp(t)
	a.Config.Market.RetryDelay = 0

	if err := a.SimulateAlert(context.Background(), SimulateOptions{HorizonDays: 5}); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !strings.Contains(out.String(), "simulated notification sent") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestWriteBars(t *testing.T) {
	a, out := testApp(t)
	bars := []storage.DailyBar{{
		Symbol: "BBRI.JK",
		Date:   time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		Open:   decimal.NewFromInt(5000),
		High:   decimal.NewFromInt(5075),
		Low:    decimal.NewFromInt(4950),
		Close:  decimal.NewFromInt(5025),
		Volume: 123456789,
		Source: "yahoo",
	}}
	if err := writeBars(a, bars); err != nil {
		t.Fatalf("write: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "2025-06-09") || !strings.Contains(text, "123,456,789") || !strings.Contains(text, "5025.00") {
		t.Fatalf("unexpected table:\n%s", text)
	}

	out.Reset()
	if err := writeBars(a, nil); err != nil || !strings.Contains(out.String(), "no bars found") {
		t.Fatalf("empty table: %v %q", err, out.String())
	}
}
