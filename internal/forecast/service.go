package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shintothemars/tft-bbri/internal/features"
	"github.com/shintothemars/tft-bbri/internal/market"
	"github.com/shintothemars/tft-bbri/internal/model"
	"github.com/shintothemars/tft-bbri/internal/window"
)

// BarFetcher supplies the series a prediction is based on.
type BarFetcher interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) (market.Series, error)
}

// ModelSource hands out the loaded model.
type ModelSource interface {
	Predictor(ctx context.Context) (model.Predictor, error)
}

// Recorder receives pipeline telemetry.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	ObservePrediction(outcome string, d time.Duration)
	ObserveDegraded(reason string)
}

// Options configure the orchestrator.
type Options struct {
	Symbol       string
	LookbackDays int
	BufferDays   int
	HistoryRows  int
	LowerLevel   float64
	MedianLevel  float64
	UpperLevel   float64
	FallbackBand float64
	Now          func() time.Time
	NewID        func() string
}

// DefaultOptions returns the BBRI defaults.
func DefaultOptions() Options {
	return Options{
		Symbol:       "BBRI.JK",
		LookbackDays: 180,
		BufferDays:   60,
		HistoryRows:  90,
		LowerLevel:   0.1,
		MedianLevel:  0.5,
		UpperLevel:   0.9,
		FallbackBand: 0.10,
	}
}

// Service runs the forecasting pipeline for one symbol.
type Service struct {
	opts     Options
	fetcher  BarFetcher
	engineer *features.Engineer
	builder  *window.Builder
	models   ModelSource
	recorder Recorder
	logger   zerolog.Logger
}

// New constructs the orchestrator.
func New(opts Options, fetcher BarFetcher, engineer *features.Engineer, builder *window.Builder, models ModelSource, recorder Recorder, logger zerolog.Logger) *Service {
	def := DefaultOptions()
	if opts.Symbol == "" {
		opts.Symbol = def.Symbol
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = def.LookbackDays
	}
	if opts.BufferDays < 0 {
		opts.BufferDays = def.BufferDays
	}
	if opts.HistoryRows <= 0 {
		opts.HistoryRows = def.HistoryRows
	}
	if opts.LowerLevel == 0 && opts.MedianLevel == 0 && opts.UpperLevel == 0 {
		opts.LowerLevel, opts.MedianLevel, opts.UpperLevel = def.LowerLevel, def.MedianLevel, def.UpperLevel
	}
	if opts.FallbackBand <= 0 || opts.FallbackBand >= 1 {
		opts.FallbackBand = def.FallbackBand
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Service{
		opts:     opts,
		fetcher:  fetcher,
		engineer: engineer,
		builder:  builder,
		models:   models,
		recorder: recorder,
		logger:   logger.With().Str("component", "forecast").Str("symbol", opts.Symbol).Logger(),
	}
}

// Symbol returns the forecast symbol.
func (s *Service) Symbol() string { return s.opts.Symbol }

// Predict forecasts the closing price path from the day after the last
// observed bar up to and including target.
func (s *Service) Predict(ctx context.Context, target time.Time) (*Result, error) {
	r := s.begin()

	r.enter(StageValidating)
	if target.IsZero() {
		return nil, r.fail(&InvalidTargetDateError{})
	}
	target = market.Day(target)

	predictor, err := s.models.Predictor(ctx)
	if err != nil {
		return nil, r.fail(err)
	}
	idx, err := ResolveIndex(predictor.Quantiles(), s.opts.LowerLevel, s.opts.MedianLevel, s.opts.UpperLevel)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StageFetching)
	end := market.Day(s.opts.Now())
	start := end.AddDate(0, 0, -(s.opts.LookbackDays + s.opts.BufferDays))
	series, err := s.fetcher.Fetch(ctx, s.opts.Symbol, start, end)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StageFeaturizing)
	rows, err := s.engineer.Enrich(series.Bars)
	if err != nil {
		return nil, r.fail(err)
	}
	last := rows[len(rows)-1]
	lastDate := market.Day(last.Date)

	schema := s.builder.Schema()
	horizon := int(target.Sub(lastDate).Hours() / 24)
	if horizon <= 0 || horizon > schema.MaxPredictionLength {
		return nil, r.fail(&InvalidHorizonError{Target: target, LastDate: lastDate, Horizon: horizon, Max: schema.MaxPredictionLength})
	}

	r.enter(StageWindowing)
	encoderLength := schema.MaxEncoderLength
	if len(rows)-1 < encoderLength {
		encoderLength = len(rows) - 1
	}
	if encoderLength < schema.MinEncoderLength {
		return nil, r.fail(&window.WindowTooShortError{Rows: len(rows), Required: schema.MinEncoderLength + 1})
	}
	win, err := s.builder.Build(rows, encoderLength, schema.MaxPredictionLength)
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StageInferring)
	out, err := predictor.Predict(win)
	if err != nil {
		return nil, r.fail(fmt.Errorf("model inference: %w", err))
	}

	r.enter(StagePostprocessing)
	bands, err := ExtractBands(out, horizon, idx, s.opts.FallbackBand)
	if err != nil {
		return nil, r.fail(err)
	}

	result := s.assemble(r.id, target, lastDate, horizon, rows, series, bands, predictor.Untrained())
	r.finish(result)
	return result, nil
}

func (s *Service) assemble(id string, target, lastDate time.Time, horizon int, rows []features.Row, series market.Series, bands Bands, untrained bool) *Result {
	dates := make([]string, horizon)
	for i := range dates {
		dates[i] = lastDate.AddDate(0, 0, i+1).Format(market.DateLayout)
	}

	histStart := len(rows) - s.opts.HistoryRows
	if histStart < 0 {
		histStart = 0
	}
	hist := Historical{
		Dates: make([]string, 0, len(rows)-histStart),
		Close: make([]float64, 0, len(rows)-histStart),
	}
	for _, row := range rows[histStart:] {
		hist.Dates = append(hist.Dates, row.Date.Format(market.DateLayout))
		hist.Close = append(hist.Close, row.Close)
	}

	lastClose := rows[len(rows)-1].Close
	final := bands.Median[horizon-1]
	pct, direction := Trend(lastClose, final)

	var degraded []Reason
	if series.Synthetic() {
		degraded = append(degraded, ReasonSyntheticData)
	}
	if untrained {
		degraded = append(degraded, ReasonUntrainedModel)
	}
	if bands.Approximate {
		degraded = append(degraded, ReasonApproximateQuantiles)
	}

	status := StatusNominal
	if len(degraded) > 0 {
		status = StatusDegraded
	}

	modelState := "trained"
	if untrained {
		modelState = "untrained"
	}

	return &Result{
		ID:                id,
		Success:           true,
		Symbol:            s.opts.Symbol,
		TargetDate:        target.Format(market.DateLayout),
		LastDataDate:      lastDate.Format(market.DateLayout),
		PredictionHorizon: horizon,
		Predictions: Predictions{
			Dates:      dates,
			Median:     bands.Median,
			LowerBound: bands.Lower,
			UpperBound: bands.Upper,
		},
		Historical: hist,
		Analysis: Analysis{
			LastPrice:       lastClose,
			PredictedPrice:  final,
			TrendPercentage: pct,
			TrendDirection:  direction,
			ConfidenceRange: ConfidenceRange{
				Lower: bands.Lower[horizon-1],
				Upper: bands.Upper[horizon-1],
			},
		},
		Quantiles: QuantileLevels{
			Lower:  s.opts.LowerLevel,
			Median: s.opts.MedianLevel,
			Upper:  s.opts.UpperLevel,
		},
		DataSource:  series.Origin,
		ModelState:  modelState,
		Status:      status,
		Degraded:    degraded,
		GeneratedAt: s.opts.Now().UTC(),
	}
}
