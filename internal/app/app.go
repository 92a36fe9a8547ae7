package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/shintothemars/tft-bbri/internal/alerting"
	"github.com/shintothemars/tft-bbri/internal/chart"
	"github.com/shintothemars/tft-bbri/internal/config"
	"github.com/shintothemars/tft-bbri/internal/features"
	"github.com/shintothemars/tft-bbri/internal/forecast"
	"github.com/shintothemars/tft-bbri/internal/market"
	"github.com/shintothemars/tft-bbri/internal/metrics"
	"github.com/shintothemars/tft-bbri/internal/model"
	"github.com/shintothemars/tft-bbri/internal/storage"
	"github.com/shintothemars/tft-bbri/internal/window"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Recorder
	Out      io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &App{
		Config:   cfg,
		Logger:   logger.With().Str("component", "app").Logger(),
		Registry: reg,
		Metrics:  metrics.New(reg),
		Out:      os.Stdout,
	}
}

// pipeline bundles the components one forecast service needs.
type pipeline struct {
	source   market.Source
	loader   *model.Loader
	forecast *forecast.Service
}

func (a *App) schema() window.Schema {
	schema := window.DefaultSchema()
	schema.MinEncoderLength = a.Config.Model.MinEncoderLength
	schema.MaxEncoderLength = a.Config.Model.MaxEncoderLength
	schema.MaxPredictionLength = a.Config.Model.MaxPredictionLength
	return schema
}

// newEngineer requires a full encoder history after indicator warm-up.
func newEngineer(schema window.Schema) *features.Engineer {
	opts := features.DefaultOptions()
	opts.MinRows = schema.MaxEncoderLength
	return features.NewEngineer(opts)
}

func (a *App) newSynthetic() *market.Synthetic {
	cfg := a.Config.Market.Synthetic
	return market.NewSynthetic(market.SyntheticOptions{
		Seed:       cfg.Seed,
		BasePrice:  cfg.BasePrice,
		Drift:      cfg.Drift,
		Volatility: cfg.Volatility,
		MinPrice:   cfg.MinPrice,
		MaxPrice:   cfg.MaxPrice,
	})
}

func (a *App) newYahoo() market.Source {
	cfg := a.Config.Market
	yahoo := market.NewYahoo(market.YahooOptions{
		BaseURL:   cfg.Yahoo.BaseURL,
		Timeout:   cfg.Yahoo.Timeout,
		UserAgent: cfg.Yahoo.UserAgent,
	}, a.Logger)

	return market.NewBreaker(yahoo, market.BreakerOptions{
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		MinRequests: cfg.Breaker.MinRequests,
		FailureRate: cfg.Breaker.FailureRate,
	}, a.Logger)
}

// newSource returns the configured primary provider and its closer.
func (a *App) newSource(ctx context.Context) (market.Source, func(), error) {
	switch a.Config.Market.Provider {
	case storage.ProviderName:
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		if store == nil {
			return nil, nil, errors.New("database.dsn is required for the postgres provider")
		}
		return store, closeStore, nil
	default:
		return a.newYahoo(), nil, nil
	}
}

func (a *App) newPipeline(primary market.Source) (*pipeline, error) {
	schema := a.schema()

	loader, err := model.NewLoader(model.Options{
		WeightsPath: a.Config.Model.WeightsPath,
		Quantiles:   a.Config.Model.Quantiles,
		Architecture: model.Architecture{
			HiddenSize: a.Config.Model.HiddenSize,
			Seed:       a.Config.Model.Seed,
		},
	}, schema, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("configure model loader: %w", err)
	}

	resilient := market.NewResilient(primary, a.newSynthetic(), market.ResilientOptions{
		Attempts: a.Config.Market.Attempts,
		Delay:    a.Config.Market.RetryDelay,
	}, a.Metrics, a.Logger)

	engineer := newEngineer(schema)
	builder := window.NewBuilder(schema)

	fc := a.Config.Forecast
	svc := forecast.New(forecast.Options{
		Symbol:       a.Config.Market.Symbol,
		LookbackDays: a.Config.Market.LookbackDays,
		BufferDays:   a.Config.Market.BufferDays,
		HistoryRows:  fc.HistoryRows,
		LowerLevel:   fc.LowerLevel,
		MedianLevel:  fc.MedianLevel,
		UpperLevel:   fc.UpperLevel,
		FallbackBand: fc.FallbackBand,
	}, resilient, engineer, builder, loader, a.Metrics, a.Logger)

	return &pipeline{source: primary, loader: loader, forecast: svc}, nil
}

func (a *App) chartOptions() chart.Options {
	opts := chart.DefaultOptions()
	if a.Config.Chart.Width > 0 {
		opts.Width = a.Config.Chart.Width
	}
	if a.Config.Chart.Height > 0 {
		opts.Height = a.Config.Chart.Height
	}
	if a.Config.Chart.Title != "" {
		opts.Title = a.Config.Chart.Title
	}
	if a.Config.Chart.Currency != "" {
		opts.Currency = a.Config.Chart.Currency
	}
	return opts
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// PredictOptions configure the predict command.
type PredictOptions struct {
	TargetDate string
	JSON       bool
	CSVPath    string
	PNGPath    string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	HorizonDays int
}

// ModelInitOptions configure the model init command.
type ModelInitOptions struct {
	Path  string
	Force bool
}
