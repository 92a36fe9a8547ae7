package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/shintothemars/tft-bbri/internal/alerting"
	"github.com/shintothemars/tft-bbri/internal/forecast"
	"github.com/shintothemars/tft-bbri/internal/market"
	"github.com/shintothemars/tft-bbri/internal/scheduler"
	"github.com/shintothemars/tft-bbri/internal/storage"
)

// Forecaster runs one prediction.
type Forecaster interface {
	Predict(ctx context.Context, target time.Time) (*forecast.Result, error)
}

// NotificationObserver records dispatch outcomes.
type NotificationObserver interface {
	ObserveNotification(err error)
}

// Options tune the watch job.
type Options struct {
	HorizonDays    int
	ThresholdPct   float64
	NotifyDegraded bool
	AlertsOn       bool
	LockKey        int64
	Location       *time.Location
}

// Service runs scheduled forecasts and dispatches notifications.
type Service struct {
	opts       Options
	scheduler  *scheduler.Scheduler
	forecaster Forecaster
	notifier   alerting.Notifier
	locker     storage.AdvisoryLocker
	observer   NotificationObserver
	logger     zerolog.Logger

	threshold decimal.Decimal
}

// New constructs the watch service. locker and observer may be nil.
func New(opts Options, sched *scheduler.Scheduler, forecaster Forecaster, notifier alerting.Notifier, locker storage.AdvisoryLocker, observer NotificationObserver, logger zerolog.Logger) *Service {
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 7
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	return &Service{
		opts:       opts,
		scheduler:  sched,
		forecaster: forecaster,
		notifier:   notifier,
		locker:     locker,
		observer:   observer,
		logger:     logger.With().Str("component", "service").Logger(),
		threshold:  decimal.NewFromFloat(opts.ThresholdPct),
	}
}

// Run begins the cron loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行单次预测与告警。
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.Execute(ctx, at)
	return err
}

// Execute forecasts HorizonDays past the local calendar day of at and
// notifies when the result qualifies. It reports whether a notification was sent.
func (s *Service) Execute(ctx context.Context, at time.Time) (bool, error) {
	local := at.In(s.opts.Location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	target := today.AddDate(0, 0, s.opts.HorizonDays)

	res, err := s.forecaster.Predict(ctx, target)
	if err != nil {
		return false, fmt.Errorf("forecast %s: %w", target.Format(market.DateLayout), err)
	}

	s.logger.Info().Str("prediction_id", res.ID).
		Str("target_date", res.TargetDate).
		Float64("trend_pct", res.Analysis.TrendPercentage).
		Str("status", res.Status).
		Msg("forecast recorded")

	note, ok := s.Evaluate(res)
	if !ok || !s.opts.AlertsOn || s.notifier == nil {
		return false, nil
	}

	err = s.notifier.Notify(ctx, note)
	if s.observer != nil {
		s.observer.ObserveNotification(err)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("prediction_id", res.ID).Msg("failed to dispatch alert")
		return false, nil
	}
	return true, nil
}

// Evaluate builds the notification for res and reports whether it crosses the
// trend threshold or, when configured, carries a degradation tag.
func (s *Service) Evaluate(res *forecast.Result) (alerting.Notification, bool) {
	note := BuildNotification(res, s.threshold)
	crossed := note.TrendPct.Abs().GreaterThanOrEqual(s.threshold)
	degraded := s.opts.NotifyDegraded && res.IsDegraded()
	return note, crossed || degraded
}

// BuildNotification converts a forecast result into an alert payload.
func BuildNotification(res *forecast.Result, threshold decimal.Decimal) alerting.Notification {
	note := alerting.Notification{
		PredictionID:   res.ID,
		Symbol:         res.Symbol,
		LastPrice:      decimal.NewFromFloat(res.Analysis.LastPrice),
		PredictedPrice: decimal.NewFromFloat(res.Analysis.PredictedPrice),
		Lower:          decimal.NewFromFloat(res.Analysis.ConfidenceRange.Lower),
		Upper:          decimal.NewFromFloat(res.Analysis.ConfidenceRange.Upper),
		TrendPct:       decimal.NewFromFloat(res.Analysis.TrendPercentage),
		ThresholdPct:   threshold,
		Direction:      string(res.Analysis.TrendDirection),
	}
	if t, err := time.Parse(market.DateLayout, res.LastDataDate); err == nil {
		note.LastDataDate = t
	}
	if t, err := time.Parse(market.DateLayout, res.TargetDate); err == nil {
		note.TargetDate = t
	}
	for _, reason := range res.Degraded {
		note.Degraded = append(note.Degraded, string(reason))
	}
	return note
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
