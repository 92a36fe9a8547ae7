package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/shintothemars/tft-bbri/internal/scheduler"
	"github.com/shintothemars/tft-bbri/internal/service"
	"github.com/shintothemars/tft-bbri/internal/storage"
)

// Watch runs the scheduled forecast job until SIGINT/SIGTERM.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	source, closeSource, err := a.newSource(ctx)
	if err != nil {
		return err
	}
	if closeSource != nil {
		defer closeSource()
	}

	var locker storage.AdvisoryLocker
	if store, ok := source.(*storage.Store); ok {
		locker = store
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			a.Logger.Warn().Msg("database.dsn not configured; running without advisory lock")
		} else {
			defer closeStore()
			locker = store
		}
	}

	p, err := a.newPipeline(source)
	if err != nil {
		return err
	}

	loc := a.Config.Watch.Location()
	sched, err := scheduler.New(scheduler.Options{
		Spec:       a.Config.Watch.Cron,
		Location:   loc,
		RunOnStart: a.Config.Watch.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	notifier := a.newNotifier()
	svc := service.New(service.Options{
		HorizonDays:    a.Config.Watch.HorizonDays,
		ThresholdPct:   a.Config.Watch.ThresholdPct,
		NotifyDegraded: a.Config.Watch.NotifyDegraded,
		AlertsOn:       a.Config.Alerting.Enabled && notifier != nil,
		LockKey:        a.Config.Watch.AdvisoryLockKey,
		Location:       loc,
	}, sched, p.forecast, notifier, locker, a.Metrics, a.Logger)

	a.Logger.Info().Str("cron", a.Config.Watch.Cron).Int("horizon_days", a.Config.Watch.HorizonDays).Msg("starting watch service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch service stopped")
	return nil
}
