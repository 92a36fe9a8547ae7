package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/shintothemars/tft-bbri/internal/api"
)

// Serve runs the HTTP API until SIGINT/SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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

	// A failed load is not fatal here; the first request retries it.
	if _, err := p.loader.Load(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("model load failed at startup")
	}

	handler := api.NewHandler(p.forecast, api.Options{
		ChartEnabled: a.Config.HTTP.Chart,
		Chart:        a.chartOptions(),
	}, a.Logger)
	router := api.NewRouter(handler, api.RouterOptions{
		RequestTimeout: a.Config.HTTP.RequestTimeout,
		CORSOrigins:    a.Config.HTTP.CORSOrigins,
		Gatherer:       a.Registry,
		Observer:       a.Metrics,
	})

	srv := &http.Server{
		Addr:         a.Config.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  a.Config.HTTP.ReadTimeout,
		WriteTimeout: a.Config.HTTP.WriteTimeout,
		IdleTimeout:  a.Config.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info().Str("addr", srv.Addr).Str("provider", source.Name()).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
		defer cancel()
		a.Logger.Info().Msg("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("server terminated with error")
		return err
	}
	a.Logger.Info().Msg("HTTP server stopped")
	return nil
}
