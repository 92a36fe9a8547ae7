package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shintothemars/tft-bbri/internal/market"
	"github.com/shintothemars/tft-bbri/internal/storage"
)

// Backfill copies provider bars for [From, To] into the archive.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	from := market.Day(opts.From)
	to := market.Day(opts.To)
	if to.Before(from) {
		return errors.New("回填范围为空，请检查 --from/--to")
	}

	symbol := a.Config.Market.Symbol
	source := a.newYahoo()

	var store *storage.Store
	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
	} else {
		var closeStore func()
		var err error
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn 未配置，无法回填")
		}
		if closeStore != nil {
			defer closeStore()
		}

		unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Watch.AdvisoryLockKey)
		if err != nil {
			return err
		}
		if !acquired {
			return errors.New("another backfill or watch job holds the advisory lock")
		}
		defer unlock()

		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	bars, err := source.FetchBars(ctx, symbol, from, to)
	if err != nil {
		return fmt.Errorf("fetch %s bars: %w", symbol, err)
	}

	rows := make([]storage.DailyBar, len(bars))
	for i, bar := range bars {
		rows[i] = storage.FromMarketBar(symbol, source.Name(), bar)
	}

	if opts.DryRun {
		a.Logger.Info().Str("symbol", symbol).Int("bars", len(rows)).Msg("回填 dry-run 完成")
		fmt.Fprintf(a.Out, "%d bars fetched for %s (%s .. %s), nothing written\n",
			len(rows), symbol, from.Format(market.DateLayout), to.Format(market.DateLayout))
		return nil
	}

	written, err := store.UpsertBars(ctx, rows)
	if err != nil {
		return err
	}

	total, err := store.CountBars(ctx, symbol)
	if err != nil {
		return err
	}
	a.Logger.Info().Str("symbol", symbol).Int("written", written).Int64("archived", total).Msg("回填完成")
	fmt.Fprintf(a.Out, "%d bars upserted for %s, %d archived\n", written, symbol, total)
	return nil
}
