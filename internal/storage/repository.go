package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shintothemars/tft-bbri/internal/market"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

// ProviderName identifies the archive when it serves as a bar source.
const ProviderName = "postgres"

const (
	createDailyBarsSQL = `CREATE TABLE IF NOT EXISTS daily_bars (
        symbol     TEXT        NOT NULL,
        trade_date DATE        NOT NULL,
        open       NUMERIC     NOT NULL,
        high       NUMERIC     NOT NULL,
        low        NUMERIC     NOT NULL,
        close      NUMERIC     NOT NULL,
        volume     BIGINT      NOT NULL,
        source     TEXT        NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (symbol, trade_date)
    );`

	upsertDailyBarSQL = `INSERT INTO daily_bars (
        symbol,
        trade_date,
        open,
        high,
        low,
        close,
        volume,
        source
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (symbol, trade_date) DO UPDATE
    SET
        open   = EXCLUDED.open,
        high   = EXCLUDED.high,
        low    = EXCLUDED.low,
        close  = EXCLUDED.close,
        volume = EXCLUDED.volume,
        source = EXCLUDED.source;`

	listBarsBetweenSQL = `SELECT
        symbol,
        trade_date,
        open::text,
        high::text,
        low::text,
        close::text,
        volume,
        source,
        created_at
    FROM daily_bars
    WHERE symbol = $1
      AND trade_date >= $2
      AND trade_date <= $3
    ORDER BY trade_date;`

	listRecentBarsSQL = `SELECT
        symbol,
        trade_date,
        open::text,
        high::text,
        low::text,
        close::text,
        volume,
        source,
        created_at
    FROM daily_bars
    WHERE symbol = $1
    ORDER BY trade_date DESC
    LIMIT $2;`

	countBarsSQL = `SELECT COUNT(*) FROM daily_bars WHERE symbol = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// BarStore defines operations for the daily bar archive.
type BarStore interface {
	EnsureSchema(ctx context.Context) error
	UpsertBars(ctx context.Context, bars []DailyBar) (int, error)
	ListBarsBetween(ctx context.Context, symbol string, from, to time.Time) ([]DailyBar, error)
	ListRecentBars(ctx context.Context, symbol string, limit int) ([]DailyBar, error)
	CountBars(ctx context.Context, symbol string) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store provides access to archived bars.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock is dropped with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the daily_bars table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createDailyBarsSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertBars persists bars in one batch and returns the number written.
func (s *Store) UpsertBars(ctx context.Context, bars []DailyBar) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, bar := range bars {
		batch.Queue(upsertDailyBarSQL,
			bar.Symbol,
			market.Day(bar.Date),
			bar.Open.String(),
			bar.High.String(),
			bar.Low.String(),
			bar.Close.String(),
			bar.Volume,
			bar.Source,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	written := 0
	for range bars {
		if _, execErr := results.Exec(); execErr != nil {
			return written, fmt.Errorf("upsert daily bar: %w", execErr)
		}
		written++
	}
	return written, nil
}

// ListBarsBetween lists bars for symbol within [from, to] ordered by date.
func (s *Store) ListBarsBetween(ctx context.Context, symbol string, from, to time.Time) ([]DailyBar, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listBarsBetweenSQL, symbol, market.Day(from), market.Day(to))
	if queryErr != nil {
		return nil, fmt.Errorf("list bars between: %w", queryErr)
	}
	defer rows.Close()

	bars := make([]DailyBar, 0)
	for rows.Next() {
		bar, scanErr := scanDailyBar(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		bars = append(bars, bar)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bars, nil
}

// ListRecentBars lists the most recent bars ordered by descending date.
func (s *Store) ListRecentBars(ctx context.Context, symbol string, limit int) ([]DailyBar, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentBarsSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent bars: %w", queryErr)
	}
	defer rows.Close()

	bars := make([]DailyBar, 0, limit)
	for rows.Next() {
		bar, scanErr := scanDailyBar(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		bars = append(bars, bar)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bars, nil
}

// CountBars counts archived bars for symbol.
func (s *Store) CountBars(ctx context.Context, symbol string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countBarsSQL, symbol).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count bars: %w", scanErr)
	}
	return count, nil
}

// Name implements market.Source.
func (s *Store) Name() string { return ProviderName }

// FetchBars implements market.Source by reading the archive. Failures are
// reported as provider errors so the resilient source can retry and fall back.
func (s *Store) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error) {
	rows, err := s.ListBarsBetween(ctx, symbol, start, end)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &market.ProviderError{Provider: ProviderName, Err: err}
	}
	if len(rows) == 0 {
		return nil, &market.EmptyResultError{Provider: ProviderName, Symbol: symbol}
	}

	bars := make([]market.Bar, len(rows))
	for i, row := range rows {
		bars[i] = row.Bar()
	}
	return market.Repair(bars), nil
}

func scanDailyBar(rows pgx.Rows) (DailyBar, error) {
	var (
		bar                             DailyBar
		openStr, highStr, lowStr, clStr string
	)

	if err := rows.Scan(
		&bar.Symbol,
		&bar.Date,
		&openStr,
		&highStr,
		&lowStr,
		&clStr,
		&bar.Volume,
		&bar.Source,
		&bar.CreatedAt,
	); err != nil {
		return DailyBar{}, err
	}

	prices, err := parseDecimals(openStr, highStr, lowStr, clStr)
	if err != nil {
		return DailyBar{}, err
	}
	bar.Open, bar.High, bar.Low, bar.Close = prices[0], prices[1], prices[2], prices[3]
	bar.Date = market.Day(bar.Date)
	return bar, nil
}

// roundVolume converts a provider volume to the archived integer column.
func roundVolume(v float64) int64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return int64(math.Round(v))
}

var (
	_ BarStore       = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
	_ market.Source  = (*Store)(nil)
)
