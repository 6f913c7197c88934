package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dverett/pricefeed-backend/internal/models"
)

type BarRepo struct {
	pool *pgxpool.Pool
}

func NewBarRepo(pool *pgxpool.Pool) *BarRepo {
	return &BarRepo{pool: pool}
}

// UpsertBatch writes daily bars, overwriting any existing row for the same
// (symbol, day). Re-fetching a chunk therefore converges to the same rows.
func (r *BarRepo) UpsertBatch(ctx context.Context, bars []models.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(
			`INSERT INTO daily_bars (symbol, day, open, high, low, close, adj_close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (symbol, day) DO UPDATE SET
			   open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			   close = EXCLUDED.close, adj_close = EXCLUDED.adj_close,
			   volume = EXCLUDED.volume`,
			b.Symbol, b.Day, b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range bars {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetRange returns bars for symbol with day in [start, end], ascending.
func (r *BarRepo) GetRange(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT symbol, day, open, high, low, close, adj_close, volume
		 FROM daily_bars
		 WHERE symbol = $1 AND day >= $2 AND day <= $3
		 ORDER BY day ASC`,
		symbol, start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBars(rows)
}

func (r *BarRepo) GetLatest(ctx context.Context, symbol string) (*models.DailyBar, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT symbol, day, open, high, low, close, adj_close, volume
		 FROM daily_bars WHERE symbol = $1 ORDER BY day DESC LIMIT 1`,
		symbol,
	)
	b, err := scanBar(row)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (r *BarRepo) GetSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT symbol FROM daily_bars ORDER BY symbol ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanBar(row scannable) (*models.DailyBar, error) {
	var b models.DailyBar
	err := row.Scan(&b.Symbol, &b.Day, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBars(rows pgx.Rows) ([]models.DailyBar, error) {
	var out []models.DailyBar
	for rows.Next() {
		var b models.DailyBar
		if err := rows.Scan(&b.Symbol, &b.Day, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
