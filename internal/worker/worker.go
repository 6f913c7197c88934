package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dverett/pricefeed-backend/internal/models"
	"github.com/dverett/pricefeed-backend/internal/objectstore"
)

// PriceSource fetches daily bars for an inclusive date range.
type PriceSource interface {
	DailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error)
}

// BarRecorder upserts fetched bars into the query store. Optional: a nil
// recorder means raw objects only.
type BarRecorder interface {
	UpsertBatch(ctx context.Context, bars []models.DailyBar) error
}

// Worker is the stateless data fetch worker. Given a symbol and a date
// range it fetches daily bars from the price source, writes one raw JSON
// object per trading day to the object store, and records the bars for
// query serving. All writes are idempotent overwrites, so repeating a range
// is safe.
type Worker struct {
	source  PriceSource
	objects objectstore.Store
	bars    BarRecorder
}

func New(source PriceSource, objects objectstore.Store, bars BarRecorder) *Worker {
	return &Worker{source: source, objects: objects, bars: bars}
}

// ObjectKey returns the object store key for one trading day of raw data,
// tiingo/<SYMBOL>/YYYY/MM/DD/data.json.
func ObjectKey(symbol string, day time.Time) string {
	return fmt.Sprintf("tiingo/%s/%s/data.json", symbol, day.UTC().Format("2006/01/02"))
}

// FetchRange fetches history for the half-open interval [start, end): end
// itself is excluded, matching the orchestrator's chunk boundaries.
func (w *Worker) FetchRange(ctx context.Context, symbol string, start, end time.Time) error {
	if !start.Before(end) {
		return fmt.Errorf("empty range %s..%s for %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"), symbol)
	}

	// The price source takes an inclusive range.
	last := end.AddDate(0, 0, -1)
	bars, err := w.source.DailyPrices(ctx, symbol, start, last)
	if err != nil {
		return fmt.Errorf("fetch %s %s..%s: %w",
			symbol, start.Format("2006-01-02"), last.Format("2006-01-02"), err)
	}

	fmt.Printf("[WORKER] Fetched %d bars for %s (%s .. %s)\n",
		len(bars), symbol, start.Format("2006-01-02"), last.Format("2006-01-02"))

	for _, bar := range bars {
		data, err := json.Marshal(bar)
		if err != nil {
			return fmt.Errorf("marshal bar %s %s: %w", symbol, bar.DayKey(), err)
		}
		key := ObjectKey(symbol, bar.Day)
		if err := w.objects.Put(ctx, key, data, "application/json"); err != nil {
			return fmt.Errorf("store %s: %w", key, err)
		}
	}

	if w.bars != nil {
		if err := w.bars.UpsertBatch(ctx, bars); err != nil {
			return fmt.Errorf("record bars for %s: %w", symbol, err)
		}
	}

	return nil
}

// FetchDaily fetches yesterday's bar for each symbol, the steady-state head
// of the series. Per-symbol failures are collected so one bad symbol does
// not block the rest.
func (w *Worker) FetchDaily(ctx context.Context, symbols []string, now time.Time) error {
	today := now.UTC().Truncate(24 * time.Hour)
	yesterday := today.AddDate(0, 0, -1)

	var firstErr error
	for _, symbol := range symbols {
		if err := w.FetchRange(ctx, symbol, yesterday, today); err != nil {
			fmt.Printf("[WORKER] Daily fetch failed for %s: %v\n", symbol, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
