package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dverett/pricefeed-backend/internal/metrics"
	"github.com/dverett/pricefeed-backend/internal/models"
	"github.com/dverett/pricefeed-backend/internal/progress"
)

var (
	// ErrWorkerFailed is a non-timeout worker failure. The checkpoint is
	// unmodified, so the next invocation retries the identical chunk.
	ErrWorkerFailed = errors.New("worker invocation failed")

	// ErrWorkerTimeout is the worker exceeding the invocation timeout.
	// Handled like ErrWorkerFailed but kept distinct: repeated timeouts
	// suggest the chunk span is too large for the worker's ceiling.
	ErrWorkerTimeout = errors.New("worker invocation timed out")

	// ErrStoreUnavailable means the checkpoint could not be read or
	// written. No chunk is attempted on a read failure.
	ErrStoreUnavailable = errors.New("progress store unavailable")
)

// Fetcher performs the actual data fetch for one chunk. The range is
// half-open: [start, end). Implementations must be safe to repeat for the
// same range (idempotent overwrites), because chunks are delivered
// at-least-once.
type Fetcher interface {
	FetchRange(ctx context.Context, symbol string, start, end time.Time) error
}

// Notifier receives human-facing progress announcements. Optional.
type Notifier interface {
	Send(msg string)
}

type Config struct {
	// ChunkSpanDays bounds how many days one invocation fetches.
	ChunkSpanDays int
	// TargetStart is the oldest date the backfill must reach.
	TargetStart time.Time
	// Timeout bounds the worker invocation.
	Timeout time.Duration
	// Now is the clock, injectable in tests. Defaults to time.Now.
	Now func() time.Time
}

// Result describes what one invocation did for one symbol.
type Result struct {
	Symbol     string
	ChunkStart time.Time
	ChunkEnd   time.Time
	Advanced   bool
	Completed  bool
	Skipped    bool
}

// Orchestrator advances one symbol's backfill by exactly one bounded chunk
// per invocation. Each invocation loads the checkpoint once, computes the
// next unfetched range, invokes the fetcher synchronously, and saves the
// checkpoint at most once. The cursor moves backward only on confirmed
// success, so the protocol is resumable from any crash point with no gaps
// and no double-counted ranges.
//
// Overlapping invocations for the same symbol are tolerated without locks:
// both read the same cursor, compute the identical chunk, and write the
// identical advanced cursor. The race costs at worst one redundant fetch,
// never corruption. A stricter single-active-invocation guarantee would
// need a lease and is deliberately not provided.
type Orchestrator struct {
	progress *progress.Store
	fetcher  Fetcher
	notify   Notifier
	cfg      Config
}

func New(store *progress.Store, fetcher Fetcher, notify Notifier, cfg Config) *Orchestrator {
	if cfg.ChunkSpanDays <= 0 {
		cfg.ChunkSpanDays = 180
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.TargetStart = midnightUTC(cfg.TargetStart)
	return &Orchestrator{progress: store, fetcher: fetcher, notify: notify, cfg: cfg}
}

// RunOnce executes a single backfill invocation for one symbol. All
// failures come back as wrapped sentinel errors; the caller reports them
// and relies on the next scheduled invocation for retry. Nothing is retried
// inside an invocation.
func (o *Orchestrator) RunOnce(ctx context.Context, symbol string) (*Result, error) {
	invocationID := uuid.NewString()[:8]
	now := o.cfg.Now().UTC()

	cp, err := o.progress.Load(ctx, symbol)
	switch {
	case err == nil:
	case errors.Is(err, progress.ErrNotFound):
		cp = o.seed(symbol, now)
		fmt.Printf("[BACKFILL %s] No checkpoint for %s — seeding cursor at %s, target %s\n",
			invocationID, symbol, cp.CursorDate.Format("2006-01-02"), cp.TargetStartDate.Format("2006-01-02"))
	case errors.Is(err, progress.ErrMalformed):
		// Surfaced loudly, never silently repaired: an auto-fix here could
		// discard real progress or re-fetch years of history.
		metrics.BackfillFailuresTotal.WithLabelValues(symbol, metrics.ReasonMalformed).Inc()
		metrics.BackfillInvocationsTotal.WithLabelValues(symbol, metrics.OutcomeFailed).Inc()
		fmt.Printf("[BACKFILL %s] FATAL: checkpoint for %s is malformed and needs operator repair: %v\n",
			invocationID, symbol, err)
		return nil, err
	default:
		metrics.BackfillFailuresTotal.WithLabelValues(symbol, metrics.ReasonStore).Inc()
		metrics.BackfillInvocationsTotal.WithLabelValues(symbol, metrics.OutcomeFailed).Inc()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Steady state after history is fully backfilled: load, compare, done.
	if cp.Status == models.BackfillComplete || !cp.CursorDate.After(cp.TargetStartDate) {
		metrics.BackfillInvocationsTotal.WithLabelValues(symbol, metrics.OutcomeNoop).Inc()
		metrics.BackfillRemainingDays.WithLabelValues(symbol).Set(0)
		return &Result{Symbol: symbol, Skipped: true}, nil
	}

	chunkStart, chunkEnd := o.nextChunk(cp)
	fmt.Printf("[BACKFILL %s] %s chunk [%s .. %s)\n",
		invocationID, symbol, chunkStart.Format("2006-01-02"), chunkEnd.Format("2006-01-02"))

	ictx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	started := time.Now()
	fetchErr := o.fetcher.FetchRange(ictx, symbol, chunkStart, chunkEnd)
	metrics.WorkerInvocationSeconds.WithLabelValues(symbol).Observe(time.Since(started).Seconds())

	if fetchErr != nil {
		return nil, o.fail(ctx, invocationID, cp, ictx, fetchErr, now)
	}

	return o.advance(ctx, invocationID, cp, chunkStart, chunkEnd, now)
}

// RunAll runs one invocation per symbol. A failure for one symbol does not
// stop the others; the joined error reports every failure.
func (o *Orchestrator) RunAll(ctx context.Context, symbols []string) error {
	var errs []error
	for _, symbol := range symbols {
		if _, err := o.RunOnce(ctx, symbol); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
	}
	return errors.Join(errs...)
}

// Status loads the checkpoint for each symbol without mutating anything.
// Symbols with no checkpoint yet are simply absent from the result.
func (o *Orchestrator) Status(ctx context.Context, symbols []string) ([]models.BackfillCheckpoint, error) {
	var out []models.BackfillCheckpoint
	for _, symbol := range symbols {
		cp, err := o.progress.Load(ctx, symbol)
		if err != nil {
			if errors.Is(err, progress.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *cp)
	}
	return out, nil
}

// seed builds the initial checkpoint: cursor at today's UTC midnight. The
// rule is deterministic within a day regardless of when the trigger fires,
// so a delayed scheduler does not change where backfill begins.
func (o *Orchestrator) seed(symbol string, now time.Time) *models.BackfillCheckpoint {
	cursor := midnightUTC(now)
	target := o.cfg.TargetStart
	if target.After(cursor) {
		target = cursor
	}
	return &models.BackfillCheckpoint{
		Symbol:          symbol,
		CursorDate:      cursor,
		TargetStartDate: target,
		Status:          models.BackfillInProgress,
	}
}

// nextChunk computes the half-open range [start, end) below the cursor,
// clipped so the final chunk never reaches past the target floor.
func (o *Orchestrator) nextChunk(cp *models.BackfillCheckpoint) (start, end time.Time) {
	end = cp.CursorDate
	start = end.AddDate(0, 0, -o.cfg.ChunkSpanDays)
	if start.Before(cp.TargetStartDate) {
		start = cp.TargetStartDate
	}
	return start, end
}

func (o *Orchestrator) advance(ctx context.Context, invocationID string, cp *models.BackfillCheckpoint, chunkStart, chunkEnd, now time.Time) (*Result, error) {
	cp.CursorDate = chunkStart
	cp.LastAttemptAt = &now
	cp.LastError = ""

	completed := !cp.CursorDate.After(cp.TargetStartDate)
	if completed {
		cp.Status = models.BackfillComplete
	}

	if err := o.progress.Save(ctx, cp); err != nil {
		// The chunk was fetched but the cursor was not persisted. The next
		// invocation re-fetches the same chunk; the worker's writes are
		// idempotent overwrites, so this loses time, not data.
		metrics.BackfillFailuresTotal.WithLabelValues(cp.Symbol, metrics.ReasonStore).Inc()
		metrics.BackfillInvocationsTotal.WithLabelValues(cp.Symbol, metrics.OutcomeFailed).Inc()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	metrics.BackfillChunksFetchedTotal.WithLabelValues(cp.Symbol).Inc()
	metrics.BackfillRemainingDays.WithLabelValues(cp.Symbol).Set(float64(cp.RemainingDays()))

	if completed {
		metrics.BackfillInvocationsTotal.WithLabelValues(cp.Symbol, metrics.OutcomeCompleted).Inc()
		fmt.Printf("[BACKFILL %s] %s COMPLETE — history reaches %s\n",
			invocationID, cp.Symbol, cp.TargetStartDate.Format("2006-01-02"))
		if o.notify != nil {
			o.notify.Send(fmt.Sprintf("Backfill complete for %s: history reaches %s",
				cp.Symbol, cp.TargetStartDate.Format("2006-01-02")))
		}
	} else {
		metrics.BackfillInvocationsTotal.WithLabelValues(cp.Symbol, metrics.OutcomeAdvanced).Inc()
		fmt.Printf("[BACKFILL %s] %s cursor advanced to %s (%d days remaining)\n",
			invocationID, cp.Symbol, cp.CursorDate.Format("2006-01-02"), cp.RemainingDays())
	}

	return &Result{
		Symbol:     cp.Symbol,
		ChunkStart: chunkStart,
		ChunkEnd:   chunkEnd,
		Advanced:   true,
		Completed:  completed,
	}, nil
}

// fail records diagnostics without touching the cursor, so the next
// invocation retries the identical chunk.
func (o *Orchestrator) fail(ctx context.Context, invocationID string, cp *models.BackfillCheckpoint, ictx context.Context, fetchErr error, now time.Time) error {
	reason := metrics.ReasonWorker
	wrapped := fmt.Errorf("%w: %v", ErrWorkerFailed, fetchErr)
	if errors.Is(fetchErr, context.DeadlineExceeded) || errors.Is(ictx.Err(), context.DeadlineExceeded) {
		reason = metrics.ReasonTimeout
		wrapped = fmt.Errorf("%w after %s: %v", ErrWorkerTimeout, o.cfg.Timeout, fetchErr)
	}

	metrics.BackfillFailuresTotal.WithLabelValues(cp.Symbol, reason).Inc()
	metrics.BackfillInvocationsTotal.WithLabelValues(cp.Symbol, metrics.OutcomeFailed).Inc()
	fmt.Printf("[BACKFILL %s] %s chunk failed (%s): %v — cursor stays at %s\n",
		invocationID, cp.Symbol, reason, fetchErr, cp.CursorDate.Format("2006-01-02"))

	// A LastError already on the checkpoint means the previous invocation
	// failed the same chunk too. That is worth a human's attention.
	if cp.LastError != "" && o.notify != nil {
		o.notify.Send(fmt.Sprintf("Backfill for %s is stuck: chunk ending %s has now failed repeatedly (%s)",
			cp.Symbol, cp.CursorDate.Format("2006-01-02"), reason))
	}

	// Diagnostic fields only; best effort. A save failure here must not
	// mask the original fetch failure.
	cp.LastAttemptAt = &now
	cp.LastError = wrapped.Error()
	if err := o.progress.Save(ctx, cp); err != nil {
		fmt.Printf("[BACKFILL %s] Could not persist diagnostics for %s: %v\n",
			invocationID, cp.Symbol, err)
	}

	return wrapped
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
