package progress_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dverett/pricefeed-backend/internal/models"
	"github.com/dverett/pricefeed-backend/internal/objectstore"
	"github.com/dverett/pricefeed-backend/internal/progress"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStore_RoundTrip(t *testing.T) {
	store := progress.NewStore(objectstore.NewMemoryStore(), "")
	ctx := context.Background()

	attempt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	in := &models.BackfillCheckpoint{
		Symbol:          "SPY",
		CursorDate:      date(2020, 7, 1),
		TargetStartDate: date(2015, 1, 1),
		Status:          models.BackfillInProgress,
		LastAttemptAt:   &attempt,
		LastError:       "HTTP 503: upstream error",
	}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := store.Load(ctx, "SPY")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Symbol != "SPY" || out.Status != models.BackfillInProgress {
		t.Errorf("unexpected identity fields: %+v", out)
	}
	if !out.CursorDate.Equal(in.CursorDate) || !out.TargetStartDate.Equal(in.TargetStartDate) {
		t.Errorf("dates did not round-trip: %+v", out)
	}
	if out.LastAttemptAt == nil || !out.LastAttemptAt.Equal(attempt) {
		t.Errorf("LastAttemptAt did not round-trip: %v", out.LastAttemptAt)
	}
	if out.LastError != in.LastError {
		t.Errorf("LastError did not round-trip: %q", out.LastError)
	}
}

func TestStore_NotFound(t *testing.T) {
	store := progress.NewStore(objectstore.NewMemoryStore(), "")
	_, err := store.Load(context.Background(), "SPY")
	if !errors.Is(err, progress.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_KeyIsDeterministic(t *testing.T) {
	store := progress.NewStore(objectstore.NewMemoryStore(), "state/backfill/")
	if got := store.Key("spy"); got != "state/backfill/SPY.json" {
		t.Fatalf("Key = %q", got)
	}

	deflt := progress.NewStore(objectstore.NewMemoryStore(), "")
	if got := deflt.Key("TLT"); got != "backfill/checkpoints/TLT.json" {
		t.Fatalf("default Key = %q", got)
	}
}

func TestStore_MalformedRecords(t *testing.T) {
	objects := objectstore.NewMemoryStore()
	store := progress.NewStore(objects, "")
	ctx := context.Background()

	cases := []struct {
		name string
		body string
	}{
		{"garbage", `{{{`},
		{"bad date", `{"symbol":"SPY","cursorDate":"July 1","targetStartDate":"2015-01-01","status":"IN_PROGRESS"}`},
		{"unknown status", `{"symbol":"SPY","cursorDate":"2020-07-01","targetStartDate":"2015-01-01","status":"PAUSED"}`},
		{"cursor before target", `{"symbol":"SPY","cursorDate":"2014-12-31","targetStartDate":"2015-01-01","status":"IN_PROGRESS"}`},
		{"empty symbol", `{"symbol":"","cursorDate":"2020-07-01","targetStartDate":"2015-01-01","status":"IN_PROGRESS"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := objects.Put(ctx, store.Key("SPY"), []byte(tc.body), "application/json"); err != nil {
				t.Fatalf("Put: %v", err)
			}
			_, err := store.Load(ctx, "SPY")
			if !errors.Is(err, progress.ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestStore_RefusesToSaveInvalidCheckpoint(t *testing.T) {
	store := progress.NewStore(objectstore.NewMemoryStore(), "")
	err := store.Save(context.Background(), &models.BackfillCheckpoint{
		Symbol:          "SPY",
		CursorDate:      date(2014, 1, 1),
		TargetStartDate: date(2015, 1, 1),
		Status:          models.BackfillInProgress,
	})
	if err == nil {
		t.Fatal("expected save of invariant-violating checkpoint to fail")
	}
}

func TestStore_CompleteAllowsCursorAtTarget(t *testing.T) {
	store := progress.NewStore(objectstore.NewMemoryStore(), "")
	ctx := context.Background()

	cp := &models.BackfillCheckpoint{
		Symbol:          "SPY",
		CursorDate:      date(2015, 1, 1),
		TargetStartDate: date(2015, 1, 1),
		Status:          models.BackfillComplete,
	}
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := store.Load(ctx, "SPY")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Status != models.BackfillComplete {
		t.Errorf("status = %s", out.Status)
	}
	if out.RemainingDays() != 0 {
		t.Errorf("RemainingDays = %d, want 0", out.RemainingDays())
	}
}
