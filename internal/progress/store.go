package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dverett/pricefeed-backend/internal/models"
	"github.com/dverett/pricefeed-backend/internal/objectstore"
)

var (
	// ErrNotFound means no backfill has started for the symbol. Callers
	// apply the seeding policy; this is not a failure.
	ErrNotFound = errors.New("no checkpoint for symbol")

	// ErrMalformed means the stored record exists but cannot be trusted:
	// it fails to parse or violates the checkpoint invariants. It is never
	// auto-repaired; an operator must inspect the stored object.
	ErrMalformed = errors.New("malformed checkpoint")
)

const dateLayout = "2006-01-02"

// checkpointRecord is the persisted JSON shape. Dates are stored as
// YYYY-MM-DD strings so the record stays human-readable and editable.
type checkpointRecord struct {
	Symbol          string  `json:"symbol"`
	CursorDate      string  `json:"cursorDate"`
	TargetStartDate string  `json:"targetStartDate"`
	Status          string  `json:"status"`
	LastAttemptAt   *string `json:"lastAttemptAt,omitempty"`
	LastError       string  `json:"lastError,omitempty"`
}

// Store persists one BackfillCheckpoint per symbol as a single JSON object
// at a deterministic key. The orchestrator is the only writer; saves are
// whole-record overwrites, so writing the same checkpoint twice is a no-op
// in effect.
type Store struct {
	objects objectstore.Store
	prefix  string
}

func NewStore(objects objectstore.Store, prefix string) *Store {
	if prefix == "" {
		prefix = "backfill/checkpoints"
	}
	return &Store{objects: objects, prefix: strings.TrimSuffix(prefix, "/")}
}

// Key returns the object key holding the checkpoint for a symbol.
func (s *Store) Key(symbol string) string {
	return path.Join(s.prefix, strings.ToUpper(symbol)+".json")
}

// Load reads and validates the checkpoint for a symbol. Returns ErrNotFound
// when no record exists, ErrMalformed when the record cannot be trusted, and
// a wrapped storage error when the underlying read fails.
func (s *Store) Load(ctx context.Context, symbol string) (*models.BackfillCheckpoint, error) {
	data, err := s.objects.Get(ctx, s.Key(symbol))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
		}
		return nil, fmt.Errorf("load checkpoint for %s: %w", symbol, err)
	}

	var rec checkpointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, symbol, err)
	}

	cp, err := rec.toCheckpoint()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, symbol, err)
	}
	if err := cp.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cp, nil
}

// Save validates and overwrites the checkpoint record.
func (s *Store) Save(ctx context.Context, cp *models.BackfillCheckpoint) error {
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid checkpoint: %w", err)
	}

	data, err := json.Marshal(fromCheckpoint(cp))
	if err != nil {
		return fmt.Errorf("marshal checkpoint for %s: %w", cp.Symbol, err)
	}
	if err := s.objects.Put(ctx, s.Key(cp.Symbol), data, "application/json"); err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", cp.Symbol, err)
	}
	return nil
}

func (r checkpointRecord) toCheckpoint() (*models.BackfillCheckpoint, error) {
	cursor, err := time.Parse(dateLayout, r.CursorDate)
	if err != nil {
		return nil, fmt.Errorf("bad cursorDate %q", r.CursorDate)
	}
	target, err := time.Parse(dateLayout, r.TargetStartDate)
	if err != nil {
		return nil, fmt.Errorf("bad targetStartDate %q", r.TargetStartDate)
	}

	cp := &models.BackfillCheckpoint{
		Symbol:          r.Symbol,
		CursorDate:      cursor,
		TargetStartDate: target,
		Status:          models.BackfillStatus(r.Status),
		LastError:       r.LastError,
	}
	if r.LastAttemptAt != nil {
		ts, err := time.Parse(time.RFC3339, *r.LastAttemptAt)
		if err != nil {
			return nil, fmt.Errorf("bad lastAttemptAt %q", *r.LastAttemptAt)
		}
		cp.LastAttemptAt = &ts
	}
	return cp, nil
}

func fromCheckpoint(cp *models.BackfillCheckpoint) checkpointRecord {
	rec := checkpointRecord{
		Symbol:          cp.Symbol,
		CursorDate:      cp.CursorDate.UTC().Format(dateLayout),
		TargetStartDate: cp.TargetStartDate.UTC().Format(dateLayout),
		Status:          string(cp.Status),
		LastError:       cp.LastError,
	}
	if cp.LastAttemptAt != nil {
		ts := cp.LastAttemptAt.UTC().Format(time.RFC3339)
		rec.LastAttemptAt = &ts
	}
	return rec
}
