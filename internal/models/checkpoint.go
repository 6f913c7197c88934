package models

import (
	"fmt"
	"time"
)

type BackfillStatus string

const (
	BackfillInProgress BackfillStatus = "IN_PROGRESS"
	BackfillComplete   BackfillStatus = "COMPLETE"
)

// BackfillCheckpoint is the durable record of backfill progress for one
// symbol. CursorDate is the earliest day for which history has NOT yet been
// fetched; it moves backward toward TargetStartDate, and only after a
// confirmed successful chunk fetch. It is the sole resumption point.
type BackfillCheckpoint struct {
	Symbol          string
	CursorDate      time.Time
	TargetStartDate time.Time
	Status          BackfillStatus
	LastAttemptAt   *time.Time
	LastError       string
}

// Validate checks the structural invariants of the record. A violation means
// the stored record is corrupt and needs operator attention, not auto-repair.
func (c *BackfillCheckpoint) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("checkpoint has empty symbol")
	}
	switch c.Status {
	case BackfillInProgress, BackfillComplete:
	default:
		return fmt.Errorf("checkpoint for %s has unknown status %q", c.Symbol, c.Status)
	}
	if c.Status == BackfillInProgress && c.CursorDate.Before(c.TargetStartDate) {
		return fmt.Errorf("checkpoint for %s has cursor %s before target %s",
			c.Symbol,
			c.CursorDate.Format("2006-01-02"),
			c.TargetStartDate.Format("2006-01-02"))
	}
	return nil
}

// RemainingDays reports how many days of history are still unfetched.
func (c *BackfillCheckpoint) RemainingDays() int {
	if c.Status == BackfillComplete {
		return 0
	}
	d := int(c.CursorDate.Sub(c.TargetStartDate).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
