/*
consumption.go - Per-batch "quantity remaining as of" history

PURPOSE:
  Every deduction from a batch leaves an entry (batch, timestamp, remaining).
  The log answers "how much of this batch was left on date X" and is the
  source of truth for the batch's current quantity.

BACKDATING:
  A preparation may be logged for a date that lies before entries already
  in the log. The log is a balance log, not a delta log, so the later
  snapshots are stale once the earlier deduction lands. Resync overwrites
  every entry strictly after the inserted timestamp with the corrected
  balance:

    before:  T2=5  T3=3
    record:  T1=6                (batch was 8, 2 deducted as of T1)
    resync:  T1=6  T2=6  T3=6

ORDERING:
  Entries of a batch are ordered by At; entries sharing the same At are
  ordered by insertion (Seq).

ABSENCE:
  LatestAsOf and LatestOverall return nil when no entry qualifies. Missing
  data is never an error.
*/
package kitchen

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConsumptionLog maintains the replayable history of a batch.
type ConsumptionLog interface {
	// Record appends an entry.
	Record(ctx context.Context, batchID BatchID, at time.Time, remaining decimal.Decimal) (ConsumptionLogEntry, error)

	// Resync overwrites every entry with At strictly after asOf.
	Resync(ctx context.Context, batchID BatchID, asOf time.Time, remaining decimal.Decimal) (int, error)

	// LatestAsOf returns the entry with the greatest At <= at.
	LatestAsOf(ctx context.Context, batchID BatchID, at time.Time) (*ConsumptionLogEntry, error)

	// LatestOverall returns the entry with the greatest At.
	LatestOverall(ctx context.Context, batchID BatchID) (*ConsumptionLogEntry, error)

	// History returns all entries in order.
	History(ctx context.Context, batchID BatchID) ([]ConsumptionLogEntry, error)
}

// =============================================================================
// DEFAULT CONSUMPTION LOG - Implementation using Inventory
// =============================================================================

type DefaultConsumptionLog struct {
	Store Inventory
}

func NewConsumptionLog(store Inventory) *DefaultConsumptionLog {
	return &DefaultConsumptionLog{Store: store}
}

func (l *DefaultConsumptionLog) Record(ctx context.Context, batchID BatchID, at time.Time, remaining decimal.Decimal) (ConsumptionLogEntry, error) {
	return l.Store.AppendLog(ctx, ConsumptionLogEntry{
		ID:                uuid.NewString(),
		BatchID:           batchID,
		At:                at.UTC(),
		QuantityRemaining: remaining,
	})
}

func (l *DefaultConsumptionLog) Resync(ctx context.Context, batchID BatchID, asOf time.Time, remaining decimal.Decimal) (int, error) {
	return l.Store.OverwriteLogsAfter(ctx, batchID, asOf.UTC(), remaining)
}

func (l *DefaultConsumptionLog) LatestAsOf(ctx context.Context, batchID BatchID, at time.Time) (*ConsumptionLogEntry, error) {
	entries, err := l.Store.LogEntries(ctx, batchID)
	if err != nil {
		return nil, err
	}

	// Entries are ordered; the last qualifying one wins.
	var latest *ConsumptionLogEntry
	for i := range entries {
		if entries[i].At.After(at) {
			break
		}
		latest = &entries[i]
	}
	return copyEntry(latest), nil
}

func (l *DefaultConsumptionLog) LatestOverall(ctx context.Context, batchID BatchID) (*ConsumptionLogEntry, error) {
	entries, err := l.Store.LogEntries(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return copyEntry(&entries[len(entries)-1]), nil
}

func (l *DefaultConsumptionLog) History(ctx context.Context, batchID BatchID) ([]ConsumptionLogEntry, error) {
	return l.Store.LogEntries(ctx, batchID)
}

func copyEntry(e *ConsumptionLogEntry) *ConsumptionLogEntry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
