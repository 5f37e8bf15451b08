/*
stock.go - Point-in-time stock levels and projection reconciliation

STOCK ON DATE:
  For every batch with a consumption history, the remaining quantity as of
  the end of a given day (LatestAsOf). Batches without history are not
  reported: nothing has been consumed from them yet.

RECONCILIATION:
  A batch's Quantity is a cached projection of its latest log entry. The
  engine refreshes it on every commit, but rows touched outside the engine
  (imports, manual edits) can drift. Reconcile rewrites every projection
  that disagrees with the log.
*/
package kitchen

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// StockLevel is the remaining quantity of a batch as of a date.
type StockLevel struct {
	BatchID   BatchID
	Name      string
	Unit      string
	Remaining decimal.Decimal
	LoggedAt  time.Time
}

// StockOnDate reports each logged batch's balance at the end of date.
func StockOnDate(ctx context.Context, inv Inventory, date time.Time) ([]StockLevel, error) {
	ids, err := inv.LoggedBatchIDs(ctx)
	if err != nil {
		return nil, err
	}

	consumption := NewConsumptionLog(inv)
	cutoff := EndOfDay(date)

	var levels []StockLevel
	for _, id := range ids {
		entry, err := consumption.LatestAsOf(ctx, id, cutoff)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}

		level := StockLevel{
			BatchID:   id,
			Name:      "Unknown",
			Remaining: entry.QuantityRemaining,
			LoggedAt:  entry.At,
		}
		batch, err := inv.GetBatch(ctx, id)
		switch {
		case err == nil:
			level.Name = batch.Name
			level.Unit = batch.Unit
		case !IsNotFound(err):
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// =============================================================================
// RECONCILER - Batch projections vs. consumption log
// =============================================================================

// ReconcileSummary describes one reconciliation pass.
type ReconcileSummary struct {
	Checked   int
	Corrected []BatchCorrection
}

// BatchCorrection is one projection rewritten from the log.
type BatchCorrection struct {
	BatchID BatchID
	Name    string
	Was     decimal.Decimal
	Now     decimal.Decimal
}

// Reconciler refreshes cached batch quantities from the consumption log.
type Reconciler struct {
	Inventory TxInventory
}

// Reconcile runs one pass in a single transaction.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary

	err := r.Inventory.WithTx(ctx, func(inv Inventory) error {
		summary = ReconcileSummary{}
		ids, err := inv.LoggedBatchIDs(ctx)
		if err != nil {
			return err
		}

		consumption := NewConsumptionLog(inv)
		for _, id := range ids {
			batch, err := inv.GetBatch(ctx, id)
			if IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			summary.Checked++

			latest, err := consumption.LatestOverall(ctx, id)
			if err != nil {
				return err
			}
			if latest == nil || latest.QuantityRemaining.Equal(batch.Quantity) {
				continue
			}

			correction := BatchCorrection{
				BatchID: id,
				Name:    batch.Name,
				Was:     batch.Quantity,
				Now:     latest.QuantityRemaining,
			}
			batch.Quantity = latest.QuantityRemaining
			if err := inv.SaveBatch(ctx, *batch); err != nil {
				return fmt.Errorf("save batch %d: %w", id, err)
			}
			summary.Corrected = append(summary.Corrected, correction)
		}
		return nil
	})
	if err != nil {
		return ReconcileSummary{}, err
	}

	if len(summary.Corrected) > 0 {
		log.Printf("[Reconciler] corrected %d of %d batch projections", len(summary.Corrected), summary.Checked)
	}
	return summary, nil
}
