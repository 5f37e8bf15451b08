/*
store.go - Persistence ports for batches, the consumption log and recipes

PURPOSE:
  Defines the interfaces between the engine and the database. The engine
  never reaches a database directly: every cross-entity fetch is an explicit
  call on one of these ports.

KEY INTERFACES:
  Inventory:   batches and consumption log entries
  TxInventory: Inventory plus atomic multi-write transactions
  RecipeBook:  dish lookup and recipe requirements

ATOMIC PREPARATION:
  A preparation touches several batches and log rows. WithTx runs the whole
  read-allocate-write cycle in one transaction; if fn returns an error,
  nothing it wrote is kept.

IMPLEMENTATIONS:
  - kitchen/store/memory.go: in-memory, for tests and development
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL via gorm, with row locks
*/
package kitchen

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INVENTORY - Batches and consumption log
// =============================================================================

type Inventory interface {
	// FindBatches returns every batch whose name contains name,
	// case-insensitively, including empty ones. Ordered by ReceivedAt, then ID.
	FindBatches(ctx context.Context, name string) ([]IngredientBatch, error)

	// GetBatch returns a batch by id, or ErrBatchNotFound.
	GetBatch(ctx context.Context, id BatchID) (*IngredientBatch, error)

	// SaveBatch persists the quantity of an existing batch.
	SaveBatch(ctx context.Context, batch IngredientBatch) error

	// AppendLog adds an entry and returns it with Seq assigned.
	AppendLog(ctx context.Context, entry ConsumptionLogEntry) (ConsumptionLogEntry, error)

	// LogEntries returns all entries of a batch ordered by At, then Seq.
	LogEntries(ctx context.Context, batchID BatchID) ([]ConsumptionLogEntry, error)

	// OverwriteLogsAfter sets QuantityRemaining of every entry of the batch
	// with At strictly after the given time. Returns the number of entries touched.
	OverwriteLogsAfter(ctx context.Context, batchID BatchID, after time.Time, qty decimal.Decimal) (int, error)

	// LoggedBatchIDs returns the ids of all batches that have log entries.
	LoggedBatchIDs(ctx context.Context) ([]BatchID, error)
}

// TxInventory wraps Inventory with transaction support.
type TxInventory interface {
	Inventory

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Inventory) error) error
}

// =============================================================================
// RECIPE BOOK - Dishes and their requirements
// =============================================================================

type RecipeBook interface {
	// FindDish looks a dish up by name, case-insensitively. Returns nil, nil
	// when no dish matches.
	FindDish(ctx context.Context, name string) (*Dish, error)

	// Ingredients returns the recipe of a dish.
	Ingredients(ctx context.Context, dishID DishID) ([]RecipeRequirement, error)
}
