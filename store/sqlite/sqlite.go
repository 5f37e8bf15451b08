/*
Package sqlite provides a SQLite-backed implementation of the kitchen ports.

PURPOSE:
  Implements kitchen.TxInventory and kitchen.RecipeBook on SQLite, plus the
  administrative operations the HTTP layer needs (receiving batches,
  defining dishes, listing, reset).

INTERFACES IMPLEMENTED:
  kitchen.Inventory:   batches and consumption log
  kitchen.TxInventory: atomic preparations via WithTx
  kitchen.RecipeBook:  dishes and their ingredients

KEY TABLES:
  batches:          one row per received lot, quantity is the cached projection
  consumption_log:  remaining quantity of a batch as of a timestamp
  dishes:           menu items
  dish_ingredients: per-serving recipe lines

LOG WRITES:
  consumption_log rows are inserted, and their quantity_left is only updated
  by OverwriteLogsAfter (backdated resync). Rows are never deleted outside
  Reset.

NUMBERS AND TIME:
  Quantities and prices are stored as decimal strings so nothing is lost to
  floating point. Timestamps are stored in a fixed-width UTC layout with
  nanoseconds, so string comparison in SQL matches time order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection: WithTx holds
  the write lock for the whole transaction, and every query inside it goes
  through the sql.Tx. ":memory:" databases are per connection, so a single
  connection is also what keeps them coherent.

USAGE:
  store, err := sqlite.New("./data/pantry.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := kitchen.NewEngine(store, store)

SEE ALSO:
  - kitchen/store.go: Interface definitions
  - kitchen/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation with row locks
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/pantry/kitchen"
)

// timeLayout is fixed width so lexical order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements the kitchen ports using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ingredient batches (one row per delivery)
	CREATE TABLE IF NOT EXISTS batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		quantity TEXT NOT NULL,
		delivered TEXT NOT NULL DEFAULT '0',
		unit TEXT NOT NULL,
		cost_per_unit TEXT NOT NULL DEFAULT '0',
		type TEXT NOT NULL DEFAULT '',
		received_at TEXT NOT NULL
	);

	-- FIFO lookups by name
	CREATE INDEX IF NOT EXISTS idx_batches_name_received
		ON batches(name, received_at, id);

	-- Expense reports by delivery date
	CREATE INDEX IF NOT EXISTS idx_batches_received
		ON batches(received_at);

	-- Consumption log ("quantity left as of")
	CREATE TABLE IF NOT EXISTS consumption_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		batch_id INTEGER NOT NULL REFERENCES batches(id),
		logged_at TEXT NOT NULL,
		quantity_left TEXT NOT NULL
	);

	-- Hot path: latest entry per batch, resync of later entries
	CREATE INDEX IF NOT EXISTS idx_consumption_log_batch_time
		ON consumption_log(batch_id, logged_at, seq);

	-- Dishes
	CREATE TABLE IF NOT EXISTS dishes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_dishes_name
		ON dishes(name COLLATE NOCASE);

	-- Recipe lines
	CREATE TABLE IF NOT EXISTS dish_ingredients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dish_id INTEGER NOT NULL REFERENCES dishes(id),
		ingredient TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dish_ingredients_dish
		ON dish_ingredients(dish_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// INVENTORY (kitchen.Inventory interface)
// =============================================================================

// FindBatches returns batches whose name contains name, case-insensitively.
func (s *Store) FindBatches(ctx context.Context, name string) ([]kitchen.IngredientBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findBatches(ctx, s.db, name)
}

func findBatches(ctx context.Context, q querier, name string) ([]kitchen.IngredientBatch, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(name))) + "%"
	query := `
		SELECT id, name, quantity, delivered, unit, cost_per_unit, type, received_at
		FROM batches
		WHERE LOWER(name) LIKE ? ESCAPE '\'
		ORDER BY received_at ASC, id ASC
	`
	return queryBatches(ctx, q, query, pattern)
}

// GetBatch returns a batch by id.
func (s *Store) GetBatch(ctx context.Context, id kitchen.BatchID) (*kitchen.IngredientBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBatch(ctx, s.db, id)
}

func getBatch(ctx context.Context, q querier, id kitchen.BatchID) (*kitchen.IngredientBatch, error) {
	query := `
		SELECT id, name, quantity, delivered, unit, cost_per_unit, type, received_at
		FROM batches
		WHERE id = ?
	`
	batches, err := queryBatches(ctx, q, query, int64(id))
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("%w: %d", kitchen.ErrBatchNotFound, id)
	}
	return &batches[0], nil
}

// SaveBatch persists the quantity of an existing batch.
func (s *Store) SaveBatch(ctx context.Context, batch kitchen.IngredientBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBatch(ctx, s.db, batch)
}

func saveBatch(ctx context.Context, q querier, batch kitchen.IngredientBatch) error {
	res, err := q.ExecContext(ctx,
		"UPDATE batches SET quantity = ? WHERE id = ?",
		batch.Quantity.String(), int64(batch.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to save batch %d: %w", batch.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save batch %d: %w", batch.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", kitchen.ErrBatchNotFound, batch.ID)
	}
	return nil
}

// AppendLog inserts a log entry and returns it with its sequence number.
func (s *Store) AppendLog(ctx context.Context, entry kitchen.ConsumptionLogEntry) (kitchen.ConsumptionLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLog(ctx, s.db, entry)
}

func appendLog(ctx context.Context, q querier, entry kitchen.ConsumptionLogEntry) (kitchen.ConsumptionLogEntry, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO consumption_log (id, batch_id, logged_at, quantity_left)
		VALUES (?, ?, ?, ?)
	`,
		entry.ID,
		int64(entry.BatchID),
		formatTime(entry.At),
		entry.QuantityRemaining.String(),
	)
	if err != nil {
		return entry, fmt.Errorf("failed to append log entry: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return entry, fmt.Errorf("failed to read log sequence: %w", err)
	}
	entry.Seq = seq
	entry.At = entry.At.UTC()
	return entry, nil
}

// LogEntries returns the log of a batch in time order.
func (s *Store) LogEntries(ctx context.Context, batchID kitchen.BatchID) ([]kitchen.ConsumptionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return logEntries(ctx, s.db, batchID)
}

func logEntries(ctx context.Context, q querier, batchID kitchen.BatchID) ([]kitchen.ConsumptionLogEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT seq, id, batch_id, logged_at, quantity_left
		FROM consumption_log
		WHERE batch_id = ?
		ORDER BY logged_at ASC, seq ASC
	`, int64(batchID))
	if err != nil {
		return nil, fmt.Errorf("failed to query consumption log: %w", err)
	}
	defer rows.Close()

	var entries []kitchen.ConsumptionLogEntry
	for rows.Next() {
		var (
			e        kitchen.ConsumptionLogEntry
			batch    int64
			loggedAt string
			left     string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &batch, &loggedAt, &left); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.BatchID = kitchen.BatchID(batch)
		if e.At, err = parseTime(loggedAt); err != nil {
			return nil, err
		}
		if e.QuantityRemaining, err = parseDecimal(left); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// OverwriteLogsAfter sets quantity_left on every entry strictly after the given time.
func (s *Store) OverwriteLogsAfter(ctx context.Context, batchID kitchen.BatchID, after time.Time, qty decimal.Decimal) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return overwriteLogsAfter(ctx, s.db, batchID, after, qty)
}

func overwriteLogsAfter(ctx context.Context, q querier, batchID kitchen.BatchID, after time.Time, qty decimal.Decimal) (int, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE consumption_log SET quantity_left = ?
		WHERE batch_id = ? AND logged_at > ?
	`, qty.String(), int64(batchID), formatTime(after))
	if err != nil {
		return 0, fmt.Errorf("failed to resync consumption log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to resync consumption log: %w", err)
	}
	return int(n), nil
}

// LoggedBatchIDs returns every batch id with at least one log entry.
func (s *Store) LoggedBatchIDs(ctx context.Context) ([]kitchen.BatchID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loggedBatchIDs(ctx, s.db)
}

func loggedBatchIDs(ctx context.Context, q querier) ([]kitchen.BatchID, error) {
	rows, err := q.QueryContext(ctx, "SELECT DISTINCT batch_id FROM consumption_log ORDER BY batch_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query logged batches: %w", err)
	}
	defer rows.Close()

	var ids []kitchen.BatchID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan batch id: %w", err)
		}
		ids = append(ids, kitchen.BatchID(id))
	}
	return ids, rows.Err()
}

func queryBatches(ctx context.Context, q querier, query string, args ...any) ([]kitchen.IngredientBatch, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []kitchen.IngredientBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func scanBatch(rows *sql.Rows) (kitchen.IngredientBatch, error) {
	var (
		b          kitchen.IngredientBatch
		id         int64
		quantity   string
		delivered  string
		cost       string
		receivedAt string
	)
	if err := rows.Scan(&id, &b.Name, &quantity, &delivered, &b.Unit, &cost, &b.Type, &receivedAt); err != nil {
		return b, fmt.Errorf("failed to scan batch: %w", err)
	}

	var err error
	b.ID = kitchen.BatchID(id)
	if b.Quantity, err = parseDecimal(quantity); err != nil {
		return b, err
	}
	if b.Delivered, err = parseDecimal(delivered); err != nil {
		return b, err
	}
	if b.CostPerUnit, err = parseDecimal(cost); err != nil {
		return b, err
	}
	if b.ReceivedAt, err = parseTime(receivedAt); err != nil {
		return b, err
	}
	return b, nil
}

// =============================================================================
// TRANSACTIONAL STORE (kitchen.TxInventory interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(kitchen.Inventory) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every call on the open sql.Tx. The parent's lock is already held.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) FindBatches(ctx context.Context, name string) ([]kitchen.IngredientBatch, error) {
	return findBatches(ctx, ts.tx, name)
}

func (ts *txStore) GetBatch(ctx context.Context, id kitchen.BatchID) (*kitchen.IngredientBatch, error) {
	return getBatch(ctx, ts.tx, id)
}

func (ts *txStore) SaveBatch(ctx context.Context, batch kitchen.IngredientBatch) error {
	return saveBatch(ctx, ts.tx, batch)
}

func (ts *txStore) AppendLog(ctx context.Context, entry kitchen.ConsumptionLogEntry) (kitchen.ConsumptionLogEntry, error) {
	return appendLog(ctx, ts.tx, entry)
}

func (ts *txStore) LogEntries(ctx context.Context, batchID kitchen.BatchID) ([]kitchen.ConsumptionLogEntry, error) {
	return logEntries(ctx, ts.tx, batchID)
}

func (ts *txStore) OverwriteLogsAfter(ctx context.Context, batchID kitchen.BatchID, after time.Time, qty decimal.Decimal) (int, error) {
	return overwriteLogsAfter(ctx, ts.tx, batchID, after, qty)
}

func (ts *txStore) LoggedBatchIDs(ctx context.Context) ([]kitchen.BatchID, error) {
	return loggedBatchIDs(ctx, ts.tx)
}

// =============================================================================
// RECIPE BOOK (kitchen.RecipeBook interface)
// =============================================================================

// FindDish returns the first dish with the given name, or nil.
func (s *Store) FindDish(ctx context.Context, name string) (*kitchen.Dish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		d  kitchen.Dish
		id int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, type FROM dishes WHERE name = ? COLLATE NOCASE ORDER BY id LIMIT 1",
		strings.TrimSpace(name),
	).Scan(&id, &d.Name, &d.Type)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find dish: %w", err)
	}
	d.ID = kitchen.DishID(id)
	return &d, nil
}

// Ingredients returns the recipe lines of a dish in insertion order.
func (s *Store) Ingredients(ctx context.Context, dishID kitchen.DishID) ([]kitchen.RecipeRequirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT ingredient, quantity, unit
		FROM dish_ingredients
		WHERE dish_id = ?
		ORDER BY id ASC
	`, int64(dishID))
	if err != nil {
		return nil, fmt.Errorf("failed to query ingredients: %w", err)
	}
	defer rows.Close()

	var reqs []kitchen.RecipeRequirement
	for rows.Next() {
		r := kitchen.RecipeRequirement{DishID: dishID}
		var perServing string
		if err := rows.Scan(&r.Ingredient, &perServing, &r.Unit); err != nil {
			return nil, fmt.Errorf("failed to scan ingredient: %w", err)
		}
		if r.PerServing, err = parseDecimal(perServing); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// =============================================================================
// ADMINISTRATION
// =============================================================================

// AddBatch inserts a new batch and returns it with its id.
func (s *Store) AddBatch(ctx context.Context, batch kitchen.IngredientBatch) (kitchen.IngredientBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch = batch.AsDelivered()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (name, quantity, delivered, unit, cost_per_unit, type, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		batch.Name,
		batch.Quantity.String(),
		batch.Delivered.String(),
		batch.Unit,
		batch.CostPerUnit.String(),
		batch.Type,
		formatTime(batch.ReceivedAt),
	)
	if err != nil {
		return batch, fmt.Errorf("failed to add batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return batch, fmt.Errorf("failed to add batch: %w", err)
	}
	batch.ID = kitchen.BatchID(id)
	batch.ReceivedAt = batch.ReceivedAt.UTC()
	return batch, nil
}

// AddDish inserts a dish and its recipe in one transaction.
func (s *Store) AddDish(ctx context.Context, dish kitchen.Dish, reqs []kitchen.RecipeRequirement) (kitchen.Dish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dish, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx, "INSERT INTO dishes (name, type) VALUES (?, ?)", dish.Name, dish.Type)
	if err != nil {
		return dish, fmt.Errorf("failed to add dish: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return dish, fmt.Errorf("failed to add dish: %w", err)
	}
	dish.ID = kitchen.DishID(id)

	for _, r := range reqs {
		_, err := sqlTx.ExecContext(ctx,
			"INSERT INTO dish_ingredients (dish_id, ingredient, quantity, unit) VALUES (?, ?, ?, ?)",
			id, r.Ingredient, r.PerServing.String(), r.Unit,
		)
		if err != nil {
			return dish, fmt.Errorf("failed to add ingredient %q: %w", r.Ingredient, err)
		}
	}

	return dish, sqlTx.Commit()
}

// ListBatches returns every batch ordered by name, then FIFO.
func (s *Store) ListBatches(ctx context.Context) ([]kitchen.IngredientBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryBatches(ctx, s.db, `
		SELECT id, name, quantity, delivered, unit, cost_per_unit, type, received_at
		FROM batches
		ORDER BY name ASC, received_at ASC, id ASC
	`)
}

// ListDishes returns every dish ordered by id.
func (s *Store) ListDishes(ctx context.Context) ([]kitchen.Dish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, type FROM dishes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query dishes: %w", err)
	}
	defer rows.Close()

	var dishes []kitchen.Dish
	for rows.Next() {
		var (
			d  kitchen.Dish
			id int64
		)
		if err := rows.Scan(&id, &d.Name, &d.Type); err != nil {
			return nil, fmt.Errorf("failed to scan dish: %w", err)
		}
		d.ID = kitchen.DishID(id)
		dishes = append(dishes, d)
	}
	return dishes, rows.Err()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Children first for the foreign keys.
	tables := []string{"consumption_log", "dish_ingredients", "dishes", "batches"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse decimal %q: %w", s, err)
	}
	return d, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
