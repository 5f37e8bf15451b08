/*
Package postgres provides a PostgreSQL implementation of the kitchen ports
on top of gorm.

PURPOSE:
  Same contract as store/sqlite, for deployments where several server
  processes share one database. The in-process locks of the engine only
  serialize preparations inside one process; across processes the
  transaction takes row locks instead:

    FindBatches inside WithTx  ->  SELECT ... ORDER BY id FOR UPDATE

  A second preparation touching the same batches blocks on those rows
  until the first one commits or rolls back, then reads fresh quantities.
  Locked rows are taken in id order and sorted FIFO afterwards; together
  with the engine reading ingredients in name order this keeps the lock
  sequence the same across processes.

SCHEMA:
  Managed by gorm AutoMigrate on Open. Quantities and prices are numeric
  columns scanned straight into decimal.Decimal.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/warp/pantry/kitchen"
)

// =============================================================================
// MODELS
// =============================================================================

type batchRow struct {
	ID          uint            `gorm:"primaryKey"`
	Name        string          `gorm:"size:255;index;not null"`
	Quantity    decimal.Decimal `gorm:"type:numeric;not null"`
	Delivered   decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	Unit        string          `gorm:"size:32;not null"`
	CostPerUnit decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	Type        string          `gorm:"size:64"`
	ReceivedAt  time.Time       `gorm:"index;not null"`
}

func (batchRow) TableName() string { return "batches" }

type logRow struct {
	Seq          uint            `gorm:"primaryKey;autoIncrement"`
	EntryID      string          `gorm:"column:entry_id;size:36;uniqueIndex;not null"`
	BatchID      uint            `gorm:"index:idx_log_batch_time;not null"`
	LoggedAt     time.Time       `gorm:"index:idx_log_batch_time;not null"`
	QuantityLeft decimal.Decimal `gorm:"type:numeric;not null"`
}

func (logRow) TableName() string { return "consumption_log" }

type dishRow struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:255;index;not null"`
	Type string `gorm:"size:64"`
}

func (dishRow) TableName() string { return "dishes" }

type ingredientRow struct {
	ID         uint            `gorm:"primaryKey"`
	DishID     uint            `gorm:"index;not null"`
	Ingredient string          `gorm:"size:255;not null"`
	Quantity   decimal.Decimal `gorm:"type:numeric;not null"`
	Unit       string          `gorm:"size:32;not null"`
}

func (ingredientRow) TableName() string { return "dish_ingredients" }

func toBatch(r batchRow) kitchen.IngredientBatch {
	return kitchen.IngredientBatch{
		ID:          kitchen.BatchID(r.ID),
		Name:        r.Name,
		Quantity:    r.Quantity,
		Delivered:   r.Delivered,
		Unit:        r.Unit,
		CostPerUnit: r.CostPerUnit,
		Type:        r.Type,
		ReceivedAt:  r.ReceivedAt.UTC(),
	}
}

func fromBatch(b kitchen.IngredientBatch) batchRow {
	return batchRow{
		ID:          uint(b.ID),
		Name:        b.Name,
		Quantity:    b.Quantity,
		Delivered:   b.Delivered,
		Unit:        b.Unit,
		CostPerUnit: b.CostPerUnit,
		Type:        b.Type,
		ReceivedAt:  b.ReceivedAt.UTC(),
	}
}

func toEntry(r logRow) kitchen.ConsumptionLogEntry {
	return kitchen.ConsumptionLogEntry{
		ID:                r.EntryID,
		BatchID:           kitchen.BatchID(r.BatchID),
		At:                r.LoggedAt.UTC(),
		QuantityRemaining: r.QuantityLeft,
		Seq:               int64(r.Seq),
	}
}

// =============================================================================
// STORE
// =============================================================================

// Store implements the kitchen ports on a gorm connection.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&batchRow{}, &logRow{}, &dishRow{}, &ingredientRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Printf("[Store] postgres schema ready (%s)", db.Name())
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) FindBatches(ctx context.Context, name string) ([]kitchen.IngredientBatch, error) {
	return findBatches(s.db.WithContext(ctx), name, false)
}

func (s *Store) GetBatch(ctx context.Context, id kitchen.BatchID) (*kitchen.IngredientBatch, error) {
	return getBatch(s.db.WithContext(ctx), id)
}

func (s *Store) SaveBatch(ctx context.Context, batch kitchen.IngredientBatch) error {
	return saveBatch(s.db.WithContext(ctx), batch)
}

func (s *Store) AppendLog(ctx context.Context, entry kitchen.ConsumptionLogEntry) (kitchen.ConsumptionLogEntry, error) {
	return appendLog(s.db.WithContext(ctx), entry)
}

func (s *Store) LogEntries(ctx context.Context, batchID kitchen.BatchID) ([]kitchen.ConsumptionLogEntry, error) {
	return logEntries(s.db.WithContext(ctx), batchID)
}

func (s *Store) OverwriteLogsAfter(ctx context.Context, batchID kitchen.BatchID, after time.Time, qty decimal.Decimal) (int, error) {
	return overwriteLogsAfter(s.db.WithContext(ctx), batchID, after, qty)
}

func (s *Store) LoggedBatchIDs(ctx context.Context) ([]kitchen.BatchID, error) {
	return loggedBatchIDs(s.db.WithContext(ctx))
}

// WithTx runs fn in a database transaction. Batches read through the
// transaction are locked until it ends.
func (s *Store) WithTx(ctx context.Context, fn func(kitchen.Inventory) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txStore{db: tx})
	})
}

type txStore struct {
	db *gorm.DB
}

func (ts *txStore) FindBatches(ctx context.Context, name string) ([]kitchen.IngredientBatch, error) {
	return findBatches(ts.db.WithContext(ctx), name, true)
}

func (ts *txStore) GetBatch(ctx context.Context, id kitchen.BatchID) (*kitchen.IngredientBatch, error) {
	return getBatch(ts.db.WithContext(ctx), id)
}

func (ts *txStore) SaveBatch(ctx context.Context, batch kitchen.IngredientBatch) error {
	return saveBatch(ts.db.WithContext(ctx), batch)
}

func (ts *txStore) AppendLog(ctx context.Context, entry kitchen.ConsumptionLogEntry) (kitchen.ConsumptionLogEntry, error) {
	return appendLog(ts.db.WithContext(ctx), entry)
}

func (ts *txStore) LogEntries(ctx context.Context, batchID kitchen.BatchID) ([]kitchen.ConsumptionLogEntry, error) {
	return logEntries(ts.db.WithContext(ctx), batchID)
}

func (ts *txStore) OverwriteLogsAfter(ctx context.Context, batchID kitchen.BatchID, after time.Time, qty decimal.Decimal) (int, error) {
	return overwriteLogsAfter(ts.db.WithContext(ctx), batchID, after, qty)
}

func (ts *txStore) LoggedBatchIDs(ctx context.Context) ([]kitchen.BatchID, error) {
	return loggedBatchIDs(ts.db.WithContext(ctx))
}

// =============================================================================
// QUERIES
// =============================================================================

// batchQuery selects batches by name substring in FIFO order, optionally
// taking row locks.
func batchQuery(db *gorm.DB, name string, lock bool) *gorm.DB {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(name))) + "%"
	q := db.Model(&batchRow{}).
		Where(`LOWER(name) LIKE ? ESCAPE '\'`, pattern)
	if lock {
		return q.Order("id ASC").Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q.Order("received_at ASC, id ASC")
}

func findBatches(db *gorm.DB, name string, lock bool) ([]kitchen.IngredientBatch, error) {
	var rows []batchRow
	if err := batchQuery(db, name, lock).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	batches := make([]kitchen.IngredientBatch, len(rows))
	for i, r := range rows {
		batches[i] = toBatch(r)
	}
	if lock {
		sort.SliceStable(batches, func(i, j int) bool {
			if !batches[i].ReceivedAt.Equal(batches[j].ReceivedAt) {
				return batches[i].ReceivedAt.Before(batches[j].ReceivedAt)
			}
			return batches[i].ID < batches[j].ID
		})
	}
	return batches, nil
}

func getBatch(db *gorm.DB, id kitchen.BatchID) (*kitchen.IngredientBatch, error) {
	var row batchRow
	err := db.First(&row, uint(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", kitchen.ErrBatchNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %d: %w", id, err)
	}
	b := toBatch(row)
	return &b, nil
}

func saveBatch(db *gorm.DB, batch kitchen.IngredientBatch) error {
	res := db.Model(&batchRow{}).Where("id = ?", uint(batch.ID)).Update("quantity", batch.Quantity)
	if res.Error != nil {
		return fmt.Errorf("failed to save batch %d: %w", batch.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", kitchen.ErrBatchNotFound, batch.ID)
	}
	return nil
}

func appendLog(db *gorm.DB, entry kitchen.ConsumptionLogEntry) (kitchen.ConsumptionLogEntry, error) {
	row := logRow{
		EntryID:      entry.ID,
		BatchID:      uint(entry.BatchID),
		LoggedAt:     entry.At.UTC(),
		QuantityLeft: entry.QuantityRemaining,
	}
	if err := db.Create(&row).Error; err != nil {
		return entry, fmt.Errorf("failed to append log entry: %w", err)
	}
	return toEntry(row), nil
}

func logEntries(db *gorm.DB, batchID kitchen.BatchID) ([]kitchen.ConsumptionLogEntry, error) {
	var rows []logRow
	err := db.Where("batch_id = ?", uint(batchID)).
		Order("logged_at ASC, seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query consumption log: %w", err)
	}
	entries := make([]kitchen.ConsumptionLogEntry, len(rows))
	for i, r := range rows {
		entries[i] = toEntry(r)
	}
	return entries, nil
}

func overwriteLogsAfter(db *gorm.DB, batchID kitchen.BatchID, after time.Time, qty decimal.Decimal) (int, error) {
	res := db.Model(&logRow{}).
		Where("batch_id = ? AND logged_at > ?", uint(batchID), after.UTC()).
		Update("quantity_left", qty)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to resync consumption log: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func loggedBatchIDs(db *gorm.DB) ([]kitchen.BatchID, error) {
	var raw []uint
	err := db.Model(&logRow{}).Distinct("batch_id").Order("batch_id").Pluck("batch_id", &raw).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query logged batches: %w", err)
	}
	ids := make([]kitchen.BatchID, len(raw))
	for i, id := range raw {
		ids[i] = kitchen.BatchID(id)
	}
	return ids, nil
}

// =============================================================================
// RECIPE BOOK
// =============================================================================

func (s *Store) FindDish(ctx context.Context, name string) (*kitchen.Dish, error) {
	var rows []dishRow
	err := s.db.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		Order("id").Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find dish: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &kitchen.Dish{ID: kitchen.DishID(rows[0].ID), Name: rows[0].Name, Type: rows[0].Type}, nil
}

func (s *Store) Ingredients(ctx context.Context, dishID kitchen.DishID) ([]kitchen.RecipeRequirement, error) {
	var rows []ingredientRow
	err := s.db.WithContext(ctx).Where("dish_id = ?", uint(dishID)).Order("id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query ingredients: %w", err)
	}
	reqs := make([]kitchen.RecipeRequirement, len(rows))
	for i, r := range rows {
		reqs[i] = kitchen.RecipeRequirement{
			DishID:     dishID,
			Ingredient: r.Ingredient,
			PerServing: r.Quantity,
			Unit:       r.Unit,
		}
	}
	return reqs, nil
}

// =============================================================================
// ADMINISTRATION
// =============================================================================

func (s *Store) AddBatch(ctx context.Context, batch kitchen.IngredientBatch) (kitchen.IngredientBatch, error) {
	row := fromBatch(batch.AsDelivered())
	row.ID = 0
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return batch, fmt.Errorf("failed to add batch: %w", err)
	}
	return toBatch(row), nil
}

func (s *Store) AddDish(ctx context.Context, dish kitchen.Dish, reqs []kitchen.RecipeRequirement) (kitchen.Dish, error) {
	row := dishRow{Name: dish.Name, Type: dish.Type}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(reqs) == 0 {
			return nil
		}
		lines := make([]ingredientRow, len(reqs))
		for i, r := range reqs {
			lines[i] = ingredientRow{DishID: row.ID, Ingredient: r.Ingredient, Quantity: r.PerServing, Unit: r.Unit}
		}
		return tx.Create(&lines).Error
	})
	if err != nil {
		return dish, fmt.Errorf("failed to add dish: %w", err)
	}
	dish.ID = kitchen.DishID(row.ID)
	return dish, nil
}

func (s *Store) ListBatches(ctx context.Context) ([]kitchen.IngredientBatch, error) {
	var rows []batchRow
	if err := s.db.WithContext(ctx).Order("name ASC, received_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	batches := make([]kitchen.IngredientBatch, len(rows))
	for i, r := range rows {
		batches[i] = toBatch(r)
	}
	return batches, nil
}

func (s *Store) ListDishes(ctx context.Context) ([]kitchen.Dish, error) {
	var rows []dishRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list dishes: %w", err)
	}
	dishes := make([]kitchen.Dish, len(rows))
	for i, r := range rows {
		dishes[i] = kitchen.Dish{ID: kitchen.DishID(r.ID), Name: r.Name, Type: r.Type}
	}
	return dishes, nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Exec("TRUNCATE consumption_log, dish_ingredients, dishes, batches RESTART IDENTITY").Error
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
