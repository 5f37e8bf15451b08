// Package store provides in-process Inventory and RecipeBook implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pantry/kitchen"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	batches map[kitchen.BatchID]kitchen.IngredientBatch
	logs    map[kitchen.BatchID][]kitchen.ConsumptionLogEntry
	dishes  map[kitchen.DishID]kitchen.Dish
	recipes map[kitchen.DishID][]kitchen.RecipeRequirement

	nextBatch kitchen.BatchID
	nextDish  kitchen.DishID
	nextSeq   int64
}

func NewMemory() *Memory {
	m := &Memory{}
	m.resetLocked()
	return m
}

func (m *Memory) resetLocked() {
	m.batches = make(map[kitchen.BatchID]kitchen.IngredientBatch)
	m.logs = make(map[kitchen.BatchID][]kitchen.ConsumptionLogEntry)
	m.dishes = make(map[kitchen.DishID]kitchen.Dish)
	m.recipes = make(map[kitchen.DishID][]kitchen.RecipeRequirement)
	m.nextBatch, m.nextDish, m.nextSeq = 0, 0, 0
}

// ===== INVENTORY =====

func (m *Memory) FindBatches(_ context.Context, name string) ([]kitchen.IngredientBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findBatchesLocked(name), nil
}

func (m *Memory) findBatchesLocked(name string) []kitchen.IngredientBatch {
	needle := strings.ToLower(strings.TrimSpace(name))
	var result []kitchen.IngredientBatch
	for _, b := range m.batches {
		if strings.Contains(strings.ToLower(b.Name), needle) {
			result = append(result, b)
		}
	}
	sortBatches(result)
	return result
}

func (m *Memory) GetBatch(_ context.Context, id kitchen.BatchID) (*kitchen.IngredientBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBatchLocked(id)
}

func (m *Memory) getBatchLocked(id kitchen.BatchID) (*kitchen.IngredientBatch, error) {
	b, ok := m.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", kitchen.ErrBatchNotFound, id)
	}
	return &b, nil
}

func (m *Memory) SaveBatch(_ context.Context, batch kitchen.IngredientBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveBatchLocked(batch)
}

func (m *Memory) saveBatchLocked(batch kitchen.IngredientBatch) error {
	current, ok := m.batches[batch.ID]
	if !ok {
		return fmt.Errorf("%w: %d", kitchen.ErrBatchNotFound, batch.ID)
	}
	current.Quantity = batch.Quantity
	m.batches[batch.ID] = current
	return nil
}

func (m *Memory) AppendLog(_ context.Context, entry kitchen.ConsumptionLogEntry) (kitchen.ConsumptionLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLogLocked(entry), nil
}

func (m *Memory) appendLogLocked(entry kitchen.ConsumptionLogEntry) kitchen.ConsumptionLogEntry {
	m.nextSeq++
	entry.Seq = m.nextSeq
	entries := m.logs[entry.BatchID]

	// Insert after every entry with At <= entry.At; Seq keeps growing.
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].At.After(entry.At)
	})
	entries = append(entries, kitchen.ConsumptionLogEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = entry
	m.logs[entry.BatchID] = entries
	return entry
}

func (m *Memory) LogEntries(_ context.Context, batchID kitchen.BatchID) ([]kitchen.ConsumptionLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logEntriesLocked(batchID), nil
}

func (m *Memory) logEntriesLocked(batchID kitchen.BatchID) []kitchen.ConsumptionLogEntry {
	result := make([]kitchen.ConsumptionLogEntry, len(m.logs[batchID]))
	copy(result, m.logs[batchID])
	return result
}

func (m *Memory) OverwriteLogsAfter(_ context.Context, batchID kitchen.BatchID, after time.Time, qty decimal.Decimal) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overwriteLocked(batchID, after, qty), nil
}

func (m *Memory) overwriteLocked(batchID kitchen.BatchID, after time.Time, qty decimal.Decimal) int {
	n := 0
	entries := m.logs[batchID]
	for i := range entries {
		if entries[i].At.After(after) {
			entries[i].QuantityRemaining = qty
			n++
		}
	}
	return n
}

func (m *Memory) LoggedBatchIDs(_ context.Context) ([]kitchen.BatchID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loggedIDsLocked(), nil
}

func (m *Memory) loggedIDsLocked() []kitchen.BatchID {
	ids := make([]kitchen.BatchID, 0, len(m.logs))
	for id, entries := range m.logs {
		if len(entries) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ===== RECIPE BOOK =====

func (m *Memory) FindDish(_ context.Context, name string) (*kitchen.Dish, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := strings.TrimSpace(name)
	for _, d := range m.sortedDishesLocked() {
		if strings.EqualFold(d.Name, want) {
			return &d, nil
		}
	}
	return nil, nil
}

func (m *Memory) Ingredients(_ context.Context, dishID kitchen.DishID) ([]kitchen.RecipeRequirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]kitchen.RecipeRequirement(nil), m.recipes[dishID]...), nil
}

// ===== ADMINISTRATION =====

// AddBatch stores a new batch and assigns its id.
func (m *Memory) AddBatch(_ context.Context, batch kitchen.IngredientBatch) (kitchen.IngredientBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch = batch.AsDelivered()
	m.nextBatch++
	batch.ID = m.nextBatch
	batch.ReceivedAt = batch.ReceivedAt.UTC()
	m.batches[batch.ID] = batch
	return batch, nil
}

// AddDish stores a dish with its recipe and assigns its id.
func (m *Memory) AddDish(_ context.Context, dish kitchen.Dish, reqs []kitchen.RecipeRequirement) (kitchen.Dish, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextDish++
	dish.ID = m.nextDish
	m.dishes[dish.ID] = dish

	stored := make([]kitchen.RecipeRequirement, len(reqs))
	for i, r := range reqs {
		r.DishID = dish.ID
		stored[i] = r
	}
	m.recipes[dish.ID] = stored
	return dish, nil
}

// ListBatches returns every batch ordered by name, then FIFO.
func (m *Memory) ListBatches(_ context.Context) ([]kitchen.IngredientBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]kitchen.IngredientBatch, 0, len(m.batches))
	for _, b := range m.batches {
		result = append(result, b)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return batchLess(result[i], result[j])
	})
	return result, nil
}

func (m *Memory) ListDishes(_ context.Context) ([]kitchen.Dish, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedDishesLocked(), nil
}

func (m *Memory) sortedDishesLocked() []kitchen.Dish {
	result := make([]kitchen.Dish, 0, len(m.dishes))
	for _, d := range m.dishes {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

func sortBatches(batches []kitchen.IngredientBatch) {
	sort.SliceStable(batches, func(i, j int) bool { return batchLess(batches[i], batches[j]) })
}

func batchLess(a, b kitchen.IngredientBatch) bool {
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}
	return a.ID < b.ID
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx holds the write lock for the whole of fn. Writes go straight to
// the maps; an error restores the snapshot taken on entry.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(kitchen.Inventory) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	batches := make(map[kitchen.BatchID]kitchen.IngredientBatch, len(tm.batches))
	for k, v := range tm.batches {
		batches[k] = v
	}
	logs := make(map[kitchen.BatchID][]kitchen.ConsumptionLogEntry, len(tm.logs))
	for k, v := range tm.logs {
		logs[k] = append([]kitchen.ConsumptionLogEntry{}, v...)
	}
	return memorySnapshot{batches: batches, logs: logs, nextSeq: tm.nextSeq}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.batches = s.batches
	tm.logs = s.logs
	tm.nextSeq = s.nextSeq
}

// Recipes are not written inside transactions and are left out.
type memorySnapshot struct {
	batches map[kitchen.BatchID]kitchen.IngredientBatch
	logs    map[kitchen.BatchID][]kitchen.ConsumptionLogEntry
	nextSeq int64
}

// txMemoryView runs under the parent's write lock and must not lock again.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) FindBatches(_ context.Context, name string) ([]kitchen.IngredientBatch, error) {
	return tv.parent.findBatchesLocked(name), nil
}

func (tv *txMemoryView) GetBatch(_ context.Context, id kitchen.BatchID) (*kitchen.IngredientBatch, error) {
	return tv.parent.getBatchLocked(id)
}

func (tv *txMemoryView) SaveBatch(_ context.Context, batch kitchen.IngredientBatch) error {
	return tv.parent.saveBatchLocked(batch)
}

func (tv *txMemoryView) AppendLog(_ context.Context, entry kitchen.ConsumptionLogEntry) (kitchen.ConsumptionLogEntry, error) {
	return tv.parent.appendLogLocked(entry), nil
}

func (tv *txMemoryView) LogEntries(_ context.Context, batchID kitchen.BatchID) ([]kitchen.ConsumptionLogEntry, error) {
	return tv.parent.logEntriesLocked(batchID), nil
}

func (tv *txMemoryView) OverwriteLogsAfter(_ context.Context, batchID kitchen.BatchID, after time.Time, qty decimal.Decimal) (int, error) {
	return tv.parent.overwriteLocked(batchID, after, qty), nil
}

func (tv *txMemoryView) LoggedBatchIDs(_ context.Context) ([]kitchen.BatchID, error) {
	return tv.parent.loggedIDsLocked(), nil
}
