/*
ledger.go - FIFO allocation over the batches of one ingredient

PURPOSE:
  Given an ingredient name and a required quantity, choose which batches to
  deduct from and how much. Perishables are consumed oldest first.

ALGORITHM:
  1. Load batches whose name contains the ingredient name (case-insensitive)
  2. Resolve the name (see below)
  3. Keep batches with quantity > 0, oldest ReceivedAt first, then lowest ID
  4. For each batch: convert to base units, deduct min(batch, remaining),
     convert back, stop when the requirement is covered
  5. Batches exhausted with something still required: InsufficientStockError,
     shortfall expressed in the requirement's unit

NAME RESOLUTION:
  Recipes and inventory are named independently, so a substring search can
  hit several inventory names ("oil" -> "olive oil", "sesame oil").
    - Exact case-insensitive match present: only exact matches are used.
    - Otherwise: the name owning the most recently received batch wins;
      equal recency falls back to the lexicographically smallest name.

SNAPSHOT:
  The ledger never writes. Deductions land in a working snapshot owned by
  the ledger instance, so a second requirement hitting the same batch in the
  same preparation sees the first deduction. Create one ledger per
  preparation and hand its allocations to the commit step.
*/
package kitchen

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Allocation is one staged deduction. Deducted and Remaining are in the
// batch's unit.
type Allocation struct {
	Ingredient string
	Batch      IngredientBatch
	Deducted   decimal.Decimal
	Remaining  decimal.Decimal
}

// BatchLedger allocates requirements over batches against a working snapshot.
type BatchLedger struct {
	Store   Inventory
	working map[BatchID]decimal.Decimal
}

func NewBatchLedger(store Inventory) *BatchLedger {
	return &BatchLedger{
		Store:   store,
		working: make(map[BatchID]decimal.Decimal),
	}
}

// Allocate plans the deductions covering required. On error the working
// snapshot is left as it was before the call.
func (l *BatchLedger) Allocate(ctx context.Context, ingredient string, required Quantity) ([]Allocation, error) {
	requiredBase, requiredClass, err := ToBase(required.Value, required.Unit)
	if err != nil {
		return nil, withIngredient(err, ingredient)
	}

	candidates, err := l.Store.FindBatches(ctx, normalizeName(ingredient))
	if err != nil {
		return nil, err
	}
	batches := l.available(ResolveBatches(candidates, ingredient))

	remaining := requiredBase
	availableBase := decimal.Zero
	staged := make(map[BatchID]decimal.Decimal)
	var allocations []Allocation

	for _, batch := range batches {
		if !remaining.IsPositive() {
			break
		}

		batchBase, batchClass, err := ToBase(batch.Quantity, batch.Unit)
		if err != nil {
			return nil, withIngredient(err, batch.Name)
		}
		if batchClass != requiredClass {
			return nil, &UnitMismatchError{
				Ingredient: ingredient,
				From:       required.Unit,
				To:         batch.Unit,
				FromClass:  requiredClass,
				ToClass:    batchClass,
			}
		}
		availableBase = availableBase.Add(batchBase)

		deductBase := decimal.Min(batchBase, remaining)
		remaining = remaining.Sub(deductBase)

		left, err := FromBase(batchBase.Sub(deductBase), batch.Unit)
		if err != nil {
			return nil, withIngredient(err, batch.Name)
		}
		deducted, err := FromBase(deductBase, batch.Unit)
		if err != nil {
			return nil, withIngredient(err, batch.Name)
		}

		staged[batch.ID] = left
		allocations = append(allocations, Allocation{
			Ingredient: ingredient,
			Batch:      batch,
			Deducted:   deducted,
			Remaining:  left,
		})
	}

	if remaining.IsPositive() {
		return nil, shortfall(ingredient, required, requiredBase, availableBase)
	}

	for id, left := range staged {
		l.working[id] = left
	}
	return allocations, nil
}

// Remaining returns the working quantity of a batch, if the ledger touched it.
func (l *BatchLedger) Remaining(id BatchID) (decimal.Decimal, bool) {
	q, ok := l.working[id]
	return q, ok
}

// available applies the working snapshot and drops empty batches.
func (l *BatchLedger) available(batches []IngredientBatch) []IngredientBatch {
	var result []IngredientBatch
	for _, b := range batches {
		if q, ok := l.working[b.ID]; ok {
			b.Quantity = q
		}
		if b.Quantity.IsPositive() {
			result = append(result, b)
		}
	}
	sortFIFO(result)
	return result
}

// shortfall reports what every matching batch together could not cover.
func shortfall(ingredient string, required Quantity, requiredBase, availableBase decimal.Decimal) error {
	available, err := FromBase(availableBase, required.Unit)
	if err != nil {
		return withIngredient(err, ingredient)
	}
	short, err := FromBase(requiredBase.Sub(availableBase), required.Unit)
	if err != nil {
		return withIngredient(err, ingredient)
	}
	return &InsufficientStockError{
		Ingredient: ingredient,
		Required:   required.Value,
		Available:  available,
		Shortfall:  short,
		Unit:       required.Unit,
	}
}

// =============================================================================
// NAME RESOLUTION
// =============================================================================

// ResolveBatches narrows substring candidates to one inventory name.
func ResolveBatches(candidates []IngredientBatch, ingredient string) []IngredientBatch {
	want := normalizeName(ingredient)

	var exact []IngredientBatch
	for _, b := range candidates {
		if normalizeName(b.Name) == want {
			exact = append(exact, b)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	newest := make(map[string]time.Time)
	for _, b := range candidates {
		name := normalizeName(b.Name)
		if !strings.Contains(name, want) {
			continue
		}
		if t, ok := newest[name]; !ok || b.ReceivedAt.After(t) {
			newest[name] = b.ReceivedAt
		}
	}
	if len(newest) == 0 {
		return nil
	}

	var chosen string
	var chosenAt time.Time
	for name, at := range newest {
		switch {
		case chosen == "":
			chosen, chosenAt = name, at
		case at.After(chosenAt):
			chosen, chosenAt = name, at
		case at.Equal(chosenAt) && name < chosen:
			chosen = name
		}
	}

	var result []IngredientBatch
	for _, b := range candidates {
		if normalizeName(b.Name) == chosen {
			result = append(result, b)
		}
	}
	return result
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func sortFIFO(batches []IngredientBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		if !batches[i].ReceivedAt.Equal(batches[j].ReceivedAt) {
			return batches[i].ReceivedAt.Before(batches[j].ReceivedAt)
		}
		return batches[i].ID < batches[j].ID
	})
}
