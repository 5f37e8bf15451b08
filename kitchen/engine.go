/*
engine.go - Preparation engine

PURPOSE:
  Executes one preparation: resolve the recipe, allocate every ingredient
  over its batches, then write the deductions and their log entries as a
  single transaction.

STATE MACHINE:
  Pending -> Allocating -> Committing -> Committed
  Pending -> Allocating -> Failed        (nothing persisted)

  Pending:     validate servings and date
  Allocating:  resolve the recipe, scale requirements, allocate each one
               against the ledger's in-memory snapshot
  Committing:  per staged batch: save quantity, record log entry, resync
               later entries, refresh quantity from the latest entry
  Committed:   return the usage breakdown

ATOMICITY:
  Allocation and commit both run inside Inventory.WithTx. Any error, from
  a short ingredient to a failed write, rolls the whole preparation back.

CONCURRENCY:
  Preparations sharing an ingredient are serialized by a per-ingredient
  lock held across read, allocate and write. Stores add their own
  transaction isolation on top (write mutex, or row locks on PostgreSQL).
  Ingredients are read in normalized-name order, so two preparations
  always take row locks in the same sequence whatever their recipe order.
  The usage breakdown is still reported in recipe order.

BACKDATED PREPARATIONS:
  Date set to a past day records the deductions as of that day. Later log
  entries of the touched batches are overwritten with the new balance, and
  the batch's quantity is refreshed from the latest entry.
*/
package kitchen

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PreparationState string

const (
	StatePending    PreparationState = "pending"
	StateAllocating PreparationState = "allocating"
	StateCommitting PreparationState = "committing"
	StateCommitted  PreparationState = "committed"
	StateFailed     PreparationState = "failed"
)

// PrepareRequest is one call to Prepare. Date is optional, YYYY-MM-DD.
type PrepareRequest struct {
	DishName string
	Servings decimal.Decimal
	Date     string
}

// PrepareOutcome is the per-row result of PrepareMany.
type PrepareOutcome struct {
	Index   int
	Request PrepareRequest
	Result  *PreparationResult
	Err     error
}

// Engine orchestrates recipe resolution, allocation and commit.
type Engine struct {
	Recipes   RecipeBook
	Inventory TxInventory

	// Now supplies the preparation time when no date is given.
	Now func() time.Time

	locks *keyedLocks
}

func NewEngine(recipes RecipeBook, inventory TxInventory) *Engine {
	return &Engine{
		Recipes:   recipes,
		Inventory: inventory,
		Now:       time.Now,
		locks:     newKeyedLocks(),
	}
}

// Prepare consumes inventory for servings of a dish.
func (e *Engine) Prepare(ctx context.Context, req PrepareRequest) (*PreparationResult, error) {
	result := &PreparationResult{
		ID:       uuid.NewString(),
		Servings: req.Servings,
		State:    StatePending,
	}

	if !req.Servings.IsPositive() {
		return nil, ErrInvalidServings
	}
	at, err := e.preparationTime(req.Date)
	if err != nil {
		return nil, err
	}
	result.PreparedAt = at

	result.State = StateAllocating
	resolver := RecipeResolver{Book: e.Recipes}
	recipe, err := resolver.Resolve(ctx, req.DishName, req.Servings)
	if err != nil {
		return nil, err
	}
	result.DishID = recipe.Dish.ID
	result.DishName = recipe.Dish.Name

	unlock := e.locks.Lock(recipe.IngredientNames())
	defer unlock()

	err = e.Inventory.WithTx(ctx, func(inv Inventory) error {
		staged, positions, err := e.allocate(ctx, inv, recipe)
		if err != nil {
			return err
		}

		result.State = StateCommitting
		usage, err := e.commit(ctx, inv, staged, at)
		if err != nil {
			return err
		}
		result.Usage = inRecipeOrder(usage, positions)
		return nil
	})
	if err != nil {
		log.Printf("[Engine] preparation of %q failed while %s: %v", result.DishName, result.State, err)
		result.State = StateFailed
		return nil, err
	}

	result.State = StateCommitted
	result.TotalCost = decimal.Zero
	for _, u := range result.Usage {
		result.TotalCost = result.TotalCost.Add(u.Cost)
	}
	log.Printf("[Engine] prepared %q x%s on %s: %d batch deductions",
		result.DishName, result.Servings, at.Format(DateLayout), len(result.Usage))
	return result, nil
}

// PrepareMany runs independent preparations in order. A failing row does
// not stop the rest; its error is reported in the outcome.
func (e *Engine) PrepareMany(ctx context.Context, reqs []PrepareRequest) []PrepareOutcome {
	outcomes := make([]PrepareOutcome, len(reqs))
	for i, req := range reqs {
		outcomes[i] = PrepareOutcome{Index: i, Request: req}
		if err := ctx.Err(); err != nil {
			outcomes[i].Err = err
			continue
		}
		outcomes[i].Result, outcomes[i].Err = e.Prepare(ctx, req)
	}
	return outcomes
}

func (e *Engine) preparationTime(date string) (time.Time, error) {
	if date == "" {
		now := time.Now
		if e.Now != nil {
			now = e.Now
		}
		return now().UTC(), nil
	}
	return ParseDate(date)
}

// allocate stages every requirement against one ledger snapshot, walking
// ingredients in normalized-name order. positions[i] is the recipe line
// that staged[i] came from.
func (e *Engine) allocate(ctx context.Context, inv Inventory, recipe *Recipe) (staged []Allocation, positions []int, err error) {
	order := make([]int, len(recipe.Requirements))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return normalizeName(recipe.Requirements[order[a]].Ingredient) <
			normalizeName(recipe.Requirements[order[b]].Ingredient)
	})

	ledger := NewBatchLedger(inv)
	for _, pos := range order {
		req := recipe.Requirements[pos]
		allocations, err := ledger.Allocate(ctx, req.Ingredient, req.Required)
		if err != nil {
			return nil, nil, err
		}
		for range allocations {
			positions = append(positions, pos)
		}
		staged = append(staged, allocations...)
	}
	return staged, positions, nil
}

// inRecipeOrder reorders usage, which follows allocation order, back to
// the order of the recipe lines. Deductions of one line keep FIFO order.
func inRecipeOrder(usage []BatchUsage, positions []int) []BatchUsage {
	idx := make([]int, len(usage))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return positions[idx[a]] < positions[idx[b]] })
	out := make([]BatchUsage, len(usage))
	for i, j := range idx {
		out[i] = usage[j]
	}
	return out
}

// commit writes staged allocations. Must run inside WithTx.
func (e *Engine) commit(ctx context.Context, inv Inventory, staged []Allocation, at time.Time) ([]BatchUsage, error) {
	consumption := NewConsumptionLog(inv)
	usage := make([]BatchUsage, 0, len(staged))

	for _, a := range staged {
		batch := a.Batch
		batch.Quantity = a.Remaining
		if err := inv.SaveBatch(ctx, batch); err != nil {
			return nil, err
		}

		entry, err := consumption.Record(ctx, batch.ID, at, a.Remaining)
		if err != nil {
			return nil, err
		}
		if _, err := consumption.Resync(ctx, batch.ID, at, a.Remaining); err != nil {
			return nil, err
		}

		latest, err := consumption.LatestOverall(ctx, batch.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil && !latest.QuantityRemaining.Equal(batch.Quantity) {
			batch.Quantity = latest.QuantityRemaining
			if err := inv.SaveBatch(ctx, batch); err != nil {
				return nil, err
			}
		}

		usage = append(usage, BatchUsage{
			Ingredient: a.Ingredient,
			BatchID:    batch.ID,
			BatchName:  batch.Name,
			Used:       a.Deducted,
			Remaining:  batch.Quantity,
			Unit:       batch.Unit,
			Cost:       a.Deducted.Mul(batch.CostPerUnit),
			LoggedAt:   entry.At,
		})
	}
	return usage, nil
}
