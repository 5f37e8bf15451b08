/*
Package kitchen provides the dish-preparation and inventory-consumption engine.

PURPOSE:
  Ingredients arrive in batches, get consumed oldest-first when dishes are
  prepared, and every deduction leaves a "quantity remaining as of" snapshot
  in the consumption log. This package holds the types and algorithms for
  that flow; persistence, recipes and HTTP are reached through ports.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: a decimal amount tagged with a unit symbol (5 kg, 250 g, 3 pcs)
  - IngredientBatch: one received lot of an ingredient
  - ConsumptionLogEntry: remaining quantity of a batch as of a timestamp
  - RecipeRequirement: per-serving ingredient need of a dish
  - PreparationResult: what one preparation consumed, batch by batch

DESIGN PRINCIPLES:
  1. Precision: quantities and costs use decimal.Decimal
  2. Log is truth: a batch's Quantity is a cached projection of its latest log entry
  3. All-or-nothing: a preparation either commits every deduction or none

USAGE:
  engine := kitchen.NewEngine(recipes, inventory)
  result, err := engine.Prepare(ctx, kitchen.PrepareRequest{
      DishName: "Tomato Soup",
      Servings: decimal.NewFromInt(4),
  })

SEE ALSO:
  - units.go: unit conversion table
  - ledger.go: FIFO batch allocation
  - consumption.go: consumption log with backdated resync
  - engine.go: preparation state machine
*/
package kitchen

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Decimal amount with a unit symbol
// =============================================================================

type Quantity struct {
	Value decimal.Decimal
	Unit  string
}

func NewQuantity(value float64, unit string) Quantity {
	return Quantity{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewQuantityFromInt(value int64, unit string) Quantity {
	return Quantity{Value: decimal.NewFromInt(value), Unit: unit}
}

func (q Quantity) Zero() Quantity                 { return Quantity{Value: decimal.Zero, Unit: q.Unit} }
func (q Quantity) Mul(s decimal.Decimal) Quantity { return Quantity{Value: q.Value.Mul(s), Unit: q.Unit} }
func (q Quantity) IsPositive() bool               { return q.Value.IsPositive() }
func (q Quantity) IsZero() bool                   { return q.Value.IsZero() }
func (q Quantity) String() string                 { return q.Value.String() + " " + q.Unit }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BatchID int64
type DishID int64

// =============================================================================
// INGREDIENT BATCH - One received lot, depleted over its lifetime
// =============================================================================

type IngredientBatch struct {
	ID          BatchID
	Name        string
	Quantity    decimal.Decimal // in Unit
	Delivered   decimal.Decimal // as received, never changed by preparations
	Unit        string
	CostPerUnit decimal.Decimal // per one Unit
	Type        string          // free-form category (vegetable, dairy, ...)
	ReceivedAt  time.Time
}

// Amount returns the batch quantity tagged with its unit.
func (b IngredientBatch) Amount() Quantity {
	return Quantity{Value: b.Quantity, Unit: b.Unit}
}

// TotalCost is the value of what remains in the batch.
func (b IngredientBatch) TotalCost() decimal.Decimal {
	return b.Quantity.Mul(b.CostPerUnit)
}

// DeliveredCost is what the delivery cost when it was received.
func (b IngredientBatch) DeliveredCost() decimal.Decimal {
	return b.Delivered.Mul(b.CostPerUnit)
}

// AsDelivered fills Delivered from Quantity for a batch that is being
// received. Stores call it on insert.
func (b IngredientBatch) AsDelivered() IngredientBatch {
	if b.Delivered.IsZero() {
		b.Delivered = b.Quantity
	}
	return b
}

// =============================================================================
// CONSUMPTION LOG ENTRY - "quantity remaining as of At"
// =============================================================================

type ConsumptionLogEntry struct {
	ID                string
	BatchID           BatchID
	At                time.Time
	QuantityRemaining decimal.Decimal

	// Seq is the insertion order. It orders entries sharing the same At.
	Seq int64
}

// =============================================================================
// DISHES AND RECIPES
// =============================================================================

type Dish struct {
	ID   DishID
	Name string
	Type string
}

type RecipeRequirement struct {
	DishID     DishID
	Ingredient string
	PerServing decimal.Decimal
	Unit       string
}

// Required scales the per-serving amount by the number of servings.
func (r RecipeRequirement) Required(servings decimal.Decimal) Quantity {
	return Quantity{Value: r.PerServing.Mul(servings), Unit: r.Unit}
}

// =============================================================================
// PREPARATION RESULT - Returned to the caller, never persisted as such
// =============================================================================

type PreparationResult struct {
	ID         string
	DishID     DishID
	DishName   string
	Servings   decimal.Decimal
	PreparedAt time.Time
	State      PreparationState
	Usage      []BatchUsage
	TotalCost  decimal.Decimal
}

// BatchUsage records one deduction. Used and Remaining are in Unit, the
// batch's own unit.
type BatchUsage struct {
	Ingredient string
	BatchID    BatchID
	BatchName  string
	Used       decimal.Decimal
	Remaining  decimal.Decimal
	Unit       string
	Cost       decimal.Decimal
	LoggedAt   time.Time
}
