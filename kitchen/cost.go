package kitchen

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// DishCost is the per-serving cost of a dish at current prices.
type DishCost struct {
	Dish        Dish
	Ingredients []IngredientCost
	Total       decimal.Decimal
}

// IngredientCost prices one recipe line with the newest batch's price.
type IngredientCost struct {
	Ingredient string
	PerServing decimal.Decimal
	Unit       string
	PriceBatch BatchID
	UnitPrice  decimal.Decimal // per one unit of the priced batch
	BatchUnit  string
	Cost       decimal.Decimal
}

// CostDish prices one serving of a dish. Each ingredient is priced from its
// most recently received batch, empty or not; a missing ingredient fails
// the whole calculation.
func CostDish(ctx context.Context, recipes RecipeBook, inv Inventory, dishName string) (*DishCost, error) {
	resolver := RecipeResolver{Book: recipes}
	recipe, err := resolver.Resolve(ctx, dishName, decimal.NewFromInt(1))
	if err != nil {
		return nil, err
	}

	cost := &DishCost{Dish: recipe.Dish, Total: decimal.Zero}
	for _, req := range recipe.Requirements {
		candidates, err := inv.FindBatches(ctx, normalizeName(req.Ingredient))
		if err != nil {
			return nil, err
		}
		batches := ResolveBatches(candidates, req.Ingredient)
		if len(batches) == 0 {
			return nil, fmt.Errorf("%w: ingredient %q not in inventory", ErrInsufficientStock, req.Ingredient)
		}
		sortFIFO(batches)
		newest := batches[len(batches)-1]

		inBatchUnit, err := Convert(req.Required, newest.Unit)
		if err != nil {
			return nil, withIngredient(err, req.Ingredient)
		}

		line := IngredientCost{
			Ingredient: req.Ingredient,
			PerServing: req.PerServing,
			Unit:       req.Unit,
			PriceBatch: newest.ID,
			UnitPrice:  newest.CostPerUnit,
			BatchUnit:  newest.Unit,
			Cost:       inBatchUnit.Value.Mul(newest.CostPerUnit),
		}
		cost.Ingredients = append(cost.Ingredients, line)
		cost.Total = cost.Total.Add(line.Cost)
	}
	return cost, nil
}
