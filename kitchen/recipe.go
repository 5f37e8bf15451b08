package kitchen

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECIPE RESOLVER - Dish name to scaled requirements
// =============================================================================

// ScaledRequirement is a recipe line multiplied by the number of servings.
type ScaledRequirement struct {
	RecipeRequirement
	Required Quantity
}

// Recipe is a resolved dish with its requirements.
type Recipe struct {
	Dish         Dish
	Requirements []ScaledRequirement
}

// RecipeResolver wraps a RecipeBook with the not-found and empty-recipe rules.
type RecipeResolver struct {
	Book RecipeBook
}

// Resolve looks the dish up and scales every requirement by servings.
func (r *RecipeResolver) Resolve(ctx context.Context, dishName string, servings decimal.Decimal) (*Recipe, error) {
	name := strings.TrimSpace(dishName)
	dish, err := r.Book.FindDish(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find dish %q: %w", name, err)
	}
	if dish == nil {
		return nil, fmt.Errorf("%w: %q", ErrDishNotFound, name)
	}

	reqs, err := r.Book.Ingredients(ctx, dish.ID)
	if err != nil {
		return nil, fmt.Errorf("load ingredients of %q: %w", dish.Name, err)
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoIngredients, dish.Name)
	}

	recipe := &Recipe{Dish: *dish, Requirements: make([]ScaledRequirement, len(reqs))}
	for i, req := range reqs {
		recipe.Requirements[i] = ScaledRequirement{
			RecipeRequirement: req,
			Required:          req.Required(servings),
		}
	}
	return recipe, nil
}

// IngredientNames returns the normalized, de-duplicated ingredient names.
func (r *Recipe) IngredientNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, req := range r.Requirements {
		n := normalizeName(req.Ingredient)
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}
