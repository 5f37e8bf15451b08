/*
Package factory provides JSON to Go menu and inventory conversion.

PURPOSE:
  Converts JSON menu definitions (dishes with per-serving recipes) and
  inventory deliveries into kitchen types, and loads them into a store.
  Kitchens can be set up without code changes: the demo scenarios, the
  -seed flag of the server and the admin endpoints all go through here.

JSON SCHEMA:
  {
    "dishes": [
      {
        "name": "Tomato Soup",
        "type": "soup",
        "ingredients": [
          {"name": "Tomato", "quantity": "200", "unit": "g"},
          {"name": "Cream", "quantity": 0.05, "unit": "liter"}
        ]
      }
    ],
    "inventory": [
      {
        "name": "Tomato",
        "quantity": "5",
        "unit": "kg",
        "cost_per_unit": "2.40",
        "type": "vegetable",
        "received_at": "2025-03-01"
      }
    ]
  }

  Quantities and prices accept JSON numbers or decimal strings.
  received_at accepts YYYY-MM-DD or RFC3339.

KEY FEATURES:
  - Validates names, positive per-serving amounts and unit symbols
  - Rejects units outside the conversion table up front
  - Loads dishes and batches into any store with AddDish / AddBatch

USAGE:
  f := factory.NewMenuFactory()
  menu, err := f.ParseMenu(jsonString)
  if err != nil {
      return err
  }
  err = menu.Load(ctx, store)
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pantry/kitchen"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// MenuJSON is the JSON representation of a kitchen setup.
type MenuJSON struct {
	Dishes    []DishJSON  `json:"dishes,omitempty"`
	Inventory []BatchJSON `json:"inventory,omitempty"`
}

// DishJSON is one dish and its recipe.
type DishJSON struct {
	Name        string           `json:"name"`
	Type        string           `json:"type,omitempty"`
	Ingredients []IngredientJSON `json:"ingredients"`
}

// IngredientJSON is a per-serving recipe line.
type IngredientJSON struct {
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
}

// BatchJSON is one delivery into inventory.
type BatchJSON struct {
	Name        string          `json:"name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	Type        string          `json:"type,omitempty"`
	ReceivedAt  string          `json:"received_at"`
}

// =============================================================================
// MENU
// =============================================================================

// DishDefinition is a dish with the recipe to store alongside it.
type DishDefinition struct {
	Dish         kitchen.Dish
	Requirements []kitchen.RecipeRequirement
}

// Menu is a validated kitchen setup.
type Menu struct {
	Dishes  []DishDefinition
	Batches []kitchen.IngredientBatch
}

// Seeder is what Load writes into. Both stores implement it.
type Seeder interface {
	AddDish(ctx context.Context, dish kitchen.Dish, reqs []kitchen.RecipeRequirement) (kitchen.Dish, error)
	AddBatch(ctx context.Context, batch kitchen.IngredientBatch) (kitchen.IngredientBatch, error)
}

// Load writes every dish, then every batch.
func (m *Menu) Load(ctx context.Context, s Seeder) error {
	for _, d := range m.Dishes {
		if _, err := s.AddDish(ctx, d.Dish, d.Requirements); err != nil {
			return fmt.Errorf("failed to add dish %q: %w", d.Dish.Name, err)
		}
	}
	for _, b := range m.Batches {
		if _, err := s.AddBatch(ctx, b); err != nil {
			return fmt.Errorf("failed to add batch %q: %w", b.Name, err)
		}
	}
	return nil
}

// =============================================================================
// MENU FACTORY
// =============================================================================

// MenuFactory converts JSON menus to kitchen types.
type MenuFactory struct {
	// Now stamps deliveries that have no received_at.
	Now func() time.Time
}

// NewMenuFactory creates a new menu factory.
func NewMenuFactory() *MenuFactory {
	return &MenuFactory{Now: time.Now}
}

// ParseMenu parses a JSON string into a Menu.
func (f *MenuFactory) ParseMenu(jsonStr string) (*Menu, error) {
	var mj MenuJSON
	if err := json.Unmarshal([]byte(jsonStr), &mj); err != nil {
		return nil, fmt.Errorf("failed to parse menu JSON: %w", err)
	}
	return f.FromJSON(mj)
}

// FromJSON validates MenuJSON and converts it.
func (f *MenuFactory) FromJSON(mj MenuJSON) (*Menu, error) {
	menu := &Menu{}

	for i, dj := range mj.Dishes {
		d, err := f.ParseDish(dj)
		if err != nil {
			return nil, fmt.Errorf("dish %d: %w", i, err)
		}
		menu.Dishes = append(menu.Dishes, d)
	}

	for i, bj := range mj.Inventory {
		b, err := f.ParseBatch(bj)
		if err != nil {
			return nil, fmt.Errorf("inventory %d: %w", i, err)
		}
		menu.Batches = append(menu.Batches, b)
	}

	return menu, nil
}

// ParseDish validates one dish definition.
func (f *MenuFactory) ParseDish(dj DishJSON) (DishDefinition, error) {
	name := strings.TrimSpace(dj.Name)
	if name == "" {
		return DishDefinition{}, fmt.Errorf("dish name is required")
	}

	def := DishDefinition{Dish: kitchen.Dish{Name: name, Type: strings.TrimSpace(dj.Type)}}
	for _, ij := range dj.Ingredients {
		ingredient := strings.TrimSpace(ij.Name)
		if ingredient == "" {
			return DishDefinition{}, fmt.Errorf("dish %q: ingredient name is required", name)
		}
		if !ij.Quantity.IsPositive() {
			return DishDefinition{}, fmt.Errorf("dish %q: quantity of %q must be positive", name, ingredient)
		}
		if !kitchen.IsSupportedUnit(ij.Unit) {
			return DishDefinition{}, &kitchen.UnsupportedUnitError{Unit: ij.Unit, Ingredient: ingredient}
		}
		def.Requirements = append(def.Requirements, kitchen.RecipeRequirement{
			Ingredient: ingredient,
			PerServing: ij.Quantity,
			Unit:       kitchen.NormalizeUnit(ij.Unit),
		})
	}
	return def, nil
}

// ParseBatch validates one delivery.
func (f *MenuFactory) ParseBatch(bj BatchJSON) (kitchen.IngredientBatch, error) {
	name := strings.TrimSpace(bj.Name)
	if name == "" {
		return kitchen.IngredientBatch{}, fmt.Errorf("batch name is required")
	}
	if bj.Quantity.IsNegative() {
		return kitchen.IngredientBatch{}, fmt.Errorf("batch %q: quantity must not be negative", name)
	}
	if bj.CostPerUnit.IsNegative() {
		return kitchen.IngredientBatch{}, fmt.Errorf("batch %q: cost_per_unit must not be negative", name)
	}
	if !kitchen.IsSupportedUnit(bj.Unit) {
		return kitchen.IngredientBatch{}, &kitchen.UnsupportedUnitError{Unit: bj.Unit, Ingredient: name}
	}

	received, err := f.parseReceivedAt(bj.ReceivedAt)
	if err != nil {
		return kitchen.IngredientBatch{}, fmt.Errorf("batch %q: %w", name, err)
	}

	return kitchen.IngredientBatch{
		Name:        name,
		Quantity:    bj.Quantity,
		Unit:        kitchen.NormalizeUnit(bj.Unit),
		CostPerUnit: bj.CostPerUnit,
		Type:        strings.TrimSpace(bj.Type),
		ReceivedAt:  received,
	}, nil
}

func (f *MenuFactory) parseReceivedAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		now := time.Now
		if f.Now != nil {
			now = f.Now
		}
		return now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return kitchen.ParseDate(s)
}

// ToJSON converts a dish and its recipe back to DishJSON.
func (f *MenuFactory) ToJSON(dish kitchen.Dish, reqs []kitchen.RecipeRequirement) DishJSON {
	dj := DishJSON{Name: dish.Name, Type: dish.Type}
	for _, r := range reqs {
		dj.Ingredients = append(dj.Ingredients, IngredientJSON{
			Name:     r.Ingredient,
			Quantity: r.PerServing,
			Unit:     r.Unit,
		})
	}
	return dj
}
