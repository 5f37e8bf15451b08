package factory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pantry/factory"
	"github.com/warp/pantry/kitchen"
	"github.com/warp/pantry/kitchen/store"
)

var base = time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC)

func newFactory() *factory.MenuFactory {
	f := factory.NewMenuFactory()
	f.Now = func() time.Time { return base }
	return f
}

func TestParseMenu(t *testing.T) {
	// GIVEN: A menu with mixed number and string quantities
	menu, err := newFactory().ParseMenu(`{
		"dishes": [{
			"name": " Tomato Soup ",
			"type": "soup",
			"ingredients": [
				{"name": "Tomato", "quantity": "200", "unit": "G"},
				{"name": "Cream", "quantity": 0.05, "unit": "Liter"}
			]
		}],
		"inventory": [
			{"name": "Tomato", "quantity": 5, "unit": "kg", "cost_per_unit": "2.40", "received_at": "2025-03-01"},
			{"name": "Cream", "quantity": "1", "unit": "l", "cost_per_unit": 4.8, "received_at": "2025-03-02T14:30:00+01:00"},
			{"name": "Basil", "quantity": 40, "unit": "pcs", "cost_per_unit": 0.1}
		]
	}`)

	// THEN: Names are trimmed, units normalized, dates in UTC
	require.NoError(t, err)
	require.Len(t, menu.Dishes, 1)
	soup := menu.Dishes[0]
	assert.Equal(t, "Tomato Soup", soup.Dish.Name)
	require.Len(t, soup.Requirements, 2)
	assert.Equal(t, "g", soup.Requirements[0].Unit)
	assert.Equal(t, "liter", soup.Requirements[1].Unit)
	assert.True(t, decimal.RequireFromString("0.05").Equal(soup.Requirements[1].PerServing))

	require.Len(t, menu.Batches, 3)
	assert.True(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC).Equal(menu.Batches[0].ReceivedAt))
	assert.True(t, time.Date(2025, time.March, 2, 13, 30, 0, 0, time.UTC).Equal(menu.Batches[1].ReceivedAt))
	assert.True(t, base.Equal(menu.Batches[2].ReceivedAt), "missing received_at defaults to now")
}

func TestParseMenu_Errors(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"malformed", `{"dishes": [`, "failed to parse menu JSON"},
		{"dish without name", `{"dishes": [{"name": " ", "ingredients": []}]}`, "dish name is required"},
		{"zero quantity", `{"dishes": [{"name": "Soup", "ingredients": [{"name": "Salt", "quantity": 0, "unit": "g"}]}]}`, "must be positive"},
		{"unknown unit", `{"dishes": [{"name": "Soup", "ingredients": [{"name": "Salt", "quantity": 1, "unit": "pinch"}]}]}`, "pinch"},
		{"negative stock", `{"inventory": [{"name": "Salt", "quantity": -1, "unit": "g", "cost_per_unit": 0}]}`, "must not be negative"},
		{"bad date", `{"inventory": [{"name": "Salt", "quantity": 1, "unit": "g", "cost_per_unit": 0, "received_at": "March 1"}]}`, "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newFactory().ParseMenu(tt.json)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseDish_UnsupportedUnitIsClientError(t *testing.T) {
	_, err := newFactory().ParseDish(factory.DishJSON{
		Name:        "Steak",
		Ingredients: []factory.IngredientJSON{{Name: "Beef", Quantity: decimal.NewFromInt(8), Unit: "oz"}},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, kitchen.ErrUnsupportedUnit)
	assert.True(t, kitchen.IsClientError(err))
}

func TestMenuLoad(t *testing.T) {
	// GIVEN: The demo kitchen preset
	menu, err := newFactory().ParseMenu(factory.DemoKitchenJSON(base))
	require.NoError(t, err)
	s := store.NewTxMemory()

	// WHEN: Loading it into a store
	require.NoError(t, menu.Load(context.Background(), s))

	// THEN: Every dish and batch is stored with recipes attached
	dishes, err := s.ListDishes(context.Background())
	require.NoError(t, err)
	require.Len(t, dishes, 3)

	pizza, err := s.FindDish(context.Background(), "margherita pizza")
	require.NoError(t, err)
	require.NotNil(t, pizza)
	reqs, err := s.Ingredients(context.Background(), pizza.ID)
	require.NoError(t, err)
	assert.Len(t, reqs, 4)

	batches, err := s.ListBatches(context.Background())
	require.NoError(t, err)
	assert.Len(t, batches, 7)
}

func TestPresets_ParseCleanly(t *testing.T) {
	presets := map[string]string{
		"demo":      factory.DemoKitchenJSON(base),
		"shortage":  factory.ShortageJSON(base),
		"backdated": factory.BackdatedJSON(base),
	}
	for name, js := range presets {
		t.Run(name, func(t *testing.T) {
			menu, err := newFactory().ParseMenu(js)
			require.NoError(t, err)
			assert.NotEmpty(t, menu.Dishes)
			for _, b := range menu.Batches {
				assert.True(t, b.ReceivedAt.Before(base), "%s delivered before %v", b.Name, base)
			}
		})
	}
}

func TestToJSON_RoundTripsRecipe(t *testing.T) {
	f := newFactory()
	def, err := f.ParseDish(factory.DishJSON{
		Name: "Salad",
		Ingredients: []factory.IngredientJSON{
			{Name: "Lettuce", Quantity: decimal.RequireFromString("0.1"), Unit: "kg"},
		},
	})
	require.NoError(t, err)

	dj := f.ToJSON(def.Dish, def.Requirements)

	assert.Equal(t, "Salad", dj.Name)
	require.Len(t, dj.Ingredients, 1)
	assert.Equal(t, "Lettuce", dj.Ingredients[0].Name)
	assert.Equal(t, "kg", dj.Ingredients[0].Unit)
}
