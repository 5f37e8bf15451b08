package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pantry/kitchen"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func day(n int) time.Time {
	return time.Date(2025, time.March, n, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func addBatch(t *testing.T, s *Store, name, qty, unit, cost string, received time.Time) kitchen.IngredientBatch {
	t.Helper()
	b, err := s.AddBatch(context.Background(), kitchen.IngredientBatch{
		Name:        name,
		Quantity:    dec(qty),
		Unit:        unit,
		CostPerUnit: dec(cost),
		Type:        "produce",
		ReceivedAt:  received,
	})
	require.NoError(t, err)
	return b
}

func TestStore_BatchRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	added := addBatch(t, s, "Tomato", "1.25", "kg", "2.40", day(3).Add(90*time.Minute))
	require.NotZero(t, added.ID)

	got, err := s.GetBatch(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tomato", got.Name)
	assert.Equal(t, "kg", got.Unit)
	assert.Equal(t, "produce", got.Type)
	assert.True(t, dec("1.25").Equal(got.Quantity))
	assert.True(t, dec("1.25").Equal(got.Delivered), "delivered defaults to the received quantity")
	assert.True(t, dec("2.4").Equal(got.CostPerUnit))
	assert.True(t, day(3).Add(90*time.Minute).Equal(got.ReceivedAt))

	_, err = s.GetBatch(ctx, 404)
	assert.True(t, errors.Is(err, kitchen.ErrBatchNotFound))
	assert.ErrorIs(t, s.SaveBatch(ctx, kitchen.IngredientBatch{ID: 404}), kitchen.ErrBatchNotFound)
}

func TestStore_FindBatches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	addBatch(t, s, "Cherry Tomato", "1", "kg", "4", day(2))
	addBatch(t, s, "tomato", "0", "kg", "2", day(1))
	addBatch(t, s, "100% Cocoa", "1", "kg", "9", day(1))
	addBatch(t, s, "Basil", "1", "kg", "9", day(1))

	got, err := s.FindBatches(ctx, "TOMATO")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tomato", got[0].Name, "oldest first, empty batches included")
	assert.Equal(t, "Cherry Tomato", got[1].Name)

	// Wildcards in the search term are literal
	got, err = s.FindBatches(ctx, "100%")
	require.NoError(t, err)
	require.Len(t, got, 1)
	got, err = s.FindBatches(ctx, "%")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_ConsumptionLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := addBatch(t, s, "Rice", "8", "kg", "1", day(1))
	clog := kitchen.NewConsumptionLog(s)

	_, err := clog.Record(ctx, b.ID, day(10), dec("5"))
	require.NoError(t, err)
	_, err = clog.Record(ctx, b.ID, day(15), dec("3"))
	require.NoError(t, err)
	inserted, err := clog.Record(ctx, b.ID, day(5), dec("6"))
	require.NoError(t, err)

	n, err := clog.Resync(ctx, b.ID, day(5), dec("6"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	history, err := clog.History(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, inserted.ID, history[0].ID)
	for _, e := range history {
		assert.True(t, dec("6").Equal(e.QuantityRemaining))
	}

	latest, err := clog.LatestOverall(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, day(15).Equal(latest.At))

	ids, err := s.LoggedBatchIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []kitchen.BatchID{b.ID}, ids)
}

func TestStore_Recipes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	dish, err := s.AddDish(ctx, kitchen.Dish{Name: "Tomato Soup", Type: "soup"}, []kitchen.RecipeRequirement{
		{Ingredient: "Tomato", PerServing: dec("200"), Unit: "g"},
		{Ingredient: "Cream", PerServing: dec("0.05"), Unit: "liter"},
	})
	require.NoError(t, err)

	found, err := s.FindDish(ctx, "tomato SOUP")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, dish.ID, found.ID)

	missing, err := s.FindDish(ctx, "Gazpacho")
	require.NoError(t, err)
	assert.Nil(t, missing)

	reqs, err := s.Ingredients(ctx, dish.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "Tomato", reqs[0].Ingredient)
	assert.True(t, dec("0.05").Equal(reqs[1].PerServing))

	dishes, err := s.ListDishes(ctx)
	require.NoError(t, err)
	assert.Len(t, dishes, 1)
}

func TestStore_EnginePreparation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	old := addBatch(t, s, "Tomato", "1", "kg", "2", day(1))
	fresh := addBatch(t, s, "Tomato", "500", "g", "0.004", day(2))
	_, err := s.AddDish(ctx, kitchen.Dish{Name: "Tomato Soup"}, []kitchen.RecipeRequirement{
		{Ingredient: "Tomato", PerServing: dec("200"), Unit: "g"},
	})
	require.NoError(t, err)

	engine := kitchen.NewEngine(s, s)

	// WHEN: 6 servings, then 2 more than what is left
	result, err := engine.Prepare(ctx, kitchen.PrepareRequest{DishName: "Tomato Soup", Servings: dec("6"), Date: "2025-03-10"})
	require.NoError(t, err)
	require.Len(t, result.Usage, 2)

	_, err = engine.Prepare(ctx, kitchen.PrepareRequest{DishName: "Tomato Soup", Servings: dec("2")})
	require.ErrorIs(t, err, kitchen.ErrInsufficientStock)

	// THEN: only the first preparation is persisted
	got, err := s.GetBatch(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, got.Quantity.IsZero())
	got, err = s.GetBatch(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, dec("300").Equal(got.Quantity))
	assert.True(t, dec("500").Equal(got.Delivered))
	assert.True(t, dec("2").Equal(got.DeliveredCost()))

	entries, err := s.LogEntries(ctx, fresh.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, day(10).Equal(entries[0].At))
}

func TestStore_WithTxRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := addBatch(t, s, "Rice", "5", "kg", "1", day(1))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(inv kitchen.Inventory) error {
		b.Quantity = dec("1")
		if err := inv.SaveBatch(ctx, b); err != nil {
			return err
		}
		if _, err := inv.AppendLog(ctx, kitchen.ConsumptionLogEntry{ID: "e1", BatchID: b.ID, At: day(2), QuantityRemaining: b.Quantity}); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes
		got, err := inv.GetBatch(ctx, b.ID)
		if err != nil {
			return err
		}
		if !got.Quantity.Equal(dec("1")) {
			return errors.New("write not visible inside transaction")
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, dec("5").Equal(got.Quantity))

	entries, err := s.LogEntries(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := addBatch(t, s, "Rice", "5", "kg", "1", day(1))
	_, err := s.AppendLog(ctx, kitchen.ConsumptionLogEntry{ID: "e1", BatchID: b.ID, At: day(2), QuantityRemaining: dec("4")})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	batches, err := s.ListBatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, batches)
}
