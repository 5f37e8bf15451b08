package kitchen_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pantry/kitchen"
	"github.com/warp/pantry/kitchen/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore() *store.TxMemory {
	return store.NewTxMemory()
}

func newTestEngine(s *store.TxMemory) *kitchen.Engine {
	e := kitchen.NewEngine(s, s)
	e.Now = func() time.Time { return day(20).Add(9 * time.Hour) }
	return e
}

func day(n int) time.Time {
	return time.Date(2025, time.March, n, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func addBatch(t *testing.T, s *store.TxMemory, name, qty, unit, cost string, received time.Time) kitchen.IngredientBatch {
	t.Helper()
	b, err := s.AddBatch(context.Background(), kitchen.IngredientBatch{
		Name:        name,
		Quantity:    dec(qty),
		Unit:        unit,
		CostPerUnit: dec(cost),
		ReceivedAt:  received,
	})
	require.NoError(t, err)
	return b
}

// req builds a recipe line: ingredient, per-serving amount, unit.
func req(ingredient, perServing, unit string) kitchen.RecipeRequirement {
	return kitchen.RecipeRequirement{Ingredient: ingredient, PerServing: dec(perServing), Unit: unit}
}

func addDish(t *testing.T, s *store.TxMemory, name string, reqs ...kitchen.RecipeRequirement) kitchen.Dish {
	t.Helper()
	d, err := s.AddDish(context.Background(), kitchen.Dish{Name: name, Type: "main"}, reqs)
	require.NoError(t, err)
	return d
}

func quantityOf(t *testing.T, s *store.TxMemory, id kitchen.BatchID) decimal.Decimal {
	t.Helper()
	b, err := s.GetBatch(context.Background(), id)
	require.NoError(t, err)
	return b.Quantity
}

func prepare(dish, servings, date string) kitchen.PrepareRequest {
	return kitchen.PrepareRequest{DishName: dish, Servings: dec(servings), Date: date}
}

// =============================================================================
// PREPARE - Happy path
// =============================================================================

func TestPrepare_ConsumesFIFOAndConserves(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	engine := newTestEngine(s)

	// GIVEN: 1 kg (old) + 500 g (new) of tomato, soup needs 200 g per serving
	old := addBatch(t, s, "Tomato", "1", "kg", "2", day(1))
	fresh := addBatch(t, s, "Tomato", "500", "g", "0.004", day(2))
	addDish(t, s, "Tomato Soup", req("Tomato", "200", "g"))

	// WHEN: preparing 6 servings (1200 g)
	result, err := engine.Prepare(ctx, prepare("tomato soup", "6", ""))

	// THEN: the old batch is emptied first
	require.NoError(t, err)
	assert.Equal(t, kitchen.StateCommitted, result.State)
	assert.Equal(t, "Tomato Soup", result.DishName)
	require.Len(t, result.Usage, 2)

	assert.Equal(t, old.ID, result.Usage[0].BatchID)
	assertDecimal(t, "1", result.Usage[0].Used)
	assertDecimal(t, "0", result.Usage[0].Remaining)
	assert.Equal(t, "kg", result.Usage[0].Unit)
	assertDecimal(t, "2", result.Usage[0].Cost)

	assert.Equal(t, fresh.ID, result.Usage[1].BatchID)
	assertDecimal(t, "200", result.Usage[1].Used)
	assertDecimal(t, "300", result.Usage[1].Remaining)
	assertDecimal(t, "0.8", result.Usage[1].Cost)
	assertDecimal(t, "2.8", result.TotalCost)

	// AND: 1500 g before = 1200 g used + 300 g left
	assertDecimal(t, "0", quantityOf(t, s, old.ID))
	assertDecimal(t, "300", quantityOf(t, s, fresh.ID))

	// AND: each touched batch has one log entry at engine time
	for _, id := range []kitchen.BatchID{old.ID, fresh.ID} {
		entries, err := s.LogEntries(ctx, id)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, day(20).Add(9*time.Hour).Equal(entries[0].At))
	}
}

func TestPrepare_DateIsMidnightUTC(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	engine := newTestEngine(s)
	addBatch(t, s, "Rice", "5", "kg", "1", day(1))
	addDish(t, s, "Fried Rice", req("rice", "0.25", "kg"))

	result, err := engine.Prepare(ctx, prepare("Fried Rice", "2", "2025-03-07"))

	require.NoError(t, err)
	assert.True(t, day(7).Equal(result.PreparedAt))
	require.Len(t, result.Usage, 1)
	assert.True(t, day(7).Equal(result.Usage[0].LoggedAt))
	assertDecimal(t, "4.5", result.Usage[0].Remaining)
}

func TestPrepare_SameIngredientTwiceInRecipe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	engine := newTestEngine(s)
	b := addBatch(t, s, "Butter", "1", "kg", "10", day(1))
	addDish(t, s, "Croissant",
		req("Butter", "100", "g"),
		req("butter", "0.05", "kg"),
	)

	_, err := engine.Prepare(ctx, prepare("Croissant", "2", ""))

	require.NoError(t, err)
	assertDecimal(t, "0.7", quantityOf(t, s, b.ID))
}

// =============================================================================
// PREPARE - Failures leave inventory untouched
// =============================================================================

func TestPrepare_InsufficientStockChangesNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	engine := newTestEngine(s)

	// GIVEN: enough pasta but not enough cheese
	pasta := addBatch(t, s, "Pasta", "5", "kg", "2", day(1))
	cheese := addBatch(t, s, "Parmesan", "100", "g", "0.03", day(1))
	addDish(t, s, "Pasta", req("Pasta", "150", "g"), req("Parmesan", "30", "g"))

	// WHEN: four servings need 120 g of cheese
	result, err := engine.Prepare(ctx, prepare("Pasta", "4", ""))

	// THEN: the preparation fails with the shortfall
	assert.Nil(t, result)
	var short *kitchen.InsufficientStockError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, "Parmesan", short.Ingredient)
	assertDecimal(t, "20", short.Shortfall)

	// AND: the pasta allocation was not committed
	assertDecimal(t, "5", quantityOf(t, s, pasta.ID))
	assertDecimal(t, "100", quantityOf(t, s, cheese.ID))
	ids, err := s.LoggedBatchIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPrepare_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	engine := newTestEngine(s)
	b := addBatch(t, s, "Tomato", "5", "kg", "2", day(1))
	addDish(t, s, "Soup", req("Tomato", "100", "g"))
	addDish(t, s, "Air")
	addDish(t, s, "Imperial Soup", req("Tomato", "4", "oz"))

	tests := []struct {
		name    string
		request kitchen.PrepareRequest
		wantErr error
		client  bool
	}{
		{"unknown dish", prepare("Gazpacho", "1", ""), kitchen.ErrDishNotFound, false},
		{"empty recipe", prepare("Air", "1", ""), kitchen.ErrNoIngredients, true},
		{"bad date", prepare("Soup", "1", "03/10/2025"), kitchen.ErrInvalidDate, true},
		{"zero servings", prepare("Soup", "0", ""), kitchen.ErrInvalidServings, true},
		{"negative servings", prepare("Soup", "-2", ""), kitchen.ErrInvalidServings, true},
		{"unsupported unit", prepare("Imperial Soup", "1", ""), kitchen.ErrUnsupportedUnit, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Prepare(ctx, tt.request)

			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.client, kitchen.IsClientError(err))
			assert.Equal(t, !tt.client, kitchen.IsNotFound(err))
		})
	}

	assertDecimal(t, "5", quantityOf(t, s, b.ID))
}

func TestPrepare_UnsupportedBatchUnitAfterStagedIngredient(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	engine := newTestEngine(s)

	// GIVEN: rice is staged first, then the saffron batch is in ounces
	rice := addBatch(t, s, "Rice", "1", "kg", "3", day(1))
	saffron := addBatch(t, s, "Saffron", "2", "oz", "40", day(1))
	addDish(t, s, "Paella", req("Rice", "100", "g"), req("Saffron", "1", "g"))

	// WHEN
	result, err := engine.Prepare(ctx, prepare("Paella", "2", ""))

	// THEN: the unit error names the ingredient
	assert.Nil(t, result)
	var unsupported *kitchen.UnsupportedUnitError
	require.True(t, errors.As(err, &unsupported))
	assert.ErrorIs(t, err, kitchen.ErrUnsupportedUnit)
	assert.True(t, kitchen.IsClientError(err))
	assert.Contains(t, err.Error(), "Saffron")
	assert.Contains(t, err.Error(), `"oz"`)

	// AND: the rice allocation was dropped with it
	assertDecimal(t, "1", quantityOf(t, s, rice.ID))
	assertDecimal(t, "2", quantityOf(t, s, saffron.ID))
	ids, err := s.LoggedBatchIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// recordingInventory remembers the names passed to FindBatches inside
// transactions.
type recordingInventory struct {
	kitchen.TxInventory
	mu    sync.Mutex
	names []string
}

func (r *recordingInventory) WithTx(ctx context.Context, fn func(kitchen.Inventory) error) error {
	return r.TxInventory.WithTx(ctx, func(inv kitchen.Inventory) error {
		return fn(&recordingView{Inventory: inv, parent: r})
	})
}

type recordingView struct {
	kitchen.Inventory
	parent *recordingInventory
}

func (v *recordingView) FindBatches(ctx context.Context, name string) ([]kitchen.IngredientBatch, error) {
	v.parent.mu.Lock()
	v.parent.names = append(v.parent.names, name)
	v.parent.mu.Unlock()
	return v.Inventory.FindBatches(ctx, name)
}

func TestPrepare_ReadsIngredientsInNameOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	tomato := addBatch(t, s, "Tomato", "10", "kg", "2", day(1))
	onion := addBatch(t, s, "Onion", "10", "pcs", "0.2", day(1))
	addDish(t, s, "Sugo", req("Tomato", "0.5", "kg"), req("Onion", "1", "pcs"))
	addDish(t, s, "Soffritto", req("onion", "2", "pcs"), req("tomato", "250", "g"))

	rec := &recordingInventory{TxInventory: s}
	engine := kitchen.NewEngine(s, rec)

	// WHEN: two recipes list the same ingredients in opposite order
	sugo, err := engine.Prepare(ctx, prepare("Sugo", "2", ""))
	require.NoError(t, err)
	soffritto, err := engine.Prepare(ctx, prepare("Soffritto", "2", ""))
	require.NoError(t, err)

	// THEN: both read onion before tomato
	assert.Equal(t, []string{"onion", "tomato", "onion", "tomato"}, rec.names)

	// AND: usage still follows each recipe
	require.Len(t, sugo.Usage, 2)
	assert.Equal(t, tomato.ID, sugo.Usage[0].BatchID)
	assertDecimal(t, "1", sugo.Usage[0].Used)
	assert.Equal(t, onion.ID, sugo.Usage[1].BatchID)
	assertDecimal(t, "2", sugo.Usage[1].Used)

	require.Len(t, soffritto.Usage, 2)
	assert.Equal(t, onion.ID, soffritto.Usage[0].BatchID)
	assertDecimal(t, "4", soffritto.Usage[0].Used)
	assert.Equal(t, tomato.ID, soffritto.Usage[1].BatchID)
	assertDecimal(t, "0.5", soffritto.Usage[1].Used)

	// AND: 10 kg - 1 kg - 0.5 kg, 10 - 2 - 4 onions
	assertDecimal(t, "8.5", quantityOf(t, s, tomato.ID))
	assertDecimal(t, "4", quantityOf(t, s, onion.ID))
}

// failingInventory fails AppendLog once failAfter appends have gone through.
type failingInventory struct {
	kitchen.TxInventory
	failAfter int
}

var errDiskFull = errors.New("disk full")

func (f *failingInventory) WithTx(ctx context.Context, fn func(kitchen.Inventory) error) error {
	return f.TxInventory.WithTx(ctx, func(inv kitchen.Inventory) error {
		return fn(&failingView{Inventory: inv, left: f.failAfter})
	})
}

type failingView struct {
	kitchen.Inventory
	left int
}

func (v *failingView) AppendLog(ctx context.Context, e kitchen.ConsumptionLogEntry) (kitchen.ConsumptionLogEntry, error) {
	if v.left == 0 {
		return kitchen.ConsumptionLogEntry{}, errDiskFull
	}
	v.left--
	return v.Inventory.AppendLog(ctx, e)
}

func TestPrepare_StoreFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	onion := addBatch(t, s, "Onion", "10", "pcs", "0.2", day(1))
	garlic := addBatch(t, s, "Garlic", "20", "pcs", "0.1", day(1))
	addDish(t, s, "Sofrito", req("Onion", "1", "pcs"), req("Garlic", "2", "pcs"))

	// GIVEN: the second log write fails
	engine := kitchen.NewEngine(s, &failingInventory{TxInventory: s, failAfter: 1})

	// WHEN
	_, err := engine.Prepare(ctx, prepare("Sofrito", "3", ""))

	// THEN: the error surfaces and the first deduction is rolled back
	require.ErrorIs(t, err, errDiskFull)
	assert.False(t, kitchen.IsClientError(err))
	assertDecimal(t, "10", quantityOf(t, s, onion.ID))
	assertDecimal(t, "20", quantityOf(t, s, garlic.ID))

	entries, err := s.LogEntries(ctx, onion.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// PREPARE - Backdating
// =============================================================================

func TestPrepare_BackdatedCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	engine := newTestEngine(s)
	b := addBatch(t, s, "Tomato", "10", "kg", "2", day(1))
	addDish(t, s, "Salad", req("Tomato", "1", "kg"))

	// GIVEN: preparations on the 10th and the 15th
	_, err := engine.Prepare(ctx, prepare("Salad", "2", "2025-03-10"))
	require.NoError(t, err)
	_, err = engine.Prepare(ctx, prepare("Salad", "3", "2025-03-15"))
	require.NoError(t, err)
	assertDecimal(t, "5", quantityOf(t, s, b.ID))

	// WHEN: one serving is recorded for the 5th
	result, err := engine.Prepare(ctx, prepare("Salad", "1", "2025-03-05"))
	require.NoError(t, err)

	// THEN: every later entry carries the new balance
	entries, err := s.LogEntries(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, day(5).Equal(entries[0].At))
	for _, e := range entries {
		assertDecimal(t, "4", e.QuantityRemaining)
	}

	// AND: the batch projection matches the latest entry
	assertDecimal(t, "4", quantityOf(t, s, b.ID))
	assertDecimal(t, "4", result.Usage[0].Remaining)
}

// =============================================================================
// PREPARE - Concurrency
// =============================================================================

func TestPrepare_ConcurrentNeverOverDeducts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	engine := newTestEngine(s)
	b := addBatch(t, s, "Flour", "10", "kg", "1", day(1))
	addDish(t, s, "Bread", req("Flour", "1", "kg"))
	addDish(t, s, "Flatbread", req("flour", "1000", "g"))

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dish := "Bread"
			if i%2 == 1 {
				dish = "Flatbread"
			}
			_, errs[i] = engine.Prepare(ctx, prepare(dish, "1", ""))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, kitchen.ErrInsufficientStock)
	}
	assert.Equal(t, 10, succeeded)
	assertDecimal(t, "0", quantityOf(t, s, b.ID))

	entries, err := s.LogEntries(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 10)
}

// =============================================================================
// PREPARE MANY
// =============================================================================

func TestPrepareMany_RowsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	engine := newTestEngine(s)
	b := addBatch(t, s, "Egg", "12", "pcs", "0.25", day(1))
	addDish(t, s, "Omelette", req("Egg", "3", "pcs"))

	outcomes := engine.PrepareMany(ctx, []kitchen.PrepareRequest{
		prepare("Omelette", "2", "2025-03-02"),
		prepare("Quiche", "1", ""),
		prepare("Omelette", "1", "2025-03-03"),
	})

	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, kitchen.ErrDishNotFound)
	assert.Nil(t, outcomes[1].Result)
	assert.NoError(t, outcomes[2].Err)
	assert.Equal(t, 2, outcomes[2].Index)
	assertDecimal(t, "3", quantityOf(t, s, b.ID))
}

func TestPrepareMany_CancelledContext(t *testing.T) {
	s := newTestStore()
	engine := newTestEngine(s)
	addBatch(t, s, "Egg", "12", "pcs", "0.25", day(1))
	addDish(t, s, "Omelette", req("Egg", "3", "pcs"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := engine.PrepareMany(ctx, []kitchen.PrepareRequest{prepare("Omelette", "1", "")})
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, context.Canceled)
}
