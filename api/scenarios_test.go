package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pantry/kitchen"
)

func TestListScenarios(t *testing.T) {
	_, router, _ := newMemoryServer(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"demo-kitchen", "shortage", "backdated"}, ids)
}

func TestLoadScenario_TracksCurrent(t *testing.T) {
	_, router, _ := newMemoryServer(t)

	// GIVEN: Nothing loaded
	rec := do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	// WHEN: Loading the demo kitchen
	loadScenario(t, router, "demo-kitchen")

	// THEN: It is reported as current
	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	current := decode[ScenarioDTO](t, rec)
	assert.Equal(t, "demo-kitchen", current.ID)
	assert.Equal(t, "Demo Kitchen", current.Name)
}

func TestLoadScenario_ReplacesPreviousData(t *testing.T) {
	_, router, _ := newMemoryServer(t)

	loadScenario(t, router, "demo-kitchen")
	loadScenario(t, router, "shortage")

	rec := do(t, router, http.MethodGet, "/api/inventory", nil)
	batches := decode[[]BatchDTO](t, rec)
	assert.Len(t, batches, 4)

	rec = do(t, router, http.MethodGet, "/api/dishes", nil)
	assert.Len(t, decode[[]DishDTO](t, rec), 3)
}

func TestLoadScenario_Unknown(t *testing.T) {
	_, router, _ := newMemoryServer(t)
	loadScenario(t, router, "demo-kitchen")

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "banquet"})

	// Unknown ids are rejected before anything is reset
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, batchesNamed(t, router, "Tomato"), 2)
}

func TestResetDatabase(t *testing.T) {
	_, router, _ := newMemoryServer(t)
	loadScenario(t, router, "demo-kitchen")

	rec := do(t, router, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/inventory", nil)
	assert.Empty(t, decode[[]BatchDTO](t, rec))
	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestReconciliationScheduler(t *testing.T) {
	h, router, s := newMemoryServer(t)
	loadScenario(t, router, "backdated")
	ctx := context.Background()

	t.Run("RunOnce corrects drift and records the run", func(t *testing.T) {
		// GIVEN: The basil batch drifted from its log
		var basil *kitchen.IngredientBatch
		batches, err := s.ListBatches(ctx)
		require.NoError(t, err)
		for i := range batches {
			if batches[i].Name == "Basil" {
				basil = &batches[i]
			}
		}
		require.NotNil(t, basil)
		logged := basil.Quantity
		basil.Quantity = decimal.NewFromInt(1000)
		require.NoError(t, s.SaveBatch(ctx, *basil))

		sched := NewReconciliationScheduler(h.Reconciler)
		assert.Nil(t, sched.LastRun())

		// WHEN: One pass runs
		run := sched.RunOnce(ctx)

		// THEN: Basil is back to its logged balance
		require.NoError(t, run.Err)
		require.Len(t, run.Summary.Corrected, 1)
		assert.Equal(t, "Basil", run.Summary.Corrected[0].Name)
		assert.Equal(t, 3, run.Summary.Checked)
		require.NotNil(t, sched.LastRun())

		fixed, err := s.GetBatch(ctx, basil.ID)
		require.NoError(t, err)
		assert.True(t, logged.Equal(fixed.Quantity))
	})

	t.Run("Start runs immediately and Stop waits", func(t *testing.T) {
		sched := NewReconciliationScheduler(h.Reconciler)
		sched.CheckInterval = time.Hour

		sched.Start()
		require.Eventually(t, func() bool { return sched.LastRun() != nil }, 2*time.Second, 10*time.Millisecond)
		sched.Stop()
		sched.Stop()

		assert.NoError(t, sched.LastRun().Err)
	})

	t.Run("zero interval disables", func(t *testing.T) {
		sched := NewReconciliationScheduler(h.Reconciler)
		sched.CheckInterval = 0

		sched.Start()
		sched.Stop()

		assert.Nil(t, sched.LastRun())
	})
}
