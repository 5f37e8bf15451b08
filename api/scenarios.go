/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with a menu and
	inventory for demos. Each scenario resets the store, loads a preset menu
	through the factory and optionally runs preparations.

AVAILABLE SCENARIOS:

	demo-kitchen:  Stocked kitchen, two tomato deliveries at different prices
	shortage:      Thin inventory, pizza fails with a shortfall report
	backdated:     Soups prepared out of date order, log rewritten

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Build menu JSON from factory presets, dated relative to today
 3. Parse and load dishes and batches
 4. Optionally prepare dishes

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "demo-kitchen"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add a preset to factory/presets.go
 3. Add case to loadScenario

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and store wiring
  - factory/presets.go: Menu JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pantry/factory"
	"github.com/warp/pantry/kitchen"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "demo-kitchen",
		Name:        "Demo Kitchen",
		Description: "Three dishes, well stocked, tomatoes from two deliveries at different prices",
	},
	{
		ID:          "shortage",
		Name:        "Shortage",
		Description: "Thin inventory: soup works a couple of times, pizza fails on flour",
	},
	{
		ID:          "backdated",
		Name:        "Backdated Preparation",
		Description: "A late-entered preparation dated before earlier ones rewrites the consumption log",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == current {
			respond(w, r, http.StatusOK, s)
			return
		}
	}

	respond(w, r, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.currentScenario = ""
	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	respond(w, r, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears every dish, batch and log entry.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	respond(w, r, http.StatusOK, map[string]string{"status": "reset"})
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}

	today := h.today()
	switch id {
	case "demo-kitchen":
		return h.loadMenu(ctx, factory.DemoKitchenJSON(today))
	case "shortage":
		return h.loadMenu(ctx, factory.ShortageJSON(today))
	case "backdated":
		return h.loadBackdatedScenario(ctx, today)
	}
	return fmt.Errorf("unknown scenario %q", id)
}

func (h *Handler) loadMenu(ctx context.Context, menuJSON string) error {
	menu, err := h.MenuFactory.ParseMenu(menuJSON)
	if err != nil {
		return err
	}
	return menu.Load(ctx, h.Store)
}

// loadBackdatedScenario prepares soup four days ago and two days ago, then
// enters a preparation dated a week ago. The last one resyncs the log.
func (h *Handler) loadBackdatedScenario(ctx context.Context, today time.Time) error {
	if err := h.loadMenu(ctx, factory.BackdatedJSON(today)); err != nil {
		return err
	}

	for _, daysAgo := range []int{4, 2, 7} {
		_, err := h.Engine.Prepare(ctx, kitchen.PrepareRequest{
			DishName: "Tomato Soup",
			Servings: decimal.NewFromInt(2),
			Date:     today.AddDate(0, 0, -daysAgo).Format(kitchen.DateLayout),
		})
		if err != nil {
			return fmt.Errorf("prepare soup %d days ago: %w", daysAgo, err)
		}
	}
	log.Printf("[Scenario] backdated: 3 preparations recorded")
	return nil
}

func (h *Handler) today() time.Time {
	now := time.Now
	if h.Engine != nil && h.Engine.Now != nil {
		now = h.Engine.Now
	}
	y, m, d := now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
