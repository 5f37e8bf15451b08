/*
handlers.go - HTTP API handlers for the kitchen engine

PURPOSE:
  Exposes the preparation engine and inventory via REST API. Handles HTTP
  request/response, serialization, and delegates to the kitchen package.

ENDPOINTS:
  Preparation:
    POST   /api/prepare                 Prepare one dish
    POST   /api/prepare/bulk            Prepare many dishes, row by row

  Dishes:
    GET    /api/dishes                  List dishes with recipes
    POST   /api/dishes                  Create dish from JSON
    GET    /api/dishes/{name}/cost      Per-serving cost at latest prices

  Inventory:
    GET    /api/inventory               List batches
    POST   /api/inventory               Receive a batch
    GET    /api/inventory/{id}/log      Consumption log of a batch
    GET    /api/inventory/on-date       Stock levels at end of ?date=

  Expenses:
    GET    /api/expenses                Delivery costs per day and item

  Admin:
    POST   /api/admin/reconcile         Refresh batch quantities from the log

  Scenarios:
    GET    /api/scenarios               List demo scenarios
    POST   /api/scenarios/load          Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: any store implementing the kitchen ports plus administration
  - Engine: the preparation engine over that store
  - MenuFactory: JSON to dish/batch conversion

CONTENT NEGOTIATION:
  Responses are JSON. A request with "Accept: application/msgpack" gets the
  same structure encoded as msgpack, keyed by the json field names.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unsupported units, insufficient stock
  - 404: Dish or batch not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/warp/pantry/factory"
	"github.com/warp/pantry/kitchen"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the HTTP layer needs from persistence. The SQLite,
// PostgreSQL and in-memory stores all satisfy it.
type Store interface {
	kitchen.TxInventory
	kitchen.RecipeBook
	factory.Seeder

	ListBatches(ctx context.Context) ([]kitchen.IngredientBatch, error)
	ListDishes(ctx context.Context) ([]kitchen.Dish, error)
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       Store
	Engine      *kitchen.Engine
	Reconciler  *kitchen.Reconciler
	MenuFactory *factory.MenuFactory

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store Store) *Handler {
	return &Handler{
		Store:       store,
		Engine:      kitchen.NewEngine(store, store),
		Reconciler:  &kitchen.Reconciler{Inventory: store},
		MenuFactory: factory.NewMenuFactory(),
	}
}

// =============================================================================
// PREPARATION HANDLERS
// =============================================================================

// Prepare consumes inventory for one dish.
// POST /api/prepare
func (h *Handler) Prepare(w http.ResponseWriter, r *http.Request) {
	var req PrepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.DishName) == "" {
		writeError(w, http.StatusBadRequest, "dish_name is required", nil)
		return
	}

	result, err := h.Engine.Prepare(r.Context(), kitchen.PrepareRequest{
		DishName: req.DishName,
		Servings: req.Quantity,
		Date:     req.Date,
	})
	if err != nil {
		writeKitchenError(w, "Preparation failed", err)
		return
	}

	respond(w, r, http.StatusCreated, toPreparationDTO(result))
}

// PrepareBulk runs every row as an independent preparation.
// POST /api/prepare/bulk
func (h *Handler) PrepareBulk(w http.ResponseWriter, r *http.Request) {
	var rows []PrepareRequest
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body (expected an array)", err)
		return
	}

	reqs := make([]kitchen.PrepareRequest, len(rows))
	for i, row := range rows {
		reqs[i] = kitchen.PrepareRequest{DishName: row.DishName, Servings: row.Quantity, Date: row.Date}
	}

	resp := BulkResponse{Outcomes: make([]BulkOutcomeDTO, 0, len(reqs))}
	for _, o := range h.Engine.PrepareMany(r.Context(), reqs) {
		dto := BulkOutcomeDTO{Row: o.Index + 1, DishName: o.Request.DishName, Status: "ok"}
		if o.Err != nil {
			dto.Status = "error"
			dto.Error = o.Err.Error()
			resp.Failed++
		} else {
			p := toPreparationDTO(o.Result)
			dto.Preparation = &p
			resp.Succeeded++
		}
		resp.Outcomes = append(resp.Outcomes, dto)
	}

	respond(w, r, http.StatusOK, resp)
}

// =============================================================================
// DISH HANDLERS
// =============================================================================

// ListDishes returns all dishes with their recipes.
// GET /api/dishes
func (h *Handler) ListDishes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dishes, err := h.Store.ListDishes(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list dishes", err)
		return
	}

	dtos := make([]DishDTO, len(dishes))
	for i, d := range dishes {
		reqs, err := h.Store.Ingredients(ctx, d.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load recipe", err)
			return
		}
		dtos[i] = toDishDTO(d, reqs)
	}

	respond(w, r, http.StatusOK, dtos)
}

// CreateDish stores a dish with its recipe.
// POST /api/dishes
func (h *Handler) CreateDish(w http.ResponseWriter, r *http.Request) {
	var dj factory.DishJSON
	if err := json.NewDecoder(r.Body).Decode(&dj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	def, err := h.MenuFactory.ParseDish(dj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid dish", err)
		return
	}

	dish, err := h.Store.AddDish(r.Context(), def.Dish, def.Requirements)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create dish", err)
		return
	}

	respond(w, r, http.StatusCreated, toDishDTO(dish, def.Requirements))
}

// GetDishCost prices one serving of a dish.
// GET /api/dishes/{name}/cost
func (h *Handler) GetDishCost(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	cost, err := kitchen.CostDish(r.Context(), h.Store, h.Store, name)
	if err != nil {
		writeKitchenError(w, "Failed to cost dish", err)
		return
	}

	respond(w, r, http.StatusOK, toDishCostDTO(cost))
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// ListInventory returns every batch.
// GET /api/inventory
func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	batches, err := h.Store.ListBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list inventory", err)
		return
	}

	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = toBatchDTO(b)
	}
	respond(w, r, http.StatusOK, dtos)
}

// ReceiveBatch adds a delivery to inventory.
// POST /api/inventory
func (h *Handler) ReceiveBatch(w http.ResponseWriter, r *http.Request) {
	var bj factory.BatchJSON
	if err := json.NewDecoder(r.Body).Decode(&bj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	batch, err := h.MenuFactory.ParseBatch(bj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch", err)
		return
	}

	saved, err := h.Store.AddBatch(r.Context(), batch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to receive batch", err)
		return
	}

	respond(w, r, http.StatusCreated, toBatchDTO(saved))
}

// GetBatchLog returns the consumption log of a batch.
// GET /api/inventory/{id}/log
func (h *Handler) GetBatchLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid batch id", err)
		return
	}

	batchID := kitchen.BatchID(id)
	if _, err := h.Store.GetBatch(ctx, batchID); err != nil {
		writeKitchenError(w, "Failed to get batch", err)
		return
	}

	entries, err := kitchen.NewConsumptionLog(h.Store).History(ctx, batchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load consumption log", err)
		return
	}

	dtos := make([]LogEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LogEntryDTO{
			ID:                e.ID,
			Seq:               e.Seq,
			LoggedAt:          e.At.Format(time.RFC3339),
			QuantityRemaining: e.QuantityRemaining.String(),
		}
	}
	respond(w, r, http.StatusOK, dtos)
}

// GetStockOnDate reports every consumed batch's balance at the end of a day.
// GET /api/inventory/on-date?date=YYYY-MM-DD
func (h *Handler) GetStockOnDate(w http.ResponseWriter, r *http.Request) {
	date, err := kitchen.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	levels, err := kitchen.StockOnDate(r.Context(), h.Store, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stock", err)
		return
	}

	dtos := make([]StockLevelDTO, len(levels))
	for i, l := range levels {
		dtos[i] = StockLevelDTO{
			BatchID:   int64(l.BatchID),
			Name:      l.Name,
			Unit:      l.Unit,
			Remaining: l.Remaining.String(),
			LoggedAt:  l.LoggedAt.Format(time.RFC3339),
		}
	}
	respond(w, r, http.StatusOK, dtos)
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// GetExpenseReport totals delivery costs over a date range.
// GET /api/expenses?start_date=YYYY-MM-DD&end_date=YYYY-MM-DD&name=...&type=...
// Missing dates default to the first and last delivery. name takes
// precedence over type.
func (h *Handler) GetExpenseReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var from, to time.Time
	var err error
	if s := q.Get("start_date"); s != "" {
		if from, err = kitchen.ParseDate(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date", err)
			return
		}
	}
	if s := q.Get("end_date"); s != "" {
		if to, err = kitchen.ParseDate(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date", err)
			return
		}
	}

	filter := kitchen.ExpenseFilter{Name: q.Get("name"), Type: q.Get("type")}
	if filter.Name == "" {
		filter.Name = q.Get("inventory_name")
	}

	report, err := kitchen.ExpenseReport(r.Context(), h.Store, from, to, filter)
	if err != nil {
		writeKitchenError(w, "Failed to build expense report", err)
		return
	}
	respond(w, r, http.StatusOK, toExpenseReportDTO(report))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Reconcile refreshes batch quantities from the consumption log.
// POST /api/admin/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Reconciler.Reconcile(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Reconciliation failed", err)
		return
	}
	respond(w, r, http.StatusOK, toReconcileDTO(summary))
}

func toReconcileDTO(s kitchen.ReconcileSummary) ReconcileDTO {
	dto := ReconcileDTO{Checked: s.Checked, Corrected: make([]CorrectionDTO, len(s.Corrected))}
	for i, c := range s.Corrected {
		dto.Corrected[i] = CorrectionDTO{
			BatchID: int64(c.BatchID),
			Name:    c.Name,
			Was:     c.Was.String(),
			Now:     c.Now.String(),
		}
	}
	return dto
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

const contentTypeMsgpack = "application/msgpack"

// respond writes data as msgpack when the client asks for it, JSON otherwise.
func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	if !strings.Contains(r.Header.Get("Accept"), contentTypeMsgpack) {
		writeJSON(w, status, data)
		return
	}
	w.Header().Set("Content-Type", contentTypeMsgpack)
	w.WriteHeader(status)
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	enc.Encode(data)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeKitchenError maps kitchen errors onto HTTP status codes.
func writeKitchenError(w http.ResponseWriter, message string, err error) {
	switch {
	case kitchen.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case kitchen.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
