/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the wire structures for API communication. These types decouple
  the kitchen model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

NUMBERS:
  Quantities, prices and costs are decimal strings in responses ("0.25"),
  so JSON and msgpack clients get the exact value. Requests accept JSON
  numbers or strings.

TYPES:
  Preparation:
    PrepareRequest, PreparationDTO, UsageDTO, BulkOutcomeDTO

  Dishes:
    DishDTO, IngredientDTO, DishCostDTO, IngredientCostDTO

  Inventory:
    BatchDTO, LogEntryDTO, StockLevelDTO

  Expenses:
    ExpenseReportDTO, DailyExpenseDTO, ExpenseItemDTO

  Admin:
    ReconcileDTO, CorrectionDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

SEE ALSO:
  - handlers.go: Uses these types
  - factory/menu.go: DishJSON and BatchJSON request bodies
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pantry/kitchen"
)

// =============================================================================
// PREPARATION
// =============================================================================

// PrepareRequest is the body of POST /api/prepare and one row of the bulk call.
type PrepareRequest struct {
	DishName string          `json:"dish_name"`
	Quantity decimal.Decimal `json:"quantity"`
	Date     string          `json:"date,omitempty"`
}

// UsageDTO is one batch deduction of a preparation.
type UsageDTO struct {
	Ingredient       string `json:"ingredient"`
	BatchID          int64  `json:"batch_id"`
	BatchName        string `json:"batch_name"`
	UsedFromBatch    string `json:"used_from_batch"`
	RemainingInBatch string `json:"remaining_in_batch"`
	Unit             string `json:"unit"`
	Cost             string `json:"cost"`
	LoggedAt         string `json:"logged_at"`
}

// PreparationDTO is the usage summary of a committed preparation.
type PreparationDTO struct {
	ID         string     `json:"id"`
	DishID     int64      `json:"dish_id"`
	Dish       string     `json:"dish"`
	Servings   string     `json:"servings"`
	PreparedAt string     `json:"prepared_at"`
	State      string     `json:"state"`
	TotalCost  string     `json:"total_cost"`
	Usage      []UsageDTO `json:"usage"`
}

// BulkOutcomeDTO is one row of a bulk preparation.
type BulkOutcomeDTO struct {
	Row         int             `json:"row"`
	DishName    string          `json:"dish_name"`
	Status      string          `json:"status"` // ok, error
	Error       string          `json:"error,omitempty"`
	Preparation *PreparationDTO `json:"preparation,omitempty"`
}

// BulkResponse summarizes a bulk preparation.
type BulkResponse struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Outcomes  []BulkOutcomeDTO `json:"outcomes"`
}

// =============================================================================
// DISHES
// =============================================================================

type IngredientDTO struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
}

type DishDTO struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type,omitempty"`
	Ingredients []IngredientDTO `json:"ingredients"`
}

type IngredientCostDTO struct {
	Ingredient string `json:"ingredient"`
	PerServing string `json:"per_serving"`
	Unit       string `json:"unit"`
	PriceBatch int64  `json:"price_batch_id"`
	UnitPrice  string `json:"unit_price"`
	BatchUnit  string `json:"batch_unit"`
	Cost       string `json:"cost"`
}

// DishCostDTO is the per-serving cost of a dish.
type DishCostDTO struct {
	Dish        string              `json:"dish"`
	Total       string              `json:"cost_per_serving"`
	Ingredients []IngredientCostDTO `json:"ingredients"`
}

// =============================================================================
// INVENTORY
// =============================================================================

type BatchDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Quantity    string `json:"quantity"`
	Delivered   string `json:"delivered"`
	Unit        string `json:"unit"`
	CostPerUnit string `json:"cost_per_unit"`
	Value       string `json:"value"`
	Type        string `json:"type,omitempty"`
	ReceivedAt  string `json:"received_at"`
}

type LogEntryDTO struct {
	ID                string `json:"id"`
	Seq               int64  `json:"seq"`
	LoggedAt          string `json:"logged_at"`
	QuantityRemaining string `json:"quantity_remaining"`
}

type StockLevelDTO struct {
	BatchID   int64  `json:"batch_id"`
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	Remaining string `json:"remaining"`
	LoggedAt  string `json:"logged_at"`
}

// =============================================================================
// EXPENSES
// =============================================================================

type DailyExpenseDTO struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

type ExpenseItemDTO struct {
	BatchID int64  `json:"batch_id"`
	Name    string `json:"name"`
	Amount  string `json:"amount"`
}

// ExpenseReportDTO is the delivery expense report. Message is only set
// when no delivery matched.
type ExpenseReportDTO struct {
	Message       string           `json:"message,omitempty"`
	InventoryName string           `json:"inventory_name,omitempty"`
	Type          string           `json:"type,omitempty"`
	StartDate     string           `json:"start_date,omitempty"`
	EndDate       string           `json:"end_date,omitempty"`
	Deliveries    int              `json:"deliveries"`
	TotalExpense  string           `json:"total_expense"`
	Average       string           `json:"average_expense"`
	HighestDay    *DailyExpenseDTO `json:"highest_expense_day"`
	LowestDay     *DailyExpenseDTO `json:"lowest_expense_day"`
	HighestItem   *ExpenseItemDTO  `json:"highest_expense,omitempty"`
	LowestItem    *ExpenseItemDTO  `json:"lowest_expense,omitempty"`
	MostFrequent  string           `json:"most_frequent_item,omitempty"`
}

// =============================================================================
// ADMIN
// =============================================================================

type CorrectionDTO struct {
	BatchID int64  `json:"batch_id"`
	Name    string `json:"name"`
	Was     string `json:"was"`
	Now     string `json:"now"`
}

type ReconcileDTO struct {
	Checked   int             `json:"checked"`
	Corrected []CorrectionDTO `json:"corrected"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPreparationDTO(r *kitchen.PreparationResult) PreparationDTO {
	dto := PreparationDTO{
		ID:         r.ID,
		DishID:     int64(r.DishID),
		Dish:       r.DishName,
		Servings:   r.Servings.String(),
		PreparedAt: r.PreparedAt.Format(time.RFC3339),
		State:      string(r.State),
		TotalCost:  r.TotalCost.String(),
		Usage:      make([]UsageDTO, len(r.Usage)),
	}
	for i, u := range r.Usage {
		dto.Usage[i] = UsageDTO{
			Ingredient:       u.Ingredient,
			BatchID:          int64(u.BatchID),
			BatchName:        u.BatchName,
			UsedFromBatch:    u.Used.String(),
			RemainingInBatch: u.Remaining.String(),
			Unit:             u.Unit,
			Cost:             u.Cost.String(),
			LoggedAt:         u.LoggedAt.Format(time.RFC3339),
		}
	}
	return dto
}

func toBatchDTO(b kitchen.IngredientBatch) BatchDTO {
	return BatchDTO{
		ID:          int64(b.ID),
		Name:        b.Name,
		Quantity:    b.Quantity.String(),
		Delivered:   b.Delivered.String(),
		Unit:        b.Unit,
		CostPerUnit: b.CostPerUnit.String(),
		Value:       b.TotalCost().String(),
		Type:        b.Type,
		ReceivedAt:  b.ReceivedAt.Format(time.RFC3339),
	}
}

func toDishDTO(d kitchen.Dish, reqs []kitchen.RecipeRequirement) DishDTO {
	dto := DishDTO{
		ID:          int64(d.ID),
		Name:        d.Name,
		Type:        d.Type,
		Ingredients: make([]IngredientDTO, len(reqs)),
	}
	for i, r := range reqs {
		dto.Ingredients[i] = IngredientDTO{Name: r.Ingredient, Quantity: r.PerServing.String(), Unit: r.Unit}
	}
	return dto
}

func toDishCostDTO(c *kitchen.DishCost) DishCostDTO {
	dto := DishCostDTO{
		Dish:        c.Dish.Name,
		Total:       c.Total.String(),
		Ingredients: make([]IngredientCostDTO, len(c.Ingredients)),
	}
	for i, ic := range c.Ingredients {
		dto.Ingredients[i] = IngredientCostDTO{
			Ingredient: ic.Ingredient,
			PerServing: ic.PerServing.String(),
			Unit:       ic.Unit,
			PriceBatch: int64(ic.PriceBatch),
			UnitPrice:  ic.UnitPrice.String(),
			BatchUnit:  ic.BatchUnit,
			Cost:       ic.Cost.String(),
		}
	}
	return dto
}

func toExpenseReportDTO(s *kitchen.ExpenseSummary) ExpenseReportDTO {
	dto := ExpenseReportDTO{
		InventoryName: s.Filter.Name,
		Type:          s.Filter.Type,
		Deliveries:    s.Deliveries,
		TotalExpense:  s.Total.String(),
		Average:       s.Average.StringFixed(2),
		HighestDay:    toDailyExpenseDTO(s.HighestDay),
		LowestDay:     toDailyExpenseDTO(s.LowestDay),
		HighestItem:   toExpenseItemDTO(s.HighestItem),
		LowestItem:    toExpenseItemDTO(s.LowestItem),
		MostFrequent:  s.MostFrequent,
	}
	if !s.From.IsZero() {
		dto.StartDate = s.From.Format(kitchen.DateLayout)
	}
	if !s.To.IsZero() {
		dto.EndDate = s.To.Format(kitchen.DateLayout)
	}
	if s.Empty() {
		dto.Message = "No expenses found for the given filters."
	}
	return dto
}

func toDailyExpenseDTO(d *kitchen.DailyExpense) *DailyExpenseDTO {
	if d == nil {
		return nil
	}
	return &DailyExpenseDTO{Date: d.Date.Format(kitchen.DateLayout), Amount: d.Amount.String()}
}

func toExpenseItemDTO(i *kitchen.ExpenseItem) *ExpenseItemDTO {
	if i == nil {
		return nil
	}
	return &ExpenseItemDTO{BatchID: int64(i.BatchID), Name: i.Name, Amount: i.Amount.String()}
}
