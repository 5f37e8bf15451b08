/*
expense.go - Delivery expense report

EXPENSES:
  Every received batch is one expense: its delivered quantity times its
  cost per unit. Preparations shrink Quantity but never Delivered, so the
  report is the same before and after the kitchen cooks.

RANGE:
  From and To are whole UTC days, both inclusive. A zero bound defaults to
  the first or last delivery day on record.

FILTER:
  Name is a case-insensitive substring of the batch name. When Name is
  empty, Type filters the same way on the batch type. Per-item figures
  (highest, lowest, most frequent) are only computed without a Name
  filter, since a name filter already picks the item.
*/
package kitchen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BatchLister lists every batch in inventory.
type BatchLister interface {
	ListBatches(ctx context.Context) ([]IngredientBatch, error)
}

type ExpenseFilter struct {
	Name string
	Type string
}

// DailyExpense is the delivery total of one UTC day.
type DailyExpense struct {
	Date   time.Time
	Amount decimal.Decimal
}

// ExpenseItem is one delivery's share of the report.
type ExpenseItem struct {
	BatchID BatchID
	Name    string
	Amount  decimal.Decimal
}

type ExpenseSummary struct {
	From       time.Time
	To         time.Time
	Filter     ExpenseFilter
	Deliveries int
	Total      decimal.Decimal
	Average    decimal.Decimal // per delivery

	HighestDay *DailyExpense
	LowestDay  *DailyExpense

	// Only without a name filter.
	HighestItem  *ExpenseItem
	LowestItem   *ExpenseItem
	MostFrequent string
}

// Empty reports whether no delivery matched.
func (s *ExpenseSummary) Empty() bool { return s.Deliveries == 0 }

// ExpenseReport totals delivery costs between from and to. Ties go to the
// earlier day, or to the earlier delivery.
func ExpenseReport(ctx context.Context, src BatchLister, from, to time.Time, filter ExpenseFilter) (*ExpenseSummary, error) {
	batches, err := src.ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	sortFIFO(batches)

	summary := &ExpenseSummary{
		Filter:  ExpenseFilter{Name: strings.TrimSpace(filter.Name), Type: strings.TrimSpace(filter.Type)},
		Total:   decimal.Zero,
		Average: decimal.Zero,
	}

	if len(batches) > 0 {
		if from.IsZero() {
			from = batches[0].ReceivedAt
		}
		if to.IsZero() {
			to = batches[len(batches)-1].ReceivedAt
		}
	}
	if !from.IsZero() {
		from = startOfDay(from)
	}
	if !to.IsZero() {
		to = startOfDay(to)
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidDate, from.Format(DateLayout), to.Format(DateLayout))
	}
	summary.From, summary.To = from, to

	var days []DailyExpense
	dayIndex := make(map[time.Time]int)
	counts := make(map[string]int)
	firstName := make(map[string]string)
	var order []string

	for _, b := range batches {
		if b.ReceivedAt.Before(from) || b.ReceivedAt.After(EndOfDay(to)) {
			continue
		}
		if !summary.Filter.matches(b) {
			continue
		}

		amount := b.DeliveredCost()
		summary.Deliveries++
		summary.Total = summary.Total.Add(amount)

		d := startOfDay(b.ReceivedAt)
		i, ok := dayIndex[d]
		if !ok {
			i = len(days)
			dayIndex[d] = i
			days = append(days, DailyExpense{Date: d, Amount: decimal.Zero})
		}
		days[i].Amount = days[i].Amount.Add(amount)

		if summary.Filter.Name != "" {
			continue
		}
		item := ExpenseItem{BatchID: b.ID, Name: b.Name, Amount: amount}
		if summary.HighestItem == nil || amount.GreaterThan(summary.HighestItem.Amount) {
			summary.HighestItem = &item
		}
		if summary.LowestItem == nil || amount.LessThan(summary.LowestItem.Amount) {
			lowest := item
			summary.LowestItem = &lowest
		}
		key := normalizeName(b.Name)
		if _, seen := counts[key]; !seen {
			firstName[key] = b.Name
			order = append(order, key)
		}
		counts[key]++
	}

	if summary.Empty() {
		return summary, nil
	}
	summary.Average = summary.Total.Div(decimal.NewFromInt(int64(summary.Deliveries)))

	for i := range days {
		if summary.HighestDay == nil || days[i].Amount.GreaterThan(summary.HighestDay.Amount) {
			summary.HighestDay = &days[i]
		}
		if summary.LowestDay == nil || days[i].Amount.LessThan(summary.LowestDay.Amount) {
			summary.LowestDay = &days[i]
		}
	}

	best := 0
	for _, key := range order {
		if counts[key] > best {
			best = counts[key]
			summary.MostFrequent = firstName[key]
		}
	}
	return summary, nil
}

func (f ExpenseFilter) matches(b IngredientBatch) bool {
	if f.Name != "" {
		return strings.Contains(normalizeName(b.Name), normalizeName(f.Name))
	}
	if f.Type != "" {
		return strings.Contains(normalizeName(b.Type), normalizeName(f.Type))
	}
	return true
}
