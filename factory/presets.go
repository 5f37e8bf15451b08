package factory

import (
	"encoding/json"
	"time"
)

// Preset menus used by the demo scenarios and the -seed flag examples.
// Each returns a menu JSON document with deliveries dated relative to base.

func dish(name, dishType string, ingredients ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"type":        dishType,
		"ingredients": ingredients,
	}
}

func line(name, quantity, unit string) map[string]interface{} {
	return map[string]interface{}{"name": name, "quantity": quantity, "unit": unit}
}

func delivery(name, quantity, unit, cost, batchType string, received time.Time) map[string]interface{} {
	return map[string]interface{}{
		"name":          name,
		"quantity":      quantity,
		"unit":          unit,
		"cost_per_unit": cost,
		"type":          batchType,
		"received_at":   received.UTC().Format("2006-01-02"),
	}
}

func menuJSON(dishes, inventory []map[string]interface{}) string {
	b, _ := json.MarshalIndent(map[string]interface{}{
		"dishes":    dishes,
		"inventory": inventory,
	}, "", "  ")
	return string(b)
}

func standardDishes() []map[string]interface{} {
	return []map[string]interface{}{
		dish("Tomato Soup", "soup",
			line("Tomato", "200", "g"),
			line("Cream", "0.05", "liter"),
			line("Basil", "2", "pcs"),
		),
		dish("Margherita Pizza", "main",
			line("Flour", "250", "g"),
			line("Tomato", "100", "g"),
			line("Mozzarella", "0.125", "kg"),
			line("Basil", "3", "pieces"),
		),
		dish("Caprese Salad", "starter",
			line("Tomato", "150", "grams"),
			line("Mozzarella", "100", "gm"),
			line("Olive Oil", "15", "ml"),
		),
	}
}

// DemoKitchenJSON returns a stocked kitchen with two tomato deliveries at
// different prices so FIFO consumption is visible.
func DemoKitchenJSON(base time.Time) string {
	return menuJSON(standardDishes(), []map[string]interface{}{
		delivery("Tomato", "2", "kg", "2.40", "vegetable", base.AddDate(0, 0, -10)),
		delivery("Tomato", "5", "kg", "2.10", "vegetable", base.AddDate(0, 0, -3)),
		delivery("Cream", "1", "l", "4.80", "dairy", base.AddDate(0, 0, -5)),
		delivery("Basil", "40", "pcs", "0.10", "herb", base.AddDate(0, 0, -2)),
		delivery("Flour", "10", "kg", "0.90", "dry", base.AddDate(0, 0, -20)),
		delivery("Mozzarella", "1500", "g", "0.012", "dairy", base.AddDate(0, 0, -4)),
		delivery("Olive Oil", "1", "litre", "9.50", "oil", base.AddDate(0, 0, -30)),
	})
}

// ShortageJSON returns a kitchen that can make a couple of soups and no pizza.
func ShortageJSON(base time.Time) string {
	return menuJSON(standardDishes(), []map[string]interface{}{
		delivery("Tomato", "450", "g", "0.0024", "vegetable", base.AddDate(0, 0, -2)),
		delivery("Cream", "200", "ml", "0.0048", "dairy", base.AddDate(0, 0, -2)),
		delivery("Basil", "5", "pcs", "0.10", "herb", base.AddDate(0, 0, -1)),
		delivery("Flour", "100", "g", "0.0009", "dry", base.AddDate(0, 0, -1)),
	})
}

// BackdatedJSON returns a kitchen whose single tomato batch is meant to be
// consumed out of date order, showing how later log entries get rewritten.
func BackdatedJSON(base time.Time) string {
	return menuJSON(standardDishes()[:1], []map[string]interface{}{
		delivery("Tomato", "3", "kg", "2.40", "vegetable", base.AddDate(0, 0, -14)),
		delivery("Cream", "2", "l", "4.80", "dairy", base.AddDate(0, 0, -14)),
		delivery("Basil", "100", "pcs", "0.10", "herb", base.AddDate(0, 0, -14)),
	})
}
