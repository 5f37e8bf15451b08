/*
errors.go - Centralized error types for the kitchen engine

ERROR CATEGORIES:
  1. Not found   - dish unknown, or known but without a recipe
  2. Client data - bad date, bad servings, unsupported or mismatched units
  3. Stock state - not enough inventory across all matching batches

  None of these are retryable: they describe caller input or inventory state.
  Store I/O failures are wrapped with %w and surfaced as they are.

USAGE:
  if errors.Is(err, kitchen.ErrInsufficientStock) {
      var short *kitchen.InsufficientStockError
      errors.As(err, &short)
      fmt.Println(short.Ingredient, short.Shortfall)
  }
*/
package kitchen

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDishNotFound is returned when no dish matches the requested name.
	ErrDishNotFound = errors.New("dish not found")

	// ErrNoIngredients is returned when a dish exists but has an empty recipe.
	ErrNoIngredients = errors.New("dish has no ingredients")

	// ErrUnsupportedUnit is returned for unit symbols outside the conversion table.
	ErrUnsupportedUnit = errors.New("unsupported unit")

	// ErrUnitMismatch is returned when a recipe and a batch measure different dimensions.
	ErrUnitMismatch = errors.New("unit class mismatch")

	// ErrInsufficientStock is returned when matching batches cannot cover a requirement.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidDate is returned when a preparation date is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date format, use YYYY-MM-DD")

	// ErrInvalidServings is returned when servings is zero or negative.
	ErrInvalidServings = errors.New("servings must be greater than zero")

	// ErrBatchNotFound is returned by stores when a batch id does not exist.
	ErrBatchNotFound = errors.New("batch not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError reports a shortfall in the requirement's unit.
type InsufficientStockError struct {
	Ingredient string
	Required   decimal.Decimal
	Available  decimal.Decimal
	Shortfall  decimal.Decimal
	Unit       string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough %q in inventory: required %s %s, available %s %s, short by %s %s",
		e.Ingredient, e.Required, e.Unit, e.Available, e.Unit, e.Shortfall, e.Unit)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// UnsupportedUnitError names the offending unit and, once known, the ingredient.
type UnsupportedUnitError struct {
	Unit       string
	Ingredient string
}

func (e *UnsupportedUnitError) Error() string {
	if e.Ingredient == "" {
		return fmt.Sprintf("unsupported unit %q", e.Unit)
	}
	return fmt.Sprintf("unsupported unit %q for ingredient %q", e.Unit, e.Ingredient)
}

func (e *UnsupportedUnitError) Unwrap() error {
	return ErrUnsupportedUnit
}

// UnitMismatchError is returned when converting between unit classes.
type UnitMismatchError struct {
	Ingredient string
	From       string
	To         string
	FromClass  UnitClass
	ToClass    UnitClass
}

func (e *UnitMismatchError) Error() string {
	msg := fmt.Sprintf("cannot convert %s (%s) to %s (%s)", e.From, e.FromClass, e.To, e.ToClass)
	if e.Ingredient != "" {
		msg += fmt.Sprintf(" for ingredient %q", e.Ingredient)
	}
	return msg
}

func (e *UnitMismatchError) Unwrap() error {
	return ErrUnitMismatch
}

// withIngredient attaches the ingredient name to unit errors raised by the table.
func withIngredient(err error, ingredient string) error {
	var unsupported *UnsupportedUnitError
	if errors.As(err, &unsupported) && unsupported.Ingredient == "" {
		return &UnsupportedUnitError{Unit: unsupported.Unit, Ingredient: ingredient}
	}
	var mismatch *UnitMismatchError
	if errors.As(err, &mismatch) && mismatch.Ingredient == "" {
		m := *mismatch
		m.Ingredient = ingredient
		return &m
	}
	return err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input or stock state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrUnsupportedUnit) ||
		errors.Is(err, ErrUnitMismatch) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidServings) ||
		errors.Is(err, ErrNoIngredients)
}

// IsNotFound returns true if the error indicates a missing dish or batch.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDishNotFound) ||
		errors.Is(err, ErrBatchNotFound)
}
