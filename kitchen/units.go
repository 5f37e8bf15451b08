/*
units.go - Unit conversion table

PURPOSE:
  Maps kitchen unit symbols onto three canonical base units so quantities
  recorded in different units can be compared and subtracted:

    mass   -> grams       kg (x1000), g / gm / grams (x1)
    volume -> milliliters liter / litre / l (x1000), ml (x1)
    count  -> pieces      piece / pieces / pc / pcs / pack / packs (x1)

  Symbols are matched case-insensitively after trimming whitespace. Anything
  else is rejected with UnsupportedUnitError.

ROUND TRIP:
  FromBase(ToBase(x, u), u) == x for every recognized u. Factors are powers
  of ten and the arithmetic is decimal, so the round trip is exact.
*/
package kitchen

import (
	"strings"

	"github.com/shopspring/decimal"
)

// UnitClass is the dimension a unit measures.
type UnitClass string

const (
	ClassMass   UnitClass = "mass"
	ClassVolume UnitClass = "volume"
	ClassCount  UnitClass = "count"
)

// BaseUnit returns the canonical unit symbol of the class.
func (c UnitClass) BaseUnit() string {
	switch c {
	case ClassMass:
		return "g"
	case ClassVolume:
		return "ml"
	case ClassCount:
		return "pcs"
	default:
		return ""
	}
}

type unitDef struct {
	class  UnitClass
	factor decimal.Decimal // multiply by factor to reach the base unit
}

var thousand = decimal.NewFromInt(1000)

var unitTable = map[string]unitDef{
	"kg":    {class: ClassMass, factor: thousand},
	"g":     {class: ClassMass, factor: decimal.NewFromInt(1)},
	"gm":    {class: ClassMass, factor: decimal.NewFromInt(1)},
	"grams": {class: ClassMass, factor: decimal.NewFromInt(1)},

	"liter": {class: ClassVolume, factor: thousand},
	"litre": {class: ClassVolume, factor: thousand},
	"l":     {class: ClassVolume, factor: thousand},
	"ml":    {class: ClassVolume, factor: decimal.NewFromInt(1)},

	"piece":  {class: ClassCount, factor: decimal.NewFromInt(1)},
	"pieces": {class: ClassCount, factor: decimal.NewFromInt(1)},
	"pc":     {class: ClassCount, factor: decimal.NewFromInt(1)},
	"pcs":    {class: ClassCount, factor: decimal.NewFromInt(1)},
	"pack":   {class: ClassCount, factor: decimal.NewFromInt(1)},
	"packs":  {class: ClassCount, factor: decimal.NewFromInt(1)},
}

// NormalizeUnit trims and lower-cases a unit symbol.
func NormalizeUnit(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

func lookupUnit(unit string) (unitDef, bool) {
	def, ok := unitTable[NormalizeUnit(unit)]
	return def, ok
}

// ClassOf reports the class of a unit symbol.
func ClassOf(unit string) (UnitClass, error) {
	def, ok := lookupUnit(unit)
	if !ok {
		return "", &UnsupportedUnitError{Unit: unit}
	}
	return def.class, nil
}

// IsSupportedUnit reports whether the symbol is in the table.
func IsSupportedUnit(unit string) bool {
	_, ok := lookupUnit(unit)
	return ok
}

// ToBase converts a quantity in unit to its base unit.
func ToBase(value decimal.Decimal, unit string) (decimal.Decimal, UnitClass, error) {
	def, ok := lookupUnit(unit)
	if !ok {
		return decimal.Zero, "", &UnsupportedUnitError{Unit: unit}
	}
	return value.Mul(def.factor), def.class, nil
}

// FromBase converts a base-unit quantity back into unit.
func FromBase(base decimal.Decimal, unit string) (decimal.Decimal, error) {
	def, ok := lookupUnit(unit)
	if !ok {
		return decimal.Zero, &UnsupportedUnitError{Unit: unit}
	}
	return base.Div(def.factor), nil
}

// Convert moves a quantity between two units of the same class.
func Convert(q Quantity, to string) (Quantity, error) {
	base, fromClass, err := ToBase(q.Value, q.Unit)
	if err != nil {
		return Quantity{}, err
	}
	toClass, err := ClassOf(to)
	if err != nil {
		return Quantity{}, err
	}
	if fromClass != toClass {
		return Quantity{}, &UnitMismatchError{From: q.Unit, To: to, FromClass: fromClass, ToClass: toClass}
	}
	v, err := FromBase(base, to)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: v, Unit: to}, nil
}
