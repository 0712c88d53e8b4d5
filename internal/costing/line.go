package costing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"recipecost/internal/uom"
)

// Target is what a recipe line consumes: an IngredientTarget or a SubRecipeTarget.
type Target interface {
	isTarget()
}

type IngredientTarget struct {
	IngredientID uint
}

type SubRecipeTarget struct {
	RecipeID uint
}

func (IngredientTarget) isTarget() {}
func (SubRecipeTarget) isTarget()  {}

type Line struct {
	ID       uint
	Quantity decimal.Decimal
	UnitID   uint
	// Target is nil when the referenced record no longer exists.
	Target Target
}

type Ingredient struct {
	ID     uint
	Name   string
	Price  decimal.Decimal
	UnitID uint
}

// Warning records a line whose quantity could not be converted and was
// costed as if it were already in the ingredient's unit.
type Warning struct {
	RecipeID uint   `json:"recipe_id"`
	LineID   uint   `json:"line_id"`
	Message  string `json:"message"`
}

// IngredientLineCost prices qty of an ingredient given in unit, converting
// into the ingredient's unit first. The returned warning is non-nil when
// the conversion failed and the raw quantity was used.
func IngredientLineCost(qty decimal.Decimal, unit *uom.Unit, ingredient Ingredient, ingredientUnit *uom.Unit) (decimal.Decimal, *Warning) {
	if qty.IsZero() {
		return decimal.Zero, nil
	}

	converted := qty
	var warning *Warning
	switch {
	case unit == nil || ingredientUnit == nil:
		warning = &Warning{Message: fmt.Sprintf("unit missing for %s, quantity used as is", ingredient.Name)}
	default:
		value, err := uom.Convert(qty, *unit, *ingredientUnit)
		if err != nil {
			warning = &Warning{Message: fmt.Sprintf("%s: %v, quantity used as is", ingredient.Name, err)}
		} else {
			converted = value
		}
	}
	return converted.Mul(ingredient.Price).Round(Precision), warning
}

// SubRecipeLineCost is qty times the sub-recipe's total cost; the line unit is ignored.
func SubRecipeLineCost(qty, subTotal decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return decimal.Zero
	}
	return qty.Mul(subTotal).Round(Precision)
}
