// Package costing derives recipe costs from ingredient prices, sub-recipe
// totals and the hourly labor and energy rates.
package costing

import (
	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places kept for rounded cost values.
const Precision int32 = 4

// Rates are the hourly labor and energy rates. The zero value means both are unset.
type Rates struct {
	Labor  decimal.Decimal
	Energy decimal.Decimal
}

func RatesFromFloat(labor, energy float64) Rates {
	return Rates{
		Labor:  decimal.NewFromFloat(labor),
		Energy: decimal.NewFromFloat(energy),
	}
}

// Inputs are the cost-relevant fields of a single recipe.
type Inputs struct {
	LineCosts     []decimal.Decimal
	LaborHours    decimal.Decimal
	EnergyHours   decimal.Decimal
	PackagingCost decimal.Decimal
	ExtraCost     decimal.Decimal
	Portions      int
}

type Breakdown struct {
	IngredientCost        decimal.Decimal `json:"ingredient_cost"`
	LaborCost             decimal.Decimal `json:"labor_cost"`
	EnergyCost            decimal.Decimal `json:"energy_cost"`
	TotalCost             decimal.Decimal `json:"total_cost"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
	CostPerPortion        decimal.Decimal `json:"cost_per_portion"`
	CostPerPortionNoLabor decimal.Decimal `json:"cost_per_portion_no_labor"`
}

// Compute derives the cached cost fields of a recipe. Totals are plain
// decimal sums, so total and grand total identities hold exactly.
func Compute(in Inputs, rates Rates) Breakdown {
	ingredient := decimal.Zero
	for _, cost := range in.LineCosts {
		ingredient = ingredient.Add(cost)
	}

	labor := in.LaborHours.Mul(rates.Labor).Round(Precision)
	energy := in.EnergyHours.Mul(rates.Energy).Round(Precision)
	total := ingredient.Add(energy).Add(in.PackagingCost).Add(in.ExtraCost)
	grand := total.Add(labor)

	out := Breakdown{
		IngredientCost:        ingredient,
		LaborCost:             labor,
		EnergyCost:            energy,
		TotalCost:             total,
		GrandTotal:            grand,
		CostPerPortion:        decimal.Zero,
		CostPerPortionNoLabor: decimal.Zero,
	}
	if in.Portions != 0 {
		portions := decimal.NewFromInt(int64(in.Portions))
		out.CostPerPortion = grand.Div(portions).Round(Precision)
		out.CostPerPortionNoLabor = total.Div(portions).Round(Precision)
	}
	return out
}
