package costing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipecost/internal/uom"
)

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "%s = %s, want %s", field, got, want)
}

func TestComputeEmptyRecipeIsZero(t *testing.T) {
	out := Compute(Inputs{Portions: 1}, RatesFromFloat(25, 0.3))

	for name, value := range map[string]decimal.Decimal{
		"ingredient":   out.IngredientCost,
		"labor":        out.LaborCost,
		"energy":       out.EnergyCost,
		"total":        out.TotalCost,
		"grand":        out.GrandTotal,
		"per portion":  out.CostPerPortion,
		"no labor pp.": out.CostPerPortionNoLabor,
	} {
		assert.True(t, value.IsZero(), "%s = %s", name, value)
	}
}

func TestComputeZeroPortions(t *testing.T) {
	out := Compute(Inputs{
		LineCosts:     []decimal.Decimal{d("4.5")},
		PackagingCost: d("1"),
		Portions:      0,
	}, Rates{})

	assertDecimal(t, "5.5", out.GrandTotal, "grand total")
	assert.True(t, out.CostPerPortion.IsZero())
	assert.True(t, out.CostPerPortionNoLabor.IsZero())
}

func TestComputeNegativePortionsStillDivide(t *testing.T) {
	out := Compute(Inputs{
		LineCosts:     []decimal.Decimal{d("4.5")},
		PackagingCost: d("1"),
		LaborHours:    d("0.1"),
		Portions:      -2,
	}, RatesFromFloat(5, 0))

	assertDecimal(t, "6", out.GrandTotal, "grand total")
	assertDecimal(t, "-3", out.CostPerPortion, "cost per portion")
	assertDecimal(t, "-2.75", out.CostPerPortionNoLabor, "cost per portion without labor")
}

func TestComputeTotalsAreExact(t *testing.T) {
	tests := []struct {
		name   string
		inputs Inputs
		rates  Rates
	}{
		{
			name: "bread",
			inputs: Inputs{
				LineCosts:     []decimal.Decimal{d("0.6"), d("0.0125"), d("0.1")},
				LaborHours:    d("0.75"),
				EnergyHours:   d("1.2"),
				PackagingCost: d("0.35"),
				ExtraCost:     d("0.05"),
				Portions:      12,
			},
			rates: RatesFromFloat(18.5, 0.42),
		},
		{
			name: "thirds",
			inputs: Inputs{
				LineCosts:   []decimal.Decimal{d("1"), d("1"), d("1.0001")},
				LaborHours:  d("1"),
				EnergyHours: d("0.3333"),
				Portions:    3,
			},
			rates: RatesFromFloat(10, 0.1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Compute(tt.inputs, tt.rates)

			sum := decimal.Zero
			for _, c := range tt.inputs.LineCosts {
				sum = sum.Add(c)
			}
			assert.True(t, out.IngredientCost.Equal(sum))
			assert.True(t, out.TotalCost.Equal(out.IngredientCost.Add(out.EnergyCost).Add(tt.inputs.PackagingCost).Add(tt.inputs.ExtraCost)))
			assert.True(t, out.GrandTotal.Equal(out.TotalCost.Add(out.LaborCost)))
		})
	}
}

func TestComputeRatesAndPortions(t *testing.T) {
	out := Compute(Inputs{
		LineCosts:     []decimal.Decimal{d("6")},
		LaborHours:    d("2"),
		EnergyHours:   d("0.5"),
		PackagingCost: d("1.5"),
		ExtraCost:     d("0.5"),
		Portions:      4,
	}, RatesFromFloat(12, 2))

	assertDecimal(t, "24", out.LaborCost, "labor")
	assertDecimal(t, "1", out.EnergyCost, "energy")
	assertDecimal(t, "9", out.TotalCost, "total")
	assertDecimal(t, "33", out.GrandTotal, "grand")
	assertDecimal(t, "8.25", out.CostPerPortion, "per portion")
	assertDecimal(t, "2.25", out.CostPerPortionNoLabor, "per portion without labor")
}

var (
	kg    = uom.Unit{ID: 1, Ref: uom.RefKilogram, Name: "kg", CategoryID: 1, Ratio: d("1")}
	gram  = uom.Unit{ID: 2, Ref: uom.RefGram, Name: "g", CategoryID: 1, Ratio: d("0.001")}
	litre = uom.Unit{ID: 3, Ref: uom.RefLitre, Name: "L", CategoryID: 2, Ratio: d("1")}
	units = uom.Unit{ID: 5, Ref: uom.RefUnit, Name: "Units", CategoryID: 3, Ratio: d("1")}
)

func newGraph() *Graph {
	g := NewGraph()
	for _, u := range []uom.Unit{kg, gram, litre, units} {
		g.AddUnit(u)
	}
	g.AddIngredient(Ingredient{ID: 10, Name: "Flour", Price: d("1.20"), UnitID: kg.ID})
	g.AddIngredient(Ingredient{ID: 11, Name: "Butter", Price: d("9"), UnitID: kg.ID})
	return g
}

func TestIngredientLineConvertsUnits(t *testing.T) {
	g := newGraph()
	g.AddRecipe(Recipe{ID: 1, Portions: 1, Lines: []Line{
		{ID: 100, Quantity: d("500"), UnitID: gram.ID, Target: IngredientTarget{IngredientID: 10}},
	}})

	result, err := g.Evaluator(Rates{}).Evaluate(1)
	require.NoError(t, err)
	assertDecimal(t, "0.6", result.LineCosts[100], "line cost")
	assert.Empty(t, result.Warnings)
}

func TestIngredientLineFallsBackOnIncompatibleUnits(t *testing.T) {
	g := newGraph()
	g.AddRecipe(Recipe{ID: 1, Portions: 1, Lines: []Line{
		{ID: 100, Quantity: d("2"), UnitID: litre.ID, Target: IngredientTarget{IngredientID: 10}},
	}})

	result, err := g.Evaluator(Rates{}).Evaluate(1)
	require.NoError(t, err)
	assertDecimal(t, "2.4", result.LineCosts[100], "line cost")
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, uint(100), result.Warnings[0].LineID)
	assert.Contains(t, result.Warnings[0].Message, "Flour")
}

func TestZeroQuantityAndEmptyTargetCostNothing(t *testing.T) {
	g := newGraph()
	g.AddRecipe(Recipe{ID: 1, Portions: 1, Lines: []Line{
		{ID: 100, Quantity: d("0"), UnitID: kg.ID, Target: IngredientTarget{IngredientID: 10}},
		{ID: 101, Quantity: d("3"), UnitID: kg.ID},
	}})

	result, err := g.Evaluator(Rates{}).Evaluate(1)
	require.NoError(t, err)
	assert.True(t, result.LineCosts[100].IsZero())
	assert.True(t, result.LineCosts[101].IsZero())
	assert.True(t, result.IngredientCost.IsZero())
}

func TestSubRecipeLineScalesTotalCost(t *testing.T) {
	g := newGraph()
	g.AddRecipe(Recipe{ID: 1, Name: "Dough", Portions: 1, PackagingCost: d("0.5"), Lines: []Line{
		{ID: 100, Quantity: d("1"), UnitID: kg.ID, Target: IngredientTarget{IngredientID: 10}},
	}})
	g.AddRecipe(Recipe{ID: 2, Name: "Tart", Portions: 2, Lines: []Line{
		{ID: 200, Quantity: d("3"), UnitID: units.ID, Target: SubRecipeTarget{RecipeID: 1}},
		{ID: 201, Quantity: d("0.25"), UnitID: kg.ID, Target: IngredientTarget{IngredientID: 11}},
	}})

	result, err := g.Evaluator(Rates{}).Evaluate(2)
	require.NoError(t, err)
	assertDecimal(t, "5.1", result.LineCosts[200], "sub-recipe line")
	assertDecimal(t, "7.35", result.IngredientCost, "ingredient cost")

	// A new price on the sub-recipe's ingredient flows into the parent.
	g.AddIngredient(Ingredient{ID: 10, Name: "Flour", Price: d("2"), UnitID: kg.ID})
	result, err = g.Evaluator(Rates{}).Evaluate(2)
	require.NoError(t, err)
	assertDecimal(t, "7.5", result.LineCosts[200], "sub-recipe line")
	assertDecimal(t, "9.75", result.IngredientCost, "ingredient cost")
}

func TestEvaluateDetectsCycles(t *testing.T) {
	g := newGraph()
	g.AddRecipe(Recipe{ID: 1, Lines: []Line{{ID: 100, Quantity: d("1"), Target: SubRecipeTarget{RecipeID: 2}}}})
	g.AddRecipe(Recipe{ID: 2, Lines: []Line{{ID: 200, Quantity: d("0"), Target: SubRecipeTarget{RecipeID: 1}}}})

	_, err := g.Evaluator(Rates{}).Evaluate(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycle))

	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []uint{1, 2, 1}, cycle.Path)

	_, err = g.TopologicalOrder()
	assert.ErrorIs(t, err, ErrCycle)
}

func TestEvaluateMissingSubRecipeWarns(t *testing.T) {
	g := newGraph()
	g.AddRecipe(Recipe{ID: 1, Portions: 1, Lines: []Line{{ID: 100, Quantity: d("2"), Target: SubRecipeTarget{RecipeID: 99}}}})

	result, err := g.Evaluator(Rates{}).Evaluate(1)
	require.NoError(t, err)
	assert.True(t, result.IngredientCost.IsZero())
	require.Len(t, result.Warnings, 1)

	_, err = g.Evaluator(Rates{}).Evaluate(42)
	assert.ErrorIs(t, err, ErrUnknownRecipe)
}

func TestGraphRelations(t *testing.T) {
	g := newGraph()
	g.AddRecipe(Recipe{ID: 1, Lines: []Line{{ID: 100, Quantity: d("1"), Target: IngredientTarget{IngredientID: 10}}}})
	g.AddRecipe(Recipe{ID: 2, Lines: []Line{{ID: 200, Quantity: d("1"), Target: SubRecipeTarget{RecipeID: 1}}}})
	g.AddRecipe(Recipe{ID: 3, Lines: []Line{{ID: 300, Quantity: d("1"), Target: SubRecipeTarget{RecipeID: 2}}}})
	g.AddRecipe(Recipe{ID: 4, Lines: []Line{{ID: 400, Quantity: d("1"), Target: IngredientTarget{IngredientID: 11}}}})

	assert.Equal(t, []uint{1}, g.Users(10))
	assert.Equal(t, []uint{2, 3}, g.Dependents(1))
	assert.Empty(t, g.Dependents(4))
	assert.True(t, g.Reaches(3, 1))
	assert.False(t, g.Reaches(1, 3))

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	position := map[uint]int{}
	for i, id := range order {
		position[id] = i
	}
	assert.Less(t, position[1], position[2])
	assert.Less(t, position[2], position[3])
	assert.Len(t, order, 4)
}
