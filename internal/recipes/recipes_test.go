package recipes_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"recipecost/internal/costing"
	"recipecost/internal/db"
	"recipecost/internal/recipes"
	"recipecost/internal/seed"
	"recipecost/internal/store"
	"recipecost/internal/uom"
	"recipecost/models"
)

type kitchen struct {
	db      *gorm.DB
	service *recipes.Service
	rec     *countingRecorder
	flour   models.Ingredient
	dough   models.Recipe
	pizza   models.Recipe
	product models.Product
}

type countingRecorder struct {
	recomputed map[string]int
	cycles     int
}

func (r *countingRecorder) RecipesRecomputed(trigger string, count int) {
	r.recomputed[trigger] += count
}

func (r *countingRecorder) CycleDetected() {
	r.cycles++
}

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func unit(t *testing.T, database *gorm.DB, ref string) models.UnitOfMeasure {
	t.Helper()
	var u models.UnitOfMeasure
	require.NoError(t, database.Where("ref = ?", ref).First(&u).Error)
	return u
}

// newKitchen seeds a pizza made of two dough balls, each 500 g of flour.
func newKitchen(t *testing.T) *kitchen {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database))
	require.NoError(t, seed.Apply(context.Background(), database))

	kg := unit(t, database, uom.RefKilogram)
	grams := unit(t, database, uom.RefGram)
	units := unit(t, database, uom.RefUnit)

	k := &kitchen{db: database, rec: &countingRecorder{recomputed: map[string]int{}}}
	k.flour = models.Ingredient{Name: "Flour", UnitID: kg.ID, Price: d("1.20"), PriceDate: time.Now(), Active: true}
	require.NoError(t, database.Create(&k.flour).Error)

	k.product = models.Product{Name: "Pizza Margherita", StandardPrice: decimal.Zero}
	require.NoError(t, database.Create(&k.product).Error)

	k.dough = models.Recipe{Name: "Dough", Portions: 1, Active: true}
	require.NoError(t, database.Create(&k.dough).Error)
	k.pizza = models.Recipe{Name: "Pizza", Portions: 4, Active: true, LaborHours: d("0.5"), ProductID: &k.product.ID}
	require.NoError(t, database.Create(&k.pizza).Error)

	require.NoError(t, database.Create(&models.RecipeLine{
		RecipeID: k.dough.ID, Sequence: 10, Kind: models.LineIngredient,
		IngredientID: &k.flour.ID, Quantity: d("500"), UnitID: grams.ID,
	}).Error)
	require.NoError(t, database.Create(&models.RecipeLine{
		RecipeID: k.pizza.ID, Sequence: 10, Kind: models.LineSubRecipe,
		SubRecipeID: &k.dough.ID, Quantity: d("2"), UnitID: units.ID,
	}).Error)

	rates := store.NewParameterRates(database, costing.RatesFromFloat(20, 0))
	k.service = recipes.NewService(database, rates, recipes.WithRecorder(k.rec))
	return k
}

func (k *kitchen) reload(t *testing.T, recipe models.Recipe) models.Recipe {
	t.Helper()
	var out models.Recipe
	require.NoError(t, k.db.Preload("Lines").First(&out, recipe.ID).Error)
	return out
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "%s = %s, want %s", field, got, want)
}

func TestRecomputeAllWritesCachedCosts(t *testing.T) {
	t.Parallel()
	k := newKitchen(t)
	ctx := context.Background()

	count, err := k.service.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, k.rec.recomputed["all"])

	dough := k.reload(t, k.dough)
	assertDecimal(t, "0.6", dough.IngredientCost, "dough ingredient cost")
	assertDecimal(t, "0.6", dough.TotalCost, "dough total")
	require.Len(t, dough.Lines, 1)
	assertDecimal(t, "0.6", dough.Lines[0].Cost, "dough line cost")

	pizza := k.reload(t, k.pizza)
	assertDecimal(t, "1.2", pizza.IngredientCost, "pizza ingredient cost")
	assertDecimal(t, "10", pizza.LaborCost, "pizza labor cost")
	assertDecimal(t, "1.2", pizza.TotalCost, "pizza total")
	assertDecimal(t, "11.2", pizza.GrandTotal, "pizza grand total")
	assertDecimal(t, "2.8", pizza.CostPerPortion, "pizza cost per portion")
	assertDecimal(t, "0.3", pizza.CostPerPortionNoLabor, "pizza cost per portion without labor")
}

func TestPriceChangePropagatesThroughSubRecipes(t *testing.T) {
	t.Parallel()
	k := newKitchen(t)
	ctx := context.Background()

	_, err := k.service.RecomputeAll(ctx)
	require.NoError(t, err)

	require.NoError(t, k.db.Model(&k.flour).Update("price", d("2")).Error)
	count, err := k.service.RecomputeForIngredients(ctx, k.flour.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assertDecimal(t, "1", k.reload(t, k.dough).TotalCost, "dough total")
	pizza := k.reload(t, k.pizza)
	assertDecimal(t, "2", pizza.TotalCost, "pizza total")
	assertDecimal(t, "3", pizza.CostPerPortion, "pizza cost per portion")
}

func TestRecomputeForUnusedIngredientWritesNothing(t *testing.T) {
	t.Parallel()
	k := newKitchen(t)

	count, err := k.service.RecomputeForIngredients(context.Background(), 9999)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecomputeRecipeIncludesDependents(t *testing.T) {
	t.Parallel()
	k := newKitchen(t)
	ctx := context.Background()

	result, err := k.service.RecomputeRecipe(ctx, k.dough.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, k.dough.ID, result.RecipeID)
	assertDecimal(t, "0.6", result.TotalCost, "dough total")
	assertDecimal(t, "1.2", k.reload(t, k.pizza).TotalCost, "pizza total")
	assert.Equal(t, 2, k.rec.recomputed["recipe"])

	_, err = k.service.RecomputeRecipe(ctx, 9999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRecomputeRecipeStoresSubRecipes(t *testing.T) {
	t.Parallel()
	k := newKitchen(t)
	ctx := context.Background()

	require.NoError(t, k.db.Model(&k.dough).Update("energy_hours", d("1")).Error)
	_, err := k.service.RecomputeAll(ctx)
	require.NoError(t, err)
	assertDecimal(t, "0.6", k.reload(t, k.dough).TotalCost, "dough total at no energy rate")

	rates := store.NewParameterRates(k.db, costing.Rates{})
	require.NoError(t, rates.SetRates(ctx, costing.RatesFromFloat(20, 2)))

	_, err = k.service.RecomputeRecipe(ctx, k.pizza.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, k.rec.recomputed["recipe"])

	dough := k.reload(t, k.dough)
	assertDecimal(t, "2.6", dough.TotalCost, "dough total")
	pizza := k.reload(t, k.pizza)
	require.Len(t, pizza.Lines, 1)
	assertDecimal(t, "5.2", pizza.Lines[0].Cost, "pizza dough line")
	assert.True(t, pizza.Lines[0].Cost.Equal(dough.TotalCost.Mul(d("2"))), "line cost matches stored sub-recipe total")
	assertDecimal(t, "5.2", pizza.TotalCost, "pizza total")
}

func TestRateChangeIsPickedUp(t *testing.T) {
	t.Parallel()
	k := newKitchen(t)
	ctx := context.Background()

	rates := store.NewParameterRates(k.db, costing.Rates{})
	require.NoError(t, rates.SetRates(ctx, costing.RatesFromFloat(30, 0)))

	result, err := k.service.Evaluate(ctx, k.pizza.ID)
	require.NoError(t, err)
	assertDecimal(t, "15", result.LaborCost, "labor cost")

	// Evaluate does not write.
	assert.True(t, k.reload(t, k.pizza).LaborCost.IsZero())
}

func TestUnitMismatchIsReportedAsWarning(t *testing.T) {
	t.Parallel()
	k := newKitchen(t)
	ctx := context.Background()

	litres := unit(t, k.db, uom.RefLitre)
	require.NoError(t, k.db.Create(&models.RecipeLine{
		RecipeID: k.dough.ID, Sequence: 20, Kind: models.LineIngredient,
		IngredientID: &k.flour.ID, Quantity: d("0.25"), UnitID: litres.ID,
	}).Error)

	result, err := k.service.RecomputeRecipe(ctx, k.dough.ID)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, k.dough.ID, result.Warnings[0].RecipeID)
	// 0.6 for the flour line plus 0.25 L costed as 0.25 kg.
	assertDecimal(t, "0.9", result.TotalCost, "dough total")
}

func TestCycleIsRejected(t *testing.T) {
	t.Parallel()
	k := newKitchen(t)
	ctx := context.Background()

	err := k.service.CheckLine(ctx, k.dough.ID, costing.SubRecipeTarget{RecipeID: k.pizza.ID})
	assert.ErrorIs(t, err, recipes.ErrSelfReference)
	assert.ErrorIs(t, err, costing.ErrCycle)

	err = k.service.CheckLine(ctx, k.dough.ID, costing.SubRecipeTarget{RecipeID: k.dough.ID})
	assert.ErrorIs(t, err, recipes.ErrSelfReference)

	assert.NoError(t, k.service.CheckLine(ctx, k.pizza.ID, costing.SubRecipeTarget{RecipeID: k.dough.ID}))
	assert.NoError(t, k.service.CheckLine(ctx, k.dough.ID, costing.IngredientTarget{IngredientID: k.flour.ID}))

	// A loop written behind the service's back still fails evaluation.
	units := unit(t, k.db, uom.RefUnit)
	require.NoError(t, k.db.Create(&models.RecipeLine{
		RecipeID: k.dough.ID, Sequence: 20, Kind: models.LineSubRecipe,
		SubRecipeID: &k.pizza.ID, Quantity: d("1"), UnitID: units.ID,
	}).Error)

	_, err = k.service.RecomputeAll(ctx)
	assert.ErrorIs(t, err, costing.ErrCycle)
	assert.Equal(t, 1, k.rec.cycles)
	assert.True(t, k.reload(t, k.pizza).TotalCost.IsZero())
}

func TestUpdateProductCost(t *testing.T) {
	t.Parallel()
	k := newKitchen(t)
	ctx := context.Background()

	_, err := k.service.RecomputeAll(ctx)
	require.NoError(t, err)

	updated, err := k.service.UpdateProductCost(ctx, k.pizza.ID, k.dough.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	var product models.Product
	require.NoError(t, k.db.First(&product, k.product.ID).Error)
	assertDecimal(t, "2.8", product.StandardPrice, "standard price")

	updated, err = k.service.UpdateProductCost(ctx, k.dough.ID)
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestInUse(t *testing.T) {
	t.Parallel()
	k := newKitchen(t)
	ctx := context.Background()

	assert.ErrorIs(t, k.service.InUse(ctx, costing.IngredientTarget{IngredientID: k.flour.ID}), recipes.ErrInUse)
	assert.ErrorIs(t, k.service.InUse(ctx, costing.SubRecipeTarget{RecipeID: k.dough.ID}), recipes.ErrInUse)
	assert.NoError(t, k.service.InUse(ctx, costing.SubRecipeTarget{RecipeID: k.pizza.ID}))
}
