package mock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"recipecost/internal/costing"
	appdb "recipecost/internal/db"
	applog "recipecost/internal/log"
	"recipecost/internal/recipes"
	"recipecost/internal/seed"
	"recipecost/internal/store"
	"recipecost/internal/uom"
	"recipecost/models"
)

// Rates are the hourly rates stored in the mock database.
var Rates = costing.RatesFromFloat(18, 0.35)

const flourCode = "DRY-001"

// New returns an in-memory sqlite database seeded with a small pizzeria kitchen.
// Calling it again while the database is open returns the same data.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	db, err := gorm.Open(sqlite.Open("file:recipecost-mock?mode=memory&cache=shared"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	if err := appdb.AutoMigrate(db); err != nil {
		return nil, err
	}
	if err := seed.Apply(ctx, db); err != nil {
		return nil, err
	}

	var existing models.Ingredient
	err = db.WithContext(ctx).Where("code = ?", flourCode).First(&existing).Error
	switch {
	case err == nil:
		applog.Debug(ctx, "mock database already seeded")
		return db, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return seedKitchen(ctx, tx)
	}); err != nil {
		return nil, fmt.Errorf("seed mock kitchen: %w", err)
	}

	rates := store.NewParameterRates(db, Rates)
	if err := rates.SetRates(ctx, Rates); err != nil {
		return nil, err
	}
	service := recipes.NewService(db, rates)
	if _, err := service.RecomputeAll(ctx); err != nil {
		return nil, err
	}
	if _, err := service.UpdateProductCost(ctx); err != nil {
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return db, nil
}

func seedKitchen(ctx context.Context, tx *gorm.DB) error {
	applog.Debug(ctx, "seeding mock kitchen")

	units := map[string]uint{}
	for _, ref := range []string{uom.RefKilogram, uom.RefGram, uom.RefLitre, uom.RefMillilitre, uom.RefUnit, uom.RefDozen} {
		var unit models.UnitOfMeasure
		if err := tx.Where("ref = ?", ref).First(&unit).Error; err != nil {
			return fmt.Errorf("unit %s: %w", ref, err)
		}
		units[ref] = unit.ID
	}

	mill := models.Partner{Name: "Molino Rossi", Email: "orders@molinorossi.example", SupplierRank: 1}
	dairy := models.Partner{Name: "Caseificio Bianchi", SupplierRank: 1}
	for _, partner := range []*models.Partner{&mill, &dairy} {
		if err := tx.Create(partner).Error; err != nil {
			return err
		}
	}

	dryGoods := models.IngredientCategory{Name: "Dry Goods"}
	fresh := models.IngredientCategory{Name: "Fresh"}
	for _, category := range []*models.IngredientCategory{&dryGoods, &fresh} {
		if err := tx.Create(category).Error; err != nil {
			return err
		}
	}
	cheese := models.IngredientCategory{Name: "Cheese", ParentID: &fresh.ID}
	if err := tx.Create(&cheese).Error; err != nil {
		return err
	}

	priceDate := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	ingredients := []*models.Ingredient{
		{Name: "Flour 00", Code: ptr(flourCode), CategoryID: &dryGoods.ID, UnitID: units[uom.RefKilogram], Price: decimal.RequireFromString("1.10"), SupplierID: &mill.ID},
		{Name: "Olive Oil", Code: ptr("DRY-002"), CategoryID: &dryGoods.ID, UnitID: units[uom.RefLitre], Price: decimal.RequireFromString("9.80")},
		{Name: "Tomato Passata", Code: ptr("DRY-003"), CategoryID: &dryGoods.ID, UnitID: units[uom.RefLitre], Price: decimal.RequireFromString("2.20")},
		{Name: "Mozzarella", Code: ptr("FRS-001"), CategoryID: &cheese.ID, UnitID: units[uom.RefKilogram], Price: decimal.RequireFromString("8.50"), SupplierID: &dairy.ID},
		{Name: "Eggs", Code: ptr("FRS-002"), CategoryID: &fresh.ID, UnitID: units[uom.RefDozen], Price: decimal.RequireFromString("3.60")},
	}
	for _, ingredient := range ingredients {
		ingredient.PriceDate = priceDate
		ingredient.Active = true
		if err := tx.Create(ingredient).Error; err != nil {
			return err
		}
	}
	flour, oil, passata, mozzarella := ingredients[0], ingredients[1], ingredients[2], ingredients[3]

	product := models.Product{Name: "Pizza Margherita", DefaultCode: "PZ-MARG"}
	if err := tx.Create(&product).Error; err != nil {
		return err
	}

	dough := models.Recipe{
		Name:         "Pizza Dough",
		Code:         ptr("BASE-DOUGH"),
		Portions:     1,
		Active:       true,
		Instructions: "Mix, knead for ten minutes and proof for 24 hours.",
		LaborHours:   decimal.RequireFromString("0.25"),
	}
	if err := tx.Create(&dough).Error; err != nil {
		return err
	}
	margherita := models.Recipe{
		Name:          "Pizza Margherita",
		Code:          ptr("PZ-MARG"),
		ProductID:     &product.ID,
		Portions:      1,
		Active:        true,
		PackagingCost: decimal.RequireFromString("0.35"),
		LaborHours:    decimal.RequireFromString("0.2"),
		EnergyHours:   decimal.RequireFromString("0.15"),
	}
	if err := tx.Create(&margherita).Error; err != nil {
		return err
	}

	lines := []models.RecipeLine{
		ingredientLine(dough.ID, 10, flour.ID, "0.5", units[uom.RefKilogram]),
		ingredientLine(dough.ID, 20, oil.ID, "20", units[uom.RefMillilitre]),
		{RecipeID: margherita.ID, Sequence: 10, Kind: models.LineSubRecipe, SubRecipeID: &dough.ID, Quantity: decimal.NewFromInt(1), UnitID: units[uom.RefUnit]},
		ingredientLine(margherita.ID, 20, mozzarella.ID, "125", units[uom.RefGram]),
		ingredientLine(margherita.ID, 30, passata.ID, "80", units[uom.RefMillilitre]),
	}
	for i := range lines {
		if err := lines[i].Validate(); err != nil {
			return err
		}
		if err := tx.Create(&lines[i]).Error; err != nil {
			return err
		}
	}

	applog.Debug(ctx, "mock kitchen seeded", "ingredients", len(ingredients), "lines", len(lines))
	return nil
}

func ingredientLine(recipeID uint, sequence int, ingredientID uint, qty string, unitID uint) models.RecipeLine {
	return models.RecipeLine{
		RecipeID:     recipeID,
		Sequence:     sequence,
		Kind:         models.LineIngredient,
		IngredientID: &ingredientID,
		Quantity:     decimal.RequireFromString(qty),
		UnitID:       unitID,
	}
}

func ptr(value string) *string {
	return &value
}
