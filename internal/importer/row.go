package importer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"recipecost/internal/uom"
	"recipecost/models"
)

var dateLayouts = []string{
	"2006-1-2",
	"2/1/2006",
	"1/2/2006",
	"2-1-2006",
	"2006/1/2",
}

func (im *Importer) importRow(ctx context.Context, c Catalog, r row) (Outcome, uint, error) {
	code := r.value("code")
	name := r.value("name")
	categoryName := r.value("category")
	supplierName := r.value("supplier")
	dateValue := r.value("date")

	priceValue := "0"
	if value, ok := r.lookup("price"); ok {
		priceValue = strings.TrimSpace(value)
	}
	unitValue, ok := r.lookup("uom")
	if !ok {
		unitValue = r.values["unit"]
	}
	unitValue = strings.TrimSpace(unitValue)

	if name == "" {
		return "", 0, errors.New("Missing name")
	}
	if unitValue == "" {
		return "", 0, errors.New("Missing unit of measure")
	}

	price, err := parsePrice(priceValue)
	if err != nil {
		return "", 0, fmt.Errorf("Invalid price '%s'", priceValue)
	}

	unit, err := resolveUnit(ctx, c, unitValue)
	if errors.Is(err, ErrNotFound) {
		return "", 0, fmt.Errorf("Unknown UoM '%s'", unitValue)
	}
	if err != nil {
		return "", 0, err
	}

	var category *models.IngredientCategory
	if categoryName != "" {
		if category, err = ingredientCategory(ctx, c, categoryName); err != nil {
			return "", 0, err
		}
	}

	var supplier *models.Partner
	if supplierName != "" {
		if supplier, err = partner(ctx, c, supplierName); err != nil {
			return "", 0, err
		}
	}

	priceDate, ok := parseDate(dateValue)
	if !ok {
		priceDate = im.today()
	}

	existing, err := matchIngredient(ctx, c, code, name)
	if err != nil {
		return "", 0, err
	}

	if existing != nil {
		updates := map[string]any{
			"name":       name,
			"price":      price,
			"unit_id":    unit.ID,
			"price_date": priceDate,
		}
		if code != "" {
			updates["code"] = code
		}
		if category != nil {
			updates["category_id"] = category.ID
		}
		if supplier != nil {
			updates["supplier_id"] = supplier.ID
		}
		if err := c.UpdateIngredient(ctx, existing.ID, updates); err != nil {
			return "", 0, err
		}
		return OutcomeUpdated, existing.ID, nil
	}

	ingredient := &models.Ingredient{
		Name:      name,
		Price:     price,
		UnitID:    unit.ID,
		PriceDate: priceDate,
		Active:    true,
	}
	if code != "" {
		ingredient.Code = &code
	}
	if category != nil {
		ingredient.CategoryID = &category.ID
	}
	if supplier != nil {
		ingredient.SupplierID = &supplier.ID
	}
	if err := c.CreateIngredient(ctx, ingredient); err != nil {
		return "", 0, err
	}
	return OutcomeCreated, ingredient.ID, nil
}

// parsePrice accepts a comma as decimal separator.
func parsePrice(value string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(value, ",", ".")
	parsed, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return decimal.Zero, err
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return decimal.Zero, fmt.Errorf("price %q is not finite", value)
	}
	if exact, err := decimal.NewFromString(normalized); err == nil {
		return exact, nil
	}
	return decimal.NewFromFloat(parsed), nil
}

// parseDate tries each layout in order; the first that parses wins.
func parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// resolveUnit tries the synonym table first and then an exact,
// case-insensitive unit name.
func resolveUnit(ctx context.Context, c Catalog, value string) (*models.UnitOfMeasure, error) {
	if ref, ok := uom.Synonym(value); ok {
		unit, err := c.UnitByRef(ctx, ref)
		if err == nil {
			return unit, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return c.UnitByName(ctx, value)
}

func ingredientCategory(ctx context.Context, c Catalog, name string) (*models.IngredientCategory, error) {
	category, err := c.IngredientCategoryByName(ctx, name)
	if err == nil {
		return category, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	category = &models.IngredientCategory{Name: name}
	if err := c.CreateIngredientCategory(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func partner(ctx context.Context, c Catalog, name string) (*models.Partner, error) {
	found, err := c.PartnerByName(ctx, name)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	found = &models.Partner{Name: name, SupplierRank: 1}
	if err := c.CreatePartner(ctx, found); err != nil {
		return nil, err
	}
	return found, nil
}

// matchIngredient prefers an exact code match over a name match.
func matchIngredient(ctx context.Context, c Catalog, code, name string) (*models.Ingredient, error) {
	if code != "" {
		found, err := c.IngredientByCode(ctx, code)
		if err == nil {
			return found, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	found, err := c.IngredientByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return found, err
}
