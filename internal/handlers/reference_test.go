package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"recipecost/models"
)

func TestUnitResourceListsSeededUnits(t *testing.T) {
	withTestServices(t)

	var units []unitResponse
	decodeBody(t, sendJSON(t, UnitResource, http.MethodGet, "/app/api/units", nil), &units)

	byRef := make(map[string]unitResponse, len(units))
	for _, unit := range units {
		byRef[unit.Ref] = unit
	}
	for ref, name := range map[string]string{"kilogram": "kg", "gram": "g", "litre": "L", "unit": "Units", "dozen": "Dozens"} {
		unit, ok := byRef[ref]
		if !ok {
			t.Fatalf("expected unit %s to be listed", ref)
		}
		if unit.Name != name {
			t.Fatalf("expected unit %s to be named %s, got %s", ref, name, unit.Name)
		}
	}
	assertDecimal(t, "12", byRef["dozen"].Ratio, "dozen ratio")

	w := sendJSON(t, UnitResource, http.MethodPost, "/app/api/units", map[string]any{"name": "cup"})
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 creating unit, got %d", w.Code)
	}
}

func createTestCategory(t *testing.T, name string, parentID *uint) models.IngredientCategory {
	t.Helper()
	payload := map[string]any{"name": name}
	if parentID != nil {
		payload["parent_id"] = *parentID
	}
	w := sendJSON(t, IngredientCategoryResource, http.MethodPost, "/app/api/ingredient-categories", payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating category %s, got %d: %s", name, w.Code, w.Body.String())
	}
	var category models.IngredientCategory
	decodeBody(t, w, &category)
	return category
}

func TestIngredientCategoriesRenderCompleteName(t *testing.T) {
	db := withTestServices(t)

	dairy := createTestCategory(t, "Dairy", nil)
	cheese := createTestCategory(t, "Cheese", &dairy.ID)
	mozzarella := createTestIngredient(t, db, "Mozzarella", "", "9.00")
	db.Model(&models.Ingredient{}).Where("id = ?", mozzarella.ID).Update("category_id", cheese.ID)

	var listed []categoryResponse
	decodeBody(t, sendJSON(t, IngredientCategoryResource, http.MethodGet, "/app/api/ingredient-categories", nil), &listed)
	if len(listed) != 2 {
		t.Fatalf("expected two categories, got %+v", listed)
	}
	if listed[0].CompleteName != "Dairy" || listed[1].CompleteName != "Dairy / Cheese" {
		t.Fatalf("unexpected complete names %q and %q", listed[0].CompleteName, listed[1].CompleteName)
	}
	if listed[1].Count != 1 {
		t.Fatalf("expected one ingredient in cheese, got %d", listed[1].Count)
	}

	missing := uint(9999)
	w := sendJSON(t, IngredientCategoryResource, http.MethodPost, "/app/api/ingredient-categories", map[string]any{"name": "Orphan", "parent_id": missing})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown parent, got %d", w.Code)
	}
}

func TestIngredientCategoryDeleteCascades(t *testing.T) {
	db := withTestServices(t)

	dairy := createTestCategory(t, "Dairy", nil)
	cheese := createTestCategory(t, "Cheese", &dairy.ID)
	createTestCategory(t, "Produce", nil)
	mozzarella := createTestIngredient(t, db, "Mozzarella", "", "9.00")
	db.Model(&models.Ingredient{}).Where("id = ?", mozzarella.ID).Update("category_id", cheese.ID)

	w := sendJSON(t, IngredientCategoryResource, http.MethodDelete, fmt.Sprintf("/app/api/ingredient-categories/%d", dairy.ID), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting category, got %d: %s", w.Code, w.Body.String())
	}

	var listed []categoryResponse
	decodeBody(t, sendJSON(t, IngredientCategoryResource, http.MethodGet, "/app/api/ingredient-categories", nil), &listed)
	if len(listed) != 1 || listed[0].Name != "Produce" {
		t.Fatalf("expected only produce to remain, got %+v", listed)
	}

	var ingredient models.Ingredient
	db.First(&ingredient, mozzarella.ID)
	if ingredient.CategoryID != nil {
		t.Fatalf("expected mozzarella to lose its category, got %d", *ingredient.CategoryID)
	}

	w = sendJSON(t, IngredientCategoryResource, http.MethodDelete, fmt.Sprintf("/app/api/ingredient-categories/%d", dairy.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting removed category, got %d", w.Code)
	}
}

func TestPartnerResourceFiltersSuppliers(t *testing.T) {
	withTestServices(t)

	for _, payload := range []map[string]any{
		{"name": "Mill Co", "supplier_rank": 1, "email": "orders@mill.example"},
		{"name": "Walk-in Customer"},
	} {
		w := sendJSON(t, PartnerResource, http.MethodPost, "/app/api/partners", payload)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201 creating partner, got %d: %s", w.Code, w.Body.String())
		}
	}
	w := sendJSON(t, PartnerResource, http.MethodPost, "/app/api/partners", map[string]any{"name": "Bad", "email": "not-an-email"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid email, got %d", w.Code)
	}

	var suppliers []models.Partner
	decodeBody(t, sendJSON(t, PartnerResource, http.MethodGet, "/app/api/partners?supplier=1", nil), &suppliers)
	if len(suppliers) != 1 || suppliers[0].Name != "Mill Co" {
		t.Fatalf("expected only the mill, got %+v", suppliers)
	}
}

func TestProductResourceCreatesProducts(t *testing.T) {
	withTestServices(t)

	w := sendJSON(t, ProductResource, http.MethodPost, "/app/api/products", map[string]any{"name": "Pizza Margherita", "standard_price": "-1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative price, got %d", w.Code)
	}
	w = sendJSON(t, ProductResource, http.MethodPost, "/app/api/products", map[string]any{"name": "Pizza Margherita", "default_code": "PM"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating product, got %d: %s", w.Code, w.Body.String())
	}

	var products []models.Product
	decodeBody(t, sendJSON(t, ProductResource, http.MethodGet, "/app/api/products", nil), &products)
	if len(products) != 1 || products[0].DefaultCode != "PM" {
		t.Fatalf("unexpected products %+v", products)
	}
}
