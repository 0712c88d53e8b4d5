package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"recipecost/internal/costing"
	applog "recipecost/internal/log"
	"recipecost/models"
)

type ingredientResponse struct {
	ID           uint            `json:"id"`
	Name         string          `json:"name"`
	DisplayName  string          `json:"display_name"`
	Code         *string         `json:"code,omitempty"`
	CategoryID   *uint           `json:"category_id,omitempty"`
	Category     string          `json:"category,omitempty"`
	UnitID       uint            `json:"unit_id"`
	Unit         string          `json:"unit,omitempty"`
	Price        decimal.Decimal `json:"price"`
	PriceDate    time.Time       `json:"price_date"`
	SupplierID   *uint           `json:"supplier_id,omitempty"`
	Supplier     string          `json:"supplier,omitempty"`
	Active       bool            `json:"active"`
	Notes        string          `json:"notes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Recalculated int             `json:"recalculated_recipes,omitempty"`
}

type ingredientRequest struct {
	Name       string          `json:"name" validate:"required"`
	Code       *string         `json:"code"`
	CategoryID *uint           `json:"category_id"`
	UnitID     uint            `json:"unit_id" validate:"required"`
	Price      decimal.Decimal `json:"price"`
	PriceDate  *time.Time      `json:"price_date"`
	SupplierID *uint           `json:"supplier_id"`
	Active     *bool           `json:"active"`
	Notes      string          `json:"notes"`
}

// IngredientResource handles REST-style interactions for ingredient records.
func IngredientResource(w http.ResponseWriter, r *http.Request) {
	if serviceUnavailable(w, r, "ingredients") {
		return
	}

	segments := resourcePath(r, "/app/api/ingredients")
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			listIngredients(w, r)
		case http.MethodPost:
			createIngredient(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	ingredientID, ok := parseID(segments[0])
	if !ok || len(segments) > 1 {
		applog.Debug(r.Context(), "invalid ingredient identifier", "path", r.URL.Path)
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		showIngredient(w, r, ingredientID)
	case http.MethodPut:
		updateIngredient(w, r, ingredientID)
	case http.MethodDelete:
		deleteIngredient(w, r, ingredientID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func ingredientQuery(db *gorm.DB) *gorm.DB {
	return db.Preload("Category").Preload("Unit").Preload("Supplier")
}

// listIngredients returns active ingredients by name. q matches code or
// name, and archived=1 includes archived ingredients.
func listIngredients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := ingredientQuery(database.WithContext(ctx)).Order("name asc, id asc")

	params := r.URL.Query()
	if params.Get("archived") == "" {
		query = query.Where("active = ?", true)
	}
	if term := strings.ToLower(strings.TrimSpace(params.Get("q"))); term != "" {
		like := "%" + term + "%"
		query = query.Where("lower(name) LIKE ? OR lower(code) LIKE ?", like, like)
	}
	if categoryID, ok := optionalID(params, "category_id"); ok {
		query = query.Where("category_id = ?", categoryID)
	}

	var ingredients []models.Ingredient
	if err := query.Find(&ingredients).Error; err != nil {
		applog.Error(ctx, "failed to list ingredients", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load ingredients")
		return
	}

	responses := make([]ingredientResponse, 0, len(ingredients))
	for _, ingredient := range ingredients {
		responses = append(responses, projectIngredient(ingredient))
	}
	writeJSON(w, http.StatusOK, responses)
}

func loadIngredient(db *gorm.DB, id uint) (*models.Ingredient, error) {
	var ingredient models.Ingredient
	if err := ingredientQuery(db).First(&ingredient, id).Error; err != nil {
		return nil, err
	}
	return &ingredient, nil
}

func showIngredient(w http.ResponseWriter, r *http.Request, ingredientID uint) {
	ingredient, err := loadIngredient(database.WithContext(r.Context()), ingredientID)
	if err != nil {
		writeServiceError(w, r, err, "unable to load ingredient")
		return
	}
	writeJSON(w, http.StatusOK, projectIngredient(*ingredient))
}

func createIngredient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload ingredientRequest
	if err := decodePayload(r, &payload); err != nil {
		applog.Debug(ctx, "invalid ingredient create payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := checkIngredientReferences(database.WithContext(ctx), payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ingredient := models.Ingredient{
		Name:       name,
		Code:       trimmedPtr(payload.Code),
		CategoryID: payload.CategoryID,
		UnitID:     payload.UnitID,
		Price:      payload.Price,
		PriceDate:  priceDate(payload.PriceDate),
		SupplierID: payload.SupplierID,
		Active:     payload.Active == nil || *payload.Active,
		Notes:      strings.TrimSpace(payload.Notes),
	}
	if err := database.WithContext(ctx).Create(&ingredient).Error; err != nil {
		applog.Error(ctx, "failed to create ingredient", "error", err)
		writeJSONError(w, http.StatusBadRequest, "unable to create ingredient")
		return
	}

	created, err := loadIngredient(database.WithContext(ctx), ingredient.ID)
	if err != nil {
		writeServiceError(w, r, err, "unable to load ingredient")
		return
	}
	writeJSON(w, http.StatusCreated, projectIngredient(*created))
}

// updateIngredient saves the ingredient and recomputes every recipe that
// uses it in the same transaction.
func updateIngredient(w http.ResponseWriter, r *http.Request, ingredientID uint) {
	ctx := r.Context()
	var payload ingredientRequest
	if err := decodePayload(r, &payload); err != nil {
		applog.Debug(ctx, "invalid ingredient update payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := checkIngredientReferences(database.WithContext(ctx), payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var recalculated int
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Ingredient
		if err := tx.First(&existing, ingredientID).Error; err != nil {
			return err
		}
		updates := map[string]any{
			"name":        name,
			"code":        trimmedPtr(payload.Code),
			"category_id": payload.CategoryID,
			"unit_id":     payload.UnitID,
			"price":       payload.Price,
			"supplier_id": payload.SupplierID,
			"notes":       strings.TrimSpace(payload.Notes),
		}
		if payload.PriceDate != nil {
			updates["price_date"] = priceDate(payload.PriceDate)
		}
		if payload.Active != nil {
			updates["active"] = *payload.Active
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}

		costs, _ := withCosting(tx)
		count, err := costs.RecomputeForIngredients(ctx, ingredientID)
		recalculated = count
		return err
	})
	if err != nil {
		writeServiceError(w, r, err, "unable to update ingredient")
		return
	}

	updated, err := loadIngredient(database.WithContext(ctx), ingredientID)
	if err != nil {
		writeServiceError(w, r, err, "unable to load ingredient")
		return
	}
	response := projectIngredient(*updated)
	response.Recalculated = recalculated
	writeJSON(w, http.StatusOK, response)
}

// deleteIngredient removes the row for good so its code can be reused.
// Ingredients still used by a recipe line are refused.
func deleteIngredient(w http.ResponseWriter, r *http.Request, ingredientID uint) {
	ctx := r.Context()
	if err := costService.InUse(ctx, costing.IngredientTarget{IngredientID: ingredientID}); err != nil {
		applog.Debug(ctx, "ingredient delete refused", "id", ingredientID, "error", err)
		writeServiceError(w, r, err, "unable to delete ingredient")
		return
	}

	res := database.WithContext(ctx).Unscoped().Delete(&models.Ingredient{}, ingredientID)
	if res.Error != nil {
		writeServiceError(w, r, res.Error, "unable to delete ingredient")
		return
	}
	if res.RowsAffected == 0 {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func checkIngredientReferences(db *gorm.DB, payload ingredientRequest) error {
	checks := []struct {
		field string
		model any
		id    *uint
	}{
		{"unit_id", &models.UnitOfMeasure{}, &payload.UnitID},
		{"category_id", &models.IngredientCategory{}, payload.CategoryID},
		{"supplier_id", &models.Partner{}, payload.SupplierID},
	}
	for _, check := range checks {
		if check.id == nil {
			continue
		}
		var count int64
		if err := db.Model(check.model).Where("id = ?", *check.id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errors.New(check.field + " not found")
		}
	}
	return nil
}

func priceDate(value *time.Time) time.Time {
	if value == nil || value.IsZero() {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	return value.UTC()
}

func projectIngredient(ingredient models.Ingredient) ingredientResponse {
	response := ingredientResponse{
		ID:          ingredient.ID,
		Name:        ingredient.Name,
		DisplayName: ingredient.DisplayName(),
		Code:        ingredient.Code,
		CategoryID:  ingredient.CategoryID,
		UnitID:      ingredient.UnitID,
		Price:       ingredient.Price,
		PriceDate:   ingredient.PriceDate,
		SupplierID:  ingredient.SupplierID,
		Active:      ingredient.Active,
		Notes:       ingredient.Notes,
		CreatedAt:   ingredient.CreatedAt,
		UpdatedAt:   ingredient.UpdatedAt,
	}
	if ingredient.Category != nil {
		response.Category = ingredient.Category.Name
	}
	if ingredient.Unit != nil {
		response.Unit = ingredient.Unit.Name
	}
	if ingredient.Supplier != nil {
		response.Supplier = ingredient.Supplier.Name
	}
	return response
}
