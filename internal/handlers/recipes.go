package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"recipecost/internal/costing"
	applog "recipecost/internal/log"
	"recipecost/internal/store"
	"recipecost/models"
)

type recipeSummary struct {
	ID                    uint            `json:"id"`
	Name                  string          `json:"name"`
	Code                  *string         `json:"code,omitempty"`
	CategoryID            *uint           `json:"category_id,omitempty"`
	ProductID             *uint           `json:"product_id,omitempty"`
	Portions              int             `json:"portions"`
	Active                bool            `json:"active"`
	Description           string          `json:"description"`
	Instructions          string          `json:"instructions"`
	PackagingCost         decimal.Decimal `json:"packaging_cost"`
	ExtraCost             decimal.Decimal `json:"extra_cost"`
	LaborHours            decimal.Decimal `json:"labor_hours"`
	EnergyHours           decimal.Decimal `json:"energy_hours"`
	IngredientCost        decimal.Decimal `json:"ingredient_cost"`
	LaborCost             decimal.Decimal `json:"labor_cost"`
	EnergyCost            decimal.Decimal `json:"energy_cost"`
	TotalCost             decimal.Decimal `json:"total_cost"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
	CostPerPortion        decimal.Decimal `json:"cost_per_portion"`
	CostPerPortionNoLabor decimal.Decimal `json:"cost_per_portion_no_labor"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

type recipeDetail struct {
	recipeSummary
	Lines    []recipeLineResponse `json:"lines"`
	Warnings []costing.Warning    `json:"warnings"`
}

type recipeRequest struct {
	Name          string          `json:"name" validate:"required"`
	Code          *string         `json:"code"`
	CategoryID    *uint           `json:"category_id"`
	ProductID     *uint           `json:"product_id"`
	Portions      *int            `json:"portions" validate:"omitempty,gte=0"`
	Description   string          `json:"description"`
	Instructions  string          `json:"instructions"`
	Active        *bool           `json:"active"`
	PackagingCost decimal.Decimal `json:"packaging_cost" validate:"gte=0"`
	ExtraCost     decimal.Decimal `json:"extra_cost" validate:"gte=0"`
	LaborHours    decimal.Decimal `json:"labor_hours" validate:"gte=0"`
	EnergyHours   decimal.Decimal `json:"energy_hours" validate:"gte=0"`
}

// RecipeResource handles recipe CRUD plus the recompute and product cost actions.
func RecipeResource(w http.ResponseWriter, r *http.Request) {
	if serviceUnavailable(w, r, "recipes") {
		return
	}

	segments := resourcePath(r, "/app/api/recipes")
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			listRecipes(w, r)
		case http.MethodPost:
			createRecipe(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	recipeID, ok := parseID(segments[0])
	if !ok || len(segments) > 2 {
		applog.Debug(r.Context(), "invalid recipe identifier", "path", r.URL.Path)
		http.NotFound(w, r)
		return
	}

	if len(segments) == 2 {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch segments[1] {
		case "recompute":
			recomputeRecipe(w, r, recipeID)
		case "update-product-cost":
			updateProductCost(w, r, recipeID)
		default:
			http.NotFound(w, r)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		showRecipe(w, r, recipeID)
	case http.MethodPut:
		updateRecipe(w, r, recipeID)
	case http.MethodDelete:
		deleteRecipe(w, r, recipeID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func listRecipes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := database.WithContext(ctx).Order("name asc, id asc")

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

	var recipes []models.Recipe
	if err := query.Find(&recipes).Error; err != nil {
		applog.Error(ctx, "failed to list recipes", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load recipes")
		return
	}

	responses := make([]recipeSummary, 0, len(recipes))
	for _, recipe := range recipes {
		responses = append(responses, summarizeRecipe(recipe))
	}
	writeJSON(w, http.StatusOK, responses)
}

func loadRecipe(db *gorm.DB, id uint) (*models.Recipe, error) {
	var recipe models.Recipe
	err := db.
		Preload("Lines", store.OrderedLines).
		Preload("Lines.Ingredient").
		Preload("Lines.SubRecipe").
		Preload("Lines.Unit").
		First(&recipe, id).Error
	if err != nil {
		return nil, err
	}
	return &recipe, nil
}

// writeRecipe answers with the stored recipe, its lines and the warnings of
// a fresh evaluation.
func writeRecipe(w http.ResponseWriter, r *http.Request, status int, recipeID uint) {
	ctx := r.Context()
	recipe, err := loadRecipe(database.WithContext(ctx), recipeID)
	if err != nil {
		writeServiceError(w, r, err, "unable to load recipe")
		return
	}

	detail := recipeDetail{
		recipeSummary: summarizeRecipe(*recipe),
		Lines:         make([]recipeLineResponse, 0, len(recipe.Lines)),
		Warnings:      []costing.Warning{},
	}
	for _, line := range recipe.Lines {
		detail.Lines = append(detail.Lines, projectRecipeLine(line))
	}
	if result, err := costService.Evaluate(ctx, recipeID); err != nil {
		applog.Warn(ctx, "recipe evaluation failed", "id", recipeID, "error", err)
	} else if len(result.Warnings) > 0 {
		detail.Warnings = result.Warnings
	}
	writeJSON(w, status, detail)
}

func showRecipe(w http.ResponseWriter, r *http.Request, recipeID uint) {
	writeRecipe(w, r, http.StatusOK, recipeID)
}

func createRecipe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, ok := decodeRecipe(w, r)
	if !ok {
		return
	}

	recipe := models.Recipe{
		Name:          strings.TrimSpace(payload.Name),
		Code:          trimmedPtr(payload.Code),
		CategoryID:    payload.CategoryID,
		ProductID:     payload.ProductID,
		Portions:      1,
		Description:   strings.TrimSpace(payload.Description),
		Instructions:  strings.TrimSpace(payload.Instructions),
		Active:        payload.Active == nil || *payload.Active,
		PackagingCost: payload.PackagingCost,
		ExtraCost:     payload.ExtraCost,
		LaborHours:    payload.LaborHours,
		EnergyHours:   payload.EnergyHours,
	}
	if payload.Portions != nil {
		recipe.Portions = *payload.Portions
	}

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&recipe).Error; err != nil {
			return err
		}
		costs, _ := withCosting(tx)
		_, err := costs.RecomputeRecipe(ctx, recipe.ID)
		return err
	})
	if err != nil {
		writeServiceError(w, r, err, "unable to create recipe")
		return
	}
	writeRecipe(w, r, http.StatusCreated, recipe.ID)
}

func updateRecipe(w http.ResponseWriter, r *http.Request, recipeID uint) {
	ctx := r.Context()
	payload, ok := decodeRecipe(w, r)
	if !ok {
		return
	}

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Recipe
		if err := tx.First(&existing, recipeID).Error; err != nil {
			return err
		}
		updates := map[string]any{
			"name":           strings.TrimSpace(payload.Name),
			"code":           trimmedPtr(payload.Code),
			"category_id":    payload.CategoryID,
			"product_id":     payload.ProductID,
			"description":    strings.TrimSpace(payload.Description),
			"instructions":   strings.TrimSpace(payload.Instructions),
			"packaging_cost": payload.PackagingCost,
			"extra_cost":     payload.ExtraCost,
			"labor_hours":    payload.LaborHours,
			"energy_hours":   payload.EnergyHours,
		}
		if payload.Portions != nil {
			updates["portions"] = *payload.Portions
		}
		if payload.Active != nil {
			updates["active"] = *payload.Active
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}
		costs, _ := withCosting(tx)
		_, err := costs.RecomputeRecipe(ctx, recipeID)
		return err
	})
	if err != nil {
		writeServiceError(w, r, err, "unable to update recipe")
		return
	}
	writeRecipe(w, r, http.StatusOK, recipeID)
}

func decodeRecipe(w http.ResponseWriter, r *http.Request) (recipeRequest, bool) {
	ctx := r.Context()
	var payload recipeRequest
	if err := decodePayload(r, &payload); err != nil {
		applog.Debug(ctx, "invalid recipe payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return payload, false
	}
	if strings.TrimSpace(payload.Name) == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return payload, false
	}

	db := database.WithContext(ctx)
	for _, check := range []struct {
		field string
		model any
		id    *uint
	}{
		{"category_id", &models.RecipeCategory{}, payload.CategoryID},
		{"product_id", &models.Product{}, payload.ProductID},
	} {
		if check.id == nil {
			continue
		}
		var count int64
		if err := db.Model(check.model).Where("id = ?", *check.id).Count(&count).Error; err != nil {
			writeServiceError(w, r, err, "unable to validate recipe")
			return payload, false
		}
		if count == 0 {
			writeJSONError(w, http.StatusBadRequest, check.field+" not found")
			return payload, false
		}
	}
	return payload, true
}

// deleteRecipe removes the recipe and its lines. Recipes used as a
// sub-recipe elsewhere are refused.
func deleteRecipe(w http.ResponseWriter, r *http.Request, recipeID uint) {
	ctx := r.Context()
	if err := costService.InUse(ctx, costing.SubRecipeTarget{RecipeID: recipeID}); err != nil {
		applog.Debug(ctx, "recipe delete refused", "id", recipeID, "error", err)
		writeServiceError(w, r, err, "unable to delete recipe")
		return
	}

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("recipe_id = ?", recipeID).Delete(&models.RecipeLine{}).Error; err != nil {
			return err
		}
		res := tx.Unscoped().Delete(&models.Recipe{}, recipeID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err, "unable to delete recipe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recomputeResponse struct {
	RecipeID uint `json:"recipe_id"`
	costing.Breakdown
	LineCosts map[uint]decimal.Decimal `json:"line_costs"`
	Warnings  []costing.Warning        `json:"warnings"`
}

func recomputeRecipe(w http.ResponseWriter, r *http.Request, recipeID uint) {
	result, err := costService.RecomputeRecipe(r.Context(), recipeID)
	if err != nil {
		writeServiceError(w, r, err, "unable to recompute recipe")
		return
	}
	warnings := result.Warnings
	if warnings == nil {
		warnings = []costing.Warning{}
	}
	writeJSON(w, http.StatusOK, recomputeResponse{
		RecipeID:  result.RecipeID,
		Breakdown: result.Breakdown,
		LineCosts: result.LineCosts,
		Warnings:  warnings,
	})
}

func updateProductCost(w http.ResponseWriter, r *http.Request, recipeID uint) {
	ctx := r.Context()
	var recipe models.Recipe
	if err := database.WithContext(ctx).First(&recipe, recipeID).Error; err != nil {
		writeServiceError(w, r, err, "unable to load recipe")
		return
	}
	if recipe.ProductID == nil {
		writeJSONError(w, http.StatusBadRequest, "recipe has no linked product")
		return
	}

	updated, err := costService.UpdateProductCost(ctx, recipeID)
	if err != nil {
		writeServiceError(w, r, err, "unable to update product cost")
		return
	}
	if updated == 0 {
		writeJSONError(w, http.StatusNotFound, "linked product not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id":     *recipe.ProductID,
		"standard_price": recipe.CostPerPortion,
	})
}

func summarizeRecipe(recipe models.Recipe) recipeSummary {
	return recipeSummary{
		ID:                    recipe.ID,
		Name:                  recipe.Name,
		Code:                  recipe.Code,
		CategoryID:            recipe.CategoryID,
		ProductID:             recipe.ProductID,
		Portions:              recipe.Portions,
		Active:                recipe.Active,
		Description:           recipe.Description,
		Instructions:          recipe.Instructions,
		PackagingCost:         recipe.PackagingCost,
		ExtraCost:             recipe.ExtraCost,
		LaborHours:            recipe.LaborHours,
		EnergyHours:           recipe.EnergyHours,
		IngredientCost:        recipe.IngredientCost,
		LaborCost:             recipe.LaborCost,
		EnergyCost:            recipe.EnergyCost,
		TotalCost:             recipe.TotalCost,
		GrandTotal:            recipe.GrandTotal,
		CostPerPortion:        recipe.CostPerPortion,
		CostPerPortionNoLabor: recipe.CostPerPortionNoLabor,
		UpdatedAt:             recipe.UpdatedAt,
	}
}
