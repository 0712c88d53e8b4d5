package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	applog "recipecost/internal/log"
	"recipecost/internal/recipes"
	"recipecost/internal/store"
	"recipecost/internal/uom"
	"recipecost/models"
)

type recipeLineRequest struct {
	RecipeID     uint             `json:"recipe_id" validate:"required"`
	Sequence     *int             `json:"sequence"`
	Kind         models.LineKind  `json:"kind" validate:"omitempty,oneof=ingredient sub_recipe"`
	IngredientID *uint            `json:"ingredient_id"`
	SubRecipeID  *uint            `json:"sub_recipe_id"`
	Quantity     *decimal.Decimal `json:"quantity"`
	UnitID       *uint            `json:"unit_id"`
}

type lineTargetSummary struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type recipeLineResponse struct {
	ID           uint               `json:"id"`
	RecipeID     uint               `json:"recipe_id"`
	Sequence     int                `json:"sequence"`
	Kind         models.LineKind    `json:"kind"`
	IngredientID *uint              `json:"ingredient_id,omitempty"`
	SubRecipeID  *uint              `json:"sub_recipe_id,omitempty"`
	Ingredient   *lineTargetSummary `json:"ingredient,omitempty"`
	SubRecipe    *lineTargetSummary `json:"sub_recipe,omitempty"`
	Quantity     decimal.Decimal    `json:"quantity"`
	UnitID       uint               `json:"unit_id"`
	Unit         string             `json:"unit,omitempty"`
	Cost         decimal.Decimal    `json:"cost"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// RecipeLineResource handles CRUD interactions for recipe lines. Every write
// recomputes the owning recipe and the recipes containing it.
func RecipeLineResource(w http.ResponseWriter, r *http.Request) {
	if serviceUnavailable(w, r, "recipe lines") {
		return
	}

	segments := resourcePath(r, "/app/api/recipe-lines")
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			listRecipeLines(w, r)
		case http.MethodPost:
			createRecipeLine(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	lineID, ok := parseID(segments[0])
	if !ok || len(segments) > 1 {
		applog.Debug(r.Context(), "invalid recipe line identifier", "path", r.URL.Path)
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		showRecipeLine(w, r, lineID)
	case http.MethodPut:
		updateRecipeLine(w, r, lineID)
	case http.MethodDelete:
		deleteRecipeLine(w, r, lineID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func lineQuery(db *gorm.DB) *gorm.DB {
	return db.Preload("Ingredient").Preload("SubRecipe").Preload("Unit")
}

func listRecipeLines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := store.OrderedLines(lineQuery(database.WithContext(ctx)).Order("recipe_id asc"))
	if recipeID, ok := optionalID(r.URL.Query(), "recipe_id"); ok {
		query = query.Where("recipe_id = ?", recipeID)
	}

	var lines []models.RecipeLine
	if err := query.Find(&lines).Error; err != nil {
		applog.Error(ctx, "failed to list recipe lines", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load recipe lines")
		return
	}

	responses := make([]recipeLineResponse, 0, len(lines))
	for _, line := range lines {
		responses = append(responses, projectRecipeLine(line))
	}
	writeJSON(w, http.StatusOK, responses)
}

func loadRecipeLine(db *gorm.DB, id uint) (*models.RecipeLine, error) {
	var line models.RecipeLine
	if err := lineQuery(db).First(&line, id).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func showRecipeLine(w http.ResponseWriter, r *http.Request, lineID uint) {
	line, err := loadRecipeLine(database.WithContext(r.Context()), lineID)
	if err != nil {
		writeServiceError(w, r, err, "unable to load recipe line")
		return
	}
	writeJSON(w, http.StatusOK, projectRecipeLine(*line))
}

func createRecipeLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload recipeLineRequest
	if err := decodePayload(r, &payload); err != nil {
		applog.Debug(ctx, "invalid recipe line create payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	line := models.RecipeLine{RecipeID: payload.RecipeID, Sequence: models.DefaultLineSequence, Quantity: decimal.NewFromInt(1)}
	if err := applyLinePayload(database.WithContext(ctx), &line, payload); err != nil {
		applog.Debug(ctx, "recipe line validation failed", "error", err)
		writeLineError(w, r, err)
		return
	}
	if err := costService.CheckLine(ctx, line.RecipeID, store.LineTarget(line)); err != nil {
		writeServiceError(w, r, err, "unable to create recipe line")
		return
	}

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&line).Error; err != nil {
			return err
		}
		costs, _ := withCosting(tx)
		_, err := costs.RecomputeRecipe(ctx, line.RecipeID)
		return err
	})
	if err != nil {
		writeServiceError(w, r, err, "unable to create recipe line")
		return
	}

	created, err := loadRecipeLine(database.WithContext(ctx), line.ID)
	if err != nil {
		writeServiceError(w, r, err, "unable to load recipe line")
		return
	}
	writeJSON(w, http.StatusCreated, projectRecipeLine(*created))
}

func updateRecipeLine(w http.ResponseWriter, r *http.Request, lineID uint) {
	ctx := r.Context()
	var payload recipeLineRequest
	if err := decodePayload(r, &payload); err != nil {
		applog.Debug(ctx, "invalid recipe line update payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var existing models.RecipeLine
	if err := database.WithContext(ctx).First(&existing, lineID).Error; err != nil {
		writeServiceError(w, r, err, "unable to load recipe line")
		return
	}
	if payload.RecipeID != existing.RecipeID {
		writeJSONError(w, http.StatusBadRequest, "recipe_id cannot change")
		return
	}
	previousTarget := store.LineTarget(existing)
	if err := applyLinePayload(database.WithContext(ctx), &existing, payload); err != nil {
		applog.Debug(ctx, "recipe line update validation failed", "error", err, "id", lineID)
		writeLineError(w, r, err)
		return
	}
	if target := store.LineTarget(existing); target != previousTarget {
		if err := costService.CheckLine(ctx, existing.RecipeID, target); err != nil {
			writeServiceError(w, r, err, "unable to update recipe line")
			return
		}
	}

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		costs, _ := withCosting(tx)
		_, err := costs.RecomputeRecipe(ctx, existing.RecipeID)
		return err
	})
	if err != nil {
		writeServiceError(w, r, err, "unable to update recipe line")
		return
	}

	updated, err := loadRecipeLine(database.WithContext(ctx), lineID)
	if err != nil {
		writeServiceError(w, r, err, "unable to load recipe line")
		return
	}
	writeJSON(w, http.StatusOK, projectRecipeLine(*updated))
}

func deleteRecipeLine(w http.ResponseWriter, r *http.Request, lineID uint) {
	ctx := r.Context()
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var line models.RecipeLine
		if err := tx.First(&line, lineID).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Delete(&line).Error; err != nil {
			return err
		}
		costs, _ := withCosting(tx)
		_, err := costs.RecomputeRecipe(ctx, line.RecipeID)
		return err
	})
	if err != nil {
		writeServiceError(w, r, err, "unable to delete recipe line")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lineError is a problem with a line payload the client can fix.
type lineError string

func (e lineError) Error() string {
	return string(e)
}

// applyLinePayload copies the payload onto line. The kind is inferred from
// the id that is set when omitted, and a missing unit defaults to the
// ingredient's unit or to the "unit" unit for sub-recipes.
func applyLinePayload(db *gorm.DB, line *models.RecipeLine, payload recipeLineRequest) error {
	if !exists(db, &models.Recipe{}, payload.RecipeID) {
		return lineError("recipe_id not found")
	}

	kind := payload.Kind
	if kind == "" {
		switch {
		case payload.IngredientID != nil && payload.SubRecipeID == nil:
			kind = models.LineIngredient
		case payload.SubRecipeID != nil && payload.IngredientID == nil:
			kind = models.LineSubRecipe
		}
	}
	line.Kind = kind
	line.IngredientID = payload.IngredientID
	line.SubRecipeID = payload.SubRecipeID
	if kind == models.LineSubRecipe && line.SubRecipeID != nil && *line.SubRecipeID == line.RecipeID {
		return recipes.ErrSelfReference
	}
	if err := line.Validate(); err != nil {
		return err
	}

	if payload.Sequence != nil {
		line.Sequence = *payload.Sequence
	}
	if payload.Quantity != nil {
		if payload.Quantity.IsNegative() {
			return lineError("quantity must not be negative")
		}
		line.Quantity = *payload.Quantity
	}

	switch kind {
	case models.LineIngredient:
		var ingredient models.Ingredient
		if err := db.First(&ingredient, *line.IngredientID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return lineError("ingredient_id not found")
			}
			return err
		}
		line.UnitID = ingredient.UnitID
	case models.LineSubRecipe:
		if !exists(db, &models.Recipe{}, *line.SubRecipeID) {
			return lineError("sub_recipe_id not found")
		}
		var unit models.UnitOfMeasure
		if err := db.Where("ref = ?", uom.RefUnit).First(&unit).Error; err != nil {
			return err
		}
		line.UnitID = unit.ID
	}

	if payload.UnitID != nil {
		if !exists(db, &models.UnitOfMeasure{}, *payload.UnitID) {
			return lineError("unit_id not found")
		}
		line.UnitID = *payload.UnitID
	}
	return nil
}

func exists(db *gorm.DB, model any, id uint) bool {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

func writeLineError(w http.ResponseWriter, r *http.Request, err error) {
	var payloadErr lineError
	if errors.As(err, &payloadErr) || errors.Is(err, models.ErrInvalidLineTarget) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeServiceError(w, r, err, "unable to validate recipe line")
}

func projectRecipeLine(line models.RecipeLine) recipeLineResponse {
	response := recipeLineResponse{
		ID:           line.ID,
		RecipeID:     line.RecipeID,
		Sequence:     line.Sequence,
		Kind:         line.Kind,
		IngredientID: line.IngredientID,
		SubRecipeID:  line.SubRecipeID,
		Quantity:     line.Quantity,
		UnitID:       line.UnitID,
		Cost:         line.Cost,
		CreatedAt:    line.CreatedAt,
		UpdatedAt:    line.UpdatedAt,
	}
	if line.Ingredient != nil {
		response.Ingredient = &lineTargetSummary{ID: line.Ingredient.ID, Name: line.Ingredient.DisplayName()}
	}
	if line.SubRecipe != nil {
		response.SubRecipe = &lineTargetSummary{ID: line.SubRecipe.ID, Name: strings.TrimSpace(line.SubRecipe.Name)}
	}
	if line.Unit != nil {
		response.Unit = line.Unit.Name
	}
	return response
}
