package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"recipecost/internal/costing"
	"recipecost/internal/uom"
	"recipecost/models"
)

// LoadGraph reads every unit, ingredient and recipe into a costing graph.
func LoadGraph(ctx context.Context, db *gorm.DB) (*costing.Graph, error) {
	if db == nil {
		return nil, gorm.ErrInvalidDB
	}
	tx := db.WithContext(ctx)

	var units []models.UnitOfMeasure
	if err := tx.Find(&units).Error; err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	var ingredients []models.Ingredient
	if err := tx.Find(&ingredients).Error; err != nil {
		return nil, fmt.Errorf("load ingredients: %w", err)
	}
	var recipes []models.Recipe
	if err := tx.Preload("Lines", OrderedLines).Find(&recipes).Error; err != nil {
		return nil, fmt.Errorf("load recipes: %w", err)
	}

	graph := costing.NewGraph()
	for _, unit := range units {
		graph.AddUnit(uom.FromModel(unit))
	}
	for _, ingredient := range ingredients {
		graph.AddIngredient(costing.Ingredient{
			ID:     ingredient.ID,
			Name:   ingredient.Name,
			Price:  ingredient.Price,
			UnitID: ingredient.UnitID,
		})
	}
	for _, recipe := range recipes {
		graph.AddRecipe(RecipeNode(recipe))
	}
	return graph, nil
}

// OrderedLines sorts preloaded recipe lines by sequence, then id.
func OrderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("sequence asc, id asc")
}

func RecipeNode(recipe models.Recipe) costing.Recipe {
	lines := make([]costing.Line, 0, len(recipe.Lines))
	for _, line := range recipe.Lines {
		lines = append(lines, LineNode(line))
	}
	return costing.Recipe{
		ID:            recipe.ID,
		Name:          recipe.Name,
		Lines:         lines,
		LaborHours:    recipe.LaborHours,
		EnergyHours:   recipe.EnergyHours,
		PackagingCost: recipe.PackagingCost,
		ExtraCost:     recipe.ExtraCost,
		Portions:      recipe.Portions,
	}
}

func LineNode(line models.RecipeLine) costing.Line {
	return costing.Line{
		ID:       line.ID,
		Quantity: line.Quantity,
		UnitID:   line.UnitID,
		Target:   LineTarget(line),
	}
}

// LineTarget turns the stored kind and reference into a costing target.
func LineTarget(line models.RecipeLine) costing.Target {
	switch line.Kind {
	case models.LineIngredient:
		if line.IngredientID != nil {
			return costing.IngredientTarget{IngredientID: *line.IngredientID}
		}
	case models.LineSubRecipe:
		if line.SubRecipeID != nil {
			return costing.SubRecipeTarget{RecipeID: *line.SubRecipeID}
		}
	}
	return nil
}
