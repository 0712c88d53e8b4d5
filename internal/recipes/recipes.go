// Package recipes keeps the cached recipe costs in step with their inputs.
//
// Every trigger loads the recipe graph, evaluates the affected recipes with
// the current rates and writes the derived fields back inside one
// transaction. Recipes that contain an affected recipe, directly or through
// further sub-recipes, are recomputed with it.
package recipes

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"recipecost/internal/costing"
	applog "recipecost/internal/log"
	"recipecost/internal/store"
	"recipecost/models"
)

var (
	ErrInUse         = errors.New("recipes: record is still used by a recipe line")
	ErrSelfReference = errors.New("recipes: a recipe cannot contain itself")
)

// RateProvider supplies the hourly rates used for every evaluation.
type RateProvider interface {
	Rates(ctx context.Context) (costing.Rates, error)
}

// Recorder receives recompute counts; it is satisfied by internal/metrics.
type Recorder interface {
	RecipesRecomputed(trigger string, count int)
	CycleDetected()
}

type nopRecorder struct{}

func (nopRecorder) RecipesRecomputed(string, int) {}
func (nopRecorder) CycleDetected()                {}

type Service struct {
	db       *gorm.DB
	rates    RateProvider
	recorder Recorder
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func NewService(db *gorm.DB, rates RateProvider, opts ...Option) *Service {
	s := &Service{db: db, rates: rates, recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx returns a copy of the service that runs on tx, so a caller can
// write a record and recompute its dependents atomically. A nil rates keeps
// the current provider.
func (s *Service) WithTx(tx *gorm.DB, rates RateProvider) *Service {
	clone := *s
	clone.db = tx
	if rates != nil {
		clone.rates = rates
	}
	return &clone
}

// Evaluate computes a recipe's costs without writing them.
func (s *Service) Evaluate(ctx context.Context, recipeID uint) (*costing.Result, error) {
	if s.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	graph, err := store.LoadGraph(ctx, s.db)
	if err != nil {
		return nil, err
	}
	rates, err := s.rates.Rates(ctx)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, graph.Evaluator(rates), recipeID)
}

// RecomputeRecipe refreshes one recipe, the sub-recipes it uses and every
// recipe that contains it.
func (s *Service) RecomputeRecipe(ctx context.Context, recipeID uint) (*costing.Result, error) {
	var result *costing.Result
	err := s.run(ctx, "recipe", func(graph *costing.Graph) ([]uint, error) {
		if _, ok := graph.Recipe(recipeID); !ok {
			return nil, fmt.Errorf("recipe %d: %w", recipeID, gorm.ErrRecordNotFound)
		}
		return append([]uint{recipeID}, graph.Dependents(recipeID)...), nil
	}, func(id uint, r *costing.Result) {
		if id == recipeID {
			result = r
		}
	})
	return result, err
}

// RecomputeForIngredients refreshes the recipes using any of the
// ingredients, plus their dependents. It returns the number of recipes written.
func (s *Service) RecomputeForIngredients(ctx context.Context, ingredientIDs ...uint) (int, error) {
	count := 0
	err := s.run(ctx, "ingredient", func(graph *costing.Graph) ([]uint, error) {
		var direct []uint
		for _, id := range ingredientIDs {
			direct = append(direct, graph.Users(id)...)
		}
		slices.Sort(direct)
		direct = slices.Compact(direct)
		return append(direct, graph.Dependents(direct...)...), nil
	}, func(uint, *costing.Result) { count++ })
	return count, err
}

// RecomputeAll refreshes every recipe, children before parents.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	count := 0
	err := s.run(ctx, "all", func(graph *costing.Graph) ([]uint, error) {
		return graph.TopologicalOrder()
	}, func(uint, *costing.Result) { count++ })
	return count, err
}

func (s *Service) run(
	ctx context.Context,
	trigger string,
	affected func(*costing.Graph) ([]uint, error),
	visit func(uint, *costing.Result),
) error {
	if s.db == nil {
		return gorm.ErrInvalidDB
	}
	rates, err := s.rates.Rates(ctx)
	if err != nil {
		return err
	}

	written := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		graph, err := store.LoadGraph(ctx, tx)
		if err != nil {
			return err
		}
		ids, err := affected(graph)
		if err != nil {
			return err
		}

		evaluator := graph.Evaluator(rates)
		for _, id := range ids {
			result, err := s.evaluate(ctx, evaluator, id)
			if err != nil {
				return err
			}
			if err := persist(tx, result); err != nil {
				return err
			}
			visit(id, result)
			written++
		}
		// Sub-recipes reached while evaluating ids are stored too, so their
		// cached totals agree with the lines that used them.
		listed := make(map[uint]bool, len(ids))
		for _, id := range ids {
			listed[id] = true
		}
		for _, result := range evaluator.Results() {
			if listed[result.RecipeID] {
				continue
			}
			if err := persist(tx, result); err != nil {
				return err
			}
			visit(result.RecipeID, result)
			written++
		}
		return nil
	})
	if errors.Is(err, costing.ErrCycle) {
		s.recorder.CycleDetected()
	}
	if err != nil {
		applog.Error(ctx, "failed to recompute recipe costs", "trigger", trigger, "error", err)
		return err
	}
	s.recorder.RecipesRecomputed(trigger, written)
	applog.Debug(ctx, "recipe costs recomputed", "trigger", trigger, "recipes", written)
	return nil
}

func (s *Service) evaluate(ctx context.Context, evaluator *costing.Evaluator, id uint) (*costing.Result, error) {
	result, err := evaluator.Evaluate(id)
	if err != nil {
		return nil, err
	}
	for _, warning := range result.Warnings {
		applog.Warn(ctx, "recipe line costed without unit conversion",
			"recipe", warning.RecipeID,
			"line", warning.LineID,
			"reason", warning.Message,
		)
	}
	return result, nil
}

func persist(tx *gorm.DB, result *costing.Result) error {
	// UpdateColumn skips the line hooks; only the cached cost changes.
	for lineID, cost := range result.LineCosts {
		if err := tx.Model(&models.RecipeLine{}).Where("id = ?", lineID).UpdateColumn("cost", cost).Error; err != nil {
			return fmt.Errorf("store line %d cost: %w", lineID, err)
		}
	}
	b := result.Breakdown
	err := tx.Model(&models.Recipe{}).Where("id = ?", result.RecipeID).UpdateColumns(map[string]any{
		"ingredient_cost":           b.IngredientCost,
		"labor_cost":                b.LaborCost,
		"energy_cost":               b.EnergyCost,
		"total_cost":                b.TotalCost,
		"grand_total":               b.GrandTotal,
		"cost_per_portion":          b.CostPerPortion,
		"cost_per_portion_no_labor": b.CostPerPortionNoLabor,
	}).Error
	if err != nil {
		return fmt.Errorf("store recipe %d costs: %w", result.RecipeID, err)
	}
	return nil
}

// UpdateProductCost copies each recipe's cost per portion onto its linked
// product's standard price. Recipes without a product are skipped. With no
// ids every recipe that has a product is synced.
func (s *Service) UpdateProductCost(ctx context.Context, recipeIDs ...uint) (int, error) {
	if s.db == nil {
		return 0, gorm.ErrInvalidDB
	}
	updated := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("product_id IS NOT NULL")
		if len(recipeIDs) > 0 {
			query = query.Where("id IN ?", recipeIDs)
		}
		var recipes []models.Recipe
		if err := query.Find(&recipes).Error; err != nil {
			return fmt.Errorf("load recipes: %w", err)
		}
		for _, recipe := range recipes {
			res := tx.Model(&models.Product{}).Where("id = ?", *recipe.ProductID).Update("standard_price", recipe.CostPerPortion)
			if res.Error != nil {
				return fmt.Errorf("update product %d: %w", *recipe.ProductID, res.Error)
			}
			if res.RowsAffected > 0 {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		applog.Error(ctx, "failed to update product cost", "error", err)
		return 0, err
	}
	applog.Info(ctx, "product costs updated", "products", updated)
	return updated, nil
}

// CheckLine rejects a line target that would make recipeID contain itself.
func (s *Service) CheckLine(ctx context.Context, recipeID uint, target costing.Target) error {
	sub, ok := target.(costing.SubRecipeTarget)
	if !ok {
		return nil
	}
	if sub.RecipeID == recipeID {
		return ErrSelfReference
	}
	graph, err := store.LoadGraph(ctx, s.db)
	if err != nil {
		return err
	}
	if graph.Reaches(sub.RecipeID, recipeID) {
		return fmt.Errorf("%w: %w", ErrSelfReference, &costing.CycleError{Path: []uint{recipeID, sub.RecipeID, recipeID}})
	}
	return nil
}

// InUse reports whether any line references the ingredient or sub-recipe.
func (s *Service) InUse(ctx context.Context, target costing.Target) error {
	query := s.db.WithContext(ctx).Model(&models.RecipeLine{})
	switch t := target.(type) {
	case costing.IngredientTarget:
		query = query.Where("kind = ? AND ingredient_id = ?", models.LineIngredient, t.IngredientID)
	case costing.SubRecipeTarget:
		query = query.Where("kind = ? AND sub_recipe_id = ?", models.LineSubRecipe, t.RecipeID)
	default:
		return nil
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrInUse
	}
	return nil
}
