package costing

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"recipecost/internal/uom"
)

var (
	ErrCycle         = errors.New("costing: circular sub-recipe reference")
	ErrUnknownRecipe = errors.New("costing: recipe not found")
)

// CycleError carries the recipe ids that form the loop, first id repeated at the end.
type CycleError struct {
	Path []uint
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Path))
	for _, id := range e.Path {
		parts = append(parts, fmt.Sprint(id))
	}
	return ErrCycle.Error() + ": " + strings.Join(parts, " -> ")
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}

type Recipe struct {
	ID            uint
	Name          string
	Lines         []Line
	LaborHours    decimal.Decimal
	EnergyHours   decimal.Decimal
	PackagingCost decimal.Decimal
	ExtraCost     decimal.Decimal
	Portions      int
}

// Graph is the recipe containment graph together with the ingredients and
// units its lines refer to.
type Graph struct {
	recipes     map[uint]*Recipe
	ingredients map[uint]Ingredient
	units       map[uint]uom.Unit
}

func NewGraph() *Graph {
	return &Graph{
		recipes:     make(map[uint]*Recipe),
		ingredients: make(map[uint]Ingredient),
		units:       make(map[uint]uom.Unit),
	}
}

func (g *Graph) AddUnit(u uom.Unit) {
	g.units[u.ID] = u
}

func (g *Graph) AddIngredient(i Ingredient) {
	g.ingredients[i.ID] = i
}

func (g *Graph) AddRecipe(r Recipe) {
	recipe := r
	g.recipes[r.ID] = &recipe
}

// SetLines replaces the lines of recipe id, used to test a pending edit.
func (g *Graph) SetLines(id uint, lines []Line) bool {
	recipe, ok := g.recipes[id]
	if !ok {
		return false
	}
	recipe.Lines = lines
	return true
}

func (g *Graph) Recipe(id uint) (Recipe, bool) {
	recipe, ok := g.recipes[id]
	if !ok {
		return Recipe{}, false
	}
	return *recipe, true
}

// RecipeIDs returns every recipe id in ascending order.
func (g *Graph) RecipeIDs() []uint {
	ids := make([]uint, 0, len(g.recipes))
	for id := range g.recipes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (g *Graph) children(id uint) []uint {
	recipe, ok := g.recipes[id]
	if !ok {
		return nil
	}
	var out []uint
	for _, line := range recipe.Lines {
		if target, ok := line.Target.(SubRecipeTarget); ok {
			out = append(out, target.RecipeID)
		}
	}
	return out
}

// Users returns the recipes with at least one line on the ingredient.
func (g *Graph) Users(ingredientID uint) []uint {
	var out []uint
	for _, id := range g.RecipeIDs() {
		for _, line := range g.recipes[id].Lines {
			if target, ok := line.Target.(IngredientTarget); ok && target.IngredientID == ingredientID {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// Dependents returns every recipe that contains one of ids, directly or
// through other sub-recipes. The ids themselves are not included.
func (g *Graph) Dependents(ids ...uint) []uint {
	parents := make(map[uint][]uint)
	for _, id := range g.RecipeIDs() {
		for _, child := range g.children(id) {
			parents[child] = append(parents[child], id)
		}
	}

	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	queue := slices.Clone(ids)
	var out []uint
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, parent := range parents[current] {
			if seen[parent] {
				continue
			}
			seen[parent] = true
			out = append(out, parent)
			queue = append(queue, parent)
		}
	}
	slices.Sort(out)
	return out
}

// Reaches reports whether recipe from contains recipe to, directly or transitively.
func (g *Graph) Reaches(from, to uint) bool {
	seen := make(map[uint]bool)
	stack := []uint{from}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range g.children(current) {
			if child == to {
				return true
			}
			if !seen[child] {
				seen[child] = true
				stack = append(stack, child)
			}
		}
	}
	return false
}

// TopologicalOrder lists recipes so that every sub-recipe precedes the
// recipes containing it.
func (g *Graph) TopologicalOrder() ([]uint, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[uint]int, len(g.recipes))
	order := make([]uint, 0, len(g.recipes))
	var path []uint

	var visit func(id uint) error
	visit = func(id uint) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return &CycleError{Path: cyclePath(path, id)}
		}
		state[id] = visiting
		path = append(path, id)
		for _, child := range g.children(id) {
			if _, ok := g.recipes[child]; !ok {
				continue
			}
			if err := visit(child); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		order = append(order, id)
		return nil
	}

	for _, id := range g.RecipeIDs() {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func cyclePath(stack []uint, id uint) []uint {
	start := slices.Index(stack, id)
	if start < 0 {
		return []uint{id, id}
	}
	path := slices.Clone(stack[start:])
	return append(path, id)
}

// Result is the evaluated cost of one recipe.
type Result struct {
	RecipeID uint
	Breakdown
	LineCosts map[uint]decimal.Decimal
	Warnings  []Warning
}

// Evaluator computes recipe results with the given rates, memoising each
// recipe so shared sub-recipes are evaluated once.
type Evaluator struct {
	graph   *Graph
	rates   Rates
	memo    map[uint]*Result
	stack   []uint
	onStack map[uint]bool
}

func (g *Graph) Evaluator(rates Rates) *Evaluator {
	return &Evaluator{
		graph:   g,
		rates:   rates,
		memo:    make(map[uint]*Result),
		onStack: make(map[uint]bool),
	}
}

// Evaluate returns the cost of recipe id, evaluating its sub-recipes first.
// A recipe that reaches itself yields a *CycleError.
func (e *Evaluator) Evaluate(id uint) (*Result, error) {
	if result, ok := e.memo[id]; ok {
		return result, nil
	}
	if e.onStack[id] {
		return nil, &CycleError{Path: cyclePath(e.stack, id)}
	}
	recipe, ok := e.graph.recipes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRecipe, id)
	}

	e.onStack[id] = true
	e.stack = append(e.stack, id)
	defer func() {
		e.onStack[id] = false
		e.stack = e.stack[:len(e.stack)-1]
	}()

	result := &Result{
		RecipeID:  id,
		LineCosts: make(map[uint]decimal.Decimal, len(recipe.Lines)),
	}
	costs := make([]decimal.Decimal, 0, len(recipe.Lines))
	for _, line := range recipe.Lines {
		cost, warning, err := e.lineCost(line)
		if err != nil {
			return nil, err
		}
		if warning != nil {
			warning.RecipeID = id
			warning.LineID = line.ID
			result.Warnings = append(result.Warnings, *warning)
		}
		result.LineCosts[line.ID] = cost
		costs = append(costs, cost)
	}

	result.Breakdown = Compute(Inputs{
		LineCosts:     costs,
		LaborHours:    recipe.LaborHours,
		EnergyHours:   recipe.EnergyHours,
		PackagingCost: recipe.PackagingCost,
		ExtraCost:     recipe.ExtraCost,
		Portions:      recipe.Portions,
	}, e.rates)

	e.memo[id] = result
	return result, nil
}

// Results lists every recipe evaluated so far, sub-recipes included,
// ordered by id.
func (e *Evaluator) Results() []*Result {
	results := make([]*Result, 0, len(e.memo))
	for _, result := range e.memo {
		results = append(results, result)
	}
	slices.SortFunc(results, func(a, b *Result) int { return cmp.Compare(a.RecipeID, b.RecipeID) })
	return results
}

func (e *Evaluator) lineCost(line Line) (decimal.Decimal, *Warning, error) {
	switch target := line.Target.(type) {
	case IngredientTarget:
		ingredient, ok := e.graph.ingredients[target.IngredientID]
		if !ok {
			return decimal.Zero, &Warning{Message: fmt.Sprintf("ingredient %d not found", target.IngredientID)}, nil
		}
		cost, warning := IngredientLineCost(line.Quantity, e.unit(line.UnitID), ingredient, e.unit(ingredient.UnitID))
		return cost, warning, nil
	case SubRecipeTarget:
		// Evaluated even for a zero quantity so loops are always reported.
		sub, err := e.Evaluate(target.RecipeID)
		if errors.Is(err, ErrUnknownRecipe) {
			return decimal.Zero, &Warning{Message: fmt.Sprintf("sub-recipe %d not found", target.RecipeID)}, nil
		}
		if err != nil {
			return decimal.Zero, nil, err
		}
		return SubRecipeLineCost(line.Quantity, sub.TotalCost), nil, nil
	default:
		return decimal.Zero, nil, nil
	}
}

func (e *Evaluator) unit(id uint) *uom.Unit {
	unit, ok := e.graph.units[id]
	if !ok {
		return nil
	}
	return &unit
}
