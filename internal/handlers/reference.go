package handlers

import (
	"net/http"
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	applog "recipecost/internal/log"
	"recipecost/models"
)

type unitResponse struct {
	ID         uint            `json:"id"`
	Ref        string          `json:"ref"`
	Name       string          `json:"name"`
	Kind       string          `json:"kind"`
	Ratio      decimal.Decimal `json:"ratio"`
	CategoryID uint            `json:"category_id"`
	Category   string          `json:"category"`
}

// UnitResource lists the unit of measure registry.
func UnitResource(w http.ResponseWriter, r *http.Request) {
	if serviceUnavailable(w, r, "units") {
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var units []models.UnitOfMeasure
	if err := database.WithContext(r.Context()).Preload("Category").Order("category_id asc, id asc").Find(&units).Error; err != nil {
		applog.Error(r.Context(), "failed to list units", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load units")
		return
	}

	responses := make([]unitResponse, 0, len(units))
	for _, unit := range units {
		response := unitResponse{
			ID:         unit.ID,
			Ref:        unit.Ref,
			Name:       unit.Name,
			Kind:       string(unit.Kind),
			Ratio:      unit.Ratio,
			CategoryID: unit.CategoryID,
		}
		if unit.Category != nil {
			response.Category = unit.Category.Name
		}
		responses = append(responses, response)
	}
	writeJSON(w, http.StatusOK, responses)
}

// categoryTree describes one of the two category registries.
type categoryTree struct {
	resource  string
	prefix    string
	model     func() any
	itemModel func() any
	create    func(name string, parentID *uint) any
}

var (
	ingredientCategories = categoryTree{
		resource:  "ingredient categories",
		prefix:    "/app/api/ingredient-categories",
		model:     func() any { return &models.IngredientCategory{} },
		itemModel: func() any { return &models.Ingredient{} },
		create: func(name string, parentID *uint) any {
			return &models.IngredientCategory{Name: name, ParentID: parentID}
		},
	}
	recipeCategories = categoryTree{
		resource:  "recipe categories",
		prefix:    "/app/api/recipe-categories",
		model:     func() any { return &models.RecipeCategory{} },
		itemModel: func() any { return &models.Recipe{} },
		create: func(name string, parentID *uint) any {
			return &models.RecipeCategory{Name: name, ParentID: parentID}
		},
	}
)

type categoryNode struct {
	ID       uint
	Name     string
	ParentID *uint
}

type categoryResponse struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	CompleteName string `json:"complete_name"`
	ParentID     *uint  `json:"parent_id,omitempty"`
	Count        int64  `json:"count"`
}

type categoryRequest struct {
	Name     string `json:"name" validate:"required"`
	ParentID *uint  `json:"parent_id"`
}

// IngredientCategoryResource serves the ingredient category tree.
func IngredientCategoryResource(w http.ResponseWriter, r *http.Request) {
	ingredientCategories.serve(w, r)
}

// RecipeCategoryResource serves the recipe category tree.
func RecipeCategoryResource(w http.ResponseWriter, r *http.Request) {
	recipeCategories.serve(w, r)
}

func (tree categoryTree) serve(w http.ResponseWriter, r *http.Request) {
	if serviceUnavailable(w, r, tree.resource) {
		return
	}

	segments := resourcePath(r, tree.prefix)
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			tree.list(w, r)
		case http.MethodPost:
			tree.add(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	id, ok := parseID(segments[0])
	if !ok || len(segments) > 1 {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tree.remove(w, r, id)
}

func (tree categoryTree) nodes(db *gorm.DB) ([]categoryNode, error) {
	var nodes []categoryNode
	err := db.Model(tree.model()).Select("id", "name", "parent_id").Order("name asc, id asc").Scan(&nodes).Error
	return nodes, err
}

func (tree categoryTree) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	db := database.WithContext(ctx)

	nodes, err := tree.nodes(db)
	if err != nil {
		applog.Error(ctx, "failed to list categories", "error", err, "resource", tree.resource)
		writeJSONError(w, http.StatusInternalServerError, "unable to load categories")
		return
	}

	var counts []struct {
		CategoryID uint
		Count      int64
	}
	if err := db.Model(tree.itemModel()).
		Select("category_id, count(*) as count").
		Where("category_id IS NOT NULL").
		Group("category_id").
		Scan(&counts).Error; err != nil {
		applog.Error(ctx, "failed to count category members", "error", err, "resource", tree.resource)
		writeJSONError(w, http.StatusInternalServerError, "unable to load categories")
		return
	}
	byCategory := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byCategory[c.CategoryID] = c.Count
	}

	responses := make([]categoryResponse, 0, len(nodes))
	for _, node := range nodes {
		responses = append(responses, categoryResponse{
			ID:           node.ID,
			Name:         node.Name,
			CompleteName: completeName(nodes, node),
			ParentID:     node.ParentID,
			Count:        byCategory[node.ID],
		})
	}
	sort.SliceStable(responses, func(i, j int) bool {
		return responses[i].CompleteName < responses[j].CompleteName
	})
	writeJSON(w, http.StatusOK, responses)
}

// completeName renders the path from the root, "Parent / Child".
func completeName(nodes []categoryNode, node categoryNode) string {
	byID := make(map[uint]categoryNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	parts := []string{node.Name}
	seen := map[uint]bool{node.ID: true}
	for current := node; current.ParentID != nil; {
		parent, ok := byID[*current.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		parts = append(parts, parent.Name)
		current = parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " / ")
}

func (tree categoryTree) add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload categoryRequest
	if err := decodePayload(r, &payload); err != nil {
		applog.Debug(ctx, "invalid category payload", "error", err, "resource", tree.resource)
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	db := database.WithContext(ctx)
	if payload.ParentID != nil {
		var count int64
		if err := db.Model(tree.model()).Where("id = ?", *payload.ParentID).Count(&count).Error; err != nil {
			writeServiceError(w, r, err, "unable to create category")
			return
		}
		if count == 0 {
			writeJSONError(w, http.StatusBadRequest, "parent_id not found")
			return
		}
	}

	record := tree.create(name, payload.ParentID)
	if err := db.Create(record).Error; err != nil {
		writeServiceError(w, r, err, "unable to create category")
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// remove deletes a category with all of its descendants. Members of the
// deleted categories are left without a category.
func (tree categoryTree) remove(w http.ResponseWriter, r *http.Request, id uint) {
	ctx := r.Context()
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nodes, err := tree.nodes(tx)
		if err != nil {
			return err
		}
		ids := descendants(nodes, id)
		if len(ids) == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Model(tree.itemModel()).Where("category_id IN ?", ids).Update("category_id", nil).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(tree.model()).Error
	})
	if err != nil {
		writeServiceError(w, r, err, "unable to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// descendants returns root and every category below it, or nil when root
// does not exist.
func descendants(nodes []categoryNode, root uint) []uint {
	children := make(map[uint][]uint)
	exists := false
	for _, node := range nodes {
		if node.ID == root {
			exists = true
		}
		if node.ParentID != nil {
			children[*node.ParentID] = append(children[*node.ParentID], node.ID)
		}
	}
	if !exists {
		return nil
	}
	out := []uint{root}
	for i := 0; i < len(out); i++ {
		for _, child := range children[out[i]] {
			if !slices.Contains(out, child) {
				out = append(out, child)
			}
		}
	}
	return out
}

type partnerRequest struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	SupplierRank int    `json:"supplier_rank" validate:"gte=0"`
}

// PartnerResource lists and creates supplier contacts. ?supplier=1 keeps
// only partners with a positive supplier rank.
func PartnerResource(w http.ResponseWriter, r *http.Request) {
	if serviceUnavailable(w, r, "partners") {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		query := database.WithContext(ctx).Order("name asc")
		if r.URL.Query().Get("supplier") != "" {
			query = query.Where("supplier_rank > ?", 0)
		}
		var partners []models.Partner
		if err := query.Find(&partners).Error; err != nil {
			applog.Error(ctx, "failed to list partners", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "unable to load partners")
			return
		}
		writeJSON(w, http.StatusOK, partners)
	case http.MethodPost:
		var payload partnerRequest
		if err := decodePayload(r, &payload); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		partner := models.Partner{
			Name:         strings.TrimSpace(payload.Name),
			Email:        strings.TrimSpace(payload.Email),
			SupplierRank: payload.SupplierRank,
		}
		if err := database.WithContext(ctx).Create(&partner).Error; err != nil {
			writeServiceError(w, r, err, "unable to create partner")
			return
		}
		writeJSON(w, http.StatusCreated, partner)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type productRequest struct {
	Name          string          `json:"name" validate:"required"`
	DefaultCode   string          `json:"default_code"`
	StandardPrice decimal.Decimal `json:"standard_price" validate:"gte=0"`
}

// ProductResource lists and creates the sellable products recipes link to.
func ProductResource(w http.ResponseWriter, r *http.Request) {
	if serviceUnavailable(w, r, "products") {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		var products []models.Product
		if err := database.WithContext(ctx).Order("name asc").Find(&products).Error; err != nil {
			applog.Error(ctx, "failed to list products", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "unable to load products")
			return
		}
		writeJSON(w, http.StatusOK, products)
	case http.MethodPost:
		var payload productRequest
		if err := decodePayload(r, &payload); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		product := models.Product{
			Name:          strings.TrimSpace(payload.Name),
			DefaultCode:   strings.TrimSpace(payload.DefaultCode),
			StandardPrice: payload.StandardPrice,
		}
		if err := database.WithContext(ctx).Create(&product).Error; err != nil {
			writeServiceError(w, r, err, "unable to create product")
			return
		}
		writeJSON(w, http.StatusCreated, product)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
