// Package store holds the gorm-backed registries used by the importer and
// the recompute service.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"recipecost/internal/importer"
	"recipecost/models"
)

// Store opens import transactions on a gorm database.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Transaction(ctx context.Context, fn func(importer.Catalog) error) error {
	if s.db == nil {
		return gorm.ErrInvalidDB
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Catalog{db: tx})
	})
}

// Catalog implements importer.Catalog inside a transaction.
type Catalog struct {
	db         *gorm.DB
	savepoints int
}

func notFound(err error, what, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %q", importer.ErrNotFound, what, key)
	}
	return err
}

func (c *Catalog) UnitByRef(ctx context.Context, ref string) (*models.UnitOfMeasure, error) {
	var unit models.UnitOfMeasure
	if err := c.db.WithContext(ctx).Where("ref = ?", ref).First(&unit).Error; err != nil {
		return nil, notFound(err, "unit", ref)
	}
	return &unit, nil
}

func (c *Catalog) UnitByName(ctx context.Context, name string) (*models.UnitOfMeasure, error) {
	var unit models.UnitOfMeasure
	if err := c.db.WithContext(ctx).Where("lower(name) = lower(?)", name).Order("id asc").First(&unit).Error; err != nil {
		return nil, notFound(err, "unit", name)
	}
	return &unit, nil
}

func (c *Catalog) IngredientCategoryByName(ctx context.Context, name string) (*models.IngredientCategory, error) {
	var category models.IngredientCategory
	if err := c.db.WithContext(ctx).Where("lower(name) = lower(?)", name).Order("id asc").First(&category).Error; err != nil {
		return nil, notFound(err, "ingredient category", name)
	}
	return &category, nil
}

func (c *Catalog) CreateIngredientCategory(ctx context.Context, category *models.IngredientCategory) error {
	if err := c.db.WithContext(ctx).Create(category).Error; err != nil {
		return fmt.Errorf("create ingredient category %q: %w", category.Name, err)
	}
	return nil
}

func (c *Catalog) PartnerByName(ctx context.Context, name string) (*models.Partner, error) {
	var partner models.Partner
	if err := c.db.WithContext(ctx).Where("lower(name) = lower(?)", name).Order("id asc").First(&partner).Error; err != nil {
		return nil, notFound(err, "partner", name)
	}
	return &partner, nil
}

func (c *Catalog) CreatePartner(ctx context.Context, partner *models.Partner) error {
	if err := c.db.WithContext(ctx).Create(partner).Error; err != nil {
		return fmt.Errorf("create partner %q: %w", partner.Name, err)
	}
	return nil
}

// IngredientByCode matches archived ingredients too, since codes are unique
// across every row.
func (c *Catalog) IngredientByCode(ctx context.Context, code string) (*models.Ingredient, error) {
	var ingredient models.Ingredient
	if err := c.db.WithContext(ctx).Where("code = ?", code).First(&ingredient).Error; err != nil {
		return nil, notFound(err, "ingredient", code)
	}
	return &ingredient, nil
}

func (c *Catalog) IngredientByName(ctx context.Context, name string) (*models.Ingredient, error) {
	var ingredient models.Ingredient
	if err := c.db.WithContext(ctx).
		Where("lower(name) = lower(?) AND active = ?", name, true).
		Order("id asc").
		First(&ingredient).Error; err != nil {
		return nil, notFound(err, "ingredient", name)
	}
	return &ingredient, nil
}

func (c *Catalog) CreateIngredient(ctx context.Context, ingredient *models.Ingredient) error {
	if err := c.db.WithContext(ctx).Create(ingredient).Error; err != nil {
		return fmt.Errorf("create ingredient %q: %w", ingredient.Name, err)
	}
	return nil
}

func (c *Catalog) UpdateIngredient(ctx context.Context, id uint, updates map[string]any) error {
	if err := c.db.WithContext(ctx).Model(&models.Ingredient{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("update ingredient %d: %w", id, err)
	}
	return nil
}

// Isolate wraps fn in a savepoint and rolls back to it when fn fails.
func (c *Catalog) Isolate(ctx context.Context, fn func(importer.Catalog) error) error {
	c.savepoints++
	name := fmt.Sprintf("import_row_%d", c.savepoints)
	if err := c.db.WithContext(ctx).SavePoint(name).Error; err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	if err := fn(c); err != nil {
		if rollbackErr := c.db.WithContext(ctx).RollbackTo(name).Error; rollbackErr != nil {
			return errors.Join(err, rollbackErr)
		}
		return err
	}
	return nil
}
