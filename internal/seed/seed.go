// Package seed installs the unit registry and the default recipe categories.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	applog "recipecost/internal/log"
	"recipecost/models"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Data struct {
	UnitCategories   []UnitCategory   `yaml:"unit_categories"`
	RecipeCategories []RecipeCategory `yaml:"recipe_categories"`
}

type UnitCategory struct {
	Name  string `yaml:"name"`
	Units []Unit `yaml:"units"`
}

type Unit struct {
	Ref   string `yaml:"ref"`
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind"`
	Ratio string `yaml:"ratio"`
}

type RecipeCategory struct {
	Name     string   `yaml:"name"`
	Children []string `yaml:"children"`
}

// Defaults returns the embedded seed data.
func Defaults() (Data, error) {
	return Parse(defaultsYAML)
}

func Parse(raw []byte) (Data, error) {
	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("seed: decode: %w", err)
	}
	for _, category := range data.UnitCategories {
		for _, unit := range category.Units {
			if unit.Ref == "" || unit.Name == "" {
				return Data{}, fmt.Errorf("seed: unit in %q needs ref and name", category.Name)
			}
			if _, err := decimal.NewFromString(unit.Ratio); err != nil {
				return Data{}, fmt.Errorf("seed: unit %q ratio: %w", unit.Ref, err)
			}
		}
	}
	return data, nil
}

// Apply installs the embedded defaults. Existing rows are left as they are.
func Apply(ctx context.Context, db *gorm.DB) error {
	data, err := Defaults()
	if err != nil {
		return err
	}
	return ApplyData(ctx, db, data)
}

func ApplyData(ctx context.Context, db *gorm.DB, data Data) error {
	if db == nil {
		return fmt.Errorf("seed: database handle is nil")
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, category := range data.UnitCategories {
			record := models.UnitCategory{Name: category.Name}
			if err := tx.Where(models.UnitCategory{Name: category.Name}).FirstOrCreate(&record).Error; err != nil {
				return fmt.Errorf("seed unit category %q: %w", category.Name, err)
			}
			for _, unit := range category.Units {
				if err := applyUnit(tx, record.ID, unit); err != nil {
					return err
				}
			}
		}

		for _, category := range data.RecipeCategories {
			parent, err := ensureRecipeCategory(tx, category.Name, nil)
			if err != nil {
				return err
			}
			for _, child := range category.Children {
				if _, err := ensureRecipeCategory(tx, child, &parent.ID); err != nil {
					return err
				}
			}
		}
		applog.Debug(ctx, "seed data applied", "unitCategories", len(data.UnitCategories), "recipeCategories", len(data.RecipeCategories))
		return nil
	})
}

func applyUnit(tx *gorm.DB, categoryID uint, unit Unit) error {
	var existing models.UnitOfMeasure
	err := tx.Where("ref = ?", unit.Ref).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("seed unit %q: %w", unit.Ref, err)
	}
	record := models.UnitOfMeasure{
		Ref:        unit.Ref,
		Name:       unit.Name,
		CategoryID: categoryID,
		Kind:       models.UnitKind(unit.Kind),
		Ratio:      decimal.RequireFromString(unit.Ratio),
	}
	if err := tx.Create(&record).Error; err != nil {
		return fmt.Errorf("seed unit %q: %w", unit.Ref, err)
	}
	return nil
}

func ensureRecipeCategory(tx *gorm.DB, name string, parentID *uint) (*models.RecipeCategory, error) {
	query := tx.Where("name = ?", name)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}

	var category models.RecipeCategory
	err := query.First(&category).Error
	if err == nil {
		return &category, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("seed recipe category %q: %w", name, err)
	}
	category = models.RecipeCategory{Name: name, ParentID: parentID}
	if err := tx.Create(&category).Error; err != nil {
		return nil, fmt.Errorf("seed recipe category %q: %w", name, err)
	}
	return &category, nil
}
