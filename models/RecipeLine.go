package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LineKind string

const (
	LineIngredient LineKind = "ingredient"
	LineSubRecipe  LineKind = "sub_recipe"
)

var ErrInvalidLineTarget = errors.New("models: recipe line target does not match its kind")

// DefaultLineSequence matches the ordering new lines get when none is supplied.
const DefaultLineSequence = 10

type RecipeLine struct {
	gorm.Model
	RecipeID uint `gorm:"not null;index" json:"recipe_id"`
	Sequence int  `gorm:"not null" json:"sequence"`

	// --- Target ---
	// Kind selects which reference is meaningful; the other stays NULL.
	Kind         LineKind `gorm:"type:varchar(16);not null" json:"kind"`
	IngredientID *uint    `gorm:"index" json:"ingredient_id,omitempty"`
	SubRecipeID  *uint    `gorm:"index" json:"sub_recipe_id,omitempty"`

	Quantity decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"quantity"`
	UnitID   uint            `gorm:"not null" json:"unit_id"`
	Cost     decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"cost"`

	Ingredient *Ingredient    `gorm:"foreignKey:IngredientID" json:"ingredient,omitempty"`
	SubRecipe  *Recipe        `gorm:"foreignKey:SubRecipeID" json:"sub_recipe,omitempty"`
	Unit       *UnitOfMeasure `gorm:"foreignKey:UnitID" json:"unit,omitempty"`
}

// Validate reports whether the references agree with Kind.
func (l *RecipeLine) Validate() error {
	hasIngredient := l.IngredientID != nil && *l.IngredientID != 0
	hasSubRecipe := l.SubRecipeID != nil && *l.SubRecipeID != 0

	switch l.Kind {
	case LineIngredient:
		if !hasIngredient || hasSubRecipe {
			return fmt.Errorf("%w: ingredient line needs ingredient_id only", ErrInvalidLineTarget)
		}
	case LineSubRecipe:
		if !hasSubRecipe || hasIngredient {
			return fmt.Errorf("%w: sub-recipe line needs sub_recipe_id only", ErrInvalidLineTarget)
		}
		if *l.SubRecipeID == l.RecipeID {
			return fmt.Errorf("%w: a recipe cannot contain itself", ErrInvalidLineTarget)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidLineTarget, l.Kind)
	}
	return nil
}

func (l *RecipeLine) BeforeSave(tx *gorm.DB) error {
	return l.Validate()
}
