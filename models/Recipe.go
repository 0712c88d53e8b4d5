package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RecipeCategory struct {
	gorm.Model
	Name     string           `gorm:"not null;index" json:"name"`
	ParentID *uint            `gorm:"index" json:"parent_id,omitempty"`
	Parent   *RecipeCategory  `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	Children []RecipeCategory `gorm:"foreignKey:ParentID" json:"children,omitempty"`
}

type Recipe struct {
	gorm.Model
	Name         string          `gorm:"not null;index" json:"name"`
	Code         *string         `gorm:"uniqueIndex" json:"code,omitempty"`
	CategoryID   *uint           `gorm:"index" json:"category_id,omitempty"`
	Category     *RecipeCategory `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	ProductID    *uint           `gorm:"index" json:"product_id,omitempty"`
	Product      *Product        `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Portions     int             `gorm:"not null" json:"portions"`
	Description  string          `gorm:"type:text" json:"description"`
	Instructions string          `gorm:"type:text" json:"instructions"`
	Active       bool            `gorm:"not null" json:"active"`
	Lines        []RecipeLine    `gorm:"foreignKey:RecipeID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`

	// --- Manual inputs ---
	PackagingCost decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"packaging_cost"`
	ExtraCost     decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"extra_cost"`
	LaborHours    decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"labor_hours"`
	EnergyHours   decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"energy_hours"`

	// --- Cached costs ---
	// Written only by the recompute service.
	IngredientCost        decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"ingredient_cost"`
	LaborCost             decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"labor_cost"`
	EnergyCost            decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"energy_cost"`
	TotalCost             decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"total_cost"`
	GrandTotal            decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"grand_total"`
	CostPerPortion        decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"cost_per_portion"`
	CostPerPortionNoLabor decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"cost_per_portion_no_labor"`
}
