package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// IngredientCategory organises ingredients in a parent/child tree.
type IngredientCategory struct {
	gorm.Model
	Name     string               `gorm:"not null;index" json:"name"`
	ParentID *uint                `gorm:"index" json:"parent_id,omitempty"`
	Parent   *IngredientCategory  `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	Children []IngredientCategory `gorm:"foreignKey:ParentID" json:"children,omitempty"`
}

type Ingredient struct {
	gorm.Model
	Name string `gorm:"not null;index" json:"name"`
	// Code is optional; NULL codes do not collide in the unique index.
	Code       *string             `gorm:"uniqueIndex" json:"code,omitempty"`
	CategoryID *uint               `gorm:"index" json:"category_id,omitempty"`
	Category   *IngredientCategory `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	UnitID     uint                `gorm:"not null" json:"unit_id"`
	Unit       *UnitOfMeasure      `gorm:"foreignKey:UnitID" json:"unit,omitempty"`
	Price      decimal.Decimal     `gorm:"type:decimal(16,4);not null" json:"price"`
	PriceDate  time.Time           `gorm:"not null" json:"price_date"`
	SupplierID *uint               `gorm:"index" json:"supplier_id,omitempty"`
	Supplier   *Partner            `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	Active     bool                `gorm:"not null" json:"active"`
	Notes      string              `gorm:"type:text" json:"notes"`
}

// DisplayName renders the ingredient as "[code] name" when a code is set.
func (i Ingredient) DisplayName() string {
	if i.Code != nil && strings.TrimSpace(*i.Code) != "" {
		return "[" + strings.TrimSpace(*i.Code) + "] " + i.Name
	}
	return i.Name
}

// Partner is a contact; suppliers have a positive SupplierRank.
type Partner struct {
	gorm.Model
	Name         string `gorm:"not null;index" json:"name"`
	Email        string `json:"email,omitempty"`
	SupplierRank int    `gorm:"not null" json:"supplier_rank"`
}

// Product is the sellable item a recipe can push its portion cost onto.
type Product struct {
	gorm.Model
	Name          string          `gorm:"not null" json:"name"`
	DefaultCode   string          `json:"default_code,omitempty"`
	StandardPrice decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"standard_price"`
}

// Parameter stores process-wide settings such as the costing rates.
type Parameter struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;not null" json:"key"`
	Value string `gorm:"not null" json:"value"`
}
