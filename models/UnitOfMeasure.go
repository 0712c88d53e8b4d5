package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UnitCategory groups units that can be converted into each other.
type UnitCategory struct {
	gorm.Model
	Name  string          `gorm:"uniqueIndex;not null" json:"name"`
	Units []UnitOfMeasure `gorm:"foreignKey:CategoryID" json:"units,omitempty"`
}

type UnitKind string

const (
	UnitReference UnitKind = "reference"
	UnitBigger    UnitKind = "bigger"
	UnitSmaller   UnitKind = "smaller"
)

type UnitOfMeasure struct {
	gorm.Model
	// Ref is the stable lookup key used by seeds and the importer synonym table.
	Ref        string        `gorm:"uniqueIndex;not null" json:"ref"`
	Name       string        `gorm:"not null;index" json:"name"`
	CategoryID uint          `gorm:"not null;index" json:"category_id"`
	Category   *UnitCategory `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Kind       UnitKind      `gorm:"type:varchar(16);not null" json:"kind"`
	// Ratio is the number of reference units in one of this unit.
	Ratio decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"ratio"`
}
