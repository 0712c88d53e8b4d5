// Package uom converts quantities between units of the same category and
// resolves the free-text unit names found in supplier price lists.
package uom

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"recipecost/models"
)

// Stable refs of the seeded units.
const (
	RefKilogram   = "kilogram"
	RefGram       = "gram"
	RefLitre      = "litre"
	RefMillilitre = "millilitre"
	RefUnit       = "unit"
	RefDozen      = "dozen"
)

var (
	ErrIncompatible = errors.New("uom: units belong to different categories")
	ErrInvalidRatio = errors.New("uom: unit ratio must be positive")
)

// Unit is the conversion-relevant view of a models.UnitOfMeasure.
type Unit struct {
	ID         uint
	Ref        string
	Name       string
	CategoryID uint
	Ratio      decimal.Decimal
}

func FromModel(m models.UnitOfMeasure) Unit {
	return Unit{
		ID:         m.ID,
		Ref:        m.Ref,
		Name:       m.Name,
		CategoryID: m.CategoryID,
		Ratio:      m.Ratio,
	}
}

// Convert expresses qty, given in from, in the unit to. On error qty is
// returned unchanged so callers can degrade to the raw quantity.
func Convert(qty decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	if from.ID != 0 && from.ID == to.ID {
		return qty, nil
	}
	if from.CategoryID != to.CategoryID {
		return qty, fmt.Errorf("%w: %s -> %s", ErrIncompatible, from.Name, to.Name)
	}
	if !from.Ratio.IsPositive() || !to.Ratio.IsPositive() {
		return qty, fmt.Errorf("%w: %s -> %s", ErrInvalidRatio, from.Name, to.Name)
	}
	return qty.Mul(from.Ratio).Div(to.Ratio), nil
}

var synonyms = map[string]string{
	"kg":         RefKilogram,
	"kilo":       RefKilogram,
	"kilogram":   RefKilogram,
	"g":          RefGram,
	"gram":       RefGram,
	"l":          RefLitre,
	"liter":      RefLitre,
	"litre":      RefLitre,
	"ml":         RefMillilitre,
	"milliliter": RefMillilitre,
	"millilitre": RefMillilitre,
	"unit":       RefUnit,
	"units":      RefUnit,
	"pcs":        RefUnit,
	"piece":      RefUnit,
	"dozen":      RefDozen,
}

// Synonym maps a free-text unit such as "Kg" or "pcs" to the ref of a seeded unit.
func Synonym(raw string) (string, bool) {
	ref, ok := synonyms[strings.ToLower(strings.TrimSpace(raw))]
	return ref, ok
}
