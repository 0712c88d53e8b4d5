package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"recipecost/internal/costing"
	"recipecost/models"
)

const (
	LaborRateKey  = "recipe.labor_rate"
	EnergyRateKey = "recipe.energy_rate"
)

// ParameterRates reads the hourly rates from parameter rows, falling back
// to the configured defaults for keys that are not stored.
type ParameterRates struct {
	db       *gorm.DB
	defaults costing.Rates
}

func NewParameterRates(db *gorm.DB, defaults costing.Rates) *ParameterRates {
	return &ParameterRates{db: db, defaults: defaults}
}

// WithDB returns a copy reading and writing through db, typically a transaction.
func (p *ParameterRates) WithDB(db *gorm.DB) *ParameterRates {
	return &ParameterRates{db: db, defaults: p.defaults}
}

// Defaults returns the configured fallback rates.
func (p *ParameterRates) Defaults() costing.Rates {
	return p.defaults
}

func (p *ParameterRates) Rates(ctx context.Context) (costing.Rates, error) {
	rates := p.defaults
	if p.db == nil {
		return rates, nil
	}

	var params []models.Parameter
	if err := p.db.WithContext(ctx).Where("key IN ?", []string{LaborRateKey, EnergyRateKey}).Find(&params).Error; err != nil {
		return costing.Rates{}, fmt.Errorf("load rate parameters: %w", err)
	}
	for _, param := range params {
		value, err := decimal.NewFromString(strings.TrimSpace(param.Value))
		if err != nil {
			return costing.Rates{}, fmt.Errorf("parameter %s: %w", param.Key, err)
		}
		switch param.Key {
		case LaborRateKey:
			rates.Labor = value
		case EnergyRateKey:
			rates.Energy = value
		}
	}
	return rates, nil
}

// SetRates stores both rates, replacing any previous values.
func (p *ParameterRates) SetRates(ctx context.Context, rates costing.Rates) error {
	if p.db == nil {
		return gorm.ErrInvalidDB
	}
	params := []models.Parameter{
		{Key: LaborRateKey, Value: rates.Labor.String()},
		{Key: EnergyRateKey, Value: rates.Energy.String()},
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&params).Error
	if err != nil {
		return fmt.Errorf("store rate parameters: %w", err)
	}
	return nil
}
