package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"recipecost/internal/costing"
	applog "recipecost/internal/log"
)

type ratesPayload struct {
	LaborRate  decimal.Decimal `json:"labor_rate"`
	EnergyRate decimal.Decimal `json:"energy_rate"`
}

type ratesResponse struct {
	ratesPayload
	Recomputed *int `json:"recomputed,omitempty"`
}

// RatesResource reads and replaces the hourly labor and energy rates.
// Replacing them recomputes every recipe.
func RatesResource(w http.ResponseWriter, r *http.Request) {
	if serviceUnavailable(w, r, "rates") {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		rates, err := rateStore.Rates(ctx)
		if err != nil {
			writeServiceError(w, r, err, "unable to load rates")
			return
		}
		writeJSON(w, http.StatusOK, ratesResponse{ratesPayload: ratesPayload{LaborRate: rates.Labor, EnergyRate: rates.Energy}})
	case http.MethodPut:
		var payload ratesPayload
		if err := decodePayload(r, &payload); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		var recomputed int
		err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			costs, rates := withCosting(tx)
			if err := rates.SetRates(ctx, costing.Rates{Labor: payload.LaborRate, Energy: payload.EnergyRate}); err != nil {
				return err
			}
			count, err := costs.RecomputeAll(ctx)
			recomputed = count
			return err
		})
		if err != nil {
			writeServiceError(w, r, err, "unable to update rates")
			return
		}
		applog.Info(ctx, "costing rates updated", "labor", payload.LaborRate.String(), "energy", payload.EnergyRate.String(), "recipes", recomputed)
		writeJSON(w, http.StatusOK, ratesResponse{ratesPayload: payload, Recomputed: &recomputed})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
