package handlers

import (
	"github.com/alexedwards/scs/v2"
	"gorm.io/gorm"

	"recipecost/internal/importer"
	"recipecost/internal/recipes"
	"recipecost/internal/store"
)

var (
	sessionManager *scs.SessionManager
	database       *gorm.DB
	costService    *recipes.Service
	rateStore      *store.ParameterRates
	importOptions  []importer.Option
)

// Dependencies are the shared services used by the HTTP handlers.
type Dependencies struct {
	Sessions *scs.SessionManager
	Database *gorm.DB
	Recipes  *recipes.Service
	Rates    *store.ParameterRates
	// ImportOptions are applied to every importer built by the upload handler.
	ImportOptions []importer.Option
}

// Configure installs the shared dependencies used by the HTTP handlers.
func Configure(deps Dependencies) {
	sessionManager = deps.Sessions
	database = deps.Database
	costService = deps.Recipes
	rateStore = deps.Rates
	importOptions = deps.ImportOptions
}

// withCosting binds the recompute service and the rate store to tx.
func withCosting(tx *gorm.DB) (*recipes.Service, *store.ParameterRates) {
	rates := rateStore.WithDB(tx)
	return costService.WithTx(tx, rates), rates
}

func available() bool {
	return database != nil && costService != nil && rateStore != nil
}
