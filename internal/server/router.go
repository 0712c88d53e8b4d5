package server

import (
	"context"
	"net/http"

	"recipecost/internal/handlers"
	applog "recipecost/internal/log"
	"recipecost/internal/metrics"
)

func newRouter() http.Handler {
	mux := http.NewServeMux()
	routes := []struct {
		path    string
		handler http.Handler
	}{
		{"/healthz", http.HandlerFunc(handlers.Health)},
		{"/metrics", metrics.Handler()},
		{"/app/api/units", http.HandlerFunc(handlers.UnitResource)},
		{"/app/api/ingredient-categories", http.HandlerFunc(handlers.IngredientCategoryResource)},
		{"/app/api/ingredient-categories/", http.HandlerFunc(handlers.IngredientCategoryResource)},
		{"/app/api/recipe-categories", http.HandlerFunc(handlers.RecipeCategoryResource)},
		{"/app/api/recipe-categories/", http.HandlerFunc(handlers.RecipeCategoryResource)},
		{"/app/api/partners", http.HandlerFunc(handlers.PartnerResource)},
		{"/app/api/products", http.HandlerFunc(handlers.ProductResource)},
		{"/app/api/ingredients", http.HandlerFunc(handlers.IngredientResource)},
		{"/app/api/ingredients/", http.HandlerFunc(handlers.IngredientResource)},
		{"/app/api/recipes", http.HandlerFunc(handlers.RecipeResource)},
		{"/app/api/recipes/", http.HandlerFunc(handlers.RecipeResource)},
		{"/app/api/recipe-lines", http.HandlerFunc(handlers.RecipeLineResource)},
		{"/app/api/recipe-lines/", http.HandlerFunc(handlers.RecipeLineResource)},
		{"/app/api/settings/rates", http.HandlerFunc(handlers.RatesResource)},
		{"/app/import/ingredients", http.HandlerFunc(handlers.IngredientImportResource)},
	}
	for _, route := range routes {
		mux.Handle(route.path, route.handler)
		applog.Debug(context.Background(), "route registered", "path", route.path)
	}
	return mux
}
