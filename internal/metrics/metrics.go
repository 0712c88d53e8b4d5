package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recipecost/internal/importer"
)

var (
	importRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipecost_import_rows_total",
			Help: "Ingredient import rows by outcome",
		},
		[]string{"outcome"},
	)

	importsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipecost_imports_total",
			Help: "Ingredient imports by result",
		},
		[]string{"result"},
	)

	recipesRecomputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipecost_recipes_recomputed_total",
			Help: "Recipes whose cached costs were rewritten, by trigger",
		},
		[]string{"trigger"},
	)

	cyclesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recipecost_recipe_cycles_total",
			Help: "Recomputes aborted because a recipe contains itself",
		},
	)
)

// ObserveImportRow is an importer.WithObserver callback.
func ObserveImportRow(outcome importer.Outcome) {
	importRowsTotal.WithLabelValues(string(outcome)).Inc()
}

// ImportFinished counts a finished import; failed reports a file-level error.
func ImportFinished(failed bool) {
	result := "ok"
	if failed {
		result = "failed"
	}
	importsTotal.WithLabelValues(result).Inc()
}

// Recorder implements recipes.Recorder on the package counters.
type Recorder struct{}

func (Recorder) RecipesRecomputed(trigger string, count int) {
	recipesRecomputed.WithLabelValues(trigger).Add(float64(count))
}

func (Recorder) CycleDetected() {
	cyclesDetected.Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
