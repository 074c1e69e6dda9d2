// Package metrics declares the Prometheus collectors for the NDVI subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts result-cache lookups.
	// Labels:
	//   - outcome: "hit", "miss", "expired", "forced"
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmndvi_cache_lookups_total",
			Help: "Result cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// FieldSeries counts per-field series by where they came from.
	// Labels:
	//   - source: "imagery", "synthetic"
	FieldSeries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmndvi_field_series_total",
			Help: "Per-field NDVI series produced, by source",
		},
		[]string{"source"},
	)

	// TokenExchanges counts OAuth client-credentials exchanges.
	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmndvi_token_exchanges_total",
			Help: "Imagery provider token exchanges by outcome",
		},
		[]string{"outcome"},
	)

	// BoundaryResolutions counts which rung of the boundary chain answered.
	BoundaryResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmndvi_boundary_resolutions_total",
			Help: "Boundary resolutions by answering provider",
		},
		[]string{"provider"},
	)

	// AggregationDuration measures full farm aggregations.
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "farmndvi_aggregation_duration_seconds",
			Help:    "Duration of farm NDVI aggregations",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)
