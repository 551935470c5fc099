package rating

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recomputationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_recomputations_total",
			Help: "Total number of entity rating recomputations by outcome",
		},
		[]string{"kind", "outcome"},
	)

	recomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rating_recompute_duration_seconds",
			Help:    "Duration of entity rating recomputations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"kind"},
	)
)
