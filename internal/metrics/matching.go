package metrics

import "github.com/prometheus/client_golang/prometheus"

// Taxonomy matching Prometheus metrics.
var (
	MatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxotag",
			Name:      "match_duration_seconds",
			Help:      "Taxonomy match duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"tree", "matcher"}, // matcher: "greedy" / "best_leaf" / "multi"
	)

	MatchNodesScored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxotag",
			Name:      "match_nodes_scored_total",
			Help:      "Total taxonomy nodes scored during matching",
		},
		[]string{"tree", "matcher"},
	)

	MatchComparisonsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxotag",
			Name:      "match_comparisons_skipped_total",
			Help:      "Comparisons skipped on vector dimension mismatch",
		},
		[]string{"tree", "matcher"},
	)

	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxotag",
			Name:      "predictions_total",
			Help:      "Total item tag predictions",
		},
		[]string{"status"}, // "ok" / "partial" / "error"
	)
)

var matchMetricsRegistered bool

// RegisterMatchingMetrics registers Prometheus matching metrics. Must be called once from main.
func RegisterMatchingMetrics() {
	if matchMetricsRegistered {
		return
	}
	prometheus.MustRegister(MatchDuration)
	prometheus.MustRegister(MatchNodesScored)
	prometheus.MustRegister(MatchComparisonsSkipped)
	prometheus.MustRegister(PredictionsTotal)
	matchMetricsRegistered = true
}
