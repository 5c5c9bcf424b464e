package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval Prometheus metrics.
var (
	SearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "search_total",
			Help:      "Total number of search calls by outcome",
		},
		[]string{"outcome"}, // "ok" or a soft-fail reason code
	)

	SearchStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recall",
			Name:      "search_stage_duration_seconds",
			Help:      "Per-stage search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"stage"}, // "embed", "fetch", "rank"
	)

	CandidateLimitResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "candidate_limit_resolutions_total",
			Help:      "Candidate limit resolutions by precedence source",
		},
		[]string{"source"}, // "explicit", "auto_by_budget", "config", "default"
	)

	CandidatesEvaluated = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "recall",
			Name:      "candidates_evaluated",
			Help:      "Candidates scored per search",
			Buckets:   []float64{10, 50, 100, 500, 1000, 2000, 4000, 8000, 20000},
		},
	)

	BudgetHitTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "budget_hit_total",
			Help:      "Searches whose latency budget expired mid-ranking",
		},
	)

	ThrottleWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "recall",
			Name:      "throttle_wait_duration_seconds",
			Help:      "Time spent waiting for a throttle slot",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
	)

	ThrottleTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "throttle_timeouts_total",
			Help:      "Throttle slot acquisitions that timed out",
		},
	)

	ThrottleRebindsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "throttle_registry_rebinds_total",
			Help:      "Times the guard observed a replaced throttle registry",
		},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers Prometheus retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchTotal)
	prometheus.MustRegister(SearchStageDuration)
	prometheus.MustRegister(CandidateLimitResolutions)
	prometheus.MustRegister(CandidatesEvaluated)
	prometheus.MustRegister(BudgetHitTotal)
	prometheus.MustRegister(ThrottleWaitDuration)
	prometheus.MustRegister(ThrottleTimeoutsTotal)
	prometheus.MustRegister(ThrottleRebindsTotal)
	retrievalMetricsRegistered = true
}
