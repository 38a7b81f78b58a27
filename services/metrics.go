package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statsGroupsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fz_intelligence_stats_groups_updated_total",
		Help: "Total number of stage statistic rows rewritten by the recompute.",
	})
	statsGroupsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fz_intelligence_stats_groups_failed_total",
		Help: "Total number of stage groups skipped because of an error.",
	})
	statsTenantRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fz_intelligence_stats_tenant_runs_total",
		Help: "Tenant recomputes by outcome.",
	}, []string{"outcome"})
	statsRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fz_intelligence_stats_run_duration_seconds",
		Help:    "Duration of a full nightly recompute sweep.",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
	})
	predictionsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fz_intelligence_predictions_served_total",
		Help: "Finish-time predictions served by algorithm version.",
	}, []string{"algorithm"})
	prechecksServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fz_intelligence_prechecks_total",
		Help: "Scan prechecks by result level.",
	}, []string{"level"})
	recommendationsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fz_intelligence_recommendations_total",
		Help: "In/out recommendations by action.",
	}, []string{"action"})
	statsLookupFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fz_intelligence_stats_lookup_fallbacks_total",
		Help: "Serving calls that fell back to the rule because the stats store was unavailable.",
	})
	feedbackReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fz_intelligence_feedback_total",
		Help: "Feedback submissions by outcome.",
	}, []string{"outcome"})
	stationMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fz_intelligence_station_messages_total",
		Help: "Scan-station MQTT messages by outcome.",
	}, []string{"outcome"})
	feedbackDeviation = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fz_intelligence_feedback_abs_deviation_minutes",
		Help:    "Absolute deviation between predicted and actual finish time.",
		Buckets: []float64{5, 15, 30, 60, 120, 240, 480, 1440},
	})
)
