// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GroupingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_grouping_runs_total",
			Help: "Total number of grouping passes by outcome",
		},
		[]string{"outcome"},
	)

	GroupingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "affinity_grouping_duration_seconds",
			Help:    "Duration of a grouping pass in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	GroupsFormed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "affinity_groups_current",
			Help: "Number of groups in the latest partition",
		},
	)

	PresenceDeclarations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_declarations_total",
			Help: "Total number of accepted presence declarations",
		},
		[]string{"status"},
	)

	PresenceRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_declarations_rejected_total",
			Help: "Total number of rejected presence declarations",
		},
		[]string{"error_code"},
	)

	SyncAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_sync_attempts_total",
			Help: "Calendar sync attempts by outcome",
		},
		[]string{"outcome"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "calendar_sync_duration_seconds",
			Help: "Duration of a full sync including retries",
		},
		[]string{"mode"},
	)

	SessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "calendar_session_state",
			Help: "1 for the current calendar session state, 0 otherwise",
		},
		[]string{"state"},
	)

	PendingQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "calendar_sync_pending_queue_depth",
			Help: "Number of presence records waiting for the sync worker",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern, method and status",
		},
		[]string{"route", "method", "status"},
	)
)

// SetSessionState flips the state gauge so exactly one label reads 1.
func SetSessionState(current string, all []string) {
	for _, s := range all {
		if s == current {
			SessionState.WithLabelValues(s).Set(1)
		} else {
			SessionState.WithLabelValues(s).Set(0)
		}
	}
}
